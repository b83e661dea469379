/*
Copyright © 2020 the ncnorm authors.
This file is part of ncnorm.

ncnorm is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ncnorm is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ncnorm.  If not, see <http://www.gnu.org/licenses/>.
*/

package ncnormutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/eurec4a/ncnorm/products"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("ncnorm: problem reading configuration file: %v", err)
		}
	}
	return nil
}

func setLogLevel() error {
	level, err := logrus.ParseLevel(Cfg.GetString("loglevel"))
	if err != nil {
		return fmt.Errorf("ncnorm: %v", err)
	}
	logrus.SetLevel(level)
	return nil
}

// expandStringSlice replaces environment variables in s.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if v == "" {
			return o, nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("ncnorm: invalid value for %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("ncnorm: invalid type for %s: %#v", varName, i)
	}
}

// getDuration reads a duration such as "90s" or a number of nanoseconds.
func getDuration(varName string, cfg *viper.Viper) (time.Duration, error) {
	d, err := cast.ToDurationE(cfg.Get(varName))
	if err != nil {
		return 0, fmt.Errorf("ncnorm: invalid duration for %s: %v", varName, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("ncnorm: %s must not be negative", varName)
	}
	return d, nil
}

// loadProduct returns the product named in args, or the one in specFile
// if it is set.
func loadProduct(args []string, specFile string) (*products.Product, error) {
	if specFile != "" {
		p, err := products.LoadFile(specFile)
		if err != nil {
			return nil, err
		}
		if len(args) == 1 && args[0] != p.Name {
			return nil, fmt.Errorf("ncnorm: product %q requested but %s defines %q", args[0], specFile, p.Name)
		}
		return p, nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("ncnorm: specify a product name or a --spec file")
	}
	return products.Builtin(args[0])
}

// configureProduct applies the version and global attribute overrides.
func configureProduct(p *products.Product) error {
	if v := Cfg.GetString("version"); v != "" {
		p.SetVersion(v)
	}
	extra, err := GetStringMapString("global", Cfg)
	if err != nil {
		return err
	}
	if len(extra) == 0 {
		return nil
	}
	for i := range p.Specs {
		g := &p.Specs[i].Global
		merged := make(map[string]string, len(g.Extra)+len(extra))
		for k, v := range g.Extra {
			merged[k] = v
		}
		for k, v := range extra {
			merged[k] = v
		}
		g.Extra = merged
	}
	return p.Validate()
}
