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

// Package ncnormutil contains the ncnorm command-line interface and the
// batch driver behind it.
package ncnormutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/eurec4a/ncnorm"
	"github.com/eurec4a/ncnorm/archive"
	"github.com/eurec4a/ncnorm/products"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to ncnorm.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "loglevel",
			usage: `
              loglevel sets the logging level (debug, info, warn or error).`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "input",
			usage: `
              input lists the input files, as glob patterns, local paths,
              http(s) URLs or bucket URLs (file://, gs://, s3://). If empty,
              the product's own input patterns are used, relative to
              --inputdir.`,
			shorthand:  "i",
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), windowsCmd.Flags()},
		},
		{
			name: "inputdir",
			usage: `
              inputdir is the directory that product input patterns and
              member file templates are relative to.`,
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), windowsCmd.Flags()},
		},
		{
			name: "output",
			usage: `
              output is the archive root: a directory or a bucket URL
              (file://, gs:// or s3://). Files are written below it in
              tier directories such as Level_2 and Level_3. For plot axbt
              it is the directory the PDF files are written to.`,
			shorthand:  "o",
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), plotAXBTCmd.Flags()},
		},
		{
			name: "spec",
			usage: `
              spec is a product specification file (.toml, .yaml or .yml)
              used instead of a built-in product.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "policy",
			usage: `
              policy is what to do when an input fails: "failfast" stops the
              batch, "skip" logs the error and continues with the next input.`,
			defaultVal: "failfast",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "version",
			usage: `
              version overrides the data version stamped in the global
              attributes and file names.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "global",
			usage: `
              global holds extra global attributes added to every output,
              for example {"source":"NOAA AOC"}.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "retry",
			usage: `
              retry is the longest time to keep retrying a failed bucket
              write, for example "2m".`,
			defaultVal: "2m",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "hour",
			usage: `
              hour is the name of the UTC hour variable in flight-level files.`,
			defaultVal: "HH",
			flagsets:   []*pflag.FlagSet{windowsCmd.Flags()},
		},
		{
			name: "level2",
			usage: `
              level2 is a glob pattern matching the Level_2 AXBT profile files.`,
			defaultVal: filepath.Join("Level_2", "*.nc"),
			flagsets:   []*pflag.FlagSet{plotAXBTCmd.Flags()},
		},
		{
			name: "level3",
			usage: `
              level3 is the Level_3 AXBT file.`,
			defaultVal: filepath.Join("Level_3", "P3_AXBT_Level_3.nc"),
			flagsets:   []*pflag.FlagSet{plotAXBTCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("NCNORM")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(productsCmd)
	Root.AddCommand(windowsCmd)
	Root.AddCommand(plotCmd)
	plotCmd.AddCommand(plotAXBTCmd)
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "ncnorm",
	Short: "Normalize EUREC4A/ATOMIC P3 campaign data files.",
	Long: `ncnorm converts NetCDF files from the P3 aircraft into the
EUREC4A/ATOMIC archive layout: consistent variable names and units,
CF metadata, and deterministic file names in Level_2 and Level_3
directories. Use the subcommands specified below to access the
functionality.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'NCNORM_var' where 'var' is
the name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		if err := setConfig(); err != nil {
			return err
		}
		return setLogLevel()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of ncnorm.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("ncnorm v%s\n", ncnorm.Version)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run [product]",
	Short: "Normalize the input files of a product.",
	Long: `run normalizes the input files of one product and writes the results
to the archive given by --output. The product is a built-in product name
(see 'ncnorm products') or, if --spec is given, is read from that file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProduct(args, os.ExpandEnv(Cfg.GetString("spec")))
		if err != nil {
			return err
		}
		if err := configureProduct(p); err != nil {
			return err
		}
		policy, err := ParsePolicy(Cfg.GetString("policy"))
		if err != nil {
			return err
		}
		retry, err := getDuration("retry", Cfg)
		if err != nil {
			return err
		}

		ctx := context.Background()
		store, err := archive.Open(ctx, os.ExpandEnv(Cfg.GetString("output")))
		if err != nil {
			return err
		}
		if bs, ok := store.(*archive.BucketStore); ok {
			bs.MaxElapsedTime = retry
			defer bs.Close()
		}

		b := Batch{
			Product:  p,
			Store:    store,
			Policy:   policy,
			InputDir: os.ExpandEnv(Cfg.GetString("inputdir")),
			Log:      logrus.StandardLogger(),
		}
		report, err := b.Run(ctx, expandStringSlice(Cfg.GetStringSlice("input")))
		if report != nil {
			cmd.Printf("%s: %d files written, %d inputs failed\n", p.Name, len(report.Written), len(report.Failed))
		}
		if err != nil {
			return err
		}
		if len(report.Failed) > 0 {
			return fmt.Errorf("ncnorm: %s: %d inputs failed", p.Name, len(report.Failed))
		}
		return nil
	},
	DisableAutoGenTag: true,
}

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List the built-in products.",
	Long:  "products lists the built-in products with their data versions and archive tiers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalogue, err := products.Catalogue()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tTIERS\tDESCRIPTION")
		for _, p := range catalogue {
			var tiers []string
			for _, s := range p.Specs {
				tiers = append(tiers, s.Tier)
			}
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", p.Name, p.Version(), tiers, p.Description)
		}
		return w.Flush()
	},
	DisableAutoGenTag: true,
}

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "Print the UTC hours covered by flight-level files.",
	Long: `windows prints the first and last valid UTC hour of each flight-level
file, and whether the flight stays within one UTC day.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		files := expandStringSlice(Cfg.GetStringSlice("input"))
		if len(files) == 0 {
			p, err := products.Builtin("flight-level")
			if err != nil {
				return err
			}
			dir := os.ExpandEnv(Cfg.GetString("inputdir"))
			for _, pattern := range p.Inputs {
				files = append(files, filepath.Join(dir, pattern))
			}
		}
		files, err := expandInputs(files)
		if err != nil {
			return err
		}
		windows, err := FlightWindows(context.Background(), files, Cfg.GetString("hour"))
		if err != nil {
			return err
		}
		for _, w := range windows {
			cmd.Println(w)
		}
		return nil
	},
	DisableAutoGenTag: true,
}

var plotCmd = &cobra.Command{
	Use:               "plot",
	Short:             "Plot normalized products.",
	Long:              "plot creates figures from normalized files. Use the subcommands to choose a product.",
	DisableAutoGenTag: true,
}

var plotAXBTCmd = &cobra.Command{
	Use:   "axbt",
	Short: "Plot AXBT temperature profiles.",
	Long: `axbt plots the Level_2 and Level_3 AXBT temperature profiles against
depth and writes AXBT_Level_2.pdf and AXBT_Level_3.pdf to --output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		l2, err := filepath.Glob(os.ExpandEnv(Cfg.GetString("level2")))
		if err != nil {
			return err
		}
		out := os.ExpandEnv(Cfg.GetString("output"))
		files, err := PlotAXBT(l2, os.ExpandEnv(Cfg.GetString("level3")), out)
		for _, f := range files {
			cmd.Printf("wrote %s\n", f)
		}
		return err
	},
	DisableAutoGenTag: true,
}
