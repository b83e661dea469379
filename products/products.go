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

// Package products holds the catalogue of campaign products: where each
// product's input files are found, how they are grouped, and the
// normalization passes applied to them.
package products

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/eurec4a/ncnorm"
	"github.com/eurec4a/ncnorm/axbt"
	"gopkg.in/yaml.v3"
)

// Grouping is the way input files are combined before normalization.
type Grouping string

const (
	// ByFile normalizes every input file on its own.
	ByFile Grouping = "file"
	// ByDate merges the member files of each listed date.
	ByDate Grouping = "date"
	// All joins all input files along time.
	All Grouping = "all"
)

// DateLayout is the layout of Product.Dates entries.
const DateLayout = "2006-01-02"

// Product is one catalogue entry.
type Product struct {
	Name        string `toml:"name" yaml:"name"`
	Description string `toml:"description" yaml:"description"`

	// Inputs are glob patterns relative to the input directory.
	Inputs []string `toml:"inputs" yaml:"inputs"`
	Group  Grouping `toml:"group" yaml:"group"`

	// DatePattern is a regular expression whose one capture group
	// extracts a YYYYMMDD date from an input file's base name.
	DatePattern string `toml:"date_pattern" yaml:"date_pattern"`

	// Dates lists the flight dates processed with ByDate grouping.
	Dates   []string `toml:"dates" yaml:"dates"`
	Members []Member `toml:"members" yaml:"members"`

	// AXBT configures profile splitting for AXBT products.
	AXBT *axbt.Config `toml:"axbt" yaml:"axbt"`

	Specs []ncnorm.TransformSpec `toml:"specs" yaml:"specs"`
}

// Member is one of the files merged for each date.
type Member struct {
	Name string `toml:"name" yaml:"name"`
	// Files are candidate file name templates, relative to the input
	// directory. [DATE] is replaced by YYYYMMDD; the first existing
	// file is used.
	Files []string `toml:"files" yaml:"files"`
	// Prefix lists variables renamed to <Name>_<variable> before
	// merging. A dimension of the same name is renamed too.
	Prefix []string `toml:"prefix" yaml:"prefix"`
	// Descriptions sets description attributes, keyed by the variable
	// name before prefixing. [MEMBER] is replaced by Name.
	Descriptions map[string]string `toml:"descriptions" yaml:"descriptions"`
}

// Validate checks p and all of its normalization passes.
func (p *Product) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("products: product has no name")
	}
	if len(p.Specs) == 0 {
		return fmt.Errorf("products: %s: no normalization passes", p.Name)
	}
	for i := range p.Specs {
		if err := p.Specs[i].Validate(); err != nil {
			return fmt.Errorf("products: %s: spec %d: %w", p.Name, i, err)
		}
	}
	if p.DatePattern != "" {
		re, err := regexp.Compile(p.DatePattern)
		if err != nil {
			return fmt.Errorf("products: %s: date_pattern: %v", p.Name, err)
		}
		if re.NumSubexp() != 1 {
			return fmt.Errorf("products: %s: date_pattern needs exactly one capture group", p.Name)
		}
	}
	switch p.grouping() {
	case ByFile, All:
		if len(p.Inputs) == 0 {
			return fmt.Errorf("products: %s: no input patterns", p.Name)
		}
		if p.Group == All && len(p.Specs) > 1 && p.AXBT == nil {
			return fmt.Errorf("products: %s: only AXBT products have more than one pass", p.Name)
		}
	case ByDate:
		if len(p.Dates) == 0 || len(p.Members) == 0 {
			return fmt.Errorf("products: %s: date grouping needs dates and members", p.Name)
		}
		for _, d := range p.Dates {
			if _, err := time.Parse(DateLayout, d); err != nil {
				return fmt.Errorf("products: %s: date %q: %v", p.Name, d, err)
			}
		}
		for _, m := range p.Members {
			if m.Name == "" || len(m.Files) == 0 {
				return fmt.Errorf("products: %s: members need a name and candidate files", p.Name)
			}
		}
	default:
		return fmt.Errorf("products: %s: invalid grouping %q", p.Name, p.Group)
	}
	if p.AXBT != nil {
		if p.Level2() == nil || p.Level3() == nil {
			return fmt.Errorf("products: %s: AXBT products need Level_2 and Level_3 passes", p.Name)
		}
	}
	return nil
}

func (p *Product) grouping() Grouping {
	if p.Group == "" {
		return ByFile
	}
	return p.Group
}

// Grouping returns how input files are combined.
func (p *Product) Grouping() Grouping { return p.grouping() }

// Tier returns the pass that writes to the given archive tier, or nil.
func (p *Product) Tier(tier string) *ncnorm.TransformSpec {
	for i := range p.Specs {
		if p.Specs[i].Tier == tier {
			return &p.Specs[i]
		}
	}
	return nil
}

// Level2 returns the Level_2 pass, or nil.
func (p *Product) Level2() *ncnorm.TransformSpec { return p.Tier("Level_2") }

// Level3 returns the Level_3 pass, or nil.
func (p *Product) Level3() *ncnorm.TransformSpec { return p.Tier("Level_3") }

// Version returns the version of p's first pass.
func (p *Product) Version() string { return p.Specs[0].Global.Version }

// SetVersion overrides the version of every pass.
func (p *Product) SetVersion(v string) {
	for i := range p.Specs {
		p.Specs[i].Global.Version = v
	}
}

// FileDate returns the date encoded in the base name of file.
func (p *Product) FileDate(file string) (time.Time, error) {
	if p.DatePattern == "" {
		return time.Time{}, nil
	}
	re, err := regexp.Compile(p.DatePattern)
	if err != nil {
		return time.Time{}, err
	}
	m := re.FindStringSubmatch(filepath.Base(file))
	if len(m) < 2 {
		return time.Time{}, fmt.Errorf("products: %s: file name %s has no date matching %q", p.Name, filepath.Base(file), p.DatePattern)
	}
	d, err := time.Parse("20060102", m[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("products: %s: file name %s: %v", p.Name, filepath.Base(file), err)
	}
	return d, nil
}

// Prepare renames m's prefixed variables and sets their descriptions
// in ds.
func (m *Member) Prepare(ds *ncnorm.Dataset) error {
	for _, name := range m.Prefix {
		v := ds.Var(name)
		if v == nil {
			return &ncnorm.MissingVariableError{Name: name}
		}
		to := m.Name + "_" + name
		if ds.HasVar(to) {
			return &ncnorm.NameCollisionError{Name: to, Reason: "prefixed name already present"}
		}
		if _, ok := ds.DimLen(name); ok {
			if err := ncnorm.RenameDim(ds, name, to); err != nil {
				return err
			}
		}
		v.Name = to
	}
	for name, desc := range m.Descriptions {
		v := ds.Var(m.Name + "_" + name)
		if v == nil {
			v = ds.Var(name)
		}
		if v == nil {
			return &ncnorm.MissingVariableError{Name: name}
		}
		if v.Attrs == nil {
			v.Attrs = make(ncnorm.Attributes)
		}
		v.Attrs["description"] = strings.Replace(desc, "[MEMBER]", m.Name, -1)
	}
	return nil
}

//go:embed specs/*.toml
var builtin embed.FS

// Catalogue returns the built-in products sorted by name.
func Catalogue() ([]*Product, error) {
	entries, err := builtin.ReadDir("specs")
	if err != nil {
		return nil, err
	}
	var ps []*Product
	for _, e := range entries {
		b, err := builtin.ReadFile(path.Join("specs", e.Name()))
		if err != nil {
			return nil, err
		}
		p, err := Decode(bytes.NewReader(b), path.Ext(e.Name()))
		if err != nil {
			return nil, fmt.Errorf("products: built-in %s: %w", e.Name(), err)
		}
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
	return ps, nil
}

// Builtin returns the built-in product called name.
func Builtin(name string) (*Product, error) {
	ps, err := Catalogue()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, p := range ps {
		if p.Name == name {
			return p, nil
		}
		names = append(names, p.Name)
	}
	return nil, fmt.Errorf("products: unknown product %q; choose from %s", name, strings.Join(names, ", "))
}

// LoadFile reads a product from a TOML (.toml) or YAML (.yaml, .yml)
// file.
func LoadFile(filename string) (*Product, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("products: %v", err)
	}
	defer f.Close()
	p, err := Decode(f, filepath.Ext(filename))
	if err != nil {
		return nil, fmt.Errorf("products: %s: %w", filename, err)
	}
	return p, nil
}

// Decode reads and validates a product in the format given by the file
// extension ext. Unknown keys are errors.
func Decode(r io.Reader, ext string) (*Product, error) {
	p := new(Product)
	switch strings.ToLower(ext) {
	case ".toml":
		md, err := toml.NewDecoder(r).Decode(p)
		if err != nil {
			return nil, err
		}
		if u := md.Undecoded(); len(u) > 0 {
			return nil, fmt.Errorf("unknown keys %v", u)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(p); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported product file type %q", ext)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
