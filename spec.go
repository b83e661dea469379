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

package ncnorm

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// DefaultOriginAttribute is the variable attribute that records the
// name a variable had before renaming.
const DefaultOriginAttribute = "original_name"

// DefaultRolloverHour is the UTC hour below which a flight's first
// sample is taken to belong to the day after the file date. Local time
// during the campaign was UTC-5 and no flight started before 05 local.
const DefaultRolloverHour = 5

// TransformSpec declares one normalization pass for a product.
type TransformSpec struct {
	// Product is the short product identifier, e.g. "flight-level".
	Product string `toml:"product" yaml:"product"`
	// Tier is the archive directory tier, e.g. "Level_2".
	Tier string `toml:"tier" yaml:"tier"`

	// Select, if true, keeps only renamed and derived variables.
	Select bool `toml:"select" yaml:"select"`
	// Drop lists variables removed before any other step.
	Drop []string `toml:"drop" yaml:"drop"`

	// Time, if set, builds the time coordinate from component fields.
	Time *TimeSpec `toml:"time" yaml:"time"`

	Rename          []RenameRule `toml:"rename" yaml:"rename"`
	OriginAttribute string       `toml:"origin_attribute" yaml:"origin_attribute"`

	Convert []ConversionRule `toml:"convert" yaml:"convert"`
	Derive  []DerivedRule    `toml:"derive" yaml:"derive"`

	// Attributes assigns variable attributes, keyed by variable name.
	Attributes map[string]map[string]string `toml:"attributes" yaml:"attributes"`
	// RemoveAttributes deletes variable attributes, keyed by variable name.
	RemoveAttributes map[string][]string `toml:"remove_attributes" yaml:"remove_attributes"`

	Global   GlobalAttributes `toml:"global" yaml:"global"`
	Naming   FileNaming       `toml:"naming" yaml:"naming"`
	Encoding TimeEncoding     `toml:"encoding" yaml:"encoding"`
}

// TimeSpec describes how to build absolute timestamps from separate
// hour, minute and second variables plus an externally supplied date.
type TimeSpec struct {
	Hour   string `toml:"hour" yaml:"hour"`
	Minute string `toml:"minute" yaml:"minute"`
	Second string `toml:"second" yaml:"second"`

	// RolloverHour: if the first valid hour is below it, the calendar
	// day advances by one. Nil means DefaultRolloverHour.
	RolloverHour *int `toml:"rollover_hour" yaml:"rollover_hour"`

	// Drop removes the component variables from the output.
	Drop bool `toml:"drop" yaml:"drop"`
}

// Rollover returns the effective day-rollover threshold.
func (t *TimeSpec) Rollover() int {
	if t.RolloverHour == nil {
		return DefaultRolloverHour
	}
	return *t.RolloverHour
}

// RenameRule copies variable From to the name To. Several rules may share
// a source; the source itself is removed once all rules have run.
type RenameRule struct {
	From string `toml:"from" yaml:"from"`
	To   string `toml:"to" yaml:"to"`
}

// ConversionRule applies value*Scale + Offset to Variable when its units
// attribute equals From, and sets the units attribute to To.
type ConversionRule struct {
	Variable string  `toml:"variable" yaml:"variable"`
	From     string  `toml:"from" yaml:"from"`
	To       string  `toml:"to" yaml:"to"`
	Scale    float64 `toml:"scale" yaml:"scale"`
	Offset   float64 `toml:"offset" yaml:"offset"`
}

// DerivedRule adds a variable computed from an expression over other
// variables.
type DerivedRule struct {
	Name       string            `toml:"name" yaml:"name"`
	Expression string            `toml:"expression" yaml:"expression"`
	Attrs      map[string]string `toml:"attributes" yaml:"attributes"`
}

// GlobalAttributes is the fixed block of global metadata stamped on every
// output. Empty fields are omitted.
type GlobalAttributes struct {
	Campaign    string            `toml:"campaign" yaml:"campaign"`
	Project     string            `toml:"project" yaml:"project"`
	Activity    string            `toml:"activity" yaml:"activity"`
	Platform    string            `toml:"platform" yaml:"platform"`
	Product     string            `toml:"product" yaml:"product"`
	Instrument  string            `toml:"instrument" yaml:"instrument"`
	Version     string            `toml:"version" yaml:"version"`
	Contact     string            `toml:"contact" yaml:"contact"`
	Conventions string            `toml:"conventions" yaml:"conventions"`
	Extra       map[string]string `toml:"extra" yaml:"extra"`

	// Keep merges the block onto the input's global attributes
	// instead of replacing them.
	Keep bool `toml:"keep" yaml:"keep"`
}

// FileNaming controls output file names.
type FileNaming struct {
	Prefix []string `toml:"prefix" yaml:"prefix"`
	// Time appends _HHMMSS of the first valid timestamp.
	Time bool `toml:"time" yaml:"time"`
	// Ext is the file extension, ".nc" if empty.
	Ext string `toml:"ext" yaml:"ext"`
	// SourcePattern is a regular expression with one capture group
	// applied to the input base name; the capture replaces the date.
	SourcePattern string `toml:"source_pattern" yaml:"source_pattern"`
	// Fixed replaces the date token for undated collections.
	Fixed string `toml:"fixed" yaml:"fixed"`
}

// TimeEncoding is the on-disk encoding of the time coordinate.
type TimeEncoding struct {
	// Units is a CF time unit, e.g. "seconds since 2020-01-01".
	Units string `toml:"units" yaml:"units"`
	// Width is 32 or 64 bits.
	Width int `toml:"width" yaml:"width"`
}

// Validate checks s without reference to any dataset. It does not
// modify s.
func (s *TransformSpec) Validate() error {
	if s.Tier == "" {
		return &SpecValidationError{Field: "tier", Reason: "must be set"}
	}
	if s.Global.Version == "" {
		return &SpecValidationError{Field: "global.version", Reason: "must be set"}
	}

	if t := s.Time; t != nil {
		if t.Hour == "" || t.Minute == "" || t.Second == "" {
			return &SpecValidationError{Field: "time", Reason: "hour, minute and second variables must all be named"}
		}
		if r := t.Rollover(); r < 0 || r > 23 {
			return &SpecValidationError{Field: "time.rollover_hour", Reason: fmt.Sprintf("%d is not an hour of the day", r)}
		}
	}

	targets := make(map[string]string)
	sources := make(map[string]struct{})
	for i, r := range s.Rename {
		if r.From == "" || r.To == "" {
			return &SpecValidationError{Field: fmt.Sprintf("rename[%d]", i), Reason: "from and to must both be set"}
		}
		if prev, ok := targets[r.To]; ok {
			return &NameCollisionError{Name: r.To,
				Reason: fmt.Sprintf("renamed from both %q and %q", prev, r.From)}
		}
		targets[r.To] = r.From
		sources[r.From] = struct{}{}
	}

	for i, c := range s.Convert {
		field := fmt.Sprintf("convert[%d]", i)
		if c.Variable == "" {
			return &SpecValidationError{Field: field, Reason: "variable must be set"}
		}
		// Conversions run after renaming, when sources are gone.
		if _, renamed := sources[c.Variable]; renamed {
			if _, ok := targets[c.Variable]; !ok {
				return &SpecValidationError{Field: field,
					Reason: fmt.Sprintf("%q is renamed before conversion; convert %q instead", c.Variable, s.Target(c.Variable))}
			}
		}
		if strings.TrimSpace(c.From) == "" || strings.TrimSpace(c.To) == "" {
			return &SpecValidationError{Field: field, Reason: "both source and target units must be set"}
		}
		if c.Scale == 0 || math.IsNaN(c.Scale) || math.IsInf(c.Scale, 0) {
			return &SpecValidationError{Field: field, Reason: fmt.Sprintf("scale %g must be finite and non-zero", c.Scale)}
		}
		if math.IsNaN(c.Offset) || math.IsInf(c.Offset, 0) {
			return &SpecValidationError{Field: field, Reason: fmt.Sprintf("offset %g must be finite", c.Offset)}
		}
		if err := checkUnitDimensions(c.From, c.To); err != nil {
			return &SpecValidationError{Field: field, Reason: err.Error()}
		}
	}

	derived := make(map[string]struct{})
	for i, d := range s.Derive {
		if d.Name == "" || strings.TrimSpace(d.Expression) == "" {
			return &SpecValidationError{Field: fmt.Sprintf("derive[%d]", i), Reason: "name and expression must both be set"}
		}
		if from, ok := targets[d.Name]; ok {
			return &NameCollisionError{Name: d.Name,
				Reason: fmt.Sprintf("derived variable shadows the rename of %q", from)}
		}
		if _, ok := derived[d.Name]; ok {
			return &NameCollisionError{Name: d.Name, Reason: "derived more than once"}
		}
		derived[d.Name] = struct{}{}
	}

	if s.Naming.SourcePattern != "" {
		re, err := regexp.Compile(s.Naming.SourcePattern)
		if err != nil {
			return &SpecValidationError{Field: "naming.source_pattern", Reason: err.Error()}
		}
		if re.NumSubexp() != 1 {
			return &SpecValidationError{Field: "naming.source_pattern",
				Reason: fmt.Sprintf("needs exactly one capture group, has %d", re.NumSubexp())}
		}
	}
	if len(s.Naming.Prefix) == 0 {
		return &SpecValidationError{Field: "naming.prefix", Reason: "at least one prefix token is required"}
	}

	if s.Encoding.Width != 32 && s.Encoding.Width != 64 {
		return &SpecValidationError{Field: "encoding.width",
			Reason: fmt.Sprintf("%d; must be 32 or 64", s.Encoding.Width)}
	}
	if _, _, err := ParseTimeUnits(s.Encoding.Units); err != nil {
		return &SpecValidationError{Field: "encoding.units", Reason: err.Error()}
	}
	return nil
}

func (s *TransformSpec) originAttribute() string {
	if s.OriginAttribute == "" {
		return DefaultOriginAttribute
	}
	return s.OriginAttribute
}

// Target returns the name variable name has after renaming: the target
// of the first rule renaming it, or name itself.
func (s *TransformSpec) Target(name string) string {
	for _, r := range s.Rename {
		if r.From == name {
			return r.To
		}
	}
	return name
}
