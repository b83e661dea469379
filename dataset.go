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

// Package ncnorm reformats field-campaign instrument data into
// CF-convention archival datasets. A Dataset is read by an external
// collaborator (see package ncio), passed through a Normalizer configured
// by a declarative TransformSpec, and handed back for persistence.
package ncnorm

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TimeDim is the name of the dimension that time-validity filtering
// and timestamp construction operate along.
const TimeDim = "time"

// DataType is the storage type of a variable's samples.
type DataType int

const (
	// Float64 variables are stored as NetCDF DOUBLE.
	Float64 DataType = iota
	// Float32 variables are stored as NetCDF FLOAT.
	Float32
	// Int32 variables are stored as NetCDF INT.
	Int32
	// Int16 variables are stored as NetCDF SHORT.
	Int16
	// Int8 variables are stored as NetCDF BYTE.
	Int8
	// Char variables are stored as NetCDF CHAR. Data holds the
	// character codes.
	Char
)

// Integer reports whether t is an integer storage type.
func (t DataType) Integer() bool {
	return t == Int32 || t == Int16 || t == Int8
}

// Attributes holds free-text or numeric metadata. Values are
// string, float64, or []float64.
type Attributes map[string]interface{}

// String returns the string value of attribute k, or "" if it is absent
// or not a string.
func (a Attributes) String(k string) string {
	s, _ := a[k].(string)
	return s
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of a.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	o := make(Attributes, len(a))
	for k, v := range a {
		if f, ok := v.([]float64); ok {
			v = append([]float64(nil), f...)
		}
		o[k] = v
	}
	return o
}

// Dimension is a named array axis.
type Dimension struct {
	Name string
	Len  int
}

// Variable is a named numeric array along one or more dimensions.
// Data is stored in row-major order.
type Variable struct {
	Name  string
	Dims  []string
	Data  []float64
	Type  DataType
	Attrs Attributes
}

// Text returns the contents of a Char variable with trailing NULs
// removed.
func (v *Variable) Text() string {
	b := make([]byte, len(v.Data))
	for i, c := range v.Data {
		b[i] = byte(c)
	}
	return strings.TrimRight(string(b), "\x00")
}

// Clone returns a deep copy of v.
func (v *Variable) Clone() *Variable {
	return &Variable{
		Name:  v.Name,
		Dims:  append([]string(nil), v.Dims...),
		Data:  append([]float64(nil), v.Data...),
		Type:  v.Type,
		Attrs: v.Attrs.Clone(),
	}
}

// Dataset is an ordered collection of variables with global attributes.
// Time, if not nil, is the absolute time coordinate along TimeDim; a zero
// value marks a missing timestamp. TimeAttrs holds the time coordinate's
// metadata other than its encoding.
type Dataset struct {
	Dims      []Dimension
	Vars      []*Variable
	Attrs     Attributes
	Time      []time.Time
	TimeAttrs Attributes
}

// Clone returns a deep copy of d.
func (d *Dataset) Clone() *Dataset {
	o := &Dataset{
		Dims:      append([]Dimension(nil), d.Dims...),
		Vars:      make([]*Variable, len(d.Vars)),
		Attrs:     d.Attrs.Clone(),
		TimeAttrs: d.TimeAttrs.Clone(),
	}
	for i, v := range d.Vars {
		o.Vars[i] = v.Clone()
	}
	if d.Time != nil {
		o.Time = append([]time.Time(nil), d.Time...)
	}
	return o
}

// Var returns the variable named name, or nil if there is none.
func (d *Dataset) Var(name string) *Variable {
	for _, v := range d.Vars {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// HasVar returns whether d contains a variable named name.
func (d *Dataset) HasVar(name string) bool { return d.Var(name) != nil }

// VarNames returns the variable names in dataset order.
func (d *Dataset) VarNames() []string {
	o := make([]string, len(d.Vars))
	for i, v := range d.Vars {
		o[i] = v.Name
	}
	return o
}

// DimLen returns the length of dimension name and whether it exists.
func (d *Dataset) DimLen(name string) (int, bool) {
	for _, dd := range d.Dims {
		if dd.Name == name {
			return dd.Len, true
		}
	}
	return 0, false
}

// SetDim sets the length of dimension name, adding it if necessary.
func (d *Dataset) SetDim(name string, n int) {
	for i, dd := range d.Dims {
		if dd.Name == name {
			d.Dims[i].Len = n
			return
		}
	}
	d.Dims = append(d.Dims, Dimension{Name: name, Len: n})
}

// AddVar appends v to d. The caller is responsible for name uniqueness.
func (d *Dataset) AddVar(v *Variable) { d.Vars = append(d.Vars, v) }

// RemoveVar deletes the variable named name, if present.
func (d *Dataset) RemoveVar(name string) {
	for i, v := range d.Vars {
		if v.Name == name {
			d.Vars = append(d.Vars[:i], d.Vars[i+1:]...)
			return
		}
	}
}

// Shape returns the dimension lengths of v within d.
func (d *Dataset) Shape(v *Variable) ([]int, error) {
	shape := make([]int, len(v.Dims))
	for i, dim := range v.Dims {
		n, ok := d.DimLen(dim)
		if !ok {
			return nil, fmt.Errorf("ncnorm: variable %s uses undefined dimension %s", v.Name, dim)
		}
		shape[i] = n
	}
	return shape, nil
}

// Check verifies that variable names are unique and that every
// variable's data length matches its declared dimensions.
func (d *Dataset) Check() error {
	seen := make(map[string]struct{}, len(d.Vars))
	for _, v := range d.Vars {
		if _, ok := seen[v.Name]; ok {
			return &NameCollisionError{Name: v.Name, Reason: "duplicate variable in dataset"}
		}
		seen[v.Name] = struct{}{}
		shape, err := d.Shape(v)
		if err != nil {
			return err
		}
		n := 1
		for _, l := range shape {
			n *= l
		}
		if n != len(v.Data) {
			return fmt.Errorf("ncnorm: variable %s has %d values but dimensions %v imply %d",
				v.Name, len(v.Data), v.Dims, n)
		}
	}
	if d.Time != nil {
		if _, ok := seen[TimeDim]; ok {
			return &NameCollisionError{Name: TimeDim, Reason: "dataset has both a decoded time coordinate and a time variable"}
		}
		if n, ok := d.DimLen(TimeDim); ok && n != len(d.Time) {
			return fmt.Errorf("ncnorm: time coordinate has %d values but dimension %s has length %d",
				len(d.Time), TimeDim, n)
		}
	}
	return nil
}
