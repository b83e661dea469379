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
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// TimeContext carries information about a dataset that is not stored in
// the dataset itself.
type TimeContext struct {
	// Date is the calendar date encoded in the input file name. Only its
	// year, month and day are used.
	Date time.Time
	// Source is the input file name.
	Source string
}

// Normalized is the result of normalizing one dataset.
type Normalized struct {
	Dataset  *Dataset
	Filename string
	Tier     string
	Encoding TimeEncoding
}

// Normalizer applies one TransformSpec to datasets. A Normalizer holds
// no per-dataset state and may be reused.
type Normalizer struct {
	spec    TransformSpec
	derived []derivation

	// Now returns the time stamped as creation_date. It defaults to
	// time.Now.
	Now func() time.Time

	// Log receives warnings about skipped conversions. It defaults to
	// the logrus standard logger.
	Log logrus.FieldLogger
}

// NewNormalizer validates spec and compiles its derived-variable
// expressions.
func NewNormalizer(spec TransformSpec) (*Normalizer, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	derived, err := compileDerivations(spec.Derive)
	if err != nil {
		return nil, err
	}
	return &Normalizer{
		spec:    spec,
		derived: derived,
		Now:     time.Now,
		Log:     logrus.StandardLogger(),
	}, nil
}

// Spec returns the specification n applies.
func (n *Normalizer) Spec() TransformSpec { return n.spec }

// Normalize validates spec and applies it to ds.
func Normalize(ds *Dataset, spec TransformSpec, tc TimeContext) (*Normalized, error) {
	n, err := NewNormalizer(spec)
	if err != nil {
		return nil, err
	}
	return n.Normalize(ds, tc)
}

// Normalize applies the specification to a copy of ds. On error nothing
// is returned; ds is never modified.
func (n *Normalizer) Normalize(ds *Dataset, tc TimeContext) (*Normalized, error) {
	if err := ds.Check(); err != nil {
		return nil, err
	}
	if err := n.checkRequired(ds); err != nil {
		return nil, err
	}
	out := ds.Clone()
	for _, name := range n.spec.Drop {
		out.RemoveVar(name)
	}

	switch {
	case n.spec.Time != nil:
		if err := constructTimes(out, n.spec.Time, tc.Date); err != nil {
			return nil, err
		}
	case out.Time != nil:
		if err := filterValidTimes(out); err != nil {
			return nil, err
		}
	}

	if err := n.rename(out); err != nil {
		return nil, err
	}
	n.convert(out)
	for _, d := range n.derived {
		v, err := d.apply(out)
		if err != nil {
			return nil, err
		}
		out.AddVar(v)
	}
	if n.spec.Select {
		n.selectOutputs(out)
	}
	pruneDims(out)

	if err := n.annotate(out); err != nil {
		return nil, err
	}
	n.stampGlobals(out)

	var first time.Time
	if len(out.Time) > 0 {
		first = out.Time[0]
	}
	name, err := n.spec.FileName(first, tc.Source)
	if err != nil {
		return nil, err
	}
	if err := out.Check(); err != nil {
		return nil, err
	}
	return &Normalized{
		Dataset:  out,
		Filename: name,
		Tier:     n.spec.Tier,
		Encoding: n.spec.Encoding,
	}, nil
}

// checkRequired reports the first variable that the specification
// references but ds lacks. Conversions may refer to rename targets.
func (n *Normalizer) checkRequired(ds *Dataset) error {
	for _, r := range n.spec.Rename {
		if !ds.HasVar(r.From) {
			return &MissingVariableError{Name: r.From}
		}
	}
	if t := n.spec.Time; t != nil {
		for _, name := range []string{t.Hour, t.Minute, t.Second} {
			if !ds.HasVar(name) {
				return &MissingVariableError{Name: name}
			}
		}
	}
	later := make(map[string]struct{})
	for _, r := range n.spec.Rename {
		later[r.To] = struct{}{}
	}
	for _, c := range n.spec.Convert {
		if _, ok := later[c.Variable]; !ok && !ds.HasVar(c.Variable) {
			return &MissingVariableError{Name: c.Variable}
		}
	}
	return nil
}

// rename copies each rule's source to its target, recording the source
// name in the origin attribute, and removes the sources. Variable order
// is preserved: targets take their source's position.
func (n *Normalizer) rename(ds *Dataset) error {
	if len(n.spec.Rename) == 0 {
		return nil
	}
	origin := n.spec.originAttribute()
	targets := make(map[string][]string)
	for _, r := range n.spec.Rename {
		targets[r.From] = append(targets[r.From], r.To)
	}
	for _, r := range n.spec.Rename {
		if _, renamed := targets[r.To]; ds.HasVar(r.To) && !renamed {
			return &NameCollisionError{Name: r.To, Reason: "rename target already exists in dataset"}
		}
	}
	vars := make([]*Variable, 0, len(ds.Vars)+len(n.spec.Rename))
	for _, v := range ds.Vars {
		to, ok := targets[v.Name]
		if !ok {
			vars = append(vars, v)
			continue
		}
		for _, name := range to {
			nv := v.Clone()
			nv.Name = name
			if nv.Attrs == nil {
				nv.Attrs = make(Attributes)
			}
			nv.Attrs[origin] = v.Name
			vars = append(vars, nv)
		}
	}
	for from := range targets {
		if !ds.HasVar(from) {
			return &MissingVariableError{Name: from}
		}
	}
	ds.Vars = vars
	return nil
}

// convert applies the unit conversions whose source units match.
func (n *Normalizer) convert(ds *Dataset) {
	for _, c := range n.spec.Convert {
		v := ds.Var(c.Variable)
		if v == nil {
			// Reported by checkRequired unless the variable was dropped.
			n.Log.WithFields(logrus.Fields{"product": n.spec.Product, "variable": c.Variable}).
				Warn("variable to convert is absent; skipping conversion")
			continue
		}
		have := normalizeUnits(v.Attrs.String("units"))
		if have != normalizeUnits(c.From) {
			n.Log.WithFields(logrus.Fields{
				"product":  n.spec.Product,
				"variable": c.Variable,
				"units":    have,
				"expected": c.From,
			}).Warn("units do not match; skipping conversion")
			continue
		}
		if v.Type == Char {
			n.Log.WithFields(logrus.Fields{"product": n.spec.Product, "variable": c.Variable}).
				Warn("cannot convert a character variable; skipping conversion")
			continue
		}
		for i, x := range v.Data {
			v.Data[i] = x*c.Scale + c.Offset
		}
		if v.Type.Integer() {
			v.Type = Float64
		}
		if v.Attrs == nil {
			v.Attrs = make(Attributes)
		}
		v.Attrs["units"] = c.To
	}
}

// selectOutputs keeps only rename targets and derived variables.
func (n *Normalizer) selectOutputs(ds *Dataset) {
	keep := make(map[string]struct{})
	for _, r := range n.spec.Rename {
		keep[r.To] = struct{}{}
	}
	for _, d := range n.spec.Derive {
		keep[d.Name] = struct{}{}
	}
	vars := ds.Vars[:0]
	for _, v := range ds.Vars {
		if _, ok := keep[v.Name]; ok {
			vars = append(vars, v)
		}
	}
	ds.Vars = vars
}

// pruneDims removes dimensions no variable uses. The time dimension is
// kept while the dataset has a time coordinate.
func pruneDims(ds *Dataset) {
	used := make(map[string]struct{})
	if ds.Time != nil {
		used[TimeDim] = struct{}{}
	}
	for _, v := range ds.Vars {
		for _, d := range v.Dims {
			used[d] = struct{}{}
		}
	}
	dims := ds.Dims[:0]
	for _, d := range ds.Dims {
		if _, ok := used[d.Name]; ok {
			dims = append(dims, d)
		}
	}
	ds.Dims = dims
}

// annotate applies per-variable attribute assignments and removals. The
// name "time" addresses the time coordinate when the dataset has one.
func (n *Normalizer) annotate(ds *Dataset) error {
	attrsOf := func(name string) (Attributes, error) {
		if name == TimeDim && ds.Time != nil {
			if ds.TimeAttrs == nil {
				ds.TimeAttrs = make(Attributes)
			}
			return ds.TimeAttrs, nil
		}
		v := ds.Var(name)
		if v == nil {
			return nil, &MissingVariableError{Name: name}
		}
		if v.Attrs == nil {
			v.Attrs = make(Attributes)
		}
		return v.Attrs, nil
	}
	names := make([]string, 0, len(n.spec.Attributes))
	for name := range n.spec.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		attrs, err := attrsOf(name)
		if err != nil {
			return err
		}
		for k, val := range n.spec.Attributes[name] {
			attrs[k] = val
		}
	}
	names = names[:0]
	for name := range n.spec.RemoveAttributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		attrs, err := attrsOf(name)
		if err != nil {
			return err
		}
		for _, k := range n.spec.RemoveAttributes[name] {
			delete(attrs, k)
		}
	}
	return nil
}

// stampGlobals replaces (or, with Keep, extends) the global attributes
// with the specification's block and the creation date.
func (n *Normalizer) stampGlobals(ds *Dataset) {
	g := n.spec.Global
	attrs := make(Attributes)
	if g.Keep {
		attrs = ds.Attrs.Clone()
		if attrs == nil {
			attrs = make(Attributes)
		}
	}
	set := func(k, v string) {
		if v != "" {
			attrs[k] = v
		}
	}
	set("campaign", g.Campaign)
	set("project", g.Project)
	set("activity", g.Activity)
	set("platform", g.Platform)
	set("product", g.Product)
	set("instrument", g.Instrument)
	set("contact", g.Contact)
	set("version", g.Version)
	set("Conventions", g.Conventions)
	for k, v := range g.Extra {
		set(k, v)
	}
	attrs["creation_date"] = n.Now().UTC().Format(CreationDateFormat)
	ds.Attrs = attrs
}
