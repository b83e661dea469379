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
	"sort"
	"time"
)

// Merge combines datasets that share a coordinate system into one.
// Shared dimensions must have the same length and, where more than one
// dataset has a time coordinate, the coordinates must be identical.
// Variables that appear in more than one dataset must be identical;
// otherwise a NameCollisionError is returned. Global attributes from
// earlier datasets take precedence. The inputs are not modified.
func Merge(datasets ...*Dataset) (*Dataset, error) {
	if len(datasets) == 0 {
		return nil, fmt.Errorf("ncnorm: nothing to merge")
	}
	out := datasets[0].Clone()
	if out.Attrs == nil {
		out.Attrs = make(Attributes)
	}
	for _, ds := range datasets[1:] {
		for _, d := range ds.Dims {
			if n, ok := out.DimLen(d.Name); ok && n != d.Len {
				return nil, fmt.Errorf("ncnorm: merge: dimension %s has lengths %d and %d", d.Name, n, d.Len)
			} else if !ok {
				out.SetDim(d.Name, d.Len)
			}
		}
		if ds.Time != nil {
			if out.Time == nil {
				out.Time = append([]time.Time(nil), ds.Time...)
				out.TimeAttrs = ds.TimeAttrs.Clone()
			} else if !sameTimes(out.Time, ds.Time) {
				return nil, fmt.Errorf("ncnorm: merge: time coordinates differ")
			}
		}
		for _, v := range ds.Vars {
			if prev := out.Var(v.Name); prev != nil {
				if !sameVar(prev, v) {
					return nil, &NameCollisionError{Name: v.Name, Reason: "present with different values in merged datasets"}
				}
				continue
			}
			out.AddVar(v.Clone())
		}
		for k, v := range ds.Attrs {
			if _, ok := out.Attrs[k]; !ok {
				out.Attrs[k] = v
			}
		}
	}
	return out, out.Check()
}

// Concat joins datasets along TimeDim in order of their first timestamp.
// Variables along TimeDim, which must be their outer dimension, are
// concatenated; other dimensions are padded with NaN to the longest
// input. Variables without TimeDim are taken from the first dataset.
// Every input must have a time coordinate.
func Concat(datasets ...*Dataset) (*Dataset, error) {
	if len(datasets) == 0 {
		return nil, fmt.Errorf("ncnorm: nothing to concatenate")
	}
	sorted := append([]*Dataset(nil), datasets...)
	for i, ds := range sorted {
		if len(ds.Time) == 0 {
			return nil, &InvalidTimeDataError{Reason: fmt.Sprintf("dataset %d to concatenate has no time coordinate", i)}
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time[0].Before(sorted[j].Time[0]) })

	// Longest extent of every dimension other than time.
	extent := make(map[string]int)
	var dimOrder []string
	for _, ds := range sorted {
		for _, d := range ds.Dims {
			if d.Name == TimeDim {
				continue
			}
			if n, ok := extent[d.Name]; !ok {
				dimOrder = append(dimOrder, d.Name)
				extent[d.Name] = d.Len
			} else if d.Len > n {
				extent[d.Name] = d.Len
			}
		}
	}

	first := sorted[0]
	out := &Dataset{
		Attrs:     first.Attrs.Clone(),
		TimeAttrs: first.TimeAttrs.Clone(),
	}
	for _, ds := range sorted {
		out.Time = append(out.Time, ds.Time...)
	}
	out.Dims = append(out.Dims, Dimension{Name: TimeDim, Len: len(out.Time)})
	for _, name := range dimOrder {
		out.Dims = append(out.Dims, Dimension{Name: name, Len: extent[name]})
	}

	for _, v := range first.Vars {
		if len(v.Dims) == 0 || v.Dims[0] != TimeDim {
			for _, d := range v.Dims {
				if d == TimeDim {
					return nil, fmt.Errorf("ncnorm: concat: %s has %s as an inner dimension", v.Name, TimeDim)
				}
			}
			nv := v.Clone()
			if err := padVar(first, nv, extent); err != nil {
				return nil, err
			}
			out.AddVar(nv)
			continue
		}
		cat := &Variable{Name: v.Name, Dims: append([]string(nil), v.Dims...), Type: v.Type, Attrs: v.Attrs.Clone()}
		for _, ds := range sorted {
			src := ds.Var(v.Name)
			if src == nil {
				return nil, &MissingVariableError{Name: v.Name}
			}
			if !sameDims(src.Dims, v.Dims) {
				return nil, fmt.Errorf("ncnorm: concat: %s has dimensions %v and %v", v.Name, v.Dims, src.Dims)
			}
			p := src.Clone()
			if err := padVar(ds, p, extent); err != nil {
				return nil, err
			}
			cat.Data = append(cat.Data, p.Data...)
		}
		out.AddVar(cat)
	}
	return out, out.Check()
}

// padVar extends v's non-time dimensions to the lengths in extent,
// filling with NaN. ds is the dataset v came from.
func padVar(ds *Dataset, v *Variable, extent map[string]int) error {
	shape, err := ds.Shape(v)
	if err != nil {
		return err
	}
	target := make([]int, len(shape))
	same := true
	for i, d := range v.Dims {
		target[i] = shape[i]
		if n, ok := extent[d]; ok && d != TimeDim {
			target[i] = n
		}
		if target[i] != shape[i] {
			same = false
		}
	}
	if same {
		return nil
	}
	size := 1
	for _, n := range target {
		size *= n
	}
	data := make([]float64, size)
	for i := range data {
		data[i] = math.NaN()
	}
	idx := make([]int, len(shape))
	for _, val := range v.Data {
		// Row-major offset of idx in the target shape.
		off := 0
		for k := range idx {
			off = off*target[k] + idx[k]
		}
		data[off] = val
		for k := len(idx) - 1; k >= 0; k-- {
			idx[k]++
			if idx[k] < shape[k] {
				break
			}
			idx[k] = 0
		}
	}
	v.Data = data
	return nil
}

func sameTimes(a, b []time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func sameVar(a, b *Variable) bool {
	if !sameDims(a.Dims, b.Dims) || len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] && !(math.IsNaN(a.Data[i]) && math.IsNaN(b.Data[i])) {
			return false
		}
	}
	return true
}
