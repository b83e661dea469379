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
	"time"
)

// FilterAlong keeps the samples along dimension dim where keep is true,
// in their original order. Every variable using dim is filtered. It
// modifies ds in place.
func FilterAlong(ds *Dataset, dim string, keep []bool) error {
	n, ok := ds.DimLen(dim)
	if !ok {
		return fmt.Errorf("ncnorm: no dimension %s to filter along", dim)
	}
	if len(keep) != n {
		return fmt.Errorf("ncnorm: filter mask has %d values but dimension %s has length %d", len(keep), dim, n)
	}
	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}
	for _, v := range ds.Vars {
		pos := -1
		for i, d := range v.Dims {
			if d == dim {
				pos = i
				break
			}
		}
		if pos < 0 {
			continue
		}
		shape, err := ds.Shape(v)
		if err != nil {
			return err
		}
		outer, inner := 1, 1
		for _, l := range shape[:pos] {
			outer *= l
		}
		for _, l := range shape[pos+1:] {
			inner *= l
		}
		data := make([]float64, 0, outer*kept*inner)
		for o := 0; o < outer; o++ {
			for i, k := range keep {
				if k {
					start := (o*n + i) * inner
					data = append(data, v.Data[start:start+inner]...)
				}
			}
		}
		v.Data = data
	}
	if dim == TimeDim && ds.Time != nil {
		t := make([]time.Time, 0, kept)
		for i, k := range keep {
			if k {
				t = append(t, ds.Time[i])
			}
		}
		ds.Time = t
	}
	ds.SetDim(dim, kept)
	return nil
}

// RenameDim renames dimension from to to in ds and in all of its
// variables.
func RenameDim(ds *Dataset, from, to string) error {
	if from == to {
		return nil
	}
	if _, ok := ds.DimLen(to); ok {
		return &NameCollisionError{Name: to, Reason: fmt.Sprintf("cannot rename dimension %s", from)}
	}
	for i, d := range ds.Dims {
		if d.Name == from {
			ds.Dims[i].Name = to
		}
	}
	for _, v := range ds.Vars {
		for i, d := range v.Dims {
			if d == from {
				v.Dims[i] = to
			}
		}
	}
	return nil
}

// filterValidTimes drops samples with a zero decoded timestamp.
func filterValidTimes(ds *Dataset) error {
	keep := make([]bool, len(ds.Time))
	valid := 0
	for i, t := range ds.Time {
		if !t.IsZero() {
			keep[i] = true
			valid++
		}
	}
	if valid == 0 {
		return &InvalidTimeDataError{Reason: fmt.Sprintf("none of %d timestamps are valid", len(ds.Time))}
	}
	if _, ok := ds.DimLen(TimeDim); !ok {
		ds.SetDim(TimeDim, len(ds.Time))
	}
	return FilterAlong(ds, TimeDim, keep)
}

// constructTimes filters ds to the samples where all time components are
// present and builds Dataset.Time from date and the components. The
// component variables must be one-dimensional along the same dimension,
// which is renamed to TimeDim.
func constructTimes(ds *Dataset, ts *TimeSpec, date time.Time) error {
	names := [3]string{ts.Hour, ts.Minute, ts.Second}
	var comps [3]*Variable
	for i, name := range names {
		v := ds.Var(name)
		if v == nil {
			return &MissingVariableError{Name: name}
		}
		if len(v.Dims) != 1 {
			return &InvalidTimeDataError{Reason: fmt.Sprintf("time component %s has %d dimensions, want 1", name, len(v.Dims))}
		}
		if i > 0 && v.Dims[0] != comps[0].Dims[0] {
			return &InvalidTimeDataError{Reason: fmt.Sprintf("time components %s and %s lie along different dimensions", names[0], name)}
		}
		comps[i] = v
	}
	if date.IsZero() {
		return &InvalidTimeDataError{Reason: "time is built from components but no calendar date was supplied"}
	}
	if err := RenameDim(ds, comps[0].Dims[0], TimeDim); err != nil {
		return err
	}
	h, m, s := comps[0].Data, comps[1].Data, comps[2].Data
	keep := make([]bool, len(h))
	valid := 0
	for i := range h {
		if !math.IsNaN(h[i]) && !math.IsNaN(m[i]) && !math.IsNaN(s[i]) {
			keep[i] = true
			valid++
		}
	}
	if valid == 0 {
		return &InvalidTimeDataError{Reason: fmt.Sprintf("all %d samples lack a complete hour, minute and second", len(h))}
	}
	// A stored time variable is superseded by the constructed coordinate.
	ds.RemoveVar(TimeDim)
	ds.Time = nil
	if err := FilterAlong(ds, TimeDim, keep); err != nil {
		return err
	}
	// Components were replaced by FilterAlong.
	h, m, s = ds.Var(names[0]).Data, ds.Var(names[1]).Data, ds.Var(names[2]).Data

	day := ConstructDay(date, h[0], ts.Rollover())
	ds.Time = make([]time.Time, len(h))
	for i := range h {
		ds.Time[i] = day.Add(componentDuration(h[i], m[i], s[i]))
	}
	if ts.Drop {
		for _, name := range names {
			ds.RemoveVar(name)
		}
	}
	return nil
}

// ConstructDay returns the UTC midnight that a flight's timestamps are
// measured from: the calendar day of date, advanced by one day if
// firstHour is below rollover.
func ConstructDay(date time.Time, firstHour float64, rollover int) time.Time {
	y, mo, d := date.Date()
	day := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	if firstHour < float64(rollover) {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

func componentDuration(h, m, s float64) time.Duration {
	secs := h*3600 + m*60 + s
	return time.Duration(math.Round(secs * float64(time.Second)))
}
