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
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

func TestMerge(t *testing.T) {
	times := []time.Time{time.Date(2020, 2, 3, 12, 0, 0, 0, time.UTC), time.Date(2020, 2, 3, 12, 0, 1, 0, time.UTC)}
	a := &Dataset{
		Dims:  []Dimension{{Name: TimeDim, Len: 2}},
		Vars:  []*Variable{{Name: "hydrometeor_number_concentration", Dims: []string{TimeDim}, Data: []float64{1, 2}}},
		Time:  times,
		Attrs: Attributes{"source": "a"},
	}
	b := &Dataset{
		Dims: []Dimension{{Name: TimeDim, Len: 2}, {Name: "bin", Len: 3}},
		Vars: []*Variable{
			{Name: "CAS_size", Dims: []string{"bin"}, Data: []float64{1, 2, 3}},
			{Name: "hydrometeor_number_concentration", Dims: []string{TimeDim}, Data: []float64{1, 2}},
		},
		Time:  times,
		Attrs: Attributes{"source": "b", "institution": "UCSC"},
	}
	m, err := Merge(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"hydrometeor_number_concentration", "CAS_size"}; !reflect.DeepEqual(m.VarNames(), want) {
		t.Errorf("variables = %v", m.VarNames())
	}
	if want := (Attributes{"source": "a", "institution": "UCSC"}); !reflect.DeepEqual(m.Attrs, want) {
		t.Errorf("attributes = %v", m.Attrs)
	}
	if n, _ := m.DimLen("bin"); n != 3 {
		t.Errorf("bin = %d", n)
	}

	b.Vars[1].Data[0] = 5
	var e *NameCollisionError
	if _, err := Merge(a, b); !errors.As(err, &e) {
		t.Errorf("conflicting variables: got %v, want NameCollisionError", err)
	}
	c := &Dataset{Dims: []Dimension{{Name: TimeDim, Len: 3}}}
	if _, err := Merge(a, c); err == nil {
		t.Error("mismatched dimension lengths should fail")
	}
}

func TestConcat(t *testing.T) {
	profile := func(hour int, temp ...float64) *Dataset {
		return &Dataset{
			Dims: []Dimension{{Name: TimeDim, Len: 1}, {Name: "sample", Len: len(temp)}},
			Vars: []*Variable{
				{Name: "T", Dims: []string{TimeDim, "sample"}, Data: temp, Attrs: Attributes{"units": "C"}},
				{Name: "lat", Dims: []string{TimeDim}, Data: []float64{float64(hour)}},
			},
			Time:  []time.Time{time.Date(2020, 1, 19, hour, 0, 0, 0, time.UTC)},
			Attrs: Attributes{"hour": float64(hour)},
		}
	}
	c, err := Concat(profile(15, 27, 26, 25), profile(14, 28, 27))
	if err != nil {
		t.Fatal(err)
	}
	if c.Time[0].Hour() != 14 || c.Time[1].Hour() != 15 {
		t.Errorf("times not sorted: %v", c.Time)
	}
	if want := []Dimension{{Name: TimeDim, Len: 2}, {Name: "sample", Len: 3}}; !reflect.DeepEqual(c.Dims, want) {
		t.Errorf("dims = %v", c.Dims)
	}
	got := c.Var("T").Data
	want := []float64{28, 27, math.NaN(), 27, 26, 25}
	for i := range want {
		if got[i] != want[i] && !(math.IsNaN(got[i]) && math.IsNaN(want[i])) {
			t.Errorf("T = %v, want %v", got, want)
			break
		}
	}
	if c.Attrs["hour"] != 14. {
		t.Errorf("attributes should come from the earliest dataset: %v", c.Attrs)
	}
	if _, err := Concat(&Dataset{}); err == nil {
		t.Error("dataset without time should fail")
	}
}
