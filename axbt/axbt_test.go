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

package axbt

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/eurec4a/ncnorm"
	"github.com/kr/pretty"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

func init() {
	l := logrus.New()
	l.Out = io.Discard
	Log = l
}

var nan = math.NaN()

// launches is three merged launches; the second is shorter than the
// others and the third has no usable samples.
func launches() *ncnorm.Dataset {
	return &ncnorm.Dataset{
		Dims: []ncnorm.Dimension{{Name: ncnorm.TimeDim, Len: 3}, {Name: "sample", Len: 4}},
		Vars: []*ncnorm.Variable{
			{
				Name:  "T",
				Dims:  []string{ncnorm.TimeDim, "sample"},
				Data:  []float64{27, 26, nan, 20, 28, 25, nan, nan, nan, nan, nan, nan},
				Attrs: ncnorm.Attributes{"units": "C"},
			},
			{
				Name:  "depth",
				Dims:  []string{ncnorm.TimeDim, "sample"},
				Data:  []float64{0, 10, 20, 30, 0, 5, nan, nan, 0, 1, 2, 3},
				Attrs: ncnorm.Attributes{"units": "m"},
			},
			{Name: "lat", Dims: []string{ncnorm.TimeDim}, Data: []float64{13.1, 13.2, 13.3}},
		},
		Time: []time.Time{
			time.Date(2020, 1, 19, 15, 0, 0, 0, time.UTC),
			time.Date(2020, 1, 19, 14, 0, 0, 0, time.UTC),
			time.Date(2020, 1, 19, 16, 0, 0, 0, time.UTC),
		},
		Attrs: ncnorm.Attributes{"source": "AXBT"},
	}
}

func TestSplit(t *testing.T) {
	profiles, err := Split(launches(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 2 {
		t.Fatalf("got %d profiles, want 2", len(profiles))
	}
	p := profiles[0]
	wantDims := []ncnorm.Dimension{{Name: ncnorm.TimeDim, Len: 1}, {Name: "depth", Len: 3}}
	if !reflect.DeepEqual(p.Dims, wantDims) {
		t.Errorf("dims: %s", pretty.Diff(p.Dims, wantDims))
	}
	if d := p.Var("T").Data; !floats.Equal(d, []float64{27, 26, 20}) {
		t.Errorf("T = %v", d)
	}
	if d := p.Var("depth").Data; !floats.Equal(d, []float64{0, 10, 30}) {
		t.Errorf("depth = %v", d)
	}
	if v := p.Var("lat"); !reflect.DeepEqual(v.Dims, []string{ncnorm.TimeDim}) || v.Data[0] != 13.1 {
		t.Errorf("lat = %+v", v)
	}
	if !p.Time[0].Equal(time.Date(2020, 1, 19, 15, 0, 0, 0, time.UTC)) {
		t.Errorf("time = %v", p.Time)
	}
	if n, _ := profiles[1].DimLen("depth"); n != 2 {
		t.Errorf("second profile has %d levels", n)
	}
}

func TestSplitErrors(t *testing.T) {
	ds := launches()
	ds.RemoveVar("depth")
	if _, err := Split(ds, Config{}); err == nil {
		t.Error("expected a missing variable error")
	}
	ds = launches()
	ds.Time = nil
	if _, err := Split(ds, Config{}); err == nil {
		t.Error("expected an invalid time error")
	}
}

func TestGrid(t *testing.T) {
	g, err := Config{}.Grid()
	if err != nil {
		t.Fatal(err)
	}
	if len(g) != 10000 {
		t.Fatalf("grid has %d levels", len(g))
	}
	if g[0] != 0 || math.Abs(g[len(g)-1]-999.9) > 1e-9 || math.Abs(g[1]-0.1) > 1e-12 {
		t.Errorf("grid = %v ... %v", g[:2], g[len(g)-1])
	}
	if _, err := (Config{Step: 5, MaxDepth: 4}).Grid(); err == nil {
		t.Error("expected an error for a one-level grid")
	}
}

func TestInterpolate(t *testing.T) {
	profiles, err := Split(launches(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	grid, err := Config{Step: 5, MaxDepth: 40}.Grid()
	if err != nil {
		t.Fatal(err)
	}
	ds, err := Interpolate(profiles, "T", "depth", grid)
	if err != nil {
		t.Fatal(err)
	}
	wantDims := []ncnorm.Dimension{{Name: ncnorm.TimeDim, Len: 2}, {Name: "depth", Len: 8}}
	if !reflect.DeepEqual(ds.Dims, wantDims) {
		t.Errorf("dims: %s", pretty.Diff(ds.Dims, wantDims))
	}
	// Launches are ordered by time, so the short 14:00 profile is first.
	want := []float64{
		28, 25, nan, nan, nan, nan, nan, nan,
		27, 26.5, 26, 24.5, 23, 21.5, 20, nan,
	}
	if !floats.EqualApprox(nanToZero(ds.Var("T").Data), nanToZero(want), 1e-12) {
		t.Errorf("T = %v", ds.Var("T").Data)
	}
	if d := ds.Var("depth").Data; !floats.Equal(d, grid) {
		t.Errorf("depth = %v", d)
	}
	if d := ds.Var("lat").Data; !floats.Equal(d, []float64{13.2, 13.1}) {
		t.Errorf("lat = %v", d)
	}
	if ds.Var("T").Attrs.String("units") != "C" {
		t.Error("attributes not carried")
	}
}

func nanToZero(x []float64) []float64 {
	o := make([]float64, len(x))
	for i, v := range x {
		if math.IsNaN(v) {
			v = -1
		}
		o[i] = v
	}
	return o
}

func TestPlot(t *testing.T) {
	profiles, err := Split(launches(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	lines, err := Lines(profiles[0], "T", "depth")
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || len(lines[0]) != 3 || lines[0][2].X != 20 || lines[0][2].Y != 30 {
		t.Errorf("lines = %v", lines)
	}

	grid := []float64{0, 10, 20, 30}
	ds, err := Interpolate(profiles, "T", "depth", grid)
	if err != nil {
		t.Fatal(err)
	}
	if lines, err = Lines(ds, "T", "depth"); err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || len(lines[0]) != 1 || len(lines[1]) != 4 {
		t.Errorf("lines = %v", lines)
	}

	p, err := Plot("ATOMIC AXBT profiles: Level 3", lines)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "AXBT_Level_3.pdf")
	if err := Save(p, path); err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Errorf("plot not written: %v", err)
	}
}
