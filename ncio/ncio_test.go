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

package ncio

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/eurec4a/ncnorm"
	"github.com/kr/pretty"
	"gonum.org/v1/gonum/floats"
)

func testDataset() *ncnorm.Dataset {
	return &ncnorm.Dataset{
		Dims: []ncnorm.Dimension{{Name: ncnorm.TimeDim, Len: 3}, {Name: "bin", Len: 2}},
		Vars: []*ncnorm.Variable{
			{
				Name:  "sst",
				Dims:  []string{ncnorm.TimeDim},
				Data:  []float64{299.5, math.NaN(), 300.25},
				Attrs: ncnorm.Attributes{"units": "K", "AOC_name": "TRadD.1"},
			},
			{
				Name: "n",
				Dims: []string{ncnorm.TimeDim, "bin"},
				Data: []float64{1, 2, 3, 4, 5, 6},
				Type: ncnorm.Float32,
			},
			{
				Name:  "edges",
				Dims:  []string{"bin"},
				Data:  []float64{0.5, 1.5},
				Attrs: ncnorm.Attributes{"bounds": []float64{0, 1, 2}},
			},
		},
		Time: []time.Time{
			time.Date(2020, 2, 14, 2, 0, 0, 0, time.UTC),
			time.Date(2020, 2, 14, 2, 0, 1, 0, time.UTC),
			time.Date(2020, 2, 14, 2, 0, 2, 0, time.UTC),
		},
		TimeAttrs: ncnorm.Attributes{"standard_name": "time"},
		Attrs: ncnorm.Attributes{
			"campaign":      "EUREC4A",
			"creation_date": "2020-03-01 12:30:00 UTC",
		},
	}
}

func checkRoundTrip(t *testing.T, path string) {
	want := testDataset()
	got, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Dims, want.Dims) {
		t.Errorf("dims: %s", pretty.Diff(got.Dims, want.Dims))
	}
	if !reflect.DeepEqual(got.VarNames(), want.VarNames()) {
		t.Errorf("variables: %v", got.VarNames())
	}
	if len(got.Time) != 3 {
		t.Fatalf("time = %v", got.Time)
	}
	for i := range want.Time {
		if !got.Time[i].Equal(want.Time[i]) {
			t.Errorf("time[%d] = %v, want %v", i, got.Time[i], want.Time[i])
		}
	}
	if !reflect.DeepEqual(got.TimeAttrs, want.TimeAttrs) {
		t.Errorf("time attributes: %s", pretty.Diff(got.TimeAttrs, want.TimeAttrs))
	}
	sst := got.Var("sst").Data
	if sst[0] != 299.5 || !math.IsNaN(sst[1]) || sst[2] != 300.25 {
		t.Errorf("sst = %v", sst)
	}
	if !reflect.DeepEqual(got.Var("sst").Attrs, want.Var("sst").Attrs) {
		t.Errorf("sst attributes: %s", pretty.Diff(got.Var("sst").Attrs, want.Var("sst").Attrs))
	}
	if n := got.Var("n"); n.Type != ncnorm.Float32 || !floats.Equal(n.Data, want.Var("n").Data) {
		t.Errorf("n = %v (type %d)", n.Data, n.Type)
	}
	if b := got.Var("edges").Attrs["bounds"]; !reflect.DeepEqual(b, []float64{0, 1, 2}) {
		t.Errorf("edges bounds = %v", b)
	}
	if !reflect.DeepEqual(got.Attrs, want.Attrs) {
		t.Errorf("globals: %s", pretty.Diff(got.Attrs, want.Attrs))
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	for _, width := range []int{32, 64} {
		path := filepath.Join(t.TempDir(), "out.nc")
		enc := ncnorm.TimeEncoding{Units: "seconds since 2020-01-01", Width: width}
		if err := WriteFile(path, testDataset(), enc); err != nil {
			t.Fatal(err)
		}
		checkRoundTrip(t, path)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := ncnorm.TimeEncoding{Units: "seconds since 2020-02-14 00:00:00", Width: 64}
	if err := Write(&buf, testDataset(), enc); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "out.nc")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	checkRoundTrip(t, path)
}

func TestWrite32BitFractional(t *testing.T) {
	ds := testDataset()
	ds.Time[1] = ds.Time[1].Add(500 * time.Millisecond)
	var buf bytes.Buffer
	err := Write(&buf, ds, ncnorm.TimeEncoding{Units: "seconds since 2020-01-01", Width: 32})
	if err == nil {
		t.Fatal("fractional seconds should not be silently truncated")
	}
	if buf.Len() != 0 {
		t.Error("partial output written")
	}
	if err := Write(&buf, ds, ncnorm.TimeEncoding{Units: "seconds since 2020-01-01"}); err == nil {
		t.Error("width 0 should fail")
	}
}

func TestReadFillValues(t *testing.T) {
	ds := &ncnorm.Dataset{
		Dims: []ncnorm.Dimension{{Name: "x", Len: 4}},
		Vars: []*ncnorm.Variable{
			{
				Name:  "T",
				Dims:  []string{"x"},
				Data:  []float64{-999, 20, 2100, -9999},
				Attrs: ncnorm.Attributes{"_FillValue": -9999., "missing_value": -999., "units": "C"},
			},
			{
				Name:  "packed",
				Dims:  []string{"x"},
				Data:  []float64{0, 1, 2, 3},
				Attrs: ncnorm.Attributes{"scale_factor": 0.5, "add_offset": 10.},
			},
		},
	}
	path := filepath.Join(t.TempDir(), "fill.nc")
	if err := WriteFile(path, ds, ncnorm.TimeEncoding{Units: "seconds since 2020-01-01", Width: 64}); err != nil {
		t.Fatal(err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	T := got.Var("T")
	if !math.IsNaN(T.Data[0]) || T.Data[1] != 20 || T.Data[2] != 2100 || !math.IsNaN(T.Data[3]) {
		t.Errorf("T = %v", T.Data)
	}
	if _, ok := T.Attrs["_FillValue"]; ok {
		t.Error("_FillValue should be consumed")
	}
	if p := got.Var("packed").Data; !floats.Equal(p, []float64{10, 10.5, 11, 11.5}) {
		t.Errorf("packed = %v", p)
	}
	if got.Time != nil {
		t.Error("no time coordinate expected")
	}
}

// writeProviderFile writes a classic file with integer, byte and
// character variables the way instrument providers deliver them.
func writeProviderFile(t *testing.T, path string) {
	h := cdf.NewHeader([]string{"time", "strlen"}, []int{3, 8})
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", "seconds since 2020-02-03")
	h.AddVariable("flag", []string{"time"}, []int32{0})
	h.AddAttribute("flag", "_FillValue", []int32{-9})
	h.AddVariable("qc", []string{"time"}, []uint8{0})
	h.AddVariable("station", []string{"strlen"}, "")
	h.AddAttribute("station", "long_name", "launch station")
	h.Define()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	nc, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}
	for v, data := range map[string]interface{}{
		"time":    []float64{0, 1, 2},
		"flag":    []int32{1, -9, 3},
		"qc":      []uint8{255, 0, 2},
		"station": "BGI\x00\x00\x00\x00\x00",
	} {
		if err := writeVar(nc, v, data); err != nil {
			t.Fatal(err)
		}
	}
	if err := cdf.UpdateNumRecs(f); err != nil {
		t.Fatal(err)
	}
}

func checkProviderVars(t *testing.T, ds *ncnorm.Dataset) {
	t.Helper()
	if !reflect.DeepEqual(ds.VarNames(), []string{"flag", "qc", "station"}) {
		t.Fatalf("variables = %v", ds.VarNames())
	}
	flag := ds.Var("flag")
	if flag.Type != ncnorm.Int32 || flag.Data[0] != 1 || !math.IsNaN(flag.Data[1]) || flag.Data[2] != 3 {
		t.Errorf("flag = %v (type %d)", flag.Data, flag.Type)
	}
	if fv := flag.Attrs["_FillValue"]; fv != -9. {
		t.Errorf("flag _FillValue = %v", fv)
	}
	if qc := ds.Var("qc"); qc.Type != ncnorm.Int8 || !floats.Equal(qc.Data, []float64{-1, 0, 2}) {
		t.Errorf("qc = %v (type %d)", qc.Data, qc.Type)
	}
	station := ds.Var("station")
	if station.Type != ncnorm.Char || station.Text() != "BGI" {
		t.Errorf("station = %q (type %d)", station.Text(), station.Type)
	}
	if station.Attrs.String("long_name") != "launch station" {
		t.Errorf("station attributes = %v", station.Attrs)
	}
}

func TestIntegerAndCharRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "provider.nc")
	writeProviderFile(t, in)
	ds, err := Read(in)
	if err != nil {
		t.Fatal(err)
	}
	checkProviderVars(t, ds)

	out := filepath.Join(dir, "out.nc")
	if err := WriteFile(out, ds, ncnorm.TimeEncoding{Units: "seconds since 2020-02-03", Width: 32}); err != nil {
		t.Fatal(err)
	}
	got, err := Read(out)
	if err != nil {
		t.Fatal(err)
	}
	checkProviderVars(t, got)

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	nc, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	for v, want := range map[string]interface{}{
		"flag":    []int32{},
		"qc":      []uint8{},
		"station": "",
	} {
		if z := nc.Header.ZeroValue(v, 0); reflect.TypeOf(z) != reflect.TypeOf(want) {
			t.Errorf("%s stored as %T, want %T", v, z, want)
		}
	}
	if fv := nc.Header.GetAttribute("flag", "_FillValue"); !reflect.DeepEqual(fv, []int32{-9}) {
		t.Errorf("flag _FillValue = %#v", fv)
	}
	if fv := nc.Header.GetAttribute("qc", "_FillValue"); fv != nil {
		t.Errorf("qc has no missing values but _FillValue = %v", fv)
	}
}

func TestWriteIntegerPromotion(t *testing.T) {
	ds := &ncnorm.Dataset{
		Dims: []ncnorm.Dimension{{Name: "x", Len: 3}},
		Vars: []*ncnorm.Variable{
			{Name: "whole", Dims: []string{"x"}, Data: []float64{1, math.NaN(), 3}, Type: ncnorm.Int16},
			{Name: "frac", Dims: []string{"x"}, Data: []float64{1, 1.5, 2}, Type: ncnorm.Int16},
			{Name: "big", Dims: []string{"x"}, Data: []float64{1, 200, 2}, Type: ncnorm.Int8},
		},
	}
	path := filepath.Join(t.TempDir(), "ints.nc")
	if err := WriteFile(path, ds, ncnorm.TimeEncoding{Units: "seconds since 2020-01-01", Width: 64}); err != nil {
		t.Fatal(err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if v := got.Var("whole"); v.Type != ncnorm.Int16 || v.Data[0] != 1 || !math.IsNaN(v.Data[1]) || v.Data[2] != 3 {
		t.Errorf("whole = %v (type %d)", v.Data, v.Type)
	}
	if v := got.Var("frac"); v.Type != ncnorm.Float64 || !floats.Equal(v.Data, []float64{1, 1.5, 2}) {
		t.Errorf("frac = %v (type %d)", v.Data, v.Type)
	}
	if v := got.Var("big"); v.Type != ncnorm.Float64 || !floats.Equal(v.Data, []float64{1, 200, 2}) {
		t.Errorf("big = %v (type %d)", v.Data, v.Type)
	}
}

func TestReadNotNetCDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.nc")
	if err := os.WriteFile(path, []byte("hello, world"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Error("expected an error")
	}
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		in    interface{}
		data  []float64
		shape []int
		ok    bool
	}{
		{in: float32(2), data: []float64{2}, ok: true},
		{in: []int16{1, 2}, data: []float64{1, 2}, shape: []int{2}, ok: true},
		{in: [][]float64{{1, 2, 3}, {4, 5, 6}}, data: []float64{1, 2, 3, 4, 5, 6}, shape: []int{2, 3}, ok: true},
		{in: [][]float32{{1, 2}, {3}}, ok: false},
		{in: []string{"a"}, ok: false},
	}
	for i, test := range tests {
		data, shape, ok := flatten(test.in)
		if ok != test.ok {
			t.Errorf("%d: ok = %v", i, ok)
			continue
		}
		if !ok {
			continue
		}
		if !floats.Equal(data, test.data) || !reflect.DeepEqual(shape, test.shape) {
			t.Errorf("%d: got %v %v, want %v %v", i, data, shape, test.data, test.shape)
		}
	}
}
