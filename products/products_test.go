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

package products

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/eurec4a/ncnorm"
	"github.com/kr/pretty"
)

func TestCatalogue(t *testing.T) {
	ps, err := Catalogue()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, p := range ps {
		names = append(names, p.Name)
		for i, s := range p.Specs {
			if _, err := ncnorm.NewNormalizer(s); err != nil {
				t.Errorf("%s spec %d: %v", p.Name, i, err)
			}
		}
	}
	want := []string{"axbt", "clouds", "flight-level", "microphysics", "remote-sensing", "wsra"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("catalogue = %v, want %v", names, want)
	}
}

func TestFlightLevel(t *testing.T) {
	p, err := Builtin("flight-level")
	if err != nil {
		t.Fatal(err)
	}
	s := p.Level2()
	if s == nil {
		t.Fatal("no Level_2 pass")
	}
	if len(s.Rename) != 24 {
		t.Errorf("%d renames", len(s.Rename))
	}
	if s.Target("TRadD.1") != "sst" || s.Target("HUM_REL.d") != "RH" {
		t.Error("wrong rename targets")
	}
	if s.Time == nil || s.Time.Rollover() != 5 || !s.Select {
		t.Errorf("time = %+v, select = %v", s.Time, s.Select)
	}
	if len(s.Derive) != 2 || s.Derive[1].Attrs["units"] != "g/kg" {
		t.Errorf("derive = %# v", pretty.Formatter(s.Derive))
	}
	d, err := p.FileDate("/data/20200213I1_AC.nc")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Equal(time.Date(2020, 2, 13, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v", d)
	}
	if _, err := p.FileDate("summary.nc"); err == nil {
		t.Error("expected an error for a file name without a date")
	}
}

func TestAXBT(t *testing.T) {
	p, err := Builtin("axbt")
	if err != nil {
		t.Fatal(err)
	}
	if p.Grouping() != All || p.AXBT == nil {
		t.Fatalf("grouping %s, axbt %v", p.Grouping(), p.AXBT)
	}
	l3 := p.Level3()
	name, err := l3.FileName(time.Date(2020, 1, 19, 15, 0, 0, 0, time.UTC), "")
	if err != nil {
		t.Fatal(err)
	}
	if name != "P3_AXBT_Level_3_0.5.2.nc" {
		t.Errorf("Level_3 name = %s", name)
	}
	if got := p.Level2().Target(p.AXBT.Temperature); got != "temperature" {
		t.Errorf("temperature is renamed to %s", got)
	}
}

func TestMicrophysicsNaming(t *testing.T) {
	p, err := Builtin("microphysics")
	if err != nil {
		t.Fatal(err)
	}
	// The first sample is after midnight UTC on the following day.
	name, err := p.Specs[0].FileName(time.Date(2020, 2, 10, 1, 0, 0, 0, time.UTC), "data/hydrometeor_20200209.nc")
	if err != nil {
		t.Fatal(err)
	}
	if want := "EUREC4A_ATOMIC_P3_microphysics_20200209_v1.0.nc"; name != want {
		t.Errorf("name = %s, want %s", name, want)
	}
	if len(p.Dates) != 6 || len(p.Members) != 5 {
		t.Errorf("%d dates, %d members", len(p.Dates), len(p.Members))
	}
}

func TestBuiltinUnknown(t *testing.T) {
	_, err := Builtin("dropsondes")
	if err == nil || !strings.Contains(err.Error(), "flight-level") {
		t.Errorf("err = %v", err)
	}
}

const yamlProduct = `
name: sst
inputs: ["*.nc"]
specs:
  - tier: Level_2
    convert:
      - variable: sst
        from: C
        to: K
        scale: 1
        offset: 273.15
    global:
      campaign: EUREC4A
      version: v2
    naming:
      prefix: [P3, SST]
    encoding:
      units: seconds since 2020-01-01
      width: 32
`

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	y := filepath.Join(dir, "sst.yaml")
	if err := os.WriteFile(y, []byte(yamlProduct), 0644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadFile(y)
	if err != nil {
		t.Fatal(err)
	}
	want := ncnorm.ConversionRule{Variable: "sst", From: "C", To: "K", Scale: 1, Offset: 273.15}
	if p.Grouping() != ByFile || len(p.Specs) != 1 || !reflect.DeepEqual(p.Specs[0].Convert[0], want) {
		t.Errorf("product: %# v", pretty.Formatter(p))
	}
	p.SetVersion("v3")
	if p.Version() != "v3" {
		t.Errorf("version = %s", p.Version())
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("name = \"x\"\ninputs = [\"*.nc\"]\ncolour = \"red\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad); err == nil || !strings.Contains(err.Error(), "colour") {
		t.Errorf("unknown key: err = %v", err)
	}

	// A duplicate rename target is rejected when the file is loaded.
	dup := filepath.Join(dir, "dup.yaml")
	s := strings.Replace(yamlProduct, "    convert:", "    rename:\n      - {from: a, to: x}\n      - {from: b, to: x}\n    convert:", 1)
	if err := os.WriteFile(dup, []byte(s), 0644); err != nil {
		t.Fatal(err)
	}
	var nce *ncnorm.NameCollisionError
	if _, err := LoadFile(dup); !errors.As(err, &nce) || nce.Name != "x" {
		t.Errorf("duplicate target: err = %v", err)
	}

	if _, err := LoadFile(filepath.Join(dir, "sst.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestMemberPrepare(t *testing.T) {
	ds := &ncnorm.Dataset{
		Dims: []ncnorm.Dimension{{Name: ncnorm.TimeDim, Len: 1}, {Name: "size", Len: 2}, {Name: "bnds", Len: 2}},
		Vars: []*ncnorm.Variable{
			{Name: "size", Dims: []string{"size"}, Data: []float64{1, 2}},
			{Name: "size_bnds", Dims: []string{"size", "bnds"}, Data: []float64{0.5, 1.5, 1.5, 2.5}},
			{Name: "number_concentration", Dims: []string{ncnorm.TimeDim, "size"}, Data: []float64{10, 20}},
		},
		Time: []time.Time{time.Date(2020, 1, 31, 12, 0, 0, 0, time.UTC)},
	}
	m := Member{
		Name:         "CAS",
		Prefix:       []string{"number_concentration", "size", "size_bnds"},
		Descriptions: map[string]string{"size": "Bin-mean sizes measured by [MEMBER] instrument"},
	}
	if err := m.Prepare(ds); err != nil {
		t.Fatal(err)
	}
	if got, want := ds.VarNames(), []string{"CAS_size", "CAS_size_bnds", "CAS_number_concentration"}; !reflect.DeepEqual(got, want) {
		t.Errorf("names = %v", got)
	}
	if d := ds.Var("CAS_size_bnds").Dims; !reflect.DeepEqual(d, []string{"CAS_size", "bnds"}) {
		t.Errorf("dims = %v", d)
	}
	if s := ds.Var("CAS_size").Attrs.String("description"); s != "Bin-mean sizes measured by CAS instrument" {
		t.Errorf("description = %q", s)
	}
	if err := ds.Check(); err != nil {
		t.Error(err)
	}

	var mve *ncnorm.MissingVariableError
	if err := (&Member{Name: "PIP", Prefix: []string{"effective_radius"}}).Prepare(ds); !errors.As(err, &mve) {
		t.Errorf("err = %v", err)
	}
}
