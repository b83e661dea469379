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

// Package axbt turns merged airborne expendable bathythermograph (AXBT)
// launches into per-launch temperature profiles and a gridded collection.
package axbt

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/eurec4a/ncnorm"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

// Config names the variables and dimensions of AXBT input files and
// sets the uniform depth grid of the gridded product.
type Config struct {
	// Temperature and Depth are the profile variables, along Sample.
	Temperature string `toml:"temperature" yaml:"temperature"`
	Depth       string `toml:"depth" yaml:"depth"`
	Sample      string `toml:"sample" yaml:"sample"`

	// Step is the spacing of the depth grid, which runs from 0 up to
	// but not including MaxDepth.
	Step     float64 `toml:"step" yaml:"step"`
	MaxDepth float64 `toml:"max_depth" yaml:"max_depth"`
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Temperature == "" {
		c.Temperature = "T"
	}
	if c.Depth == "" {
		c.Depth = "depth"
	}
	if c.Sample == "" {
		c.Sample = "sample"
	}
	if c.Step == 0 {
		c.Step = 0.1
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = 1000
	}
	return c
}

// Grid returns the depth grid 0, Step, 2*Step, ... below MaxDepth.
func (c Config) Grid() ([]float64, error) {
	c = c.WithDefaults()
	if c.Step < 0 || c.MaxDepth < 0 {
		return nil, fmt.Errorf("axbt: step %g and maximum depth %g must be positive", c.Step, c.MaxDepth)
	}
	n := int(math.Ceil(c.MaxDepth/c.Step - 1e-9))
	if n < 2 {
		return nil, fmt.Errorf("axbt: depth grid with step %g to %g has fewer than two levels", c.Step, c.MaxDepth)
	}
	return floats.Span(make([]float64, n), 0, float64(n-1)*c.Step), nil
}

// Log receives warnings about launches that are left out.
var Log logrus.FieldLogger = logrus.StandardLogger()

// Split returns one dataset per launch in ds, which holds launches along
// the time dimension. Samples where temperature or depth is missing are
// removed and the sample dimension is renamed to the depth variable's
// name. Launches without a valid time or without any valid sample are
// skipped.
func Split(ds *ncnorm.Dataset, c Config) ([]*ncnorm.Dataset, error) {
	c = c.WithDefaults()
	if len(ds.Time) == 0 {
		return nil, &ncnorm.InvalidTimeDataError{Reason: "AXBT launches have no time coordinate"}
	}
	for _, name := range []string{c.Temperature, c.Depth} {
		if !ds.HasVar(name) {
			return nil, &ncnorm.MissingVariableError{Name: name}
		}
	}

	var profiles []*ncnorm.Dataset
	for i, t := range ds.Time {
		if t.IsZero() {
			Log.WithField("launch", i).Warn("axbt: skipping launch without a valid time")
			continue
		}
		p, err := launch(ds, i)
		if err != nil {
			return nil, err
		}
		temp, depth := p.Var(c.Temperature), p.Var(c.Depth)
		for _, v := range []*ncnorm.Variable{temp, depth} {
			if len(v.Dims) != 1 || v.Dims[0] != c.Sample {
				return nil, fmt.Errorf("axbt: %s has dimensions %v, want [%s] for each launch", v.Name, v.Dims, c.Sample)
			}
		}
		keep := make([]bool, len(temp.Data))
		n := 0
		for j := range keep {
			if !math.IsNaN(temp.Data[j]) && !math.IsNaN(depth.Data[j]) {
				keep[j] = true
				n++
			}
		}
		if n == 0 {
			Log.WithFields(logrus.Fields{"launch": i, "time": t}).Warn("axbt: skipping launch without valid samples")
			continue
		}
		if err := ncnorm.FilterAlong(p, c.Sample, keep); err != nil {
			return nil, err
		}
		if err := ncnorm.RenameDim(p, c.Sample, c.Depth); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if len(profiles) == 0 {
		return nil, &ncnorm.InvalidTimeDataError{Reason: "no AXBT launch has valid samples"}
	}
	return profiles, nil
}

// launch extracts launch i. Variables whose only dimension is time keep
// it with length one; the time dimension is removed from the others.
func launch(ds *ncnorm.Dataset, i int) (*ncnorm.Dataset, error) {
	p := &ncnorm.Dataset{
		Attrs:     ds.Attrs.Clone(),
		Time:      []time.Time{ds.Time[i]},
		TimeAttrs: ds.TimeAttrs.Clone(),
	}
	for _, d := range ds.Dims {
		if d.Name == ncnorm.TimeDim {
			p.Dims = append(p.Dims, ncnorm.Dimension{Name: d.Name, Len: 1})
		} else {
			p.Dims = append(p.Dims, d)
		}
	}
	for _, v := range ds.Vars {
		nv := &ncnorm.Variable{Name: v.Name, Dims: append([]string(nil), v.Dims...), Type: v.Type, Attrs: v.Attrs.Clone()}
		switch {
		case len(v.Dims) == 0 || v.Dims[0] != ncnorm.TimeDim:
			for _, d := range v.Dims {
				if d == ncnorm.TimeDim {
					return nil, fmt.Errorf("axbt: %s has %s as an inner dimension", v.Name, d)
				}
			}
			nv.Data = append([]float64(nil), v.Data...)
		default:
			block := len(v.Data) / len(ds.Time)
			nv.Data = append([]float64(nil), v.Data[i*block:(i+1)*block]...)
			if len(v.Dims) > 1 {
				nv.Dims = nv.Dims[1:]
			}
		}
		p.AddVar(nv)
	}
	return p, p.Check()
}

// Interpolate linearly interpolates the temperature profile of each
// launch onto grid and joins the launches along time in launch order.
// Grid levels outside a profile's depth range are NaN. The result has
// temperature(time, depth) and the depth coordinate; other variables
// along time only, such as position, are carried along.
func Interpolate(profiles []*ncnorm.Dataset, temperature, depth string, grid []float64) (*ncnorm.Dataset, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("axbt: no profiles to interpolate")
	}
	gridded := make([]*ncnorm.Dataset, len(profiles))
	for i, p := range profiles {
		g, err := interpolateProfile(p, temperature, depth, grid)
		if err != nil {
			return nil, err
		}
		gridded[i] = g
	}
	return ncnorm.Concat(gridded...)
}

func interpolateProfile(p *ncnorm.Dataset, temperature, depth string, grid []float64) (*ncnorm.Dataset, error) {
	temp, z := p.Var(temperature), p.Var(depth)
	switch {
	case temp == nil:
		return nil, &ncnorm.MissingVariableError{Name: temperature}
	case z == nil:
		return nil, &ncnorm.MissingVariableError{Name: depth}
	case len(temp.Data) != len(z.Data):
		return nil, fmt.Errorf("axbt: %s and %s have different lengths", temperature, depth)
	}

	type sample struct{ z, t float64 }
	var s []sample
	for i, zi := range z.Data {
		if !math.IsNaN(zi) && !math.IsNaN(temp.Data[i]) {
			s = append(s, sample{z: zi, t: temp.Data[i]})
		}
	}
	sort.SliceStable(s, func(i, j int) bool { return s[i].z < s[j].z })
	var xs, ys []float64
	for i, si := range s {
		if i > 0 && si.z == s[i-1].z {
			continue
		}
		xs = append(xs, si.z)
		ys = append(ys, si.t)
	}

	out := make([]float64, len(grid))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(xs) >= 2 {
		var pl interp.PiecewiseLinear
		if err := pl.Fit(xs, ys); err != nil {
			return nil, fmt.Errorf("axbt: %v", err)
		}
		for i, g := range grid {
			if g >= xs[0] && g <= xs[len(xs)-1] {
				out[i] = pl.Predict(g)
			}
		}
	} else {
		Log.WithField("time", p.Time[0]).Warn("axbt: profile has fewer than two levels")
	}

	g := &ncnorm.Dataset{
		Dims:      []ncnorm.Dimension{{Name: ncnorm.TimeDim, Len: 1}, {Name: depth, Len: len(grid)}},
		Attrs:     p.Attrs.Clone(),
		Time:      append([]time.Time(nil), p.Time...),
		TimeAttrs: p.TimeAttrs.Clone(),
	}
	g.AddVar(&ncnorm.Variable{
		Name:  temperature,
		Dims:  []string{ncnorm.TimeDim, depth},
		Data:  out,
		Type:  temp.Type,
		Attrs: temp.Attrs.Clone(),
	})
	g.AddVar(&ncnorm.Variable{
		Name:  depth,
		Dims:  []string{depth},
		Data:  append([]float64(nil), grid...),
		Type:  z.Type,
		Attrs: z.Attrs.Clone(),
	})
	for _, v := range p.Vars {
		if len(v.Dims) == 1 && v.Dims[0] == ncnorm.TimeDim && !g.HasVar(v.Name) {
			g.AddVar(v.Clone())
		}
	}
	return g, g.Check()
}
