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
	"fmt"
	"math"

	"github.com/eurec4a/ncnorm"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Lines returns one temperature-depth line per profile in ds, which
// holds either a single profile, temperature(depth), or a gridded
// collection, temperature(time, depth). Missing samples are left out.
func Lines(ds *ncnorm.Dataset, temperature, depth string) ([]plotter.XYs, error) {
	temp, z := ds.Var(temperature), ds.Var(depth)
	if temp == nil {
		return nil, &ncnorm.MissingVariableError{Name: temperature}
	}
	if z == nil {
		return nil, &ncnorm.MissingVariableError{Name: depth}
	}
	n := len(z.Data)
	if n == 0 || len(temp.Data)%n != 0 || temp.Dims[len(temp.Dims)-1] != z.Dims[len(z.Dims)-1] {
		return nil, fmt.Errorf("axbt: %s%v does not vary along %s%v", temperature, temp.Dims, depth, z.Dims)
	}
	var lines []plotter.XYs
	for row := 0; row < len(temp.Data)/n; row++ {
		var xy plotter.XYs
		for i, zi := range z.Data {
			t := temp.Data[row*n+i]
			if math.IsNaN(t) || math.IsNaN(zi) {
				continue
			}
			xy = append(xy, plotter.XY{X: t, Y: zi})
		}
		if len(xy) > 0 {
			lines = append(lines, xy)
		}
	}
	return lines, nil
}

// Plot draws lines as temperature against depth, with depth increasing
// downwards.
func Plot(title string, lines []plotter.XYs) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Temperature (K)"
	p.Y.Label.Text = "Depth (m)"
	p.Y.Scale = plot.InvertedScale{Normalizer: p.Y.Scale}
	for i, xy := range lines {
		l, err := plotter.NewLine(xy)
		if err != nil {
			return nil, fmt.Errorf("axbt: profile %d: %v", i, err)
		}
		l.Color = plotutil.Color(i)
		p.Add(l)
	}
	return p, nil
}

// Save writes p to path. The format follows the file extension, e.g.
// ".pdf" or ".png".
func Save(p *plot.Plot, path string) error {
	return p.Save(6*vg.Inch, 8*vg.Inch, path)
}
