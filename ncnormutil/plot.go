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

package ncnormutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/eurec4a/ncnorm/axbt"
	"github.com/eurec4a/ncnorm/ncio"
	"gonum.org/v1/plot/plotter"
)

// PlotAXBT plots the Level_2 profile files and the Level_3 file as
// temperature against depth and returns the paths of the PDF files
// written to outDir. Either input may be empty to skip its figure.
func PlotAXBT(level2 []string, level3, outDir string) ([]string, error) {
	if len(level2) == 0 && level3 == "" {
		return nil, fmt.Errorf("ncnorm: no AXBT files to plot")
	}
	if err := os.MkdirAll(outDir, os.ModePerm); err != nil {
		return nil, err
	}
	var written []string
	if level3 != "" {
		ds, err := ncio.Read(level3)
		if err != nil {
			return written, err
		}
		lines, err := axbt.Lines(ds, "temperature", "depth")
		if err != nil {
			return written, fmt.Errorf("ncnorm: %s: %w", level3, err)
		}
		path := filepath.Join(outDir, "AXBT_Level_3.pdf")
		if err := savePlot("ATOMIC AXBT profiles: Level 3", lines, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if len(level2) > 0 {
		var lines []plotter.XYs
		for _, f := range level2 {
			ds, err := ncio.Read(f)
			if err != nil {
				return written, err
			}
			l, err := axbt.Lines(ds, "temperature", "depth")
			if err != nil {
				return written, fmt.Errorf("ncnorm: %s: %w", f, err)
			}
			lines = append(lines, l...)
		}
		path := filepath.Join(outDir, "AXBT_Level_2.pdf")
		if err := savePlot("ATOMIC AXBT profiles: Level 2", lines, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func savePlot(title string, lines []plotter.XYs, path string) error {
	p, err := axbt.Plot(title, lines)
	if err != nil {
		return err
	}
	return axbt.Save(p, path)
}
