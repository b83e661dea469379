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
	"context"
	"fmt"
	"math"

	"github.com/eurec4a/ncnorm"
	"github.com/eurec4a/ncnorm/archive"
	"github.com/eurec4a/ncnorm/ncio"
)

// Window is the span of UTC hours covered by one flight-level file.
type Window struct {
	File        string
	First, Last int
	// SameDay is true if the last hour is not before the first, so the
	// whole flight falls on one UTC day.
	SameDay bool
}

func (w Window) String() string {
	return fmt.Sprintf("%s: start hour %02d, end hour %02d, same day: %v", w.File, w.First, w.Last, w.SameDay)
}

// FlightWindows returns the first and last valid value of the hour
// variable in each file.
func FlightWindows(ctx context.Context, files []string, hour string) ([]Window, error) {
	windows := make([]Window, 0, len(files))
	for _, f := range files {
		local, err := archive.Fetch(ctx, f)
		if err != nil {
			return nil, err
		}
		ds, err := ncio.Read(local)
		if err != nil {
			return nil, err
		}
		v := ds.Var(hour)
		if v == nil {
			return nil, fmt.Errorf("ncnorm: %s: %w", f, &ncnorm.MissingVariableError{Name: hour})
		}
		first, last := -1, -1
		for i, h := range v.Data {
			if math.IsNaN(h) {
				continue
			}
			if first < 0 {
				first = i
			}
			last = i
		}
		if first < 0 {
			return nil, fmt.Errorf("ncnorm: %s: %w", f, &ncnorm.InvalidTimeDataError{Reason: "no valid " + hour + " values"})
		}
		w := Window{
			File:  f,
			First: int(v.Data[first]),
			Last:  int(v.Data[last]),
		}
		w.SameDay = w.Last >= w.First
		windows = append(windows, w)
	}
	return windows, nil
}
