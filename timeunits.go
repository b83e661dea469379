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
	"strings"
	"time"
)

// epochFormats are the reference-time layouts accepted after "since".
var epochFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02 15:04",
	"2006-1-2 15:4:5",
	"2006-1-2",
}

var timeSteps = map[string]time.Duration{
	"days":    24 * time.Hour,
	"day":     24 * time.Hour,
	"d":       24 * time.Hour,
	"hours":   time.Hour,
	"hour":    time.Hour,
	"hrs":     time.Hour,
	"h":       time.Hour,
	"minutes": time.Minute,
	"minute":  time.Minute,
	"mins":    time.Minute,
	"min":     time.Minute,
	"seconds": time.Second,
	"second":  time.Second,
	"secs":    time.Second,
	"sec":     time.Second,
	"s":       time.Second,
}

// ParseTimeUnits parses a CF time unit string such as
// "seconds since 2020-01-01" into its step and UTC epoch.
func ParseTimeUnits(s string) (time.Duration, time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(s), " since ", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, fmt.Errorf("time units %q are not of the form '<unit> since <epoch>'", s)
	}
	step, ok := timeSteps[strings.ToLower(strings.TrimSpace(parts[0]))]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("unsupported time step %q", parts[0])
	}
	ref := strings.TrimSpace(parts[1])
	ref = strings.TrimSuffix(ref, " UTC")
	ref = strings.TrimSuffix(ref, " utc")
	for _, layout := range epochFormats {
		if t, err := time.Parse(layout, ref); err == nil {
			return step, t.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("unparseable epoch %q", parts[1])
}

// DecodeTimes converts offsets in the given CF units to absolute
// times. NaN offsets become the zero time.
func DecodeTimes(values []float64, units string) ([]time.Time, error) {
	step, epoch, err := ParseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	o := make([]time.Time, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		o[i] = epoch.Add(time.Duration(math.Round(v * float64(step))))
	}
	return o, nil
}

// EncodeTimes converts absolute times to offsets in the given CF units.
// Zero times become NaN.
func EncodeTimes(times []time.Time, units string) ([]float64, error) {
	step, epoch, err := ParseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	o := make([]float64, len(times))
	for i, t := range times {
		if t.IsZero() {
			o[i] = math.NaN()
			continue
		}
		d := t.Sub(epoch)
		o[i] = float64(d/step) + float64(d%step)/float64(step)
	}
	return o, nil
}
