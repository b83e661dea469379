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
	"strings"

	"github.com/ctessum/unit"
)

// knownUnits maps unit labels that appear in campaign files to their
// physical dimensions. Angles are dimensionless.
var knownUnits = map[string]unit.Dimensions{
	"K":             unit.Kelvin,
	"C":             unit.Kelvin,
	"degC":          unit.Kelvin,
	"deg_C":         unit.Kelvin,
	"celsius":       unit.Kelvin,
	"Pa":            unit.Pascal,
	"hPa":           unit.Pascal,
	"mb":            unit.Pascal,
	"mbar":          unit.Pascal,
	"m":             unit.Meter,
	"km":            unit.Meter,
	"ft":            unit.Meter,
	"m/s":           unit.MeterPerSecond,
	"m s-1":         unit.MeterPerSecond,
	"kt":            unit.MeterPerSecond,
	"knots":         unit.MeterPerSecond,
	"s":             unit.Second,
	"1":             unit.Dimless,
	"%":             unit.Dimless,
	"g/kg":          unit.Dimless,
	"kg/kg":         unit.Dimless,
	"rad":           unit.Dimless,
	"radians":       unit.Dimless,
	"deg":           unit.Dimless,
	"degree":        unit.Dimless,
	"degrees":       unit.Dimless,
	"degrees_north": unit.Dimless,
	"degrees_east":  unit.Dimless,
	"deg_north":     unit.Dimless,
	"deg_east":      unit.Dimless,
}

// normalizeUnits trims surrounding whitespace from a units label.
// Comparisons are otherwise exact: "K" and "k" differ.
func normalizeUnits(s string) string { return strings.TrimSpace(s) }

// checkUnitDimensions returns an error if both labels are known and
// describe different physical dimensions. Unknown labels are accepted.
func checkUnitDimensions(from, to string) error {
	a, okA := knownUnits[normalizeUnits(from)]
	b, okB := knownUnits[normalizeUnits(to)]
	if !okA || !okB {
		return nil
	}
	if !a.Matches(b) {
		return fmt.Errorf("units %q [%v] and %q [%v] are not dimensionally compatible", from, a, to, b)
	}
	return nil
}
