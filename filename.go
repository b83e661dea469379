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
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// CreationDateFormat is the layout of the creation_date global attribute.
const CreationDateFormat = "2006-01-02 15:04:05 UTC"

// FileName returns the output file name for a dataset whose first valid
// timestamp is first and whose input file is source. It depends only on
// its arguments.
func (s *TransformSpec) FileName(first time.Time, source string) (string, error) {
	n := s.Naming
	var stamp string
	switch {
	case n.Fixed != "":
		stamp = n.Fixed
	case n.SourcePattern != "":
		re, err := regexp.Compile(n.SourcePattern)
		if err != nil {
			return "", &SpecValidationError{Field: "naming.source_pattern", Reason: err.Error()}
		}
		m := re.FindStringSubmatch(filepath.Base(source))
		if len(m) < 2 {
			return "", fmt.Errorf("ncnorm: input name %q does not match %q", filepath.Base(source), n.SourcePattern)
		}
		stamp = m[1]
	default:
		if first.IsZero() {
			return "", &InvalidTimeDataError{Reason: "no valid timestamp to name the output by"}
		}
		first = first.UTC()
		stamp = first.Format("20060102")
		if n.Time {
			stamp += "_" + first.Format("150405")
		}
	}
	ext := n.Ext
	if ext == "" {
		ext = ".nc"
	} else if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	parts := append(append([]string(nil), n.Prefix...), stamp, s.Global.Version)
	return strings.Join(parts, "_") + ext, nil
}
