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

import "fmt"

// MissingVariableError is returned when a variable required by a
// TransformSpec is absent from the dataset.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("ncnorm: missing required variable %q", e.Name)
}

// NameCollisionError is returned when a rename or derived-variable
// target is already occupied.
type NameCollisionError struct {
	Name   string
	Reason string
}

func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("ncnorm: name collision on %q: %s", e.Name, e.Reason)
}

// InvalidTimeDataError is returned when a dataset has no usable
// timestamps.
type InvalidTimeDataError struct {
	Reason string
}

func (e *InvalidTimeDataError) Error() string {
	return "ncnorm: invalid time data: " + e.Reason
}

// SpecValidationError is returned for a malformed TransformSpec.
type SpecValidationError struct {
	Field  string
	Reason string
}

func (e *SpecValidationError) Error() string {
	return fmt.Sprintf("ncnorm: invalid transformation spec: %s: %s", e.Field, e.Reason)
}
