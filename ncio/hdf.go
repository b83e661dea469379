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
	"fmt"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/eurec4a/ncnorm"
)

// readHDF reads the root group of a NetCDF-4 file.
func readHDF(path string) (*ncnorm.Dataset, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer nc.Close()

	ds := &ncnorm.Dataset{Attrs: hdfAttributes(nc.Attributes())}
	for _, name := range nc.ListVariables() {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %v", name, err)
		}
		vals, err := vg.Values()
		if err != nil {
			return nil, fmt.Errorf("variable %s: %v", name, err)
		}
		data, shape, ok := flatten(vals)
		if !ok {
			Log.WithField("variable", name).Warnf("ncio: skipping variable of type %s", vg.GoType())
			continue
		}
		dims := vg.Dimensions()
		if len(dims) != len(shape) {
			return nil, fmt.Errorf("variable %s has %d dimensions but %d-dimensional data", name, len(dims), len(shape))
		}
		for i, d := range dims {
			if n, ok := ds.DimLen(d); ok && n != shape[i] {
				return nil, fmt.Errorf("variable %s: dimension %s has length %d, previously %d", name, d, shape[i], n)
			} else if !ok {
				ds.SetDim(d, shape[i])
			}
		}
		typ := ncnorm.Float64
		switch vg.GoType() {
		case "float32":
			typ = ncnorm.Float32
		case "int32":
			typ = ncnorm.Int32
		case "int16":
			typ = ncnorm.Int16
		case "int8":
			typ = ncnorm.Int8
		}
		ds.AddVar(&ncnorm.Variable{
			Name:  name,
			Dims:  append([]string(nil), dims...),
			Data:  data,
			Type:  typ,
			Attrs: hdfAttributes(vg.Attributes()),
		})
	}
	return ds, nil
}

func hdfAttributes(am api.AttributeMap) ncnorm.Attributes {
	a := make(ncnorm.Attributes)
	if am == nil {
		return a
	}
	for _, k := range am.Keys() {
		val, has := am.Get(k)
		if !has {
			continue
		}
		if v, ok := attributeValue(val); ok {
			a[k] = v
		}
	}
	return a
}

// flatten converts a numeric scalar or (nested) slice into row-major
// float64 data and its shape. It reports false for non-numeric values
// and ragged slices.
func flatten(val interface{}) ([]float64, []int, bool) {
	if f, _ := toFloat64(val); f != nil {
		rv := reflect.ValueOf(val)
		if rv.Kind() == reflect.Slice {
			return f, []int{rv.Len()}, true
		}
		return f, nil, true
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Slice {
		return nil, nil, false
	}
	if rv.Len() == 0 {
		return []float64{}, []int{0}, true
	}
	var data []float64
	var inner []int
	for i := 0; i < rv.Len(); i++ {
		d, s, ok := flatten(rv.Index(i).Interface())
		if !ok {
			return nil, nil, false
		}
		if i == 0 {
			inner = s
		} else if !reflect.DeepEqual(s, inner) {
			return nil, nil, false
		}
		data = append(data, d...)
	}
	return data, append([]int{rv.Len()}, inner...), true
}
