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

// Package ncio reads NetCDF files into ncnorm datasets and writes
// datasets as NetCDF classic files.
package ncio

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/eurec4a/ncnorm"
	"github.com/sirupsen/logrus"
)

// Log receives messages about skipped variables.
var Log logrus.FieldLogger = logrus.StandardLogger()

var (
	magicCDF = []byte("CDF")
	magicHDF = []byte("\x89HDF")
)

// Read reads the NetCDF file at path. Classic (CDF-1 and CDF-2) files
// and NetCDF-4 (HDF5) files are supported. Integer and character
// variables keep their storage type; NetCDF-4 string variables are
// skipped with a warning. Fill and missing values become NaN, packed variables are
// unpacked, and a CF-encoded "time" variable is decoded into the
// dataset's time coordinate.
func Read(path string) (*ncnorm.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ncio: %v", err)
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return nil, fmt.Errorf("ncio: reading %s: %v", path, err)
	}
	var ds *ncnorm.Dataset
	switch {
	case bytes.HasPrefix(magic, magicCDF):
		ds, err = readClassic(f)
	case bytes.Equal(magic, magicHDF):
		ds, err = readHDF(path)
	default:
		return nil, fmt.Errorf("ncio: %s is not a NetCDF file", path)
	}
	if err != nil {
		return nil, fmt.Errorf("ncio: reading %s: %v", path, err)
	}
	if err := finish(ds); err != nil {
		return nil, fmt.Errorf("ncio: reading %s: %v", path, err)
	}
	return ds, nil
}

func readClassic(f *os.File) (*ncnorm.Dataset, error) {
	nc, err := cdf.Open(f)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	h := nc.Header
	numRecs := int(h.NumRecs(fi.Size()))

	ds := &ncnorm.Dataset{Attrs: classicAttributes(h, "")}
	names := h.Dimensions("")
	for i, l := range h.Lengths("") {
		if l == 0 { // record dimension
			l = numRecs
		}
		ds.Dims = append(ds.Dims, ncnorm.Dimension{Name: names[i], Len: l})
	}

	for _, v := range h.Variables() {
		data, typ, err := readClassicVar(nc, v, numRecs)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %v", v, err)
		}
		ds.AddVar(&ncnorm.Variable{
			Name:  v,
			Dims:  h.Dimensions(v),
			Data:  data,
			Type:  typ,
			Attrs: classicAttributes(h, v),
		})
	}
	return ds, nil
}

// readClassicVar reads all values of v as float64. Character
// variables are returned as character codes.
func readClassicVar(nc *cdf.File, v string, numRecs int) ([]float64, ncnorm.DataType, error) {
	lengths := append([]int(nil), nc.Header.Lengths(v)...)
	n := 1
	for i, l := range lengths {
		if i == 0 && nc.Header.IsRecordVariable(v) {
			l = numRecs
			lengths[0] = l
		}
		n *= l
	}
	_, isChar := nc.Header.ZeroValue(v, 0).(string)
	if n == 0 {
		if isChar {
			return []float64{}, ncnorm.Char, nil
		}
		return []float64{}, ncnorm.Float64, nil
	}
	var r cdf.Reader
	if nc.Header.IsRecordVariable(v) {
		begin := make([]int, len(lengths))
		end := make([]int, len(lengths))
		for i, l := range lengths {
			end[i] = l - 1
		}
		r = nc.Reader(v, begin, end)
	} else {
		r = nc.Reader(v, nil, nil)
	}
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		return nil, 0, err
	}
	if b, ok := buf.([]uint8); ok {
		// CHAR and BYTE share a reader; BYTE is signed.
		data := make([]float64, len(b))
		for i, c := range b {
			if isChar {
				data[i] = float64(c)
			} else {
				data[i] = float64(int8(c))
			}
		}
		if isChar {
			return data, ncnorm.Char, nil
		}
		return data, ncnorm.Int8, nil
	}
	data, typ := toFloat64(buf)
	if data == nil {
		return nil, 0, fmt.Errorf("unsupported data type %T", buf)
	}
	return data, typ, nil
}

// classicAttributes converts the attributes of v (or the globals if v is
// "") to their dataset representation.
func classicAttributes(h *cdf.Header, v string) ncnorm.Attributes {
	names := h.Attributes(v)
	a := make(ncnorm.Attributes, len(names))
	for _, name := range names {
		if val, ok := attributeValue(h.GetAttribute(v, name)); ok {
			a[name] = val
		}
	}
	return a
}

// attributeValue converts a NetCDF attribute value to a string, a
// float64 (single numbers) or a []float64.
func attributeValue(val interface{}) (interface{}, bool) {
	switch t := val.(type) {
	case string:
		return strings.TrimRight(t, "\x00"), true
	case float64, float32, int, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		f, _ := toFloat64(val)
		return f[0], true
	}
	f, _ := toFloat64(val)
	switch {
	case f == nil:
		return nil, false
	case len(f) == 1:
		return f[0], true
	default:
		return f, true
	}
}

// toFloat64 converts a numeric scalar or slice to []float64 and reports
// the storage type it maps to. It returns nil for other types.
func toFloat64(val interface{}) ([]float64, ncnorm.DataType) {
	switch t := val.(type) {
	case []float64:
		return append([]float64(nil), t...), ncnorm.Float64
	case []float32:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(v)
		}
		return o, ncnorm.Float32
	case []int32:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(v)
		}
		return o, ncnorm.Int32
	case []int16:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(v)
		}
		return o, ncnorm.Int16
	case []uint8:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(v)
		}
		return o, ncnorm.Float64
	case []int8:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(v)
		}
		return o, ncnorm.Int8
	case []int64:
		o := make([]float64, len(t))
		for i, v := range t {
			o[i] = float64(v)
		}
		return o, ncnorm.Float64
	case float64:
		return []float64{t}, ncnorm.Float64
	case float32:
		return []float64{float64(t)}, ncnorm.Float32
	case int8:
		return []float64{float64(t)}, ncnorm.Float64
	case int16:
		return []float64{float64(t)}, ncnorm.Float64
	case int32:
		return []float64{float64(t)}, ncnorm.Float64
	case int64:
		return []float64{float64(t)}, ncnorm.Float64
	case int:
		return []float64{float64(t)}, ncnorm.Float64
	case uint8:
		return []float64{float64(t)}, ncnorm.Float64
	case uint16:
		return []float64{float64(t)}, ncnorm.Float64
	case uint32:
		return []float64{float64(t)}, ncnorm.Float64
	case uint64:
		return []float64{float64(t)}, ncnorm.Float64
	}
	return nil, ncnorm.Float64
}

// finish applies the CF conventions shared by both file formats: fill
// and missing values become NaN (integer variables keep _FillValue), packed values are unpacked, and the
// time variable is decoded.
func finish(ds *ncnorm.Dataset) error {
	for _, v := range ds.Vars {
		if v.Type == ncnorm.Char {
			continue
		}
		fillValue, hasFillValue := v.Attrs["_FillValue"].(float64)
		for _, key := range []string{"_FillValue", "missing_value"} {
			fill, ok := v.Attrs[key]
			if !ok {
				continue
			}
			var fills []float64
			switch f := fill.(type) {
			case float64:
				fills = []float64{f}
			case []float64:
				fills = f
			default:
				return fmt.Errorf("variable %s: invalid type for %s: %T", v.Name, key, fill)
			}
			for i, d := range v.Data {
				for _, f := range fills {
					if d == f {
						v.Data[i] = math.NaN()
					}
				}
			}
			delete(v.Attrs, key)
		}
		scale, hasScale := v.Attrs["scale_factor"].(float64)
		offset, hasOffset := v.Attrs["add_offset"].(float64)
		if hasScale || hasOffset {
			if !hasScale {
				scale = 1
			}
			for i, d := range v.Data {
				v.Data[i] = d*scale + offset
			}
			delete(v.Attrs, "scale_factor")
			delete(v.Attrs, "add_offset")
			v.Type = ncnorm.Float64
		}
		// Integer variables that were not packed keep their fill value.
		if v.Type.Integer() && hasFillValue {
			v.Attrs["_FillValue"] = fillValue
		}
	}

	tv := ds.Var(ncnorm.TimeDim)
	if tv == nil || len(tv.Dims) != 1 || tv.Dims[0] != ncnorm.TimeDim {
		return nil
	}
	units := tv.Attrs.String("units")
	if !strings.Contains(units, " since ") {
		return nil
	}
	times, err := ncnorm.DecodeTimes(tv.Data, units)
	if err != nil {
		Log.WithField("units", units).Debugf("ncio: leaving time undecoded: %v", err)
		return nil
	}
	ds.Time = times
	ds.TimeAttrs = tv.Attrs.Clone()
	delete(ds.TimeAttrs, "units")
	delete(ds.TimeAttrs, "calendar")
	ds.RemoveVar(ncnorm.TimeDim)
	return ds.Check()
}
