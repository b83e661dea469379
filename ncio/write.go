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
	"io"
	"math"
	"os"
	"time"

	"github.com/ctessum/cdf"
	"github.com/eurec4a/ncnorm"
)

// WriteFile writes ds to a new NetCDF classic file at path, encoding
// the time coordinate as described by enc.
func WriteFile(path string, ds *ncnorm.Dataset, enc ncnorm.TimeEncoding) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ncio: %v", err)
	}
	if err := write(f, ds, enc); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := cdf.UpdateNumRecs(f); err != nil {
		f.Close()
		return fmt.Errorf("ncio: finalizing %s: %v", path, err)
	}
	return f.Close()
}

// Write writes ds as a NetCDF classic file to w. The file is assembled
// in memory first.
func Write(w io.Writer, ds *ncnorm.Dataset, enc ncnorm.TimeEncoding) error {
	buf := new(writerAtBuffer)
	if err := write(buf, ds, enc); err != nil {
		return err
	}
	// No record dimension is written, so there are zero records.
	if _, err := buf.WriteAt([]byte{0, 0, 0, 0}, 4); err != nil {
		return err
	}
	_, err := w.Write(buf.b)
	return err
}

func write(rw cdf.ReaderWriterAt, ds *ncnorm.Dataset, enc ncnorm.TimeEncoding) error {
	if err := ds.Check(); err != nil {
		return err
	}
	var timeData interface{}
	if ds.Time != nil {
		var err error
		if timeData, err = encodeTime(ds.Time, enc); err != nil {
			return err
		}
	}

	dims := make([]string, 0, len(ds.Dims)+1)
	lengths := make([]int, 0, len(ds.Dims)+1)
	for _, d := range ds.Dims {
		if d.Len <= 0 {
			return fmt.Errorf("ncio: dimension %s is empty", d.Name)
		}
		dims = append(dims, d.Name)
		lengths = append(lengths, d.Len)
	}
	if _, ok := ds.DimLen(ncnorm.TimeDim); ds.Time != nil && !ok {
		if len(ds.Time) == 0 {
			return fmt.Errorf("ncio: time coordinate is empty")
		}
		dims = append(dims, ncnorm.TimeDim)
		lengths = append(lengths, len(ds.Time))
	}

	h := cdf.NewHeader(dims, lengths)
	if ds.Time != nil {
		h.AddVariable(ncnorm.TimeDim, []string{ncnorm.TimeDim}, timeData)
		attrs := ds.TimeAttrs.Clone()
		if attrs == nil {
			attrs = make(ncnorm.Attributes)
		}
		attrs["units"] = enc.Units
		attrs["calendar"] = "standard"
		if err := addAttributes(h, ncnorm.TimeDim, attrs); err != nil {
			return err
		}
	}
	stored := make([]storage, len(ds.Vars))
	for i, v := range ds.Vars {
		st := storageOf(v)
		stored[i] = st
		h.AddVariable(v.Name, v.Dims, st.zero)
		attrs := v.Attrs
		if st.fill != nil && attrs != nil {
			attrs = attrs.Clone()
			delete(attrs, "_FillValue")
		}
		if err := addAttributes(h, v.Name, attrs); err != nil {
			return err
		}
		if st.fill != nil {
			h.AddAttribute(v.Name, "_FillValue", st.fill)
		}
	}
	if err := addAttributes(h, "", ds.Attrs); err != nil {
		return err
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("ncio: invalid header: %v", errs[0])
	}

	f, err := cdf.Create(rw, h)
	if err != nil {
		return fmt.Errorf("ncio: creating file: %v", err)
	}
	if ds.Time != nil {
		if err := writeVar(f, ncnorm.TimeDim, timeData); err != nil {
			return fmt.Errorf("ncio: writing time: %v", err)
		}
	}
	for i, v := range ds.Vars {
		if err := writeVar(f, v.Name, stored[i].data); err != nil {
			return fmt.Errorf("ncio: writing %s: %v", v.Name, err)
		}
	}
	return nil
}

// storage is a variable's samples in the type they are written as.
// fill, if not nil, is written as the _FillValue attribute.
type storage struct {
	zero, fill, data interface{}
}

// Default NetCDF fill values for the integer types.
var intFill = map[ncnorm.DataType]float64{
	ncnorm.Int32: -2147483647,
	ncnorm.Int16: -32767,
	ncnorm.Int8:  -127,
}

var intRange = map[ncnorm.DataType][2]float64{
	ncnorm.Int32: {math.MinInt32, math.MaxInt32},
	ncnorm.Int16: {math.MinInt16, math.MaxInt16},
	ncnorm.Int8:  {math.MinInt8, math.MaxInt8},
}

// storageOf converts v's samples to its storage type. Integer variables
// holding values the type cannot represent are written as DOUBLE.
func storageOf(v *ncnorm.Variable) storage {
	typ := v.Type
	if typ.Integer() && !representable(v.Data, typ) {
		typ = ncnorm.Float64
	}
	_, hasFill := v.Attrs["_FillValue"]
	switch typ {
	case ncnorm.Float32:
		d := make([]float32, len(v.Data))
		for i, x := range v.Data {
			d[i] = float32(x)
		}
		st := storage{zero: []float32{0}, data: d}
		if !hasFill {
			st.fill = []float32{float32(math.NaN())}
		}
		return st
	case ncnorm.Int32, ncnorm.Int16, ncnorm.Int8:
		fv := intFill[typ]
		if f, ok := v.Attrs["_FillValue"].(float64); ok && inRange(f, typ) {
			fv = f
		}
		needFill := hasFill
		vals := make([]int64, len(v.Data))
		for i, x := range v.Data {
			if math.IsNaN(x) {
				x = fv
				needFill = true
			}
			vals[i] = int64(x)
		}
		var st storage
		switch typ {
		case ncnorm.Int32:
			d := make([]int32, len(vals))
			for i, x := range vals {
				d[i] = int32(x)
			}
			st = storage{zero: []int32{0}, data: d, fill: []int32{int32(fv)}}
		case ncnorm.Int16:
			d := make([]int16, len(vals))
			for i, x := range vals {
				d[i] = int16(x)
			}
			st = storage{zero: []int16{0}, data: d, fill: []int16{int16(fv)}}
		default:
			d := make([]uint8, len(vals))
			for i, x := range vals {
				d[i] = uint8(int8(x))
			}
			st = storage{zero: []uint8{0}, data: d, fill: []uint8{uint8(int8(fv))}}
		}
		if !needFill {
			st.fill = nil
		}
		return st
	case ncnorm.Char:
		b := make([]byte, len(v.Data))
		for i, c := range v.Data {
			if !math.IsNaN(c) {
				b[i] = byte(c)
			}
		}
		return storage{zero: "", data: string(b)}
	}
	st := storage{zero: []float64{0}, data: v.Data}
	if !hasFill {
		st.fill = []float64{math.NaN()}
	}
	return st
}

// representable reports whether every non-NaN value in data is a whole
// number within the range of typ.
func representable(data []float64, typ ncnorm.DataType) bool {
	for _, x := range data {
		if math.IsNaN(x) {
			continue
		}
		if x != math.Trunc(x) || !inRange(x, typ) {
			return false
		}
	}
	return true
}

func inRange(x float64, typ ncnorm.DataType) bool {
	r := intRange[typ]
	return x >= r[0] && x <= r[1]
}

func writeVar(f *cdf.File, v string, data interface{}) error {
	end := f.Header.Lengths(v)
	start := make([]int, len(end))
	w := f.Writer(v, start, end)
	// Scalars end exactly at the writer's bound, which is reported as EOF.
	if _, err := w.Write(data); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// encodeTime encodes times as INT (width 32) or DOUBLE (width 64)
// offsets. 32-bit encoding fails rather than truncating.
func encodeTime(times []time.Time, enc ncnorm.TimeEncoding) (interface{}, error) {
	vals, err := ncnorm.EncodeTimes(times, enc.Units)
	if err != nil {
		return nil, fmt.Errorf("ncio: encoding time: %v", err)
	}
	switch enc.Width {
	case 64:
		return vals, nil
	case 32:
		o := make([]int32, len(vals))
		for i, v := range vals {
			if math.IsNaN(v) || v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
				return nil, fmt.Errorf("ncio: time %v cannot be stored exactly as a 32-bit integer in %q", times[i], enc.Units)
			}
			o[i] = int32(v)
		}
		return o, nil
	}
	return nil, fmt.Errorf("ncio: time encoding width %d; must be 32 or 64", enc.Width)
}

// addAttributes adds attrs to variable v in sorted key order.
func addAttributes(h *cdf.Header, v string, attrs ncnorm.Attributes) error {
	for _, k := range attrs.Keys() {
		switch val := attrs[k].(type) {
		case string:
			h.AddAttribute(v, k, val)
		case float64:
			h.AddAttribute(v, k, []float64{val})
		case []float64:
			h.AddAttribute(v, k, val)
		case float32:
			h.AddAttribute(v, k, []float32{val})
		case int:
			h.AddAttribute(v, k, []int32{int32(val)})
		default:
			return fmt.Errorf("ncio: attribute %s:%s has unsupported type %T", v, k, val)
		}
	}
	return nil
}

// writerAtBuffer is an in-memory io.WriterAt and io.ReaderAt.
type writerAtBuffer struct {
	b []byte
}

func (w *writerAtBuffer) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(w.b) {
		if end > cap(w.b) {
			nb := make([]byte, end, 2*end)
			copy(nb, w.b)
			w.b = nb
		} else {
			w.b = w.b[:end]
		}
	}
	return copy(w.b[off:], p), nil
}

func (w *writerAtBuffer) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(w.b)) {
		return 0, io.EOF
	}
	n := copy(p, w.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
