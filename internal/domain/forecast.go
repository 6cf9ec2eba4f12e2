package domain

import (
	"fmt"
	"math"
	"time"
)

// Axis positions used by Field strides.
const (
	AxisTime = iota
	AxisLeadTime
	AxisX
	AxisY
)

// Field is a 4-D data variable stored flat in its native dimension order.
// Strides[AxisTime] etc. give the step in Values for each logical axis, so the
// decoder does not have to reorder the array.
type Field struct {
	Values  []float64
	Strides [4]int
}

// At returns the value at the given logical indices.
func (f Field) At(t, l, x, y int) float64 {
	return f.Values[t*f.Strides[AxisTime]+l*f.Strides[AxisLeadTime]+x*f.Strides[AxisX]+y*f.Strides[AxisY]]
}

// Dataset is a decoded forecast file.
type Dataset struct {
	Grid
	Times     []time.Time
	LeadTimes []int
	Mean      Field
	StdDev    Field
}

// Shape returns the logical (time, leadtime, x, y) lengths.
func (d *Dataset) Shape() [4]int {
	return [4]int{len(d.Times), len(d.LeadTimes), len(d.X), len(d.Y)}
}

// Validate checks that both data variables cover the full logical shape.
func (d *Dataset) Validate() error {
	shape := d.Shape()
	n := shape[0] * shape[1] * shape[2] * shape[3]
	if n == 0 {
		return fmt.Errorf("%w: empty dimension in shape %v", ErrDecode, shape)
	}
	fields := []struct {
		name string
		f    Field
	}{{"mean", d.Mean}, {"stddev", d.StdDev}}
	for _, v := range fields {
		name, f := v.name, v.f
		if len(f.Values) != n {
			return fmt.Errorf("%w: %s has %d values, shape %v needs %d", ErrDecode, name, len(f.Values), shape, n)
		}
		last := 0
		for axis, size := range shape {
			last += (size - 1) * f.Strides[axis]
		}
		if last >= len(f.Values) || last < 0 {
			return fmt.Errorf("%w: %s strides %v overrun %d values", ErrDecode, name, f.Strides, len(f.Values))
		}
	}
	return nil
}

// ForecastRecord is one (time, leadtime, x, y) sample of a dataset.
type ForecastRecord struct {
	Time     time.Time
	LeadTime int
	X        float64 // km
	Y        float64 // km
	Mean     float64
	StdDev   float64
}

// Date is the UTC calendar date of the forecast initialisation time.
func (r ForecastRecord) Date() time.Time {
	return DateOf(r.Time)
}

// Centroid maps the record onto the cell identity used by DeriveCells.
func (r ForecastRecord) Centroid() Centroid {
	return CentroidFromKm(r.X, r.Y)
}

// DateOf truncates t to midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Records returns the samples with a strictly positive mean. Samples with a
// missing (NaN or infinite) mean or standard deviation are dropped as well.
func (d *Dataset) Records() []ForecastRecord {
	var out []ForecastRecord
	for t, ts := range d.Times {
		for l, lead := range d.LeadTimes {
			for x, xKm := range d.X {
				for y, yKm := range d.Y {
					mean := d.Mean.At(t, l, x, y)
					if !(mean > 0) || math.IsInf(mean, 0) {
						continue
					}
					sd := d.StdDev.At(t, l, x, y)
					if math.IsNaN(sd) || math.IsInf(sd, 0) {
						continue
					}
					out = append(out, ForecastRecord{
						Time:     ts,
						LeadTime: lead,
						X:        xKm,
						Y:        yKm,
						Mean:     mean,
						StdDev:   sd,
					})
				}
			}
		}
	}
	return out
}

// LatestDate returns the most recent forecast date in the dataset.
func (d *Dataset) LatestDate() time.Time {
	var latest time.Time
	for _, ts := range d.Times {
		if day := DateOf(ts); day.After(latest) {
			latest = day
		}
	}
	return latest
}
