// Package netcdf decodes forecast NetCDF files into domain datasets.
package netcdf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	cdf "github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/couchcryptid/forecast-sync/internal/domain"
)

// Variable names in a forecast file.
const (
	VarX        = "xc"
	VarY        = "yc"
	VarTime     = "time"
	VarLeadTime = "leadtime"
	VarMean     = "mean"
	VarStdDev   = "stddev"
)

// logicalAxis maps a dimension name to its domain axis.
var logicalAxis = map[string]int{
	VarTime:     domain.AxisTime,
	VarLeadTime: domain.AxisLeadTime,
	VarX:        domain.AxisX,
	VarY:        domain.AxisY,
}

// Decoder reads forecast files.
type Decoder struct {
	logger *slog.Logger
}

// NewDecoder creates a Decoder.
func NewDecoder(logger *slog.Logger) *Decoder {
	return &Decoder{logger: logger}
}

// Decode spools r to a temporary file and decodes it. The underlying reader
// needs random access, so streams are not decoded in place.
func (d *Decoder) Decode(ctx context.Context, r io.Reader) (*domain.Dataset, error) {
	tmp, err := os.CreateTemp("", "forecast-*.nc")
	if err != nil {
		return nil, fmt.Errorf("spool input: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := io.Copy(tmp, r); err != nil {
		return nil, fmt.Errorf("spool input: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("spool input: %w", err)
	}
	return d.DecodeFile(ctx, tmp.Name())
}

// DecodeFile decodes the NetCDF file at path. Any structural problem is
// reported as domain.ErrDecode.
func (d *Decoder) DecodeFile(ctx context.Context, path string) (*domain.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nc, err := cdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrDecode, path, err)
	}
	defer nc.Close()

	ds, err := decodeGroup(groupSource{nc})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrDecode, path, err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	d.logger.Info("decoded forecast file",
		"path", path,
		"times", len(ds.Times),
		"leadtimes", len(ds.LeadTimes),
		"x", len(ds.X),
		"y", len(ds.Y),
	)
	return ds, nil
}

// variable is the subset of api.VarGetter the decoder reads.
type variable interface {
	Values() (any, error)
	Dimensions() []string
	Attributes() api.AttributeMap
}

type source interface {
	variable(name string) (variable, error)
}

type groupSource struct {
	group api.Group
}

func (g groupSource) variable(name string) (variable, error) {
	return g.group.GetVarGetter(name)
}

func decodeGroup(nc source) (*domain.Dataset, error) {
	var (
		ds  domain.Dataset
		err error
	)
	if ds.X, err = readAxis(nc, VarX); err != nil {
		return nil, err
	}
	if ds.Y, err = readAxis(nc, VarY); err != nil {
		return nil, err
	}
	if ds.Times, err = readTimes(nc); err != nil {
		return nil, err
	}
	leads, err := readAxis(nc, VarLeadTime)
	if err != nil {
		return nil, err
	}
	ds.LeadTimes = make([]int, len(leads))
	for i, l := range leads {
		ds.LeadTimes[i] = int(math.Round(l))
	}
	if ds.Mean, err = readField(nc, VarMean); err != nil {
		return nil, err
	}
	if ds.StdDev, err = readField(nc, VarStdDev); err != nil {
		return nil, err
	}
	return &ds, nil
}

func readAxis(nc source, name string) ([]float64, error) {
	vg, err := nc.variable(name)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	if dims := vg.Dimensions(); len(dims) > 1 {
		return nil, fmt.Errorf("variable %q: want 1 dimension, got %v", name, dims)
	}
	raw, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	values, err := flatten(raw)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	return values, nil
}

func readTimes(nc source) ([]time.Time, error) {
	vg, err := nc.variable(VarTime)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", VarTime, err)
	}
	units, ok := stringAttr(vg.Attributes(), "units")
	if !ok {
		return nil, fmt.Errorf("variable %q: missing units attribute", VarTime)
	}
	unit, epoch, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	offsets, err := readAxis(nc, VarTime)
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, len(offsets))
	for i, off := range offsets {
		times[i] = epoch.Add(time.Duration(math.Round(off * float64(unit))))
	}
	return times, nil
}

// readField reads a 4-D variable in its stored dimension order and derives
// the strides of each logical axis from that order.
func readField(nc source, name string) (domain.Field, error) {
	vg, err := nc.variable(name)
	if err != nil {
		return domain.Field{}, fmt.Errorf("variable %q: %w", name, err)
	}
	raw, err := vg.Values()
	if err != nil {
		return domain.Field{}, fmt.Errorf("variable %q: %w", name, err)
	}
	values, err := flatten(raw)
	if err != nil {
		return domain.Field{}, fmt.Errorf("variable %q: %w", name, err)
	}
	strides, err := fieldStrides(vg.Dimensions(), shapeOf(raw))
	if err != nil {
		return domain.Field{}, fmt.Errorf("variable %q: %w", name, err)
	}
	unpack(values, vg.Attributes())
	return domain.Field{Values: values, Strides: strides}, nil
}

// fieldStrides computes row-major strides for dims/shape and maps them to the
// logical (time, leadtime, x, y) axes.
func fieldStrides(dims []string, shape []int) ([4]int, error) {
	var strides [4]int
	if len(dims) != 4 || len(shape) != 4 {
		return strides, fmt.Errorf("want 4 dimensions, got %v", dims)
	}
	seen := [4]bool{}
	step := 1
	for i := 3; i >= 0; i-- {
		axis, ok := logicalAxis[dims[i]]
		if !ok {
			return strides, fmt.Errorf("unexpected dimension %q", dims[i])
		}
		if seen[axis] {
			return strides, fmt.Errorf("repeated dimension %q", dims[i])
		}
		seen[axis] = true
		strides[axis] = step
		step *= shape[i]
	}
	return strides, nil
}

// unpack applies CF packing attributes in place: fill and missing values
// become NaN, then scale_factor and add_offset are applied.
func unpack(values []float64, attrs api.AttributeMap) {
	var missing []float64
	for _, key := range []string{"_FillValue", "missing_value"} {
		if v, ok := numberAttr(attrs, key); ok {
			missing = append(missing, v)
		}
	}
	scale, hasScale := numberAttr(attrs, "scale_factor")
	offset, hasOffset := numberAttr(attrs, "add_offset")
	if !hasScale {
		scale = 1
	}

	for i, v := range values {
		for _, m := range missing {
			if v == m {
				v = math.NaN()
				break
			}
		}
		if hasScale || hasOffset {
			v = v*scale + offset
		}
		values[i] = v
	}
}
