package domain

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"
)

// Grid holds the two centroid axes of a forecast, in kilometres.
type Grid struct {
	X []float64
	Y []float64
}

// Size is the number of cells spanned by the grid.
func (g Grid) Size() int {
	return len(g.X) * len(g.Y)
}

// Centroid identifies a cell by its centre in integer metres.
type Centroid struct {
	X int
	Y int
}

// Cell is one rectangular grid footprint. ID is zero until the cell has been
// read back from the store.
type Cell struct {
	ID       int64
	Centroid Centroid
	Polygon  geom.Polygon
}

// MetresFromKm converts a kilometre coordinate to integer metres, truncating
// toward zero.
func MetresFromKm(km float64) int {
	return int(1000 * km)
}

// CentroidFromKm converts a kilometre coordinate pair to a Centroid.
func CentroidFromKm(x, y float64) Centroid {
	return Centroid{X: MetresFromKm(x), Y: MetresFromKm(y)}
}

// MeanStepSize returns the mean absolute difference between consecutive
// values of axis.
func MeanStepSize(axis []float64) (float64, error) {
	if len(axis) < 2 {
		return 0, fmt.Errorf("%w: axis has %d points, need at least 2", ErrInsufficientGrid, len(axis))
	}
	steps := make([]float64, len(axis)-1)
	for i := 1; i < len(axis); i++ {
		steps[i-1] = math.Abs(axis[i] - axis[i-1])
	}
	return floats.Sum(steps) / float64(len(steps)), nil
}

// HalfWidth returns the cell half-width in metres for an axis given in
// kilometres.
func HalfWidth(axis []float64) (int, error) {
	step, err := MeanStepSize(axis)
	if err != nil {
		return 0, err
	}
	return int(1000 * step / 2), nil
}

// DeriveCells computes one rectangular cell per (x, y) centroid pair, ordered
// x-major. Repeated centroids are emitted once.
func DeriveCells(g Grid) ([]Cell, error) {
	halfX, err := HalfWidth(g.X)
	if err != nil {
		return nil, fmt.Errorf("x axis: %w", err)
	}
	halfY, err := HalfWidth(g.Y)
	if err != nil {
		return nil, fmt.Errorf("y axis: %w", err)
	}

	cells := make([]Cell, 0, g.Size())
	seen := make(map[Centroid]struct{}, g.Size())
	for _, xKm := range g.X {
		for _, yKm := range g.Y {
			c := CentroidFromKm(xKm, yKm)
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			cells = append(cells, Cell{
				Centroid: c,
				Polygon:  rectangle(c, halfX, halfY),
			})
		}
	}
	return cells, nil
}

// rectangle builds the closed ring starting at the top-left corner and
// running clockwise.
func rectangle(c Centroid, halfX, halfY int) geom.Polygon {
	xMin, xMax := float64(c.X-halfX), float64(c.X+halfX)
	yMin, yMax := float64(c.Y-halfY), float64(c.Y+halfY)
	return geom.Polygon{{
		{X: xMin, Y: yMax},
		{X: xMax, Y: yMax},
		{X: xMax, Y: yMin},
		{X: xMin, Y: yMin},
		{X: xMin, Y: yMax},
	}}
}
