package domain

import (
	"fmt"
	"time"
)

// CellIndex maps a centroid to its persisted cell id.
type CellIndex map[Centroid]int64

// Prediction is a forecast record bound to a persisted cell.
type Prediction struct {
	Date     time.Time
	LeadTime int
	CellID   int64
	Mean     float64
	StdDev   float64
}

// PredictionKey is the uniqueness key of the prediction table.
type PredictionKey struct {
	Date     time.Time
	LeadTime int
	CellID   int64
}

// Key returns the prediction's uniqueness key.
func (p Prediction) Key() PredictionKey {
	return PredictionKey{Date: p.Date, LeadTime: p.LeadTime, CellID: p.CellID}
}

// Resolution summarises a ResolveCells pass.
type Resolution struct {
	Matched   int
	Unmatched int
}

// UnmatchedFraction is Unmatched over all records, or 0 when there were none.
func (r Resolution) UnmatchedFraction() float64 {
	total := r.Matched + r.Unmatched
	if total == 0 {
		return 0
	}
	return float64(r.Unmatched) / float64(total)
}

// ResolveCells left-joins records onto index by centroid. Records without a
// cell are dropped and counted; if their share exceeds tolerance the whole
// set is rejected with ErrCellResolution and no predictions are returned.
func ResolveCells(records []ForecastRecord, index CellIndex, tolerance float64) ([]Prediction, Resolution, error) {
	var res Resolution
	preds := make([]Prediction, 0, len(records))
	for _, r := range records {
		id, ok := index[r.Centroid()]
		if !ok {
			res.Unmatched++
			continue
		}
		res.Matched++
		preds = append(preds, Prediction{
			Date:     r.Date(),
			LeadTime: r.LeadTime,
			CellID:   id,
			Mean:     r.Mean,
			StdDev:   r.StdDev,
		})
	}
	if frac := res.UnmatchedFraction(); frac > tolerance {
		return nil, res, fmt.Errorf("%w: %d of %d records have no matching cell (%.2f%% > %.2f%%)",
			ErrCellResolution, res.Unmatched, res.Matched+res.Unmatched, 100*frac, 100*tolerance)
	}
	return preds, res, nil
}
