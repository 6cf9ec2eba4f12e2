package gridsync_test

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/couchcryptid/forecast-sync/internal/domain"
)

// memStore is an in-memory Store with the same uniqueness and foreign-key
// rules as the PostGIS schema. Each insert call is applied atomically.
type memStore struct {
	cellTable bool
	predTable bool

	nextCellID int64
	cells      map[domain.Centroid]int64
	cellByID   map[int64]domain.Centroid
	preds      map[domain.PredictionKey]domain.Prediction
	view       []viewRow

	// failCellChunk / failPredChunk make the n-th call (1-based) fail.
	failCellChunk int
	failPredChunk int
	cellCalls     int
	predCalls     int

	// clock, when set, advances by tick on every insert call.
	clock interface{ Advance(time.Duration) }
	tick  time.Duration
}

type viewRow struct {
	Date     time.Time
	LeadTime int
	CellID   int64
	Mean     float64
	StdDev   float64
	Centroid domain.Centroid
}

var errInjected = errors.New("injected statement failure")

func newMemStore() *memStore {
	return &memStore{
		cells:    make(map[domain.Centroid]int64),
		cellByID: make(map[int64]domain.Centroid),
		preds:    make(map[domain.PredictionKey]domain.Prediction),
	}
}

func (m *memStore) EnsureCellTable(_ context.Context) error {
	m.cellTable = true
	return nil
}

func (m *memStore) EnsurePredictionTable(_ context.Context) error {
	if !m.cellTable {
		return errors.New(`relation "cell" does not exist`)
	}
	m.predTable = true
	return nil
}

func (m *memStore) InsertCells(_ context.Context, cells []domain.Cell) (int64, error) {
	m.cellCalls++
	m.advance()
	if !m.cellTable {
		return 0, errors.New(`relation "cell" does not exist`)
	}
	if m.cellCalls == m.failCellChunk {
		return 0, errInjected
	}
	var inserted int64
	for _, c := range cells {
		if _, ok := m.cells[c.Centroid]; ok {
			continue
		}
		m.nextCellID++
		m.cells[c.Centroid] = m.nextCellID
		m.cellByID[m.nextCellID] = c.Centroid
		inserted++
	}
	return inserted, nil
}

func (m *memStore) LoadCellIndex(_ context.Context) (domain.CellIndex, error) {
	index := make(domain.CellIndex, len(m.cells))
	for c, id := range m.cells {
		index[c] = id
	}
	return index, nil
}

func (m *memStore) InsertPredictions(_ context.Context, preds []domain.Prediction) (int64, error) {
	m.predCalls++
	m.advance()
	if !m.predTable {
		return 0, errors.New(`relation "prediction" does not exist`)
	}
	if m.predCalls == m.failPredChunk {
		return 0, errInjected
	}
	for _, p := range preds {
		if _, ok := m.cellByID[p.CellID]; !ok {
			return 0, errors.New("violates foreign key constraint fk_cell_id")
		}
	}
	var inserted int64
	for _, p := range preds {
		if _, ok := m.preds[p.Key()]; ok {
			continue
		}
		m.preds[p.Key()] = p
		inserted++
	}
	return inserted, nil
}

func (m *memStore) RefreshLatestView(_ context.Context) (domain.LatestView, error) {
	var latest time.Time
	for k := range m.preds {
		if k.Date.After(latest) {
			latest = k.Date
		}
	}
	m.view = m.view[:0]
	for k, p := range m.preds {
		if !k.Date.Equal(latest) {
			continue
		}
		m.view = append(m.view, viewRow{
			Date: p.Date, LeadTime: p.LeadTime, CellID: p.CellID,
			Mean: p.Mean, StdDev: p.StdDev, Centroid: m.cellByID[p.CellID],
		})
	}
	sort.Slice(m.view, func(i, j int) bool {
		if m.view[i].CellID != m.view[j].CellID {
			return m.view[i].CellID < m.view[j].CellID
		}
		return m.view[i].LeadTime < m.view[j].LeadTime
	})
	view := domain.LatestView{Rows: int64(len(m.view))}
	if len(m.view) > 0 {
		view.Date = latest
	}
	return view, nil
}

func (m *memStore) advance() {
	if m.clock != nil {
		m.clock.Advance(m.tick)
	}
}
