package postgres

import (
	"context"
	"fmt"

	"github.com/couchcryptid/forecast-sync/internal/domain"
	"github.com/jackc/pgx/v5"
)

// EnsurePredictionTable creates the prediction table if it does not exist.
// The cell table must already exist for the foreign key.
func (s *Store) EnsurePredictionTable(ctx context.Context) error {
	conn, err := s.connection(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, s.schema.createPredictionTable()); err != nil {
		return fmt.Errorf("create table %s: %w", PredictionTable, err)
	}
	return nil
}

// InsertPredictions writes one chunk of predictions in a single transaction,
// skipping (date, leadtime, cell_id) keys that already exist.
func (s *Store) InsertPredictions(ctx context.Context, preds []domain.Prediction) (int64, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		return 0, err
	}
	query := s.schema.insertPrediction()
	b := &pgx.Batch{}
	for _, p := range preds {
		b.Queue(query, p.Date, p.LeadTime, p.CellID, float32(p.Mean), float32(p.StdDev))
	}
	return execBatch(ctx, conn, b)
}
