package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/forecast-sync/internal/domain"
)

// RefreshLatestView drops and recreates the latest-prediction view in one
// transaction, so a missing view on the first run is not an error and readers
// never see the gap between drop and create.
func (s *Store) RefreshLatestView(ctx context.Context) (domain.LatestView, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		return domain.LatestView{}, err
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return domain.LatestView{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, s.schema.dropLatestView()); err != nil {
		return domain.LatestView{}, fmt.Errorf("drop view %s: %w", LatestView, err)
	}
	if _, err := tx.Exec(ctx, s.schema.createLatestView()); err != nil {
		return domain.LatestView{}, fmt.Errorf("create view %s: %w", LatestView, err)
	}

	var (
		date *time.Time
		rows int64
	)
	if err := tx.QueryRow(ctx, s.schema.summarizeLatestView()).Scan(&date, &rows); err != nil {
		return domain.LatestView{}, fmt.Errorf("summarize view %s: %w", LatestView, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.LatestView{}, fmt.Errorf("commit view %s: %w", LatestView, err)
	}

	view := domain.LatestView{Rows: rows}
	if date != nil {
		view.Date = *date
	}
	return view, nil
}
