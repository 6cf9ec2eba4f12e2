package postgres

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/couchcryptid/forecast-sync/internal/domain"
	"github.com/ctessum/geom/encoding/wkb"
	"github.com/jackc/pgx/v5"
)

// EnsureCellTable creates the cell table if it does not exist.
func (s *Store) EnsureCellTable(ctx context.Context) error {
	conn, err := s.connection(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, s.schema.createCellTable()); err != nil {
		return fmt.Errorf("create table %s: %w", CellTable, err)
	}
	return nil
}

// InsertCells writes one chunk of cells in a single transaction, skipping
// centroids that already exist. It returns the number of new rows.
func (s *Store) InsertCells(ctx context.Context, cells []domain.Cell) (int64, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		return 0, err
	}
	query := s.schema.insertCell()
	b := &pgx.Batch{}
	for _, c := range cells {
		poly, err := cellWKB(c)
		if err != nil {
			return 0, err
		}
		b.Queue(query, c.Centroid.X, c.Centroid.Y, poly)
	}
	return execBatch(ctx, conn, b)
}

// LoadCellIndex reads every persisted cell into a centroid lookup.
func (s *Store) LoadCellIndex(ctx context.Context) (domain.CellIndex, error) {
	conn, err := s.connection(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, s.schema.selectCells())
	if err != nil {
		return nil, fmt.Errorf("select cells: %w", err)
	}

	index := make(domain.CellIndex)
	var (
		id   int64
		x, y int
	)
	_, err = pgx.ForEachRow(rows, []any{&id, &x, &y}, func() error {
		index[domain.Centroid{X: x, Y: y}] = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan cells: %w", err)
	}
	return index, nil
}

// cellWKB encodes the projected polygon as little-endian (NDR) WKB for
// ST_GeomFromWKB.
func cellWKB(c domain.Cell) ([]byte, error) {
	poly, err := wkb.Encode(c.Polygon, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("encode cell %d,%d: %w", c.Centroid.X, c.Centroid.Y, err)
	}
	return poly, nil
}
