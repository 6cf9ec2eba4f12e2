package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"

	"github.com/couchcryptid/forecast-sync/internal/config"
	"github.com/couchcryptid/forecast-sync/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Store owns one PostGIS connection for the lifetime of a single file
// invocation. The connection is opened on first use and released by Close.
// It implements gridsync.Store.
type Store struct {
	cfg    *config.Config
	schema schema
	logger *slog.Logger
	conn   *pgx.Conn
}

// NewStore creates a Store. No connection is made until the first query.
func NewStore(cfg *config.Config, logger *slog.Logger) *Store {
	return &Store{
		cfg:    cfg,
		schema: newSchema(cfg.NativeSRID),
		logger: logger,
	}
}

// Close releases the connection if one was opened. It is safe to call more
// than once.
func (s *Store) Close(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close(ctx)
	s.conn = nil
	if err != nil {
		return fmt.Errorf("close database connection: %w", err)
	}
	s.logger.Debug("database connection closed", "database", s.cfg.PostgresDB)
	return nil
}

// connection returns the open connection, connecting on first use.
func (s *Store) connection(ctx context.Context) (*pgx.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := pgx.Connect(ctx, ConnString(s.cfg))
	if err != nil {
		s.logger.Error("failed to connect to database",
			"database", s.cfg.PostgresDB, "host", s.cfg.PostgresHost, "error", err)
		return nil, fmt.Errorf("%w: %s on %s: %w", domain.ErrConnection, s.cfg.PostgresDB, s.cfg.PostgresHost, err)
	}
	s.logger.Info("connected to database", "database", s.cfg.PostgresDB, "host", s.cfg.PostgresHost)
	s.conn = conn
	return conn, nil
}

// ConnString builds a postgres:// URL from the configured credentials.
func ConnString(cfg *config.Config) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.PostgresUser, cfg.PostgresPassword),
		Host:   net.JoinHostPort(cfg.PostgresHost, strconv.Itoa(cfg.PostgresPort)),
		Path:   "/" + cfg.PostgresDB,
	}
	if cfg.PostgresSSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.PostgresSSLMode}}.Encode()
	}
	return u.String()
}

// execBatch runs b inside its own transaction and commits. It returns the
// number of rows the statements affected; conflicting rows count as zero.
func execBatch(ctx context.Context, conn *pgx.Conn, b *pgx.Batch) (int64, error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, b)
	var affected int64
	for i := 0; i < b.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("statement %d: %w", i+1, err)
		}
		affected += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return affected, nil
}
