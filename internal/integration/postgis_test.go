//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/couchcryptid/forecast-sync/internal/adapter/postgres"
	"github.com/couchcryptid/forecast-sync/internal/config"
	"github.com/couchcryptid/forecast-sync/internal/domain"
	"github.com/couchcryptid/forecast-sync/internal/gridsync"
	"github.com/couchcryptid/forecast-sync/internal/observability"
	"github.com/couchcryptid/forecast-sync/internal/pipeline"
)

const postgisImage = "postgis/postgis:16-3.4"

// staticDecoder returns the same dataset for any path or stream.
type staticDecoder struct {
	ds *domain.Dataset
}

func (d staticDecoder) DecodeFile(context.Context, string) (*domain.Dataset, error) {
	return d.ds, nil
}

func (d staticDecoder) Decode(context.Context, io.Reader) (*domain.Dataset, error) {
	return d.ds, nil
}

func startPostGIS(ctx context.Context, t *testing.T) *config.Config {
	t.Helper()
	ctr, err := tcpostgres.Run(ctx, postgisImage,
		tcpostgres.WithDatabase("forecast"),
		tcpostgres.WithUsername("forecast"),
		tcpostgres.WithPassword("forecast"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start postgis container")

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return &config.Config{
		PostgresHost:     host,
		PostgresPort:     port.Int(),
		PostgresDB:       "forecast",
		PostgresUser:     "forecast",
		PostgresPassword: "forecast",
		PostgresSSLMode:  "disable",
		NativeSRID:       6931,
		BatchSize:        7,
	}
}

// forecast builds a 4 x 3 grid (25 km spacing) with two lead times, where
// mean is zero in the first column.
func forecast(day time.Time) *domain.Dataset {
	x := []float64{-100, -75, -50, -25}
	y := []float64{200, 175, 150}
	strides := [4]int{2 * 4 * 3, 4 * 3, 3, 1}
	n := 2 * 4 * 3
	mean := make([]float64, n)
	sd := make([]float64, n)
	for l := range 2 {
		for i := range x {
			for j := range y {
				k := l*strides[1] + i*strides[2] + j
				if i > 0 {
					mean[k] = 0.1 * float64(1+l+j)
				}
				sd[k] = 0.02
			}
		}
	}
	return &domain.Dataset{
		Grid:      domain.Grid{X: x, Y: y},
		Times:     []time.Time{day.Add(6 * time.Hour)},
		LeadTimes: []int{1, 2},
		Mean:      domain.Field{Values: mean, Strides: strides},
		StdDev:    domain.Field{Values: sd, Strides: strides},
	}
}

func count(ctx context.Context, t *testing.T, conn *pgx.Conn, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.QueryRow(ctx, query, args...).Scan(&n), query)
	return n
}

func TestPipelineAgainstPostGIS(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	cfg := startPostGIS(ctx, t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	day1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	run := func(ds *domain.Dataset) *domain.SyncReport {
		t.Helper()
		p := pipeline.New(staticDecoder{ds: ds},
			func() pipeline.Session { return postgres.NewStore(cfg, logger) },
			pipeline.Options{Sync: gridsync.Options{BatchSize: cfg.BatchSize}},
			logger, observability.NewMetricsForTesting())
		report, err := p.ProcessFile(ctx, "forecast.nc", "forecast.nc")
		require.NoError(t, err)
		return report
	}

	first := run(forecast(day1))
	assert.Equal(t, int64(12), first.Cells.Inserted)
	assert.Equal(t, int64(18), first.Predictions.Inserted)
	assert.Equal(t, 2, first.Cells.Chunks)
	assert.Equal(t, "2024-03-01", first.LatestDate)
	assert.Equal(t, int64(18), first.LatestRows)

	// A second run of the same file changes nothing.
	second := run(forecast(day1))
	assert.Zero(t, second.Cells.Inserted)
	assert.Zero(t, second.Predictions.Inserted)
	assert.Equal(t, int64(18), second.Predictions.Skipped)

	// A newer forecast moves the latest view forward.
	third := run(forecast(day2))
	assert.Equal(t, "2024-03-02", third.LatestDate)
	assert.Equal(t, int64(18), third.LatestRows)

	conn, err := pgx.Connect(ctx, postgres.ConnString(cfg))
	require.NoError(t, err)
	defer conn.Close(ctx)

	assert.Equal(t, int64(12), count(ctx, t, conn, `SELECT count(*) FROM cell`))
	assert.Equal(t, int64(36), count(ctx, t, conn, `SELECT count(*) FROM prediction`))
	assert.Zero(t, count(ctx, t, conn, `SELECT count(*) FROM prediction WHERE mean <= 0`))
	assert.Equal(t, int64(18), count(ctx, t, conn, `SELECT count(*) FROM prediction_latest WHERE date = '2024-03-02'`))
	assert.Equal(t, int64(1), count(ctx, t, conn, `SELECT count(DISTINCT date) FROM prediction_latest`))

	// Geometry columns carry their SRIDs and each polygon is centred on its
	// cell's centroid.
	assert.Equal(t, int64(12), count(ctx, t, conn, `SELECT count(*) FROM cell
		WHERE ST_SRID(geom_6931) = 6931 AND ST_SRID(geom_4326) = 4326
		AND ST_X(ST_Centroid(geom_6931))::int = centroid_x
		AND ST_Y(ST_Centroid(geom_6931))::int = centroid_y`))
	assert.Equal(t, int64(1), count(ctx, t, conn, `SELECT count(*) FROM cell
		WHERE centroid_x = -75000 AND centroid_y = 175000
		AND ST_Area(geom_6931) = 625000000`))

	// Every stored prediction resolves back to a cell of the forecast grid.
	assert.Zero(t, count(ctx, t, conn, `SELECT count(*) FROM prediction p
		LEFT JOIN cell c ON c.cell_id = p.cell_id WHERE c.cell_id IS NULL`))
}

func TestConnectionFailureIsWrapped(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := &config.Config{
		PostgresHost:     "127.0.0.1",
		PostgresPort:     1,
		PostgresDB:       "forecast",
		PostgresUser:     "nobody",
		PostgresPassword: "wrong",
		PostgresSSLMode:  "disable",
		NativeSRID:       6931,
	}
	store := postgres.NewStore(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer store.Close(ctx)

	err := store.EnsureCellTable(ctx)
	require.ErrorIs(t, err, domain.ErrConnection)
}
