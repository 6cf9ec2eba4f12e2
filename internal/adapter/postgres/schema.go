package postgres

import "fmt"

// Table names shared with downstream readers.
const (
	CellTable       = "cell"
	PredictionTable = "prediction"
	LatestView      = "prediction_latest"
)

// GeographicSRID is the SRID of the reprojected geometry column.
const GeographicSRID = 4326

// schema renders the SQL for a given native projection.
type schema struct {
	srid       int
	nativeGeom string
	geoGeom    string
}

func newSchema(srid int) schema {
	return schema{
		srid:       srid,
		nativeGeom: fmt.Sprintf("geom_%d", srid),
		geoGeom:    fmt.Sprintf("geom_%d", GeographicSRID),
	}
}

func (s schema) createCellTable() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    cell_id SERIAL PRIMARY KEY,
    centroid_x int4,
    centroid_y int4,
    %s geometry,
    %s geometry,
    UNIQUE (centroid_x, centroid_y)
)`, CellTable, s.nativeGeom, s.geoGeom)
}

func (s schema) createPredictionTable() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    prediction_id SERIAL PRIMARY KEY,
    date date,
    leadtime int4,
    cell_id int4,
    mean float4,
    stddev float4,
    UNIQUE (date, leadtime, cell_id),
    CONSTRAINT fk_cell_id FOREIGN KEY(cell_id) REFERENCES %s(cell_id)
)`, PredictionTable, CellTable)
}

// insertCell takes (centroid_x, centroid_y, wkb polygon). The same WKB
// parameter feeds both geometry columns.
func (s schema) insertCell() string {
	return fmt.Sprintf(`INSERT INTO %s (centroid_x, centroid_y, %s, %s)
VALUES ($1, $2, ST_GeomFromWKB($3, %d), ST_Transform(ST_GeomFromWKB($3, %d), %d))
ON CONFLICT DO NOTHING`, CellTable, s.nativeGeom, s.geoGeom, s.srid, s.srid, GeographicSRID)
}

func (s schema) selectCells() string {
	return fmt.Sprintf(`SELECT cell_id, centroid_x, centroid_y FROM %s`, CellTable)
}

func (s schema) insertPrediction() string {
	return fmt.Sprintf(`INSERT INTO %s (date, leadtime, cell_id, mean, stddev)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT DO NOTHING`, PredictionTable)
}

func (s schema) dropLatestView() string {
	return fmt.Sprintf(`DROP MATERIALIZED VIEW IF EXISTS %s`, LatestView)
}

// createLatestView groups on every displayed column so a cell appears once
// per lead time for the most recent forecast date.
func (s schema) createLatestView() string {
	return fmt.Sprintf(`CREATE MATERIALIZED VIEW %[1]s AS
    SELECT
        row_number() OVER () AS prediction_latest_id,
        %[2]s.date,
        %[2]s.leadtime,
        %[2]s.mean,
        %[2]s.stddev,
        %[3]s.cell_id,
        %[3]s.centroid_x,
        %[3]s.centroid_y,
        %[3]s.%[4]s,
        %[3]s.%[5]s
    FROM %[2]s
    JOIN %[3]s ON %[2]s.cell_id = %[3]s.cell_id
    WHERE %[2]s.date = (SELECT max(date) FROM %[2]s)
    GROUP BY %[3]s.cell_id, %[2]s.date, %[2]s.leadtime, %[3]s.centroid_x, %[3]s.centroid_y,
        %[2]s.mean, %[2]s.stddev, %[3]s.%[4]s, %[3]s.%[5]s`,
		LatestView, PredictionTable, CellTable, s.nativeGeom, s.geoGeom)
}

func (s schema) summarizeLatestView() string {
	return fmt.Sprintf(`SELECT max(date), count(*) FROM %s`, LatestView)
}
