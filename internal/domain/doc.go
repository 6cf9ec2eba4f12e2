// Package domain models gridded sea-ice forecasts and the cells they are
// stored against.
//
// # Data Source
//
// Forecasts arrive as NetCDF files produced by the forecasting model, one file
// per forecast run. Each file carries two projected coordinate axes (xc, yc)
// in kilometres, a forecast initialisation time axis, a lead-time axis in days,
// and two data variables: the ensemble mean sea-ice concentration ("mean") and
// its standard deviation ("stddev").
//
// # Grid Conventions
//
// Coordinates are centroids on the EASE-Grid 2.0 North projection
// (EPSG:6931) unless configured otherwise. Cell identity is the centroid pair
// in integer metres:
//
//	centroid_m = trunc(1000 * centroid_km)
//
// Truncation, not rounding, is part of the contract: the cell table and the
// prediction lookup both derive the identity this way, so any drift between
// the two would leave predictions without a cell. See [MetresFromKm].
//
// Cell footprints are rectangles with a constant half-width per axis:
//
//	half_width_m = 1000 * trunc(0.5 * mean(|x[i+1] - x[i]|))
//
// The half-width is truncated in kilometres before converting to metres, so a
// 25.07 km grid yields 12 km half-widths.
//
// # Predictions
//
// Only strictly positive, finite means are stored; zero concentration and
// land/fill values are dropped at decode time. A prediction is identified by
// (date, leadtime, cell_id), where date is the UTC calendar date of the
// forecast initialisation time.
//
// # Idempotence
//
// Both tables are insert-if-absent. Re-running a file never updates existing
// rows, so the first writer's values are preserved and a crashed run can be
// replayed safely.
package domain
