// Package db reads pre-computed per-conformation similarity metrics
// (Tanimoto, Jaccard, ...) from a sqlite table produced by an upstream
// scoring run. Metric computation itself lives outside this tool.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

var ErrNoMetricTable = errors.New("metric database has no conformation_metrics table")

// MetricDB wraps a sqlite file with the schema
//
//	conformation_metrics(conformation TEXT, metric TEXT, value REAL)
type MetricDB struct {
	metricSQL *sql.DB
}

func Open(path string) (*MetricDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Check for db schema and version here later
	return &MetricDB{metricSQL: db}, nil
}

func (m *MetricDB) Close() error {
	return m.metricSQL.Close()
}

// Load returns the named metric's value per conformation. An unknown
// metric name yields an empty map, not an error; the caller decides
// whether that degrades or aborts the run.
func (m *MetricDB) Load(ctx context.Context, metric string) (map[string]float64, error) {

	qstring := `select conformation, value from conformation_metrics where metric == ?;`

	stm, err := m.metricSQL.PrepareContext(ctx, qstring)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMetricTable, err)
	}
	defer stm.Close()

	rows, err := stm.QueryContext(ctx, metric)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make(map[string]float64)

	for rows.Next() {

		var name string
		var value float64

		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}

		results[name] = value
	}

	return results, rows.Err()
}
