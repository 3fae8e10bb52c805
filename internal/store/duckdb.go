// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	"github.com/goccy/go-json"

	"github.com/tomtom215/authshield/internal/geo"
	"github.com/tomtom215/authshield/internal/risk"
)

// DuckDB implements SampleStore, GeoStore and AlertStore on a DuckDB
// database. DuckDB's columnar layout suits the append-heavy, scan-light
// access pattern of sample and location history.
type DuckDB struct {
	db *sql.DB
}

// OpenDuckDB opens (creating if needed) the database at path and applies
// the schema. An empty path opens an in-memory database.
func OpenDuckDB(path string, maxOpenConns int) (*DuckDB, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb at %s: %w", path, err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	s := &DuckDB{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *DuckDB) Close() error { return s.db.Close() }

// Ping verifies connectivity, for health checks.
func (s *DuckDB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *DuckDB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS behavioral_samples (
			user_id VARCHAR NOT NULL,
			mouse_speed DOUBLE,
			mouse_acceleration DOUBLE,
			key_hold_time DOUBLE,
			flight_time DOUBLE,
			typing_speed DOUBLE,
			straight_line_ratio DOUBLE,
			curve_complexity DOUBLE,
			recorded_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS geolocations (
			id VARCHAR NOT NULL,
			user_id VARCHAR NOT NULL,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			city VARCHAR,
			country VARCHAR,
			ip_address VARCHAR,
			risk_score DOUBLE NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS anomaly_alerts (
			id VARCHAR PRIMARY KEY,
			user_id VARCHAR NOT NULL,
			alert_type VARCHAR NOT NULL,
			severity VARCHAR NOT NULL,
			description VARCHAR,
			metadata VARCHAR,
			acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_user_time
			ON behavioral_samples (user_id, recorded_at)`,
		`CREATE INDEX IF NOT EXISTS idx_geo_user_time
			ON geolocations (user_id, recorded_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_user
			ON anomaly_alerts (user_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

func (s *DuckDB) SaveSample(ctx context.Context, userID string, sample risk.Sample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO behavioral_samples (
			user_id, mouse_speed, mouse_acceleration, key_hold_time,
			flight_time, typing_speed, straight_line_ratio, curve_complexity,
			recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID,
		nullable(sample.MouseSpeed),
		nullable(sample.MouseAcceleration),
		nullable(sample.KeyHoldTime),
		nullable(sample.FlightTime),
		nullable(sample.TypingSpeed),
		nullable(sample.StraightLineRatio),
		nullable(sample.CurveComplexity),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving sample for %s: %w", userID, err)
	}
	return nil
}

func (s *DuckDB) RecentSamples(ctx context.Context, userID string, limit int) ([]risk.Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mouse_speed, mouse_acceleration, key_hold_time, flight_time,
			typing_speed, straight_line_ratio, curve_complexity
		FROM behavioral_samples
		WHERE user_id = ?
		ORDER BY recorded_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying samples for %s: %w", userID, err)
	}
	defer rows.Close()

	var samples []risk.Sample
	for rows.Next() {
		var cols [7]sql.NullFloat64
		if err := rows.Scan(&cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5], &cols[6]); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		samples = append(samples, risk.Sample{
			MouseSpeed:        fromNull(cols[0]),
			MouseAcceleration: fromNull(cols[1]),
			KeyHoldTime:       fromNull(cols[2]),
			FlightTime:        fromNull(cols[3]),
			TypingSpeed:       fromNull(cols[4]),
			StraightLineRatio: fromNull(cols[5]),
			CurveComplexity:   fromNull(cols[6]),
		})
	}
	return samples, rows.Err()
}

func (s *DuckDB) LatestPoint(ctx context.Context, userID string) (*geo.Point, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, latitude, longitude, city, country, ip_address, risk_score, recorded_at
		FROM geolocations
		WHERE user_id = ?
		ORDER BY recorded_at DESC
		LIMIT 1`, userID)

	p, err := scanPoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest point for %s: %w", userID, err)
	}
	return &p, nil
}

func (s *DuckDB) AppendPoint(ctx context.Context, p geo.Point) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geolocations (id, user_id, latitude, longitude, city, country, ip_address, risk_score, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Latitude, p.Longitude, p.City, p.Country, p.IPAddress, p.RiskScore, p.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("appending point for %s: %w", p.UserID, err)
	}
	return nil
}

func (s *DuckDB) RecentPoints(ctx context.Context, userID string, limit int) ([]geo.Point, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, latitude, longitude, city, country, ip_address, risk_score, recorded_at
		FROM geolocations
		WHERE user_id = ?
		ORDER BY recorded_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying points for %s: %w", userID, err)
	}
	defer rows.Close()

	var points []geo.Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func scanPoint(row interface{ Scan(...any) error }) (geo.Point, error) {
	var (
		p                 geo.Point
		city, country, ip sql.NullString
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Latitude, &p.Longitude, &city, &country, &ip, &p.RiskScore, &p.RecordedAt)
	if err != nil {
		return geo.Point{}, err
	}
	p.City = city.String
	p.Country = country.String
	p.IPAddress = ip.String
	return p, nil
}

func (s *DuckDB) SaveAlert(ctx context.Context, alert Alert) error {
	meta, err := json.Marshal(alert.Metadata)
	if err != nil {
		return fmt.Errorf("encoding alert metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO anomaly_alerts (id, user_id, alert_type, severity, description, metadata, acknowledged, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.UserID, alert.Type, alert.Severity, alert.Description,
		string(meta), alert.Acknowledged, alert.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving alert %s: %w", alert.ID, err)
	}
	return nil
}

func (s *DuckDB) ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error) {
	query := `
		SELECT id, user_id, alert_type, severity, description, metadata, acknowledged, created_at
		FROM anomaly_alerts WHERE 1=1`
	var args []any
	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Type != "" {
		query += " AND alert_type = ?"
		args = append(args, filter.Type)
	}
	if filter.Acknowledged != nil {
		query += " AND acknowledged = ?"
		args = append(args, *filter.Acknowledged)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var (
			a    Alert
			meta sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Type, &a.Severity, &a.Description,
			&meta, &a.Acknowledged, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		if meta.Valid && meta.String != "" && meta.String != "null" {
			if err := json.Unmarshal([]byte(meta.String), &a.Metadata); err != nil {
				return nil, fmt.Errorf("decoding alert metadata: %w", err)
			}
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *DuckDB) AcknowledgeAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE anomaly_alerts SET acknowledged = TRUE WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("acknowledging alert %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acknowledging alert %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Prune removes samples and geolocation points older than the cutoff.
// Alerts are kept; they are the audit trail.
func (s *DuckDB) Prune(ctx context.Context, cutoff time.Time) error {
	for _, table := range []string{"behavioral_samples", "geolocations"} {
		if _, err := s.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE recorded_at < ?", table), cutoff.UTC()); err != nil {
			return fmt.Errorf("pruning %s: %w", table, err)
		}
	}
	return nil
}

func nullable(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
