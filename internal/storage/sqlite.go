package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"ultraseeker/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:ultraseeker.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS detections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			modality TEXT NOT NULL,
			category TEXT NOT NULL,
			confidence REAL NOT NULL,
			severity TEXT NOT NULL,
			description TEXT NOT NULL,
			region_json TEXT,
			evidence_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_ts ON detections(ts)`,
		`CREATE TABLE IF NOT EXISTS assessments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			overall TEXT NOT NULL,
			active_threats INTEGER NOT NULL,
			confidence REAL NOT NULL,
			status TEXT NOT NULL,
			recent_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assessments_ts ON assessments(ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveDetections(ctx context.Context, detections []model.Detection) error {
	if s.db == nil || len(detections) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO detections (ts, modality, category, confidence, severity, description, region_json, evidence_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, d := range detections {
		if _, err := stmt.ExecContext(ctx,
			d.Timestamp.UTC(),
			string(d.Modality),
			string(d.Category),
			d.Confidence,
			d.Severity.String(),
			d.Description,
			encodeJSON(d.Region),
			encodeJSON(d.Evidence),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) SaveAssessment(ctx context.Context, assessment model.Assessment) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessments (ts, overall, active_threats, confidence, status, recent_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		assessment.Timestamp.UTC(),
		assessment.Summary.Overall.String(),
		assessment.Summary.ActiveThreats,
		assessment.Summary.Confidence,
		assessment.Summary.Status,
		encodeJSON(assessment.Summary.Recent),
	)
	return err
}
