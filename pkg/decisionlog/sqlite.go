package decisionlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists decision entries in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed decision log and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureDecisionSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Record stores a single entry.
func (s *SQLiteStore) Record(ctx context.Context, entry Entry) error {
	entry = Stamp(entry)
	evidence, err := encodeEvidence(entry.Evidence)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decision_log (
			id, kind, arm_count, arm, reward, explored, role, evidence_json, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		string(entry.Kind),
		entry.ArmCount,
		entry.Arm,
		entry.Reward,
		entry.Explored,
		entry.Role,
		evidence,
		entry.RecordedAt,
	)
	return err
}

// List returns entries matching the filter, newest first.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, kind, arm_count, arm, reward, explored, role, evidence_json, recorded_at
		FROM decision_log
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.Kind != "" {
		addFilter("kind = ?", string(filter.Kind))
	}
	if !filter.Since.IsZero() {
		addFilter("recorded_at >= ?", filter.Since.UTC())
	}
	query += where + " ORDER BY recorded_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry    Entry
			kind     string
			evidence string
			recorded sql.NullTime
		)
		if err := rows.Scan(
			&entry.ID,
			&kind,
			&entry.ArmCount,
			&entry.Arm,
			&entry.Reward,
			&entry.Explored,
			&entry.Role,
			&evidence,
			&recorded,
		); err != nil {
			return nil, err
		}
		entry.Kind = Kind(kind)
		if entry.Evidence, err = decodeEvidence(evidence); err != nil {
			return nil, fmt.Errorf("decision %s: evidence: %w", entry.ID, err)
		}
		if recorded.Valid {
			entry.RecordedAt = recorded.Time
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func ensureDecisionSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS decision_log (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			arm_count INTEGER NOT NULL DEFAULT 0,
			arm INTEGER NOT NULL DEFAULT 0,
			reward REAL NOT NULL DEFAULT 0,
			explored BOOLEAN NOT NULL DEFAULT 0,
			role TEXT NOT NULL DEFAULT '',
			evidence_json TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_decision_log_kind ON decision_log(kind);
		CREATE INDEX IF NOT EXISTS idx_decision_log_recorded ON decision_log(recorded_at);
	`)
	return err
}
