package tuning

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
)

// SQLiteStorage persists studies in a SQLite database.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at dsn. An empty dsn or
// ":memory:" uses a private in-memory database.
func NewSQLiteStorage(dsn string) (*SQLiteStorage, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, scigoErrors.Wrap(err, "failed to open study database")
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStorage) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS studies (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			direction TEXT NOT NULL,
			sampler TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trials (
			study_id TEXT NOT NULL REFERENCES studies(id),
			number INTEGER NOT NULL,
			params TEXT NOT NULL,
			score REAL,
			state TEXT NOT NULL,
			error TEXT,
			started_at TEXT NOT NULL,
			duration_ns INTEGER NOT NULL,
			PRIMARY KEY (study_id, number)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return scigoErrors.Wrap(err, "failed to create study schema")
		}
	}
	return nil
}

// CreateStudy implements Storage.
func (s *SQLiteStorage) CreateStudy(ctx context.Context, info StudyInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO studies (id, name, direction, sampler, created_at) VALUES (?, ?, ?, ?, ?)`,
		info.ID, info.Name, info.Direction, info.Sampler, info.Created.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return scigoErrors.Wrapf(err, "failed to create study %s", info.ID)
	}
	return nil
}

// SaveTrial implements Storage.
func (s *SQLiteStorage) SaveTrial(ctx context.Context, studyID string, trial TrialResult) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM studies WHERE id = ?`, studyID).Scan(&exists)
	if err != nil {
		return scigoErrors.Wrap(err, "failed to look up study")
	}
	if exists == 0 {
		return scigoErrors.Wrapf(ErrStudyNotFound, "study %s", studyID)
	}

	params, err := json.Marshal(trial.Config)
	if err != nil {
		return scigoErrors.Wrap(err, "failed to marshal trial params")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trials (study_id, number, params, score, state, error, started_at, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		studyID, trial.Number, string(params), trial.Score, string(trial.State),
		nullString(trial.Err), trial.Start.UTC().Format(time.RFC3339Nano), int64(trial.Duration))
	if err != nil {
		return scigoErrors.Wrapf(err, "failed to save trial %d", trial.Number)
	}
	return nil
}

// LoadTrials implements Storage.
func (s *SQLiteStorage) LoadTrials(ctx context.Context, studyID string) ([]TrialResult, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM studies WHERE id = ?`, studyID).Scan(&exists); err != nil {
		return nil, scigoErrors.Wrap(err, "failed to look up study")
	}
	if exists == 0 {
		return nil, scigoErrors.Wrapf(ErrStudyNotFound, "study %s", studyID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT number, params, score, state, error, started_at, duration_ns
		 FROM trials WHERE study_id = ? ORDER BY number`, studyID)
	if err != nil {
		return nil, scigoErrors.Wrap(err, "failed to query trials")
	}
	defer rows.Close()

	var out []TrialResult
	for rows.Next() {
		var (
			t        TrialResult
			params   string
			state    string
			errText  sql.NullString
			started  string
			duration int64
		)
		if err := rows.Scan(&t.Number, &params, &t.Score, &state, &errText, &started, &duration); err != nil {
			return nil, scigoErrors.Wrap(err, "failed to scan trial")
		}
		if err := json.Unmarshal([]byte(params), &t.Config); err != nil {
			return nil, scigoErrors.Wrapf(err, "failed to decode params of trial %d", t.Number)
		}
		t.State = TrialState(state)
		t.Err = errText.String
		t.Start, _ = time.Parse(time.RFC3339Nano, started)
		t.Duration = time.Duration(duration)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, scigoErrors.Wrap(err, "failed to iterate trials")
	}
	return out, nil
}

// Close implements Storage.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
