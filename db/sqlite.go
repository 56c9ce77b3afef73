// Package db records training runs and served predictions in SQLite.
package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const (
	defaultLimit = 20
	maxLimit     = 1000
)

const schema = `
CREATE TABLE IF NOT EXISTS training_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    model_path TEXT NOT NULL,
    dataset_path TEXT NOT NULL,
    examples INTEGER NOT NULL,
    folds INTEGER NOT NULL,
    seed INTEGER NOT NULL,
    accuracy REAL NOT NULL,
    kappa REAL NOT NULL,
    nodes INTEGER NOT NULL,
    leaves INTEGER NOT NULL,
    depth INTEGER NOT NULL,
    trained_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS predictions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    duration REAL NOT NULL,
    distance REAL NOT NULL,
    calories REAL NOT NULL,
    label TEXT NOT NULL,
    confidence REAL NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
`

// TrainingRun is one row of training_log.
type TrainingRun struct {
	ID          int64     `json:"id"`
	ModelPath   string    `json:"model_path"`
	DatasetPath string    `json:"dataset_path"`
	Examples    int       `json:"examples"`
	Folds       int       `json:"folds"`
	Seed        int64     `json:"seed"`
	Accuracy    float64   `json:"accuracy"`
	Kappa       float64   `json:"kappa"`
	Nodes       int       `json:"nodes"`
	Leaves      int       `json:"leaves"`
	Depth       int       `json:"depth"`
	TrainedAt   time.Time `json:"trained_at"`
}

// PredictionRecord is one served prediction.
type PredictionRecord struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	Duration   float64   `json:"duration"`
	Distance   float64   `json:"distance"`
	Calories   float64   `json:"calories"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store wraps the SQLite database.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// Open opens or creates the database at path and applies the schema.
// A nil clk uses the wall clock.
func Open(path string, clk clock.Clock) (*Store, error) {
	if clk == nil {
		clk = clock.New()
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		database.SetMaxOpenConns(1)
	} else {
		database.SetMaxOpenConns(10)
		database.SetMaxIdleConns(5)
		database.SetConnMaxLifetime(time.Hour)
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "create tables")
	}
	return &Store{db: database, clock: clk}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordTraining stores run, stamping TrainedAt when it is zero, and returns its id.
func (s *Store) RecordTraining(ctx context.Context, run TrainingRun) (int64, error) {
	if run.TrainedAt.IsZero() {
		run.TrainedAt = s.clock.Now()
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (
            model_path, dataset_path, examples, folds, seed, accuracy, kappa,
            nodes, leaves, depth, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ModelPath, run.DatasetPath, run.Examples, run.Folds, run.Seed, run.Accuracy, run.Kappa,
		run.Nodes, run.Leaves, run.Depth, run.TrainedAt.UnixMilli())
	if err != nil {
		return 0, errors.Wrap(err, "insert training run")
	}
	return res.LastInsertId()
}

// LatestTraining returns the most recent training run.
func (s *Store) LatestTraining(ctx context.Context) (*TrainingRun, error) {
	var (
		run       TrainingRun
		trainedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT id, model_path, dataset_path, examples, folds, seed, accuracy, kappa,
               nodes, leaves, depth, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT 1`).Scan(&run.ID, &run.ModelPath, &run.DatasetPath, &run.Examples, &run.Folds, &run.Seed,
		&run.Accuracy, &run.Kappa, &run.Nodes, &run.Leaves, &run.Depth, &trainedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.TrainedAt = time.UnixMilli(trainedAt).UTC()
	return &run, nil
}

// RecordPrediction stores one served prediction.
func (s *Store) RecordPrediction(ctx context.Context, rec PredictionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock.Now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO predictions (request_id, duration, distance, calories, label, confidence, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Duration, rec.Distance, rec.Calories, rec.Label, rec.Confidence, rec.CreatedAt.UnixMilli())
	return errors.Wrap(err, "insert prediction")
}

// RecentPredictions returns up to limit predictions, newest first.
// limit <= 0 means the default of 20; it is capped at 1000.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, request_id, duration, distance, calories, label, confidence, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var (
			rec       PredictionRecord
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.Duration, &rec.Distance, &rec.Calories,
			&rec.Label, &rec.Confidence, &createdAt); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}
