// Package store archives simulation runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/terrain-traversal-sim/internal/logging"
	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

const (
	DefaultDBFileName = "runs.db"
	schemaVersion     = 1
	memoryPath        = ":memory:"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("run not found")

// RunRecord is an archived simulation run with the inputs that produced it.
type RunRecord struct {
	ID           int64                `json:"id"`
	Name         string               `json:"name"`
	Policy       string               `json:"policy"`
	ResampleMode string               `json:"resample_mode"`
	EntityCount  int                  `json:"entity_count"`
	StoppedCount int                  `json:"stopped_count"`
	MaxTime      float64              `json:"max_time"`
	CreatedAt    time.Time            `json:"created_at"`
	Entities     []model.EntitySpec   `json:"entities,omitempty"`
	Run          *model.SimulationRun `json:"run,omitempty"`
}

// RunSummary is the list view of a RunRecord without the blobs.
type RunSummary struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Policy       string    `json:"policy"`
	ResampleMode string    `json:"resample_mode"`
	EntityCount  int       `json:"entity_count"`
	StoppedCount int       `json:"stopped_count"`
	MaxTime      float64   `json:"max_time"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is a SQLite-backed run archive.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	log    logging.Logger
}

// Open creates or opens the archive at dbPath. ":memory:" gives a private
// in-memory database.
func Open(dbPath string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Noop()
	}
	if dbPath != memoryPath {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	log.Info(context.Background(), "opening run archive", logging.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == memoryPath {
		// each pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, dbPath: dbPath, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return s.createSchema()
	}
	if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);
	INSERT INTO schema_version (version) VALUES (1);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		policy TEXT NOT NULL,
		resample_mode TEXT NOT NULL,
		entity_count INTEGER NOT NULL,
		stopped_count INTEGER NOT NULL,
		max_time REAL NOT NULL,
		created_at TEXT NOT NULL,
		entities_json TEXT NOT NULL,
		run_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun archives rec under name and returns the new id. Summary columns
// are derived from rec.Run; CreatedAt defaults to now.
func (s *Store) SaveRun(ctx context.Context, name string, rec *RunRecord) (int64, error) {
	if rec == nil || rec.Run == nil {
		return 0, errors.New("run record has no run")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("run name is required")
	}

	entitiesJSON, err := json.Marshal(rec.Entities)
	if err != nil {
		return 0, fmt.Errorf("failed to encode entities: %w", err)
	}
	runJSON, err := json.Marshal(rec.Run)
	if err != nil {
		return 0, fmt.Errorf("failed to encode run: %w", err)
	}

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	created = created.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (name, policy, resample_mode, entity_count, stopped_count, max_time, created_at, entities_json, run_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name, rec.Policy, rec.ResampleMode,
		len(rec.Run.Entities), rec.Run.StoppedCount(), rec.Run.MaxTime,
		created.Format(time.RFC3339Nano), string(entitiesJSON), string(runJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	rec.ID = id
	rec.Name = name
	rec.EntityCount = len(rec.Run.Entities)
	rec.StoppedCount = rec.Run.StoppedCount()
	rec.MaxTime = rec.Run.MaxTime
	rec.CreatedAt = created

	s.log.Debug(ctx, "run archived",
		logging.Int("run_id", int(id)),
		logging.String("name", name),
		logging.Int("entities", rec.EntityCount),
	)
	return id, nil
}

// GetRun loads a full record. It returns ErrNotFound for unknown ids.
func (s *Store) GetRun(ctx context.Context, id int64) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rec          RunRecord
		created      string
		entitiesJSON string
		runJSON      string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, policy, resample_mode, entity_count, stopped_count, max_time, created_at, entities_json, run_json
		 FROM runs WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Name, &rec.Policy, &rec.ResampleMode, &rec.EntityCount, &rec.StoppedCount,
		&rec.MaxTime, &created, &entitiesJSON, &runJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(entitiesJSON), &rec.Entities); err != nil {
		return nil, fmt.Errorf("failed to decode entities: %w", err)
	}
	rec.Run = &model.SimulationRun{}
	if err := json.Unmarshal([]byte(runJSON), rec.Run); err != nil {
		return nil, fmt.Errorf("failed to decode run: %w", err)
	}
	return &rec, nil
}

// ListRuns returns summaries newest first together with the total count.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]RunSummary, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, policy, resample_mode, entity_count, stopped_count, max_time, created_at
		 FROM runs
		 ORDER BY id DESC
		 LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunSummary, 0)
	for rows.Next() {
		var (
			r       RunSummary
			created string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Policy, &r.ResampleMode, &r.EntityCount, &r.StoppedCount, &r.MaxTime, &created); err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, 0, fmt.Errorf("failed to parse created_at: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, total, nil
}

// DeleteRun removes a run. It returns ErrNotFound for unknown ids.
func (s *Store) DeleteRun(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}
