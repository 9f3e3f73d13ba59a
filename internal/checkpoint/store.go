package checkpoint

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"qgrid/internal/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS training_runs (
	run_id       TEXT PRIMARY KEY,
	config_json  TEXT NOT NULL,
	num_states   INTEGER NOT NULL,
	num_actions  INTEGER NOT NULL,
	columns      INTEGER NOT NULL,
	environment  TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoints (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	episode     INTEGER NOT NULL,
	epsilon     REAL NOT NULL,
	q_table     TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES training_runs(run_id)
);

CREATE INDEX IF NOT EXISTS checkpoints_run ON checkpoints(run_id, id);
`

// timeLayout is fixed width so created_at sorts as text in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store keeps training runs and their checkpoints in SQLite. Tables are
// stored in the same text format as q-table files.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun registers a new run. ID and CreatedAt are assigned here.
func (s *Store) CreateRun(run Run) (Run, error) {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return Run{}, fmt.Errorf("marshal config: %w", err)
	}
	run.ID = uuid.New().String()
	run.CreatedAt = s.now().UTC()
	_, err = s.db.Exec(
		`INSERT INTO training_runs (run_id, config_json, num_states, num_actions, columns, environment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(cfgJSON), run.NumStates, run.NumActions, run.Columns, run.Environment,
		run.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (Run, error) {
	row := s.db.QueryRow(
		`SELECT run_id, config_json, num_states, num_actions, columns, environment, created_at
		 FROM training_runs WHERE run_id = ?`, id,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNoRun)
	}
	return run, err
}

// LatestRun returns the most recently created run.
func (s *Store) LatestRun() (Run, error) {
	row := s.db.QueryRow(
		`SELECT run_id, config_json, num_states, num_actions, columns, environment, created_at
		 FROM training_runs ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRun
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT run_id, config_json, num_states, num_actions, columns, environment, created_at
		 FROM training_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var cfgJSON, createdStr string
	err := row.Scan(&run.ID, &cfgJSON, &run.NumStates, &run.NumActions, &run.Columns, &run.Environment, &createdStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(cfgJSON), &run.Config); err != nil {
		return Run{}, fmt.Errorf("unmarshal config: %w", err)
	}
	run.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return run, nil
}

// SaveCheckpoint appends a checkpoint to a run. The table must match the
// run's shape.
func (s *Store) SaveCheckpoint(runID string, cp engine.Checkpoint) error {
	run, err := s.GetRun(runID)
	if err != nil {
		return err
	}
	if cp.Table == nil {
		return errors.New("checkpoint has no table")
	}
	if cp.Table.NumStates() != run.NumStates || cp.Table.NumActions() != run.NumActions {
		return fmt.Errorf("%w: checkpoint %dx%d, run %dx%d", engine.ErrShapeMismatch,
			cp.Table.NumStates(), cp.Table.NumActions(), run.NumStates, run.NumActions)
	}
	var buf bytes.Buffer
	if err := cp.Table.Save(&buf); err != nil {
		return fmt.Errorf("encode table: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO checkpoints (run_id, episode, epsilon, q_table, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, cp.Episode, float64(cp.Epsilon), buf.String(), s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// LatestCheckpoint returns the most recent checkpoint of a run.
func (s *Store) LatestCheckpoint(runID string) (engine.Checkpoint, error) {
	run, err := s.GetRun(runID)
	if err != nil {
		return engine.Checkpoint{}, err
	}
	var (
		episode int
		epsilon float64
		text    string
	)
	err = s.db.QueryRow(
		`SELECT episode, epsilon, q_table FROM checkpoints
		 WHERE run_id = ? ORDER BY id DESC LIMIT 1`, runID,
	).Scan(&episode, &epsilon, &text)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Checkpoint{}, fmt.Errorf("run %s: %w", runID, ErrNoCheckpoint)
	}
	if err != nil {
		return engine.Checkpoint{}, fmt.Errorf("get checkpoint: %w", err)
	}
	table, err := engine.Load(strings.NewReader(text), run.NumStates, run.NumActions,
		engine.Strict(),
		engine.WithColumns(run.Columns),
		engine.WithSelection(run.Config.Selection),
	)
	if err != nil {
		return engine.Checkpoint{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return engine.Checkpoint{Episode: episode, Epsilon: float32(epsilon), Table: table}, nil
}

// CountCheckpoints returns how many checkpoints a run has.
func (s *Store) CountCheckpoints(runID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM checkpoints WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count checkpoints: %w", err)
	}
	return n, nil
}
