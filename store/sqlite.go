package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flowforge/workflowengine/engine"
	"github.com/flowforge/workflowengine/retrieval"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed Port implementation.
//
// Designed for:
//   - Local development and CI with zero external setup
//   - Single-worker deployments
//
// Uses WAL mode for concurrent reads and a busy timeout so writers don't
// immediately fail under lock contention.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (and migrates, if needed) a SQLite database at path.
// Pass ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			nodes TEXT NOT NULL,
			edges TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			error_message TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS execution_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			node_type TEXT NOT NULL,
			status TEXT NOT NULL,
			output TEXT,
			error TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_execution ON execution_steps(execution_id)`,
		`CREATE TABLE IF NOT EXISTS step_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			node_type TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			duration_ms INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_execution ON step_attempts(execution_id, node_id)`,
		`CREATE TABLE IF NOT EXISTS context_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			reason TEXT NOT NULL,
			node_id TEXT,
			node_type TEXT,
			state TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(execution_id, sequence)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_execution ON context_snapshots(execution_id, sequence)`,
		`CREATE TABLE IF NOT EXISTS retrieval_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			node_type TEXT NOT NULL,
			retriever_key TEXT,
			attempt INTEGER NOT NULL,
			status TEXT NOT NULL,
			matches_count INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			error_message TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_execution ON retrieval_events(execution_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

func (s *SQLiteStore) LoadWorkflow(ctx context.Context, workflowID string) (Workflow, error) {
	if err := s.checkOpen(); err != nil {
		return Workflow{}, err
	}

	var userID, nodesJSON, edgesJSON string
	err := s.db.QueryRowContext(ctx, `SELECT user_id, nodes, edges FROM workflows WHERE id = ?`, workflowID).
		Scan(&userID, &nodesJSON, &edgesJSON)
	if err == sql.ErrNoRows {
		return Workflow{}, ErrNotFound
	}
	if err != nil {
		if missing := asMissingRelation(err, "workflows"); missing != nil {
			return Workflow{}, missing
		}
		return Workflow{}, fmt.Errorf("failed to load workflow: %w", err)
	}

	var nodes []engine.WorkflowNode
	var edges []engine.WorkflowEdge
	if err := json.Unmarshal([]byte(nodesJSON), &nodes); err != nil {
		return Workflow{}, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal([]byte(edgesJSON), &edges); err != nil {
		return Workflow{}, fmt.Errorf("failed to unmarshal edges: %w", err)
	}
	return Workflow{ID: workflowID, UserID: userID, Nodes: nodes, Edges: edges}, nil
}

// SaveWorkflow upserts a workflow definition; used by migration tooling and
// tests, not part of the Port contract itself.
func (s *SQLiteStore) SaveWorkflow(ctx context.Context, wf Workflow) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	nodesJSON, err := json.Marshal(wf.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(wf.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, user_id, nodes, edges) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, nodes = excluded.nodes, edges = excluded.edges
	`, wf.ID, wf.UserID, string(nodesJSON), string(edgesJSON))
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateExecutionStatus(ctx context.Context, executionID, status string, update StatusUpdate) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	var startedAt, finishedAt interface{}
	if update.StartedAt != nil {
		startedAt = update.StartedAt.Format(time.RFC3339Nano)
	}
	if update.FinishedAt != nil {
		finishedAt = update.FinishedAt.Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (id, status, started_at, finished_at, error_message)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			started_at = COALESCE(excluded.started_at, executions.started_at),
			finished_at = COALESCE(excluded.finished_at, executions.finished_at),
			error_message = CASE WHEN excluded.error_message != '' THEN excluded.error_message ELSE executions.error_message END,
			updated_at = CURRENT_TIMESTAMP
	`, executionID, status, startedAt, finishedAt, update.ErrorMessage)
	if err != nil {
		if missing := asMissingRelation(err, "executions"); missing != nil {
			return missing
		}
		return fmt.Errorf("failed to update execution status: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertStep(ctx context.Context, executionID string, step StepRow) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	outputJSON, err := json.Marshal(step.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal step output: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_steps (execution_id, step, node_id, node_type, status, output, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, executionID, step.Step, step.NodeID, step.NodeType, step.Status, string(outputJSON), step.Error)
	if err != nil {
		if missing := asMissingRelation(err, "execution_steps"); missing != nil {
			return missing
		}
		return fmt.Errorf("failed to insert step: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertStepAttempts(ctx context.Context, executionID, nodeID, nodeType string, attempts []AttemptRow) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(attempts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range attempts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO step_attempts (execution_id, node_id, node_type, attempt, status, error, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, executionID, nodeID, nodeType, a.Attempt, a.Status, a.Error, a.DurationMs)
		if err != nil {
			if missing := asMissingRelation(err, "step_attempts"); missing != nil {
				return missing
			}
			return fmt.Errorf("failed to insert step attempt: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit step attempts: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertContextSnapshot(ctx context.Context, executionID string, snapshot engine.ContextSnapshot) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	stateJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal context snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO context_snapshots (execution_id, sequence, reason, node_id, node_type, state)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id, sequence) DO UPDATE SET state = excluded.state
	`, executionID, snapshot.Sequence, snapshot.Reason, snapshot.NodeID, snapshot.NodeType, string(stateJSON))
	if err != nil {
		if missing := asMissingRelation(err, "context_snapshots"); missing != nil {
			return missing
		}
		return fmt.Errorf("failed to insert context snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertRetrievalEvent(ctx context.Context, executionID string, event retrieval.Event) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO retrieval_events (execution_id, node_id, node_type, retriever_key, attempt, status, matches_count, duration_ms, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, executionID, event.NodeID, event.NodeType, event.RetrieverKey, event.Attempt, string(event.Status), event.MatchesCount, event.DurationMs, event.ErrorMessage)
	if err != nil {
		if missing := asMissingRelation(err, "retrieval_events"); missing != nil {
			return missing
		}
		return fmt.Errorf("failed to insert retrieval event: %w", err)
	}
	return nil
}

// Close closes the database connection. Safe to call more than once.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// asMissingRelation recognizes SQLite's "no such table" driver error and
// wraps it as ErrMissingRelation; returns nil for any other error so the
// caller falls through to its generic wrap.
func asMissingRelation(err error, relation string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "no such table") {
		return &ErrMissingRelation{Relation: relation, Cause: err}
	}
	return nil
}
