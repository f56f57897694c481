package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flowforge/workflowengine/engine"
	"github.com/flowforge/workflowengine/retrieval"
	"github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL-backed Port implementation for production
// deployments with multiple workers sharing one database.
//
// Schema is expected to be provisioned by migration tooling ahead of time
// (see §6); MySQLStore does not create tables itself, unlike SQLiteStore's
// auto-migration — a missing table is reported through ErrMissingRelation
// exactly as the narrow port contract requires, rather than papered over.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a connection pool against dsn ("user:pass@tcp(host:3306)/dbname?parseTime=true").
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach mysql: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) LoadWorkflow(ctx context.Context, workflowID string) (Workflow, error) {
	var userID, nodesJSON, edgesJSON string
	err := s.db.QueryRowContext(ctx, `SELECT user_id, nodes, edges FROM workflows WHERE id = ?`, workflowID).
		Scan(&userID, &nodesJSON, &edgesJSON)
	if err == sql.ErrNoRows {
		return Workflow{}, ErrNotFound
	}
	if err != nil {
		if missing := asMissingRelationMySQL(err, "workflows"); missing != nil {
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

func (s *MySQLStore) UpdateExecutionStatus(ctx context.Context, executionID, status string, update StatusUpdate) error {
	var startedAt, finishedAt interface{}
	if update.StartedAt != nil {
		startedAt = update.StartedAt.UTC()
	}
	if update.FinishedAt != nil {
		finishedAt = update.FinishedAt.UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (id, status, started_at, finished_at, error_message)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			started_at = COALESCE(VALUES(started_at), started_at),
			finished_at = COALESCE(VALUES(finished_at), finished_at),
			error_message = IF(VALUES(error_message) != '', VALUES(error_message), error_message)
	`, executionID, status, startedAt, finishedAt, update.ErrorMessage)
	if err != nil {
		if missing := asMissingRelationMySQL(err, "executions"); missing != nil {
			return missing
		}
		return fmt.Errorf("failed to update execution status: %w", err)
	}
	return nil
}

func (s *MySQLStore) InsertStep(ctx context.Context, executionID string, step StepRow) error {
	outputJSON, err := json.Marshal(step.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal step output: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_steps (execution_id, step, node_id, node_type, status, output, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, executionID, step.Step, step.NodeID, step.NodeType, step.Status, string(outputJSON), step.Error)
	if err != nil {
		if missing := asMissingRelationMySQL(err, "execution_steps"); missing != nil {
			return missing
		}
		return fmt.Errorf("failed to insert step: %w", err)
	}
	return nil
}

func (s *MySQLStore) InsertStepAttempts(ctx context.Context, executionID, nodeID, nodeType string, attempts []AttemptRow) error {
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
			if missing := asMissingRelationMySQL(err, "step_attempts"); missing != nil {
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

func (s *MySQLStore) InsertContextSnapshot(ctx context.Context, executionID string, snapshot engine.ContextSnapshot) error {
	stateJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal context snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO context_snapshots (execution_id, sequence, reason, node_id, node_type, state)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE state = VALUES(state)
	`, executionID, snapshot.Sequence, snapshot.Reason, snapshot.NodeID, snapshot.NodeType, string(stateJSON))
	if err != nil {
		if missing := asMissingRelationMySQL(err, "context_snapshots"); missing != nil {
			return missing
		}
		return fmt.Errorf("failed to insert context snapshot: %w", err)
	}
	return nil
}

func (s *MySQLStore) InsertRetrievalEvent(ctx context.Context, executionID string, event retrieval.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO retrieval_events (execution_id, node_id, node_type, retriever_key, attempt, status, matches_count, duration_ms, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, executionID, event.NodeID, event.NodeType, event.RetrieverKey, event.Attempt, string(event.Status), event.MatchesCount, event.DurationMs, event.ErrorMessage)
	if err != nil {
		if missing := asMissingRelationMySQL(err, "retrieval_events"); missing != nil {
			return missing
		}
		return fmt.Errorf("failed to insert retrieval event: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// asMissingRelationMySQL recognizes MySQL error 1146 ("table doesn't
// exist") via the driver's typed *mysql.MySQLError, falling back to a
// string match for drivers/proxies that don't preserve the typed error.
func asMissingRelationMySQL(err error, relation string) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if ok := asMySQLError(err, &myErr); ok && myErr.Number == 1146 {
		return &ErrMissingRelation{Relation: relation, Cause: err}
	}
	if strings.Contains(strings.ToLower(err.Error()), "doesn't exist") {
		return &ErrMissingRelation{Relation: relation, Cause: err}
	}
	return nil
}

func asMySQLError(err error, target **mysql.MySQLError) bool {
	if me, ok := err.(*mysql.MySQLError); ok {
		*target = me
		return true
	}
	return false
}
