// Package history persists invocation attempts, consultations, and
// checkpoint decisions in a SQLite database. The retry controller reads
// accumulated attempts back to grow diagnostic context between iterations,
// and the decision checkpoint replays recorded answers to stay idempotent
// across restarts.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/overseer/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Store manages the overseer history database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (or creates) the history database at dbPath. Parent
// directories are created for file-backed databases; ":memory:" is supported
// for tests.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// busy_timeout first so the remaining pragmas wait on locks instead of
	// failing during concurrent initialization.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, dbPath: dbPath}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

// execWithRetry retries a statement with exponential backoff on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if _, err := db.Exec(stmt); err == nil {
			return nil
		} else if !strings.Contains(err.Error(), "database is locked") {
			return err
		} else {
			lastErr = err
		}
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordAttempt stores one repair-loop attempt.
func (s *Store) RecordAttempt(ctx context.Context, planID, scope string, stepOrdinal int, attempt models.Attempt) error {
	query := `INSERT INTO attempts
		(plan_id, scope, step_ordinal, number, specialist, summary, failure_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	ts := attempt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		planID, scope, stepOrdinal, attempt.Number,
		attempt.Specialist, attempt.Summary, attempt.FailureReason, ts)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// AttemptsForScope returns every attempt recorded for a plan and scope, in
// attempt order.
func (s *Store) AttemptsForScope(ctx context.Context, planID, scope string) ([]models.Attempt, error) {
	query := `SELECT number, specialist, summary, failure_reason, created_at
		FROM attempts WHERE plan_id = ? AND scope = ? ORDER BY number`

	rows, err := s.db.QueryContext(ctx, query, planID, scope)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.Attempt
	for rows.Next() {
		var attempt models.Attempt
		if err := rows.Scan(&attempt.Number, &attempt.Specialist, &attempt.Summary, &attempt.FailureReason, &attempt.Timestamp); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// RecordConsultation stores the outcome of one specialist invocation.
func (s *Store) RecordConsultation(ctx context.Context, planID string, c models.Consultation) error {
	findings, err := json.Marshal(c.Findings)
	if err != nil {
		return fmt.Errorf("marshal findings: %w", err)
	}

	query := `INSERT INTO consultations
		(plan_id, step_ordinal, domain, specialist, pass, recommendation, findings)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query,
		planID, c.StepOrdinal, c.Domain, c.Specialist, c.Pass, c.Recommendation, string(findings)); err != nil {
		return fmt.Errorf("record consultation: %w", err)
	}
	return nil
}

// ConsultationsForPlan returns every recorded consultation for a plan,
// ordered by step then domain.
func (s *Store) ConsultationsForPlan(ctx context.Context, planID string) ([]models.Consultation, error) {
	query := `SELECT step_ordinal, domain, specialist, pass, recommendation, findings
		FROM consultations WHERE plan_id = ? ORDER BY step_ordinal, domain, id`

	rows, err := s.db.QueryContext(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("query consultations: %w", err)
	}
	defer rows.Close()

	var consultations []models.Consultation
	for rows.Next() {
		var c models.Consultation
		var findings string
		if err := rows.Scan(&c.StepOrdinal, &c.Domain, &c.Specialist, &c.Pass, &c.Recommendation, &findings); err != nil {
			return nil, fmt.Errorf("scan consultation: %w", err)
		}
		if err := json.Unmarshal([]byte(findings), &c.Findings); err != nil {
			return nil, fmt.Errorf("unmarshal findings: %w", err)
		}
		consultations = append(consultations, c)
	}
	return consultations, rows.Err()
}

// RecordDecision stores a checkpoint decision keyed by the question key.
// Recording the same key again is a no-op: the first recorded answer wins,
// which is what makes re-asking after a crash safe.
func (s *Store) RecordDecision(ctx context.Context, key, question, answer string) error {
	query := `INSERT INTO decisions (question_key, question, answer)
		VALUES (?, ?, ?)
		ON CONFLICT(question_key) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, key, question, answer); err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// DecisionFor returns the recorded answer for a question key, if any.
func (s *Store) DecisionFor(ctx context.Context, key string) (string, bool, error) {
	var answer string
	err := s.db.QueryRowContext(ctx, `SELECT answer FROM decisions WHERE question_key = ?`, key).Scan(&answer)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query decision: %w", err)
	}
	return answer, true, nil
}
