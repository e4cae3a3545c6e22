// Package store provides the append-only SQLite proposal store.
// Proposals are written once; review outcomes are recorded as new
// event rows, never as destructive updates to proposal content.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hiveworks/hivemind/pkg/models"
)

// ErrFinalized is returned when a caller tries to transition a
// proposal that has already reached a final review state.
var ErrFinalized = errors.New("proposal is finalized")

// ErrNotFound is returned when no proposal exists with the given ID.
var ErrNotFound = errors.New("proposal not found")

// Store wraps an SQLite database holding proposals and their review
// event history.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultPath returns the path to the proposal database under the
// user's data directory.
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "hivemind", "proposals.db")
}

// Open opens a proposal store at the given path, creating parent
// directories if needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{
		conn: conn,
		path: path,
	}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.path
}

const schemaProposals = `
CREATE TABLE IF NOT EXISTS proposals (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	goal_id TEXT NOT NULL,
	content TEXT NOT NULL,
	rationale TEXT NOT NULL,
	safety TEXT NOT NULL,
	review_state TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_proposals_goal_id ON proposals(goal_id);
CREATE INDEX IF NOT EXISTS idx_proposals_review_state ON proposals(review_state);

CREATE TABLE IF NOT EXISTS review_events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	proposal_id TEXT NOT NULL REFERENCES proposals(id),
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	rationale TEXT NOT NULL DEFAULT '',
	recorded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_events_proposal ON review_events(proposal_id);
`

func (s *Store) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.conn.Exec(schemaProposals); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Append writes a new proposal row. Content and rationale are
// immutable after this call; only review state transitions may follow.
func (s *Store) Append(p *models.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.conn.Exec(`
		INSERT INTO proposals (id, task_id, goal_id, content, rationale, safety, review_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TaskID, p.GoalID, p.Content, p.Rationale,
		string(p.Safety), string(p.ReviewState), formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("append proposal %s: %w", p.ID, err)
	}
	return nil
}

// Transition records a review state change as an appended event and
// moves the proposal's current state. Finalized proposals cannot
// transition again.
func (s *Store) Transition(proposalID string, to models.ReviewState, rationale string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	row := tx.QueryRow("SELECT review_state FROM proposals WHERE id = ?", proposalID)
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("transition %s: %w", proposalID, ErrNotFound)
		}
		return fmt.Errorf("read proposal %s: %w", proposalID, err)
	}
	if models.ReviewState(current).Final() {
		return fmt.Errorf("transition %s from %s: %w", proposalID, current, ErrFinalized)
	}

	now := formatTime(time.Now().UTC())
	if _, err := tx.Exec(`
		INSERT INTO review_events (proposal_id, from_state, to_state, rationale, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		proposalID, current, string(to), rationale, now); err != nil {
		return fmt.Errorf("record event for %s: %w", proposalID, err)
	}
	if _, err := tx.Exec("UPDATE proposals SET review_state = ? WHERE id = ?",
		string(to), proposalID); err != nil {
		return fmt.Errorf("move proposal %s: %w", proposalID, err)
	}
	return tx.Commit()
}

// Commit finalizes an approved proposal as committed.
func (s *Store) Commit(proposalID string) error {
	return s.Transition(proposalID, models.ReviewCommitted, "committed")
}

// Discard finalizes a proposal as discarded with the given reason.
func (s *Store) Discard(proposalID, reason string) error {
	return s.Transition(proposalID, models.ReviewDiscarded, reason)
}

// Get returns a single proposal by ID.
func (s *Store) Get(proposalID string) (*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.conn.QueryRow(`
		SELECT id, task_id, goal_id, content, rationale, safety, review_state, created_at
		FROM proposals WHERE id = ?`, proposalID)
	p, err := scanProposal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get %s: %w", proposalID, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", proposalID, err)
	}
	return p, nil
}

// Committed returns all committed proposals in creation order.
func (s *Store) Committed() ([]*models.Proposal, error) {
	return s.listByState(models.ReviewCommitted)
}

// ListByGoal returns all proposals for a goal in creation order.
func (s *Store) ListByGoal(goalID string) ([]*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT id, task_id, goal_id, content, rationale, safety, review_state, created_at
		FROM proposals WHERE goal_id = ? ORDER BY created_at, id`, goalID)
	if err != nil {
		return nil, fmt.Errorf("list proposals for goal %s: %w", goalID, err)
	}
	defer rows.Close()
	return collectProposals(rows)
}

// CountByState returns the number of proposals in each review state.
func (s *Store) CountByState() (map[models.ReviewState]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT review_state, COUNT(*) FROM proposals GROUP BY review_state`)
	if err != nil {
		return nil, fmt.Errorf("count proposals: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ReviewState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[models.ReviewState(state)] = n
	}
	return counts, rows.Err()
}

func (s *Store) listByState(state models.ReviewState) ([]*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT id, task_id, goal_id, content, rationale, safety, review_state, created_at
		FROM proposals WHERE review_state = ? ORDER BY created_at, id`, string(state))
	if err != nil {
		return nil, fmt.Errorf("list proposals in %s: %w", state, err)
	}
	defer rows.Close()
	return collectProposals(rows)
}

// ReviewEvent is one recorded review state transition.
type ReviewEvent struct {
	Seq        int64
	ProposalID string
	FromState  models.ReviewState
	ToState    models.ReviewState
	Rationale  string
	RecordedAt time.Time
}

// History returns the full review event trail for a proposal in
// recorded order.
func (s *Store) History(proposalID string) ([]ReviewEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT seq, proposal_id, from_state, to_state, rationale, recorded_at
		FROM review_events WHERE proposal_id = ? ORDER BY seq`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", proposalID, err)
	}
	defer rows.Close()

	var events []ReviewEvent
	for rows.Next() {
		var e ReviewEvent
		var from, to, recorded string
		if err := rows.Scan(&e.Seq, &e.ProposalID, &from, &to, &e.Rationale, &recorded); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.FromState = models.ReviewState(from)
		e.ToState = models.ReviewState(to)
		if e.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, fmt.Errorf("parse event time: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProposal(row scanner) (*models.Proposal, error) {
	var p models.Proposal
	var safety, state, created string
	if err := row.Scan(&p.ID, &p.TaskID, &p.GoalID, &p.Content, &p.Rationale,
		&safety, &state, &created); err != nil {
		return nil, err
	}
	p.Safety = models.SafetyClass(safety)
	p.ReviewState = models.ReviewState(state)
	t, err := parseTime(created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	p.CreatedAt = t
	return &p, nil
}

func collectProposals(rows *sql.Rows) ([]*models.Proposal, error) {
	var out []*models.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
