// Package ledger provides the durable log of mutations awaiting remote
// confirmation.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liyuan/shopsync/internal/models"
	"github.com/liyuan/shopsync/internal/uuid"
)

// Ledger is an append/list/remove log over the pending_actions table.
// Entries are never merged or deduplicated by content; every failed
// mutation attempt is recorded verbatim in creation order. The gateway is
// the only appender; the sync engine is the only mutator.
type Ledger struct {
	db  *sql.DB
	log *logrus.Logger

	now func() time.Time
}

// New creates a Ledger over the store's database handle.
func New(db *sql.DB, log *logrus.Logger) *Ledger {
	return &Ledger{db: db, log: log, now: time.Now}
}

// Append records a mutation that could not be confirmed remotely and
// returns the created action.
func (l *Ledger) Append(kind string, payload interface{}) (models.PendingAction, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return models.PendingAction{}, fmt.Errorf("failed to encode payload: %w", err)
	}

	now := l.now().Unix()
	action := models.PendingAction{
		ID:        models.UUID(uuid.New()),
		Kind:      kind,
		Payload:   data,
		Status:    models.ActionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `INSERT INTO pending_actions (id, kind, payload, retry_count, status, last_error, created_at, updated_at)
			  VALUES (?, ?, ?, 0, ?, '', ?, ?)`
	if _, err := l.db.Exec(query, action.ID, action.Kind, string(action.Payload),
		action.Status, action.CreatedAt, action.UpdatedAt); err != nil {
		return models.PendingAction{}, fmt.Errorf("failed to append action: %w", err)
	}

	l.log.WithFields(logrus.Fields{"id": action.ID, "kind": kind}).Debug("ledger append")
	return action, nil
}

// List returns every ledger entry in creation order.
func (l *Ledger) List() []models.PendingAction {
	return l.query("SELECT id, kind, payload, retry_count, status, last_error, created_at, updated_at FROM pending_actions ORDER BY created_at, rowid")
}

// ListPending returns the entries eligible for a sync sweep, in creation
// order. Terminal failures are excluded.
func (l *Ledger) ListPending() []models.PendingAction {
	return l.query(
		"SELECT id, kind, payload, retry_count, status, last_error, created_at, updated_at FROM pending_actions WHERE status = ? ORDER BY created_at, rowid",
		models.ActionStatusPending)
}

// ListFailed returns the terminally failed entries retained for audit.
func (l *Ledger) ListFailed() []models.PendingAction {
	return l.query(
		"SELECT id, kind, payload, retry_count, status, last_error, created_at, updated_at FROM pending_actions WHERE status = ? ORDER BY created_at, rowid",
		models.ActionStatusFailed)
}

// Get returns a single entry by id.
func (l *Ledger) Get(id string) (models.PendingAction, bool) {
	actions := l.query(
		"SELECT id, kind, payload, retry_count, status, last_error, created_at, updated_at FROM pending_actions WHERE id = ?", id)
	if len(actions) == 0 {
		return models.PendingAction{}, false
	}
	return actions[0], true
}

// Remove deletes an entry, normally after confirmed remote success.
func (l *Ledger) Remove(id string) error {
	if _, err := l.db.Exec("DELETE FROM pending_actions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to remove action %s: %w", id, err)
	}
	return nil
}

// IncrementRetry bumps the retry counter and records the failure reason.
func (l *Ledger) IncrementRetry(id, lastErr string) error {
	query := `UPDATE pending_actions SET retry_count = retry_count + 1, last_error = ?, updated_at = ? WHERE id = ?`
	if _, err := l.db.Exec(query, lastErr, l.now().Unix(), id); err != nil {
		return fmt.Errorf("failed to increment retry for %s: %w", id, err)
	}
	return nil
}

// SetStatus transitions an entry's lifecycle state.
func (l *Ledger) SetStatus(id string, status models.ActionStatus, lastErr string) error {
	query := `UPDATE pending_actions SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`
	if _, err := l.db.Exec(query, status, lastErr, l.now().Unix(), id); err != nil {
		return fmt.Errorf("failed to set status for %s: %w", id, err)
	}
	return nil
}

// Claim atomically moves a pending entry to syncing and reports whether
// this caller won it. A sweep and a retry timer can race on the same
// entry; the row-level compare-and-set guarantees only one submits.
func (l *Ledger) Claim(id string) (bool, error) {
	query := `UPDATE pending_actions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := l.db.Exec(query, models.ActionStatusSyncing, l.now().Unix(), id, models.ActionStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", id, err)
	}
	return n == 1, nil
}

// RetryFailed resets every terminally failed entry to pending for a manual
// retry and returns how many were reset.
func (l *Ledger) RetryFailed() int {
	query := `UPDATE pending_actions SET status = ?, retry_count = 0, last_error = '', updated_at = ? WHERE status = ?`
	res, err := l.db.Exec(query, models.ActionStatusPending, l.now().Unix(), models.ActionStatusFailed)
	if err != nil {
		l.log.WithError(err).Warn("ledger retry-failed reset failed")
		return 0
	}
	n, _ := res.RowsAffected()
	return int(n)
}

// Clear drops every entry. This is the only bulk cancellation.
func (l *Ledger) Clear() error {
	if _, err := l.db.Exec("DELETE FROM pending_actions"); err != nil {
		return fmt.Errorf("failed to clear ledger: %w", err)
	}
	return nil
}

// Count returns the number of entries currently in the ledger.
func (l *Ledger) Count() int {
	var n int
	if err := l.db.QueryRow("SELECT COUNT(*) FROM pending_actions").Scan(&n); err != nil {
		l.log.WithError(err).Warn("ledger count failed")
		return 0
	}
	return n
}

func (l *Ledger) query(stmt string, args ...interface{}) []models.PendingAction {
	rows, err := l.db.Query(stmt, args...)
	if err != nil {
		l.log.WithError(err).Warn("ledger query failed")
		return nil
	}
	defer rows.Close()

	var actions []models.PendingAction
	for rows.Next() {
		var a models.PendingAction
		var payload string
		if err := rows.Scan(&a.ID, &a.Kind, &payload, &a.RetryCount, &a.Status, &a.LastError, &a.CreatedAt, &a.UpdatedAt); err != nil {
			l.log.WithError(err).Warn("ledger scan failed")
			return actions
		}
		a.Payload = json.RawMessage(payload)
		actions = append(actions, a)
	}
	return actions
}
