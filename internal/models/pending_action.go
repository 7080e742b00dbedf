// Package models provides data model definitions for the shopsync core.
package models

import (
	"encoding/json"
	"time"
)

// ActionStatus represents the lifecycle state of a pending action.
type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "pending"
	ActionStatusSyncing   ActionStatus = "syncing"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

// PendingAction is one mutation that has not yet been confirmed by the
// remote side. Rows are appended by the gateway, mutated only by the sync
// engine, removed on confirmed success and retained as failed when retries
// are exhausted.
type PendingAction struct {
	ID         UUID            `db:"id" json:"id"`
	Kind       string          `db:"kind" json:"kind"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	Status     ActionStatus    `db:"status" json:"status"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
	UpdatedAt  int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for PendingAction.
func (PendingAction) TableName() string {
	return "pending_actions"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (a *PendingAction) CreatedAtTime() time.Time {
	return time.Unix(a.CreatedAt, 0)
}
