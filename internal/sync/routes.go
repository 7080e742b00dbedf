// Package sync provides the background scheduler that drains the pending
// action ledger against the remote side with priority ordering,
// exponential backoff and retry ceilings.
package sync

import (
	"encoding/json"
	"time"

	"github.com/liyuan/shopsync/internal/models"
)

// Priority orders queue items within a sweep. Priority strictly dominates;
// items of equal priority are processed FIFO by creation time.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// rank maps a priority to its ordering weight. Unknown values sort lowest.
func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Route declares how one action kind reaches the remote side. Adding a
// mutation kind is a data change here, not a new code branch.
type Route struct {
	Endpoint   string
	Method     string
	Priority   Priority
	MaxRetries int
}

// Routes maps action kinds to their remote routing.
type Routes map[string]Route

// DefaultRoutes returns the routing table for every mutation kind the
// gateway enqueues. Order creation carries a higher retry ceiling.
func DefaultRoutes() Routes {
	return Routes{
		"add_to_cart":          {Endpoint: "/cart/items", Method: "POST", Priority: PriorityMedium, MaxRetries: 3},
		"remove_from_cart":     {Endpoint: "/cart/items", Method: "DELETE", Priority: PriorityMedium, MaxRetries: 3},
		"add_to_wishlist":      {Endpoint: "/wishlist/items", Method: "POST", Priority: PriorityLow, MaxRetries: 3},
		"remove_from_wishlist": {Endpoint: "/wishlist/items", Method: "DELETE", Priority: PriorityLow, MaxRetries: 3},
		"create_order":         {Endpoint: "/orders", Method: "POST", Priority: PriorityHigh, MaxRetries: 5},
		"upsert_address":       {Endpoint: "/addresses", Method: "PUT", Priority: PriorityMedium, MaxRetries: 3},
	}
}

// QueueItem is the in-memory unit a sweep operates on: a ledger entry
// joined with its routing metadata.
type QueueItem struct {
	ID         string
	Kind       string
	Endpoint   string
	Method     string
	Body       json.RawMessage
	Headers    map[string]string
	Priority   Priority
	CreatedAt  time.Time
	RetryCount int
	MaxRetries int
	Status     models.ActionStatus
}

// itemFromAction joins a ledger entry with its route. The second return is
// false when no route is declared for the action's kind.
func itemFromAction(a models.PendingAction, routes Routes) (QueueItem, bool) {
	route, ok := routes[a.Kind]
	if !ok {
		return QueueItem{}, false
	}
	return QueueItem{
		ID:         string(a.ID),
		Kind:       a.Kind,
		Endpoint:   route.Endpoint,
		Method:     route.Method,
		Body:       a.Payload,
		Priority:   route.Priority,
		CreatedAt:  a.CreatedAtTime(),
		RetryCount: a.RetryCount,
		MaxRetries: route.MaxRetries,
		Status:     a.Status,
	}, true
}
