package sync

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liyuan/shopsync/internal/connectivity"
	apperrors "github.com/liyuan/shopsync/internal/errors"
	"github.com/liyuan/shopsync/internal/ledger"
	"github.com/liyuan/shopsync/internal/models"
	"github.com/liyuan/shopsync/internal/remote"
)

// EventType classifies engine notifications.
type EventType string

const (
	EventSynced EventType = "synced"
	EventFailed EventType = "failed"
)

// Event is emitted when an action reaches a terminal state.
type Event struct {
	Type     EventType
	Action   models.PendingAction
	Response remote.Response
	Reason   string
}

// CompletionHook runs after an action of its kind is confirmed remotely,
// before the ledger entry is removed. Used for local reconciliation such
// as swapping a local order id for the remote-assigned one.
type CompletionHook func(action models.PendingAction, resp remote.Response)

// Options configures the engine.
type Options struct {
	Routes         Routes
	Interval       time.Duration
	RequestTimeout time.Duration
	BackoffBase    time.Duration
	BackoffCap     time.Duration
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		Routes:         DefaultRoutes(),
		Interval:       30 * time.Second,
		RequestTimeout: 12 * time.Second,
		BackoffBase:    1 * time.Second,
		BackoffCap:     30 * time.Second,
	}
}

// Engine drains the pending action ledger against the remote side.
// At most one sweep runs at a time; overlapping triggers coalesce into a
// no-op. Per-item retry timers fire independently of sweep boundaries.
type Engine struct {
	ledger   *ledger.Ledger
	remote   remote.Client
	observer connectivity.Observer
	opts     Options
	log      *logrus.Logger

	busy atomic.Bool

	mu       sync.Mutex
	lastSync *time.Time
	lastErr  error
	subs     map[int]func(Event)
	nextSub  int
	hooks    map[string]CompletionHook
	timers   map[string]*time.Timer
	runCtx   context.Context

	// afterFunc is injectable so tests can observe scheduled delays.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

// NewEngine creates an Engine. Zero option fields fall back to defaults.
func NewEngine(l *ledger.Ledger, rc remote.Client, obs connectivity.Observer, opts Options, log *logrus.Logger) *Engine {
	def := DefaultOptions()
	if opts.Routes == nil {
		opts.Routes = def.Routes
	}
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = def.RequestTimeout
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = def.BackoffBase
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = def.BackoffCap
	}

	return &Engine{
		ledger:    l,
		remote:    rc,
		observer:  obs,
		opts:      opts,
		log:       log,
		subs:      make(map[int]func(Event)),
		hooks:     make(map[string]CompletionHook),
		timers:    make(map[string]*time.Timer),
		afterFunc: time.AfterFunc,
	}
}

// Subscribe registers fn for sync events and returns an unsubscribe
// function.
func (e *Engine) Subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// RegisterHook installs the completion hook for an action kind, replacing
// any previous one.
func (e *Engine) RegisterHook(kind string, hook CompletionHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks[kind] = hook
}

// LastSync returns the end time of the last clean sweep.
func (e *Engine) LastSync() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// LastError returns the last sweep error.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Busy reports whether a sweep is in flight.
func (e *Engine) Busy() bool {
	return e.busy.Load()
}

// PendingChanges returns the number of ledger entries awaiting sync.
func (e *Engine) PendingChanges() int {
	return len(e.ledger.ListPending())
}

// Run drives the engine until ctx is cancelled: it sweeps when
// connectivity returns and on a fixed periodic timer. The initial sweep
// happens immediately if the observer reports online.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	e.runCtx = ctx
	e.mu.Unlock()

	var unsubscribe func()
	if e.observer != nil {
		unsubscribe = e.observer.Subscribe(func(online bool) {
			if online {
				go e.SyncNow(ctx)
			}
		})
		if e.observer.Online() {
			go e.SyncNow(ctx)
		}
	}

	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if unsubscribe != nil {
				unsubscribe()
			}
			e.stopTimers()
			return
		case <-ticker.C:
			if _, err := e.SyncNow(ctx); err != nil && !apperrors.Is(err, apperrors.ErrSyncInProgress) {
				e.log.WithError(err).Warn("periodic sync failed")
			}
		}
	}
}

// Result summarizes one sweep.
type Result struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Processed int
	Completed int
	Retried   int
	Failed    int
}

// SyncNow performs one sweep: snapshot the pending ledger entries, order
// by (priority desc, createdAt asc) and process sequentially. Returns
// ErrSyncInProgress when a sweep is already in flight.
func (e *Engine) SyncNow(ctx context.Context) (*Result, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, apperrors.New(apperrors.ErrSyncInProgress, "sync already in progress")
	}
	defer e.busy.Store(false)

	result := &Result{StartTime: time.Now()}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	if e.observer != nil && !e.observer.Online() {
		e.log.Debug("sweep skipped: offline")
		return result, nil
	}

	items := e.collect()
	for _, item := range items {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		result.Processed++
		switch e.process(ctx, item) {
		case outcomeCompleted:
			result.Completed++
		case outcomeRetried:
			result.Retried++
		case outcomeFailed:
			result.Failed++
		}
	}

	now := time.Now()
	e.mu.Lock()
	e.lastSync = &now
	e.lastErr = nil
	e.mu.Unlock()

	return result, nil
}

// collect snapshots the sweepable queue: pending entries joined with
// their routes, priority strictly dominating and FIFO within a tier.
// Entries with no declared route fail terminally.
func (e *Engine) collect() []QueueItem {
	actions := e.ledger.ListPending()

	items := make([]QueueItem, 0, len(actions))
	for _, a := range actions {
		item, ok := itemFromAction(a, e.opts.Routes)
		if !ok {
			reason := fmt.Sprintf("no route for kind %q", a.Kind)
			e.failTerminally(a, remote.Response{}, reason)
			continue
		}
		items = append(items, item)
	}

	// ListPending returns creation order; a stable sort preserves it
	// within each priority tier.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority.rank() > items[j].Priority.rank()
	})
	return items
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeRetried
	outcomeFailed
)

// process sends one item and applies the response classification:
// 2xx completes, 5xx/429 and timeouts/unreachable retry with backoff up
// to the item's ceiling, everything else fails terminally.
func (e *Engine) process(ctx context.Context, item QueueItem) outcome {
	claimed, err := e.ledger.Claim(item.ID)
	if err != nil {
		e.log.WithError(err).WithField("id", item.ID).Warn("failed to claim item")
		return outcomeFailed
	}
	if !claimed {
		// A concurrent sender already owns, completed or removed it.
		return outcomeCompleted
	}
	action, ok := e.ledger.Get(item.ID)
	if !ok {
		return outcomeCompleted
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	resp, err := e.remote.Do(reqCtx, remote.Request{
		Endpoint: item.Endpoint,
		Method:   item.Method,
		Headers:  item.Headers,
		Body:     item.Body,
	})
	cancel()

	switch {
	case err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300:
		e.complete(action, resp)
		return outcomeCompleted

	case isRetryableStatus(resp.StatusCode) && err == nil,
		err != nil && isRetryableErr(err):
		reason := failureReason(resp, err)
		if item.RetryCount < item.MaxRetries {
			e.scheduleRetry(item, reason)
			return outcomeRetried
		}
		e.failTerminally(action, resp, reason)
		return outcomeFailed

	default:
		// Other 4xx and non-timeout network errors are not retried.
		e.failTerminally(action, resp, failureReason(resp, err))
		return outcomeFailed
	}
}

func (e *Engine) complete(action models.PendingAction, resp remote.Response) {
	e.mu.Lock()
	hook := e.hooks[action.Kind]
	e.mu.Unlock()
	if hook != nil {
		hook(action, resp)
	}

	if err := e.ledger.Remove(string(action.ID)); err != nil {
		e.log.WithError(err).WithField("id", action.ID).Warn("failed to remove synced action")
	}

	e.log.WithFields(logrus.Fields{"id": action.ID, "kind": action.Kind}).Info("action synced")
	e.emit(Event{Type: EventSynced, Action: action, Response: resp})
}

// scheduleRetry increments the retry counter, returns the item to pending
// and arms an isolated retry timer independent of the next full sweep.
func (e *Engine) scheduleRetry(item QueueItem, reason string) {
	delay := e.backoff(item.RetryCount)

	if err := e.ledger.IncrementRetry(item.ID, reason); err != nil {
		e.log.WithError(err).WithField("id", item.ID).Warn("failed to increment retry")
	}
	if err := e.ledger.SetStatus(item.ID, models.ActionStatusPending, reason); err != nil {
		e.log.WithError(err).WithField("id", item.ID).Warn("failed to reset item to pending")
	}

	e.log.WithFields(logrus.Fields{
		"id":    item.ID,
		"kind":  item.Kind,
		"retry": item.RetryCount + 1,
		"max":   item.MaxRetries,
		"delay": delay.String(),
	}).Warn("action retry scheduled")

	id := item.ID
	e.mu.Lock()
	if old, ok := e.timers[id]; ok {
		old.Stop()
	}
	e.timers[id] = e.afterFunc(delay, func() {
		e.mu.Lock()
		delete(e.timers, id)
		ctx := e.runCtx
		e.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		e.retryOne(ctx, id)
	})
	e.mu.Unlock()
}

func (e *Engine) failTerminally(action models.PendingAction, resp remote.Response, reason string) {
	if err := e.ledger.SetStatus(string(action.ID), models.ActionStatusFailed, reason); err != nil {
		e.log.WithError(err).WithField("id", action.ID).Warn("failed to mark action failed")
	}

	e.log.WithFields(logrus.Fields{"id": action.ID, "kind": action.Kind, "reason": reason}).Error("action failed terminally")
	e.emit(Event{Type: EventFailed, Action: action, Response: resp, Reason: reason})
}

// retryOne re-sends a single item when its backoff timer fires. The item
// may have been completed or cleared by a sweep in the meantime.
func (e *Engine) retryOne(ctx context.Context, id string) {
	if ctx.Err() != nil {
		return
	}
	action, ok := e.ledger.Get(id)
	if !ok || action.Status != models.ActionStatusPending {
		return
	}
	item, ok := itemFromAction(action, e.opts.Routes)
	if !ok {
		return
	}
	e.process(ctx, item)
}

// backoff computes min(base * 2^retries, cap).
func (e *Engine) backoff(retries int) time.Duration {
	delay := e.opts.BackoffBase << uint(retries)
	if delay > e.opts.BackoffCap || delay <= 0 {
		delay = e.opts.BackoffCap
	}
	return delay
}

func (e *Engine) emit(ev Event) {
	e.mu.Lock()
	fns := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (e *Engine) stopTimers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}

// isRetryableStatus reports whether an HTTP status warrants a retry.
func isRetryableStatus(status int) bool {
	return status == 429 || status >= 500
}

// isRetryableErr reports whether a transport error warrants a retry:
// timeouts and unreachable networks do, other network-level errors do not.
func isRetryableErr(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return true
	}
	var errno syscall.Errno
	if stderrors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	return false
}

func failureReason(resp remote.Response, err error) string {
	if err != nil {
		return err.Error()
	}
	if resp.Error != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, resp.Error)
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
