// Package gateway provides the single request entry point used by
// application code: it attempts the remote call and transparently falls
// back to local execution when offline or on failure.
package gateway

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liyuan/shopsync/internal/auth"
	"github.com/liyuan/shopsync/internal/connectivity"
	apperrors "github.com/liyuan/shopsync/internal/errors"
	"github.com/liyuan/shopsync/internal/ledger"
	"github.com/liyuan/shopsync/internal/models"
	"github.com/liyuan/shopsync/internal/remote"
	"github.com/liyuan/shopsync/internal/store"
)

// Request describes one gateway call.
type Request struct {
	Endpoint    string
	Method      string
	Headers     map[string]string
	Body        json.RawMessage
	RequireAuth bool
	Cache       bool
	CacheTTL    time.Duration
	Offline     bool // forces the local path without a remote attempt
}

// Result is what every gateway call returns. Queued marks a provisional
// local result whose mutation awaits remote confirmation, as opposed to a
// confirmed remote one.
type Result struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data,omitempty"`
	Error   string              `json:"error,omitempty"`
	Code    apperrors.ErrorCode `json:"code,omitempty"`
	Queued  bool                `json:"queued,omitempty"`
}

// Handler executes an endpoint's local fallback. params holds path
// segment captures, query the parsed query string; session is non-nil
// when the request required auth.
type Handler func(req Request, params map[string]string, query url.Values, session *models.Session) Result

// Options configures the gateway.
type Options struct {
	RequestTimeout  time.Duration
	DefaultCacheTTL time.Duration
}

// Gateway routes requests remote-first with per-endpoint local fallbacks.
type Gateway struct {
	store    *store.Store
	ledger   *ledger.Ledger
	auth     *auth.Simulator
	remote   remote.Client
	observer connectivity.Observer
	opts     Options
	log      *logrus.Logger

	routes []fallbackRoute
}

type fallbackRoute struct {
	method   string
	segments []string
	handler  Handler
}

// New creates a Gateway with the default fallback registry installed.
func New(s *store.Store, l *ledger.Ledger, a *auth.Simulator, rc remote.Client, obs connectivity.Observer, opts Options, log *logrus.Logger) *Gateway {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 12 * time.Second
	}
	if opts.DefaultCacheTTL <= 0 {
		opts.DefaultCacheTTL = 5 * time.Minute
	}
	g := &Gateway{
		store:    s,
		ledger:   l,
		auth:     a,
		remote:   rc,
		observer: obs,
		opts:     opts,
		log:      log,
	}
	g.registerDefaults()
	return g
}

// Register installs a local fallback for "METHOD /path" where path
// segments of the form {name} capture their value.
func (g *Gateway) Register(method, pattern string, h Handler) {
	g.routes = append(g.routes, fallbackRoute{
		method:   strings.ToUpper(method),
		segments: splitPath(pattern),
		handler:  h,
	})
}

// Do executes one request: auth gate, remote attempt under a bounded
// timeout, then the endpoint's local fallback.
func (g *Gateway) Do(ctx context.Context, req Request) Result {
	var session *models.Session
	if req.RequireAuth {
		s, ok := g.auth.CurrentSession()
		if !ok {
			return Result{Success: false, Error: "authentication required", Code: apperrors.ErrAuthRequired}
		}
		session = &s
	}

	offline := req.Offline || (g.observer != nil && !g.observer.Online())
	if !offline {
		if res, ok := g.tryRemote(ctx, req, session); ok {
			return res
		}
	}

	return g.fallback(req, session)
}

// tryRemote attempts the remote call. The second return is false when the
// caller should fall back locally.
func (g *Gateway) tryRemote(ctx context.Context, req Request, session *models.Session) (Result, bool) {
	headers := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		headers[k] = v
	}
	if session != nil {
		headers["Authorization"] = "Bearer " + session.AccessToken
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.opts.RequestTimeout)
	defer cancel()

	resp, err := g.remote.Do(reqCtx, remote.Request{
		Endpoint: req.Endpoint,
		Method:   req.Method,
		Headers:  headers,
		Body:     req.Body,
	})
	if err != nil {
		g.log.WithError(err).WithField("endpoint", req.Endpoint).Debug("remote attempt failed, falling back")
		return Result{}, false
	}
	if !resp.Success {
		g.log.WithFields(logrus.Fields{
			"endpoint": req.Endpoint,
			"status":   resp.StatusCode,
		}).Debug("remote attempt unsuccessful, falling back")
		return Result{}, false
	}

	if strings.EqualFold(req.Method, "GET") && req.Cache {
		ttl := req.CacheTTL
		if ttl <= 0 {
			ttl = g.opts.DefaultCacheTTL
		}
		if err := g.store.SetCacheRaw(cacheKey(req), resp.Data, ttl); err == nil {
			g.hydrateCollections(req, resp.Data)
		}
	}

	return Result{Success: true, Data: resp.Data}, true
}

// fallback dispatches to the endpoint's local handler.
func (g *Gateway) fallback(req Request, session *models.Session) Result {
	path, query := splitQuery(req.Endpoint)
	segments := splitPath(path)

	for _, route := range g.routes {
		if route.method != strings.ToUpper(req.Method) {
			continue
		}
		params, ok := matchSegments(route.segments, segments)
		if !ok {
			continue
		}
		return route.handler(req, params, query, session)
	}

	return Result{
		Success: false,
		Error:   "Endpoint not available offline",
		Code:    apperrors.ErrEndpointUnavailableOffline,
	}
}

// hydrateCollections mirrors fresh remote read results into the backing
// collection so later offline fallbacks see them, not only the TTL cache.
func (g *Gateway) hydrateCollections(req Request, data json.RawMessage) {
	path, _ := splitQuery(req.Endpoint)
	if path != "/products" {
		return
	}
	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return
	}
	for _, p := range products {
		rec, err := models.NewRecord(string(p.ID), p)
		if err != nil {
			continue
		}
		g.store.Put("products", rec)
	}
}

func cacheKey(req Request) string {
	return "gw:" + strings.ToUpper(req.Method) + ":" + req.Endpoint
}

func splitQuery(endpoint string) (string, url.Values) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint, url.Values{}
	}
	return u.Path, u.Query()
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// matchSegments matches concrete path segments against a pattern,
// capturing {name} placeholders.
func matchSegments(pattern, actual []string) (map[string]string, bool) {
	if len(pattern) != len(actual) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range pattern {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			params[strings.Trim(seg, "{}")] = actual[i]
			continue
		}
		if seg != actual[i] {
			return nil, false
		}
	}
	return params, true
}
