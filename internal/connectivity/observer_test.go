package connectivity

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liyuan/shopsync/internal/logging"
)

func TestManualNotifiesOnTransitionOnly(t *testing.T) {
	m := NewManual(true)
	require.True(t, m.Online())

	var events []bool
	unsubscribe := m.Subscribe(func(online bool) {
		events = append(events, online)
	})

	m.SetOnline(true) // no transition
	m.SetOnline(false)
	m.SetOnline(false) // no transition
	m.SetOnline(true)

	assert.Equal(t, []bool{false, true}, events)

	unsubscribe()
	m.SetOnline(false)
	assert.Equal(t, []bool{false, true}, events)
}

func TestProberDetectsServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewProber(srv.URL, time.Hour, logging.New(io.Discard, "error"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.check(ctx)
	assert.True(t, p.Online())
}

func TestProberGoesOfflineOnTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // nothing listens anymore

	p := NewProber(url, time.Hour, logging.New(io.Discard, "error"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.check(ctx)
	assert.False(t, p.Online())
}

func TestProberErrorStatusStillCountsAsOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewProber(srv.URL, time.Hour, logging.New(io.Discard, "error"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.check(ctx)
	assert.True(t, p.Online())
}
