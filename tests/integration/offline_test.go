// End-to-end flow: every shopping operation keeps working without
// network connectivity, and queued mutations drain once it returns.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liyuan/shopsync/internal/auth"
	"github.com/liyuan/shopsync/internal/connectivity"
	"github.com/liyuan/shopsync/internal/gateway"
	"github.com/liyuan/shopsync/internal/ledger"
	"github.com/liyuan/shopsync/internal/logging"
	"github.com/liyuan/shopsync/internal/models"
	"github.com/liyuan/shopsync/internal/remote"
	"github.com/liyuan/shopsync/internal/store"
	"github.com/liyuan/shopsync/internal/sync"
	"github.com/liyuan/shopsync/internal/uuid"
)

// backend records the mutations the client replays and assigns server
// identities to created orders.
type backend struct {
	mu       gosync.Mutex
	received []string
	orders   int
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		products := []models.Product{
			{ID: "p-1", Name: "Ceramic Mug", Category: "kitchen", Price: 9.5, Stock: 12},
			{ID: "p-2", Name: "Desk Lamp", Category: "home", Price: 30, Stock: 3},
		}
		json.NewEncoder(w).Encode(products)
	})
	record := func(kind string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body)
			b.mu.Lock()
			b.received = append(b.received, kind+" "+r.Method)
			b.mu.Unlock()
			w.Write([]byte(`{"success":true}`))
		}
	}
	mux.Handle("/cart/items", record("cart"))
	mux.Handle("/wishlist/items", record("wishlist"))
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		b.mu.Lock()
		b.orders++
		n := b.orders
		b.received = append(b.received, "orders "+r.Method)
		b.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     fmt.Sprintf("srv-order-%d", n),
			"status": "confirmed",
		})
	})
	return mux
}

func (b *backend) seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.received))
	copy(out, b.received)
	return out
}

func TestOfflinePurchaseFlowDrainsOnReconnect(t *testing.T) {
	log := logging.New(io.Discard, "error")
	be := &backend{}
	srv := httptest.NewServer(be.handler())
	defer srv.Close()

	s, err := store.Open(t.TempDir(), store.DefaultSchema(), log)
	require.NoError(t, err)
	defer s.Close()

	l := ledger.New(s.DB(), log)
	minter := auth.NewTokenMinter("integration-secret", time.Hour, 24*time.Hour)
	sim := auth.NewSimulator(s, minter, log)
	obs := connectivity.NewManual(true)
	rc := remote.NewHTTPClient(srv.URL, log)

	engine := sync.NewEngine(l, rc, obs, sync.Options{
		Interval:       time.Hour,
		RequestTimeout: 2 * time.Second,
		BackoffBase:    10 * time.Millisecond,
		BackoffCap:     50 * time.Millisecond,
	}, log)

	gw := gateway.New(s, l, sim, rc, obs, gateway.Options{RequestTimeout: 2 * time.Second}, log)
	gw.RegisterReconcilers(engine)

	// Account setup works with no server-side involvement at all.
	_, err = sim.SignUp(auth.SignUpRequest{
		Email:       "ada@example.com",
		Password:    "correct-horse",
		DisplayName: "Ada",
	})
	require.NoError(t, err)

	// Warm the catalog while online.
	res := gw.Do(context.Background(), gateway.Request{Endpoint: "/products", Method: "GET", Cache: true})
	require.True(t, res.Success)

	// Connection drops.
	obs.SetOnline(false)

	// Browsing still works from the hydrated local catalog.
	res = gw.Do(context.Background(), gateway.Request{Endpoint: "/products/search?q=mug", Method: "GET"})
	require.True(t, res.Success)
	var hits []models.Product
	require.NoError(t, json.Unmarshal(res.Data, &hits))
	require.Len(t, hits, 1)

	// Shopping offline: two cart adds, a wishlist save, then checkout.
	addItem := func(endpoint string, payload map[string]interface{}) {
		body, err := json.Marshal(payload)
		require.NoError(t, err)
		r := gw.Do(context.Background(), gateway.Request{
			Endpoint:    endpoint,
			Method:      "POST",
			Body:        body,
			RequireAuth: true,
		})
		require.True(t, r.Success)
		require.True(t, r.Queued)
	}
	addItem("/cart/items", map[string]interface{}{"product_id": "p-1", "price": 9.5, "quantity": 2})
	addItem("/cart/items", map[string]interface{}{"product_id": "p-2", "price": 30.0, "quantity": 1})
	addItem("/wishlist/items", map[string]interface{}{"product_id": "p-2"})

	res = gw.Do(context.Background(), gateway.Request{
		Endpoint:    "/orders",
		Method:      "POST",
		RequireAuth: true,
	})
	require.True(t, res.Success)
	var order models.Order
	require.NoError(t, json.Unmarshal(res.Data, &order))
	require.True(t, uuid.IsLocal(string(order.ID)))
	assert.InDelta(t, 49.0, order.Total, 0.001)
	assert.Empty(t, s.GetAll("cart"), "checkout empties the cart")

	require.Len(t, l.ListPending(), 4)
	assert.Empty(t, be.seen(), "nothing reaches the server while offline")

	// Connection returns; one sweep replays everything.
	obs.SetOnline(true)
	result, err := engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 4, result.Completed)
	assert.Empty(t, l.List(), "queue fully drained")

	// The order went out first despite being enqueued last.
	seen := be.seen()
	require.NotEmpty(t, seen)
	assert.Equal(t, "orders POST", seen[0])

	// Reconciliation replaced the provisional order with the server one.
	_, ok := s.Get("orders", string(order.ID))
	assert.False(t, ok)
	rec, ok := s.Get("orders", "srv-order-1")
	require.True(t, ok)
	var confirmed models.Order
	require.NoError(t, rec.Decode(&confirmed))
	assert.Equal(t, models.OrderStatusConfirmed, confirmed.Status)
	assert.False(t, confirmed.Local)
}
