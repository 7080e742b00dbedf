package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liyuan/shopsync/internal/auth"
	"github.com/liyuan/shopsync/internal/connectivity"
	apperrors "github.com/liyuan/shopsync/internal/errors"
	"github.com/liyuan/shopsync/internal/ledger"
	"github.com/liyuan/shopsync/internal/logging"
	"github.com/liyuan/shopsync/internal/models"
	"github.com/liyuan/shopsync/internal/remote"
	"github.com/liyuan/shopsync/internal/store"
	"github.com/liyuan/shopsync/internal/uuid"
)

// fakeRemote scripts responses and records the requests it saw.
type fakeRemote struct {
	mu      gosync.Mutex
	calls   []remote.Request
	respond func(req remote.Request) (remote.Response, error)
}

func (f *fakeRemote) Do(_ context.Context, req remote.Request) (remote.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(req)
	}
	return remote.Response{StatusCode: 200, Success: true}, nil
}

func (f *fakeRemote) requests() []remote.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.Request, len(f.calls))
	copy(out, f.calls)
	return out
}

type fixture struct {
	gw       *Gateway
	store    *store.Store
	ledger   *ledger.Ledger
	auth     *auth.Simulator
	observer *connectivity.Manual
	remote   *fakeRemote
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	log := logging.New(io.Discard, "error")
	s, err := store.Open(t.TempDir(), store.DefaultSchema(), log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	l := ledger.New(s.DB(), log)
	minter := auth.NewTokenMinter("test-secret", time.Hour, 24*time.Hour)
	sim := auth.NewSimulator(s, minter, log)
	obs := connectivity.NewManual(online)
	fr := &fakeRemote{}

	return &fixture{
		gw:       New(s, l, sim, fr, obs, Options{}, log),
		store:    s,
		ledger:   l,
		auth:     sim,
		observer: obs,
		remote:   fr,
	}
}

func (f *fixture) signIn(t *testing.T) models.Session {
	t.Helper()
	sess, err := f.auth.SignUp(auth.SignUpRequest{
		Email:       "shopper@example.com",
		Password:    "hunter2hunter2",
		DisplayName: "Shopper",
	})
	require.NoError(t, err)
	return sess
}

func (f *fixture) seedProduct(t *testing.T, id, name, category string, price float64) {
	t.Helper()
	rec, err := models.NewRecord(id, models.Product{
		ID:       models.UUID(id),
		Name:     name,
		Category: category,
		Price:    price,
		Stock:    5,
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Put("products", rec))
}

func TestOfflineWriteQueuesExactlyOneAction(t *testing.T) {
	f := newFixture(t, false)
	f.signIn(t)

	body, _ := json.Marshal(map[string]interface{}{
		"product_id": "p-1",
		"name":       "Mug",
		"price":      9.5,
		"quantity":   2,
	})
	res := f.gw.Do(context.Background(), Request{
		Endpoint:    "/cart/items",
		Method:      "POST",
		Body:        body,
		RequireAuth: true,
	})

	require.True(t, res.Success)
	assert.True(t, res.Queued)
	assert.Empty(t, f.remote.requests(), "offline requests must not touch the remote")

	actions := f.ledger.ListPending()
	require.Len(t, actions, 1)
	assert.Equal(t, "add_to_cart", actions[0].Kind)

	items := f.store.GetAll("cart")
	require.Len(t, items, 1)
	var item models.CartItem
	require.NoError(t, items[0].Decode(&item))
	assert.Equal(t, 2, item.Quantity)
	assert.True(t, uuid.IsLocal(string(item.ID)))
}

func TestRemoteGETCachesAndHydratesProducts(t *testing.T) {
	f := newFixture(t, true)
	catalog, _ := json.Marshal([]models.Product{
		{ID: "p-1", Name: "Mug", Category: "kitchen", Price: 9.5},
		{ID: "p-2", Name: "Lamp", Category: "home", Price: 30},
	})
	f.remote.respond = func(remote.Request) (remote.Response, error) {
		return remote.Response{StatusCode: 200, Success: true, Data: catalog}, nil
	}

	res := f.gw.Do(context.Background(), Request{Endpoint: "/products", Method: "GET", Cache: true})
	require.True(t, res.Success)
	assert.JSONEq(t, string(catalog), string(res.Data))

	// The same read works offline from the cache.
	f.observer.SetOnline(false)
	res = f.gw.Do(context.Background(), Request{Endpoint: "/products", Method: "GET", Cache: true})
	require.True(t, res.Success)
	assert.JSONEq(t, string(catalog), string(res.Data))

	// Individual products were hydrated into the collection.
	res = f.gw.Do(context.Background(), Request{Endpoint: "/products/p-2", Method: "GET"})
	require.True(t, res.Success)
	var p models.Product
	require.NoError(t, json.Unmarshal(res.Data, &p))
	assert.Equal(t, "Lamp", p.Name)
}

func TestOfflineSearchUsesLocalIndexes(t *testing.T) {
	f := newFixture(t, false)
	f.seedProduct(t, "p-1", "Ceramic Mug", "kitchen", 9.5)
	f.seedProduct(t, "p-2", "Desk Lamp", "home", 30)
	f.seedProduct(t, "p-3", "Kitchen Towel", "kitchen", 4)

	res := f.gw.Do(context.Background(), Request{Endpoint: "/products/search?q=kitchen", Method: "GET"})
	require.True(t, res.Success)

	var hits []models.Product
	require.NoError(t, json.Unmarshal(res.Data, &hits))
	require.Len(t, hits, 2)

	res = f.gw.Do(context.Background(), Request{Endpoint: "/products/search", Method: "GET"})
	require.False(t, res.Success)
	assert.Equal(t, apperrors.ErrValidation, res.Code)
}

func TestAuthGateBlocksWithoutSession(t *testing.T) {
	f := newFixture(t, false)

	res := f.gw.Do(context.Background(), Request{Endpoint: "/cart", Method: "GET", RequireAuth: true})
	require.False(t, res.Success)
	assert.Equal(t, apperrors.ErrAuthRequired, res.Code)
	assert.Empty(t, f.ledger.List())
}

func TestUnknownEndpointOffline(t *testing.T) {
	f := newFixture(t, false)

	res := f.gw.Do(context.Background(), Request{Endpoint: "/recommendations", Method: "GET"})
	require.False(t, res.Success)
	assert.Equal(t, apperrors.ErrEndpointUnavailableOffline, res.Code)
	assert.Equal(t, "Endpoint not available offline", res.Error)
}

func TestRemoteFailureFallsBackToLocal(t *testing.T) {
	f := newFixture(t, true)
	f.signIn(t)
	f.remote.respond = func(remote.Request) (remote.Response, error) {
		return remote.Response{}, stderrors.New("connection refused")
	}

	body, _ := json.Marshal(map[string]interface{}{"product_id": "p-1", "quantity": 1})
	res := f.gw.Do(context.Background(), Request{
		Endpoint:    "/cart/items",
		Method:      "POST",
		Body:        body,
		RequireAuth: true,
	})

	require.True(t, res.Success)
	assert.True(t, res.Queued)
	reqs := f.remote.requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Headers["Authorization"], "Bearer ")
	require.Len(t, f.ledger.ListPending(), 1)
}

func TestCreateOrderClearsCartAndQueues(t *testing.T) {
	f := newFixture(t, false)
	sess := f.signIn(t)

	for _, pid := range []string{"p-1", "p-2"} {
		body, _ := json.Marshal(map[string]interface{}{
			"product_id": pid,
			"price":      10.0,
			"quantity":   1,
		})
		res := f.gw.Do(context.Background(), Request{
			Endpoint:    "/cart/items",
			Method:      "POST",
			Body:        body,
			RequireAuth: true,
		})
		require.True(t, res.Success)
	}

	res := f.gw.Do(context.Background(), Request{
		Endpoint:    "/orders",
		Method:      "POST",
		Body:        json.RawMessage(`{"address_id":"addr-1"}`),
		RequireAuth: true,
	})
	require.True(t, res.Success)
	assert.True(t, res.Queued)

	var order models.Order
	require.NoError(t, json.Unmarshal(res.Data, &order))
	assert.True(t, uuid.IsLocal(string(order.ID)))
	assert.True(t, order.Local)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, sess.User.ID, order.UserID)
	assert.InDelta(t, 20.0, order.Total, 0.001)
	require.Len(t, order.Items, 2)

	// Cart and order atomicity: cart emptied, order durably stored.
	assert.Empty(t, f.store.GetAll("cart"))
	require.Len(t, f.store.GetAll("orders"), 1)

	kinds := make([]string, 0)
	for _, a := range f.ledger.ListPending() {
		kinds = append(kinds, a.Kind)
	}
	assert.Equal(t, []string{"add_to_cart", "add_to_cart", "create_order"}, kinds)
}

func TestCreateOrderRejectsEmptyCart(t *testing.T) {
	f := newFixture(t, false)
	f.signIn(t)

	res := f.gw.Do(context.Background(), Request{
		Endpoint:    "/orders",
		Method:      "POST",
		RequireAuth: true,
	})
	require.False(t, res.Success)
	assert.Equal(t, apperrors.ErrValidation, res.Code)
	assert.Empty(t, f.ledger.List())
}

func TestReconcileOrderSwapsLocalIdentity(t *testing.T) {
	f := newFixture(t, false)
	f.signIn(t)

	localID := uuid.NewLocal()
	order := models.Order{
		ID:     models.UUID(localID),
		Status: models.OrderStatusPending,
		Total:  20,
		Local:  true,
	}
	rec, err := models.NewRecord(localID, order)
	require.NoError(t, err)
	require.NoError(t, f.store.Put("orders", rec))

	payload, _ := json.Marshal(order)
	f.gw.reconcileOrder(
		models.PendingAction{Kind: "create_order", Payload: payload},
		remote.Response{StatusCode: 201, Success: true, Data: json.RawMessage(`{"id":"srv-42","status":"confirmed"}`)},
	)

	_, ok := f.store.Get("orders", localID)
	assert.False(t, ok, "local order must be replaced")

	got, ok := f.store.Get("orders", "srv-42")
	require.True(t, ok)
	var reconciled models.Order
	require.NoError(t, got.Decode(&reconciled))
	assert.False(t, reconciled.Local)
	assert.Equal(t, models.OrderStatusConfirmed, reconciled.Status)
	assert.InDelta(t, 20.0, reconciled.Total, 0.001)
}

func TestUpsertAddressOffline(t *testing.T) {
	f := newFixture(t, false)
	f.signIn(t)

	body, _ := json.Marshal(map[string]interface{}{
		"line1": "10 Main St",
		"city":  "Springfield",
	})
	res := f.gw.Do(context.Background(), Request{
		Endpoint:    "/addresses",
		Method:      "POST",
		Body:        body,
		RequireAuth: true,
	})
	require.True(t, res.Success)
	assert.True(t, res.Queued)

	var addr models.Address
	require.NoError(t, json.Unmarshal(res.Data, &addr))
	assert.True(t, uuid.IsLocal(string(addr.ID)))

	// PUT with the id in the path updates the same record.
	body, _ = json.Marshal(map[string]interface{}{
		"line1": "11 Main St",
		"city":  "Springfield",
	})
	res = f.gw.Do(context.Background(), Request{
		Endpoint:    "/addresses/" + string(addr.ID),
		Method:      "PUT",
		Body:        body,
		RequireAuth: true,
	})
	require.True(t, res.Success)
	require.Len(t, f.store.GetAll("addresses"), 1)

	kinds := make([]string, 0)
	for _, a := range f.ledger.ListPending() {
		kinds = append(kinds, a.Kind)
	}
	assert.Equal(t, []string{"upsert_address", "upsert_address"}, kinds)
}

func TestRemoveFromWishlistOffline(t *testing.T) {
	f := newFixture(t, false)
	f.signIn(t)

	body, _ := json.Marshal(map[string]interface{}{"product_id": "p-1"})
	res := f.gw.Do(context.Background(), Request{
		Endpoint:    "/wishlist/items",
		Method:      "POST",
		Body:        body,
		RequireAuth: true,
	})
	require.True(t, res.Success)

	var item models.WishlistItem
	require.NoError(t, json.Unmarshal(res.Data, &item))

	res = f.gw.Do(context.Background(), Request{
		Endpoint:    "/wishlist/items/" + string(item.ID),
		Method:      "DELETE",
		RequireAuth: true,
	})
	require.True(t, res.Success)
	assert.True(t, res.Queued)
	assert.Empty(t, f.store.GetAll("wishlist"))
	require.Len(t, f.ledger.ListPending(), 2)
	assert.Equal(t, "remove_from_wishlist", f.ledger.ListPending()[1].Kind)
}
