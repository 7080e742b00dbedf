package gateway

import (
	"encoding/json"
	"net/url"
	"time"

	apperrors "github.com/liyuan/shopsync/internal/errors"
	"github.com/liyuan/shopsync/internal/models"
	"github.com/liyuan/shopsync/internal/remote"
	"github.com/liyuan/shopsync/internal/store"
	syncengine "github.com/liyuan/shopsync/internal/sync"
	"github.com/liyuan/shopsync/internal/uuid"
)

// registerDefaults installs the local fallback for every endpoint the
// client uses. Reads serve from the cache or the backing collection;
// writes apply optimistically and append to the pending action ledger.
func (g *Gateway) registerDefaults() {
	g.Register("GET", "/products", g.listProducts)
	g.Register("GET", "/products/search", g.searchProducts)
	g.Register("GET", "/products/{id}", g.getProduct)

	g.Register("GET", "/cart", g.listCart)
	g.Register("POST", "/cart/items", g.addToCart)
	g.Register("DELETE", "/cart/items/{id}", g.removeFromCart)

	g.Register("GET", "/wishlist", g.listWishlist)
	g.Register("POST", "/wishlist/items", g.addToWishlist)
	g.Register("DELETE", "/wishlist/items/{id}", g.removeFromWishlist)

	g.Register("GET", "/orders", g.listOrders)
	g.Register("POST", "/orders", g.createOrder)

	g.Register("GET", "/addresses", g.listAddresses)
	g.Register("POST", "/addresses", g.upsertAddress)
	g.Register("PUT", "/addresses/{id}", g.upsertAddress)
}

// RegisterReconcilers installs the completion hooks that reconcile
// optimistic local state once the sync engine confirms a mutation
// remotely, e.g. swapping a local order id for the remote-assigned one.
func (g *Gateway) RegisterReconcilers(engine *syncengine.Engine) {
	engine.RegisterHook("create_order", g.reconcileOrder)
}

// Products

func (g *Gateway) listProducts(req Request, _ map[string]string, _ url.Values, _ *models.Session) Result {
	if raw, ok := g.store.GetCacheRaw(cacheKey(req)); ok {
		return Result{Success: true, Data: raw}
	}

	products := make([]json.RawMessage, 0)
	for _, rec := range g.store.GetAll("products") {
		products = append(products, rec.Data)
	}
	return okJSON(products)
}

func (g *Gateway) getProduct(_ Request, params map[string]string, _ url.Values, _ *models.Session) Result {
	rec, ok := g.store.Get("products", params["id"])
	if !ok {
		return Result{Success: false, Error: "product not found", Code: apperrors.ErrNotFound}
	}
	return Result{Success: true, Data: rec.Data}
}

func (g *Gateway) searchProducts(_ Request, _ map[string]string, query url.Values, _ *models.Session) Result {
	q := query.Get("q")
	if q == "" {
		return Result{Success: false, Error: "missing query parameter q", Code: apperrors.ErrValidation}
	}

	seen := make(map[string]bool)
	hits := make([]json.RawMessage, 0)
	for _, index := range []string{"name", "category"} {
		for _, rec := range g.store.SearchByIndex("products", index, q) {
			if seen[rec.Key] {
				continue
			}
			seen[rec.Key] = true
			hits = append(hits, rec.Data)
		}
	}
	return okJSON(hits)
}

// Cart

func (g *Gateway) listCart(_ Request, _ map[string]string, _ url.Values, session *models.Session) Result {
	return okJSON(g.collectionForUser("cart", session))
}

func (g *Gateway) addToCart(req Request, _ map[string]string, _ url.Values, session *models.Session) Result {
	var item models.CartItem
	if err := json.Unmarshal(req.Body, &item); err != nil {
		return Result{Success: false, Error: "malformed cart item", Code: apperrors.ErrValidation}
	}
	if item.ProductID == "" || item.Quantity <= 0 {
		return Result{Success: false, Error: "product_id and a positive quantity are required", Code: apperrors.ErrValidation}
	}

	item.ID = models.UUID(uuid.NewLocal())
	if session != nil {
		item.UserID = session.User.ID
	}
	item.AddedAt = nowUnix()

	return g.optimisticPut("cart", string(item.ID), item, "add_to_cart")
}

func (g *Gateway) removeFromCart(_ Request, params map[string]string, _ url.Values, _ *models.Session) Result {
	return g.optimisticDelete("cart", params["id"], "remove_from_cart")
}

// Wishlist

func (g *Gateway) listWishlist(_ Request, _ map[string]string, _ url.Values, session *models.Session) Result {
	return okJSON(g.collectionForUser("wishlist", session))
}

func (g *Gateway) addToWishlist(req Request, _ map[string]string, _ url.Values, session *models.Session) Result {
	var item models.WishlistItem
	if err := json.Unmarshal(req.Body, &item); err != nil {
		return Result{Success: false, Error: "malformed wishlist item", Code: apperrors.ErrValidation}
	}
	if item.ProductID == "" {
		return Result{Success: false, Error: "product_id is required", Code: apperrors.ErrValidation}
	}

	item.ID = models.UUID(uuid.NewLocal())
	if session != nil {
		item.UserID = session.User.ID
	}
	item.AddedAt = nowUnix()

	return g.optimisticPut("wishlist", string(item.ID), item, "add_to_wishlist")
}

func (g *Gateway) removeFromWishlist(_ Request, params map[string]string, _ url.Values, _ *models.Session) Result {
	return g.optimisticDelete("wishlist", params["id"], "remove_from_wishlist")
}

// Orders

func (g *Gateway) listOrders(_ Request, _ map[string]string, _ url.Values, session *models.Session) Result {
	return okJSON(g.collectionForUser("orders", session))
}

// createOrder synthesizes a locally identified order from the user's cart
// and clears the cart in the same logical transaction, then enqueues the
// mutation for the sync engine.
func (g *Gateway) createOrder(req Request, _ map[string]string, _ url.Values, session *models.Session) Result {
	var body struct {
		AddressID string `json:"address_id"`
	}
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return Result{Success: false, Error: "malformed order request", Code: apperrors.ErrValidation}
		}
	}

	var items []models.CartItem
	var userID models.UUID
	if session != nil {
		userID = session.User.ID
	}
	for _, rec := range g.store.GetAll("cart") {
		var item models.CartItem
		if err := rec.Decode(&item); err != nil {
			continue
		}
		if userID != "" && item.UserID != userID {
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return Result{Success: false, Error: "cart is empty", Code: apperrors.ErrValidation}
	}

	total := 0.0
	for _, item := range items {
		total += item.Price * float64(item.Quantity)
	}

	order := models.Order{
		ID:        models.UUID(uuid.NewLocal()),
		UserID:    userID,
		Items:     items,
		Total:     total,
		Status:    models.OrderStatusPending,
		AddressID: models.UUID(body.AddressID),
		Local:     true,
		CreatedAt: nowUnix(),
	}

	rec, err := models.NewRecord(string(order.ID), order)
	if err != nil {
		return Result{Success: false, Error: "failed to encode order", Code: apperrors.ErrInternal}
	}

	ops := []store.WriteOp{{Kind: store.WritePut, Collection: "orders", Record: rec}}
	for _, item := range items {
		ops = append(ops, store.WriteOp{Kind: store.WriteDelete, Collection: "cart", Key: string(item.ID)})
	}
	if err := g.store.Apply(ops); err != nil {
		g.log.WithError(err).Warn("order transaction failed")
		return Result{Success: false, Error: "failed to store order locally", Code: apperrors.ErrStorage}
	}

	if _, err := g.ledger.Append("create_order", order); err != nil {
		g.log.WithError(err).Warn("failed to enqueue order")
		return Result{Success: false, Error: "failed to queue order for sync", Code: apperrors.ErrStorage}
	}

	return Result{Success: true, Data: rec.Data, Queued: true}
}

// reconcileOrder swaps the optimistic local order for the remote-assigned
// identity once the creation is confirmed.
func (g *Gateway) reconcileOrder(action models.PendingAction, resp remote.Response) {
	var local models.Order
	if err := json.Unmarshal(action.Payload, &local); err != nil {
		g.log.WithError(err).Warn("cannot decode order payload for reconciliation")
		return
	}

	var assigned struct {
		ID     string             `json:"id"`
		Status models.OrderStatus `json:"status"`
	}
	if err := json.Unmarshal(resp.Data, &assigned); err != nil || assigned.ID == "" {
		g.log.WithField("order", local.ID).Warn("remote order response carried no id")
		return
	}

	reconciled := local
	reconciled.ID = models.UUID(assigned.ID)
	reconciled.Local = false
	reconciled.Status = models.OrderStatusConfirmed
	if assigned.Status != "" {
		reconciled.Status = assigned.Status
	}

	rec, err := models.NewRecord(string(reconciled.ID), reconciled)
	if err != nil {
		return
	}
	if err := g.store.Apply([]store.WriteOp{
		{Kind: store.WriteDelete, Collection: "orders", Key: string(local.ID)},
		{Kind: store.WritePut, Collection: "orders", Record: rec},
	}); err != nil {
		g.log.WithError(err).WithField("order", local.ID).Warn("order reconciliation failed")
	}
}

// Addresses

func (g *Gateway) listAddresses(_ Request, _ map[string]string, _ url.Values, session *models.Session) Result {
	return okJSON(g.collectionForUser("addresses", session))
}

func (g *Gateway) upsertAddress(req Request, params map[string]string, _ url.Values, session *models.Session) Result {
	var addr models.Address
	if err := json.Unmarshal(req.Body, &addr); err != nil {
		return Result{Success: false, Error: "malformed address", Code: apperrors.ErrValidation}
	}
	if id, ok := params["id"]; ok {
		addr.ID = models.UUID(id)
	}
	if addr.ID == "" {
		addr.ID = models.UUID(uuid.NewLocal())
	}
	if session != nil {
		addr.UserID = session.User.ID
	}
	if addr.Line1 == "" || addr.City == "" {
		return Result{Success: false, Error: "line1 and city are required", Code: apperrors.ErrValidation}
	}

	return g.optimisticPut("addresses", string(addr.ID), addr, "upsert_address")
}

// Shared helpers

// optimisticPut applies a local write and records the mutation for sync.
func (g *Gateway) optimisticPut(collection, key string, v interface{}, kind string) Result {
	rec, err := models.NewRecord(key, v)
	if err != nil {
		return Result{Success: false, Error: "failed to encode entity", Code: apperrors.ErrInternal}
	}
	if err := g.store.Put(collection, rec); err != nil {
		return Result{Success: false, Error: "local write failed", Code: apperrors.ErrStorage}
	}
	if _, err := g.ledger.Append(kind, v); err != nil {
		return Result{Success: false, Error: "failed to queue mutation", Code: apperrors.ErrStorage}
	}
	return Result{Success: true, Data: rec.Data, Queued: true}
}

// optimisticDelete applies a local delete and records the mutation.
func (g *Gateway) optimisticDelete(collection, key, kind string) Result {
	if err := g.store.Delete(collection, key); err != nil {
		return Result{Success: false, Error: "local delete failed", Code: apperrors.ErrStorage}
	}
	if _, err := g.ledger.Append(kind, map[string]string{"id": key}); err != nil {
		return Result{Success: false, Error: "failed to queue mutation", Code: apperrors.ErrStorage}
	}
	return Result{Success: true, Queued: true}
}

func (g *Gateway) collectionForUser(collection string, session *models.Session) []json.RawMessage {
	var userID models.UUID
	if session != nil {
		userID = session.User.ID
	}

	out := make([]json.RawMessage, 0)
	for _, rec := range g.store.GetAll(collection) {
		if userID != "" {
			var owned struct {
				UserID models.UUID `json:"user_id"`
			}
			if err := json.Unmarshal(rec.Data, &owned); err == nil && owned.UserID != "" && owned.UserID != userID {
				continue
			}
		}
		out = append(out, rec.Data)
	}
	return out
}

func nowUnix() int64 {
	return time.Now().Unix()
}

func okJSON(v interface{}) Result {
	data, err := json.Marshal(v)
	if err != nil {
		return Result{Success: false, Error: "failed to encode response", Code: apperrors.ErrInternal}
	}
	return Result{Success: true, Data: data}
}
