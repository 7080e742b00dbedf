// Package models provides data model definitions for the shopsync core.
package models

import "time"

// Product is a catalog entry cached locally for offline browsing.
type Product struct {
	ID          UUID    `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Description string  `db:"description" json:"description,omitempty"`
	Category    string  `db:"category" json:"category"`
	Price       float64 `db:"price" json:"price"`
	Stock       int     `db:"stock" json:"stock"`
	UpdatedAt   int64   `db:"updated_at" json:"updated_at"`
}

// TableName returns the collection name for Product.
func (Product) TableName() string {
	return "products"
}

// CartItem is one line of the local cart.
type CartItem struct {
	ID        UUID    `db:"id" json:"id"`
	UserID    UUID    `db:"user_id" json:"user_id"`
	ProductID UUID    `db:"product_id" json:"product_id"`
	Name      string  `db:"name" json:"name"`
	Price     float64 `db:"price" json:"price"`
	Quantity  int     `db:"quantity" json:"quantity"`
	AddedAt   int64   `db:"added_at" json:"added_at"`
}

// TableName returns the collection name for CartItem.
func (CartItem) TableName() string {
	return "cart"
}

// WishlistItem is a saved product reference.
type WishlistItem struct {
	ID        UUID  `db:"id" json:"id"`
	UserID    UUID  `db:"user_id" json:"user_id"`
	ProductID UUID  `db:"product_id" json:"product_id"`
	AddedAt   int64 `db:"added_at" json:"added_at"`
}

// TableName returns the collection name for WishlistItem.
func (WishlistItem) TableName() string {
	return "wishlist"
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a purchase. Orders created offline get a local- prefixed ID and
// OrderStatusPending until the sync engine reconciles them with the
// remote-assigned identifier.
type Order struct {
	ID        UUID        `db:"id" json:"id"`
	UserID    UUID        `db:"user_id" json:"user_id"`
	Items     []CartItem  `db:"items" json:"items"`
	Total     float64     `db:"total" json:"total"`
	Status    OrderStatus `db:"status" json:"status"`
	AddressID UUID        `db:"address_id" json:"address_id"`
	Local     bool        `db:"local" json:"local"`
	CreatedAt int64       `db:"created_at" json:"created_at"`
}

// TableName returns the collection name for Order.
func (Order) TableName() string {
	return "orders"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (o *Order) CreatedAtTime() time.Time {
	return time.Unix(o.CreatedAt, 0)
}

// Address is a saved shipping address.
type Address struct {
	ID        UUID   `db:"id" json:"id"`
	UserID    UUID   `db:"user_id" json:"user_id"`
	Line1     string `db:"line1" json:"line1"`
	Line2     string `db:"line2" json:"line2,omitempty"`
	City      string `db:"city" json:"city"`
	Zip       string `db:"zip" json:"zip"`
	Country   string `db:"country" json:"country"`
	IsDefault bool   `db:"is_default" json:"is_default"`
}

// TableName returns the collection name for Address.
func (Address) TableName() string {
	return "addresses"
}
