package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderDraft      OrderStatus = "draft"
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

type PaymentState string

const (
	PaymentPending PaymentState = "pending"
	PaymentPaid    PaymentState = "paid"
	PaymentFailed  PaymentState = "failed"
)

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID        string       `bun:"order_id,pk" json:"order_id"`
	UserID         string       `bun:"user_id" json:"user_id"`
	Status         OrderStatus  `bun:"status" json:"status"`
	PaymentStatus  PaymentState `bun:"payment_status" json:"payment_status"`
	PaymentMethod  string       `bun:"payment_method" json:"payment_method"`
	Gateway        string       `bun:"gateway,nullzero" json:"gateway,omitempty"`
	GatewayOrderID string       `bun:"gateway_order_id,nullzero" json:"gateway_order_id,omitempty"`
	GatewayTxnID   string       `bun:"gateway_txn_id,nullzero" json:"gateway_txn_id,omitempty"`
	PromoCode      string       `bun:"promo_code,nullzero" json:"promo_code,omitempty"`
	DiscountAmount float64      `bun:"discount_amount" json:"discount_amount"`
	Total          float64      `bun:"total" json:"total"`
	CreatedAt      time.Time    `bun:"created_at" json:"created_at"`
	FinalizedAt    *time.Time   `bun:"finalized_at,nullzero" json:"finalized_at,omitempty"`
}

// OrderItem snapshots the price at purchase time; it is never recomputed from
// the current product price. ProductID is a weak reference: items are
// historical and survive product deletion.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ItemID          string  `bun:"item_id,pk" json:"item_id"`
	OrderID         string  `bun:"order_id" json:"order_id"`
	ProductID       string  `bun:"product_id" json:"product_id"`
	Quantity        int     `bun:"quantity" json:"quantity"`
	PriceAtPurchase float64 `bun:"price_at_purchase" json:"price_at_purchase"`
}

type OrderWithItems struct {
	Order
	Items []OrderItem `json:"items"`
}

// FinalizeResult reports whether this call performed the pending -> processing
// transition. Only the caller that did runs the one-time side effects.
type FinalizeResult struct {
	DidTransition bool   `json:"did_transition"`
	Order         *Order `json:"order"`
}
