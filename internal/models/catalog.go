package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Product struct {
	bun.BaseModel `bun:"table:products"`

	ProductID string  `bun:"product_id,pk" json:"product_id"`
	Name      string  `bun:"name" json:"name"`
	Price     float64 `bun:"price" json:"price"`
	Stock     int     `bun:"stock" json:"stock"`
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// PromoCode usage is only ever incremented at finalization time. Check-time
// validation is informational and must not reserve usage.
type PromoCode struct {
	bun.BaseModel `bun:"table:promo_codes"`

	Code          string       `bun:"code,pk" json:"code"`
	DiscountType  DiscountType `bun:"discount_type" json:"discount_type"`
	DiscountValue float64      `bun:"discount_value" json:"discount_value"`
	MinOrderValue float64      `bun:"min_order_value" json:"min_order_value"`
	MaxDiscount   float64      `bun:"max_discount,nullzero" json:"max_discount,omitempty"`
	UsageLimit    int          `bun:"usage_limit" json:"usage_limit"` // 0 = unlimited
	UsedCount     int          `bun:"used_count" json:"used_count"`
	IsActive      bool         `bun:"is_active" json:"is_active"`
	ExpiresAt     time.Time    `bun:"expires_at" json:"expires_at"`
}

// StockShortfall records a decrement that could not be fully applied at
// finalization time. The order still finalizes; the row feeds the manual
// reconciliation queue and never reaches customer-facing state.
type StockShortfall struct {
	bun.BaseModel `bun:"table:stock_shortfalls"`

	ID        string    `bun:"id,pk" json:"id"`
	OrderID   string    `bun:"order_id" json:"order_id"`
	ProductID string    `bun:"product_id" json:"product_id"`
	Requested int       `bun:"requested" json:"requested"`
	Applied   int       `bun:"applied" json:"applied"`
	CreatedAt time.Time `bun:"created_at" json:"created_at"`
}
