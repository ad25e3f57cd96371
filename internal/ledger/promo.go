package ledger

import (
	"errors"
	"time"

	"ms-reconcile/internal/models"
)

var (
	ErrPromoInactive  = errors.New("promo code is not active")
	ErrPromoExpired   = errors.New("promo code has expired")
	ErrPromoExhausted = errors.New("promo code usage limit reached")
	ErrPromoMinOrder  = errors.New("order total below promo minimum")
)

// ValidatePromo is the check-time validation used at checkout. It is
// informational only and never reserves usage: the authoritative increment
// happens in Apply, guarded by the usage limit, so a code that passes here can
// still be exhausted by the time the order finalizes.
func ValidatePromo(promo *models.PromoCode, orderTotal float64, now time.Time) error {
	if !promo.IsActive {
		return ErrPromoInactive
	}
	if !promo.ExpiresAt.IsZero() && now.After(promo.ExpiresAt) {
		return ErrPromoExpired
	}
	if promo.UsageLimit > 0 && promo.UsedCount >= promo.UsageLimit {
		return ErrPromoExhausted
	}
	if orderTotal < promo.MinOrderValue {
		return ErrPromoMinOrder
	}
	return nil
}

// ComputeDiscount returns the discount amount the promo grants on a total,
// capped at MaxDiscount for percentage codes and never exceeding the total.
func ComputeDiscount(promo *models.PromoCode, orderTotal float64) float64 {
	var discount float64
	switch promo.DiscountType {
	case models.DiscountPercentage:
		discount = orderTotal * promo.DiscountValue / 100
		if promo.MaxDiscount > 0 && discount > promo.MaxDiscount {
			discount = promo.MaxDiscount
		}
	case models.DiscountFixed:
		discount = promo.DiscountValue
	}
	if discount > orderTotal {
		discount = orderTotal
	}
	return discount
}
