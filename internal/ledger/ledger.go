package ledger

import (
	"fmt"
	"ms-reconcile/internal/logger"
	"ms-reconcile/internal/models"
	"time"

	"github.com/google/uuid"
)

// Store is the slice of the order store the ledger mutates. The finalizer
// hands in a transaction-scoped store so ledger effects commit atomically
// with the status transition.
type Store interface {
	GetOrderItems(orderID string) ([]models.OrderItem, error)
	ApplyStockDecrement(productID string, qty int) (int, error)
	RecordShortfall(shortfall models.StockShortfall) error
	IncrementPromoUsage(code string) (bool, error)
}

// Ledger applies the one-time financial side effects of a finalized order:
// stock decrements and the promo usage increment. It runs exactly once per
// order, from the caller that won the finalize transition.
type Ledger struct {
	Logger *logger.Logger
}

func NewLedger(log *logger.Logger) *Ledger {
	return &Ledger{Logger: log}
}

// Apply decrements stock for every line item and bumps the promo counter.
// Insufficient stock never fails the order: the payment is already captured,
// so the shortfall is recorded for manual reconciliation instead.
func (l *Ledger) Apply(store Store, order *models.Order) ([]models.StockShortfall, error) {
	items, err := store.GetOrderItems(order.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load items for order %s: %w", order.OrderID, err)
	}

	var shortfalls []models.StockShortfall
	for _, item := range items {
		applied, err := store.ApplyStockDecrement(item.ProductID, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to decrement stock for product %s: %w", item.ProductID, err)
		}

		if applied < item.Quantity {
			shortfall := models.StockShortfall{
				ID:        uuid.NewString(),
				OrderID:   order.OrderID,
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Applied:   applied,
				CreatedAt: time.Now(),
			}
			if err := store.RecordShortfall(shortfall); err != nil {
				return nil, fmt.Errorf("failed to record shortfall for product %s: %w", item.ProductID, err)
			}
			l.Logger.LogLedger("SHORTFALL", order.OrderID, fmt.Sprintf("product %s: requested %d, applied %d", item.ProductID, item.Quantity, applied))
			shortfalls = append(shortfalls, shortfall)
		} else {
			l.Logger.LogLedger("STOCK", order.OrderID, fmt.Sprintf("product %s: decremented by %d", item.ProductID, item.Quantity))
		}
	}

	if order.PromoCode != "" {
		ok, err := store.IncrementPromoUsage(order.PromoCode)
		if err != nil {
			return nil, fmt.Errorf("failed to increment promo %s: %w", order.PromoCode, err)
		}
		if !ok {
			// Limit reached between check time and finalize time. The order
			// keeps its discount; the counter just cannot go past the limit.
			l.Logger.Warn("LEDGER", fmt.Sprintf("promo %s exhausted at finalize time for order %s, counter left at limit", order.PromoCode, order.OrderID))
		} else {
			l.Logger.LogLedger("PROMO", order.OrderID, fmt.Sprintf("promo %s usage incremented", order.PromoCode))
		}
	}

	return shortfalls, nil
}
