package db

import (
	"context"
	"database/sql"
	"errors"
	"ms-reconcile/internal/models"
	"time"

	"github.com/uptrace/bun"
)

var ErrOrderNotFound = errors.New("order not found")

// DB works over either a root *bun.DB or a bun.Tx, so the same store can be
// used inside RunInTx.
type DB struct {
	Bun bun.IDB
}

// RunInTx runs fn against a transaction-scoped store. Called on a store that
// is already transaction-scoped it just runs fn.
func (d *DB) RunInTx(fn func(tx *DB) error) error {
	bundb, ok := d.Bun.(*bun.DB)
	if !ok {
		return fn(d)
	}
	return bundb.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(&DB{Bun: tx})
	})
}

// ---------------- ORDERS ----------------

// GetOrderByID → fetch one order by its ID
func (d *DB) GetOrderByID(id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderWithItems retrieves an order and its line items
func (d *DB) GetOrderWithItems(id string) (*models.OrderWithItems, error) {
	order, err := d.GetOrderByID(id)
	if err != nil {
		return nil, err
	}

	items, err := d.GetOrderItems(id)
	if err != nil {
		return nil, err
	}

	return &models.OrderWithItems{
		Order: *order,
		Items: items,
	}, nil
}

// GetOrderItems → fetch all line items linked to an order
func (d *DB) GetOrderItems(orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("order_id = ?", orderID).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CreateOrder → insert new order
func (d *DB) CreateOrder(order models.Order) error {
	_, err := d.Bun.NewInsert().Model(&order).Exec(context.Background())
	return err
}

// CreateOrderItem → insert new line item
func (d *DB) CreateOrderItem(item models.OrderItem) error {
	_, err := d.Bun.NewInsert().Model(&item).Exec(context.Background())
	return err
}

// ---------------- CONDITIONAL TRANSITIONS ----------------

// FinalizeOrder moves an order pending -> processing as a single conditional
// update. The returned bool is the did-transition signal: true only for the
// one caller whose update changed the row. Absorbing states (processing,
// shipped, delivered, cancelled) are never transitioned out of.
func (d *DB) FinalizeOrder(id string) (bool, error) {
	now := time.Now()
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderProcessing).
		Set("payment_status = ?", models.PaymentPaid).
		Set("finalized_at = ?", now).
		Where("order_id = ?", id).
		Where("status = ?", models.OrderPending).
		Exec(context.Background())
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// CancelOrder moves an order pending -> cancelled after a verified payment
// failure. Conditional for the same reason as FinalizeOrder: a concurrent
// finalize must not be overwritten.
func (d *DB) CancelOrder(id string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderCancelled).
		Set("payment_status = ?", models.PaymentFailed).
		Where("order_id = ?", id).
		Where("status = ?", models.OrderPending).
		Exec(context.Background())
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ---------------- RECONCILIATION QUERIES ----------------

// ListStalePendingOrders → orders stuck pending since before the cutoff,
// input for the poll-based reconciliation fallback
func (d *DB) ListStalePendingOrders(cutoff time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("status = ?", models.OrderPending).
		Where("created_at < ?", cutoff).
		Where("gateway_txn_id IS NOT NULL").
		Order("created_at ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return orders, nil
}
