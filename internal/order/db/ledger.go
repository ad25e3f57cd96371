package db

import (
	"context"
	"database/sql"
	"errors"
	"ms-reconcile/internal/models"
)

const stockRetryAttempts = 3

// DecrementStock applies a full stock decrement as one conditional statement.
// Returns false when stock is insufficient; the row is left untouched in that
// case so the caller can apply a partial decrement and record the shortfall.
func (d *DB) DecrementStock(productID string, qty int) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Product)(nil)).
		Set("stock = stock - ?", qty).
		Where("product_id = ?", productID).
		Where("stock >= ?", qty).
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

// ApplyStockDecrement decrements up to qty units and reports how many were
// actually applied. The fast path is the single conditional decrement; when
// stock has been raced below qty it falls back to an optimistic loop that
// drains whatever remains, still guarded by the stock >= ? condition so the
// counter can never go negative.
func (d *DB) ApplyStockDecrement(productID string, qty int) (int, error) {
	ok, err := d.DecrementStock(productID, qty)
	if err != nil {
		return 0, err
	}
	if ok {
		return qty, nil
	}

	for attempt := 0; attempt < stockRetryAttempts; attempt++ {
		var current int
		err := d.Bun.NewSelect().
			Model((*models.Product)(nil)).
			Column("stock").
			Where("product_id = ?", productID).
			Limit(1).
			Scan(context.Background(), &current)
		if errors.Is(err, sql.ErrNoRows) {
			// Product deleted since purchase: weak reference, nothing to drain.
			return 0, nil
		}
		if err != nil {
			return 0, err
		}

		if current <= 0 {
			return 0, nil
		}

		take := current
		if take > qty {
			take = qty
		}

		ok, err := d.DecrementStock(productID, take)
		if err != nil {
			return 0, err
		}
		if ok {
			return take, nil
		}
		// Lost the race against another decrement, re-read and retry.
	}

	return 0, nil
}

// ---------------- PROMO CODES ----------------

// GetPromoByCode → fetch one promo code
func (d *DB) GetPromoByCode(code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := d.Bun.NewSelect().
		Model(&promo).
		Where("code = ?", code).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

// IncrementPromoUsage bumps used_count by one, guarded by the usage limit in
// the same statement. usage_limit = 0 means unlimited. Returns false when the
// limit is already reached.
func (d *DB) IncrementPromoUsage(code string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.PromoCode)(nil)).
		Set("used_count = used_count + 1").
		Where("code = ?", code).
		Where("usage_limit = 0 OR used_count < usage_limit").
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

// ---------------- SHORTFALLS ----------------

// RecordShortfall → persist an under-applied decrement for the operator queue
func (d *DB) RecordShortfall(shortfall models.StockShortfall) error {
	_, err := d.Bun.NewInsert().Model(&shortfall).Exec(context.Background())
	return err
}

// ListShortfalls → all recorded shortfalls, newest first
func (d *DB) ListShortfalls() ([]models.StockShortfall, error) {
	var shortfalls []models.StockShortfall
	err := d.Bun.NewSelect().
		Model(&shortfalls).
		Order("created_at DESC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return shortfalls, nil
}
