package db_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-reconcile/internal/models"
	"ms-reconcile/internal/order/db"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Order)(nil),
		(*models.OrderItem)(nil),
		(*models.Product)(nil),
		(*models.PromoCode)(nil),
		(*models.StockShortfall)(nil),
	} {
		if err := bunDB.ResetModel(ctx, model); err != nil {
			t.Fatalf("Failed to reset model %T: %v", model, err)
		}
	}

	t.Cleanup(func() { bunDB.Close() })
	return &db.DB{Bun: bunDB}
}

func createPendingOrder(t *testing.T, store *db.DB, id string) {
	t.Helper()
	err := store.CreateOrder(models.Order{
		OrderID:       id,
		UserID:        "user001",
		Status:        models.OrderPending,
		PaymentStatus: models.PaymentPending,
		PaymentMethod: "upi",
		Gateway:       "phonepe",
		GatewayTxnID:  "txn-" + id,
		Total:         1500.0,
		CreatedAt:     time.Now().Round(time.Second),
	})
	if err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}
}

func TestGetOrderByID(t *testing.T) {
	store := setupTestDB(t)
	createPendingOrder(t, store, "ord-1001")

	order, err := store.GetOrderByID("ord-1001")
	if err != nil {
		t.Fatalf("Failed to retrieve order: %v", err)
	}
	if order.OrderID != "ord-1001" {
		t.Errorf("Expected order ID ord-1001, got %s", order.OrderID)
	}
	if order.Status != models.OrderPending {
		t.Errorf("Expected pending status, got %s", order.Status)
	}

	_, err = store.GetOrderByID("missing")
	if !errors.Is(err, db.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}

func TestGetOrderWithItems(t *testing.T) {
	store := setupTestDB(t)
	createPendingOrder(t, store, "ord-1001")

	items := []models.OrderItem{
		{ItemID: "item-1", OrderID: "ord-1001", ProductID: "prod001", Quantity: 2, PriceAtPurchase: 500.0},
		{ItemID: "item-2", OrderID: "ord-1001", ProductID: "prod002", Quantity: 1, PriceAtPurchase: 500.0},
	}
	for _, item := range items {
		if err := store.CreateOrderItem(item); err != nil {
			t.Fatalf("Failed to create item: %v", err)
		}
	}

	result, err := store.GetOrderWithItems("ord-1001")
	if err != nil {
		t.Fatalf("Failed to retrieve order with items: %v", err)
	}
	if len(result.Items) != 2 {
		t.Errorf("Expected 2 items, got %d", len(result.Items))
	}
	if result.Items[0].PriceAtPurchase != 500.0 {
		t.Errorf("Expected snapshot price 500.0, got %f", result.Items[0].PriceAtPurchase)
	}
}

func TestFinalizeOrderConditional(t *testing.T) {
	store := setupTestDB(t)
	createPendingOrder(t, store, "ord-1001")

	did, err := store.FinalizeOrder("ord-1001")
	if err != nil {
		t.Fatalf("Failed to finalize order: %v", err)
	}
	if !did {
		t.Fatal("Expected the first finalize to transition")
	}

	order, err := store.GetOrderByID("ord-1001")
	if err != nil {
		t.Fatalf("Failed to retrieve order: %v", err)
	}
	if order.Status != models.OrderProcessing {
		t.Errorf("Expected processing status, got %s", order.Status)
	}
	if order.PaymentStatus != models.PaymentPaid {
		t.Errorf("Expected paid payment status, got %s", order.PaymentStatus)
	}
	if order.FinalizedAt == nil {
		t.Error("Expected finalized_at to be set")
	}

	// Second attempt hits a row that is no longer pending.
	did, err = store.FinalizeOrder("ord-1001")
	if err != nil {
		t.Fatalf("Second finalize errored: %v", err)
	}
	if did {
		t.Error("Expected second finalize to report no transition")
	}
}

func TestCancelOrderConditional(t *testing.T) {
	store := setupTestDB(t)
	createPendingOrder(t, store, "ord-1001")

	did, err := store.CancelOrder("ord-1001")
	if err != nil {
		t.Fatalf("Failed to cancel order: %v", err)
	}
	if !did {
		t.Fatal("Expected cancel to transition")
	}

	order, _ := store.GetOrderByID("ord-1001")
	if order.Status != models.OrderCancelled {
		t.Errorf("Expected cancelled status, got %s", order.Status)
	}
	if order.PaymentStatus != models.PaymentFailed {
		t.Errorf("Expected failed payment status, got %s", order.PaymentStatus)
	}
}

func TestCancelDoesNotTouchFinalizedOrder(t *testing.T) {
	store := setupTestDB(t)
	createPendingOrder(t, store, "ord-1001")

	if _, err := store.FinalizeOrder("ord-1001"); err != nil {
		t.Fatalf("Failed to finalize order: %v", err)
	}

	did, err := store.CancelOrder("ord-1001")
	if err != nil {
		t.Fatalf("Cancel errored: %v", err)
	}
	if did {
		t.Error("Expected cancel to be a no-op on a finalized order")
	}

	order, _ := store.GetOrderByID("ord-1001")
	if order.Status != models.OrderProcessing {
		t.Errorf("Expected status to stay processing, got %s", order.Status)
	}
}

func TestListStalePendingOrders(t *testing.T) {
	store := setupTestDB(t)

	old := time.Now().Add(-time.Hour)
	orders := []models.Order{
		{OrderID: "ord-old", Status: models.OrderPending, Gateway: "phonepe", GatewayTxnID: "txn-old", CreatedAt: old, Total: 100},
		{OrderID: "ord-fresh", Status: models.OrderPending, Gateway: "phonepe", GatewayTxnID: "txn-fresh", CreatedAt: time.Now(), Total: 100},
		{OrderID: "ord-done", Status: models.OrderProcessing, Gateway: "phonepe", GatewayTxnID: "txn-done", CreatedAt: old, Total: 100},
		// No gateway transaction yet: checkout never reached the gateway,
		// nothing to poll.
		{OrderID: "ord-nogw", Status: models.OrderPending, CreatedAt: old, Total: 100},
	}
	for _, o := range orders {
		if err := store.CreateOrder(o); err != nil {
			t.Fatalf("Failed to create order %s: %v", o.OrderID, err)
		}
	}

	stale, err := store.ListStalePendingOrders(time.Now().Add(-15 * time.Minute))
	if err != nil {
		t.Fatalf("Failed to list stale orders: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("Expected 1 stale order, got %d", len(stale))
	}
	if stale[0].OrderID != "ord-old" {
		t.Errorf("Expected ord-old, got %s", stale[0].OrderID)
	}
}

func TestRunInTxRollsBack(t *testing.T) {
	store := setupTestDB(t)
	createPendingOrder(t, store, "ord-1001")

	sentinel := errors.New("boom")
	err := store.RunInTx(func(tx *db.DB) error {
		did, err := tx.FinalizeOrder("ord-1001")
		if err != nil {
			return err
		}
		if !did {
			t.Fatal("Expected transition inside the transaction")
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Expected sentinel error, got %v", err)
	}

	// The transition must have been rolled back with the failing transaction.
	order, err := store.GetOrderByID("ord-1001")
	if err != nil {
		t.Fatalf("Failed to retrieve order: %v", err)
	}
	if order.Status != models.OrderPending {
		t.Errorf("Expected status rolled back to pending, got %s", order.Status)
	}
}
