package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-reconcile/internal/config"
	"ms-reconcile/internal/models"
)

// Dev-only schema bootstrapper. Drops and recreates all tables from the bun
// models and seeds a small sample set. Production schemas go through the
// versioned files in migrations/.
func main() {
	ctx := context.Background()

	cfg := config.Load()
	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqldb.Close()

	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	db := bun.NewDB(sqldb, pgdialect.New())

	log.Println("Dropping tables...")
	_ = dropTables(ctx, db)

	log.Println("Creating tables...")
	_ = createTables(ctx, db)

	log.Println("Seeding sample data...")
	_ = seedData(ctx, db)

	log.Println("✅ Done.")
}

func dropTables(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.StockShortfall)(nil),
		(*models.OrderItem)(nil),
		(*models.Order)(nil),
		(*models.PromoCode)(nil),
		(*models.Product)(nil),
	}
	for _, m := range tables {
		_, _ = db.NewDropTable().Model(m).IfExists().Cascade().Exec(ctx)
	}
	return nil
}

func createTables(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.Product)(nil),
		(*models.PromoCode)(nil),
		(*models.Order)(nil),
		(*models.OrderItem)(nil),
		(*models.StockShortfall)(nil),
	}
	for _, m := range tables {
		_, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx)
		if err != nil {
			log.Fatalf("❌ Failed to create table for %T: %v", m, err)
		}
	}
	return nil
}

func seedData(ctx context.Context, db *bun.DB) error {
	products := []models.Product{
		{ProductID: "prod001", Name: "Wireless Mouse", Price: 799.00, Stock: 50},
		{ProductID: "prod002", Name: "Mechanical Keyboard", Price: 3499.00, Stock: 20},
	}
	_, _ = db.NewInsert().Model(&products).Exec(ctx)

	promo := models.PromoCode{
		Code:          "WELCOME10",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: 10.0,
		MinOrderValue: 500.0,
		MaxDiscount:   200.0,
		UsageLimit:    100,
		IsActive:      true,
		ExpiresAt:     time.Now().AddDate(0, 3, 0),
	}
	_, _ = db.NewInsert().Model(&promo).Exec(ctx)

	order := models.Order{
		OrderID:       "ord-1001",
		UserID:        "user001",
		Status:        models.OrderPending,
		PaymentStatus: models.PaymentPending,
		PaymentMethod: "upi",
		Gateway:       "phonepe",
		PromoCode:     "WELCOME10",
		Total:         4218.20,
		CreatedAt:     time.Now(),
	}
	_, _ = db.NewInsert().Model(&order).Exec(ctx)

	items := []models.OrderItem{
		{ItemID: "item-1001-1", OrderID: "ord-1001", ProductID: "prod001", Quantity: 1, PriceAtPurchase: 799.00},
		{ItemID: "item-1001-2", OrderID: "ord-1001", ProductID: "prod002", Quantity: 1, PriceAtPurchase: 3499.00},
	}
	_, _ = db.NewInsert().Model(&items).Exec(ctx)

	return nil
}
