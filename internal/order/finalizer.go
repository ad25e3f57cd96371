package order

import (
	"fmt"
	"ms-reconcile/internal/ledger"
	"ms-reconcile/internal/logger"
	"ms-reconcile/internal/models"
	"ms-reconcile/internal/order/db"
	"time"
)

// Store is what the finalizer needs from the order store. *db.DB satisfies it.
type Store interface {
	ledger.Store
	GetOrderByID(id string) (*models.Order, error)
	FinalizeOrder(id string) (bool, error)
	CancelOrder(id string) (bool, error)
}

// DBLayer adds transaction scoping on top of Store.
type DBLayer interface {
	Store
	InTx(fn func(tx Store) error) error
}

type RedisLock interface {
	LockFinalize(orderID string) (bool, error)
	UnlockFinalize(orderID string) error
}

type KafkaPublisher interface {
	PublishOrderFinalized(event models.OrderEvent) error
	PublishOrderCancelled(event models.OrderEvent) error
	PublishShortfall(event models.ShortfallEvent) error
}

// FinalizerService is the sole path by which an order moves out of pending as
// a result of a verified payment outcome.
type FinalizerService struct {
	DB     DBLayer
	Redis  RedisLock
	Kafka  KafkaPublisher
	Ledger *ledger.Ledger
	logger *logger.Logger
}

func NewFinalizerService(dbl DBLayer, redis RedisLock, kafka KafkaPublisher, ldg *ledger.Ledger, log *logger.Logger) *FinalizerService {
	return &FinalizerService{DB: dbl, Redis: redis, Kafka: kafka, Ledger: ldg, logger: log}
}

// Finalize moves an order pending -> processing exactly once. Safe to call any
// number of times, concurrently, for the same order: the conditional update is
// the arbiter, and only the winning call runs the ledger side effects and the
// downstream notification. Every other call is a successful no-op.
func (s *FinalizerService) Finalize(orderID string) (*models.FinalizeResult, error) {
	s.logger.LogFinalize("START", orderID, "finalize requested")

	// Advisory fast path: a duplicate arriving while another instance holds
	// the lock is treated as a no-op. Correctness does not depend on this;
	// the conditional update below decides the real winner.
	locked, err := s.Redis.LockFinalize(orderID)
	if err != nil {
		s.logger.Warn("FINALIZE", fmt.Sprintf("redis lock error for order %s, proceeding on DB arbitration: %v", orderID, err))
	} else if !locked {
		s.logger.LogFinalize("DUPLICATE", orderID, "finalize already in flight, treating as no-op")
		order, err := s.DB.GetOrderByID(orderID)
		if err != nil {
			return nil, err
		}
		return &models.FinalizeResult{DidTransition: false, Order: order}, nil
	} else {
		defer func() {
			if err := s.Redis.UnlockFinalize(orderID); err != nil {
				s.logger.Warn("FINALIZE", fmt.Sprintf("failed to release finalize lock for order %s: %v", orderID, err))
			}
		}()
	}

	var result *models.FinalizeResult
	var shortfalls []models.StockShortfall

	// Status transition and ledger effects commit together: a crash mid-way
	// rolls the transition back and the next delivery retries cleanly.
	err = s.DB.InTx(func(tx Store) error {
		order, err := tx.GetOrderByID(orderID)
		if err != nil {
			return err
		}

		did, err := tx.FinalizeOrder(orderID)
		if err != nil {
			return fmt.Errorf("failed to finalize order %s: %w", orderID, err)
		}

		if !did {
			result = &models.FinalizeResult{DidTransition: false, Order: order}
			return nil
		}

		shortfalls, err = s.Ledger.Apply(tx, order)
		if err != nil {
			return err
		}

		order.Status = models.OrderProcessing
		order.PaymentStatus = models.PaymentPaid
		result = &models.FinalizeResult{DidTransition: true, Order: order}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.DidTransition {
		s.logger.LogFinalize("NOOP", orderID, fmt.Sprintf("order already %s, no side effects", result.Order.Status))
		return result, nil
	}

	s.logger.LogFinalize("DONE", orderID, "order finalized, side effects applied")
	s.publishFinalized(orderID, shortfalls)
	return result, nil
}

// Cancel moves an order pending -> cancelled after a verified payment failure.
// Absorbing states are left alone, so a late failure event cannot undo a
// finalized order.
func (s *FinalizerService) Cancel(orderID, reason string) (bool, error) {
	if _, err := s.DB.GetOrderByID(orderID); err != nil {
		return false, err
	}

	did, err := s.DB.CancelOrder(orderID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	if !did {
		s.logger.LogFinalize("NOOP", orderID, "cancel skipped, order not pending")
		return false, nil
	}

	s.logger.LogFinalize("CANCELLED", orderID, fmt.Sprintf("order cancelled: %s", reason))
	if err := s.Kafka.PublishOrderCancelled(models.OrderEvent{
		Type:      "order.cancelled",
		OrderID:   orderID,
		Reason:    reason,
		Timestamp: time.Now(),
	}); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("failed to publish cancel event for order %s: %v", orderID, err))
	}
	return true, nil
}

// GetOrder returns the current order snapshot with its items.
func (s *FinalizerService) GetOrder(orderID string) (*models.Order, error) {
	return s.DB.GetOrderByID(orderID)
}

func (s *FinalizerService) publishFinalized(orderID string, shortfalls []models.StockShortfall) {
	if err := s.Kafka.PublishOrderFinalized(models.OrderEvent{
		Type:      "order.finalized",
		OrderID:   orderID,
		Timestamp: time.Now(),
	}); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("failed to publish finalize event for order %s: %v", orderID, err))
	}

	for _, sf := range shortfalls {
		if err := s.Kafka.PublishShortfall(models.ShortfallEvent{
			OrderID:   sf.OrderID,
			ProductID: sf.ProductID,
			Requested: sf.Requested,
			Applied:   sf.Applied,
			Timestamp: time.Now(),
		}); err != nil {
			s.logger.Error("KAFKA", fmt.Sprintf("failed to publish shortfall event for order %s: %v", orderID, err))
		}
	}
}

// NewDBLayer wraps the bun-backed store so transaction-scoped stores satisfy
// the same interface the finalizer mocks in tests.
func NewDBLayer(d *db.DB) DBLayer {
	return storeAdapter{d}
}

type storeAdapter struct {
	*db.DB
}

func (a storeAdapter) InTx(fn func(tx Store) error) error {
	return a.DB.RunInTx(func(tx *db.DB) error {
		return fn(tx)
	})
}
