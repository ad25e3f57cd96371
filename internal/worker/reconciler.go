package worker

import (
	"fmt"
	"ms-reconcile/internal/logger"
	"ms-reconcile/internal/models"
	"time"
)

type Store interface {
	ListStalePendingOrders(cutoff time.Time) ([]models.Order, error)
}

type Reconciler interface {
	PollStatus(gateway, txnID string) (*models.FinalizeResult, error)
}

// Worker is the poll-based fallback for orders stuck pending: webhooks can be
// lost and customers can abandon the redirect, so every order pending past
// the age threshold gets its gateway-side status re-derived.
type Worker struct {
	Store      Store
	Recon      Reconciler
	Logger     *logger.Logger
	Interval   time.Duration
	PendingAge time.Duration

	stop chan struct{}
}

func NewWorker(store Store, reconciler Reconciler, log *logger.Logger, interval, pendingAge time.Duration) *Worker {
	return &Worker{
		Store:      store,
		Recon:      reconciler,
		Logger:     log,
		Interval:   interval,
		PendingAge: pendingAge,
		stop:       make(chan struct{}),
	}
}

func (w *Worker) Start() {
	w.Logger.Info("WORKER", fmt.Sprintf("Reconciliation worker started (interval %s, pending age %s)", w.Interval, w.PendingAge))
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.RunOnce()
			case <-w.stop:
				w.Logger.Info("WORKER", "Reconciliation worker stopped")
				return
			}
		}
	}()
}

func (w *Worker) Stop() {
	close(w.stop)
}

// RunOnce sweeps one batch of stale pending orders. A failed poll leaves the
// order pending for the next sweep; there is no retry storm here because the
// sweep cadence is the retry.
func (w *Worker) RunOnce() {
	cutoff := time.Now().Add(-w.PendingAge)
	orders, err := w.Store.ListStalePendingOrders(cutoff)
	if err != nil {
		w.Logger.Error("WORKER", fmt.Sprintf("Failed to list stale pending orders: %v", err))
		return
	}

	if len(orders) == 0 {
		return
	}

	w.Logger.Info("WORKER", fmt.Sprintf("Reconciling %d stale pending orders", len(orders)))
	for _, order := range orders {
		txnID := order.GatewayTxnID
		if txnID == "" {
			txnID = order.OrderID
		}

		result, err := w.Recon.PollStatus(order.Gateway, txnID)
		if err != nil {
			w.Logger.Warn("WORKER", fmt.Sprintf("Poll failed for order %s via %s: %v", order.OrderID, order.Gateway, err))
			continue
		}

		if result.DidTransition {
			w.Logger.Info("WORKER", fmt.Sprintf("Order %s settled by poll fallback", order.OrderID))
		}
	}
}
