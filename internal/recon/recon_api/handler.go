package recon_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"ms-reconcile/internal/auth"
	"ms-reconcile/internal/logger"
	"ms-reconcile/internal/models"
	"ms-reconcile/internal/order/db"
	"ms-reconcile/internal/recon"
	"ms-reconcile/internal/utils"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StoreReader is the read-only slice of the order store the handlers need.
type StoreReader interface {
	GetOrderByID(id string) (*models.Order, error)
	GetOrderWithItems(id string) (*models.OrderWithItems, error)
	ListShortfalls() ([]models.StockShortfall, error)
}

type Handler struct {
	Recon  *recon.Service
	Store  StoreReader
	Logger *logger.Logger
}

func NewHandler(reconService *recon.Service, store StoreReader, log *logger.Logger) *Handler {
	return &Handler{Recon: reconService, Store: store, Logger: log}
}

// HandleWebhook ingests gateway webhook POSTs. A non-2xx response makes the
// gateway redeliver, so datastore failures surface as 500 while unrecognized
// or unverifiable events get terminal 4xx codes.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "HandleWebhook: received gateway notification")

	event, err := h.Recon.NormalizeWebhook(r)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("HandleWebhook: unrecognized event: %v", err))
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Unrecognized payment event", err.Error()))
		return
	}

	result, err := h.Recon.Reconcile(event)
	if err != nil {
		h.writeReconcileError(w, event.OrderID, err)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("HandleWebhook: order %s reconciled (transition=%t)", event.OrderID, result.DidTransition))
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Event processed", map[string]interface{}{
		"order_id":       event.OrderID,
		"did_transition": result.DidTransition,
	}))
}

// HandleCallback ingests the browser redirect after hosted checkout. The
// redirect's claimed outcome is never trusted; it only triggers verification.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "HandleCallback: received redirect callback")

	event, err := h.Recon.NormalizeCallback(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Unrecognized callback", err.Error()))
		return
	}

	if _, err := h.Recon.Reconcile(event); err != nil {
		h.writeReconcileError(w, event.OrderID, err)
		return
	}

	// The customer lands on whatever the order status currently is.
	order, err := h.Store.GetOrderByID(event.OrderID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Order not found", err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Callback processed", order))
}

// PollStatus runs the on-demand reconciliation path for one order (operator
// endpoint, OIDC-guarded).
func (h *Handler) PollStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	if token, err := auth.BearerToken(r); err == nil {
		if sub, err := auth.SubjectFromJWT(token); err == nil {
			h.Logger.Info("API", fmt.Sprintf("PollStatus: operator %s polling order %s", sub, orderID))
		}
	}

	order, err := h.Store.GetOrderByID(orderID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Order not found", err.Error()))
		return
	}
	if order.Gateway == "" {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Order has no gateway transaction", "nothing to poll"))
		return
	}

	txnID := order.GatewayTxnID
	if txnID == "" {
		txnID = order.OrderID
	}

	result, err := h.Recon.PollStatus(order.Gateway, txnID)
	if err != nil {
		h.writeReconcileError(w, orderID, err)
		return
	}

	order, _ = h.Store.GetOrderByID(orderID)
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Poll complete", map[string]interface{}{
		"order":          order,
		"did_transition": result.DidTransition,
	}))
}

// GetOrder serves the order snapshot the status-page collaborator renders.
// Shortfalls are deliberately absent here: they never reach customer state.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("GetOrder: orderId=%s", orderID))

	orderData, err := h.Store.GetOrderWithItems(orderID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrder: order not found: %v", err))
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, orderData)
}

// ListShortfalls serves the manual reconciliation queue (operator endpoint).
func (h *Handler) ListShortfalls(w http.ResponseWriter, r *http.Request) {
	shortfalls, err := h.Store.ListShortfalls()
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListShortfalls: %v", err))
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to list shortfalls", err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Shortfalls", shortfalls))
}

func (h *Handler) writeReconcileError(w http.ResponseWriter, orderID string, err error) {
	var webhookErr *recon.WebhookError
	switch {
	case errors.As(err, &webhookErr):
		h.Logger.Error("API", webhookErr.InternalError)
		writeJSON(w, webhookErr.StatusCode, utils.ErrorResponse(webhookErr.PublicError, webhookErr.Category))
	case errors.Is(err, db.ErrOrderNotFound):
		h.Logger.Error("API", fmt.Sprintf("order %s not found", orderID))
		writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Order not found", err.Error()))
	default:
		h.Logger.Error("API", fmt.Sprintf("reconciliation failed for order %s: %v", orderID, err))
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to process payment event", err.Error()))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		fmt.Printf("Error writing response: %v\n", err)
	}
}
