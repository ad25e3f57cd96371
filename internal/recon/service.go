package recon

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"ms-reconcile/internal/logger"
	"ms-reconcile/internal/models"
	"ms-reconcile/internal/verify"
	"net/http"
)

// ErrUnrecognizedEvent means the inbound request could not be attributed to a
// known gateway shape. Rejected outright, never retried internally.
var ErrUnrecognizedEvent = errors.New("unrecognized payment event")

// Finalizer is the sole downstream for verified outcomes. Unverified and
// unrecognized events are filtered here and never reach it.
type Finalizer interface {
	Finalize(orderID string) (*models.FinalizeResult, error)
	Cancel(orderID, reason string) (bool, error)
}

type Service struct {
	Registry  *verify.Registry
	Finalizer Finalizer
	Logger    *logger.Logger
}

func NewService(registry *verify.Registry, finalizer Finalizer, log *logger.Logger) *Service {
	return &Service{Registry: registry, Finalizer: finalizer, Logger: log}
}

// WebhookError carries a public-safe message and status code for the HTTP
// surface alongside the detailed internal error.
type WebhookError struct {
	Category      string // "validation", "verification", "processing"
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

// ---------------- NORMALIZATION ----------------

// razorpayWebhook is the inbound envelope for the HMAC gateway.
type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string            `json:"id"`
				OrderID string            `json:"order_id"`
				Status  string            `json:"status"`
				Notes   map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// phonePeWebhook wraps a base64 payload; the decoded body carries the
// merchant transaction id and a claimed outcome code.
type phonePeWebhook struct {
	Response string `json:"response"`
}

type phonePePayload struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	Code                  string `json:"code"`
}

// NormalizeWebhook turns a webhook POST into a PaymentEvent. The gateway is
// identified by signature-header presence; a headerless body is accepted only
// if it parses as the PhonePe base64 envelope.
func (s *Service) NormalizeWebhook(r *http.Request) (*models.PaymentEvent, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook body: %w", err)
	}

	if sig := r.Header.Get("X-Razorpay-Signature"); sig != "" {
		return s.normalizeRazorpayWebhook(body, sig)
	}

	if sig := r.Header.Get("X-Verify"); sig != "" {
		return s.normalizePhonePeWebhook(body, sig)
	}

	// No known signature header: last chance is a parseable PhonePe envelope.
	if event, err := s.normalizePhonePeWebhook(body, ""); err == nil {
		return event, nil
	}

	s.Logger.LogSecurity("UNRECOGNIZED_WEBHOOK", "webhook carries no known gateway signature header")
	return nil, ErrUnrecognizedEvent
}

func (s *Service) normalizeRazorpayWebhook(body []byte, signature string) (*models.PaymentEvent, error) {
	var hook razorpayWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, ErrUnrecognizedEvent
	}

	entity := hook.Payload.Payment.Entity
	orderID := entity.Notes["order_id"]
	if orderID == "" {
		// The merchant reference must carry the internal order id; guessing at
		// a "most recent pending order" would risk finalizing the wrong one.
		s.Logger.LogSecurity("MISSING_REFERENCE", "razorpay webhook carries no internal order reference")
		return nil, ErrUnrecognizedEvent
	}

	outcome := models.OutcomePending
	switch hook.Event {
	case "payment.captured":
		outcome = models.OutcomeSucceeded
	case "payment.failed":
		outcome = models.OutcomeFailed
	}

	return &models.PaymentEvent{
		Source:           models.SourceWebhook,
		Gateway:          verify.GatewayRazorpay,
		OrderID:          orderID,
		GatewayOrderID:   entity.OrderID,
		GatewayPaymentID: entity.ID,
		Signature:        signature,
		RawBody:          body,
		ClaimedOutcome:   outcome,
	}, nil
}

func (s *Service) normalizePhonePeWebhook(body []byte, signature string) (*models.PaymentEvent, error) {
	var hook phonePeWebhook
	if err := json.Unmarshal(body, &hook); err != nil || hook.Response == "" {
		return nil, ErrUnrecognizedEvent
	}

	decoded, err := base64.StdEncoding.DecodeString(hook.Response)
	if err != nil {
		return nil, ErrUnrecognizedEvent
	}

	var payload phonePePayload
	if err := json.Unmarshal(decoded, &payload); err != nil || payload.MerchantTransactionID == "" {
		return nil, ErrUnrecognizedEvent
	}

	outcome := models.OutcomePending
	switch payload.Code {
	case "PAYMENT_SUCCESS":
		outcome = models.OutcomeSucceeded
	case "PAYMENT_ERROR", "PAYMENT_DECLINED", "TIMED_OUT":
		outcome = models.OutcomeFailed
	}

	return &models.PaymentEvent{
		Source:           models.SourceWebhook,
		Gateway:          verify.GatewayPhonePe,
		OrderID:          payload.MerchantTransactionID,
		GatewayPaymentID: payload.TransactionID,
		Signature:        signature,
		RawBody:          body,
		ClaimedOutcome:   outcome,
	}, nil
}

// NormalizeCallback turns a redirect-callback GET into a PaymentEvent. The
// claimed outcome in a callback is never trusted directly: the Razorpay shape
// is proven by its signature, the PhonePe shape by a status query downstream.
func (s *Service) NormalizeCallback(r *http.Request) (*models.PaymentEvent, error) {
	q := r.URL.Query()

	if sig := q.Get("razorpay_signature"); sig != "" {
		orderID := q.Get("order_id")
		if orderID == "" {
			s.Logger.LogSecurity("MISSING_REFERENCE", "razorpay callback carries no internal order reference")
			return nil, ErrUnrecognizedEvent
		}
		return &models.PaymentEvent{
			Source:           models.SourceCallback,
			Gateway:          verify.GatewayRazorpay,
			OrderID:          orderID,
			GatewayOrderID:   q.Get("razorpay_order_id"),
			GatewayPaymentID: q.Get("razorpay_payment_id"),
			Signature:        sig,
			ClaimedOutcome:   models.OutcomeSucceeded,
		}, nil
	}

	if txnID := q.Get("transactionId"); txnID != "" {
		return &models.PaymentEvent{
			Source:           models.SourceCallback,
			Gateway:          verify.GatewayPhonePe,
			OrderID:          txnID,
			GatewayPaymentID: q.Get("providerReferenceId"),
			ClaimedOutcome:   models.OutcomePending,
		}, nil
	}

	s.Logger.LogSecurity("UNRECOGNIZED_CALLBACK", "callback matches no known gateway shape")
	return nil, ErrUnrecognizedEvent
}

// ---------------- ORCHESTRATION ----------------

// Reconcile verifies a normalized event and applies the verified outcome to
// the order. Returns the event's order id together with whether any state
// transition happened.
func (s *Service) Reconcile(event *models.PaymentEvent) (*models.FinalizeResult, error) {
	verifier, err := s.Registry.Get(event.Gateway)
	if err != nil {
		return nil, &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Unknown payment gateway",
			InternalError: err.Error(),
			OriginalErr:   err,
		}
	}

	verification, err := verifier.VerifyEvent(*event)
	if err != nil {
		return nil, &WebhookError{
			Category:      "verification",
			StatusCode:    http.StatusUnauthorized,
			PublicError:   "Payment verification failed",
			InternalError: fmt.Sprintf("verification failed for order %s via %s: %v", event.OrderID, event.Gateway, err),
			OriginalErr:   err,
		}
	}

	return s.applyOutcome(verification)
}

// PollStatus runs the on-demand reconciliation path for a single transaction.
func (s *Service) PollStatus(gateway, txnID string) (*models.FinalizeResult, error) {
	verifier, err := s.Registry.Get(gateway)
	if err != nil {
		return nil, err
	}

	verification, err := verifier.QueryStatus(txnID)
	if err != nil {
		return nil, err
	}

	return s.applyOutcome(verification)
}

func (s *Service) applyOutcome(verification *verify.Verification) (*models.FinalizeResult, error) {
	switch verification.Outcome {
	case models.OutcomeSucceeded:
		return s.Finalizer.Finalize(verification.OrderID)

	case models.OutcomeFailed:
		didCancel, err := s.Finalizer.Cancel(verification.OrderID, "payment failed")
		if err != nil {
			return nil, err
		}
		return &models.FinalizeResult{DidTransition: didCancel}, nil

	default:
		// Still pending at the gateway: leave the order alone, a later
		// webhook or poll will settle it.
		s.Logger.Info("RECON", fmt.Sprintf("order %s still pending at gateway, no transition", verification.OrderID))
		return &models.FinalizeResult{DidTransition: false}, nil
	}
}
