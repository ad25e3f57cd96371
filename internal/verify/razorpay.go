package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"ms-reconcile/internal/config"
	"ms-reconcile/internal/logger"
	"ms-reconcile/internal/models"
	"net/http"
)

const GatewayRazorpay = "razorpay"

// Razorpay authenticates events with a shared-secret HMAC over the
// order id / payment id pair issued at checkout.
type Razorpay struct {
	cfg    config.RazorpayConfig
	client *http.Client
	logger *logger.Logger
}

func NewRazorpay(cfg config.RazorpayConfig, client *http.Client, log *logger.Logger) *Razorpay {
	return &Razorpay{cfg: cfg, client: client, logger: log}
}

func (r *Razorpay) Name() string { return GatewayRazorpay }

// Sign computes the expected hex signature for an order/payment pair:
// HMAC-SHA256 over "gatewayOrderID|gatewayPaymentID" with the key secret.
func (r *Razorpay) Sign(gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(r.cfg.KeySecret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (r *Razorpay) VerifyEvent(event models.PaymentEvent) (*Verification, error) {
	if event.GatewayOrderID == "" || event.GatewayPaymentID == "" || event.Signature == "" {
		r.logger.LogSecurity("SIGNATURE_MISSING", fmt.Sprintf("razorpay event for order %s lacks signature fields", event.OrderID))
		return nil, ErrVerificationFailed
	}

	expected := r.Sign(event.GatewayOrderID, event.GatewayPaymentID)
	if !hmac.Equal([]byte(expected), []byte(event.Signature)) {
		r.logger.LogSecurity("SIGNATURE_MISMATCH", fmt.Sprintf("razorpay signature mismatch for order %s", event.OrderID))
		return nil, ErrVerificationFailed
	}

	r.logger.LogVerify(GatewayRazorpay, event.OrderID, "signature verified")
	return &Verification{Outcome: event.ClaimedOutcome, OrderID: event.OrderID}, nil
}

// razorpayPayment is the subset of the payment fetch response we act on.
type razorpayPayment struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Notes   struct {
		OrderID string `json:"order_id"`
	} `json:"notes"`
}

// QueryStatus fetches the payment from Razorpay's authenticated API. Used by
// the poll fallback; the internal order id travels in the payment notes.
func (r *Razorpay) QueryStatus(txnID string) (*Verification, error) {
	url := fmt.Sprintf("%s/v1/payments/%s", r.cfg.BaseURL, txnID)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	req.SetBasicAuth(r.cfg.KeyID, r.cfg.KeySecret)

	resp, err := r.client.Do(req)
	if err != nil {
		// Timeouts included: never assume success when the gateway is unreachable.
		r.logger.Error("VERIFY", fmt.Sprintf("razorpay status query for %s failed: %v", txnID, err))
		return nil, ErrVerificationFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Error("VERIFY", fmt.Sprintf("razorpay status query for %s returned %d", txnID, resp.StatusCode))
		return nil, ErrVerificationFailed
	}

	var payment razorpayPayment
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return nil, ErrVerificationFailed
	}

	orderID := payment.Notes.OrderID
	if orderID == "" {
		r.logger.Error("VERIFY", fmt.Sprintf("razorpay payment %s carries no merchant order reference", txnID))
		return nil, ErrVerificationFailed
	}

	outcome := models.OutcomePending
	switch payment.Status {
	case "captured":
		outcome = models.OutcomeSucceeded
	case "failed":
		outcome = models.OutcomeFailed
	}

	r.logger.LogVerify(GatewayRazorpay, orderID, fmt.Sprintf("status query: %s", payment.Status))
	return &Verification{Outcome: outcome, OrderID: orderID}, nil
}
