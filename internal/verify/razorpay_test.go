package verify_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-reconcile/internal/config"
	"ms-reconcile/internal/logger"
	"ms-reconcile/internal/models"
	"ms-reconcile/internal/verify"
)

func newRazorpay(cfg config.RazorpayConfig) *verify.Razorpay {
	return verify.NewRazorpay(cfg, &http.Client{Timeout: 2 * time.Second}, logger.NewLogger())
}

func TestRazorpaySign(t *testing.T) {
	rzp := newRazorpay(config.RazorpayConfig{KeySecret: "test_key_secret"})

	// Known-answer check so a refactor of the signing input can't slip through.
	got := rzp.Sign("order_ABC123", "pay_XYZ789")
	want := "8f3f6d9875510a04884bbd681acc7af52bad387c42cd5a3b0ec78dcbef78b99a"
	if got != want {
		t.Errorf("Expected signature %s, got %s", want, got)
	}
}

func TestRazorpayVerifyEvent(t *testing.T) {
	rzp := newRazorpay(config.RazorpayConfig{KeySecret: "test_key_secret"})

	event := models.PaymentEvent{
		Source:           models.SourceWebhook,
		Gateway:          verify.GatewayRazorpay,
		OrderID:          "ord-1001",
		GatewayOrderID:   "order_ABC123",
		GatewayPaymentID: "pay_XYZ789",
		Signature:        rzp.Sign("order_ABC123", "pay_XYZ789"),
		ClaimedOutcome:   models.OutcomeSucceeded,
	}

	verification, err := rzp.VerifyEvent(event)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if verification.Outcome != models.OutcomeSucceeded {
		t.Errorf("Expected outcome succeeded, got %s", verification.Outcome)
	}
	if verification.OrderID != "ord-1001" {
		t.Errorf("Expected order ID ord-1001, got %s", verification.OrderID)
	}

	// A failed claim passes through unchanged once the signature proves it.
	event.ClaimedOutcome = models.OutcomeFailed
	verification, err = rzp.VerifyEvent(event)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if verification.Outcome != models.OutcomeFailed {
		t.Errorf("Expected outcome failed, got %s", verification.Outcome)
	}
}

func TestRazorpayVerifyEventTampered(t *testing.T) {
	rzp := newRazorpay(config.RazorpayConfig{KeySecret: "test_key_secret"})

	event := models.PaymentEvent{
		OrderID:          "ord-1001",
		GatewayOrderID:   "order_ABC123",
		GatewayPaymentID: "pay_XYZ789",
		Signature:        rzp.Sign("order_ABC123", "pay_SOMEONE_ELSE"),
		ClaimedOutcome:   models.OutcomeSucceeded,
	}

	_, err := rzp.VerifyEvent(event)
	if !errors.Is(err, verify.ErrVerificationFailed) {
		t.Errorf("Expected ErrVerificationFailed for tampered signature, got %v", err)
	}
}

func TestRazorpayVerifyEventMissingFields(t *testing.T) {
	rzp := newRazorpay(config.RazorpayConfig{KeySecret: "test_key_secret"})

	cases := []models.PaymentEvent{
		{GatewayPaymentID: "pay_XYZ789", Signature: "sig"},
		{GatewayOrderID: "order_ABC123", Signature: "sig"},
		{GatewayOrderID: "order_ABC123", GatewayPaymentID: "pay_XYZ789"},
	}
	for i, event := range cases {
		if _, err := rzp.VerifyEvent(event); !errors.Is(err, verify.ErrVerificationFailed) {
			t.Errorf("Case %d: expected ErrVerificationFailed, got %v", i, err)
		}
	}
}

func TestRazorpayQueryStatus(t *testing.T) {
	cases := []struct {
		name    string
		status  string
		outcome models.Outcome
	}{
		{"captured maps to succeeded", "captured", models.OutcomeSucceeded},
		{"failed maps to failed", "failed", models.OutcomeFailed},
		{"authorized stays pending", "authorized", models.OutcomePending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				user, pass, ok := r.BasicAuth()
				if !ok || user != "key_id" || pass != "test_key_secret" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				fmt.Fprintf(w, `{"id":"pay_XYZ789","order_id":"order_ABC123","status":%q,"notes":{"order_id":"ord-1001"}}`, tc.status)
			}))
			defer server.Close()

			rzp := newRazorpay(config.RazorpayConfig{
				KeyID:     "key_id",
				KeySecret: "test_key_secret",
				BaseURL:   server.URL,
			})

			verification, err := rzp.QueryStatus("pay_XYZ789")
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if verification.Outcome != tc.outcome {
				t.Errorf("Expected outcome %s, got %s", tc.outcome, verification.Outcome)
			}
			if verification.OrderID != "ord-1001" {
				t.Errorf("Expected order ID ord-1001, got %s", verification.OrderID)
			}
		})
	}
}

func TestRazorpayQueryStatusMissingReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"pay_XYZ789","order_id":"order_ABC123","status":"captured","notes":{}}`)
	}))
	defer server.Close()

	rzp := newRazorpay(config.RazorpayConfig{KeyID: "key_id", KeySecret: "test_key_secret", BaseURL: server.URL})

	// A captured payment we cannot attribute to an order must not succeed.
	if _, err := rzp.QueryStatus("pay_XYZ789"); !errors.Is(err, verify.ErrVerificationFailed) {
		t.Errorf("Expected ErrVerificationFailed for missing order reference, got %v", err)
	}
}

func TestRazorpayQueryStatusGatewayDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	rzp := newRazorpay(config.RazorpayConfig{KeyID: "key_id", KeySecret: "test_key_secret", BaseURL: server.URL})

	if _, err := rzp.QueryStatus("pay_XYZ789"); !errors.Is(err, verify.ErrVerificationFailed) {
		t.Errorf("Expected ErrVerificationFailed on 500, got %v", err)
	}

	// Unreachable gateway fails closed too.
	server.Close()
	if _, err := rzp.QueryStatus("pay_XYZ789"); !errors.Is(err, verify.ErrVerificationFailed) {
		t.Errorf("Expected ErrVerificationFailed on connection error, got %v", err)
	}
}
