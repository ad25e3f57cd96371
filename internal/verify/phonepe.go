package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"ms-reconcile/internal/config"
	"ms-reconcile/internal/logger"
	"ms-reconcile/internal/models"
	"net/http"
)

const GatewayPhonePe = "phonepe"

// PhonePe never trusts a client-supplied outcome. Every event, whatever its
// source, is confirmed with a checksum-authenticated server-to-server status
// query; only the outcome code in that response counts.
type PhonePe struct {
	cfg    config.PhonePeConfig
	client *http.Client
	logger *logger.Logger
}

func NewPhonePe(cfg config.PhonePeConfig, client *http.Client, log *logger.Logger) *PhonePe {
	return &PhonePe{cfg: cfg, client: client, logger: log}
}

func (p *PhonePe) Name() string { return GatewayPhonePe }

// statusPath is the canonical path the checksum covers.
func (p *PhonePe) statusPath(txnID string) string {
	return fmt.Sprintf("/pg/v1/status/%s/%s", p.cfg.MerchantID, txnID)
}

// Checksum signs a canonical path: sha256(path + saltKey) + "###" + saltIndex.
func (p *PhonePe) Checksum(path string) string {
	sum := sha256.Sum256([]byte(path + p.cfg.SaltKey))
	return hex.EncodeToString(sum[:]) + "###" + p.cfg.SaltIndex
}

func (p *PhonePe) VerifyEvent(event models.PaymentEvent) (*Verification, error) {
	// The merchant transaction id doubles as the internal order id.
	if event.OrderID == "" {
		p.logger.LogSecurity("TXN_MISSING", "phonepe event lacks a merchant transaction id")
		return nil, ErrVerificationFailed
	}
	return p.QueryStatus(event.OrderID)
}

type phonePeStatusResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Data    struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
	} `json:"data"`
}

func (p *PhonePe) QueryStatus(txnID string) (*Verification, error) {
	path := p.statusPath(txnID)
	req, err := http.NewRequest(http.MethodGet, p.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", p.Checksum(path))
	req.Header.Set("X-MERCHANT-ID", p.cfg.MerchantID)

	resp, err := p.client.Do(req)
	if err != nil {
		// Timeouts included: never assume success when the gateway is unreachable.
		p.logger.Error("VERIFY", fmt.Sprintf("phonepe status query for %s failed: %v", txnID, err))
		return nil, ErrVerificationFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Error("VERIFY", fmt.Sprintf("phonepe status query for %s returned %d", txnID, resp.StatusCode))
		return nil, ErrVerificationFailed
	}

	var status phonePeStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, ErrVerificationFailed
	}

	// The merchant transaction id is the internal order id; the response is
	// cross-checked so a status for a different transaction cannot be replayed.
	if status.Data.MerchantTransactionID != txnID {
		p.logger.LogSecurity("TXN_MISMATCH", fmt.Sprintf("phonepe status response txn %s does not match queried %s", status.Data.MerchantTransactionID, txnID))
		return nil, ErrVerificationFailed
	}

	outcome := models.OutcomePending
	switch status.Code {
	case "PAYMENT_SUCCESS":
		outcome = models.OutcomeSucceeded
	case "PAYMENT_ERROR", "PAYMENT_DECLINED", "TIMED_OUT":
		outcome = models.OutcomeFailed
	}

	p.logger.LogVerify(GatewayPhonePe, txnID, fmt.Sprintf("status query: %s", status.Code))
	return &Verification{Outcome: outcome, OrderID: txnID}, nil
}
