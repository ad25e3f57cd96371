package verify

import (
	"errors"
	"fmt"
	"ms-reconcile/internal/models"
)

// ErrVerificationFailed covers signature/checksum mismatches and timeouts
// talking to a gateway. The caller must leave order state untouched; gateways
// that retry webhooks will naturally retry the event.
var ErrVerificationFailed = errors.New("payment verification failed")

// Verification is a gateway-authenticated outcome. Only verifications reach
// the finalizer; claimed outcomes never do.
type Verification struct {
	Outcome models.Outcome
	OrderID string
}

type Verifier interface {
	Name() string
	// VerifyEvent authenticates a normalized payment event and extracts the
	// true outcome. Fails closed: any event it cannot authenticate is an
	// ErrVerificationFailed, never a success.
	VerifyEvent(event models.PaymentEvent) (*Verification, error)
	// QueryStatus asks the gateway directly for the state of a transaction.
	// Backs the redirect-callback path and the stuck-order poll fallback.
	QueryStatus(txnID string) (*Verification, error)
}

// Registry resolves a verifier by gateway name.
type Registry struct {
	verifiers map[string]Verifier
}

func NewRegistry(verifiers ...Verifier) *Registry {
	r := &Registry{verifiers: make(map[string]Verifier)}
	for _, v := range verifiers {
		r.verifiers[v.Name()] = v
	}
	return r
}

func (r *Registry) Get(gateway string) (Verifier, error) {
	v, ok := r.verifiers[gateway]
	if !ok {
		return nil, fmt.Errorf("no verifier registered for gateway %q", gateway)
	}
	return v, nil
}
