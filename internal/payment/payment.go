// Package payment abstracts the checkout provider used to collect donations.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"donorbase/api/internal/util"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// CheckoutParams describes the donation being collected.
type CheckoutParams struct {
	OrganizationID   string
	PaymentAccountID string
	DonationID       string
	Amount           int64
	Currency         string
	Description      string
	SuccessURL       string
	CancelURL        string
}

// CheckoutSession is the provider-side session the donor is redirected to.
type CheckoutSession struct {
	ID          string
	RedirectURL string
}

// Provider creates checkout sessions and verifies webhook callbacks.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (CheckoutSession, error)
	VerifyWebhook(payload []byte, signature string) error
	VerifyAccount(ctx context.Context, paymentAccountID string) (bool, error)
}

// StubProvider is a provider for development and test environments. Checkout
// sessions point at a local confirmation page and webhooks are signed with a
// shared HMAC secret.
type StubProvider struct {
	baseURL string
	secret  []byte
}

// NewStubProvider creates a stub provider. baseURL is where the fake checkout
// page is served from.
func NewStubProvider(baseURL, webhookSecret string) *StubProvider {
	return &StubProvider{
		baseURL: baseURL,
		secret:  []byte(webhookSecret),
	}
}

func (p *StubProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (CheckoutSession, error) {
	if params.Amount <= 0 {
		return CheckoutSession{}, errors.New("amount must be positive")
	}
	sessionID := util.NewID("cs")
	return CheckoutSession{
		ID:          sessionID,
		RedirectURL: fmt.Sprintf("%s/checkout/%s", p.baseURL, sessionID),
	}, nil
}

// VerifyWebhook checks the hex-encoded HMAC-SHA256 signature of the payload.
func (p *StubProvider) VerifyWebhook(payload []byte, signature string) error {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyAccount reports whether the payment account is ready to accept
// donations. The stub treats any non-empty account id as verified.
func (p *StubProvider) VerifyAccount(ctx context.Context, paymentAccountID string) (bool, error) {
	return paymentAccountID != "", nil
}

// SignPayload produces the signature VerifyWebhook expects. Exposed for the
// stub checkout page and for tests.
func (p *StubProvider) SignPayload(payload []byte) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
