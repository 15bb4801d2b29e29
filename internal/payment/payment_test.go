package payment

import (
	"context"
	"strings"
	"testing"
)

func TestCreateCheckoutSession(t *testing.T) {
	p := NewStubProvider("http://localhost:8686", "test-secret")

	session, err := p.CreateCheckoutSession(context.Background(), CheckoutParams{
		OrganizationID:   "org_1",
		PaymentAccountID: "acct_1",
		DonationID:       "don_1",
		Amount:           5000,
		Currency:         "usd",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession failed: %v", err)
	}
	if session.ID == "" {
		t.Error("expected session ID")
	}
	if !strings.HasPrefix(session.RedirectURL, "http://localhost:8686/checkout/") {
		t.Errorf("unexpected redirect URL: %s", session.RedirectURL)
	}
}

func TestCreateCheckoutSessionRejectsNonPositiveAmount(t *testing.T) {
	p := NewStubProvider("http://localhost:8686", "test-secret")

	for _, amount := range []int64{0, -100} {
		_, err := p.CreateCheckoutSession(context.Background(), CheckoutParams{Amount: amount})
		if err == nil {
			t.Errorf("expected error for amount %d", amount)
		}
	}
}

func TestWebhookSignatureRoundTrip(t *testing.T) {
	p := NewStubProvider("http://localhost:8686", "test-secret")
	payload := []byte(`{"type":"checkout.completed","session_id":"cs_123"}`)

	sig := p.SignPayload(payload)
	if err := p.VerifyWebhook(payload, sig); err != nil {
		t.Fatalf("VerifyWebhook failed for valid signature: %v", err)
	}
}

func TestWebhookRejectsTamperedPayload(t *testing.T) {
	p := NewStubProvider("http://localhost:8686", "test-secret")
	payload := []byte(`{"type":"checkout.completed","session_id":"cs_123"}`)
	sig := p.SignPayload(payload)

	tampered := []byte(`{"type":"checkout.completed","session_id":"cs_999"}`)
	if err := p.VerifyWebhook(tampered, sig); err != ErrInvalidSignature {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	signer := NewStubProvider("http://localhost:8686", "secret-a")
	verifier := NewStubProvider("http://localhost:8686", "secret-b")
	payload := []byte(`{"type":"checkout.completed"}`)

	sig := signer.SignPayload(payload)
	if err := verifier.VerifyWebhook(payload, sig); err != ErrInvalidSignature {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyAccount(t *testing.T) {
	p := NewStubProvider("http://localhost:8686", "test-secret")

	verified, err := p.VerifyAccount(context.Background(), "acct_1")
	if err != nil {
		t.Fatalf("VerifyAccount failed: %v", err)
	}
	if !verified {
		t.Error("expected non-empty account to verify")
	}

	verified, err = p.VerifyAccount(context.Background(), "")
	if err != nil {
		t.Fatalf("VerifyAccount failed: %v", err)
	}
	if verified {
		t.Error("expected empty account to be unverified")
	}
}
