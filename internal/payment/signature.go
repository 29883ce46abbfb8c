package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// SignatureHeader carries the hex HMAC of the raw webhook body.
const SignatureHeader = "X-Razorpay-Signature"

// ErrSecretMissing is returned when an Authenticator has no secret to sign with.
var ErrSecretMissing = errors.New("payment: signing secret not configured")

// Convention names which bytes a signature covers.
type Convention string

const (
	// ConventionWebhookBody signs the byte-exact request body.
	ConventionWebhookBody Convention = "webhook_body"
	// ConventionOrderPayment signs "<order_id>|<payment_id>" for client checkout results.
	ConventionOrderPayment Convention = "order_payment"
)

// WebhookMessage returns the bytes covered by a webhook signature.
func WebhookMessage(body []byte) []byte { return body }

// OrderPaymentMessage returns the bytes covered by a checkout signature.
func OrderPaymentMessage(orderID, paymentID string) []byte {
	msg := make([]byte, 0, len(orderID)+1+len(paymentID))
	msg = append(msg, orderID...)
	msg = append(msg, '|')
	return append(msg, paymentID...)
}

// Authenticator is a keyed-message authenticator bound to one secret and convention.
type Authenticator struct {
	Secret     string
	Convention Convention
}

// Sign returns the lowercase hex HMAC-SHA256 of message.
func (a Authenticator) Sign(message []byte) (string, error) {
	if a.Secret == "" {
		return "", ErrSecretMissing
	}
	return sign(a.Secret, message), nil
}

// Verify reports whether presented is the signature of message. A mismatch is not an error.
func (a Authenticator) Verify(message []byte, presented string) (bool, error) {
	expected, err := a.Sign(message)
	if err != nil {
		return false, err
	}
	return equalHex(expected, presented), nil
}

// VerifySignature computes HMAC-SHA256(secret, signed) and compares it to presented in constant time.
// An empty secret never verifies.
func VerifySignature(secret string, signed []byte, presented string) bool {
	if secret == "" {
		return false
	}
	return equalHex(sign(secret, signed), presented)
}

func sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// equalHex compares lengths first so content is only compared for equal-length inputs.
func equalHex(expected, presented string) bool {
	if len(expected) != len(presented) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

type verifiedKey struct{}

// withVerified marks ctx as carrying a request whose signature checked out.
func withVerified(ctx context.Context, c Convention) context.Context {
	return context.WithValue(ctx, verifiedKey{}, c)
}

// VerifiedBy returns the convention under which the current request was authenticated.
func VerifiedBy(ctx context.Context) (Convention, bool) {
	c, ok := ctx.Value(verifiedKey{}).(Convention)
	return c, ok
}
