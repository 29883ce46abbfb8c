package payment

import (
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Razorpay binds the merchant's two secrets to their signing conventions.
// The webhook secret is configured per webhook in the dashboard; the key secret is the API key secret.
type Razorpay struct {
	WebhookSecret string
	KeySecret     string
}

// Webhook returns the authenticator for webhook deliveries.
func (p Razorpay) Webhook() Authenticator {
	return Authenticator{Secret: p.WebhookSecret, Convention: ConventionWebhookBody}
}

// Checkout returns the authenticator for client checkout results.
func (p Razorpay) Checkout() Authenticator {
	return Authenticator{Secret: p.KeySecret, Convention: ConventionOrderPayment}
}

// SignWebhook signs body the way Razorpay signs webhook deliveries.
func (p Razorpay) SignWebhook(body []byte) (string, error) {
	return p.Webhook().Sign(WebhookMessage(body))
}

// SignCheckout signs an order/payment pair the way Razorpay Checkout does.
func (p Razorpay) SignCheckout(orderID, paymentID string) (string, error) {
	return p.Checkout().Sign(OrderPaymentMessage(orderID, paymentID))
}

// Handlers builds both endpoints from the provider and shared collaborators.
func (p Razorpay) Handlers(router Router) (WebhookHandler, VerifyHandler) {
	return WebhookHandler{Auth: p.Webhook(), Router: router},
		VerifyHandler{
			Auth:      p.Checkout(),
			Granter:   router.Granter,
			Validator: validator.New(validator.WithRequiredStructEnabled()),
		}
}

// LogConfigured reports which secrets are present without logging them.
func (p Razorpay) LogConfigured(log zerolog.Logger) {
	log.Info().
		Bool("webhook_secret", p.WebhookSecret != "").
		Bool("key_secret", p.KeySecret != "").
		Msg("razorpay provider configured")
}
