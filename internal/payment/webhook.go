package payment

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/paywall-webhook/internal/common"
	"github.com/noah-isme/paywall-webhook/internal/obs"
)

// WebhookHandler authenticates Razorpay webhook deliveries and routes captured payments.
type WebhookHandler struct {
	Auth   Authenticator
	Router Router
}

// Handle reads the raw body, verifies it, parses it and writes the outcome.
func (h WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("payment").Start(r.Context(), "Webhook.Handle")
	defer span.End()

	signature := r.Header.Get(SignatureHeader)
	var (
		body    []byte
		readErr error
	)
	if signature != "" {
		body, readErr = io.ReadAll(r.Body)
	}

	eventType, outcome := h.Process(ctx, body, readErr, signature)
	span.SetAttributes(
		attribute.String("payment.event", eventType),
		attribute.String("payment.outcome", outcome.Kind.String()),
	)
	if outcome.Status() >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, outcome.Kind.String())
		if outcome.Cause != nil {
			span.RecordError(outcome.Cause)
		}
	}
	obs.ObserveWebhook(eventType, outcome.Kind.String())
	Respond(w, outcome)
}

// Process runs the pipeline over an already captured body. Verification always
// completes before parsing, and parsing before any downstream call.
func (h WebhookHandler) Process(ctx context.Context, body []byte, readErr error, signature string) (string, Outcome) {
	log := zerolog.Ctx(ctx)

	if signature == "" {
		log.Warn().Msg("webhook received without signature")
		return "", Outcome{Kind: OutcomeSignatureMissing}
	}
	if readErr != nil || body == nil {
		if readErr == nil {
			readErr = errors.New("empty body")
		}
		log.Error().Err(readErr).Msg("raw webhook body unavailable")
		return "", Outcome{Kind: OutcomeBodyUnavailable, Cause: readErr}
	}

	digest := common.Sha256Hex(body)
	ok, err := h.Auth.Verify(WebhookMessage(body), signature)
	if err != nil {
		log.Error().Err(err).Msg("webhook signature verification error")
		return "", Outcome{Kind: OutcomeConfigurationFault, Cause: err}
	}
	if !ok {
		log.Warn().Str("body_sha256", digest).Msg("invalid webhook signature, potential spoofing attempt")
		return "", Outcome{Kind: OutcomeSignatureInvalid}
	}
	ctx = withVerified(ctx, ConventionWebhookBody)

	ev, err := ParseEvent(body)
	if err != nil {
		// Other event types are acknowledged whatever shape their payload takes.
		if ev.EventType != "" && ev.EventType != EventPaymentCaptured {
			log.Info().Str("event", ev.EventType).Msg("webhook event ignored")
			return ev.EventType, Outcome{Kind: OutcomeUnknownEvent}
		}
		log.Warn().Err(err).Str("body_sha256", digest).Msg("verified webhook has invalid envelope")
		return ev.EventType, Outcome{Kind: OutcomeParseFailed, Cause: err}
	}

	outcome := h.Router.Route(ctx, ev)
	if outcome.Kind == OutcomeDownstreamFailure || outcome.Kind == OutcomeConfigurationFault {
		log.Error().Err(outcome.Cause).
			Str("user", ev.AccountRef).
			Str("payment_id", ev.Payment.ID).
			Str("body_sha256", digest).
			Msg("webhook processing failed")
	}
	return ev.EventType, outcome
}
