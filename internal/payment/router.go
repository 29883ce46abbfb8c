package payment

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/noah-isme/paywall-webhook/internal/entitlement"
)

// Router dispatches verified events. Only captured payments mutate account state;
// every other event type and status is acknowledged without side effects.
type Router struct {
	Granter entitlement.Granter
	Ledger  Ledger
}

// Route decides the outcome for ev, calling the granter at most once.
// ctx must come from a request whose signature was verified.
func (rt Router) Route(ctx context.Context, ev WebhookEvent) Outcome {
	log := zerolog.Ctx(ctx)
	if ev.EventType != EventPaymentCaptured || ev.Payment.Status != StatusCaptured {
		log.Info().Str("event", ev.EventType).Str("status", string(ev.Payment.Status)).Msg("webhook event ignored")
		return Outcome{Kind: OutcomeUnknownEvent}
	}
	if !ev.HasAccountRef {
		log.Warn().Str("order_id", ev.Payment.OrderID).Str("payment_id", ev.Payment.ID).
			Msg("payment captured without user_id in notes")
		return Outcome{Kind: OutcomeNoAccountRef}
	}
	if rt.Granter == nil {
		return Outcome{Kind: OutcomeConfigurationFault, Cause: errors.New("payment: granter not configured")}
	}
	if _, ok := VerifiedBy(ctx); !ok {
		return Outcome{Kind: OutcomeConfigurationFault, Cause: errors.New("payment: refusing to grant for an unverified event")}
	}

	claimed := false
	if rt.Ledger != nil && ev.Payment.ID != "" {
		ok, err := rt.Ledger.Claim(ctx, ev.Payment.ID)
		if err != nil {
			return Outcome{Kind: OutcomeDownstreamFailure, Cause: err}
		}
		if !ok {
			log.Info().Str("payment_id", ev.Payment.ID).Str("user", ev.AccountRef).Msg("captured payment already granted")
			return Outcome{Kind: OutcomeDuplicate, AccountRef: ev.AccountRef}
		}
		claimed = true
	}

	if err := rt.Granter.Grant(ctx, ev.AccountRef); err != nil {
		if claimed {
			if relErr := rt.Ledger.Release(context.WithoutCancel(ctx), ev.Payment.ID); relErr != nil {
				log.Error().Err(relErr).Str("payment_id", ev.Payment.ID).Msg("release capture ledger")
			}
		}
		return Outcome{Kind: OutcomeDownstreamFailure, AccountRef: ev.AccountRef, Cause: err}
	}
	log.Info().Str("user", ev.AccountRef).Str("payment_id", ev.Payment.ID).Msg("premium status granted")
	return Outcome{Kind: OutcomeProcessed, AccountRef: ev.AccountRef}
}
