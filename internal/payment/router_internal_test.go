package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paywall-webhook/internal/entitlement"
)

func capturedEvent(ref string) WebhookEvent {
	return WebhookEvent{
		EventType:     EventPaymentCaptured,
		Payment:       PaymentEntity{ID: "pay_1", OrderID: "order_1", Status: StatusCaptured},
		AccountRef:    ref,
		HasAccountRef: ref != "",
	}
}

func TestRouteRefusesUnverifiedContext(t *testing.T) {
	called := false
	rt := Router{Granter: entitlement.Func(func(context.Context, string) error {
		called = true
		return nil
	})}

	out := rt.Route(context.Background(), capturedEvent("u1"))
	require.Equal(t, OutcomeConfigurationFault, out.Kind)
	require.False(t, called)

	out = rt.Route(withVerified(context.Background(), ConventionWebhookBody), capturedEvent("u1"))
	require.Equal(t, OutcomeProcessed, out.Kind)
	require.True(t, called)
}

func TestRouteWithoutGranter(t *testing.T) {
	out := Router{}.Route(withVerified(context.Background(), ConventionWebhookBody), capturedEvent("u1"))
	require.Equal(t, OutcomeConfigurationFault, out.Kind)
}

func TestRouteWithoutPaymentIDSkipsLedger(t *testing.T) {
	ledger := &countingLedger{}
	rt := Router{
		Granter: entitlement.Func(func(context.Context, string) error { return nil }),
		Ledger:  ledger,
	}
	ev := capturedEvent("u1")
	ev.Payment.ID = ""
	out := rt.Route(withVerified(context.Background(), ConventionWebhookBody), ev)
	require.Equal(t, OutcomeProcessed, out.Kind)
	require.Zero(t, ledger.claims)
}

type countingLedger struct{ claims int }

func (l *countingLedger) Claim(context.Context, string) (bool, error) {
	l.claims++
	return true, nil
}

func (l *countingLedger) Release(context.Context, string) error { return nil }
