// Package entitlement marks accounts as entitled in the external account store.
// Every backend calls a single remote procedure that is idempotent by contract:
// granting twice for the same account has no additional effect.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/paywall-webhook/internal/obs"
)

// ErrEmptyAccountRef is returned when Grant is called without an account reference.
var ErrEmptyAccountRef = errors.New("entitlement: account reference is empty")

// Granter marks an account as entitled.
type Granter interface {
	Grant(ctx context.Context, accountRef string) error
}

// Func adapts a plain function to the Granter interface.
type Func func(ctx context.Context, accountRef string) error

// Grant calls f.
func (f Func) Grant(ctx context.Context, accountRef string) error {
	return f(ctx, accountRef)
}

// DownstreamError wraps any failure reported by the account store.
type DownstreamError struct {
	Backend    string
	AccountRef string
	Err        error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("entitlement: %s grant for %q failed: %v", e.Backend, e.AccountRef, e.Err)
}

func (e *DownstreamError) Unwrap() error { return e.Err }

// IsDownstream reports whether err originated from the account store.
func IsDownstream(err error) bool {
	var target *DownstreamError
	return errors.As(err, &target)
}

// Instrumented decorates a Granter with tracing, metrics and DownstreamError wrapping.
type Instrumented struct {
	Backend string
	Next    Granter
}

// Grant validates the reference, calls the wrapped backend and records the outcome.
func (g Instrumented) Grant(ctx context.Context, accountRef string) error {
	accountRef = strings.TrimSpace(accountRef)
	if accountRef == "" {
		return ErrEmptyAccountRef
	}
	if g.Next == nil {
		return &DownstreamError{Backend: g.backend(), AccountRef: accountRef, Err: errors.New("granter not configured")}
	}

	ctx, span := otel.Tracer("entitlement").Start(ctx, "Entitlement.Grant")
	defer span.End()
	span.SetAttributes(attribute.String("entitlement.backend", g.backend()))

	start := time.Now()
	err := g.Next.Grant(ctx, accountRef)
	result := "success"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "grant failed")
		if !IsDownstream(err) {
			err = &DownstreamError{Backend: g.backend(), AccountRef: accountRef, Err: err}
		}
	}
	if obs.EntitlementGrantTotal != nil {
		obs.EntitlementGrantTotal.WithLabelValues(g.backend(), result).Inc()
	}
	if obs.EntitlementGrantLatency != nil {
		obs.EntitlementGrantLatency.WithLabelValues(g.backend()).Observe(obs.DurationMillis(time.Since(start)))
	}
	return err
}

func (g Instrumented) backend() string {
	if g.Backend == "" {
		return "unknown"
	}
	return g.Backend
}
