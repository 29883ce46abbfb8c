package entitlement_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paywall-webhook/internal/entitlement"
	"github.com/noah-isme/paywall-webhook/internal/resilience"
)

type capturedRequest struct {
	Path   string
	APIKey string
	Auth   string
	Body   string
}

func newSupabase(t *testing.T, srv *httptest.Server) *entitlement.SupabaseRPC {
	t.Helper()
	rpc, err := entitlement.NewSupabaseRPC(entitlement.SupabaseConfig{
		URL:         srv.URL + "/",
		ServiceKey:  "service-key",
		Function:    "set_premium_status",
		Client:      srv.Client(),
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		Timeout:     time.Second,
	})
	require.NoError(t, err)
	return rpc
}

func TestSupabaseGrantCallsRPC(t *testing.T) {
	var last atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		last.Store(capturedRequest{
			Path:   r.URL.Path,
			APIKey: r.Header.Get("apikey"),
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		})
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rpc := newSupabase(t, srv)
	require.NoError(t, rpc.Grant(context.Background(), "user-1"))

	got, ok := last.Load().(capturedRequest)
	require.True(t, ok)
	require.Equal(t, "/rest/v1/rpc/set_premium_status", got.Path)
	require.Equal(t, "service-key", got.APIKey)
	require.Equal(t, "Bearer service-key", got.Auth)
	require.JSONEq(t, `{"user_id":"user-1"}`, got.Body)
}

func TestSupabaseGrantRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, newSupabase(t, srv).Grant(context.Background(), "user-1"))
	require.EqualValues(t, 2, calls.Load())
}

func TestSupabaseGrantSurfacesPostgrestError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"PGRST202","message":"Could not find the function"}`))
	}))
	defer srv.Close()

	err := newSupabase(t, srv).Grant(context.Background(), "user-1")
	require.Error(t, err)
	require.True(t, entitlement.IsDownstream(err))
	require.Contains(t, err.Error(), "PGRST202")
	require.EqualValues(t, 1, calls.Load())
}

func TestSupabaseGrantOpenBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rpc, err := entitlement.NewSupabaseRPC(entitlement.SupabaseConfig{
		URL:         srv.URL,
		ServiceKey:  "service-key",
		Function:    "set_premium_status",
		Client:      srv.Client(),
		Breaker:     resilience.NewBreaker(1, 0.5, time.Minute),
		MaxAttempts: 1,
	})
	require.NoError(t, err)

	require.Error(t, rpc.Grant(context.Background(), "user-1"))
	err = rpc.Grant(context.Background(), "user-1")
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.True(t, entitlement.IsDownstream(err))
}

func TestNewSupabaseRPCValidatesConfig(t *testing.T) {
	_, err := entitlement.NewSupabaseRPC(entitlement.SupabaseConfig{URL: "not a url", ServiceKey: "k", Function: "f"})
	require.Error(t, err)
	_, err = entitlement.NewSupabaseRPC(entitlement.SupabaseConfig{URL: "https://x.supabase.co", Function: "f"})
	require.Error(t, err)
	_, err = entitlement.NewSupabaseRPC(entitlement.SupabaseConfig{URL: "https://x.supabase.co", ServiceKey: "k", Function: "drop table; --"})
	require.Error(t, err)
}

func TestServiceKeyRole(t *testing.T) {
	tok, err := jwt.NewBuilder().Claim("role", "service_role").Issuer("supabase").Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("irrelevant")))
	require.NoError(t, err)

	role, err := entitlement.ServiceKeyRole(string(signed))
	require.NoError(t, err)
	require.Equal(t, "service_role", role)

	_, err = entitlement.ServiceKeyRole("sb_secret_opaque")
	require.Error(t, err)
}
