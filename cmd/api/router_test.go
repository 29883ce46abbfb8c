package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paywall-webhook/internal/config"
	"github.com/noah-isme/paywall-webhook/internal/entitlement"
	"github.com/noah-isme/paywall-webhook/internal/payment"
)

func testConfig(t *testing.T, overrides map[string]string) *config.Config {
	t.Helper()
	env := map[string]string{
		"RAZORPAY_WEBHOOK_SECRET": "whsec_router",
		"RAZORPAY_KEY_SECRET":     "key_router",
		"ENTITLEMENT_BACKEND":     "supabase",
		"SUPABASE_URL":            "https://project.supabase.co",
		"SUPABASE_SERVICE_KEY":    "service-key",
		"VERIFY_RATE_LIMIT_MAX":   "2",
		"OBS_ENABLE_TRACING":      "false",
		"OBS_ENABLE_PPROF":        "false",
	}
	for k, v := range overrides {
		env[k] = v
	}
	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	return cfg
}

func testDeps(t *testing.T, grants *atomic.Int32) *dependencies {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &dependencies{
		Redis: client,
		Granter: entitlement.Func(func(context.Context, string) error {
			grants.Add(1)
			return nil
		}),
	}
}

func TestRootBanner(t *testing.T) {
	var grants atomic.Int32
	h := newRouter(testConfig(t, nil), zerolog.Nop(), testDeps(t, &grants))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Razorpay Webhook Server is running", rr.Body.String())
}

func TestWebhookRouteEndToEnd(t *testing.T) {
	var grants atomic.Int32
	cfg := testConfig(t, nil)
	h := newRouter(cfg, zerolog.Nop(), testDeps(t, &grants))

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_9","status":"captured","order_id":"order_9","notes":{"user_id":"u-9"}}}}}`)
	sig, err := payment.Razorpay{WebhookSecret: cfg.RazorpayWebhookSecret}.SignWebhook(body)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
		req.Header.Set(payment.SignatureHeader, sig)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		require.JSONEq(t, `{"success":true,"user":"u-9"}`, rr.Body.String())
		require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	}
	require.EqualValues(t, 1, grants.Load())
}

func TestWebhookRouteRejectsOversizedBody(t *testing.T) {
	var grants atomic.Int32
	h := newRouter(testConfig(t, map[string]string{"BODY_LIMIT_BYTES": "16"}), zerolog.Nop(), testDeps(t, &grants))

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(strings.Repeat("x", 64)))
	req.Header.Set(payment.SignatureHeader, "abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Zero(t, grants.Load())
}

func TestVerifyRouteIsRateLimited(t *testing.T) {
	var grants atomic.Int32
	h := newRouter(testConfig(t, nil), zerolog.Nop(), testDeps(t, &grants))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(`{"razorpay_order_id":"o","razorpay_payment_id":"p","razorpay_signature":"bad"}`))
		req.RemoteAddr = "192.0.2.10:4000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}
	require.Equal(t, http.StatusBadRequest, send())
	require.Equal(t, http.StatusBadRequest, send())
	require.Equal(t, http.StatusTooManyRequests, send())
}

func TestHealthRoutes(t *testing.T) {
	var grants atomic.Int32
	h := newRouter(testConfig(t, nil), zerolog.Nop(), testDeps(t, &grants))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok","checks":{"redis":"ok"}}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestProtectPprofRequiresCredentials(t *testing.T) {
	h := protectPprof(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), "ops", "secret")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.SetBasicAuth("ops", "secret")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}
