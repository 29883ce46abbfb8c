package main

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/paywall-webhook/internal/common"
	"github.com/noah-isme/paywall-webhook/internal/config"
	"github.com/noah-isme/paywall-webhook/internal/health"
	"github.com/noah-isme/paywall-webhook/internal/obs"
	"github.com/noah-isme/paywall-webhook/internal/payment"
	"github.com/noah-isme/paywall-webhook/internal/ratelimit"
	"github.com/noah-isme/paywall-webhook/internal/security"
)

func newRouter(cfg *config.Config, logger zerolog.Logger, d *dependencies) http.Handler {
	router := payment.Router{Granter: d.Granter}
	if d.Redis != nil {
		router.Ledger = payment.RedisLedger{Client: d.Redis, TTL: cfg.CaptureLedgerTTL}
	}
	provider := payment.Razorpay{WebhookSecret: cfg.RazorpayWebhookSecret, KeySecret: cfg.RazorpayKeySecret}
	provider.LogConfigured(logger)
	webhook, verify := provider.Handlers(router)

	r := chi.NewRouter()
	r.NotFound(common.NotFound)
	r.MethodNotAllowed(common.MethodNotAllowed)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Obs.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.Obs.MetricsEnabled {
		buckets := obs.ParseBucketsCSV(cfg.Obs.MetricsBucketsMS)
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, buckets, nil)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.Obs.SecurityHeaders, EnableHSTS: cfg.Obs.HSTSEnabled}.Middleware)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Razorpay Webhook Server is running"))
	})

	healthHandler := health.Handler{Probes: readinessProbes(cfg, d)}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.Obs.PprofUser, cfg.Obs.PprofPass))
	}

	r.Group(func(g chi.Router) {
		g.Use(middleware.Timeout(cfg.RequestTimeout))
		g.Use(security.Headers{Enable: true, NoStore: true}.Middleware)
		g.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

		g.Post("/webhook", webhook.Handle)

		g.Group(func(v chi.Router) {
			v.Use(security.CORS(cfg.CORSAllowedOrigins))
			if d.Redis != nil {
				v.Use(ratelimit.Handler{
					Limiter: ratelimit.Limiter{Client: d.Redis, Prefix: "rl:"},
					Config: ratelimit.Config{
						Key:    ratelimit.ByClientIP("verify"),
						Window: cfg.VerifyRateLimitWindow,
						Max:    cfg.VerifyRateLimitMax,
					},
				}.Middleware)
			}
			v.Post("/verify", verify.Handle)
			v.Options("/verify", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
		})
	})
	return r
}

func readinessProbes(cfg *config.Config, d *dependencies) []health.Probe {
	var probes []health.Probe
	if d.Redis != nil {
		probes = append(probes, health.Probe{
			Name:    "redis",
			Timeout: cfg.Obs.ReadyProbeTimeout,
			Check:   func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() },
		})
	}
	if d.Pool != nil {
		probes = append(probes, health.Probe{
			Name:    "postgres",
			Timeout: cfg.Obs.ReadyProbeTimeout,
			Check:   d.Pool.Ping,
		})
	}
	return probes
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return http.StripPrefix("/debug/pprof", mux)
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorised", nil)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
