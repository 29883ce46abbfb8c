package entitlement

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/paywall-webhook/internal/resilience"
)

// SupabaseConfig configures the PostgREST RPC backend.
type SupabaseConfig struct {
	URL         string
	ServiceKey  string
	Function    string
	Client      *http.Client
	Breaker     *resilience.Breaker
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
}

// SupabaseRPC grants entitlements by calling a Postgres function through Supabase's REST API.
type SupabaseRPC struct {
	endpoint   string
	serviceKey string
	http       resilience.HTTPClient
}

// postgrestError is the error document PostgREST returns for failed RPC calls.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// NewSupabaseRPC validates cfg and builds the client.
func NewSupabaseRPC(cfg SupabaseConfig) (*SupabaseRPC, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.URL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("entitlement: invalid supabase url %q", cfg.URL)
	}
	if strings.TrimSpace(cfg.ServiceKey) == "" {
		return nil, errors.New("entitlement: supabase service key is required")
	}
	fn := strings.TrimSpace(cfg.Function)
	if !identifierPattern.MatchString(fn) {
		return nil, fmt.Errorf("entitlement: invalid rpc function name %q", cfg.Function)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &SupabaseRPC{
		endpoint:   base.JoinPath("rest", "v1", "rpc", fn).String(),
		serviceKey: strings.TrimSpace(cfg.ServiceKey),
		http: resilience.HTTPClient{
			Client:      client,
			Breaker:     cfg.Breaker,
			Target:      "supabase",
			MaxAttempts: cfg.MaxAttempts,
			BaseBackoff: cfg.Backoff,
			Jitter:      0.2,
			Timeout:     cfg.Timeout,
		},
	}, nil
}

// Grant invokes the RPC with {"user_id": accountRef}.
func (s *SupabaseRPC) Grant(ctx context.Context, accountRef string) error {
	payload, err := json.Marshal(map[string]string{"user_id": accountRef})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.http.Do(ctx, req)
	if err != nil {
		return &DownstreamError{Backend: "supabase", AccountRef: accountRef, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var perr postgrestError
	if json.Unmarshal(raw, &perr) == nil && perr.Message != "" {
		return &DownstreamError{Backend: "supabase", AccountRef: accountRef,
			Err: fmt.Errorf("rpc returned %d (%s): %s", resp.StatusCode, perr.Code, perr.Message)}
	}
	return &DownstreamError{Backend: "supabase", AccountRef: accountRef,
		Err: &resilience.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}}
}

// ServiceKeyRole returns the "role" claim of a JWT-shaped service key without verifying it.
// Keys that are not JWTs return an error; callers treat that as "cannot tell".
func ServiceKeyRole(key string) (string, error) {
	tok, err := jwt.ParseString(strings.TrimSpace(key), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return "", fmt.Errorf("entitlement: parse service key: %w", err)
	}
	raw, ok := tok.Get("role")
	if !ok {
		return "", nil
	}
	role, _ := raw.(string)
	return role, nil
}
