package providers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"citywalk/pkg/platform/circuit"
)

// AnchorRequest is sent to an external backend to anchor a certificate digest.
type AnchorRequest struct {
	Provider    string          `json:"provider"`
	ReferenceID string          `json:"referenceId"`
	Digest      string          `json:"digest"`
	Certificate json.RawMessage `json:"certificate"`

	Endpoint string `json:"-"`
	KeyID    string `json:"-"`
	Secret   string `json:"-"`
}

// Anchor is the backend's receipt for an anchored digest.
type Anchor struct {
	Ordinal    string    `json:"ordinal"`
	AnchoredAt time.Time `json:"anchoredAt"`
}

// Backend performs the real external notarization call for remote providers.
type Backend interface {
	Anchor(ctx context.Context, req AnchorRequest) (*Anchor, error)
}

const (
	anchorPath      = "/v1/anchors"
	headerKeyID     = "X-Citywalk-Key-Id"
	headerSignature = "X-Citywalk-Signature"
	maxResponseSize = 1 << 20
)

// GatewayBackend anchors digests through a provider's HTTP JSON gateway.
// Each provider gets its own circuit breaker so one failing backend does not
// trip the others.
type GatewayBackend struct {
	client      *http.Client
	logger      *slog.Logger
	breakerOpts []circuit.Option

	mu       sync.Mutex
	breakers map[string]*circuit.Breaker
}

type GatewayOption func(*GatewayBackend)

func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *GatewayBackend) {
		if c != nil {
			g.client = c
		}
	}
}

func WithBreakerOptions(opts ...circuit.Option) GatewayOption {
	return func(g *GatewayBackend) {
		g.breakerOpts = append(g.breakerOpts, opts...)
	}
}

func WithGatewayLogger(logger *slog.Logger) GatewayOption {
	return func(g *GatewayBackend) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func NewGatewayBackend(opts ...GatewayOption) *GatewayBackend {
	g := &GatewayBackend{
		client:   &http.Client{},
		logger:   slog.Default(),
		breakers: make(map[string]*circuit.Breaker),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Breaker returns the circuit breaker guarding provider.
func (g *GatewayBackend) Breaker(provider string) *circuit.Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[provider]
	if !ok {
		b = circuit.New(provider, g.breakerOpts...)
		g.breakers[provider] = b
	}
	return b
}

// Anchor implements Backend.
func (g *GatewayBackend) Anchor(ctx context.Context, req AnchorRequest) (*Anchor, error) {
	breaker := g.Breaker(req.Provider)
	if !breaker.Allow() {
		return nil, NewProviderError(ErrorProviderOutage, req.Provider, "circuit open", nil)
	}

	anchor, err := g.post(ctx, req)
	if err != nil {
		if IsRetryable(err) {
			if _, change := breaker.RecordFailure(); change.Opened {
				g.logger.Warn("provider circuit opened", "provider", req.Provider)
			}
		}
		return nil, err
	}
	if _, change := breaker.RecordSuccess(); change.Closed {
		g.logger.Info("provider circuit closed", "provider", req.Provider)
	}
	return anchor, nil
}

func (g *GatewayBackend) post(ctx context.Context, req AnchorRequest) (*Anchor, error) {
	if req.Endpoint == "" {
		return nil, NewProviderError(ErrorBadData, req.Provider, "endpoint is empty", nil)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewProviderError(ErrorInternal, req.Provider, "failed to encode anchor request", err)
	}

	url := strings.TrimSuffix(req.Endpoint, "/") + anchorPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError(ErrorBadData, req.Provider, "invalid endpoint", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerKeyID, req.KeyID)
	httpReq.Header.Set(headerSignature, Sign(req.Secret, body))

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewProviderError(ErrorTimeout, req.Provider, "anchor request timed out", err)
		}
		return nil, NewProviderError(ErrorProviderOutage, req.Provider, "anchor request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, NewProviderError(ErrorAuthentication, req.Provider, fmt.Sprintf("gateway returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewProviderError(ErrorProviderOutage, req.Provider, fmt.Sprintf("gateway returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 300:
		return nil, NewProviderError(ErrorBadData, req.Provider, fmt.Sprintf("gateway returned %d", resp.StatusCode), nil)
	}

	var anchor Anchor
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&anchor); err != nil {
		return nil, NewProviderError(ErrorBadData, req.Provider, "malformed gateway response", err)
	}
	if anchor.Ordinal == "" {
		return nil, NewProviderError(ErrorBadData, req.Provider, "gateway response missing ordinal", nil)
	}
	return &anchor, nil
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
