// Package providers holds the HTTP clients for the downstream company detail
// and stakeholder registries.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"bizreg/internal/enrichment/models"
	"bizreg/pkg/platform/circuit"
)

const (
	// DefaultMaxRetries bounds retries of retryable failures per lookup.
	DefaultMaxRetries = 2
	maxBodyBytes      = 1 << 20
)

// DetailClient fetches founding date, size class and similar facts.
type DetailClient interface {
	Lookup(ctx context.Context, identifier string) (*models.Detail, error)
}

// StakeholderClient fetches the people and entities attached to a company.
type StakeholderClient interface {
	Lookup(ctx context.Context, identifier string) ([]models.Stakeholder, error)
}

// Option configures an HTTP provider.
type Option func(*httpProvider)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *httpProvider) {
		if c != nil {
			p.client = c
		}
	}
}

// WithBreaker guards calls with a circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(p *httpProvider) {
		p.breaker = b
	}
}

// WithMaxRetries overrides DefaultMaxRetries.
func WithMaxRetries(n uint64) Option {
	return func(p *httpProvider) {
		p.maxRetries = n
	}
}

// WithRetryInterval sets the initial backoff interval.
func WithRetryInterval(d time.Duration) Option {
	return func(p *httpProvider) {
		if d > 0 {
			p.retryInterval = d
		}
	}
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(p *httpProvider) {
		p.apiKey = key
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *httpProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

type httpProvider struct {
	id            string
	baseURL       string
	apiKey        string
	client        *http.Client
	breaker       *circuit.Breaker
	maxRetries    uint64
	retryInterval time.Duration
	logger        *slog.Logger
}

func newHTTPProvider(id, baseURL string, timeout time.Duration, opts ...Option) *httpProvider {
	p := &httpProvider{
		id:            id,
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{Timeout: timeout},
		maxRetries:    DefaultMaxRetries,
		retryInterval: 100 * time.Millisecond,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// getJSON performs GET baseURL+path and decodes the body into out, retrying
// retryable failures with exponential backoff.
func (p *httpProvider) getJSON(ctx context.Context, path string, out any) error {
	if p.breaker != nil && !p.breaker.Allow() {
		return NewProviderError(ErrorCircuitOpen, p.id, "circuit open", nil)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, p.maxRetries), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := p.once(ctx, path, out)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		p.logger.DebugContext(ctx, "provider call failed, retrying",
			"provider", p.id,
			"attempt", attempt,
			"error", err,
		)
		return err
	}, policy)

	p.record(ctx, err)
	return err
}

func (p *httpProvider) record(ctx context.Context, err error) {
	if p.breaker == nil {
		return
	}
	var change circuit.StateChange
	// Only provider-side trouble counts against the circuit.
	if err != nil && IsRetryable(err) {
		_, change = p.breaker.RecordFailure()
	} else {
		_, change = p.breaker.RecordSuccess()
	}
	if change.Opened {
		p.logger.WarnContext(ctx, "provider circuit opened", "provider", p.id)
	}
	if change.Closed {
		p.logger.InfoContext(ctx, "provider circuit closed", "provider", p.id)
	}
}

func (p *httpProvider) once(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return NewProviderError(ErrorInternal, p.id, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return NewProviderError(categorizeTransport(err), p.id, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return NewProviderError(categorizeStatus(resp.StatusCode), p.id,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		if ctx.Err() != nil {
			return NewProviderError(ErrorTimeout, p.id, "read response", err)
		}
		return NewProviderError(ErrorBadData, p.id, "decode response", err)
	}
	return nil
}

// HTTPDetailClient calls GET {base}/companies/{identifier}.
type HTTPDetailClient struct {
	p *httpProvider
}

// NewDetailClient creates a detail client for baseURL.
func NewDetailClient(baseURL string, timeout time.Duration, opts ...Option) *HTTPDetailClient {
	return &HTTPDetailClient{p: newHTTPProvider("company-detail", baseURL, timeout, opts...)}
}

func (c *HTTPDetailClient) Lookup(ctx context.Context, identifier string) (*models.Detail, error) {
	var body detailResponse
	if err := c.p.getJSON(ctx, "/companies/"+url.PathEscape(identifier), &body); err != nil {
		return nil, err
	}
	detail, err := body.toModel(identifier)
	if err != nil {
		return nil, NewProviderError(ErrorBadData, c.p.id, "invalid detail", err)
	}
	return detail, nil
}

// HTTPStakeholderClient calls GET {base}/companies/{identifier}/stakeholders.
type HTTPStakeholderClient struct {
	p *httpProvider
}

// NewStakeholderClient creates a stakeholder client for baseURL.
func NewStakeholderClient(baseURL string, timeout time.Duration, opts ...Option) *HTTPStakeholderClient {
	return &HTTPStakeholderClient{p: newHTTPProvider("company-stakeholders", baseURL, timeout, opts...)}
}

func (c *HTTPStakeholderClient) Lookup(ctx context.Context, identifier string) ([]models.Stakeholder, error) {
	var body stakeholdersResponse
	if err := c.p.getJSON(ctx, "/companies/"+url.PathEscape(identifier)+"/stakeholders", &body); err != nil {
		return nil, err
	}
	out := make([]models.Stakeholder, 0, len(body.Stakeholders))
	for _, s := range body.Stakeholders {
		st, err := s.toModel()
		if err != nil {
			return nil, NewProviderError(ErrorBadData, c.p.id, "invalid stakeholder", err)
		}
		out = append(out, st)
	}
	return out, nil
}
