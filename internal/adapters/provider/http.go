// Package provider holds decision.Provider implementations: a remote HTTP
// agent endpoint with bearer credentials and an in-process simulation.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/okian/gauntlet/internal/domain/decision"
	"github.com/okian/gauntlet/pkg/logger"
)

const defaultHTTPTimeout = 10 * time.Second

// HTTPProvider asks a remote agent for each decision. The per-call deadline
// comes from the caller's context; the client timeout is only a backstop.
type HTTPProvider struct {
	client     *http.Client
	url        string
	refreshURL string

	mu    sync.RWMutex
	token string

	log logger.Logger
}

var (
	_ decision.Provider  = (*HTTPProvider)(nil)
	_ decision.Refresher = (*HTTPProvider)(nil)
)

// NewHTTPProvider creates a provider posting to url.
func NewHTTPProvider(url string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		client: &http.Client{Timeout: defaultHTTPTimeout},
		url:    url,
		log:    logger.Get().Named("provider"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Decide implements decision.Provider.
func (p *HTTPProvider) Decide(ctx context.Context, req decision.Request) (decision.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return decision.Response{}, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return decision.Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token := p.credential(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return decision.Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return decision.Response{}, fmt.Errorf("status %d: %w", resp.StatusCode, ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return decision.Response{}, fmt.Errorf("status %d: %w", resp.StatusCode, ErrUpstream)
	}

	var out decision.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decision.Response{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

type tokenResponse struct {
	Token string `json:"token"`
}

// RefreshCredential implements decision.Refresher. It exchanges the current
// credential for a new one at the refresh endpoint.
func (p *HTTPProvider) RefreshCredential(ctx context.Context) error {
	if p.refreshURL == "" {
		return ErrNoRefresh
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.refreshURL, nil)
	if err != nil {
		return fmt.Errorf("create refresh request: %w", err)
	}
	if token := p.credential(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("refresh status %d: %w", resp.StatusCode, ErrUnauthorized)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if tr.Token == "" {
		return fmt.Errorf("empty token: %w", ErrUnauthorized)
	}
	p.mu.Lock()
	p.token = tr.Token
	p.mu.Unlock()
	p.log.Info(ctx, "provider credential refreshed")
	return nil
}

func (p *HTTPProvider) credential() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}
