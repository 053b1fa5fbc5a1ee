// Package auth obtains bearer credentials for the UNGM catalog API via the
// OAuth client-credentials grant and caches them until shortly before expiry.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// expiryMargin is how much validity must remain for a cached token to
	// be reused. Anything closer to expiry triggers a fresh exchange.
	expiryMargin = 60 * time.Second

	defaultExpiresIn = 3600

	exchangeTimeout = 30 * time.Second
)

// Config holds the client-credentials exchange settings.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
}

// Error reports a failed credential exchange. It is fatal for the current
// run and is never retried by the provider itself.
type Error struct {
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("token exchange failed: status %d", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// Provider exchanges and caches a bearer token.
type Provider struct {
	cfg        Config
	logger     *zap.Logger
	HTTPClient *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

func NewProvider(cfg Config, logger *zap.Logger) *Provider {
	return &Provider{
		cfg:    cfg,
		logger: logger,
		HTTPClient: &http.Client{
			Timeout: exchangeTimeout,
		},
		now: time.Now,
	}
}

// Token returns a valid bearer token, performing a client-credentials
// exchange when the cached token has less than expiryMargin of validity left.
func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.expiresAt.After(p.now().Add(expiryMargin)) {
		return p.token, nil
	}

	token, expiresIn, err := p.exchange(ctx)
	if err != nil {
		return "", err
	}

	p.token = token
	p.expiresAt = p.now().Add(time.Duration(expiresIn) * time.Second)

	p.logger.Debug("obtained new bearer token",
		zap.Int("expires_in_seconds", expiresIn),
	)

	return p.token, nil
}

func (p *Provider) exchange(ctx context.Context) (string, int, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	if p.cfg.Scope != "" {
		form.Set("scope", p.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, &Error{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return "", 0, &Error{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, &Error{Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", 0, &Error{Status: resp.StatusCode}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, &Error{Status: resp.StatusCode, Err: err}
	}

	if payload.AccessToken == "" {
		return "", 0, &Error{Status: resp.StatusCode, Err: fmt.Errorf("empty access_token in response")}
	}

	if payload.ExpiresIn <= 0 {
		payload.ExpiresIn = defaultExpiresIn
	}

	return payload.AccessToken, payload.ExpiresIn, nil
}
