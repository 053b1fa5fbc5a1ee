package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*Provider, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider := NewProvider(Config{
		TokenURL:     server.URL,
		ClientID:     "client",
		ClientSecret: "secret",
	}, zap.NewNop())

	return provider, server
}

func TestTokenCachesUntilExpiryMargin(t *testing.T) {
	exchanges := 0
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		exchanges++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parsing form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Fatalf("unexpected grant_type: %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"expires_in":   3600,
		})
	})

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	provider.now = func() time.Time { return now }

	token, err := provider.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "tok-1" {
		t.Fatalf("unexpected token: %q", token)
	}

	// Still plenty of validity: no new exchange.
	now = now.Add(30 * time.Minute)
	if _, err := provider.Token(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exchanges != 1 {
		t.Fatalf("expected 1 exchange, got %d", exchanges)
	}

	// Inside the 60s margin: token must be refreshed.
	now = now.Add(29*time.Minute + 30*time.Second)
	if _, err := provider.Token(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exchanges != 2 {
		t.Fatalf("expected refresh inside expiry margin, got %d exchanges", exchanges)
	}
}

func TestTokenDefaultsExpiresIn(t *testing.T) {
	exchanges := 0
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		exchanges++
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok"})
	})

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	provider.now = func() time.Time { return now }

	if _, err := provider.Token(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Default expiry is one hour; half an hour later the token is reused.
	now = now.Add(30 * time.Minute)
	if _, err := provider.Token(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exchanges != 1 {
		t.Fatalf("expected cached token with default expiry, got %d exchanges", exchanges)
	}
}

func TestTokenExchangeFailure(t *testing.T) {
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})

	_, err := provider.Token(context.Background())
	if err == nil {
		t.Fatalf("expected error for non-success status")
	}

	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *auth.Error, got %T", err)
	}
	if authErr.Status != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", authErr.Status)
	}
}

func TestTokenEmptyAccessToken(t *testing.T) {
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"expires_in": 600})
	})

	if _, err := provider.Token(context.Background()); err == nil {
		t.Fatalf("expected error for empty access_token")
	}
}
