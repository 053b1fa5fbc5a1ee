// Package ungm implements the client for the UNGM-style procurement notice
// catalog: paginated search of recently updated notices and single-notice
// detail fetch, bearer-token authenticated with bounded retry.
package ungm

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	noticeSearchPath = "/notice/search"
	noticeGetPath    = "/notice"
	noticeByKeyPath  = "/notice/key"

	userAgent = "tenderscout (github.com/tenderscout/tenderscout)"

	requestTimeout = 60 * time.Second
)

// TokenSource supplies a valid bearer token for catalog requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Client struct {
	tokens     TokenSource
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string

	// retry knobs, overridable in tests
	retryAttempts int
	retryBase     time.Duration
	retryCap      time.Duration
}

func New(apiURL string, tokens TokenSource, logger *zap.Logger) *Client {
	return &Client{
		tokens: tokens,
		logger: logger,
		APIURL: apiURL,
		HTTPClient: &http.Client{
			Timeout: requestTimeout,
		},
		UserAgent:     userAgent,
		retryAttempts: retryAttempts,
		retryBase:     retryBaseDelay,
		retryCap:      retryMaxDelay,
	}
}
