package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"cantata/internal/config"

	"github.com/sirupsen/logrus"
)

const (
	tokenURL = "https://accounts.spotify.com/api/token" //nolint:gosec

	// tokenGrace renews the token this long before it really expires, so
	// a request started near the boundary never carries a dead token.
	tokenGrace = 60 * time.Second

	tokenPollInterval = time.Second
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// TokenBroker owns the provider access token: it fetches via the
// client-credentials flow, renews ahead of expiry and collapses
// concurrent renewal attempts into a single in-flight request.
type TokenBroker struct {
	cfg        *config.Config
	logger     *logrus.Logger
	httpClient *http.Client
	endpoint   string

	mu       sync.Mutex
	token    string
	expires  time.Time
	fetching bool
}

// NewTokenBroker creates a broker for the configured credentials.
func NewTokenBroker(cfg *config.Config, logger *logrus.Logger) *TokenBroker {
	if logger == nil {
		logger = logrus.New()
	}
	return &TokenBroker{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: requestTimeout},
		endpoint:   tokenURL,
	}
}

// Token returns the current token, fetching one synchronously when none
// is live.
func (b *TokenBroker) Token(ctx context.Context) (string, error) {
	b.mu.Lock()
	if b.live() {
		token := b.token
		b.mu.Unlock()
		return token, nil
	}
	if b.fetching {
		b.mu.Unlock()
		return b.WaitForToken(ctx)
	}
	b.fetching = true
	b.mu.Unlock()

	err := b.fetch(ctx)

	b.mu.Lock()
	b.fetching = false
	token := b.token
	b.mu.Unlock()
	if err != nil {
		return "", err
	}
	return token, nil
}

// WaitForToken polls until a live token is available or the context
// ends. Used by callers that must not trigger a second fetch.
func (b *TokenBroker) WaitForToken(ctx context.Context) (string, error) {
	for {
		b.mu.Lock()
		if b.live() {
			token := b.token
			b.mu.Unlock()
			return token, nil
		}
		fetching := b.fetching
		b.mu.Unlock()

		if !fetching {
			return b.Token(ctx)
		}
		select {
		case <-time.After(tokenPollInterval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Invalidate drops the current token so the next request fetches anew.
func (b *TokenBroker) Invalidate() {
	b.mu.Lock()
	b.token = ""
	b.expires = time.Time{}
	b.mu.Unlock()
}

// live reports whether the token is usable, with the renewal grace
// applied. Callers hold b.mu.
func (b *TokenBroker) live() bool {
	return b.token != "" && time.Now().Before(b.expires.Add(-tokenGrace))
}

func (b *TokenBroker) fetch(ctx context.Context) error {
	clientID := b.cfg.Providers.SpotifyClientID
	clientSecret := b.cfg.Providers.SpotifyClientSecret
	if clientID == "" || clientSecret == "" {
		return fmt.Errorf("no provider credentials configured")
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Status: resp.Status, URL: b.endpoint}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("token response carried no access token")
	}

	b.mu.Lock()
	b.token = tr.AccessToken
	b.expires = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	b.mu.Unlock()

	b.logger.WithField("expires_in", tr.ExpiresIn).Debug("Provider token renewed")
	return nil
}
