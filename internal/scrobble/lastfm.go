package scrobble

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"cantata/internal/config"

	"github.com/sirupsen/logrus"
)

const lastfmAPI = "https://ws.audioscrobbler.com/2.0/"

// LastFM submits listens through the audioscrobbler API. Every write
// call carries an api_sig; loves are never sent unsigned.
type LastFM struct {
	cfg        *config.Config
	logger     *logrus.Logger
	httpClient *http.Client

	mu         sync.Mutex
	sessionKey string
}

// NewLastFM creates the provider. The session key, obtained out of band
// through the auth flow, is attached with SetSessionKey.
func NewLastFM(cfg *config.Config, logger *logrus.Logger) *LastFM {
	if logger == nil {
		logger = logrus.New()
	}
	return &LastFM{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: submitTimeout},
	}
}

func (l *LastFM) Name() string { return "lastfm" }

// SetSessionKey attaches the authenticated session.
func (l *LastFM) SetSessionKey(key string) {
	l.mu.Lock()
	l.sessionKey = key
	l.mu.Unlock()
}

// Configured reports whether both API credentials and a session are
// present.
func (l *LastFM) Configured() bool {
	if !l.cfg.ProviderAllowed("lastfm") {
		return false
	}
	if l.cfg.Providers.LastFMAPIKey == "" || l.cfg.Providers.LastFMSecret == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionKey != ""
}

// Scrobble submits one finished listen.
func (l *LastFM) Scrobble(ctx context.Context, listen Listen) error {
	params := map[string]string{
		"method":    "track.scrobble",
		"artist":    strings.Join(listen.Artists, ", "),
		"track":     listen.TrackName,
		"timestamp": strconv.FormatInt(listen.Timestamp, 10),
	}
	if listen.AlbumName != "" {
		params["album"] = listen.AlbumName
	}
	if listen.DurationMS > 0 {
		params["duration"] = strconv.Itoa(listen.DurationMS / 1000)
	}
	return l.post(ctx, params)
}

// NowPlaying announces the starting track.
func (l *LastFM) NowPlaying(ctx context.Context, listen Listen) error {
	params := map[string]string{
		"method": "track.updateNowPlaying",
		"artist": strings.Join(listen.Artists, ", "),
		"track":  listen.TrackName,
	}
	if listen.AlbumName != "" {
		params["album"] = listen.AlbumName
	}
	return l.post(ctx, params)
}

// Love marks the track loved or unloved.
func (l *LastFM) Love(ctx context.Context, listen Listen, loved bool) error {
	method := "track.love"
	if !loved {
		method = "track.unlove"
	}
	return l.post(ctx, map[string]string{
		"method": method,
		"artist": strings.Join(listen.Artists, ", "),
		"track":  listen.TrackName,
	})
}

// post signs and submits a write call. All write methods require the
// session key and the api_sig.
func (l *LastFM) post(ctx context.Context, params map[string]string) error {
	l.mu.Lock()
	sessionKey := l.sessionKey
	l.mu.Unlock()
	if sessionKey == "" {
		return ErrNotAuthenticated
	}

	params["api_key"] = l.cfg.Providers.LastFMAPIKey
	params["sk"] = sessionKey
	params["api_sig"] = l.sign(params)
	params["format"] = "json"

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lastfmAPI, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("lastfm returned %s", resp.Status)
	}

	var apiResp struct {
		Error   int    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err == nil && apiResp.Error != 0 {
		if apiResp.Error == 9 { // invalid session key
			l.SetSessionKey("")
			return ErrNotAuthenticated
		}
		return fmt.Errorf("lastfm error %d: %s", apiResp.Error, apiResp.Message)
	}
	return nil
}

// sign computes the api_sig: parameters sorted by name, concatenated as
// name+value, secret appended, md5 hex digested.
func (l *LastFM) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}
	b.WriteString(l.cfg.Providers.LastFMSecret)

	sum := md5.Sum([]byte(b.String())) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// AuthSessionKey exchanges an authorized request token for a session
// key, completing the desktop auth flow.
func (l *LastFM) AuthSessionKey(ctx context.Context, token string) (string, error) {
	params := map[string]string{
		"method":  "auth.getSession",
		"api_key": l.cfg.Providers.LastFMAPIKey,
		"token":   token,
	}
	params["api_sig"] = l.sign(params)

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	query.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lastfmAPI+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var sessionResp struct {
		Session struct {
			Key string `json:"key"`
		} `json:"session"`
		Error   int    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sessionResp); err != nil {
		return "", err
	}
	if sessionResp.Error != 0 {
		return "", fmt.Errorf("lastfm error %d: %s", sessionResp.Error, sessionResp.Message)
	}
	l.SetSessionKey(sessionResp.Session.Key)
	return sessionResp.Session.Key, nil
}
