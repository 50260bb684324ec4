package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cantata/internal/config"
	"cantata/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestCanonicalIDsFoldCase(t *testing.T) {
	a := AlbumExternalID([]string{"The Beatles"}, "Abbey Road")
	b := AlbumExternalID([]string{" the beatles "}, "ABBEY ROAD")
	assert.Equal(t, a, b, "whitespace and case never change the id")

	c := AlbumExternalID([]string{"The Beatles"}, "Let It Be")
	assert.NotEqual(t, a, c)

	// The separator keeps field boundaries from colliding.
	assert.NotEqual(t,
		TrackExternalID([]string{"ab"}, "c", "d"),
		TrackExternalID([]string{"a"}, "bc", "d"))
}

func TestCanonicalizeFillsTrackArtists(t *testing.T) {
	payload := &AlbumPayload{
		Name:    "Kind of Blue",
		Artists: []string{"Miles Davis"},
		Tracks: []TrackPayload{
			{Name: "So What"},
			{Name: "Freddie Freeloader", Artists: []string{"Miles Davis", "Wynton Kelly"}},
		},
	}
	payload.Canonicalize()

	assert.Equal(t, AlbumExternalID([]string{"Miles Davis"}, "Kind of Blue"), payload.ExternalID)
	assert.Equal(t, []string{"Miles Davis"}, payload.Tracks[0].Artists, "album artists fill in missing track artists")
	assert.Equal(t,
		TrackExternalID([]string{"Miles Davis"}, "Kind of Blue", "So What"),
		payload.Tracks[0].ExternalID)
	assert.Equal(t,
		TrackExternalID([]string{"Miles Davis", "Wynton Kelly"}, "Kind of Blue", "Freddie Freeloader"),
		payload.Tracks[1].ExternalID)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "payload")
	}))
	defer server.Close()

	client := NewClient(quietLogger())
	data, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.EqualValues(t, 2, calls.Load())
}

func TestClientDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(quietLogger())
	_, err := client.Get(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestClientHonorsRateLimitHeaders(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprint(time.Now().Add(time.Hour).Unix()))
		fmt.Fprint(w, "first")
	}))
	defer server.Close()

	client := NewClient(quietLogger())
	_, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)

	// The window is exhausted; a second request must wait past our
	// deadline instead of firing.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Get(ctx, server.URL, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 1, calls.Load())
}

func TestTokenBrokerFetchesOnce(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		fmt.Fprint(w, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Providers.SpotifyClientID = "id"
	cfg.Providers.SpotifyClientSecret = "secret"
	broker := NewTokenBroker(cfg, quietLogger())
	broker.endpoint = server.URL

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := broker.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok-1", token)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, fetches.Load(), int32(2), "concurrent callers share in-flight fetches")

	broker.Invalidate()
	token, err := broker.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Greater(t, fetches.Load(), int32(1), "invalidation forces a refetch")
}

func TestTokenBrokerRequiresCredentials(t *testing.T) {
	broker := NewTokenBroker(config.DefaultConfig(), quietLogger())
	_, err := broker.Token(context.Background())
	assert.Error(t, err)
}

func TestURICacheRoundTrip(t *testing.T) {
	cache := NewURICache(t.TempDir())

	_, ok := cache.Get("web://abc")
	assert.False(t, ok)

	cache.Set("web://abc", "https://cdn.example.test/stream/1")
	uri, ok := cache.Get("web://abc")
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.test/stream/1", uri)

	cache.Delete("web://abc")
	_, ok = cache.Get("web://abc")
	assert.False(t, ok)
}

func TestURICacheSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	NewURICache(dir).Set("web://abc", "https://cdn.example.test/stream/1")

	uri, ok := NewURICache(dir).Get("web://abc")
	require.True(t, ok, "fresh disk entries are reused by a new cache")
	assert.Equal(t, "https://cdn.example.test/stream/1", uri)
}

func TestResolverCachesLookups(t *testing.T) {
	cache := NewURICache(t.TempDir())
	lookups := 0
	resolve := Resolver(cache, func(track *models.Track) (string, error) {
		lookups++
		return "https://cdn.example.test/stream/9", nil
	})

	track := &models.Track{ID: 1, URI: "web://xyz", Storage: models.StorageEphemeral}
	uri, err := resolve(track)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.test/stream/9", uri)

	_, err = resolve(track)
	require.NoError(t, err)
	assert.Equal(t, 1, lookups, "second resolution comes from the cache")
}

type fakeArtistNamer map[int]string

func (f fakeArtistNamer) ArtistNames(ids []int) []string {
	var names []string
	for _, id := range ids {
		if name, ok := f[id]; ok {
			names = append(names, name)
		}
	}
	return names
}

func TestStreamLookupResolvesPreview(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		fmt.Fprint(w, `{"data":[{"preview":"https://cdn.example.test/preview.mp3"}]}`)
	}))
	defer srv.Close()

	d := NewDeezer(config.DefaultConfig(), NewClient(quietLogger()), quietLogger())
	d.endpoint = srv.URL

	lookup := StreamLookup(d, fakeArtistNamer{4: "Miles Davis"})
	uri, err := lookup(&models.Track{ID: 1, Name: "So What", ArtistIDs: []int{4}, URI: "web://abc"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.test/preview.mp3", uri)
	assert.Contains(t, gotQuery, "Miles Davis")
	assert.Contains(t, gotQuery, "So What")
}

func TestStreamLookupNoMatchFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	d := NewDeezer(config.DefaultConfig(), NewClient(quietLogger()), quietLogger())
	d.endpoint = srv.URL

	lookup := StreamLookup(d, fakeArtistNamer{})
	_, err := lookup(&models.Track{ID: 1, Name: "Unknown", URI: "web://abc"})
	require.Error(t, err)
}

func TestResolverPropagatesLookupErrors(t *testing.T) {
	cache := NewURICache(t.TempDir())
	lookupErr := errors.New("provider down")
	resolve := Resolver(cache, func(track *models.Track) (string, error) {
		return "", lookupErr
	})

	_, err := resolve(&models.Track{ID: 1, URI: "web://xyz"})
	assert.ErrorIs(t, err, lookupErr)
}
