package web

import (
	"context"
	"strings"

	"cantata/internal/catalog"
	"cantata/internal/config"
	"cantata/pkg/models"

	"github.com/sirupsen/logrus"
)

// Similars aggregates similar-artist sources: Spotify first, Deezer
// second, and a local shared-genre walk when no provider answers. It
// satisfies the player's similars contract.
type Similars struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	spotify *Spotify
	deezer  *Deezer
	saver   *Saver
	logger  *logrus.Logger
}

// NewSimilars wires the aggregator. Spotify and Deezer may be nil; the
// local fallback always works.
func NewSimilars(cfg *config.Config, cat *catalog.Catalog, spotify *Spotify, deezer *Deezer, saver *Saver, logger *logrus.Logger) *Similars {
	if logger == nil {
		logger = logrus.New()
	}
	return &Similars{
		cfg:     cfg,
		catalog: cat,
		spotify: spotify,
		deezer:  deezer,
		saver:   saver,
		logger:  logger,
	}
}

// SimilarArtists returns artist names similar to the given catalog
// artists, best match first and deduplicated.
func (s *Similars) SimilarArtists(ctx context.Context, artistIDs []int) ([]string, error) {
	seeds := s.catalog.ArtistNames(artistIDs)
	if len(seeds) == 0 {
		return nil, nil
	}

	var names []string
	for _, seed := range seeds {
		found := s.providerSimilars(ctx, seed)
		if len(found) == 0 {
			continue
		}
		names = append(names, found...)
	}
	if len(names) == 0 {
		names = s.LocalSimilars(artistIDs)
	}
	return dedupeNames(names, seeds), nil
}

// providerSimilars asks Spotify then Deezer for one seed name.
func (s *Similars) providerSimilars(ctx context.Context, seed string) []string {
	if s.spotify != nil {
		if id, err := s.spotify.ArtistID(ctx, seed); err == nil && id != "" {
			if names, rerr := s.spotify.RelatedArtists(ctx, id); rerr == nil && len(names) > 0 {
				return names
			}
		}
	}
	if s.deezer != nil {
		if id, err := s.deezer.ArtistID(ctx, seed); err == nil && id != 0 {
			if names, rerr := s.deezer.SimilarArtists(ctx, id); rerr == nil && len(names) > 0 {
				return names
			}
		}
	}
	return nil
}

// LocalSimilars walks the catalog for artists sharing a genre with the
// given ones. It never touches the network, so it also serves as the
// offline path.
func (s *Similars) LocalSimilars(artistIDs []int) []string {
	genreSet := make(map[int]bool)
	for _, id := range artistIDs {
		genreIDs, err := s.catalog.ArtistGenreIDs(id)
		if err != nil {
			continue
		}
		for _, gid := range genreIDs {
			genreSet[gid] = true
		}
	}
	if len(genreSet) == 0 {
		return nil
	}
	genreIDs := make([]int, 0, len(genreSet))
	for gid := range genreSet {
		genreIDs = append(genreIDs, gid)
	}

	ids, err := s.catalog.ArtistIDs(catalog.Scope{GenreIDs: genreIDs})
	if err != nil {
		return nil
	}
	seedSet := make(map[int]bool, len(artistIDs))
	for _, id := range artistIDs {
		seedSet[id] = true
	}
	var names []string
	for _, id := range ids {
		if seedSet[id] {
			continue
		}
		if name, nerr := s.catalog.ArtistName(id); nerr == nil {
			names = append(names, name)
		}
	}
	return names
}

// TopTracks fetches an artist's top tracks, persists them as ephemeral
// catalog rows and streams the materialized tracks to the callback.
func (s *Similars) TopTracks(ctx context.Context, artist string, onTrack func(*models.Track)) error {
	if s.spotify == nil || s.saver == nil {
		return nil
	}
	spotifyID, err := s.spotify.ArtistID(ctx, artist)
	if err != nil {
		return err
	}
	if spotifyID == "" {
		return nil
	}
	payloads, err := s.spotify.TopTracks(ctx, spotifyID)
	if err != nil {
		return err
	}
	for _, payload := range payloads {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		album, perr := s.saver.Persist(payload, models.StorageEphemeral)
		if perr != nil {
			s.logger.WithError(perr).WithField("album", payload.Name).Warn("Failed to persist top tracks")
			continue
		}
		for _, t := range album.Tracks() {
			onTrack(t)
		}
	}
	return nil
}

// dedupeNames removes duplicates and any of the seed names, case
// insensitively, preserving order.
func dedupeNames(names, seeds []string) []string {
	seen := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		seen[strings.ToLower(s)] = true
	}
	var out []string
	for _, n := range names {
		key := strings.ToLower(n)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}
