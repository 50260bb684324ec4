package models

// StorageType classifies the origin and persistence of a catalog record.
// Exactly one primary category is active at a time; transitions between
// Saved, Ephemeral and Collection are explicit catalog operations.
type StorageType int

const (
	StorageCollection StorageType = 1 << iota
	StorageSaved
	StorageExternal
	StorageEphemeral
	StorageSpotifyNewReleases
	StorageSpotifySimilars
)

// StorageNone is the zero mask.
const StorageNone StorageType = 0

// IsWeb reports whether the record is neither part of the local collection
// nor an externally scanned file.
func (s StorageType) IsWeb() bool {
	return s&(StorageCollection|StorageExternal) == 0
}

// Has reports whether every flag in mask is set.
func (s StorageType) Has(mask StorageType) bool {
	return s&mask == mask
}

// String returns a short debug name for the primary category.
func (s StorageType) String() string {
	switch {
	case s.Has(StorageCollection):
		return "collection"
	case s.Has(StorageExternal):
		return "external"
	case s.Has(StorageSaved):
		return "saved"
	case s.Has(StorageEphemeral):
		return "ephemeral"
	case s.Has(StorageSpotifyNewReleases):
		return "spotify-new-releases"
	case s.Has(StorageSpotifySimilars):
		return "spotify-similars"
	}
	return "none"
}

// RepeatMode selects what happens when playback reaches the end of the
// albums list.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatAll
	RepeatTrack
	RepeatAutoSimilar
	RepeatAutoRandom
)

// PlaylistRadios is the sentinel playlist id recorded in the persisted
// playlist stack when the player was in radio mode.
const PlaylistRadios = -8

// Update kinds carried by album-updated and artist-updated signals.
type UpdateKind int

const (
	UpdateAdded UpdateKind = iota
	UpdateRemoved
	UpdateModified
)
