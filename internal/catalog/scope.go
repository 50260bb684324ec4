package catalog

import (
	"fmt"
	"strings"

	"cantata/pkg/models"
)

const storageEphemeral = models.StorageEphemeral

// Scope narrows an id query to artists, genres and storage types, with an
// optional ordering hint ("name", "year", "popularity" or "recent").
type Scope struct {
	ArtistIDs []int
	GenreIDs  []int
	Storage   models.StorageType // bitmask; zero matches everything
	OrderBy   string
}

// orderClause maps the hint onto a concrete ORDER BY fragment for the
// given table alias.
func (s Scope) orderClause(alias string) string {
	switch s.OrderBy {
	case "year":
		return fmt.Sprintf("ORDER BY %s.year, %s.name COLLATE NOCASE", alias, alias)
	case "popularity":
		return fmt.Sprintf("ORDER BY %s.popularity DESC", alias)
	case "recent":
		return fmt.Sprintf("ORDER BY %s.mtime DESC", alias)
	default:
		return fmt.Sprintf("ORDER BY %s.name COLLATE NOCASE", alias)
	}
}

// placeholders renders "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// intArgs converts ids into query arguments.
func intArgs(ids []int) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
