package history

import (
	"path/filepath"

	"github.com/dyluth/lodge/pkg/datasheet"
)

// Criteria selects revisions. All filters are ANDed together; zero values match everything.
type Criteria struct {
	SinceTimestampMs int64
	UntilTimestampMs int64
	ActorGlob        string                   // Glob on created_by
	Status           datasheet.DocumentStatus // Document status at mint time
	RestoresOnly     bool
}

// Matches reports whether rev passes every filter.
func (c *Criteria) Matches(rev *datasheet.Revision) bool {
	if c == nil {
		return true
	}
	if c.SinceTimestampMs > 0 && rev.CreatedAtMs < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && rev.CreatedAtMs > c.UntilTimestampMs {
		return false
	}
	if c.ActorGlob != "" {
		matched, err := filepath.Match(c.ActorGlob, rev.CreatedBy)
		if err != nil || !matched {
			return false
		}
	}
	if c.Status != "" && rev.Status != c.Status {
		return false
	}
	if c.RestoresOnly && rev.RestoredFromID == "" {
		return false
	}
	return true
}

// HasFilters reports whether any filter is active.
func (c *Criteria) HasFilters() bool {
	return c != nil && (c.SinceTimestampMs > 0 ||
		c.UntilTimestampMs > 0 ||
		c.ActorGlob != "" ||
		c.Status != "" ||
		c.RestoresOnly)
}
