package audio

import (
	"context"
	"fmt"
	"time"
)

// Source is the provider-owned handle a track plays from. The stream location
// is resolved lazily since provider URLs expire.
type Source interface {
	Location(ctx context.Context) (string, error)
}

// Track is one playable entry.
type Track struct {
	// ID is unique per queue entry and assigned on enqueue.
	ID          string
	Title       string
	Artist      string
	Duration    time.Duration
	URL         string
	RequestedBy string
	Source      Source
}

// HasDuration reports whether the provider supplied a length.
func (t Track) HasDuration() bool {
	return t.Duration > 0
}

// DisplayTitle falls back to the page URL when the title is absent.
func (t Track) DisplayTitle() string {
	switch {
	case t.Title != "" && t.Artist != "":
		return t.Title + " - " + t.Artist
	case t.Title != "":
		return t.Title
	default:
		return t.URL
	}
}

// FormatDuration renders d as m:ss or h:mm:ss.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
