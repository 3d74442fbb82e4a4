package audio

import (
	"sync"
	"time"
)

// HistoryEntry is a track that started playing.
type HistoryEntry struct {
	Track    Track
	PlayedAt time.Time
	GuildID  string
}

// History keeps the most recently started tracks per guild, newest first.
// It lives in memory only.
type History struct {
	mu         sync.RWMutex
	entries    map[string][]HistoryEntry
	totals     map[string]int
	maxEntries int
	now        func() time.Time
}

// NewHistory creates a history keeping at most maxEntries per guild.
func NewHistory(maxEntries int) *History {
	if maxEntries <= 0 {
		maxEntries = 25
	}
	return &History{
		entries:    make(map[string][]HistoryEntry),
		totals:     make(map[string]int),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Add records t as started in guildID.
func (h *History) Add(guildID string, t Track) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	t.Source = nil
	entry := HistoryEntry{Track: t, PlayedAt: h.now(), GuildID: guildID}

	list := append([]HistoryEntry{entry}, h.entries[guildID]...)
	if len(list) > h.maxEntries {
		list = list[:h.maxEntries]
	}
	h.entries[guildID] = list
	h.totals[guildID]++
}

// Recent returns up to limit entries for guildID, newest first. A limit of
// zero or less returns everything kept.
func (h *History) Recent(guildID string, limit int) []HistoryEntry {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := h.entries[guildID]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	out := make([]HistoryEntry, len(list))
	copy(out, list)
	return out
}

// TotalPlayed counts every track started in guildID, including ones no longer kept.
func (h *History) TotalPlayed(guildID string) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totals[guildID]
}

// Clear forgets guildID.
func (h *History) Clear(guildID string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, guildID)
	delete(h.totals, guildID)
}
