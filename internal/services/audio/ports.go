package audio

import "context"

// Resolution is the outcome of resolving one query. Tracks and Failures are
// both in source order; a playlist may produce both.
type Resolution struct {
	Tracks   []Track
	Failures []*ResolveError
}

// Resolver turns a user query into playable tracks.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*Resolution, error)
}

// Transport opens and closes voice connections.
type Transport interface {
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
	Disconnect(ctx context.Context, guildID string) error
}

// Connection is a live voice connection able to play one track at a time.
type Connection interface {
	ChannelID() string
	// Play starts t, replacing whatever is playing.
	Play(ctx context.Context, t Track) error
	// Stop halts the current track. It is a no-op when idle.
	Stop() error
	// Events is closed once the connection is disconnected.
	Events() <-chan TrackEvent
}

// Listener hears about playback changes nobody asked for directly.
type Listener interface {
	// TracksDropped is called, without the session lock, when tracks that
	// reached the head after a natural end could not start.
	TracksDropped(guildID string, dropped []*StartError)
}

// EventKind distinguishes playback notifications.
type EventKind int

const (
	TrackEnded EventKind = iota
	TrackFailed
)

func (k EventKind) String() string {
	switch k {
	case TrackEnded:
		return "ended"
	case TrackFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TrackEvent is emitted by a Connection for the entry identified by EntryID.
type TrackEvent struct {
	EntryID string
	Kind    EventKind
	Err     error
}
