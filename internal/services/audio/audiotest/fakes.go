// Package audiotest provides in-memory transports and resolvers for tests.
package audiotest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"alfred/internal/services/audio"
)

// Source is a fixed stream location.
type Source string

func (s Source) Location(context.Context) (string, error) {
	return string(s), nil
}

// Track returns a resolved track with the given title and length.
func Track(title string, d time.Duration) audio.Track {
	return audio.Track{
		Title:    title,
		Duration: d,
		URL:      "https://www.youtube.com/watch?v=" + title,
		Source:   Source("stream://" + title),
	}
}

// Resolver answers queries from a fixed table. Unknown queries fail with NoMatch.
type Resolver struct {
	mu      sync.Mutex
	results map[string]*audio.Resolution
	errs    map[string]error
	calls   int

	// Delay is waited before answering, honoring cancellation.
	Delay time.Duration
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		results: make(map[string]*audio.Resolution),
		errs:    make(map[string]error),
	}
}

// Add makes query resolve to tracks.
func (r *Resolver) Add(query string, tracks ...audio.Track) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[query] = &audio.Resolution{Tracks: tracks}
	return r
}

// AddResolution makes query resolve to res.
func (r *Resolver) AddResolution(query string, res *audio.Resolution) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[query] = res
	return r
}

// Fail makes query return err.
func (r *Resolver) Fail(query string, err error) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[query] = err
	return r
}

// Calls returns how many times Resolve ran.
func (r *Resolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *Resolver) Resolve(ctx context.Context, query string) (*audio.Resolution, error) {
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return nil, audio.NewResolveError(audio.NetworkFailure, query, ctx.Err())
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++

	if err, ok := r.errs[query]; ok {
		return nil, err
	}
	res, ok := r.results[query]
	if !ok {
		return nil, audio.NewResolveError(audio.NoMatch, query, nil)
	}
	out := &audio.Resolution{
		Tracks:   append([]audio.Track(nil), res.Tracks...),
		Failures: append([]*audio.ResolveError(nil), res.Failures...),
	}
	return out, nil
}

// Transport hands out fake connections.
type Transport struct {
	mu          sync.Mutex
	conns       map[string]*Connection
	connects    int
	disconnects int

	ConnectErr error
	// DisconnectErr is returned after the connection has been dropped, the
	// way discordgo forgets a voice connection whose disconnect failed.
	DisconnectErr error
	// PlayErr, when set, is installed on every new connection.
	PlayErr func(audio.Track) error
}

// NewTransport returns a transport that always connects.
func NewTransport() *Transport {
	return &Transport{conns: make(map[string]*Connection)}
}

func (t *Transport) Connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.connects++
	if t.ConnectErr != nil {
		return nil, t.ConnectErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, exists := t.conns[guildID]; exists {
		return nil, fmt.Errorf("guild %s already has a connection", guildID)
	}

	conn := &Connection{
		channelID: channelID,
		events:    make(chan audio.TrackEvent, 64),
		playErr:   t.PlayErr,
	}
	t.conns[guildID] = conn
	return conn, nil
}

func (t *Transport) Disconnect(ctx context.Context, guildID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, ok := t.conns[guildID]
	if !ok {
		return nil
	}
	delete(t.conns, guildID)
	conn.close()
	if t.DisconnectErr != nil {
		return t.DisconnectErr
	}
	t.disconnects++
	return nil
}

// Conn returns the live connection of guildID, or nil.
func (t *Transport) Conn(guildID string) *Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[guildID]
}

// Connects returns the number of Connect calls.
func (t *Transport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

// Disconnects returns the number of successful Disconnect calls.
func (t *Transport) Disconnects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnects
}

// Connection records what it was asked to play.
type Connection struct {
	mu        sync.Mutex
	channelID string
	events    chan audio.TrackEvent
	playErr   func(audio.Track) error
	played    []audio.Track
	current   *audio.Track
	stops     int
	closed    bool
}

func (c *Connection) ChannelID() string {
	return c.channelID
}

func (c *Connection) Play(ctx context.Context, t audio.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playErr != nil {
		if err := c.playErr(t); err != nil {
			return err
		}
	}
	if _, err := t.Source.Location(ctx); err != nil {
		return err
	}
	c.played = append(c.played, t)
	c.current = &t
	return nil
}

// SetPlayErr replaces the hook that decides whether Play fails.
func (c *Connection) SetPlayErr(fn func(audio.Track) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playErr = fn
}

// Stop emits an ended event for the interrupted track, like a real stream does.
func (c *Connection) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil
	}
	c.stops++
	c.emitLocked(audio.TrackEvent{EntryID: c.current.ID, Kind: audio.TrackEnded})
	c.current = nil
	return nil
}

func (c *Connection) Events() <-chan audio.TrackEvent {
	return c.events
}

// Finish ends the current track naturally.
func (c *Connection) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return
	}
	c.emitLocked(audio.TrackEvent{EntryID: c.current.ID, Kind: audio.TrackEnded})
	c.current = nil
}

// Fail reports a stream error for the current track without ending it.
func (c *Connection) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return
	}
	c.emitLocked(audio.TrackEvent{EntryID: c.current.ID, Kind: audio.TrackFailed, Err: err})
}

// Played returns every track started on the connection, in order.
func (c *Connection) Played() []audio.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audio.Track(nil), c.played...)
}

// Current returns the playing track.
func (c *Connection) Current() (audio.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return audio.Track{}, false
	}
	return *c.current, true
}

// Stops returns how many times a playing track was stopped.
func (c *Connection) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

func (c *Connection) emitLocked(ev audio.TrackEvent) {
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.current = nil
		close(c.events)
	}
}
