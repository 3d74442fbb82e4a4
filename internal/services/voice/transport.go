package voice

import (
	"context"
	"fmt"
	"io"
	"sync"

	"alfred/internal/services/audio"
	"alfred/pkg/logger"

	"github.com/bwmarrin/discordgo"
	"github.com/jonas747/dca"
)

// Transport joins Discord voice channels and streams tracks through dca.
type Transport struct {
	options *dca.EncodeOptions
	log     *logger.Logger

	// join blocks until the voice connection is ready or discordgo gives up.
	join func(guildID, channelID string) (*discordgo.VoiceConnection, error)
	drop func(vc *discordgo.VoiceConnection) error

	mu      sync.Mutex
	conns   map[string]*Connection
	joining map[string]bool
}

type joinResult struct {
	vc  *discordgo.VoiceConnection
	err error
}

// NewTransport creates a transport on an open gateway session.
func NewTransport(session *discordgo.Session, options *dca.EncodeOptions, log *logger.Logger) *Transport {
	return &Transport{
		options: options,
		log:     log.WithComponent("voice"),
		join: func(guildID, channelID string) (*discordgo.VoiceConnection, error) {
			return session.ChannelVoiceJoin(guildID, channelID, false, true)
		},
		drop: func(vc *discordgo.VoiceConnection) error {
			return vc.Disconnect()
		},
		conns:   make(map[string]*Connection),
		joining: make(map[string]bool),
	}
}

// Connect joins channelID and returns once the voice connection is ready.
// It gives up when ctx ends, even though discordgo keeps waiting for up to
// ten seconds; a connection that turns up after that is left again.
func (t *Transport) Connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	t.mu.Lock()
	if t.joining[guildID] {
		t.mu.Unlock()
		return nil, fmt.Errorf("an earlier join of guild %s is still in progress", guildID)
	}
	t.joining[guildID] = true
	t.mu.Unlock()

	done := make(chan joinResult, 1)
	go func() {
		vc, err := t.join(guildID, channelID)
		done <- joinResult{vc: vc, err: err}
	}()

	var res joinResult
	select {
	case res = <-done:
		t.joinSettled(guildID)
	case <-ctx.Done():
		go t.abandonJoin(guildID, done)
		return nil, fmt.Errorf("voice connection not ready: %w", ctx.Err())
	}
	if res.err != nil {
		return nil, fmt.Errorf("failed to join voice channel: %w", res.err)
	}

	vc := res.vc
	conn := newConnection(vc, channelID, t.options, t.log.WithGuild(guildID), func() error { return t.drop(vc) })

	t.mu.Lock()
	t.conns[guildID] = conn
	t.mu.Unlock()

	t.log.LogDiscordEvent("voice_connected", logger.Fields{
		"guild_id":   guildID,
		"channel_id": channelID,
	})
	return conn, nil
}

// Disconnect stops playback and leaves the voice channel of guildID. The
// connection is released even when the error return is non-nil, since
// discordgo forgets a voice connection whose disconnect failed. A guild with
// no connection is already disconnected.
func (t *Transport) Disconnect(ctx context.Context, guildID string) error {
	t.mu.Lock()
	conn, ok := t.conns[guildID]
	delete(t.conns, guildID)
	t.mu.Unlock()

	if !ok {
		return nil
	}
	return conn.close(ctx)
}

func (t *Transport) joinSettled(guildID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.joining, guildID)
}

// abandonJoin waits for a join whose caller gave up and leaves the channel
// if it connected after all.
func (t *Transport) abandonJoin(guildID string, done <-chan joinResult) {
	defer t.joinSettled(guildID)

	res := <-done
	if res.err != nil {
		return
	}
	if err := t.drop(res.vc); err != nil {
		t.log.Warn("Failed to leave voice channel joined after timeout", logger.Fields{
			"guild_id": guildID,
			"error":    err.Error(),
		})
	}
}

// Connection streams one track at a time into a voice connection.
type Connection struct {
	vc        *discordgo.VoiceConnection
	channelID string
	options   *dca.EncodeOptions
	log       *logger.Logger
	leave     func() error

	mu      sync.Mutex
	encoder *dca.EncodeSession

	events    chan audio.TrackEvent
	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newConnection(vc *discordgo.VoiceConnection, channelID string, options *dca.EncodeOptions, log *logger.Logger, leave func() error) *Connection {
	return &Connection{
		vc:        vc,
		channelID: channelID,
		options:   options,
		log:       log,
		leave:     leave,
		events:    make(chan audio.TrackEvent, 8),
		closing:   make(chan struct{}),
	}
}

func (c *Connection) ChannelID() string {
	return c.channelID
}

func (c *Connection) Events() <-chan audio.TrackEvent {
	return c.events
}

// Play resolves the stream location of t and starts encoding it.
func (c *Connection) Play(ctx context.Context, t audio.Track) error {
	if t.Source == nil {
		return audio.ErrUnresolvedTrack
	}
	location, err := t.Source.Location(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closing:
		return audio.ErrNotConnected
	default:
	}

	c.stopLocked()

	encoder, err := dca.EncodeFile(location, c.options)
	if err != nil {
		return fmt.Errorf("failed creating an encoding session: %w", err)
	}

	if err := c.vc.Speaking(true); err != nil {
		c.log.Warn("Failed to set speaking state", logger.Fields{"error": err.Error()})
	}

	done := make(chan error, 1)
	dca.NewStream(encoder, c.vc, done)
	c.encoder = encoder

	c.wg.Add(1)
	go c.await(t.ID, done)
	return nil
}

// Stop ends the current stream. The stream reports TrackEnded on its own.
func (c *Connection) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	return nil
}

func (c *Connection) stopLocked() {
	if c.encoder == nil {
		return
	}
	c.encoder.Cleanup()
	c.encoder = nil
	if err := c.vc.Speaking(false); err != nil {
		c.log.Debug("Failed to clear speaking state", logger.Fields{"error": err.Error()})
	}
}

func (c *Connection) await(entryID string, done <-chan error) {
	defer c.wg.Done()

	var err error
	select {
	case err = <-done:
	case <-c.closing:
		return
	}

	if err != nil && err != io.EOF {
		c.emit(audio.TrackEvent{EntryID: entryID, Kind: audio.TrackFailed, Err: err})
	}
	c.emit(audio.TrackEvent{EntryID: entryID, Kind: audio.TrackEnded})
}

func (c *Connection) emit(ev audio.TrackEvent) {
	select {
	case c.events <- ev:
	case <-c.closing:
	}
}

func (c *Connection) close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		c.Stop()

		waited := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(c.events)
			close(waited)
		}()
		select {
		case <-waited:
		case <-ctx.Done():
			c.log.Warn("Timed out waiting for streams to finish")
		}

		if derr := c.leave(); derr != nil {
			err = fmt.Errorf("failed to leave voice channel: %w", derr)
		}
	})
	return err
}
