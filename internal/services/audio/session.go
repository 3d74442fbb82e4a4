package audio

import (
	"context"
	"sync"
	"time"

	"alfred/pkg/logger"
	"alfred/pkg/metrics"

	"github.com/google/uuid"
)

// Config bounds the external calls made on behalf of a session.
type Config struct {
	ResolveTimeout time.Duration
	JoinTimeout    time.Duration
}

// Status is a point in time view of a session.
type Status struct {
	GuildID          string
	ChannelID        string
	Connected        bool
	Playing          bool
	NowPlaying       *Track
	Tracks           []Track
	TotalPlaytime    time.Duration
	UnknownDurations int
}

// Upcoming returns the queued tracks after the one playing.
func (s Status) Upcoming() []Track {
	if s.Playing && len(s.Tracks) > 0 {
		return s.Tracks[1:]
	}
	return s.Tracks
}

// PlayResult describes what an Enqueue call changed.
type PlayResult struct {
	// Added holds the tracks still queued when Enqueue returned.
	Added    []Track
	Failures []*ResolveError
	// Dropped holds queued tracks that failed to start.
	Dropped []*StartError
	// FirstPosition is the 1-based queue position of Added[0].
	FirstPosition    int
	Started          *Track
	QueueLength      int
	TotalPlaytime    time.Duration
	UnknownDurations int
}

// SkipResult describes what Skip changed.
type SkipResult struct {
	Skipped Track
	Next    *Track
	Dropped []*StartError
}

// Session is the voice state and queue of one guild. Every exported method
// holds the session lock for its whole duration, including resolver calls,
// so commands on one guild run one at a time.
type Session struct {
	mu           sync.Mutex
	guildID      string
	channelID    string
	conn         Connection
	queue        *Queue
	playing      bool
	closed       bool
	lastActivity time.Time

	config    Config
	transport Transport
	resolver  Resolver
	history   *History
	metrics   *metrics.Metrics
	listener  Listener
	log       *logger.Logger
}

// GuildID returns the guild the session belongs to.
func (s *Session) GuildID() string {
	return s.guildID
}

// Join connects to channelID. The session must be disconnected.
func (s *Session) Join(ctx context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSessionClosed
	}
	if s.conn != nil {
		return ErrAlreadyConnected
	}

	joinCtx, cancel := context.WithTimeout(ctx, s.config.JoinTimeout)
	defer cancel()

	conn, err := s.transport.Connect(joinCtx, s.guildID, channelID)
	if err != nil {
		// A session that never connected holds nothing worth keeping.
		s.closed = true
		return &JoinError{GuildID: s.guildID, ChannelID: channelID, Err: err}
	}

	s.conn = conn
	s.channelID = channelID
	s.touch()
	go s.watch(conn)

	s.log.LogAudioEvent("voice_joined", logger.Fields{"channel_id": channelID})
	return nil
}

// Enqueue resolves query and appends the result. Playback starts when the
// session was idle.
func (s *Session) Enqueue(ctx context.Context, query, requestedBy string) (*PlayResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, ErrNotConnected
	}
	s.touch()

	resolveCtx, cancel := context.WithTimeout(ctx, s.config.ResolveTimeout)
	defer cancel()

	started := time.Now()
	resolution, err := s.resolver.Resolve(resolveCtx, query)
	if err != nil {
		s.metrics.RecordResolveEvent("failed", time.Since(started))
		return nil, err
	}
	s.metrics.RecordResolveEvent("resolved", time.Since(started))

	result := &PlayResult{Failures: resolution.Failures}
	for _, t := range resolution.Tracks {
		t.ID = uuid.NewString()
		t.RequestedBy = requestedBy
		pos, err := s.queue.Enqueue(t)
		if err != nil {
			result.Failures = append(result.Failures, NewResolveError(ContentUnavailable, t.URL, err))
			continue
		}
		if len(result.Added) == 0 {
			result.FirstPosition = pos
		}
		result.Added = append(result.Added, t)
	}

	if len(result.Added) > 0 {
		s.metrics.RecordQueueEvent("enqueue", s.queue.Len())
		s.log.LogQueueEvent("tracks_added", logger.Fields{
			"added":     len(result.Added),
			"failed":    len(result.Failures),
			"queue_len": s.queue.Len(),
		})
	}

	if !s.playing && s.queue.Len() > 0 {
		playCtx, cancel := context.WithTimeout(ctx, s.config.ResolveTimeout)
		defer cancel()
		result.Started, result.Dropped = s.advanceLocked(playCtx)
		if len(result.Dropped) > 0 {
			s.forgetDropped(result)
		}
	}

	result.QueueLength = s.queue.Len()
	result.TotalPlaytime = s.queue.TotalPlaytime()
	result.UnknownDurations = s.queue.UnknownDurations()
	return result, nil
}

// Stop halts playback and clears the queue. The connection stays open.
func (s *Session) Stop(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return 0, ErrNotConnected
	}
	s.touch()

	s.haltLocked()
	removed := s.queue.Clear()
	s.metrics.RecordQueueEvent("stop", 0)
	s.log.LogQueueEvent("queue_stopped", logger.Fields{"removed": removed})
	return removed, nil
}

// ResetQueue drops every pending entry. The playing track keeps playing.
func (s *Session) ResetQueue(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return 0, ErrNotConnected
	}
	s.touch()

	var removed int
	if s.playing {
		removed = s.queue.TruncateAfterHead()
	} else {
		removed = s.queue.Clear()
	}
	s.metrics.RecordQueueEvent("reset", s.queue.Len())
	s.log.LogQueueEvent("queue_reset", logger.Fields{"removed": removed})
	return removed, nil
}

// Skip ends the playing track and starts the next one.
func (s *Session) Skip(ctx context.Context) (*SkipResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, ErrNotConnected
	}
	s.touch()

	if s.queue.Len() == 0 {
		return nil, ErrQueueEmpty
	}

	s.haltLocked()
	skipped, _ := s.queue.PopFront()
	s.metrics.RecordQueueEvent("skip", s.queue.Len())

	playCtx, cancel := context.WithTimeout(ctx, s.config.ResolveTimeout)
	defer cancel()
	next, dropped := s.advanceLocked(playCtx)
	return &SkipResult{Skipped: skipped, Next: next, Dropped: dropped}, nil
}

// Leave stops playback, disconnects and clears the queue. The session cannot
// be reused afterwards.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrNotConnected
	}

	s.haltLocked()
	s.queue.Clear()

	// The transport lets go of the connection whether or not Disconnect
	// succeeds, so the session is finished either way.
	err := s.transport.Disconnect(ctx, s.guildID)
	channelID := s.channelID
	s.conn = nil
	s.channelID = ""
	s.closed = true

	if err != nil {
		s.log.Error("Failed to disconnect voice connection cleanly", err, logger.Fields{"channel_id": channelID})
		return &LeaveError{GuildID: s.guildID, Err: err}
	}
	s.log.LogAudioEvent("voice_left", logger.Fields{"channel_id": channelID})
	return nil
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		GuildID:          s.guildID,
		ChannelID:        s.channelID,
		Connected:        s.conn != nil,
		Playing:          s.playing,
		Tracks:           s.queue.Tracks(),
		TotalPlaytime:    s.queue.TotalPlaytime(),
		UnknownDurations: s.queue.UnknownDurations(),
	}
	if head, ok := s.queue.Head(); ok && s.playing {
		st.NowPlaying = &head
	}
	return st
}

// idleSince reports when the session last did anything and whether it is idle now.
func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity, s.conn != nil && !s.playing && s.queue.Len() == 0
}

func (s *Session) isPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// advanceLocked plays the head of the queue, dropping entries that fail to
// start. It returns the track that started and the ones dropped on the way.
func (s *Session) advanceLocked(ctx context.Context) (*Track, []*StartError) {
	var dropped []*StartError
	for {
		head, ok := s.queue.Head()
		if !ok {
			s.playing = false
			return nil, dropped
		}

		if err := s.conn.Play(ctx, head); err != nil {
			s.log.WithTrack(head.ID, head.Title, head.Duration).Error("Failed to start track, dropping it", err)
			s.metrics.RecordAudioEvent("start_failed")
			s.queue.PopFront()
			dropped = append(dropped, &StartError{Track: head, Err: err})
			continue
		}

		s.playing = true
		s.history.Add(s.guildID, head)
		s.metrics.RecordAudioEvent("started")
		s.log.LogAudioEvent("track_started", logger.Fields{
			"entry_id": head.ID,
			"title":    head.Title,
		})
		return &head, dropped
	}
}

// forgetDropped removes dropped tracks from result.Added and moves
// FirstPosition to wherever the first remaining track now sits.
func (s *Session) forgetDropped(result *PlayResult) {
	gone := make(map[string]bool, len(result.Dropped))
	for _, d := range result.Dropped {
		gone[d.Track.ID] = true
	}

	kept := result.Added[:0]
	for _, t := range result.Added {
		if !gone[t.ID] {
			kept = append(kept, t)
		}
	}
	result.Added = kept
	result.FirstPosition = 0
	if len(kept) == 0 {
		return
	}
	for i, t := range s.queue.Tracks() {
		if t.ID == kept[0].ID {
			result.FirstPosition = i + 1
			return
		}
	}
}

func (s *Session) haltLocked() {
	if !s.playing {
		return
	}
	if err := s.conn.Stop(); err != nil {
		s.log.Warn("Failed to stop playback", logger.Fields{"error": err.Error()})
	}
	s.playing = false
}

func (s *Session) touch() {
	s.lastActivity = time.Now()
}

func (s *Session) watch(conn Connection) {
	for ev := range conn.Events() {
		dropped := s.handleEvent(conn, ev)
		if len(dropped) > 0 && s.listener != nil {
			s.listener.TracksDropped(s.guildID, dropped)
		}
	}
}

// handleEvent applies ev and returns the tracks dropped while advancing.
func (s *Session) handleEvent(conn Connection, ev TrackEvent) []*StartError {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != conn {
		return nil
	}

	switch ev.Kind {
	case TrackFailed:
		s.metrics.RecordAudioEvent("stream_error")
		s.log.Error("Playback error", ev.Err, logger.Fields{"entry_id": ev.EntryID})
	case TrackEnded:
		head, ok := s.queue.Head()
		if !s.playing || !ok || head.ID != ev.EntryID {
			// Ended by stop or skip; the queue already moved on.
			return nil
		}
		s.queue.PopFront()
		s.playing = false
		s.touch()
		s.metrics.RecordAudioEvent("finished")

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ResolveTimeout)
		defer cancel()
		_, dropped := s.advanceLocked(ctx)
		return dropped
	}
	return nil
}
