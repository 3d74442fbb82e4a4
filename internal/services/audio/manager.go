package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"alfred/pkg/logger"
	"alfred/pkg/metrics"
)

// Dependencies are shared by every session of a Manager.
type Dependencies struct {
	Transport Transport
	Resolver  Resolver
	History   *History
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
	// Listener is optional.
	Listener Listener
}

// Manager owns the session of every guild. Its lock only guards the map, so
// work on one guild never blocks another.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	config   Config
	deps     Dependencies
	log      *logger.Logger
}

// NewManager creates an empty registry.
func NewManager(config Config, deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		config:   config,
		deps:     deps,
		log:      deps.Logger.WithComponent("audio_manager"),
	}
}

// Get returns the session of guildID.
func (m *Manager) Get(guildID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[guildID]
	return s, ok
}

func (m *Manager) getOrCreate(guildID string) (*Session, bool) {
	if s, ok := m.Get(guildID); ok {
		return s, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[guildID]; ok {
		return s, false
	}

	s := &Session{
		guildID:      guildID,
		queue:        NewQueue(),
		lastActivity: time.Now(),
		config:       m.config,
		transport:    m.deps.Transport,
		resolver:     m.deps.Resolver,
		history:      m.deps.History,
		metrics:      m.deps.Metrics,
		listener:     m.deps.Listener,
		log:          m.deps.Logger.WithComponent("session").WithGuild(guildID),
	}
	m.sessions[guildID] = s
	return s, true
}

// remove deletes guildID only while it still maps to s.
func (m *Manager) remove(guildID string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[guildID] == s {
		delete(m.sessions, guildID)
	}
}

// Join creates the session of guildID if needed and connects it to channelID.
func (m *Manager) Join(ctx context.Context, guildID, channelID string) error {
	for {
		s, created := m.getOrCreate(guildID)
		err := s.Join(ctx, channelID)
		if errors.Is(err, errSessionClosed) {
			m.remove(guildID, s)
			continue
		}

		var joinErr *JoinError
		if errors.As(err, &joinErr) {
			m.remove(guildID, s)
		}
		if err == nil && created {
			m.deps.Metrics.RecordGuildAction("voice_join", guildID)
		}
		return err
	}
}

// Leave disconnects guildID and drops its session.
func (m *Manager) Leave(ctx context.Context, guildID string) error {
	s, ok := m.Get(guildID)
	if !ok {
		return ErrNotConnected
	}
	err := s.Leave(ctx)
	if errors.Is(err, ErrNotConnected) {
		return err
	}
	// A LeaveError still closed the session.
	m.remove(guildID, s)
	m.deps.Metrics.RecordGuildAction("voice_leave", guildID)
	return err
}

// Enqueue resolves query into the queue of guildID.
func (m *Manager) Enqueue(ctx context.Context, guildID, query, requestedBy string) (*PlayResult, error) {
	s, ok := m.Get(guildID)
	if !ok {
		return nil, ErrNotConnected
	}
	return s.Enqueue(ctx, query, requestedBy)
}

// Stop halts playback of guildID and clears its queue.
func (m *Manager) Stop(ctx context.Context, guildID string) (int, error) {
	s, ok := m.Get(guildID)
	if !ok {
		return 0, ErrNotConnected
	}
	return s.Stop(ctx)
}

// ResetQueue drops the pending entries of guildID.
func (m *Manager) ResetQueue(ctx context.Context, guildID string) (int, error) {
	s, ok := m.Get(guildID)
	if !ok {
		return 0, ErrNotConnected
	}
	return s.ResetQueue(ctx)
}

// Skip moves guildID on to its next track.
func (m *Manager) Skip(ctx context.Context, guildID string) (*SkipResult, error) {
	s, ok := m.Get(guildID)
	if !ok {
		return nil, ErrNotConnected
	}
	return s.Skip(ctx)
}

// Status returns the state of guildID. Unknown guilds report disconnected.
func (m *Manager) Status(guildID string) Status {
	s, ok := m.Get(guildID)
	if !ok {
		return Status{GuildID: guildID}
	}
	return s.Status()
}

// History returns the play history shared by all sessions.
func (m *Manager) History() *History {
	return m.deps.History
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// CleanupInactiveSessions leaves every session that has been idle for longer than maxIdle.
func (m *Manager) CleanupInactiveSessions(ctx context.Context, maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	left := 0

	for _, s := range m.snapshot() {
		last, idle := s.idleSince()
		if !idle || last.After(cutoff) {
			continue
		}
		if err := m.Leave(ctx, s.guildID); err != nil {
			m.log.Warn("Failed to leave idle session", logger.Fields{
				"guild_id": s.guildID,
				"error":    err.Error(),
			})
			continue
		}
		left++
	}

	if left > 0 {
		m.log.Info("Left idle voice sessions", logger.Fields{"count": left})
	}
	return left
}

// ActiveSessions returns the number of sessions currently playing.
func (m *Manager) ActiveSessions() int {
	active := 0
	for _, s := range m.snapshot() {
		if s.isPlaying() {
			active++
		}
	}
	return active
}

// SessionCount returns the number of registered sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown leaves every session.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	for _, s := range m.snapshot() {
		if err := m.Leave(ctx, s.guildID); err != nil && !errors.Is(err, ErrNotConnected) {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	return errors.Join(errs...)
}
