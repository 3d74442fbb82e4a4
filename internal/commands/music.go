package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"alfred/internal/services/audio"
	"alfred/pkg/logger"
)

const historyLimit = 10

// SessionManager is the part of the session registry the music commands use.
type SessionManager interface {
	Join(ctx context.Context, guildID, channelID string) error
	Leave(ctx context.Context, guildID string) error
	Enqueue(ctx context.Context, guildID, query, requestedBy string) (*audio.PlayResult, error)
	Stop(ctx context.Context, guildID string) (int, error)
	ResetQueue(ctx context.Context, guildID string) (int, error)
	Skip(ctx context.Context, guildID string) (*audio.SkipResult, error)
	Status(guildID string) audio.Status
	History() *audio.History
}

// Announcer posts playback notices to the channel a guild last queued from.
// It implements audio.Listener.
type Announcer struct {
	responder Responder
	log       *logger.Logger

	mu       sync.Mutex
	channels map[string]string
}

// NewAnnouncer creates an announcer that posts through responder.
func NewAnnouncer(responder Responder, log *logger.Logger) *Announcer {
	return &Announcer{
		responder: responder,
		log:       log.WithComponent("announcer"),
		channels:  make(map[string]string),
	}
}

func (a *Announcer) remember(guildID, channelID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.channels[guildID] = channelID
}

func (a *Announcer) forget(guildID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.channels, guildID)
}

// TracksDropped tells the guild which tracks could not start.
func (a *Announcer) TracksDropped(guildID string, dropped []*audio.StartError) {
	a.mu.Lock()
	channelID, ok := a.channels[guildID]
	a.mu.Unlock()
	if !ok {
		return
	}

	if err := a.responder.Send(channelID, strings.Join(droppedLines(dropped), "\n")); err != nil {
		a.log.Error("Failed to announce dropped tracks", err, logger.Fields{"guild_id": guildID})
	}
}

type music struct {
	sessions  SessionManager
	announcer *Announcer
}

// MusicCommands returns the voice and queue commands. Commands that resolve
// tracks share bucket; bucket and announcer may be nil.
func MusicCommands(sessions SessionManager, bucket *Bucket, announcer *Announcer) []*Command {
	m := &music{sessions: sessions, announcer: announcer}
	return []*Command{
		{Name: "join", Description: "Join your voice channel", Handler: m.join},
		{Name: "leave", Description: "Stop playback and leave the voice channel", Handler: m.leave},
		{
			Name:        "play",
			Aliases:     []string{"p"},
			Usage:       "<YouTube URL | playlist URL | search terms>",
			Description: "Queue a video, a playlist or the best search match",
			Bucket:      bucket,
			Handler:     m.play,
		},
		{
			Name:        "queue",
			Aliases:     []string{"q"},
			Usage:       "[query]",
			Description: "Show the queue, or add to it like play",
			Bucket:      bucket,
			Handler:     m.queue,
		},
		{Name: "stop", Description: "Stop the current song and clear the queue", Handler: m.stop},
		{Name: "skip", Description: "Skip the current song", Handler: m.skip},
		{Name: "reset", Description: "Clear everything queued after the current song", Handler: m.reset},
		{Name: "history", Description: "Show recently played songs", Handler: m.history},
	}
}

func (m *music) join(c *Context) error {
	if c.Message.VoiceChannelID == "" {
		return NewValidationError("You need to be in a voice channel first.")
	}
	if err := m.sessions.Join(c.Ctx, c.Message.GuildID, c.Message.VoiceChannelID); err != nil {
		return err
	}
	return c.Replyf("Joined <#%s> :notes:", c.Message.VoiceChannelID)
}

func (m *music) leave(c *Context) error {
	err := m.sessions.Leave(c.Ctx, c.Message.GuildID)
	if m.announcer != nil && !errors.Is(err, audio.ErrNotConnected) {
		m.announcer.forget(c.Message.GuildID)
	}
	if err != nil {
		return err
	}
	return c.Replyf("Left the voice channel :wave:")
}

func (m *music) play(c *Context) error {
	query := c.Rest()
	if query == "" {
		return NewValidationError(fmt.Sprintf("Usage: `%s%s %s`", c.router.Prefix(), c.Command.Name, c.Command.Usage))
	}

	res, err := m.sessions.Enqueue(c.Ctx, c.Message.GuildID, query, c.Message.AuthorID)
	if err != nil {
		return err
	}
	if m.announcer != nil {
		m.announcer.remember(c.Message.GuildID, c.Message.ChannelID)
	}
	return sendLines(c, formatPlayResult(res))
}

func (m *music) queue(c *Context) error {
	if len(c.Args) > 0 {
		return m.play(c)
	}
	return sendLines(c, formatStatus(m.sessions.Status(c.Message.GuildID)))
}

func (m *music) stop(c *Context) error {
	cleared, err := m.sessions.Stop(c.Ctx, c.Message.GuildID)
	if err != nil {
		return err
	}
	return c.Replyf("Stopped playback & cleared %d %s :octagonal_sign:", cleared, plural(cleared, "track", "tracks"))
}

func (m *music) skip(c *Context) error {
	res, err := m.sessions.Skip(c.Ctx, c.Message.GuildID)
	if err != nil {
		return err
	}

	lines := []string{replyPrefix + fmt.Sprintf("Skipping [%s] :loop:", res.Skipped.DisplayTitle())}
	lines = append(lines, droppedLines(res.Dropped)...)
	if res.Next != nil {
		lines = append(lines, replyPrefix+fmt.Sprintf("Next! Now playing [%s] :notes:", res.Next.DisplayTitle()))
	} else {
		lines = append(lines, replyPrefix+"No more songs in queue after this skip.")
	}
	return sendLines(c, lines)
}

func (m *music) reset(c *Context) error {
	removed, err := m.sessions.ResetQueue(c.Ctx, c.Message.GuildID)
	if err != nil {
		return err
	}
	return c.Replyf("Removed %d queued %s", removed, plural(removed, "track", "tracks"))
}

func (m *music) history(c *Context) error {
	entries := m.sessions.History().Recent(c.Message.GuildID, historyLimit)
	if len(entries) == 0 {
		return c.Replyf("Nothing has been played here yet.")
	}

	lines := []string{":scroll:   RECENTLY PLAYED   :scroll:"}
	for i, e := range entries {
		lines = append(lines, fmt.Sprintf(" %d. %s  ->  %s", i+1, trackLine(e.Track), e.PlayedAt.Format("15:04")))
	}
	return sendLines(c, lines)
}

func formatPlayResult(res *audio.PlayResult) []string {
	var lines []string
	for _, f := range res.Failures {
		lines = append(lines, replyPrefix+"Skipped: "+ResolveMessage(f))
	}
	lines = append(lines, droppedLines(res.Dropped)...)

	switch {
	case len(res.Added) == 0:
		lines = append(lines, replyPrefix+"Nothing was queued.")
		return lines
	case len(res.Added) == 1 && res.Started != nil:
		lines = append(lines, replyPrefix+fmt.Sprintf("Now playing [%s] :notes:", trackLine(*res.Started)))
		return lines
	case len(res.Added) == 1:
		lines = append(lines, replyPrefix+fmt.Sprintf("Queued [%s] at position %d", trackLine(res.Added[0]), res.FirstPosition))
	default:
		lines = append(lines, replyPrefix+fmt.Sprintf("Queued %d tracks starting at position %d", len(res.Added), res.FirstPosition))
		if res.Started != nil {
			lines = append(lines, replyPrefix+fmt.Sprintf("Now playing [%s] :notes:", trackLine(*res.Started)))
		}
	}

	lines = append(lines, replyPrefix+queueSummary(res.QueueLength, res.TotalPlaytime, res.UnknownDurations))
	return lines
}

func droppedLines(dropped []*audio.StartError) []string {
	lines := make([]string, 0, len(dropped))
	for _, d := range dropped {
		lines = append(lines, replyPrefix+fmt.Sprintf("Skipped: Could not play [%s].", d.Track.DisplayTitle()))
	}
	return lines
}

func formatStatus(st audio.Status) []string {
	lines := []string{":musical_note:   QUEUE LIST   :musical_note:"}
	if !st.Connected {
		return append(lines, "Not connected to a voice channel.")
	}
	if len(st.Tracks) == 0 {
		return append(lines, "The queue is empty.")
	}

	if st.NowPlaying != nil {
		lines = append(lines, fmt.Sprintf("Now Playing: %s  ->  Queued by <@%s>", trackLine(*st.NowPlaying), st.NowPlaying.RequestedBy))
	}
	for i, t := range st.Upcoming() {
		lines = append(lines, fmt.Sprintf(" %d. %s  ->  Queued by <@%s>", i+1, trackLine(t), t.RequestedBy))
	}
	return append(lines, queueSummary(len(st.Tracks), st.TotalPlaytime, st.UnknownDurations))
}

func queueSummary(length int, total time.Duration, unknown int) string {
	summary := fmt.Sprintf("%d %s in queue, total playtime %s", length, plural(length, "track", "tracks"), audio.FormatDuration(total))
	if unknown > 0 {
		summary += fmt.Sprintf(" (+%d of unknown length)", unknown)
	}
	return summary
}

func trackLine(t audio.Track) string {
	if !t.HasDuration() {
		return t.DisplayTitle()
	}
	return fmt.Sprintf("%s (%s)", t.DisplayTitle(), audio.FormatDuration(t.Duration))
}

// sendLines packs lines into as few messages as the length limit allows.
func sendLines(c *Context, lines []string) error {
	limit := c.router.limit()
	var b strings.Builder
	for _, line := range lines {
		if b.Len() > 0 && b.Len()+len(line)+1 > limit {
			if err := c.Reply(b.String()); err != nil {
				return err
			}
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	if b.Len() == 0 {
		return nil
	}
	return c.Reply(b.String())
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
