package voice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"alfred/config"
	"alfred/pkg/logger"

	"github.com/bwmarrin/discordgo"
)

type gateway struct {
	mu      sync.Mutex
	release chan struct{}
	joinErr error
	dropErr error
	drops   int
}

func (g *gateway) join(guildID, channelID string) (*discordgo.VoiceConnection, error) {
	if g.release != nil {
		<-g.release
	}
	if g.joinErr != nil {
		return nil, g.joinErr
	}
	return &discordgo.VoiceConnection{GuildID: guildID, ChannelID: channelID}, nil
}

func (g *gateway) drop(*discordgo.VoiceConnection) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drops++
	return g.dropErr
}

func (g *gateway) dropCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.drops
}

func newTestTransport(g *gateway) *Transport {
	return &Transport{
		options: NewEncodeOptions(config.DefaultConfig().Audio),
		log:     logger.Nop(),
		join:    g.join,
		drop:    g.drop,
		conns:   make(map[string]*Connection),
		joining: make(map[string]bool),
	}
}

func TestConnectAndDisconnect(t *testing.T) {
	g := &gateway{}
	tr := newTestTransport(g)

	conn, err := tr.Connect(context.Background(), "g1", "voice-1")
	if err != nil {
		t.Fatal(err)
	}
	if conn.ChannelID() != "voice-1" {
		t.Errorf("ChannelID = %s", conn.ChannelID())
	}

	if err := tr.Disconnect(context.Background(), "g1"); err != nil {
		t.Fatal(err)
	}
	if g.dropCount() != 1 {
		t.Errorf("drops = %d", g.dropCount())
	}
	if _, open := <-conn.Events(); open {
		t.Error("events still open after disconnect")
	}
}

func TestDisconnectOfUnknownGuildIsANoop(t *testing.T) {
	g := &gateway{}
	if err := newTestTransport(g).Disconnect(context.Background(), "g1"); err != nil {
		t.Errorf("Disconnect = %v", err)
	}
	if g.dropCount() != 0 {
		t.Errorf("drops = %d", g.dropCount())
	}
}

func TestFailedDisconnectForgetsConnection(t *testing.T) {
	g := &gateway{dropErr: errors.New("gateway write failed")}
	tr := newTestTransport(g)
	if _, err := tr.Connect(context.Background(), "g1", "voice-1"); err != nil {
		t.Fatal(err)
	}

	if err := tr.Disconnect(context.Background(), "g1"); err == nil {
		t.Fatal("expected error")
	}
	if err := tr.Disconnect(context.Background(), "g1"); err != nil {
		t.Errorf("second Disconnect = %v", err)
	}

	g.dropErr = nil
	if _, err := tr.Connect(context.Background(), "g1", "voice-1"); err != nil {
		t.Errorf("reconnect: %v", err)
	}
}

func TestConnectHonorsContextDeadline(t *testing.T) {
	g := &gateway{release: make(chan struct{})}
	tr := newTestTransport(g)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err := tr.Connect(ctx, "g1", "voice-1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if waited := time.Since(started); waited > time.Second {
		t.Errorf("Connect waited %s", waited)
	}

	if _, err := tr.Connect(context.Background(), "g1", "voice-1"); err == nil || !strings.Contains(err.Error(), "still in progress") {
		t.Errorf("Connect during abandoned join = %v", err)
	}

	close(g.release)
	deadline := time.Now().Add(2 * time.Second)
	for g.dropCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("late connection was not left")
		}
		time.Sleep(5 * time.Millisecond)
	}

	for {
		tr.mu.Lock()
		pending := tr.joining["g1"]
		tr.mu.Unlock()
		if !pending {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("abandoned join never settled")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := tr.Connect(context.Background(), "g1", "voice-1"); err != nil {
		t.Errorf("Connect after abandoned join settled = %v", err)
	}
}

func TestConnectReportsJoinError(t *testing.T) {
	g := &gateway{joinErr: errors.New("timeout waiting for voice")}
	tr := newTestTransport(g)

	if _, err := tr.Connect(context.Background(), "g1", "voice-1"); err == nil || !strings.Contains(err.Error(), "failed to join voice channel") {
		t.Errorf("err = %v", err)
	}
	if _, err := tr.Connect(context.Background(), "g1", "voice-1"); err == nil || strings.Contains(err.Error(), "still in progress") {
		t.Errorf("second Connect = %v", err)
	}
}
