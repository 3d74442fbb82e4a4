package commands

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"alfred/pkg/logger"
	"alfred/pkg/metrics"
)

type sent struct {
	channelID string
	content   string
}

type sentFile struct {
	channelID string
	content   string
	name      string
	data      string
}

type fakeResponder struct {
	mu        sync.Mutex
	messages  []sent
	files     []sentFile
	reactions []string
}

func (f *fakeResponder) SendFile(channelID, content, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, sentFile{channelID, content, name, string(data)})
	return nil
}

func (f *fakeResponder) Send(channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sent{channelID, content})
	return nil
}

func (f *fakeResponder) React(channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, emoji)
	return nil
}

func (f *fakeResponder) contents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.content
	}
	return out
}

func (f *fakeResponder) last() string {
	c := f.contents()
	if len(c) == 0 {
		return ""
	}
	return c[len(c)-1]
}

type fixedLatency time.Duration

func (l fixedLatency) HeartbeatLatency() time.Duration { return time.Duration(l) }

func newTestRouter(t *testing.T) (*Router, *fakeResponder, *metrics.Metrics) {
	t.Helper()
	resp := &fakeResponder{}
	m := metrics.NewMetrics()
	r := NewRouter("!", resp, m, logger.Nop())
	r.Register(GeneralCommands(r, fixedLatency(42*time.Millisecond), m, nil)...)
	return r, resp, m
}

func message(content string) Message {
	return Message{
		ID:         "m1",
		GuildID:    "g1",
		ChannelID:  "c1",
		AuthorID:   "u1",
		AuthorName: "bruce",
		Content:    content,
	}
}

func TestDispatchPrefixes(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"prefix", "!ping", "Pong"},
		{"whitespace after prefix", "!  ping", "Pong"},
		{"case insensitive", "!PING", "Pong"},
		{"mention", "<@999> ping", "Pong"},
		{"nick mention", "<@!999> ping", "Pong"},
		{"alias", "!przepros", "My apologies, my lord."},
		{"unknown", "!nope", "Could not find this command."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, resp, _ := newTestRouter(t)
			r.SetBotID("999")
			r.Dispatch(context.Background(), message(tt.content))
			if got := resp.last(); got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalMessagesAreIgnored(t *testing.T) {
	r, resp, m := newTestRouter(t)
	for _, content := range []string{"hello there", "!", "<@999> ping", "ping"} {
		r.Dispatch(context.Background(), message(content))
	}
	if got := resp.contents(); len(got) != 0 {
		t.Errorf("replies = %q", got)
	}
	if counts := m.CommandCounts(); len(counts) != 0 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestCommandCounter(t *testing.T) {
	r, resp, m := newTestRouter(t)

	r.Dispatch(context.Background(), message("!ping"))
	r.Dispatch(context.Background(), message("!ping"))
	r.Dispatch(context.Background(), message("!unknown"))
	r.Dispatch(context.Background(), message("!commands"))

	want := "Commands used:\n- commands: 1\n- ping: 2\n"
	if got := resp.last(); got != want {
		t.Errorf("commands reply = %q, want %q", got, want)
	}
	if got := m.GetCounter("command_success_ping"); got != 2 {
		t.Errorf("command_success_ping = %d", got)
	}
}

func TestGeneralReplies(t *testing.T) {
	r, resp, _ := newTestRouter(t)

	r.Dispatch(context.Background(), message("!latency"))
	if got := resp.last(); got != "The shard latency is 42ms" {
		t.Errorf("latency = %q", got)
	}

	r.Dispatch(context.Background(), message("!am_i_admin"))
	if got := resp.last(); got != "No, you are not.." {
		t.Errorf("am_i_admin = %q", got)
	}

	admin := message("!am_i_admin")
	admin.IsAdmin = true
	r.Dispatch(context.Background(), admin)
	if got := resp.last(); got != "Yes, you are." {
		t.Errorf("am_i_admin = %q", got)
	}
}

func TestHelp(t *testing.T) {
	r, resp, _ := newTestRouter(t)

	r.Dispatch(context.Background(), message("!help"))
	got := resp.last()
	for _, want := range []string{"`!ping`", "`!help [command]`", "`!am_i_admin`"} {
		if !strings.Contains(got, want) {
			t.Errorf("help missing %s:\n%s", want, got)
		}
	}

	r.Dispatch(context.Background(), message("!help przepros"))
	if got := resp.last(); !strings.Contains(got, "`!apologize`") || !strings.Contains(got, "Aliases: przepros") {
		t.Errorf("help apologize = %q", got)
	}

	r.Dispatch(context.Background(), message("!help nothing"))
	if got := resp.last(); got != "Could not find: `nothing`." {
		t.Errorf("help nothing = %q", got)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	r, resp, m := newTestRouter(t)
	r.Register(&Command{Name: "boom", Handler: func(*Context) error { panic("kaboom") }})

	r.Dispatch(context.Background(), message("!boom"))

	if got := resp.last(); !strings.HasPrefix(got, replyPrefix) || !strings.Contains(got, "internal error") {
		t.Errorf("reply = %q", got)
	}
	if got := m.GetCounter("command_error_boom"); got != 1 {
		t.Errorf("command_error_boom = %d", got)
	}
}

func TestRateLimitedCommandRepliesOnce(t *testing.T) {
	r, resp, m := newTestRouter(t)
	now := time.Unix(1700000000, 0)
	bucket := NewBucket("complicated", 10*time.Second, 2)
	bucket.now = func() time.Time { return now }
	r.Register(&Command{Name: "slow", Bucket: bucket, Handler: func(c *Context) error { return c.Reply("ok") }})

	for i := 0; i < 4; i++ {
		r.Dispatch(context.Background(), message("!slow"))
	}

	want := []string{"ok", "ok", "Try this again in 5 seconds."}
	if got := resp.contents(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("replies = %q, want %q", got, want)
	}
	if len(resp.reactions) != 1 {
		t.Errorf("reactions = %q", resp.reactions)
	}
	if got := m.GetCounter("command_total_slow"); got != 2 {
		t.Errorf("command_total_slow = %d", got)
	}
}

func TestExactReplyIgnoresPrefix(t *testing.T) {
	resp := &fakeResponder{}
	r := NewRouter("?", resp, metrics.NewMetrics(), logger.Nop())
	r.AddExactReply("!przepros", "My apologies, my lord.")

	r.Dispatch(context.Background(), message("!przepros"))
	r.Dispatch(context.Background(), message("!przepros please"))

	if got := resp.contents(); len(got) != 1 || got[0] != "My apologies, my lord." {
		t.Errorf("replies = %q", got)
	}
}

func guildMessage(content string, roleIDs ...string) Message {
	msg := message(content)
	msg.GuildRoles = []Role{{ID: "r1", Name: "Sugar Daddy"}, {ID: "r2", Name: "DJ"}, {ID: "r3", Name: "Pachołek"}}
	msg.RoleIDs = roleIDs
	return msg
}

func TestAboutRole(t *testing.T) {
	tests := []struct {
		name  string
		msg   Message
		reply string
	}{
		{"found", guildMessage("!about_role DJ", "r1"), "Role-ID r2"},
		{"name with spaces", guildMessage("!about_role Sugar Daddy", "r3"), "Role-ID r1"},
		{"unknown role", guildMessage("!about_role Nobody", "r1"), `Could not find role named: "Nobody"`},
		{"author lacks role", guildMessage("!about_role DJ", "r2"), replyPrefix + "You lack the role needed for this command."},
		{"author has no roles", guildMessage("!about_role DJ"), replyPrefix + "You lack the role needed for this command."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &fakeResponder{}
			m := metrics.NewMetrics()
			r := NewRouter("!", resp, m, logger.Nop())
			r.Register(GuildCommands([]string{"Sugar Daddy", "Pachołek"}, "")...)

			r.Dispatch(context.Background(), tt.msg)
			if got := resp.last(); got != tt.reply {
				t.Errorf("reply = %q, want %q", got, tt.reply)
			}
		})
	}
}

func TestAboutRoleWithoutRoleLimit(t *testing.T) {
	resp := &fakeResponder{}
	r := NewRouter("!", resp, metrics.NewMetrics(), logger.Nop())
	r.Register(GuildCommands(nil, "")...)

	r.Dispatch(context.Background(), guildMessage("!about_role DJ"))
	if got := resp.last(); got != "Role-ID r2" {
		t.Errorf("reply = %q", got)
	}
}

func TestJDSendsPicture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dis.png")
	if err := os.WriteFile(path, []byte("png"), 0o600); err != nil {
		t.Fatal(err)
	}
	resp := &fakeResponder{}
	r := NewRouter("!", resp, metrics.NewMetrics(), logger.Nop())
	r.Register(GuildCommands(nil, path)...)

	r.Dispatch(context.Background(), message("!jd"))
	if len(resp.files) != 1 {
		t.Fatalf("files = %+v", resp.files)
	}
	if f := resp.files[0]; f.channelID != "c1" || f.content != "JD!" || f.name != "dis.png" || f.data != "png" {
		t.Errorf("file = %+v", f)
	}

	r.Register(GuildCommands(nil, filepath.Join(t.TempDir(), "missing.png"))...)
	r.Dispatch(context.Background(), message("!jd"))
	if got := resp.last(); got != replyPrefix+"The picture went missing." {
		t.Errorf("reply = %q", got)
	}
}
