// Package commands turns chat messages into calls on the session manager.
package commands

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"alfred/pkg/logger"
	"alfred/pkg/metrics"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const defaultMessageLimit = 1900

// Responder sends replies back to the chat platform.
type Responder interface {
	Send(channelID, content string) error
	SendFile(channelID, content, name string, r io.Reader) error
	React(channelID, messageID, emoji string) error
}

// Role is a guild role.
type Role struct {
	ID   string
	Name string
}

// Message is an inbound chat message, already enriched by the gateway adapter.
type Message struct {
	ID             string
	GuildID        string
	ChannelID      string
	AuthorID       string
	AuthorName     string
	Content        string
	IsAdmin        bool
	VoiceChannelID string
	// RoleIDs are the roles of the author.
	RoleIDs []string
	// GuildRoles are all roles of the guild.
	GuildRoles []Role
}

// RoleNames returns the names of the author's roles.
func (m Message) RoleNames() []string {
	held := lo.Filter(m.GuildRoles, func(r Role, _ int) bool { return lo.Contains(m.RoleIDs, r.ID) })
	return lo.Map(held, func(r Role, _ int) string { return r.Name })
}

// Handler runs one command.
type Handler func(c *Context) error

// Command is a named handler with its help text.
type Command struct {
	Name        string
	Aliases     []string
	Usage       string
	Description string
	Bucket      *Bucket
	// Roles, when set, limits the command to authors holding one of these role names.
	Roles   []string
	Handler Handler
}

// Context is what a handler sees of the message that invoked it.
type Context struct {
	Ctx       context.Context
	RequestID string
	Command   *Command
	Message   Message
	Args      []string

	router *Router
}

// Rest returns the arguments joined back into one string.
func (c *Context) Rest() string {
	return strings.Join(c.Args, " ")
}

// Reply sends content to the channel the command came from.
func (c *Context) Reply(content string) error {
	return c.router.responder.Send(c.Message.ChannelID, content)
}

// Replyf formats and sends a prefixed reply.
func (c *Context) Replyf(format string, args ...interface{}) error {
	return c.Reply(replyPrefix + fmt.Sprintf(format, args...))
}

// Router dispatches prefixed or mention-prefixed messages to commands.
type Router struct {
	prefix    string
	responder Responder
	errors    *ErrorHandler
	metrics   *metrics.Metrics
	log       *logger.Logger

	mu           sync.RWMutex
	botID        string
	messageLimit int
	commands     map[string]*Command
	ordered      []*Command
	exact        map[string]string
}

// NewRouter creates a router for prefix.
func NewRouter(prefix string, responder Responder, m *metrics.Metrics, log *logger.Logger) *Router {
	log = log.WithComponent("commands")
	return &Router{
		prefix:    prefix,
		responder: responder,
		errors:    NewErrorHandler(responder, m, log),
		metrics:   m,
		log:       log,
		commands:  make(map[string]*Command),
		exact:     make(map[string]string),
	}
}

// SetMessageLimit caps the length of each reply message. n <= 0 restores the default.
func (r *Router) SetMessageLimit(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messageLimit = n
}

func (r *Router) limit() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.messageLimit <= 0 {
		return defaultMessageLimit
	}
	return r.messageLimit
}

// AddExactReply answers any message whose whole content is trigger with
// reply, whatever the prefix.
func (r *Router) AddExactReply(trigger, reply string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exact[trigger] = reply
}

// SetBotID enables the mention prefix for the bot user id.
func (r *Router) SetBotID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.botID = id
}

// Register adds commands. Names and aliases are case insensitive.
func (r *Router) Register(cmds ...*Command) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cmd := range cmds {
		r.commands[strings.ToLower(cmd.Name)] = cmd
		for _, alias := range cmd.Aliases {
			r.commands[strings.ToLower(alias)] = cmd
		}
		r.ordered = append(r.ordered, cmd)
	}
	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].Name < r.ordered[j].Name })
}

// Commands returns the registered commands sorted by name.
func (r *Router) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Command(nil), r.ordered...)
}

// Prefix returns the command prefix.
func (r *Router) Prefix() string {
	return r.prefix
}

func (r *Router) lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[strings.ToLower(name)]
	return cmd, ok
}

// parse strips the prefix or bot mention. ok is false for normal messages.
func (r *Router) parse(content string) (name string, args []string, ok bool) {
	content = strings.TrimSpace(content)

	r.mu.RLock()
	botID := r.botID
	r.mu.RUnlock()

	var rest string
	switch {
	case r.prefix != "" && strings.HasPrefix(content, r.prefix):
		rest = content[len(r.prefix):]
	case botID != "" && strings.HasPrefix(content, "<@"+botID+">"):
		rest = content[len("<@"+botID+">"):]
	case botID != "" && strings.HasPrefix(content, "<@!"+botID+">"):
		rest = content[len("<@!"+botID+">"):]
	default:
		return "", nil, false
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}

// Dispatch runs the command in msg, if any. It blocks until the handler returns.
func (r *Router) Dispatch(ctx context.Context, msg Message) {
	r.mu.RLock()
	reply, exact := r.exact[msg.Content]
	r.mu.RUnlock()
	if exact {
		if err := r.responder.Send(msg.ChannelID, reply); err != nil {
			r.log.Error("Failed to send reply", err)
		}
		return
	}

	name, args, ok := r.parse(msg.Content)
	if !ok {
		r.log.Debug("Message is not a command", logger.Fields{
			"content":  msg.Content,
			"guild_id": msg.GuildID,
		})
		return
	}

	cmd, found := r.lookup(name)
	if !found {
		r.log.Info("Could not find command", logger.Fields{"command": name, "user_id": msg.AuthorID})
		if err := r.responder.Send(msg.ChannelID, "Could not find this command."); err != nil {
			r.log.Error("Failed to send reply", err)
		}
		return
	}

	if len(cmd.Roles) > 0 && !lo.Some(msg.RoleNames(), cmd.Roles) {
		r.errors.Handle(NewBotError(ErrorTypePermission,
			fmt.Sprintf("%s lacks a role for %s", msg.AuthorID, cmd.Name),
			"You lack the role needed for this command.", nil).
			WithContext("command", cmd.Name).
			WithContext("user_id", msg.AuthorID), msg.ChannelID)
		return
	}

	if cmd.Bucket != nil {
		if wait, firstTry, allowed := cmd.Bucket.Take(msg.AuthorID); !allowed {
			r.rateLimited(msg, cmd, wait, firstTry)
			return
		}
	}

	c := &Context{
		Ctx:       ctx,
		RequestID: uuid.NewString(),
		Command:   cmd,
		Message:   msg,
		Args:      args,
		router:    r,
	}

	r.before(c)
	started := time.Now()
	err := r.run(c)
	r.after(c, err, time.Since(started))
}

func (r *Router) rateLimited(msg Message, cmd *Command, wait time.Duration, firstTry bool) {
	r.log.Debug("Command rate limited", logger.Fields{
		"command":   cmd.Name,
		"bucket":    cmd.Bucket.Name,
		"user_id":   msg.AuthorID,
		"wait":      wait.String(),
		"first_try": firstTry,
	})
	if !firstTry {
		return
	}
	if err := r.responder.React(msg.ChannelID, msg.ID, "⏱"); err != nil {
		r.log.Debug("Failed to react to rate limited message", logger.Fields{"error": err.Error()})
	}
	if err := r.responder.Send(msg.ChannelID, fmt.Sprintf("Try this again in %d seconds.", waitSeconds(wait))); err != nil {
		r.log.Error("Failed to send reply", err)
	}
}

func (r *Router) before(c *Context) {
	r.log.WithRequest(c.RequestID).Info("Got command", logger.Fields{
		"command":  c.Command.Name,
		"user":     c.Message.AuthorName,
		"guild_id": c.Message.GuildID,
	})
	r.metrics.RecordCommandStart(c.Command.Name)
}

func (r *Router) run(c *Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithRequest(c.RequestID).LogPanic(rec, debug.Stack())
			err = NewBotError(ErrorTypeInternal, fmt.Sprintf("panic in %s: %v", c.Command.Name, rec),
				"An internal error occurred. The operation has been safely stopped.", nil)
		}
	}()
	return c.Command.Handler(c)
}

func (r *Router) after(c *Context, err error, duration time.Duration) {
	r.metrics.RecordCommandExecution(c.Command.Name, err == nil, duration)
	r.log.WithRequest(c.RequestID).
		WithUser(c.Message.AuthorID, c.Message.AuthorName).
		LogCommandEvent(c.Command.Name, c.Message.AuthorID, c.Message.GuildID, err == nil, duration, logger.Fields{
			"channel_id": c.Message.ChannelID,
		})

	if err != nil {
		r.errors.Handle(err, c.Message.ChannelID)
	}
}
