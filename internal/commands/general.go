package commands

import (
	"fmt"
	"strings"
	"time"

	"alfred/pkg/metrics"
)

// LatencySource reports the gateway heartbeat latency.
type LatencySource interface {
	HeartbeatLatency() time.Duration
}

type general struct {
	router  *Router
	latency LatencySource
	metrics *metrics.Metrics
}

// GeneralCommands returns the one-line reply commands and help.
func GeneralCommands(r *Router, latency LatencySource, m *metrics.Metrics, bucket *Bucket) []*Command {
	g := &general{router: r, latency: latency, metrics: m}
	return []*Command{
		{Name: "ping", Description: "Check that the bot answers", Handler: g.ping},
		{Name: "about", Description: "Who am I", Handler: g.about},
		{Name: "latency", Description: "Show the gateway heartbeat latency", Handler: g.latencyCmd},
		{Name: "commands", Description: "Show how often each command was used", Bucket: bucket, Handler: g.commands},
		{Name: "am_i_admin", Description: "Check whether you are an administrator", Handler: g.amIAdmin},
		{Name: "apologize", Aliases: []string{"przepros"}, Description: "Ask for an apology", Handler: g.apologize},
		{Name: "help", Aliases: []string{"h"}, Usage: "[command]", Description: "List commands", Handler: g.help},
	}
}

func (g *general) ping(c *Context) error {
	return c.Reply("Pong")
}

func (g *general) about(c *Context) error {
	return c.Reply("Alfred. Ask for whatever you wish, master.")
}

func (g *general) apologize(c *Context) error {
	return c.Reply("My apologies, my lord.")
}

func (g *general) latencyCmd(c *Context) error {
	if g.latency == nil {
		return c.Reply("There was a problem getting the gateway latency.")
	}
	return c.Reply(fmt.Sprintf("The shard latency is %s", g.latency.HeartbeatLatency().Round(time.Millisecond)))
}

func (g *general) commands(c *Context) error {
	var b strings.Builder
	b.WriteString("Commands used:\n")
	for _, cc := range g.metrics.CommandCounts() {
		fmt.Fprintf(&b, "- %s: %d\n", cc.Name, cc.Count)
	}
	return c.Reply(b.String())
}

func (g *general) amIAdmin(c *Context) error {
	if c.Message.IsAdmin {
		return c.Reply("Yes, you are.")
	}
	return c.Reply("No, you are not..")
}

func (g *general) help(c *Context) error {
	prefix := g.router.Prefix()

	if len(c.Args) > 0 {
		cmd, ok := g.router.lookup(c.Args[0])
		if !ok {
			return c.Reply(fmt.Sprintf("Could not find: `%s`.", c.Args[0]))
		}
		return sendLines(c, commandHelp(prefix, cmd))
	}

	lines := []string{":robot: **[Alfred] HELP MENU** :robot:", ""}
	for _, cmd := range g.router.Commands() {
		lines = append(lines, commandLine(prefix, cmd))
	}
	lines = append(lines, "", fmt.Sprintf("For more about a command, use `%shelp <command>`.", prefix))
	return sendLines(c, lines)
}

func commandLine(prefix string, cmd *Command) string {
	usage := prefix + cmd.Name
	if cmd.Usage != "" {
		usage += " " + cmd.Usage
	}
	return fmt.Sprintf("`%s` - %s", usage, cmd.Description)
}

func commandHelp(prefix string, cmd *Command) []string {
	lines := []string{commandLine(prefix, cmd)}
	if len(cmd.Aliases) > 0 {
		lines = append(lines, "Aliases: "+strings.Join(cmd.Aliases, ", "))
	}
	return lines
}
