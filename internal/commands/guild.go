package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/lo"
)

type guild struct {
	jdImage string
}

// GuildCommands returns the commands that read guild state or post media.
// about_role is limited to lookupRoles when any are given.
func GuildCommands(lookupRoles []string, jdImage string) []*Command {
	g := &guild{jdImage: jdImage}
	return []*Command{
		{
			Name:        "about_role",
			Usage:       "<role name>",
			Description: "Show the ID of a role",
			Roles:       lookupRoles,
			Handler:     g.aboutRole,
		},
		{Name: "jd", Description: "JD!", Handler: g.jd},
	}
}

func (g *guild) aboutRole(c *Context) error {
	name := c.Rest()
	role, ok := lo.Find(c.Message.GuildRoles, func(r Role) bool { return r.Name == name })
	if !ok {
		return c.Reply(fmt.Sprintf("Could not find role named: %q", name))
	}
	return c.Reply("Role-ID " + role.ID)
}

func (g *guild) jd(c *Context) error {
	f, err := os.Open(g.jdImage)
	if err != nil {
		return NewBotError(ErrorTypeInternal, "failed to open jd image", "The picture went missing.", err).
			WithContext("path", g.jdImage)
	}
	defer f.Close()
	return c.router.responder.SendFile(c.Message.ChannelID, "JD!", filepath.Base(g.jdImage), f)
}
