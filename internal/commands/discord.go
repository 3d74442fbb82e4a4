package commands

import (
	"context"
	"io"
	"mime"
	"path/filepath"

	"alfred/pkg/logger"

	"github.com/bwmarrin/discordgo"
)

// DiscordResponder replies through the Discord REST API.
type DiscordResponder struct {
	session *discordgo.Session
}

func NewDiscordResponder(s *discordgo.Session) *DiscordResponder {
	return &DiscordResponder{session: s}
}

func (d *DiscordResponder) Send(channelID, content string) error {
	_, err := d.session.ChannelMessageSend(channelID, content)
	return err
}

// SendFile sends content with r attached as name.
func (d *DiscordResponder) SendFile(channelID, content, name string, r io.Reader) error {
	_, err := d.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		Files: []*discordgo.File{{
			Name:        name,
			ContentType: mime.TypeByExtension(filepath.Ext(name)),
			Reader:      r,
		}},
	})
	return err
}

func (d *DiscordResponder) React(channelID, messageID, emoji string) error {
	return d.session.MessageReactionAdd(channelID, messageID, emoji)
}

// MessageHandler returns a discordgo handler that feeds guild messages into
// the router. ctx bounds every dispatched command.
func (r *Router) MessageHandler(ctx context.Context) func(*discordgo.Session, *discordgo.MessageCreate) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}

		msg := Message{
			ID:         m.ID,
			GuildID:    m.GuildID,
			ChannelID:  m.ChannelID,
			AuthorID:   m.Author.ID,
			AuthorName: m.Author.Username,
			Content:    m.Content,
		}
		if m.Member != nil {
			msg.RoleIDs = m.Member.Roles
		}

		if _, _, ok := r.parse(m.Content); ok {
			if m.GuildID == "" {
				if err := r.responder.Send(m.ChannelID, replyPrefix+"I only work in Discord servers, not DMs!"); err != nil {
					r.log.Error("Failed to send reply", err)
				}
				return
			}
			r.enrich(s, &msg)
		}

		r.Dispatch(ctx, msg)
	}
}

func (r *Router) enrich(s *discordgo.Session, msg *Message) {
	if vs, err := s.State.VoiceState(msg.GuildID, msg.AuthorID); err == nil && vs != nil {
		msg.VoiceChannelID = vs.ChannelID
	}

	if g, err := s.State.Guild(msg.GuildID); err == nil {
		for _, role := range g.Roles {
			msg.GuildRoles = append(msg.GuildRoles, Role{ID: role.ID, Name: role.Name})
		}
	}
	if msg.RoleIDs == nil {
		if member, err := s.State.Member(msg.GuildID, msg.AuthorID); err == nil {
			msg.RoleIDs = member.Roles
		}
	}

	perms, err := s.State.UserChannelPermissions(msg.AuthorID, msg.ChannelID)
	if err != nil {
		r.log.Debug("Could not compute channel permissions", logger.Fields{
			"user_id": msg.AuthorID,
			"error":   err.Error(),
		})
		return
	}
	msg.IsAdmin = perms&discordgo.PermissionAdministrator != 0
}
