package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// sessionMessenger adapts the discordgo session to the sweep's Messenger
// contract.
type sessionMessenger struct {
	session *discordgo.Session
}

func (m *sessionMessenger) GuildIDs() []string {
	guilds := m.session.State.Guilds
	ids := make([]string, 0, len(guilds))
	for _, g := range guilds {
		ids = append(ids, g.ID)
	}
	return ids
}

// ChannelSendable reports whether the channel resolves to a text channel of
// the guild where the bot may send messages.
func (m *sessionMessenger) ChannelSendable(guildID, channelID string) bool {
	channel, err := m.session.State.Channel(channelID)
	if err != nil {
		channel, err = m.session.Channel(channelID)
		if err != nil {
			return false
		}
	}
	if channel.GuildID != guildID || channel.Type != discordgo.ChannelTypeGuildText {
		return false
	}
	perms, err := m.session.UserChannelPermissions(m.session.State.User.ID, channelID)
	if err != nil {
		return false
	}
	return perms&discordgo.PermissionSendMessages != 0
}

func (m *sessionMessenger) Send(channelID, content string) error {
	_, err := m.session.ChannelMessageSend(channelID, content)
	return err
}

// MemberDisplay resolves an account to a mention, falling back to the raw-id
// mention form when the member is gone.
func (m *sessionMessenger) MemberDisplay(guildID, userID string) string {
	member, err := m.session.State.Member(guildID, userID)
	if err != nil || member.User == nil {
		return fmt.Sprintf("<@%s>", userID)
	}
	return member.User.Mention()
}
