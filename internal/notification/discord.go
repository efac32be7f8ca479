package notification

import (
	"fmt"
	"os"
	"sort"
	"time"

	apperrors "authfuzz/pkg/errors"

	"github.com/bwmarrin/discordgo"
)

type Message struct {
	Title       string
	Description string
	Severity    string
	Fields      map[string]string
	Timestamp   time.Time
}

// Sender delivers notification messages.
type Sender interface {
	Send(msg Message) error
	Close() error
}

type NotificationClient struct {
	sg        *discordgo.Session
	channelID string
}

// NewNotificationClient opens a Discord bot session from DISCORD_TOKEN and
// DISCORD_CHANNEL_ID.
func NewNotificationClient() (*NotificationClient, error) {
	token := os.Getenv("DISCORD_TOKEN")
	channelID := os.Getenv("DISCORD_CHANNEL_ID")
	if token == "" || channelID == "" {
		return nil, fmt.Errorf("%w: DISCORD_TOKEN and DISCORD_CHANNEL_ID must be set", apperrors.ErrDiscordNotConfigured)
	}

	sg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	if err := sg.Open(); err != nil {
		return nil, fmt.Errorf("open discord session: %w", err)
	}

	return &NotificationClient{sg: sg, channelID: channelID}, nil
}

func SeverityColor(severity string) int {
	switch severity {
	case "critical":
		return 0x8B0000
	case "high":
		return 0xFF0000
	case "medium":
		return 0xFF8C00
	case "low":
		return 0xFFD700
	case "info":
		return 0x00BFFF
	default:
		return 0x808080
	}
}

// Embed renders msg as a Discord embed. Fields are sorted by name.
func Embed(msg Message) *discordgo.MessageEmbed {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       SeverityColor(msg.Severity),
		Timestamp:   msg.Timestamp.Format(time.RFC3339),
	}

	names := make([]string, 0, len(msg.Fields))
	for k := range msg.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   k,
			Value:  msg.Fields[k],
			Inline: true,
		})
	}
	return embed
}

func (c *NotificationClient) Send(msg Message) error {
	if c.sg == nil {
		return apperrors.ErrDiscordNotConfigured
	}
	_, err := c.sg.ChannelMessageSendEmbed(c.channelID, Embed(msg))
	return err
}

func (c *NotificationClient) Close() error {
	if c.sg != nil {
		return c.sg.Close()
	}
	return nil
}
