package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/menuflow/qbremote/pkg/bus"
	"github.com/menuflow/qbremote/pkg/config"
	"github.com/menuflow/qbremote/pkg/logger"
)

// DiscordChannel bridges Discord to the bus. Menus render as message
// components; button presses arrive as component interactions.
type DiscordChannel struct {
	*BaseChannel
	session *discordgo.Session
	config  config.DiscordConfig
}

func NewDiscordChannel(cfg config.DiscordConfig, b *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", b, cfg.AllowFrom),
		session:     session,
		config:      cfg,
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.AddHandler(c.handleMessage)
	c.session.AddHandler(c.handleInteraction)
	c.session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	c.setRunning(true)

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})

	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	return nil
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil {
		return
	}
	if m.Author.ID == s.State.User.ID {
		return
	}
	if !strings.HasPrefix(m.Content, "/") {
		return
	}

	c.PublishEvent(bus.InboundEvent{
		UserID:    m.Author.ID,
		Username:  m.Author.Username,
		ChatID:    m.ChannelID,
		MessageID: m.ID,
		Kind:      bus.EventCommand,
		Text:      m.Content,
	})
}

// handleInteraction forwards component presses. The interaction is
// acknowledged with a deferred update; the real edit follows as a
// directive once the engine has re-rendered.
func (c *DiscordChannel) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i == nil || i.Type != discordgo.InteractionMessageComponent {
		return
	}

	user := i.User
	if user == nil && i.Member != nil {
		user = i.Member.User
	}
	if user == nil {
		return
	}

	messageID := ""
	if i.Message != nil {
		messageID = i.Message.ID
	}

	c.PublishEvent(bus.InboundEvent{
		UserID:    user.ID,
		Username:  user.Username,
		ChatID:    i.ChannelID,
		MessageID: messageID,
		Kind:      bus.EventCallback,
		Text:      i.MessageComponentData().CustomID,
	})

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		logger.DebugCF("discord", "Failed to acknowledge interaction", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *DiscordChannel) Deliver(ctx context.Context, d bus.OutboundDirective) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if d.ChatID == "" {
		return fmt.Errorf("channel ID is empty")
	}

	switch d.Kind {
	case bus.DirectiveSend:
		_, err := c.session.ChannelMessageSendComplex(d.ChatID, &discordgo.MessageSend{
			Content:    d.Text,
			Components: buildComponents(d.Buttons),
		})
		return err

	case bus.DirectiveEdit:
		components := buildComponents(d.Buttons)
		_, err := c.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
			Channel:    d.ChatID,
			ID:         d.MessageID,
			Content:    &d.Text,
			Components: &components,
		})
		return err

	case bus.DirectiveDelete:
		return c.session.ChannelMessageDelete(d.ChatID, d.MessageID)

	default:
		return fmt.Errorf("unsupported directive kind %q", d.Kind)
	}
}

func buildComponents(rows [][]bus.Button) []discordgo.MessageComponent {
	if len(rows) == 0 {
		return []discordgo.MessageComponent{}
	}
	components := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		buttons := make([]discordgo.MessageComponent, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, discordgo.Button{
				Label:    btn.Label,
				Style:    discordgo.SecondaryButton,
				CustomID: btn.Data,
			})
		}
		components = append(components, discordgo.ActionsRow{Components: buttons})
	}
	return components
}
