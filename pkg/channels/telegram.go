package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/menuflow/qbremote/pkg/bus"
	"github.com/menuflow/qbremote/pkg/config"
	"github.com/menuflow/qbremote/pkg/logger"
)

// TelegramChannel bridges Telegram to the bus: slash commands and
// inline keyboard presses go in, send/edit/delete directives come out.
type TelegramChannel struct {
	*BaseChannel
	bot    *telego.Bot
	config config.TelegramConfig
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus) (*TelegramChannel, error) {
	var opts []telego.BotOption

	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", b, cfg.AllowFrom),
		bot:         bot,
		config:      cfg,
	}, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bot (polling mode)...")

	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: 30,
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	c.setRunning(true)
	logger.InfoCF("telegram", "Telegram bot connected", map[string]any{
		"username": c.bot.Username(),
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					logger.InfoC("telegram", "Updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(update.Message)
				}
				if update.CallbackQuery != nil {
					c.handleCallback(ctx, update.CallbackQuery)
				}
			}
		}
	}()

	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot...")
	c.setRunning(false)
	return nil
}

// handleMessage forwards slash commands. Plain chatter is none of our
// business and stays off the bus.
func (c *TelegramChannel) handleMessage(message *telego.Message) {
	user := message.From
	if user == nil {
		return
	}
	if !strings.HasPrefix(message.Text, "/") {
		return
	}

	c.PublishEvent(bus.InboundEvent{
		UserID:    strconv.FormatInt(user.ID, 10),
		Username:  user.Username,
		ChatID:    strconv.FormatInt(message.Chat.ID, 10),
		MessageID: strconv.Itoa(message.MessageID),
		Kind:      bus.EventCommand,
		Text:      message.Text,
	})
}

// handleCallback forwards an inline button press and acknowledges the
// query so the client stops its spinner. The message id on the event
// is the menu message, which is what later edits target.
func (c *TelegramChannel) handleCallback(ctx context.Context, query *telego.CallbackQuery) {
	chatID := ""
	messageID := ""
	if query.Message != nil {
		chatID = strconv.FormatInt(query.Message.GetChat().ID, 10)
		messageID = strconv.Itoa(query.Message.GetMessageID())
	}

	c.PublishEvent(bus.InboundEvent{
		UserID:    strconv.FormatInt(query.From.ID, 10),
		Username:  query.From.Username,
		ChatID:    chatID,
		MessageID: messageID,
		Kind:      bus.EventCallback,
		Text:      query.Data,
	})

	if err := c.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
	}); err != nil {
		logger.DebugCF("telegram", "Failed to answer callback query", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *TelegramChannel) Deliver(ctx context.Context, d bus.OutboundDirective) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}

	chatID, err := strconv.ParseInt(d.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", d.ChatID, err)
	}

	switch d.Kind {
	case bus.DirectiveSend:
		msg := tu.Message(tu.ID(chatID), d.Text)
		if kb := buildKeyboard(d.Buttons); kb != nil {
			msg.ReplyMarkup = kb
		}
		_, err := c.bot.SendMessage(ctx, msg)
		return err

	case bus.DirectiveEdit:
		messageID, err := strconv.Atoi(d.MessageID)
		if err != nil {
			return fmt.Errorf("invalid message ID %q: %w", d.MessageID, err)
		}
		edit := tu.EditMessageText(tu.ID(chatID), messageID, d.Text)
		edit.ReplyMarkup = buildKeyboard(d.Buttons)
		_, err = c.bot.EditMessageText(ctx, edit)
		return err

	case bus.DirectiveDelete:
		messageID, err := strconv.Atoi(d.MessageID)
		if err != nil {
			return fmt.Errorf("invalid message ID %q: %w", d.MessageID, err)
		}
		return c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
			ChatID:    tu.ID(chatID),
			MessageID: messageID,
		})

	default:
		return fmt.Errorf("unsupported directive kind %q", d.Kind)
	}
}

func buildKeyboard(rows [][]bus.Button) *telego.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	grid := make([][]telego.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		r := make([]telego.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			r = append(r, telego.InlineKeyboardButton{
				Text:         btn.Label,
				CallbackData: btn.Data,
			})
		}
		grid = append(grid, r)
	}
	return tu.InlineKeyboard(grid...)
}
