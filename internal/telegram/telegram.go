// Package telegram delivers chat messages to a Telegram channel.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/deusflow/impactdigest/internal/logger"
)

// Sender posts MarkdownV2 messages to one chat or channel.
type Sender struct {
	api    *tgbotapi.BotAPI
	chatID string
}

// NewSender connects with token. chatID is a numeric id or an @channel name.
func NewSender(token, chatID string, timeout time.Duration) (*Sender, error) {
	return NewSenderWithEndpoint(token, chatID, tgbotapi.APIEndpoint, timeout)
}

// NewSenderWithEndpoint is NewSender against a custom Bot API server.
func NewSenderWithEndpoint(token, chatID, endpoint string, timeout time.Duration) (*Sender, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, fmt.Errorf("telegram chat id is empty")
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	// No getMe here: Telegram is only contacted when a message is sent.
	api := &tgbotapi.BotAPI{
		Token:  token,
		Client: &http.Client{Timeout: timeout},
		Buffer: 100,
	}
	api.SetAPIEndpoint(endpoint)
	return &Sender{api: api, chatID: strings.TrimSpace(chatID)}, nil
}

// Send delivers text once. Retrying is left to the caller.
func (s *Sender) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := s.message(text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = false

	sent, err := s.api.Send(msg)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	logger.Info("Message sent to Telegram", "chat", s.chatID, "message_id", sent.MessageID)
	return nil
}

func (s *Sender) message(text string) tgbotapi.MessageConfig {
	if id, err := strconv.ParseInt(s.chatID, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text)
	}
	name := s.chatID
	if !strings.HasPrefix(name, "@") {
		name = "@" + name
	}
	return tgbotapi.NewMessageToChannel(name, text)
}
