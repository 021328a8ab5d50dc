// Package telegram mirrors room activity into a Telegram chat.
package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"groupouting/backend/internal/models"
)

const queueSize = 256

var ErrQueueFull = errors.New("telegram relay queue full")

// Sender is the part of *tgbotapi.BotAPI the relay uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewBot authorizes against the Bot API.
func NewBot(token string, log logrus.FieldLogger) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	bot.Debug = false
	log.WithField("bot", bot.Self.UserName).Info("telegram bot authorized")
	return bot, nil
}

// Relay is a chat notifier that forwards messages and membership changes to one
// Telegram chat. Publish only queues; Run does the sending.
type Relay struct {
	bot    Sender
	chatID int64
	queue  chan tgbotapi.Chattable
	log    logrus.FieldLogger
}

func NewRelay(bot Sender, chatID int64, log logrus.FieldLogger) *Relay {
	return &Relay{
		bot:    bot,
		chatID: chatID,
		queue:  make(chan tgbotapi.Chattable, queueSize),
		log:    log.WithField("component", "telegram"),
	}
}

func (r *Relay) Publish(_ context.Context, roomID string, event models.Event) error {
	text, ok := render(roomID, event)
	if !ok {
		return nil
	}
	select {
	case r.queue <- tgbotapi.NewMessage(r.chatID, text):
		return nil
	default:
		return ErrQueueFull
	}
}

// Run sends queued messages until ctx is cancelled. A failed send is logged and dropped.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.queue:
			if _, err := r.bot.Send(msg); err != nil {
				r.log.WithError(err).Warn("telegram send failed")
			}
		}
	}
}

// render formats the events worth mirroring. Acks, pongs and errors are per-connection
// and are not mirrored.
func render(roomID string, event models.Event) (string, bool) {
	switch e := event.(type) {
	case models.NewMessageEvent:
		return fmt.Sprintf("[%s] %s: %s", roomID, e.Message.DisplayName, e.Message.Content), true
	case models.ParticipantJoinedEvent:
		return fmt.Sprintf("[%s] %s joined the room", roomID, e.User.DisplayName), true
	case models.ParticipantLeftEvent:
		return fmt.Sprintf("[%s] %s left the room", roomID, e.User.DisplayName), true
	default:
		return "", false
	}
}
