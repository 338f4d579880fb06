package error_notificator

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const sendTimeout = 10 * time.Second

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Infra struct {
	bot    sender
	chatID int64
}

func NewTelegramInfra(token string, chatID int64) (*Infra, error) {
	return newTelegramInfra(token, chatID, tgbotapi.APIEndpoint, &http.Client{Timeout: sendTimeout})
}

func newTelegramInfra(token string, chatID int64, endpoint string, client *http.Client) (*Infra, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &Infra{bot: bot, chatID: chatID}, nil
}

// Notify gives up when ctx is done; the bot API call itself is bounded by the
// http client timeout, so an abandoned send does not linger past it.
func (i *Infra) Notify(ctx context.Context, callID string, err error, details string) error {
	text := fmt.Sprintf(
		"❗ Call failed (%s)\n\nError: %v\n\nDetails: %s",
		callID,
		err,
		details,
	)

	done := make(chan error, 1)
	go func() {
		_, sendErr := i.bot.Send(tgbotapi.NewMessage(i.chatID, text))
		done <- sendErr
	}()

	select {
	case sendErr := <-done:
		if sendErr != nil {
			log.Printf("[error_notificator] send fail to %d: %v", i.chatID, sendErr)
			return sendErr
		}
		return nil
	case <-ctx.Done():
		log.Printf("[error_notificator] send to %d abandoned: %v", i.chatID, ctx.Err())
		return ctx.Err()
	}
}
