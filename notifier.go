// FILE: notifier.go
// Package main – Fire-and-forget operator notifications.
//
// Every notification also goes to the process log, so a missing or failing
// Telegram channel never hides a decision. Delivery happens on a goroutine
// with its own timeout: a slow Telegram API cannot block the evaluation
// path.

package main

import (
	"context"
	"log"
	"time"

	"github.com/go-resty/resty/v2"
)

// Notifier delivers human-readable alert text, best-effort.
type Notifier interface {
	Notify(text string)
}

// LogNotifier is the fallback when no Telegram credentials are configured.
type LogNotifier struct{}

func (LogNotifier) Notify(text string) { log.Printf("NOTIFY: %s", text) }

// TelegramNotifier posts messages to a chat via the Bot API.
type TelegramNotifier struct {
	client *resty.Client
	chatID string
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	client := resty.New().
		SetBaseURL("https://api.telegram.org/bot" + token).
		SetTimeout(5 * time.Second)
	return &TelegramNotifier{client: client, chatID: chatID}
}

func (n *TelegramNotifier) Notify(text string) {
	log.Printf("NOTIFY: %s", text)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := n.client.R().
			SetContext(ctx).
			SetBody(map[string]string{"chat_id": n.chatID, "text": text}).
			Post("/sendMessage")
		if err != nil {
			log.Printf("telegram send failed: %v", err)
			return
		}
		if resp.IsError() {
			log.Printf("telegram send failed: %s", resp.Status())
		}
	}()
}

// newNotifierFromConfig picks Telegram when configured, log-only otherwise.
func newNotifierFromConfig(cfg Config) Notifier {
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		return NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
	}
	return LogNotifier{}
}
