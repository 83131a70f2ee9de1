// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TelegramOpts tunes NewTelegram. The zero value talks to the public API.
type TelegramOpts struct {
	// Endpoint is a format string taking the token and the method, like
	// tgbotapi.APIEndpoint.
	Endpoint string
	Client   *http.Client
	// MinGap is the minimum time between two messages.
	MinGap time.Duration
	Log    *zap.Logger
}

// DefaultMinGap keeps bursts of alerts under the bot API flood limits.
const DefaultMinGap = 1500 * time.Millisecond

// Telegram sends notifications to one chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	lim    *rate.Limiter
	log    *zap.Logger
}

// NewTelegram authorizes token against the bot API.
func NewTelegram(token string, chatID int64, opts *TelegramOpts) (*Telegram, error) {
	o := TelegramOpts{Endpoint: tgbotapi.APIEndpoint, Client: &http.Client{Timeout: 5 * time.Second}, MinGap: DefaultMinGap}
	if opts != nil {
		if opts.Endpoint != "" {
			o.Endpoint = opts.Endpoint
		}
		if opts.Client != nil {
			o.Client = opts.Client
		}
		if opts.MinGap != 0 {
			o.MinGap = opts.MinGap
		}
		o.Log = opts.Log
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if chatID == 0 {
		return nil, fmt.Errorf("notify: telegram chat id not set")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, o.Endpoint, o.Client)
	if err != nil {
		return nil, fmt.Errorf("notify: creating telegram bot: %w", err)
	}
	o.Log.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		lim:    rate.NewLimiter(rate.Every(o.MinGap), 1),
		log:    o.Log,
	}, nil
}

// Notify sends text, waiting for the minimum gap since the previous message.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if err := t.lim.Wait(ctx); err != nil {
		return fmt.Errorf("notify: telegram: %w", err)
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("notify: sending telegram message: %w", err)
	}
	t.log.Debug("telegram message sent", zap.Int64("chat_id", t.chatID))
	return nil
}
