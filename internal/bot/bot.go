// Copyright 2026 s813082
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bot Telegram 接入层：把入站消息桥接到会话派发器，
// 回复后负责当日记忆落盘与统计更新。
package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"persona-bot/internal/export"
	"persona-bot/internal/memory"
	"persona-bot/internal/promotion"
	"persona-bot/internal/session"
	"persona-bot/internal/settings"
	"persona-bot/internal/stats"
	pkgerrors "persona-bot/pkg/errors"
	"persona-bot/pkg/log"
)

// Bot Telegram 桥接器
type Bot struct {
	api        *tgbotapi.BotAPI
	registry   *session.Registry
	dispatcher *session.Dispatcher
	store      *memory.FileStore
	pipeline   *promotion.Pipeline
	exporter   *export.Exporter
	settings   *settings.Store
	stats      *stats.Store
	limiter    *Limiter
	logger     *log.Logger

	allowedUser int64
	maxLen      int
}

// Deps Bot 的协作方
type Deps struct {
	API        *tgbotapi.BotAPI
	Registry   *session.Registry
	Dispatcher *session.Dispatcher
	Store      *memory.FileStore
	Pipeline   *promotion.Pipeline
	Exporter   *export.Exporter
	Settings   *settings.Store
	Stats      *stats.Store
	Limiter    *Limiter
	Logger     *log.Logger
}

// New 创建 Bot；allowedUser 是唯一放行的使用者 ID，maxLen<=0 默认 4096
func New(d Deps, allowedUser int64, maxLen int) *Bot {
	if maxLen <= 0 {
		maxLen = 4096
	}
	logger := d.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Bot{
		api:         d.API,
		registry:    d.Registry,
		dispatcher:  d.Dispatcher,
		store:       d.Store,
		pipeline:    d.Pipeline,
		exporter:    d.Exporter,
		settings:    d.Settings,
		stats:       d.Stats,
		limiter:     d.Limiter,
		logger:      logger,
		allowedUser: allowedUser,
		maxLen:      maxLen,
	}
}

// Run 拉取更新并处理，直到 ctx 取消
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)
	b.logger.Info("Telegram 更新监听已启动", "bot", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if userID != b.allowedUser {
		b.logger.Warn("拒绝未授权使用者", "user", userID)
		return
	}
	if !b.limiter.Allow(userID) {
		b.reply(chatID, "⏳ 訊息有點多，稍等一下再聊吧。")
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	b.sendTyping(chatID)

	start := time.Now()
	answer, err := b.dispatcher.Ask(ctx, chatID, msg.Text)
	if err != nil {
		b.logger.Error("派发失败", "chat", chatID, "err", err)
		// 失败即终态：废弃本会话，下一条讯息全新建会话
		b.registry.Remove(ctx, chatID)
		b.reply(chatID, dispatchErrorText(err))
		return
	}
	b.logger.Info("回复完成", "chat", chatID, "elapsed", time.Since(start).String())

	b.sendChunked(chatID, answer)
	b.persistTurn(chatID, msg.Text, answer)
}

// persistTurn 回复送出后把这一轮写入当日日志并更新统计
func (b *Bot) persistTurn(userID int64, userText, answer string) {
	importance, important := detectImportance(userText)
	e := memory.Entry{
		Time:       time.Now().Format("15:04"),
		Label:      "對話",
		Summary:    buildSummary(userText, answer),
		Importance: importance,
		Important:  important,
	}
	if err := b.store.AppendEntry(userID, e); err != nil {
		b.logger.Error("记忆落盘失败", "user", userID, "err", err)
		return
	}
	if err := b.stats.RecordMessage(context.Background(), userID, important); err != nil {
		b.logger.Error("统计更新失败", "user", userID, "err", err)
	}
}

// sendChunked 超长回复按上限切块逐条发送
func (b *Bot) sendChunked(chatID int64, text string) {
	for _, chunk := range chunkMessage(text, b.maxLen) {
		b.replyMarkdown(chatID, chunk)
	}
}

// replyMarkdown 先按 Markdown 发送，格式被拒时退回纯文本
func (b *Bot) replyMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Debug("Markdown 发送失败，退回纯文本", "chat", chatID, "err", err)
		b.reply(chatID, text)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error("发送消息失败", "chat", chatID, "err", err)
	}
}

func (b *Bot) sendTyping(chatID int64) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("发送输入状态失败", "chat", chatID, "err", err)
	}
}

// dispatchErrorText 把派发错误翻译成给使用者看的提示
func dispatchErrorText(err error) string {
	switch {
	case pkgerrors.Is(err, pkgerrors.ErrTimeout):
		return "⏰ 這個問題想得太久了，請換個方式再問一次。"
	case session.IsInvalid(err):
		return "😵 剛剛的連線斷掉了，請再說一次。"
	default:
		return fmt.Sprintf("❌ 出了點狀況：%v", err)
	}
}
