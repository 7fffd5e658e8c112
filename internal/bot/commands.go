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

package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"persona-bot/internal/export"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	switch msg.Command() {
	case "start":
		b.reply(chatID, "👋 嗨，我在。直接跟我說話就可以了。\n\n"+
			"/new 重新開始對話\n/status 查看目前狀態\n/stats 互動統計\n"+
			"/export 導出記憶\n/process_memory 立即整理長期記憶")
	case "new":
		b.registry.Remove(ctx, chatID)
		b.reply(chatID, "🔄 好，重新開始。之前的長期記憶還在。")
	case "status":
		b.cmdStatus(ctx, chatID, userID)
	case "stats":
		b.cmdStats(ctx, chatID, userID)
	case "export":
		b.cmdExport(ctx, chatID, userID)
	case "process_memory":
		b.cmdProcessMemory(ctx, chatID, userID)
	default:
		b.reply(chatID, "🤷 不認識這個指令，試試 /start 看說明。")
	}
}

func (b *Bot) cmdStatus(ctx context.Context, chatID, userID int64) {
	var lines []string
	if s := b.registry.Get(chatID); s != nil {
		lines = append(lines, fmt.Sprintf("🟢 會話進行中（建立於 %s）", s.CreatedAt.Format("15:04:05")))
	} else {
		lines = append(lines, "⚪ 目前沒有進行中的會話，下一則訊息會自動開始")
	}

	prefs, err := b.settings.Load(ctx, userID)
	if err == nil {
		lines = append(lines, fmt.Sprintf("語言：%s / 風格：%s", prefs.Language, prefs.ResponseStyle))
	}

	dates, err := b.store.ListLogDates(userID)
	if err == nil {
		lines = append(lines, fmt.Sprintf("記憶日誌：%d 天", len(dates)))
	}
	b.reply(chatID, strings.Join(lines, "\n"))
}

func (b *Bot) cmdStats(ctx context.Context, chatID, userID int64) {
	st, err := b.stats.Load(ctx, userID)
	if err != nil {
		b.logger.Error("读取统计失败", "user", userID, "err", err)
		b.reply(chatID, "❌ 統計讀取失敗，稍後再試。")
		return
	}
	text := fmt.Sprintf("📊 互動統計\n訊息：%d\n重要記錄：%d\n已寫入長期記憶：%d",
		st.Messages, st.ImportantNotes, st.Promotions)
	if st.LastInteraction != "" {
		text += "\n最近互動：" + st.LastInteraction
	}
	b.reply(chatID, text)
}

func (b *Bot) cmdExport(ctx context.Context, chatID, userID int64) {
	path, bundle, err := b.exporter.Export(ctx, userID)
	if err != nil {
		b.logger.Error("导出失败", "user", userID, "err", err)
		b.reply(chatID, "❌ 導出失敗，稍後再試。")
		return
	}
	b.reply(chatID, export.Summary(bundle))

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	if _, err := b.api.Send(doc); err != nil {
		b.logger.Error("导出文件发送失败", "user", userID, "err", err)
	}
}

func (b *Bot) cmdProcessMemory(ctx context.Context, chatID, userID int64) {
	b.reply(chatID, "🧠 開始整理長期記憶...")
	promoted, err := b.pipeline.Run(ctx, userID)
	if err != nil {
		b.logger.Error("晋升管线失败", "user", userID, "err", err)
		b.reply(chatID, "❌ 整理中途出了狀況，下個排程會接著補。")
		return
	}
	if promoted == 0 {
		b.reply(chatID, "✅ 沒有新的五星記錄需要寫入。")
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ 已寫入 %d 條到長期記憶。", promoted))
}
