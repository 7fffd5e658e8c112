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

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"persona-bot/internal/session"
)

// telegramSink 把派发器的进度提示落到 Telegram 消息上
type telegramSink struct {
	api *tgbotapi.BotAPI
}

// NewSink 创建接 Telegram 的进度提示实现
func NewSink(api *tgbotapi.BotAPI) session.ProgressSink {
	return &telegramSink{api: api}
}

func (s *telegramSink) Post(ctx context.Context, chatID int64, text string) (session.MessageRef, error) {
	msg, err := s.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return session.MessageRef{}, err
	}
	return session.MessageRef{ChatID: chatID, MessageID: msg.MessageID}, nil
}

func (s *telegramSink) Update(ctx context.Context, ref session.MessageRef, text string) error {
	_, err := s.api.Send(tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text))
	return err
}

func (s *telegramSink) Clear(ctx context.Context, ref session.MessageRef) error {
	_, err := s.api.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID))
	return err
}
