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
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"persona-bot/internal/memory"
	"persona-bot/internal/session"
	"persona-bot/pkg/errors"
	"persona-bot/pkg/log"
)

// offlineTransport 把所有 Telegram API 调用就地应答，并记录调用方法
type offlineTransport struct {
	mu      sync.Mutex
	methods []string
}

func (o *offlineTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	o.mu.Lock()
	o.methods = append(o.methods, req.URL.Path)
	o.mu.Unlock()
	body := `{"ok":true,"result":{"message_id":1}}`
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}, nil
}

func newOfflineAPI(t *testing.T) (*tgbotapi.BotAPI, *offlineTransport) {
	t.Helper()
	rt := &offlineTransport{}
	api, err := tgbotapi.NewBotAPIWithClient("test-token", tgbotapi.APIEndpoint, &http.Client{Transport: rt})
	if err != nil {
		t.Fatalf("offline api: %v", err)
	}
	return api, rt
}

// timeoutTransport 建会话成功，问答永远超时
type timeoutTransport struct{}

func (timeoutTransport) Create(ctx context.Context, model, systemPrompt string) (*session.Handle, error) {
	return &session.Handle{ID: "h1"}, nil
}

func (timeoutTransport) SendAndWait(ctx context.Context, h *session.Handle, prompt string, timeout time.Duration) (string, error) {
	return "", errors.Wrap(errors.ErrTimeout, "ask")
}

func (timeoutTransport) Send(ctx context.Context, h *session.Handle, prompt string) error {
	return nil
}

func (timeoutTransport) Destroy(ctx context.Context, h *session.Handle) error { return nil }

func TestHandleMessage_TimeoutDiscardsSession(t *testing.T) {
	api, _ := newOfflineAPI(t)
	store := memory.NewFileStore(t.TempDir(), 2, nil)
	registry := session.NewRegistry(timeoutTransport{}, store,
		func(memories string) string { return "" }, "gpt-test", log.Nop())
	dispatcher := session.NewDispatcher(registry, nil, time.Second, time.Hour, log.Nop())

	b := New(Deps{
		API:        api,
		Registry:   registry,
		Dispatcher: dispatcher,
		Store:      store,
		Limiter:    NewLimiter(10, time.Minute),
		Logger:     log.Nop(),
	}, 7, 0)

	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: 7},
		Chat:      &tgbotapi.Chat{ID: 7},
		Text:      "還在嗎",
	}
	b.handleMessage(context.Background(), msg)

	// 超时是终态：死会话必须注销，下一条讯息才会全新建会话
	if s := registry.Get(7); s != nil {
		t.Fatalf("session should be discarded after terminal failure, still registered: %+v", s)
	}
}

func TestHandleMessage_RejectsOtherUsers(t *testing.T) {
	api, rt := newOfflineAPI(t)
	store := memory.NewFileStore(t.TempDir(), 2, nil)
	registry := session.NewRegistry(timeoutTransport{}, store,
		func(memories string) string { return "" }, "gpt-test", log.Nop())
	dispatcher := session.NewDispatcher(registry, nil, time.Second, time.Hour, log.Nop())

	b := New(Deps{
		API:        api,
		Registry:   registry,
		Dispatcher: dispatcher,
		Store:      store,
		Limiter:    NewLimiter(10, time.Minute),
		Logger:     log.Nop(),
	}, 7, 0)

	before := len(rt.methods)
	b.handleMessage(context.Background(), &tgbotapi.Message{
		MessageID: 2,
		From:      &tgbotapi.User{ID: 999},
		Chat:      &tgbotapi.Chat{ID: 999},
		Text:      "hi",
	})
	if got := len(rt.methods) - before; got != 0 {
		t.Errorf("unauthorized user must be ignored silently, %d API calls made", got)
	}
	if s := registry.Get(999); s != nil {
		t.Errorf("no session should exist for unauthorized user")
	}
}
