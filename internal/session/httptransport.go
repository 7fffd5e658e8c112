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

package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	pkgerrors "persona-bot/pkg/errors"
	"persona-bot/pkg/log"
)

// HTTPTransport 通过会话型 LLM 服务的 HTTP API 管理远端会话。
// 服务端按 session id 维护对话状态，这里只保留句柄。
type HTTPTransport struct {
	client  *resty.Client
	baseURL string
	logger  *log.Logger
}

// NewHTTPTransport 创建 HTTP 会话传输
func NewHTTPTransport(baseURL, apiKey string, logger *log.Logger) *HTTPTransport {
	if logger == nil {
		logger = log.Nop()
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(0)
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTPTransport{
		client:  client,
		baseURL: baseURL,
		logger:  logger,
	}
}

type createSessionRequest struct {
	SessionID    string `json:"session_id"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
}

type sendRequest struct {
	Prompt string `json:"prompt"`
	Wait   bool   `json:"wait"`
}

type sendResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Create 新建远端会话并返回句柄
func (t *HTTPTransport) Create(ctx context.Context, model, systemPrompt string) (*Handle, error) {
	id := uuid.NewString()
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(createSessionRequest{SessionID: id, Model: model, SystemPrompt: systemPrompt}).
		Post("/v1/sessions")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create session")
	}
	if resp.IsError() {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrSessionInvalid, "create session: status %d: %s", resp.StatusCode(), resp.String())
	}
	t.logger.Info("远端会话已创建", "session", id, "model", model)
	return &Handle{ID: id}, nil
}

// SendAndWait 发送并等待回复；有界等待，超时返回 ErrTimeout
func (t *HTTPTransport) SendAndWait(ctx context.Context, h *Handle, prompt string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out sendResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(sendRequest{Prompt: prompt, Wait: true}).
		SetResult(&out).
		Post(fmt.Sprintf("/v1/sessions/%s/messages", h.ID))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", pkgerrors.Wrap(pkgerrors.ErrTimeout, "send and wait")
		}
		return "", pkgerrors.Wrap(err, "send and wait")
	}
	if err := t.classifyStatus(resp); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", t.classifyBody(out.Error)
	}
	return out.Content, nil
}

// Send 单向发送，不等待回复
func (t *HTTPTransport) Send(ctx context.Context, h *Handle, prompt string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(sendRequest{Prompt: prompt, Wait: false}).
		Post(fmt.Sprintf("/v1/sessions/%s/messages", h.ID))
	if err != nil {
		return pkgerrors.Wrap(err, "send")
	}
	return t.classifyStatus(resp)
}

// Destroy 销毁远端会话
func (t *HTTPTransport) Destroy(ctx context.Context, h *Handle) error {
	resp, err := t.client.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/v1/sessions/%s", h.ID))
	if err != nil {
		return pkgerrors.Wrap(err, "destroy session")
	}
	// 会话本就不存在视为成功
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	if resp.IsError() {
		return fmt.Errorf("destroy session: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// classifyStatus 把 HTTP 状态映射成可判定的错误：404/410 代表会话已失效
func (t *HTTPTransport) classifyStatus(resp *resty.Response) error {
	switch {
	case resp.StatusCode() == http.StatusNotFound, resp.StatusCode() == http.StatusGone:
		return pkgerrors.Wrapf(pkgerrors.ErrSessionInvalid, "status %d: %s", resp.StatusCode(), resp.String())
	case resp.StatusCode() == http.StatusRequestTimeout, resp.StatusCode() == http.StatusGatewayTimeout:
		return pkgerrors.Wrapf(pkgerrors.ErrTimeout, "status %d", resp.StatusCode())
	case resp.IsError():
		return fmt.Errorf("session service: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// classifyBody 服务端在 200 内返回的错误串同样要识别失效语义
func (t *HTTPTransport) classifyBody(msg string) error {
	lower := strings.ToLower(msg)
	for _, m := range invalidMarkers {
		if strings.Contains(lower, m) {
			return pkgerrors.Wrapf(pkgerrors.ErrSessionInvalid, "session service: %s", msg)
		}
	}
	if strings.Contains(lower, "timeout") {
		return pkgerrors.Wrapf(pkgerrors.ErrTimeout, "session service: %s", msg)
	}
	return fmt.Errorf("session service: %s", msg)
}
