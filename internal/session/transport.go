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
	"errors"
	"strings"
	"time"

	pkgerrors "persona-bot/pkg/errors"
)

// Handle 外部会话服务的不透明句柄
type Handle struct {
	ID string
}

// Transport 会话传输能力（外部协作方）：建立/问答/单向发送/销毁
type Transport interface {
	// Create 以系统提示建立新会话
	Create(ctx context.Context, model, systemPrompt string) (*Handle, error)
	// SendAndWait 发送并有界等待回复；超时返回 ErrTimeout
	SendAndWait(ctx context.Context, h *Handle, prompt string, timeout time.Duration) (string, error)
	// Send 单向发送，不等待回复（重建后回放上下文用）
	Send(ctx context.Context, h *Handle, prompt string) error
	// Destroy 销毁会话句柄
	Destroy(ctx context.Context, h *Handle) error
}

// 传输层报会话失效的错误签名（句柄必须重建）
var invalidMarkers = []string{
	"session not found",
	"connection disposed",
	"pending response rejected",
}

// IsInvalid 判断错误是否为会话失效类：命中则允许一次性重建重试
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, pkgerrors.ErrSessionInvalid) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range invalidMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
