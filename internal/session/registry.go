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
	"sync"
	"time"

	"persona-bot/internal/memory"
	"persona-bot/pkg/log"
)

// Session 每个会话标识至多存活一个；由 Registry 独占持有
type Session struct {
	ChatID    int64
	Handle    *Handle
	CreatedAt time.Time
}

// SystemPromptFunc 组合系统提示（persona + 记忆），由 persona 包提供
type SystemPromptFunc func(memories string) string

// Registry 会话注册表：惰性建会话，失效后移除重建，关停时统一销毁。
// 显式对象 + 注入依赖，取代进程级全局 map。
type Registry struct {
	transport    Transport
	store        *memory.FileStore
	systemPrompt SystemPromptFunc
	model        string
	logger       *log.Logger

	mu        sync.Mutex
	sessions  map[int64]*Session
	chatLocks map[int64]*sync.Mutex
}

// NewRegistry 创建会话注册表
func NewRegistry(transport Transport, store *memory.FileStore, systemPrompt SystemPromptFunc, model string, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Nop()
	}
	return &Registry{
		transport:    transport,
		store:        store,
		systemPrompt: systemPrompt,
		model:        model,
		logger:       logger,
		sessions:     make(map[int64]*Session),
		chatLocks:    make(map[int64]*sync.Mutex),
	}
}

// chatLock 返回该会话的串行化锁：同一会话的请求单飞，不并发建/换会话
func (r *Registry) chatLock(chatID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.chatLocks[chatID]
	if !ok {
		l = &sync.Mutex{}
		r.chatLocks[chatID] = l
	}
	return l
}

// GetOrCreate 返回已注册会话；没有则用 persona + 完整记忆上下文新建并注册。
// 在显式移除前，多次调用返回同一实例。
func (r *Registry) GetOrCreate(ctx context.Context, chatID int64) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[chatID]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	r.logger.Info("建立新会话", "chat", chatID)
	memories, err := r.store.LoadFullContext(chatID)
	if err != nil {
		return nil, err
	}
	h, err := r.transport.Create(ctx, r.model, r.systemPrompt(memories))
	if err != nil {
		return nil, err
	}

	s := &Session{ChatID: chatID, Handle: h, CreatedAt: time.Now()}
	r.mu.Lock()
	defer r.mu.Unlock()
	if exist, ok := r.sessions[chatID]; ok {
		// 竞态下保留先注册者，销毁多余句柄
		go func() { _ = r.transport.Destroy(context.Background(), h) }()
		return exist, nil
	}
	r.sessions[chatID] = s
	return s, nil
}

// Get 返回已注册会话，没有则为 nil
func (r *Registry) Get(chatID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[chatID]
}

// Remove 尽力销毁句柄（失败只记日志），但无论结果如何都移除注册项，
// 避免后续请求粘在已死句柄上。
func (r *Registry) Remove(ctx context.Context, chatID int64) {
	r.mu.Lock()
	s, ok := r.sessions[chatID]
	delete(r.sessions, chatID)
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := r.transport.Destroy(ctx, s.Handle); err != nil {
		r.logger.Error("销毁会话失败", "chat", chatID, "session", s.Handle.ID, "err", err)
	}
	r.logger.Info("会话已移除", "chat", chatID)
}

// Len 当前存活会话数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown 关停时销毁全部存活会话
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[int64]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		if err := r.transport.Destroy(ctx, s.Handle); err != nil {
			r.logger.Error("关停销毁会话失败", "chat", s.ChatID, "err", err)
		}
	}
	r.logger.Info("全部会话已清理", "count", len(sessions))
}
