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
	"fmt"
	"sync"
	"time"

	pkgerrors "persona-bot/pkg/errors"
	"persona-bot/pkg/log"
	"persona-bot/pkg/metrics"
)

// MessageRef 进度消息引用
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// ProgressSink 进度提示能力（外部协作方，如聊天传输层）
type ProgressSink interface {
	Post(ctx context.Context, chatID int64, text string) (MessageRef, error)
	Update(ctx context.Context, ref MessageRef, text string) error
	Clear(ctx context.Context, ref MessageRef) error
}

// 思考中提示轮换的表情
var thinkingEmojis = []string{"🤔", "💭", "⏳", "🔍", "💡", "🧠", "⚙️", "🔄"}

// Dispatcher 请求派发器：有界等待 + 心跳进度 + 失效后恰好一次重建重试
type Dispatcher struct {
	registry *Registry
	sink     ProgressSink
	logger   *log.Logger

	askTimeout time.Duration
	heartbeat  time.Duration
}

// NewDispatcher 创建派发器；askTimeout<=0 默认 180s，heartbeat<=0 默认 30s
func NewDispatcher(registry *Registry, sink ProgressSink, askTimeout, heartbeat time.Duration, logger *log.Logger) *Dispatcher {
	if askTimeout <= 0 {
		askTimeout = 180 * time.Second
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Dispatcher{
		registry:   registry,
		sink:       sink,
		logger:     logger,
		askTimeout: askTimeout,
		heartbeat:  heartbeat,
	}
}

// Ask 把使用者消息发给该会话的 LLM session 并返回回复文本。
// 同一会话内请求串行（单飞）；会话失效类错误允许恰好一次重建重试，
// 超时与其余错误直接向上传播。记忆落盘由调用方负责。
func (d *Dispatcher) Ask(ctx context.Context, chatID int64, prompt string) (string, error) {
	lock := d.registry.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	defer func() {
		metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}()

	s, err := d.registry.GetOrCreate(ctx, chatID)
	if err != nil {
		metrics.DispatchTotal.WithLabelValues("error").Inc()
		return "", err
	}

	// 最多一次自动重建：用显式循环守住上限，便于核对不变量
	const maxRebuilds = 1
	for rebuilds := 0; ; rebuilds++ {
		reply, err := d.askOnce(ctx, chatID, s.Handle, prompt)
		if err == nil {
			metrics.DispatchTotal.WithLabelValues("ok").Inc()
			return reply, nil
		}
		if errors.Is(err, pkgerrors.ErrTimeout) {
			// 超时是终态：不重试，避免重复产生副作用的请求
			metrics.DispatchTotal.WithLabelValues("timeout").Inc()
			return "", err
		}
		if !IsInvalid(err) || rebuilds >= maxRebuilds {
			if IsInvalid(err) {
				metrics.DispatchTotal.WithLabelValues("invalid").Inc()
			} else {
				metrics.DispatchTotal.WithLabelValues("error").Inc()
			}
			return "", err
		}

		d.logger.Warn("会话失效，重建后重试一次", "chat", chatID, "err", err)
		metrics.SessionRebuildTotal.Inc()
		d.registry.Remove(ctx, chatID)
		s, err = d.registry.GetOrCreate(ctx, chatID)
		if err != nil {
			metrics.DispatchTotal.WithLabelValues("error").Inc()
			return "", err
		}
		d.replayToday(chatID, s.Handle)
	}
}

// askOnce 单次发送：全程心跳，任一退出路径都清掉进度消息
func (d *Dispatcher) askOnce(ctx context.Context, chatID int64, h *Handle, prompt string) (string, error) {
	stop := d.startHeartbeat(ctx, chatID)
	defer stop()
	return d.registry.transport.SendAndWait(ctx, h, prompt, d.askTimeout)
}

// startHeartbeat 发出"思考中"进度消息并按固定间隔轮换表情与秒数；
// 返回的 stop 幂等，负责停掉计时器并清除进度消息。
func (d *Dispatcher) startHeartbeat(ctx context.Context, chatID int64) func() {
	if d.sink == nil {
		return func() {}
	}
	ref, err := d.sink.Post(ctx, chatID, "🤔 正在思考中...")
	if err != nil {
		d.logger.Error("发送思考中消息失败", "chat", chatID, "err", err)
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(d.heartbeat)
		defer ticker.Stop()
		counter := 0
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				counter++
				emoji := thinkingEmojis[counter%len(thinkingEmojis)]
				elapsed := counter * int(d.heartbeat/time.Second)
				text := fmt.Sprintf("%s 正在思考中... (%d秒)", emoji, elapsed)
				if err := d.sink.Update(ctx, ref, text); err != nil {
					d.logger.Debug("更新思考中消息失败", "chat", chatID, "err", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			if err := d.sink.Clear(context.Background(), ref); err != nil {
				d.logger.Debug("清除思考中消息失败", "chat", chatID, "err", err)
			}
		})
	}
}

// replayToday 重建后把今日已有对话作为上下文单向回放到新会话。
// 分离任务：失败只记日志，调用方不等待。
func (d *Dispatcher) replayToday(chatID int64, h *Handle) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		today, err := d.registry.store.LoadTodayLog(chatID)
		if err != nil || today == "" {
			if err != nil {
				d.logger.Error("读取今日对话失败，跳过回放", "chat", chatID, "err", err)
			}
			return
		}
		prompt := "以下是今天稍早的對話記錄，請作為上下文理解，不需要回覆：\n\n" + today
		if err := d.registry.transport.Send(ctx, h, prompt); err != nil {
			d.logger.Error("回放今日上下文失败", "chat", chatID, "err", err)
			return
		}
		d.logger.Info("今日上下文已回放到新会话", "chat", chatID)
	}()
}
