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

// Package jobs 后台排程：记忆晋升、分类、过期清理与限流器回收。
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"persona-bot/internal/bot"
	"persona-bot/internal/classify"
	"persona-bot/internal/memory"
	"persona-bot/internal/promotion"
	"persona-bot/pkg/log"
)

// Specs 各任务的 cron 表达式；空串使用默认
type Specs struct {
	Promotion      string // 默认 */5 * * * *
	Classification string // 默认 */5 * * * *
	Retention      string // 默认 0 3 * * *
}

func (s Specs) withDefaults() Specs {
	if s.Promotion == "" {
		s.Promotion = "*/5 * * * *"
	}
	if s.Classification == "" {
		s.Classification = "*/5 * * * *"
	}
	if s.Retention == "" {
		s.Retention = "0 3 * * *"
	}
	return s
}

// Runner 后台任务运行器；单用户 Bot，任务都针对 userID 执行
type Runner struct {
	cron   *cron.Cron
	logger *log.Logger
}

// Deps 排程任务的协作方
type Deps struct {
	Store      *memory.FileStore
	Pipeline   *promotion.Pipeline
	Classifier *classify.Classifier
	Limiter    *bot.Limiter
	Logger     *log.Logger
}

// NewRunner 注册全部排程任务；retentionDays<=0 默认 30
func NewRunner(specs Specs, d Deps, userID int64, retentionDays int) (*Runner, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	logger := d.Logger
	if logger == nil {
		logger = log.Nop()
	}
	specs = specs.withDefaults()

	c := cron.New()

	if _, err := c.AddFunc(specs.Promotion, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		n, err := d.Pipeline.Run(ctx, userID)
		if err != nil {
			logger.Error("晋升排程失败", "user", userID, "err", err)
			return
		}
		if n > 0 {
			logger.Info("晋升排程完成", "user", userID, "promoted", n)
		}
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc(specs.Classification, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := d.Classifier.Run(ctx, userID); err != nil {
			logger.Error("分类排程失败", "user", userID, "err", err)
		}
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc(specs.Retention, func() {
		n, err := d.Store.PruneExpired(userID, retentionDays)
		if err != nil {
			logger.Error("清理排程失败", "user", userID, "err", err)
			return
		}
		if n > 0 {
			logger.Info("过期日志已清理", "user", userID, "deleted", n)
		}
		if d.Limiter != nil {
			d.Limiter.GC(24 * time.Hour)
		}
	}); err != nil {
		return nil, err
	}

	return &Runner{cron: c, logger: logger}, nil
}

// Start 启动排程（非阻塞）
func (r *Runner) Start() {
	r.cron.Start()
	r.logger.Info("后台排程已启动", "jobs", len(r.cron.Entries()))
}

// Stop 停止排程并等待运行中的任务结束
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("后台排程已停止")
}
