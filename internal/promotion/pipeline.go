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

// Package promotion 把每日日志里的五星记忆改写后晋升到长期档案。
// 幂等性依赖条目上的晋升标志：改写成功即落盘，整个过程可任意次重跑。
package promotion

import (
	"context"
	"time"

	"persona-bot/internal/memory"
	"persona-bot/internal/rewrite"
	"persona-bot/pkg/log"
	"persona-bot/pkg/metrics"
)

// StatsRecorder 晋升成功后的统计回写能力（stats.Store 满足）
type StatsRecorder interface {
	RecordPromotion(ctx context.Context, userID int64) error
}

// Pipeline 五星记忆晋升管线
type Pipeline struct {
	store    *memory.FileStore
	rewriter rewrite.Rewriter
	stats    StatsRecorder
	logger   *log.Logger

	now func() time.Time
}

// NewPipeline 创建晋升管线；stats 可为 nil（不回写统计）
func NewPipeline(store *memory.FileStore, rewriter rewrite.Rewriter, stats StatsRecorder, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Nop()
	}
	return &Pipeline{store: store, rewriter: rewriter, stats: stats, logger: logger, now: time.Now}
}

// Run 扫描该使用者全部每日日志（最新在前），把重要性为 5 且未晋升的条目
// 改写为叙事记录写入长期档案，并立即把晋升标志写回日志文件。
// 单条改写失败或 SKIP 不中断其余条目，留待下个周期重试。
func (p *Pipeline) Run(ctx context.Context, userID int64) (int, error) {
	dates, err := p.store.ListLogDates(userID)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, date := range dates {
		d, err := p.store.ReadDailyLog(userID, date)
		if err != nil {
			p.logger.Error("读取日志失败，跳过该日", "user", userID, "date", date, "err", err)
			continue
		}
		if d == nil {
			continue
		}
		for i := range d.Entries {
			e := d.Entries[i]
			if e.Importance != 5 || e.Promoted {
				continue
			}
			if err := ctx.Err(); err != nil {
				return promoted, err
			}
			if p.promoteOne(ctx, userID, date, i, e) {
				promoted++
			}
		}
	}
	if promoted > 0 {
		p.logger.Info("晋升完成", "user", userID, "promoted", promoted)
	}
	return promoted, nil
}

// promoteOne 晋升单条记录：改写 → 追加档案 → 标志落盘
func (p *Pipeline) promoteOne(ctx context.Context, userID int64, date string, idx int, e memory.Entry) bool {
	profile, err := p.store.LoadProfile(userID)
	if err != nil {
		p.logger.Error("读取长期档案失败", "user", userID, "err", err)
		metrics.PromotionTotal.WithLabelValues("failed").Inc()
		return false
	}

	line, skip, err := p.rewriter.Rewrite(ctx, e.Summary, profile)
	if err != nil {
		// 改写服务故障降级为"本周期不晋升"，标志保持未设，下次重试
		p.logger.Warn("改写失败，条目留待下次", "user", userID, "date", date, "time", e.Time, "err", err)
		metrics.PromotionTotal.WithLabelValues("failed").Inc()
		return false
	}
	if skip {
		p.logger.Debug("模型判断无需晋升", "user", userID, "date", date, "time", e.Time)
		metrics.PromotionTotal.WithLabelValues("skipped").Inc()
		return false
	}

	if err := p.store.AppendProfileSection(userID, p.now().Format("2006-01-02"), line); err != nil {
		p.logger.Error("写入长期档案失败", "user", userID, "err", err)
		metrics.PromotionTotal.WithLabelValues("failed").Inc()
		return false
	}

	// 标志立即落盘：中途崩溃也不会重复晋升该条
	err = p.store.UpdateDailyLog(userID, date, func(d *memory.DailyLog) bool {
		if idx >= len(d.Entries) || d.Entries[idx].Time != e.Time {
			return false
		}
		d.Entries[idx].Promoted = true
		return true
	})
	if err != nil {
		p.logger.Error("晋升标志落盘失败", "user", userID, "date", date, "err", err)
	}
	metrics.PromotionTotal.WithLabelValues("promoted").Inc()
	if p.stats != nil {
		if err := p.stats.RecordPromotion(ctx, userID); err != nil {
			p.logger.Warn("晋升统计回写失败", "user", userID, "err", err)
		}
	}
	p.logger.Info("记忆已晋升", "user", userID, "date", date, "time", e.Time)
	return true
}
