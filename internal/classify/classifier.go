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

// Package classify 根据滚动窗口内的对话记录归纳使用模式，
// 整体重生成人格目录下的使用者摘要文档。不触碰 profile.md。
package classify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"persona-bot/internal/memory"
	"persona-bot/pkg/errors"
	"persona-bot/pkg/log"
	"persona-bot/pkg/metrics"
)

// Pattern 窗口内的使用模式统计
type Pattern struct {
	TopicCounts map[string]int
	HourCounts  [24]int
	Total       int
	FirstSeen   string // 窗口内最早的记录日期
}

// Classifier 周期性分类器：解析窗口内日志并重写使用者摘要
type Classifier struct {
	store      *memory.FileStore
	personaDir string
	windowDays int
	logger     *log.Logger
	now        func() time.Time
}

// NewClassifier 创建分类器；windowDays<=0 默认 7 天
func NewClassifier(store *memory.FileStore, personaDir string, windowDays int, logger *log.Logger) *Classifier {
	if windowDays <= 0 {
		windowDays = 7
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Classifier{
		store:      store,
		personaDir: personaDir,
		windowDays: windowDays,
		logger:     logger,
		now:        time.Now,
	}
}

// Run 汇总窗口内的模式并整体重写摘要文档。窗口内零条记录时不动现有文件。
func (c *Classifier) Run(ctx context.Context, userID int64) error {
	p, err := c.Analyze(ctx, userID)
	if err != nil {
		metrics.ClassificationRunTotal.WithLabelValues("error").Inc()
		return err
	}
	if p.Total == 0 {
		c.logger.Info("窗口内无对话记录，跳过分类", "user", userID)
		metrics.ClassificationRunTotal.WithLabelValues("empty").Inc()
		return nil
	}

	doc := c.renderSummary(p)
	path := filepath.Join(c.personaDir, "USER.md")
	if err := os.MkdirAll(c.personaDir, 0o755); err != nil {
		metrics.ClassificationRunTotal.WithLabelValues("error").Inc()
		return errors.Wrap(err, "ensure persona dir")
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		metrics.ClassificationRunTotal.WithLabelValues("error").Inc()
		return errors.Wrapf(errors.ErrFileIO, "write user summary: %v", err)
	}

	c.logger.Info("使用者摘要已重生成", "user", userID, "messages", p.Total)
	metrics.ClassificationRunTotal.WithLabelValues("ok").Inc()
	return nil
}

// Analyze 只做统计，不落盘
func (c *Classifier) Analyze(ctx context.Context, userID int64) (*Pattern, error) {
	p := &Pattern{TopicCounts: make(map[string]int)}

	cutoff := c.now().AddDate(0, 0, -c.windowDays).Format("2006-01-02")
	dates, err := c.store.ListLogDates(userID)
	if err != nil {
		return nil, err
	}

	for _, date := range dates {
		if date < cutoff {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dl, err := c.store.ReadDailyLog(userID, date)
		if err != nil {
			c.logger.Error("读取日志失败，跳过该日", "user", userID, "date", date, "err", err)
			continue
		}
		if dl == nil {
			continue
		}
		if p.FirstSeen == "" || date < p.FirstSeen {
			p.FirstSeen = date
		}
		for _, e := range dl.Entries {
			p.Total++
			if h := parseHour(e.Time); h >= 0 {
				p.HourCounts[h]++
			}
			for _, topic := range e.Topics {
				topic = strings.TrimSpace(topic)
				if topic != "" {
					p.TopicCounts[topic]++
				}
			}
		}
	}
	return p, nil
}

// renderSummary 固定模板：活跃时段 top-3、主题 top-5、总量
func (c *Classifier) renderSummary(p *Pattern) string {
	var b strings.Builder
	b.WriteString("# 使用者互動模式\n\n")
	b.WriteString(fmt.Sprintf("統計窗口：最近 %d 天\n", c.windowDays))
	if p.FirstSeen != "" {
		b.WriteString(fmt.Sprintf("窗口內最早記錄：%s\n", p.FirstSeen))
	}
	b.WriteString(fmt.Sprintf("對話總數：%d\n\n", p.Total))

	b.WriteString("## 活躍時段\n")
	for _, h := range topHours(p.HourCounts, 3) {
		b.WriteString(fmt.Sprintf("- %02d:00-%02d:59（%d 次）\n", h.hour, h.hour, h.count))
	}

	b.WriteString("\n## 常見主題\n")
	topics := topTopics(p.TopicCounts, 5)
	if len(topics) == 0 {
		b.WriteString("- （尚未累積主題標籤）\n")
	}
	for _, t := range topics {
		b.WriteString(fmt.Sprintf("- %s（%d 次）\n", t.name, t.count))
	}
	b.WriteString("\n")
	return b.String()
}

func parseHour(hhmm string) int {
	i := strings.IndexByte(hhmm, ':')
	if i <= 0 {
		return -1
	}
	h, err := strconv.Atoi(hhmm[:i])
	if err != nil || h < 0 || h > 23 {
		return -1
	}
	return h
}

type hourCount struct {
	hour  int
	count int
}

func topHours(counts [24]int, n int) []hourCount {
	var out []hourCount
	for h, c := range counts {
		if c > 0 {
			out = append(out, hourCount{hour: h, count: c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].hour < out[j].hour
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

type topicCount struct {
	name  string
	count int
}

func topTopics(counts map[string]int, n int) []topicCount {
	out := make([]topicCount, 0, len(counts))
	for name, c := range counts {
		out = append(out, topicCount{name: name, count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].name < out[j].name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
