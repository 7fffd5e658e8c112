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

// Package export 把一位使用者的每日日志与长期档案打包成 JSON 导出文件。
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"persona-bot/internal/memory"
	"persona-bot/pkg/errors"
	"persona-bot/pkg/log"
)

// Bundle 导出文件的顶层结构
type Bundle struct {
	UserID     int64       `json:"userId"`
	ExportedAt string      `json:"exportedAt"` // RFC3339
	Profile    string      `json:"profile"`
	Days       []DayExport `json:"days"` // 新到旧
}

// DayExport 单日记录
type DayExport struct {
	Date    string        `json:"date"`
	Entries []EntryExport `json:"entries"`
}

// EntryExport 单条互动
type EntryExport struct {
	Time       string   `json:"time"`
	Topics     []string `json:"topics,omitempty"`
	Summary    string   `json:"summary"`
	Importance int      `json:"importance"`
	Important  bool     `json:"important,omitempty"`
	Promoted   bool     `json:"promoted,omitempty"`
}

// Exporter 导出器；outDir 为导出文件目录
type Exporter struct {
	store  *memory.FileStore
	outDir string
	logger *log.Logger
	now    func() time.Time
}

func NewExporter(store *memory.FileStore, outDir string, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.Nop()
	}
	return &Exporter{store: store, outDir: outDir, logger: logger, now: time.Now}
}

// Export 打包并写出导出文件，返回文件路径与内容
func (e *Exporter) Export(ctx context.Context, userID int64) (string, *Bundle, error) {
	b, err := e.Build(ctx, userID)
	if err != nil {
		return "", nil, err
	}

	if err := os.MkdirAll(e.outDir, 0o755); err != nil {
		return "", nil, errors.Wrap(err, "ensure export dir")
	}
	name := fmt.Sprintf("export-%d-%s-%s.json", userID, e.now().Format("2006-01-02"), uuid.NewString()[:8])
	path := filepath.Join(e.outDir, name)

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", nil, errors.Wrap(err, "marshal export")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", nil, errors.Wrapf(errors.ErrFileIO, "write export: %v", err)
	}

	e.logger.Info("记忆导出完成", "user", userID, "file", name, "days", len(b.Days))
	return path, b, nil
}

// Build 只组装不落盘
func (e *Exporter) Build(ctx context.Context, userID int64) (*Bundle, error) {
	profile, err := e.store.LoadProfile(userID)
	if err != nil {
		return nil, err
	}
	dates, err := e.store.ListLogDates(userID)
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		UserID:     userID,
		ExportedAt: e.now().Format(time.RFC3339),
		Profile:    profile,
	}
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dl, err := e.store.ReadDailyLog(userID, date)
		if err != nil {
			e.logger.Error("读取日志失败，导出跳过该日", "user", userID, "date", date, "err", err)
			continue
		}
		if dl == nil {
			continue
		}
		day := DayExport{Date: date}
		for _, en := range dl.Entries {
			day.Entries = append(day.Entries, EntryExport{
				Time:       en.Time,
				Topics:     en.Topics,
				Summary:    en.Summary,
				Importance: en.Importance,
				Important:  en.Important,
				Promoted:   en.Promoted,
			})
		}
		b.Days = append(b.Days, day)
	}
	return b, nil
}

// Summary 导出结果的一句话摘要，回复给使用者
func Summary(b *Bundle) string {
	total := 0
	promoted := 0
	for _, d := range b.Days {
		total += len(d.Entries)
		for _, en := range d.Entries {
			if en.Promoted {
				promoted++
			}
		}
	}
	return fmt.Sprintf("📦 已導出 %d 天、%d 條記錄（其中 %d 條已寫入長期記憶）", len(b.Days), total, promoted)
}
