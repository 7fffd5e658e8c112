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

package memory

import (
	"strings"
)

// 每日记忆文件的固定格式标记（与既有存档兼容，不可改动）
const (
	entryHeaderPrefix = "## "
	keyTopics         = "主題"
	keySummary        = "摘要"
	keyImportance     = "重要性"
	keyMark           = "標記"
	keyStatus         = "狀態"
	importantTag      = "#重要"
	promotedTag       = "[已寫入長期記憶]"
	starGlyph         = "⭐"
	defaultLabel      = "對話"
)

// ParseDailyLog 按条目头边界解析每日记忆文件，顺序保持文件顺序。
// 文件头（"# ..." 标题行）与无法识别的行被跳过；容错优先于报错。
func ParseDailyLog(date, content string) *DailyLog {
	log := &DailyLog{Date: date}
	var cur *Entry

	flush := func() {
		if cur != nil {
			log.Entries = append(log.Entries, *cur)
			cur = nil
		}
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, entryHeaderPrefix) {
			flush()
			t, label := parseEntryHeader(strings.TrimPrefix(line, entryHeaderPrefix))
			cur = &Entry{Time: t, Label: label, Importance: 3}
			continue
		}
		if cur == nil {
			continue
		}
		switch {
		case hasKey(line, keyTopics):
			raw := keyValue(line, keyTopics)
			for _, t := range strings.Split(raw, ",") {
				if t = strings.TrimSpace(t); t != "" {
					cur.Topics = append(cur.Topics, t)
				}
			}
		case hasKey(line, keySummary):
			cur.Summary = keyValue(line, keySummary)
		case hasKey(line, keyImportance):
			if n := strings.Count(keyValue(line, keyImportance), starGlyph); n >= 1 && n <= 5 {
				cur.Importance = n
			}
		case hasKey(line, keyMark):
			if strings.Contains(line, importantTag) {
				cur.Important = true
			}
		case hasKey(line, keyStatus):
			if strings.Contains(line, promotedTag) {
				cur.Promoted = true
			}
		}
	}
	flush()
	return log
}

// parseEntryHeader 解析 "HH:MM - 標籤" 形式的条目头
func parseEntryHeader(rest string) (timeOfDay, label string) {
	timeOfDay, label, found := strings.Cut(rest, " - ")
	if !found {
		return strings.TrimSpace(rest), defaultLabel
	}
	return strings.TrimSpace(timeOfDay), strings.TrimSpace(label)
}

// hasKey 判断 "- <key>：" 或 "- <key>:" 形式的键行
func hasKey(line, key string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "- "+key+"：") || strings.HasPrefix(trimmed, "- "+key+":")
}

// keyValue 取键行的值部分
func keyValue(line, key string) string {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimPrefix(trimmed, "- "+key)
	trimmed = strings.TrimPrefix(trimmed, "：")
	trimmed = strings.TrimPrefix(trimmed, ":")
	return strings.TrimSpace(trimmed)
}

// RenderEntry 渲染单条记录为文件块；与 ParseDailyLog 往返一致
func RenderEntry(e Entry) string {
	var b strings.Builder
	label := e.Label
	if label == "" {
		label = defaultLabel
	}
	b.WriteString("\n## " + e.Time + " - " + label + "\n")
	if len(e.Topics) > 0 {
		b.WriteString("- " + keyTopics + "：" + strings.Join(e.Topics, ", ") + "\n")
	}
	b.WriteString("- " + keySummary + "：" + e.Summary + "\n")
	n := e.Importance
	if n < 1 {
		n = 1
	} else if n > 5 {
		n = 5
	}
	b.WriteString("- " + keyImportance + "：" + strings.Repeat(starGlyph, n) + "\n")
	if e.Important {
		b.WriteString("- " + keyMark + "：" + importantTag + "\n")
	}
	if e.Promoted {
		b.WriteString("- " + keyStatus + "：" + promotedTag + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

// RenderDailyLog 渲染整份每日日志（文件头 + 全部条目）。
// 晋升标志落盘时整文件重写，避免字符串拼接式的原位修改。
func RenderDailyLog(d *DailyLog) string {
	var b strings.Builder
	b.WriteString(logHeader(d.Date))
	for _, e := range d.Entries {
		b.WriteString(RenderEntry(e))
	}
	return b.String()
}

func logHeader(date string) string {
	return "# " + date + " 對話記錄\n\n"
}
