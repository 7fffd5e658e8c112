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

// Entry 单条互动记录；属于某一天的 DailyLog
type Entry struct {
	Time       string   // 时分戳，如 "14:30"
	Label      string   // 头部自由标签，默认 "對話"
	Topics     []string // 主题标签，保持顺序
	Summary    string   // 对话摘要
	Importance int      // 重要性 1-5
	Important  bool     // 是否带 #重要 标记
	Promoted   bool     // 是否已写入长期记忆（晋升幂等标志）
}

// DailyLog 一位使用者某个日历日的追加式记录，条目顺序即时间顺序
type DailyLog struct {
	Date    string // yyyy-mm-dd
	Entries []Entry
}

// HasImportant 日志内是否存在任一 #重要 条目；整个文件按此决定保留
func (d *DailyLog) HasImportant() bool {
	for _, e := range d.Entries {
		if e.Important {
			return true
		}
	}
	return false
}
