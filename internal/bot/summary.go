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

package bot

import "strings"

// 片段截断长度（按 rune 计）
const summaryFragmentLen = 50

// 命中即记五星并打重要标记的关键词
var importantKeywords = []string{"記住", "记住", "重要", "別忘了", "别忘了"}

// buildSummary 把一轮对话压成日志摘要行
func buildSummary(userText, reply string) string {
	return "使用者: " + truncateRunes(userText, summaryFragmentLen) +
		" | 回應: " + truncateRunes(reply, summaryFragmentLen)
}

// detectImportance 根据消息内容给出重要性与重要标记：
// 命中关键词为五星重要；长消息算三星；其余两星。
func detectImportance(text string) (int, bool) {
	for _, kw := range importantKeywords {
		if strings.Contains(text, kw) {
			return 5, true
		}
	}
	if len([]rune(text)) > 100 {
		return 3, false
	}
	return 2, false
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
