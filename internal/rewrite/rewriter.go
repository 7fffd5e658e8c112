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

// Package rewrite 将每日摘要改写为长期档案的叙事记录。
// 改写方可返回 SKIP 表示该条信息不值得写入长期记忆。
package rewrite

import (
	"context"
	"fmt"
	"strings"

	"persona-bot/internal/model/llm"
	"persona-bot/pkg/errors"
	"persona-bot/pkg/log"
)

// skipSentinel 模型判断无需记录时返回的标记
const skipSentinel = "SKIP"

// Rewriter 叙事改写能力：skip=true 表示模型判断无需写入，line 无效
type Rewriter interface {
	Rewrite(ctx context.Context, summary, existingProfile string) (line string, skip bool, err error)
}

// LLMRewriter 基于 LLM 的改写实现
type LLMRewriter struct {
	client llm.Client
	logger *log.Logger
}

// NewLLMRewriter 创建 LLM 改写器
func NewLLMRewriter(client llm.Client, logger *log.Logger) *LLMRewriter {
	if logger == nil {
		logger = log.Nop()
	}
	return &LLMRewriter{client: client, logger: logger}
}

// Rewrite 调用模型把原始摘要改写成一行叙事记录
func (r *LLMRewriter) Rewrite(ctx context.Context, summary, existingProfile string) (string, bool, error) {
	prompt := buildPrompt(summary, existingProfile)
	raw, err := r.client.GenerateWithContext(ctx, prompt, llm.GenerateOptions{Temperature: 0.7, MaxTokens: 256})
	if err != nil {
		return "", false, errors.Wrapf(errors.ErrRewriteService, "生成记忆描述: %v", err)
	}
	line, skip := cleanResponse(raw)
	if skip {
		r.logger.Debug("模型判断无需写入长期记忆")
		return "", true, nil
	}
	if line == "" {
		return "", false, errors.Wrap(errors.ErrRewriteService, "模型未返回内容")
	}
	return line, false, nil
}

// buildPrompt 组合改写提示：既有档案 + 新摘要 + SKIP 约定
func buildPrompt(summary, existingProfile string) string {
	var b strings.Builder
	b.WriteString("妳正在更新關於使用者的觀察日記。\n\n")
	b.WriteString("**現有記憶內容：**\n")
	b.WriteString(existingProfile)
	b.WriteString("\n\n**新的對話摘要：**\n")
	b.WriteString(summary)
	b.WriteString("\n\n**輸出規則：**\n")
	b.WriteString(fmt.Sprintf("1. 若資訊無關緊要，回傳 \"%s\"。\n", skipSentinel))
	b.WriteString("2. 否則以 \"- \" 開頭輸出一行自然語言的記憶描述。\n")
	return b.String()
}

// cleanResponse 清理模型输出：去掉代码栅栏，识别 SKIP，强制 "- " 前缀
func cleanResponse(raw string) (line string, skip bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if strings.Contains(s, skipSentinel) {
		return "", true
	}
	var kept []string
	for _, l := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		kept = append(kept, l)
	}
	s = strings.TrimSpace(strings.Join(kept, "\n"))
	if s == "" {
		return "", false
	}
	if !strings.HasPrefix(s, "- ") {
		s = "- " + s
	}
	return s, false
}
