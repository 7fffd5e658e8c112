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

// Package persona 从人格目录装载角色设定文件并组装会话的系统消息。
// 文件内容由使用者维护，这里只负责装载与拼接。
package persona

import (
	"os"
	"path/filepath"
	"strings"

	"persona-bot/pkg/log"
)

// Persona 人格目录的内容快照，按文件名（小写化）索引
type Persona struct {
	Soul     string // SOUL.md 核心性格
	Identity string // IDENTITY.md 身份背景
	Agents   string // AGENTS.md 行为准则
	User     string // USER.md 使用者互动模式摘要
}

// Loader 人格目录装载器
type Loader struct {
	dir    string
	logger *log.Logger
}

func NewLoader(dir string, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Nop()
	}
	return &Loader{dir: dir, logger: logger}
}

// Load 装载目录下已知的人格文件；缺失的文件留空，不视为错误
func (l *Loader) Load() (*Persona, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Warn("人格目录不存在，使用空人格", "dir", l.dir)
			return &Persona{}, nil
		}
		return nil, err
	}

	p := &Persona{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(l.dir, e.Name()))
		if err != nil {
			l.logger.Error("读取人格文件失败", "file", e.Name(), "err", err)
			continue
		}
		content := strings.TrimSpace(string(data))
		switch strings.ToLower(e.Name()) {
		case "soul.md":
			p.Soul = content
		case "identity.md":
			p.Identity = content
		case "agents.md":
			p.Agents = content
		case "user.md":
			p.User = content
		}
	}
	return p, nil
}

// Compose 组装系统消息：性格 → 身份 → 互动模式 → 记忆 → 准则 → 收尾提醒。
// memories 是长期记忆区块（profile + 近期窗口），由记忆层提供。
func Compose(p *Persona, memories string) string {
	var b strings.Builder
	appendSection := func(title, body string) {
		if body == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if title != "" {
			b.WriteString(title)
			b.WriteString("\n\n")
		}
		b.WriteString(body)
	}

	appendSection("", p.Soul)
	appendSection("# 身份設定", p.Identity)
	appendSection("# 使用者互動模式", p.User)
	appendSection("", memories)
	appendSection("# 行為準則", p.Agents)
	appendSection("", "請始終以上述人格與使用者對話，回應使用他們慣用的語言。")
	return b.String()
}
