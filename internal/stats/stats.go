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

// Package stats 维护每位使用者的互动统计，JSON 文件持久化。
// 计数在消息落盘与记忆晋升时更新。
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"persona-bot/internal/storage/cache"
	"persona-bot/pkg/errors"
	"persona-bot/pkg/log"
)

// Stats 单一使用者的互动统计
type Stats struct {
	Messages        int    `json:"messages"`        // 累计消息数
	ImportantNotes  int    `json:"importantNotes"`  // 带重要标记的记录数
	Promotions      int    `json:"promotions"`      // 已写入长期记忆的条目数
	LastInteraction string `json:"lastInteraction"` // RFC3339
	FirstSeen       string `json:"firstSeen"`       // RFC3339
}

const cacheTTL = time.Minute

// Store 统计存储；同一使用者的更新在进程内串行
type Store struct {
	dir    string
	cache  cache.Store
	logger *log.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewStore(dir string, c cache.Store, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Nop()
	}
	return &Store{dir: dir, cache: c, logger: logger, now: time.Now}
}

func (s *Store) path(userID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.json", userID))
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("stats:%d", userID)
}

// Load 读取统计；缺失返回零值
func (s *Store) Load(ctx context.Context, userID int64) (Stats, error) {
	if s.cache != nil {
		var cached Stats
		if err := s.cache.Get(ctx, cacheKey(userID), &cached); err == nil {
			return cached, nil
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(userID)
}

func (s *Store) loadLocked(userID int64) (Stats, error) {
	var out Stats
	data, err := os.ReadFile(s.path(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, errors.Wrapf(errors.ErrFileIO, "read stats: %v", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Error("统计文件损坏，重置为零值", "user", userID, "err", err)
		return Stats{}, nil
	}
	return out, nil
}

// RecordMessage 一次互动：消息数 +1，刷新时间戳
func (s *Store) RecordMessage(ctx context.Context, userID int64, important bool) error {
	return s.update(ctx, userID, func(v *Stats) {
		v.Messages++
		if important {
			v.ImportantNotes++
		}
	})
}

// RecordPromotion 一条记录写入长期记忆
func (s *Store) RecordPromotion(ctx context.Context, userID int64) error {
	return s.update(ctx, userID, func(v *Stats) {
		v.Promotions++
	})
}

func (s *Store) update(ctx context.Context, userID int64, fn func(*Stats)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.loadLocked(userID)
	if err != nil {
		return err
	}
	fn(&v)
	nowStr := s.now().Format(time.RFC3339)
	v.LastInteraction = nowStr
	if v.FirstSeen == "" {
		v.FirstSeen = nowStr
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(err, "ensure stats dir")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal stats")
	}
	if err := os.WriteFile(s.path(userID), data, 0o644); err != nil {
		return errors.Wrapf(errors.ErrFileIO, "write stats: %v", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey(userID), v, cacheTTL); err != nil {
			s.logger.Debug("统计写缓存失败", "user", userID, "err", err)
		}
	}
	return nil
}
