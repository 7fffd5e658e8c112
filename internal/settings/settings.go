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

// Package settings 以 JSON 文件保存每位使用者的偏好，读路径挂缓存。
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"persona-bot/internal/storage/cache"
	"persona-bot/pkg/errors"
	"persona-bot/pkg/log"
)

// Settings 使用者偏好
type Settings struct {
	Notifications bool   `json:"notifications"`
	ResponseStyle string `json:"responseStyle"` // casual | formal
	Language      string `json:"language"`
}

// Defaults 新使用者的默认偏好
func Defaults() Settings {
	return Settings{
		Notifications: true,
		ResponseStyle: "casual",
		Language:      "zh-TW",
	}
}

const cacheTTL = 5 * time.Minute

// Store 偏好存储：文件为准，缓存只加速读
type Store struct {
	dir    string
	cache  cache.Store
	logger *log.Logger
}

func NewStore(dir string, c cache.Store, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Nop()
	}
	return &Store{dir: dir, cache: c, logger: logger}
}

func (s *Store) path(userID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.json", userID))
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("settings:%d", userID)
}

// Load 读取偏好；文件缺失返回默认值，不落盘
func (s *Store) Load(ctx context.Context, userID int64) (Settings, error) {
	if s.cache != nil {
		var cached Settings
		if err := s.cache.Get(ctx, cacheKey(userID), &cached); err == nil {
			return cached, nil
		}
	}

	data, err := os.ReadFile(s.path(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return Defaults(), errors.Wrapf(errors.ErrFileIO, "read settings: %v", err)
	}

	out := Defaults()
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Error("偏好文件损坏，回退默认值", "user", userID, "err", err)
		return Defaults(), nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey(userID), out, cacheTTL); err != nil {
			s.logger.Debug("偏好写缓存失败", "user", userID, "err", err)
		}
	}
	return out, nil
}

// Save 持久化偏好并刷新缓存
func (s *Store) Save(ctx context.Context, userID int64, v Settings) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(err, "ensure settings dir")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal settings")
	}
	if err := os.WriteFile(s.path(userID), data, 0o644); err != nil {
		return errors.Wrapf(errors.ErrFileIO, "write settings: %v", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey(userID), v, cacheTTL); err != nil {
			s.logger.Debug("偏好写缓存失败", "user", userID, "err", err)
		}
	}
	return nil
}

// Update 读-改-写
func (s *Store) Update(ctx context.Context, userID int64, fn func(*Settings)) (Settings, error) {
	v, err := s.Load(ctx, userID)
	if err != nil {
		return v, err
	}
	fn(&v)
	if err := s.Save(ctx, userID, v); err != nil {
		return v, err
	}
	return v, nil
}
