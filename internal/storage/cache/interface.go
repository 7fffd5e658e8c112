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

package cache

import (
	"context"
	"time"
)

// Store 读缓存能力：设置与统计的 JSON 文件都经由它减少重复读盘。
// 值以 JSON 编解码，dest 必须是指针。
type Store interface {
	// Set 写入缓存；expiration<=0 表示不过期
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// Get 读取缓存并解码到 dest；未命中返回错误
	Get(ctx context.Context, key string, dest interface{}) error
	// Delete 删除指定键
	Delete(ctx context.Context, key string) error
	// Exists 判断键是否存在且未过期
	Exists(ctx context.Context, key string) (bool, error)
	// Clear 清空全部缓存
	Clear(ctx context.Context) error
	// Close 释放底层连接
	Close() error
}
