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

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter 按使用者限流：窗口内最多 maxMessages 条
type Limiter struct {
	mu    sync.Mutex
	users map[int64]*userLimiter

	limit rate.Limit
	burst int
	now   func() time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter 创建限流器；maxMessages<=0 默认 5，window<=0 默认 1 分钟
func NewLimiter(maxMessages int, window time.Duration) *Limiter {
	if maxMessages <= 0 {
		maxMessages = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		users: make(map[int64]*userLimiter),
		limit: rate.Limit(float64(maxMessages) / window.Seconds()),
		burst: maxMessages,
		now:   time.Now,
	}
}

// Allow 当前消息是否放行
func (l *Limiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[userID]
	if !ok {
		u = &userLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = u
	}
	u.lastSeen = l.now()
	return u.limiter.Allow()
}

// GC 清掉长时间没有消息的使用者条目，返回清理数量
func (l *Limiter) GC(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxIdle)
	removed := 0
	for id, u := range l.users {
		if u.lastSeen.Before(cutoff) {
			delete(l.users, id)
			removed++
		}
	}
	return removed
}
