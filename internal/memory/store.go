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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"persona-bot/pkg/errors"
	"persona-bot/pkg/log"
	"persona-bot/pkg/metrics"
)

const (
	profileFile       = "profile.md"
	logFileExt        = ".md"
	defaultRecentDays = 3
)

// FileStore 分层记忆的文件存储：每位使用者一个目录，
// 每日日志 yyyy-mm-dd.md 追加写入，长期档案 profile.md 只追加。
// 同一使用者的读与写都经由 per-user 锁串行化（追加、晋升重写与读取互不交错）。
type FileStore struct {
	dir        string
	recentDays int
	logger     *log.Logger

	now func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewFileStore 创建文件存储；recentDays <=0 时默认 3
func NewFileStore(dir string, recentDays int, logger *log.Logger) *FileStore {
	if recentDays <= 0 {
		recentDays = defaultRecentDays
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &FileStore{
		dir:        dir,
		recentDays: recentDays,
		logger:     logger,
		now:        time.Now,
		locks:      make(map[int64]*sync.Mutex),
	}
}

// userLock 返回该使用者的串行化锁
func (s *FileStore) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// UserDir 返回使用者目录路径
func (s *FileStore) UserDir(userID int64) string {
	return filepath.Join(s.dir, strconv.FormatInt(userID, 10))
}

func (s *FileStore) profilePath(userID int64) string {
	return filepath.Join(s.UserDir(userID), profileFile)
}

func (s *FileStore) logPath(userID int64, date string) string {
	return filepath.Join(s.UserDir(userID), date+logFileExt)
}

// todayDate 按本地时区格式化今日日期
func (s *FileStore) todayDate() string {
	return s.now().Format("2006-01-02")
}

func (s *FileStore) ensureUserDir(userID int64) error {
	dir := s.UserDir(userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(errors.ErrFileIO, "建立使用者目录 %s: %v", dir, err)
	}
	return nil
}

// EnsureTodayLog 幂等创建今日日志；返回是否为新建
func (s *FileStore) EnsureTodayLog(userID int64) (bool, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()
	return s.ensureTodayLogLocked(userID)
}

func (s *FileStore) ensureTodayLogLocked(userID int64) (bool, error) {
	if err := s.ensureUserDir(userID); err != nil {
		return false, err
	}
	date := s.todayDate()
	path := s.logPath(userID, date)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(logHeader(date)), 0o644); err != nil {
		return false, errors.Wrapf(errors.ErrFileIO, "建立今日日志 %s: %v", path, err)
	}
	s.logger.Info("建立今日记忆文件", "user", userID, "date", date)
	return true, nil
}

// AppendEntry 追加一条记录到今日日志
func (s *FileStore) AppendEntry(userID int64, e Entry) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if _, err := s.ensureTodayLogLocked(userID); err != nil {
		return err
	}
	path := s.logPath(userID, s.todayDate())
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(errors.ErrFileIO, "打开今日日志 %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(RenderEntry(e)); err != nil {
		return errors.Wrapf(errors.ErrFileIO, "追加记忆 %s: %v", path, err)
	}
	metrics.MemoryAppendTotal.Inc()
	s.logger.Debug("记忆已追加", "user", userID, "time", e.Time, "importance", e.Importance)
	return nil
}

// LoadProfile 载入长期档案；不存在时合成并落盘默认档案（首次接触即建档，不视为错误）
func (s *FileStore) LoadProfile(userID int64) (string, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()
	return s.loadProfileLocked(userID)
}

func (s *FileStore) loadProfileLocked(userID int64) (string, error) {
	path := s.profilePath(userID)
	data, err := os.ReadFile(path)
	if err == nil {
		return string(data), nil
	}
	if !os.IsNotExist(err) {
		return "", errors.Wrapf(errors.ErrFileIO, "读取长期档案 %s: %v", path, err)
	}
	if err := s.ensureUserDir(userID); err != nil {
		return "", err
	}
	content := defaultProfile(userID, s.todayDate())
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", errors.Wrapf(errors.ErrFileIO, "建立默认档案 %s: %v", path, err)
	}
	s.logger.Info("建立默认长期档案", "user", userID)
	return content, nil
}

// defaultProfile 首次接触的默认档案内容
func defaultProfile(userID int64, date string) string {
	return fmt.Sprintf(`# 使用者檔案

## 基本資訊
- 使用者 ID：%d
- 首次對話：%s
- 偏好語言：繁體中文

## 互動記錄
- 總對話次數：0
- 最後互動：%s

---
*此檔案會隨著互動自動更新*
`, userID, date, date)
}

// ListLogDates 返回全部每日日志的日期，最新在前；profile.md 不计入
func (s *FileStore) ListLogDates(userID int64) ([]string, error) {
	entries, err := os.ReadDir(s.UserDir(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(errors.ErrFileIO, "列出使用者目录: %v", err)
	}
	var dates []string
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || name == profileFile || !strings.HasSuffix(name, logFileExt) {
			continue
		}
		date := strings.TrimSuffix(name, logFileExt)
		if _, err := time.Parse("2006-01-02", date); err != nil {
			continue
		}
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// LoadRecentWindow 返回最近 n 天的日志内容拼接，最新在前；没有则返回空串。
// 持锁读取：UpdateDailyLog 截断重写时不得读到半成品。
func (s *FileStore) LoadRecentWindow(userID int64, n int) (string, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	dates, err := s.ListLogDates(userID)
	if err != nil {
		return "", err
	}
	if len(dates) == 0 {
		return "", nil
	}
	if n > 0 && len(dates) > n {
		dates = dates[:n]
	}

	var b strings.Builder
	b.WriteString("## 最近的對話記憶\n\n")
	loaded := 0
	for _, date := range dates {
		data, err := os.ReadFile(s.logPath(userID, date))
		if err != nil {
			s.logger.Error("读取每日日志失败", "user", userID, "date", date, "err", err)
			continue
		}
		b.Write(data)
		b.WriteString("\n---\n\n")
		loaded++
	}
	if loaded == 0 {
		return "", nil
	}
	s.logger.Debug("载入最近记忆", "user", userID, "days", loaded)
	return b.String(), nil
}

// LoadFullContext 长期档案 + 最近窗口，用于新会话注入
func (s *FileStore) LoadFullContext(userID int64) (string, error) {
	if _, err := s.EnsureTodayLog(userID); err != nil {
		return "", err
	}
	profile, err := s.LoadProfile(userID)
	if err != nil {
		return "", err
	}
	recent, err := s.LoadRecentWindow(userID, s.recentDays)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if profile != "" {
		b.WriteString("# 長期記憶\n\n" + profile + "\n\n---\n\n")
	}
	b.WriteString(recent)
	return b.String(), nil
}

// LoadTodayLog 读取今日日志原文（会话重建时回放用）；无实质内容时返回空串
func (s *FileStore) LoadTodayLog(userID int64) (string, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	path := s.logPath(userID, s.todayDate())
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrapf(errors.ErrFileIO, "读取今日日志: %v", err)
	}
	content := string(data)
	if len(strings.TrimSpace(content)) < 50 {
		// 只有文件头，没有对话
		return "", nil
	}
	return content, nil
}

// ReadDailyLog 解析某日日志；文件不存在返回 nil
func (s *FileStore) ReadDailyLog(userID int64, date string) (*DailyLog, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()
	return s.readDailyLogLocked(userID, date)
}

func (s *FileStore) readDailyLogLocked(userID int64, date string) (*DailyLog, error) {
	data, err := os.ReadFile(s.logPath(userID, date))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(errors.ErrFileIO, "读取日志 %s: %v", date, err)
	}
	return ParseDailyLog(date, string(data)), nil
}

// UpdateDailyLog 持锁完成某日日志的读-改-写；fn 返回 true 表示有修改需要落盘。
// 晋升标志的落盘走这里，保证不会与同一使用者的追加交错丢写。
func (s *FileStore) UpdateDailyLog(userID int64, date string, fn func(*DailyLog) bool) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	d, err := s.readDailyLogLocked(userID, date)
	if err != nil {
		return err
	}
	if d == nil || !fn(d) {
		return nil
	}
	path := s.logPath(userID, date)
	if err := os.WriteFile(path, []byte(RenderDailyLog(d)), 0o644); err != nil {
		return errors.Wrapf(errors.ErrFileIO, "重写日志 %s: %v", date, err)
	}
	return nil
}

// AppendProfileSection 向长期档案追加一段带日期的叙事记录；只追加，永不改写既有内容
func (s *FileStore) AppendProfileSection(userID int64, date, line string) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if _, err := s.loadProfileLocked(userID); err != nil {
		return err
	}
	path := s.profilePath(userID)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(errors.ErrFileIO, "打开长期档案: %v", err)
	}
	defer f.Close()
	section := fmt.Sprintf("\n### %s - 重要更新\n%s\n", date, line)
	if _, err := f.WriteString(section); err != nil {
		return errors.Wrapf(errors.ErrFileIO, "追加长期档案: %v", err)
	}
	s.logger.Info("重要记忆已写入长期档案", "user", userID, "date", date)
	return nil
}

// PruneExpired 删除超过保留天数且不含 #重要 条目的整份日志；返回删除数量。
// 只要文件内有任一重要条目，整个文件保留（条目粒度不拆分文件）。
func (s *FileStore) PruneExpired(userID int64, retentionDays int) (int, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	dates, err := s.ListLogDates(userID)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, date := range dates {
		fileDate, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		if !fileDate.Before(cutoff) {
			continue
		}
		d, err := s.readDailyLogLocked(userID, date)
		if err != nil || d == nil {
			continue
		}
		if d.HasImportant() {
			continue
		}
		if err := os.Remove(s.logPath(userID, date)); err != nil {
			s.logger.Error("删除过期日志失败", "user", userID, "date", date, "err", err)
			continue
		}
		metrics.PruneDeleteTotal.Inc()
		deleted++
		s.logger.Info("删除过期记忆日志", "user", userID, "date", date)
	}
	return deleted, nil
}
