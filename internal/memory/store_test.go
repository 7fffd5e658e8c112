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
	"os"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(t.TempDir(), 3, nil)
}

func TestEnsureTodayLog_Idempotent(t *testing.T) {
	s := newTestStore(t)
	created, err := s.EnsureTodayLog(1)
	if err != nil {
		t.Fatalf("EnsureTodayLog: %v", err)
	}
	if !created {
		t.Error("first call should create")
	}
	created, err = s.EnsureTodayLog(1)
	if err != nil {
		t.Fatalf("EnsureTodayLog second: %v", err)
	}
	if created {
		t.Error("second call should not create")
	}
}

func TestAppendEntry_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	e := Entry{Time: "09:15", Summary: "使用者: 記住：我喜歡咖啡 | 回應: 知道了", Importance: 5, Important: true}
	if err := s.AppendEntry(7, e); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	window, err := s.LoadRecentWindow(7, 1)
	if err != nil {
		t.Fatalf("LoadRecentWindow: %v", err)
	}
	if !strings.Contains(window, "記住：我喜歡咖啡") {
		t.Errorf("window missing summary: %q", window)
	}
	if !strings.Contains(window, "⭐⭐⭐⭐⭐") {
		t.Errorf("window missing star encoding: %q", window)
	}
}

func TestLoadProfile_CreatesDefault(t *testing.T) {
	s := newTestStore(t)
	profile, err := s.LoadProfile(9)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if !strings.Contains(profile, "使用者 ID：9") {
		t.Errorf("default profile: %q", profile)
	}
	// 再读返回落盘内容而非重新合成
	again, err := s.LoadProfile(9)
	if err != nil {
		t.Fatalf("LoadProfile again: %v", err)
	}
	if again != profile {
		t.Error("second load should return persisted content")
	}
}

func TestLoadRecentWindow_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	writeLog(t, s, 3, "2026-08-27", "old-entry")
	writeLog(t, s, 3, "2026-08-29", "new-entry")
	window, err := s.LoadRecentWindow(3, 2)
	if err != nil {
		t.Fatalf("LoadRecentWindow: %v", err)
	}
	newIdx := strings.Index(window, "new-entry")
	oldIdx := strings.Index(window, "old-entry")
	if newIdx < 0 || oldIdx < 0 {
		t.Fatalf("window missing entries: %q", window)
	}
	if newIdx > oldIdx {
		t.Error("newer log should come first")
	}
}

func TestLoadRecentWindow_Empty(t *testing.T) {
	s := newTestStore(t)
	window, err := s.LoadRecentWindow(42, 3)
	if err != nil {
		t.Fatalf("LoadRecentWindow: %v", err)
	}
	if window != "" {
		t.Errorf("expected empty window, got %q", window)
	}
}

func TestLoadFullContext(t *testing.T) {
	s := newTestStore(t)
	if err := s.AppendEntry(5, Entry{Time: "10:00", Summary: "hello", Importance: 3}); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	ctx, err := s.LoadFullContext(5)
	if err != nil {
		t.Fatalf("LoadFullContext: %v", err)
	}
	if !strings.Contains(ctx, "# 長期記憶") {
		t.Error("context should include profile section")
	}
	if !strings.Contains(ctx, "hello") {
		t.Error("context should include recent window")
	}
}

func TestPruneExpired(t *testing.T) {
	s := newTestStore(t)
	old := s.now().AddDate(0, 0, -40).Format("2006-01-02")
	oldImportant := s.now().AddDate(0, 0, -45).Format("2006-01-02")
	fresh := s.now().AddDate(0, 0, -1).Format("2006-01-02")

	writeLog(t, s, 2, old, "stale")
	writeRawLog(t, s, 2, oldImportant,
		"## 08:00 - 對話\n- 摘要：keep me\n- 重要性：⭐⭐⭐\n- 標記：#重要\n")
	writeLog(t, s, 2, fresh, "recent")

	deleted, err := s.PruneExpired(2, 30)
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deletion, got %d", deleted)
	}
	dates, _ := s.ListLogDates(2)
	if len(dates) != 2 {
		t.Fatalf("remaining dates: %v", dates)
	}
	for _, d := range dates {
		if d == old {
			t.Error("expired non-important log should be deleted")
		}
	}
}

func TestPruneExpired_MixedEntriesRetainedWholesale(t *testing.T) {
	s := newTestStore(t)
	date := s.now().AddDate(0, 0, -60).Format("2006-01-02")
	writeRawLog(t, s, 4, date,
		"## 08:00 - 對話\n- 摘要：ordinary\n- 重要性：⭐⭐\n\n## 09:00 - 對話\n- 摘要：critical\n- 重要性：⭐⭐⭐⭐⭐\n- 標記：#重要\n")
	deleted, err := s.PruneExpired(4, 30)
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if deleted != 0 {
		t.Error("log with any important entry must be retained wholesale")
	}
}

func TestUpdateDailyLog_PersistsFlag(t *testing.T) {
	s := newTestStore(t)
	date := "2026-08-28"
	writeRawLog(t, s, 6, date,
		"## 08:00 - 對話\n- 摘要：five star\n- 重要性：⭐⭐⭐⭐⭐\n")
	err := s.UpdateDailyLog(6, date, func(d *DailyLog) bool {
		d.Entries[0].Promoted = true
		return true
	})
	if err != nil {
		t.Fatalf("UpdateDailyLog: %v", err)
	}
	d, err := s.ReadDailyLog(6, date)
	if err != nil {
		t.Fatalf("ReadDailyLog: %v", err)
	}
	if !d.Entries[0].Promoted {
		t.Error("promoted flag should persist")
	}
}

func TestUpdateDailyLog_MissingIsNoop(t *testing.T) {
	s := newTestStore(t)
	called := false
	err := s.UpdateDailyLog(6, "2020-01-01", func(d *DailyLog) bool {
		called = true
		return true
	})
	if err != nil {
		t.Fatalf("UpdateDailyLog: %v", err)
	}
	if called {
		t.Error("fn should not run for missing log")
	}
}

func TestLoadTodayLog(t *testing.T) {
	s := newTestStore(t)
	got, err := s.LoadTodayLog(8)
	if err != nil {
		t.Fatalf("LoadTodayLog: %v", err)
	}
	if got != "" {
		t.Errorf("missing log should yield empty: %q", got)
	}
	// 只有文件头时也视为无内容
	if _, err := s.EnsureTodayLog(8); err != nil {
		t.Fatalf("EnsureTodayLog: %v", err)
	}
	got, err = s.LoadTodayLog(8)
	if err != nil {
		t.Fatalf("LoadTodayLog: %v", err)
	}
	if got != "" {
		t.Errorf("header-only log should yield empty: %q", got)
	}
	if err := s.AppendEntry(8, Entry{Time: "11:00", Summary: "real conversation content here", Importance: 3}); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	got, err = s.LoadTodayLog(8)
	if err != nil {
		t.Fatalf("LoadTodayLog: %v", err)
	}
	if !strings.Contains(got, "real conversation content here") {
		t.Errorf("today log: %q", got)
	}
}

func TestAppendProfileSection(t *testing.T) {
	s := newTestStore(t)
	if err := s.AppendProfileSection(3, "2026-08-30", "- 他喜歡咖啡"); err != nil {
		t.Fatalf("AppendProfileSection: %v", err)
	}
	profile, err := s.LoadProfile(3)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if !strings.Contains(profile, "### 2026-08-30 - 重要更新") {
		t.Errorf("profile missing dated section: %q", profile)
	}
	if !strings.Contains(profile, "- 他喜歡咖啡") {
		t.Errorf("profile missing narrative line: %q", profile)
	}
	// 追加不会截断既有内容
	if !strings.Contains(profile, "# 使用者檔案") {
		t.Error("profile head should survive append")
	}
}

// writeLog 写入一份包含单条普通条目的日志
func TestReadDailyLog_SerializedWithRewrite(t *testing.T) {
	s := newTestStore(t)
	const date = "2026-08-28"
	var body strings.Builder
	for i := 0; i < 8; i++ {
		body.WriteString(RenderEntry(Entry{
			Time: "10:0" + string(rune('0'+i)), Summary: "entry", Importance: 5, Important: true,
		}))
	}
	writeRawLog(t, s, 5, date, body.String())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			err := s.UpdateDailyLog(5, date, func(d *DailyLog) bool {
				flag := i%2 == 0
				for j := range d.Entries {
					d.Entries[j].Promoted = flag
				}
				return true
			})
			if err != nil {
				t.Errorf("UpdateDailyLog: %v", err)
				return
			}
		}
	}()

	// 重写进行中也必须始终读到完整文件，而非截断中间态
	for i := 0; i < 200; i++ {
		d, err := s.ReadDailyLog(5, date)
		if err != nil {
			t.Fatalf("ReadDailyLog: %v", err)
		}
		if d == nil || len(d.Entries) != 8 {
			t.Fatalf("reader observed partial log: %+v", d)
		}
		window, err := s.LoadRecentWindow(5, 5)
		if err != nil {
			t.Fatalf("LoadRecentWindow: %v", err)
		}
		if got := strings.Count(window, "- 摘要：entry"); got != 8 {
			t.Fatalf("window observed %d of 8 entries", got)
		}
	}
	<-done
}

func writeLog(t *testing.T, s *FileStore, userID int64, date, summary string) {
	t.Helper()
	writeRawLog(t, s, userID, date,
		"## 12:00 - 對話\n- 摘要："+summary+"\n- 重要性：⭐⭐⭐\n")
}

func writeRawLog(t *testing.T, s *FileStore, userID int64, date, body string) {
	t.Helper()
	if err := os.MkdirAll(s.UserDir(userID), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := "# " + date + " 對話記錄\n\n" + body
	if err := os.WriteFile(s.logPath(userID, date), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
}
