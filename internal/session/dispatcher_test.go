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

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pkgerrors "persona-bot/pkg/errors"
	"persona-bot/pkg/log"
)

// fakeSink 记录进度消息的生命周期
type fakeSink struct {
	mu      sync.Mutex
	posted  int
	cleared int
}

func (f *fakeSink) Post(ctx context.Context, chatID int64, text string) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted++
	return MessageRef{ChatID: chatID, MessageID: f.posted}, nil
}

func (f *fakeSink) Update(ctx context.Context, ref MessageRef, text string) error { return nil }

func (f *fakeSink) Clear(ctx context.Context, ref MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

func (f *fakeSink) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posted, f.cleared
}

func newTestDispatcher(t *testing.T, tr Transport, sink ProgressSink) *Dispatcher {
	t.Helper()
	r := newTestRegistry(t, tr)
	return NewDispatcher(r, sink, 5*time.Second, time.Hour, log.Nop())
}

func TestAskHappyPath(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{content: "hello"}}}
	sink := &fakeSink{}
	d := newTestDispatcher(t, tr, sink)

	got, err := d.Ask(context.Background(), 1, "hi")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got != "hello" {
		t.Fatalf("reply = %q, want hello", got)
	}
	posted, cleared := sink.counts()
	if posted != 1 || cleared != 1 {
		t.Fatalf("progress posted/cleared = %d/%d, want 1/1", posted, cleared)
	}
}

func TestAskInvalidSessionRetriesOnce(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{
		{err: errors.New("session not found")},
		{content: "second"},
	}}
	sink := &fakeSink{}
	d := newTestDispatcher(t, tr, sink)

	got, err := d.Ask(context.Background(), 1, "hi")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got != "second" {
		t.Fatalf("reply = %q, want second", got)
	}
	if tr.created != 2 {
		t.Fatalf("created = %d, want 2 (重建一次)", tr.created)
	}
	// 每次尝试的进度消息各清一次
	posted, cleared := sink.counts()
	if posted != 2 || cleared != 2 {
		t.Fatalf("progress posted/cleared = %d/%d, want 2/2", posted, cleared)
	}
}

func TestAskDoubleInvalidationPropagates(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{
		{err: errors.New("connection disposed")},
		{err: errors.New("pending response rejected")},
	}}
	d := newTestDispatcher(t, tr, &fakeSink{})

	_, err := d.Ask(context.Background(), 1, "hi")
	if err == nil {
		t.Fatal("连续两次失效应向上传播错误")
	}
	if !IsInvalid(err) {
		t.Fatalf("err = %v, want invalid-session", err)
	}
	if tr.calls != 2 {
		t.Fatalf("calls = %d, want 2 (不允许第三次尝试)", tr.calls)
	}
}

func TestAskTimeoutIsTerminal(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{
		{err: pkgerrors.Wrap(pkgerrors.ErrTimeout, "send and wait")},
	}}
	d := newTestDispatcher(t, tr, &fakeSink{})

	_, err := d.Ask(context.Background(), 1, "hi")
	if !errors.Is(err, pkgerrors.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if tr.calls != 1 {
		t.Fatalf("calls = %d, 超时不得重试", tr.calls)
	}
	if tr.created != 1 {
		t.Fatalf("created = %d, 超时不得重建会话", tr.created)
	}
}

func TestAskOtherErrorNoRetry(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{
		{err: errors.New("rate limited")},
	}}
	d := newTestDispatcher(t, tr, &fakeSink{})

	_, err := d.Ask(context.Background(), 1, "hi")
	if err == nil {
		t.Fatal("非失效错误应直接传播")
	}
	if tr.calls != 1 {
		t.Fatalf("calls = %d, want 1", tr.calls)
	}
}

func TestAskSerializesPerChat(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{content: "ok"}}}
	d := newTestDispatcher(t, tr, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Ask(context.Background(), 7, "hi"); err != nil {
				t.Errorf("Ask: %v", err)
			}
		}()
	}
	wg.Wait()
	// 串行执行下只建一次会话
	if tr.created != 1 {
		t.Fatalf("created = %d, want 1", tr.created)
	}
	if tr.calls != 8 {
		t.Fatalf("calls = %d, want 8", tr.calls)
	}
}

func TestAskNilSinkWorks(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{content: "ok"}}}
	d := newTestDispatcher(t, tr, nil)
	if _, err := d.Ask(context.Background(), 1, "hi"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
}
