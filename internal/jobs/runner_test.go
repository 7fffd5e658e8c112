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

package jobs

import (
	"testing"

	"persona-bot/internal/classify"
	"persona-bot/internal/memory"
	"persona-bot/internal/promotion"
	"persona-bot/pkg/log"
)

func TestSpecsWithDefaults(t *testing.T) {
	got := Specs{}.withDefaults()
	if got.Promotion != "*/5 * * * *" || got.Classification != "*/5 * * * *" || got.Retention != "0 3 * * *" {
		t.Fatalf("got %+v", got)
	}

	custom := Specs{Promotion: "0 2 * * *"}.withDefaults()
	if custom.Promotion != "0 2 * * *" {
		t.Fatal("显式配置不应被默认值覆盖")
	}
}

func TestNewRunnerRegistersJobs(t *testing.T) {
	store := memory.NewFileStore(t.TempDir(), 3, log.Nop())
	deps := Deps{
		Store:      store,
		Pipeline:   promotion.NewPipeline(store, nil, nil, log.Nop()),
		Classifier: classify.NewClassifier(store, t.TempDir(), 7, log.Nop()),
		Logger:     log.Nop(),
	}
	r, err := NewRunner(Specs{}, deps, 1, 30)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if got := len(r.cron.Entries()); got != 3 {
		t.Fatalf("entries = %d, want 3", got)
	}
}

func TestNewRunnerRejectsBadSpec(t *testing.T) {
	store := memory.NewFileStore(t.TempDir(), 3, log.Nop())
	deps := Deps{
		Store:      store,
		Pipeline:   promotion.NewPipeline(store, nil, nil, log.Nop()),
		Classifier: classify.NewClassifier(store, t.TempDir(), 7, log.Nop()),
		Logger:     log.Nop(),
	}
	if _, err := NewRunner(Specs{Promotion: "not a cron"}, deps, 1, 30); err == nil {
		t.Fatal("非法表达式应报错")
	}
}
