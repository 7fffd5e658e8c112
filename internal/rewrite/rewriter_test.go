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

package rewrite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persona-bot/internal/model/llm"
	pkgerrors "persona-bot/pkg/errors"
)

type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) GenerateWithContext(ctx context.Context, prompt string, options llm.GenerateOptions) (string, error) {
	return f.reply, f.err
}
func (f *fakeLLM) ChatWithContext(ctx context.Context, messages []llm.Message, options llm.GenerateOptions) (string, error) {
	return f.reply, f.err
}
func (f *fakeLLM) Model() string    { return "fake" }
func (f *fakeLLM) Provider() string { return "fake" }

func TestRewrite_Success(t *testing.T) {
	r := NewLLMRewriter(&fakeLLM{reply: "- 他喜歡咖啡"}, nil)
	line, skip, err := r.Rewrite(context.Background(), "summary", "profile")
	require.NoError(t, err)
	assert.False(t, skip)
	assert.Equal(t, "- 他喜歡咖啡", line)
}

func TestRewrite_ForcesDashPrefix(t *testing.T) {
	r := NewLLMRewriter(&fakeLLM{reply: "他升職了"}, nil)
	line, _, err := r.Rewrite(context.Background(), "s", "p")
	require.NoError(t, err)
	assert.Equal(t, "- 他升職了", line)
}

func TestRewrite_StripsCodeFence(t *testing.T) {
	r := NewLLMRewriter(&fakeLLM{reply: "```\n- 觀察\n```"}, nil)
	line, skip, err := r.Rewrite(context.Background(), "s", "p")
	require.NoError(t, err)
	assert.False(t, skip)
	assert.Equal(t, "- 觀察", line)
}

func TestRewrite_Skip(t *testing.T) {
	r := NewLLMRewriter(&fakeLLM{reply: "SKIP"}, nil)
	_, skip, err := r.Rewrite(context.Background(), "s", "p")
	require.NoError(t, err)
	assert.True(t, skip, "SKIP reply should yield skip=true")
}

func TestRewrite_ServiceError(t *testing.T) {
	r := NewLLMRewriter(&fakeLLM{err: errors.New("boom")}, nil)
	_, _, err := r.Rewrite(context.Background(), "s", "p")
	assert.True(t, errors.Is(err, pkgerrors.ErrRewriteService), "expected ErrRewriteService, got %v", err)
}

func TestRewrite_EmptyReply(t *testing.T) {
	r := NewLLMRewriter(&fakeLLM{reply: "   "}, nil)
	_, _, err := r.Rewrite(context.Background(), "s", "p")
	assert.True(t, errors.Is(err, pkgerrors.ErrRewriteService), "empty reply should be ErrRewriteService, got %v", err)
}
