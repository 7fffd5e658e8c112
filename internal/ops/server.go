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

// Package ops 运维端点：健康检查与 Prometheus 指标暴露。
package ops

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	hertzslog "github.com/hertz-contrib/logger/slog"

	"persona-bot/pkg/log"
	"persona-bot/pkg/metrics"
)

// Server 运维 HTTP 服务
type Server struct {
	hertz  *server.Hertz
	logger *log.Logger
}

// NewServer 创建运维服务；level 对齐主日志配置
func NewServer(port int, level string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Nop()
	}

	levelVar := &slog.LevelVar{}
	switch level {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(os.Stdout),
		hertzslog.WithLevel(levelVar),
	))

	h := server.New(server.WithHostPorts(fmt.Sprintf(":%d", port)))

	h.GET("/healthz", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, utils.H{
			"status":    "ok",
			"service":   "persona-bot",
			"timestamp": time.Now().Unix(),
		})
	})

	h.GET("/metrics", func(ctx context.Context, c *app.RequestContext) {
		var buf bytes.Buffer
		if err := metrics.WriteProm(&buf); err != nil {
			c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
	})

	return &Server{hertz: h, logger: logger}
}

// Run 阻塞运行直到 Shutdown
func (s *Server) Run() error {
	s.logger.Info("运维端点已启动")
	return s.hertz.Run()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.hertz.Shutdown(ctx)
}
