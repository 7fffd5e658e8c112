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

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Model     ModelConfig     `mapstructure:"model"`
	Session   SessionConfig   `mapstructure:"session"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Persona   PersonaConfig   `mapstructure:"persona"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Ops       OpsConfig       `mapstructure:"ops"`
	Log       LogConfig       `mapstructure:"log"`
}

// TelegramConfig Telegram 接入配置
type TelegramConfig struct {
	Token         string `mapstructure:"token"`          // Bot Token，支持 ${ENV} 展开
	AllowedUserID int64  `mapstructure:"allowed_user"`   // 白名单使用者 ID（单用户 Bot）
	MaxMessageLen int    `mapstructure:"max_message_len"` // 单条消息上限，<=0 默认 4096
}

// ModelConfig 模型服务配置（OpenAI 兼容会话端点）
type ModelConfig struct {
	Provider string `mapstructure:"provider"` // openai | qwen 等兼容端点
	Name     string `mapstructure:"name"`     // 模型名，如 gpt-4o
	APIKey   string `mapstructure:"api_key"`  // 支持 ${ENV} 展开
	BaseURL  string `mapstructure:"base_url"`
}

// SessionConfig 会话调度配置
type SessionConfig struct {
	AskTimeout        string `mapstructure:"ask_timeout"`        // 有界等待，如 "180s"，空则默认 180s
	HeartbeatInterval string `mapstructure:"heartbeat_interval"` // 思考中心跳间隔，如 "30s"，空则默认 30s
}

// MemoryConfig 记忆存储配置
type MemoryConfig struct {
	Dir           string `mapstructure:"dir"`            // 记忆根目录，空则默认 "memory"
	RetentionDays int    `mapstructure:"retention_days"` // 非重要日志保留天数，<=0 默认 30
	RecentDays    int    `mapstructure:"recent_days"`    // 建会话时注入的最近天数，<=0 默认 3
}

// PersonaConfig 人格档案配置
type PersonaConfig struct {
	Dir string `mapstructure:"dir"` // persona 档案目录，空则默认 "persona"
}

// SchedulerConfig 后台任务排程配置（cron 表达式）
type SchedulerConfig struct {
	PromotionSpec      string `mapstructure:"promotion_spec"`      // 五星记忆晋升，空则默认 "*/5 * * * *"
	ClassificationSpec string `mapstructure:"classification_spec"` // 记忆分类，空则默认 "*/5 * * * *"
	RetentionSpec      string `mapstructure:"retention_spec"`      // 过期清理，空则默认 "0 3 * * *"
	WindowDays         int    `mapstructure:"window_days"`         // 分类滚动窗口天数，<=0 默认 7
}

// RateLimitConfig 入站消息限流配置
type RateLimitConfig struct {
	MaxMessages int    `mapstructure:"max_messages"` // 窗口内最大消息数，<=0 默认 5
	Window      string `mapstructure:"window"`       // 窗口长度，如 "1m"，空则默认 1m
}

// CacheConfig 设置/统计读缓存配置
type CacheConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// OpsConfig 运维端点配置（健康检查与指标）
type OpsConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// LoadBotConfig 加载 Bot 配置（configs/bot.yaml）
func LoadBotConfig() (*Config, error) {
	return LoadConfig("configs/bot.yaml")
}

// replaceEnvVars 替换配置中的 ${ENV} 形式环境变量
func replaceEnvVars(config *Config) {
	config.Telegram.Token = expandEnv(config.Telegram.Token)
	config.Model.APIKey = expandEnv(config.Model.APIKey)
	config.Cache.Password = expandEnv(config.Cache.Password)
}

func expandEnv(v string) string {
	if !strings.HasPrefix(v, "$") {
		return v
	}
	envVar := strings.TrimPrefix(strings.TrimSuffix(v, "}"), "${")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return v
}

// AskTimeoutDuration 解析有界等待时长；空或非法时返回默认 180s
func (c SessionConfig) AskTimeoutDuration() time.Duration {
	return parseDuration(c.AskTimeout, 180*time.Second)
}

// HeartbeatIntervalDuration 解析心跳间隔；空或非法时返回默认 30s
func (c SessionConfig) HeartbeatIntervalDuration() time.Duration {
	return parseDuration(c.HeartbeatInterval, 30*time.Second)
}

// WindowDuration 解析限流窗口；空或非法时返回默认 1m
func (c RateLimitConfig) WindowDuration() time.Duration {
	return parseDuration(c.Window, time.Minute)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
