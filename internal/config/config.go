package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/zhouzirui/mira-chat/internal/model/chat"
	"github.com/zhouzirui/mira-chat/internal/storage"
	"github.com/zhouzirui/mira-chat/internal/webhook"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Store   StoreConfig
	Webhook WebhookConfig
	Events  EventsConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string
	Format string
}

// StoreConfig selects the session repository backend.
type StoreConfig struct {
	Driver string
	Dir    string
}

// WebhookConfig describes the outbound call and the reply cycle.
type WebhookConfig struct {
	DefaultURL string
	ReplyMode  webhook.Mode
	MinDelay   time.Duration
	MaxDelay   time.Duration
}

// EventsConfig switches the event bus to Redis Streams when RedisAddr is set.
type EventsConfig struct {
	RedisAddr string
}

// RedisEnabled reports whether the Redis bus should be used.
func (c EventsConfig) RedisEnabled() bool {
	return c.RedisAddr != ""
}

type environment struct {
	Port          string        `env:"PORT,default=8080"`
	LogLevel      string        `env:"LOG_LEVEL,default=info" validate:"oneof=trace debug info warn error"`
	LogFormat     string        `env:"LOG_FORMAT,default=json" validate:"oneof=json console"`
	StoreDriver   string        `env:"STORE_DRIVER,default=pebble" validate:"oneof=memory pebble badger"`
	DataDir       string        `env:"DATA_DIR,default=./data"`
	WebhookURL    string        `env:"WEBHOOK_URL" validate:"omitempty,http_url"`
	ReplyMode     string        `env:"REPLY_MODE,default=reply" validate:"oneof=ack reply"`
	ReplyDelayMin time.Duration `env:"REPLY_DELAY_MIN,default=1s" validate:"gte=0"`
	ReplyDelayMax time.Duration `env:"REPLY_DELAY_MAX,default=3s" validate:"gt=0,gtefield=ReplyDelayMin"`
	RedisAddr     string        `env:"REDIS_ADDR" validate:"omitempty,hostname_port"`
}

var validate = validator.New()

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var raw environment
	if _, err := env.UnmarshalFromEnviron(&raw); err != nil {
		return nil, errors.Wrap(err, "decode environment")
	}
	raw.normalize()
	if err := validate.Struct(raw); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	server, err := serverConfig(raw.Port)
	if err != nil {
		return nil, err
	}

	mode, err := webhook.ParseMode(raw.ReplyMode)
	if err != nil {
		return nil, err
	}

	defaultURL := raw.WebhookURL
	if defaultURL == "" {
		defaultURL = chat.DefaultWebhookEndpoint
	}

	driver := raw.StoreDriver
	if driver == "" {
		driver = storage.DriverPebble
	}

	return &Config{
		Server: server,
		Log:    LogConfig{Level: raw.LogLevel, Format: raw.LogFormat},
		Store:  StoreConfig{Driver: driver, Dir: raw.DataDir},
		Webhook: WebhookConfig{
			DefaultURL: defaultURL,
			ReplyMode:  mode,
			MinDelay:   raw.ReplyDelayMin,
			MaxDelay:   raw.ReplyDelayMax,
		},
		Events: EventsConfig{RedisAddr: raw.RedisAddr},
	}, nil
}

func (e *environment) normalize() {
	e.Port = strings.TrimSpace(e.Port)
	e.LogLevel = strings.ToLower(strings.TrimSpace(e.LogLevel))
	e.LogFormat = strings.ToLower(strings.TrimSpace(e.LogFormat))
	e.StoreDriver = strings.ToLower(strings.TrimSpace(e.StoreDriver))
	e.DataDir = strings.TrimSpace(e.DataDir)
	e.WebhookURL = strings.TrimSpace(e.WebhookURL)
	e.ReplyMode = strings.ToLower(strings.TrimSpace(e.ReplyMode))
	e.RedisAddr = strings.TrimSpace(e.RedisAddr)
}

// serverConfig 解析服务器监听地址。
func serverConfig(port string) (ServerConfig, error) {
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}
