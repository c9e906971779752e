package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mira-chat/internal/model/chat"
	"github.com/zhouzirui/mira-chat/internal/webhook"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LOG_LEVEL", "LOG_FORMAT", "STORE_DRIVER", "DATA_DIR", "WEBHOOK_URL", "REPLY_MODE", "REPLY_DELAY_MIN", "REPLY_DELAY_MAX", "REDIS_ADDR"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "pebble", cfg.Store.Driver)
	require.Equal(t, chat.DefaultWebhookEndpoint, cfg.Webhook.DefaultURL)
	require.Equal(t, webhook.ModeReply, cfg.Webhook.ReplyMode)
	require.Equal(t, time.Second, cfg.Webhook.MinDelay)
	require.Equal(t, 3*time.Second, cfg.Webhook.MaxDelay)
	require.False(t, cfg.Events.RedisEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9090")
	t.Setenv("STORE_DRIVER", "Badger")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.test/mira")
	t.Setenv("REPLY_MODE", "ack")
	t.Setenv("REPLY_DELAY_MIN", "0s")
	t.Setenv("REPLY_DELAY_MAX", "500ms")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	require.Equal(t, "badger", cfg.Store.Driver)
	require.Equal(t, "https://hooks.example.test/mira", cfg.Webhook.DefaultURL)
	require.Equal(t, webhook.ModeAck, cfg.Webhook.ReplyMode)
	require.Equal(t, 500*time.Millisecond, cfg.Webhook.MaxDelay)
	require.True(t, cfg.Events.RedisEnabled())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"driver":    {"STORE_DRIVER", "sqlite"},
		"mode":      {"REPLY_MODE", "echo"},
		"webhook":   {"WEBHOOK_URL", "not a url"},
		"log level": {"LOG_LEVEL", "loud"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsInvertedDelays(t *testing.T) {
	t.Setenv("REPLY_DELAY_MIN", "3s")
	t.Setenv("REPLY_DELAY_MAX", "1s")
	_, err := Load()
	require.Error(t, err)
}

// A zero window would be replaced by the service defaults, so it is refused here.
func TestLoadRejectsZeroDelayWindow(t *testing.T) {
	t.Setenv("REPLY_DELAY_MIN", "0s")
	t.Setenv("REPLY_DELAY_MAX", "0s")
	_, err := Load()
	require.Error(t, err)
}

func TestServerConfigPortForms(t *testing.T) {
	cfg, err := serverConfig("9000")
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Addr)

	_, err = serverConfig("90 00")
	require.Error(t, err)
}
