package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/zhouzirui/mira-chat/internal/config"
	"github.com/zhouzirui/mira-chat/internal/conversation"
	"github.com/zhouzirui/mira-chat/internal/events"
	"github.com/zhouzirui/mira-chat/internal/model/chat"
	"github.com/zhouzirui/mira-chat/internal/model/persona"
	chatService "github.com/zhouzirui/mira-chat/internal/service/chat"
	"github.com/zhouzirui/mira-chat/internal/storage"
	"github.com/zhouzirui/mira-chat/internal/webhook"
)

// app is everything one CLI invocation needs.
type app struct {
	repo storage.Repository
	bus  *events.Bus
	svc  *chatService.Service
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "mira-data")
	}
	return filepath.Join(dir, "mira")
}

func openApp(logOut io.Writer) (*app, error) {
	config.SetupLogging(config.LogConfig{Level: flagLogLevel, Format: "console"}, logOut)

	mode, err := webhook.ParseMode(flagReplyMode)
	if err != nil {
		return nil, err
	}

	defaultEndpoint := flagWebhook
	if defaultEndpoint == "" {
		defaultEndpoint = chat.DefaultWebhookEndpoint
	}

	if err := os.MkdirAll(flagDataDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", flagDataDir)
	}
	repo, err := storage.Open(storage.Options{
		Driver:          storage.DriverPebble,
		Dir:             flagDataDir,
		DefaultEndpoint: defaultEndpoint,
	})
	if err != nil {
		return nil, err
	}

	bus := events.NewMemoryBus(nil)
	personas := persona.NewMemoryStore(persona.Seed())
	svc := chatService.NewService(
		repo,
		conversation.NewRegistry(bus),
		bus,
		webhook.NewClient(nil, mode),
		persona.Default(personas),
		chatService.Options{ReplyMode: mode},
	)
	return &app{repo: repo, bus: bus, svc: svc}, nil
}

func (a *app) close() {
	a.svc.Wait()
	_ = a.bus.Close()
	_ = a.repo.Close()
}
