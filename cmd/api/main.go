package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/mira-chat/internal/config"
	"github.com/zhouzirui/mira-chat/internal/conversation"
	"github.com/zhouzirui/mira-chat/internal/events"
	"github.com/zhouzirui/mira-chat/internal/handler"
	"github.com/zhouzirui/mira-chat/internal/model/persona"
	"github.com/zhouzirui/mira-chat/internal/service/chat"
	"github.com/zhouzirui/mira-chat/internal/storage"
	"github.com/zhouzirui/mira-chat/internal/webhook"
)

// configError marks failures that exit with status 2.
type configError struct{ err error }

func (e configError) Error() string { return e.err.Error() }
func (e configError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err == nil {
		return
	}
	var cfgErr configError
	if errors.As(err, &cfgErr) {
		log.Error().Err(err).Msg("failed to load configuration")
		os.Exit(2)
	}
	log.Error().Err(err).Msg("mira chat backend stopped")
	os.Exit(1)
}

// run owns every resource it opens, so deferred closes finish before main exits.
func run(ctx context.Context) error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		return configError{err}
	}
	config.SetupLogging(cfg.Log, os.Stderr)

	repo, err := storage.Open(storage.Options{
		Driver:          cfg.Store.Driver,
		Dir:             cfg.Store.Dir,
		DefaultEndpoint: cfg.Webhook.DefaultURL,
	})
	if err != nil {
		return pkgerrors.Wrapf(err, "open %s session store", cfg.Store.Driver)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close session store")
		}
	}()

	bus, err := newBus(ctx, cfg.Events)
	if err != nil {
		return pkgerrors.Wrap(err, "start event bus")
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close event bus")
		}
	}()

	personaStore := persona.NewMemoryStore(persona.Seed())
	chatService := chat.NewService(
		repo,
		conversation.NewRegistry(bus),
		bus,
		webhook.NewClient(nil, cfg.Webhook.ReplyMode),
		persona.Default(personaStore),
		chat.Options{
			ReplyMode: cfg.Webhook.ReplyMode,
			MinDelay:  cfg.Webhook.MinDelay,
			MaxDelay:  cfg.Webhook.MaxDelay,
		},
	)
	if err := chatService.Start(ctx); err != nil {
		return pkgerrors.Wrap(err, "restore session")
	}

	router := handler.NewRouter(personaStore, chatService, bus)

	startServer(ctx, cfg.Server, router)

	log.Info().Msg("waiting for in-flight replies")
	chatService.Wait()
	return nil
}

func newBus(ctx context.Context, cfg config.EventsConfig) (*events.Bus, error) {
	logger := events.NewLogger(log.Logger)
	if cfg.RedisEnabled() {
		log.Info().Str("addr", cfg.RedisAddr).Msg("event bus: redis streams")
		return events.NewRedisBus(ctx, cfg.RedisAddr, logger)
	}
	log.Info().Msg("event bus: in-process")
	return events.NewMemoryBus(logger), nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		// Streams end on shutdown instead of holding Shutdown until its timeout.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	log.Info().Str("addr", addr).Msg("Mira chat backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Error().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
