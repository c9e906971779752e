package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "mira",
	Short:         "Chat with Mira from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagDataDir   string
	flagWebhook   string
	flagReplyMode string
	flagLogLevel  string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagDataDir, "data-dir", defaultDataDir(), "directory of the Pebble session store")
	flags.StringVar(&flagWebhook, "webhook", os.Getenv("WEBHOOK_URL"), "default webhook URL when none is saved (env WEBHOOK_URL)")
	flags.StringVar(&flagReplyMode, "reply-mode", envOr("REPLY_MODE", "reply"), "ack or reply (env REPLY_MODE)")
	flags.StringVar(&flagLogLevel, "log-level", envOr("LOG_LEVEL", "warn"), "zerolog level; logs go to stderr")

	rootCmd.AddCommand(chatCmd, settingsCmd)
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Error().Err(err).Msg("mira")
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
