package main

import (
	"context"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/mira-chat/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the chat widget in the terminal",
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	// The TUI owns stdout; logs go to a file next to the store.
	if err := os.MkdirAll(flagDataDir, 0o755); err != nil {
		return errors.Wrapf(err, "create data dir %s", flagDataDir)
	}
	logFile, err := os.OpenFile(filepath.Join(flagDataDir, "mira.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open log file")
	}
	defer logFile.Close()

	a, err := openApp(logFile)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := a.svc.Start(ctx); err != nil {
		return err
	}

	model, err := tui.New(ctx, a.svc, a.bus)
	if err != nil {
		return err
	}

	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "run terminal ui")
	}

	if err := a.svc.CloseConversation(context.Background(), model.ConversationID()); err != nil {
		log.Debug().Err(err).Msg("[tui] close conversation")
	}
	return nil
}
