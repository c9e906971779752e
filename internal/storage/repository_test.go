package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mira-chat/internal/model/chat"
)

const testDefault = "https://example.test/webhook/default"

func TestDurableDriversReadBackAfterReopen(t *testing.T) {
	for _, driver := range []string{DriverPebble, DriverBadger} {
		t.Run(driver, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			dir := t.TempDir()

			repo, err := Open(Options{Driver: driver, Dir: dir, DefaultEndpoint: testDefault})
			req.NoError(err)

			session, err := repo.Load(ctx)
			req.NoError(err)
			req.False(session.HasName())
			req.Equal(testDefault, session.WebhookEndpoint)

			want := chat.Session{DisplayName: "Alex", WebhookEndpoint: "https://hooks.example.test/mira"}
			req.NoError(repo.SaveName(ctx, want.DisplayName))
			req.NoError(repo.SaveEndpoint(ctx, want.WebhookEndpoint))
			req.NoError(repo.Close())

			reopened, err := Open(Options{Driver: driver, Dir: dir, DefaultEndpoint: testDefault})
			req.NoError(err)
			defer reopened.Close()

			got, err := reopened.Load(ctx)
			req.NoError(err)
			req.Equal(want, got)
		})
	}
}

func TestSaveEmptyNameClearsUsernameSlot(t *testing.T) {
	for _, driver := range []string{DriverMemory, DriverPebble, DriverBadger} {
		t.Run(driver, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()

			repo, err := Open(Options{Driver: driver, Dir: t.TempDir(), DefaultEndpoint: testDefault})
			req.NoError(err)
			defer repo.Close()

			req.NoError(repo.SaveName(ctx, "Alex"))
			req.NoError(repo.SaveName(ctx, ""))

			got, err := repo.Load(ctx)
			req.NoError(err)
			req.False(got.HasName())
		})
	}
}

func TestSavingNameLeavesEndpointOnDefault(t *testing.T) {
	for _, driver := range []string{DriverPebble, DriverBadger} {
		t.Run(driver, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			dir := t.TempDir()

			repo, err := Open(Options{Driver: driver, Dir: dir, DefaultEndpoint: "https://old.test/hook"})
			req.NoError(err)
			req.NoError(repo.SaveName(ctx, "Alex"))
			req.NoError(repo.Close())

			reopened, err := Open(Options{Driver: driver, Dir: dir, DefaultEndpoint: "https://new.test/hook"})
			req.NoError(err)
			defer reopened.Close()

			got, err := reopened.Load(ctx)
			req.NoError(err)
			req.Equal("Alex", got.DisplayName)
			req.Equal("https://new.test/hook", got.WebhookEndpoint)
		})
	}
}

func TestMemoryRepositoryDefaultsEndpoint(t *testing.T) {
	repo := NewMemoryRepository("")
	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, chat.DefaultWebhookEndpoint, got.WebhookEndpoint)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Options{Driver: "sqlite"})
	require.ErrorIs(t, err, ErrUnknownDriver)
}

func TestOpenDurableDriverRequiresDir(t *testing.T) {
	_, err := Open(Options{Driver: DriverPebble})
	require.Error(t, err)
}
