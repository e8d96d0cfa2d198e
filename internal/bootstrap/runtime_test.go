package bootstrap

import (
	"context"
	"strings"
	"testing"
	"time"

	"concierge/internal/allocation/repository"
	"concierge/internal/events"
	"concierge/internal/notifications"
	"concierge/pkg/client"
	"concierge/pkg/config"
	"concierge/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FallsBackToLogSinks(t *testing.T) {
	log := logger.Discard()
	c := client.NewClient()
	c.SetSQL(log, config.StoreSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared", time.Second)
	t.Cleanup(func() { c.SQL.Close() })
	require.NoError(t, repository.MigrateSQL(context.Background(), c.SQL, config.StoreSQLite))

	cfg := &config.Config{
		StoreDriver:         config.StoreSQLite,
		ReadTimeout:         time.Second,
		WriteTimeout:        time.Second,
		RequestTTL:          time.Hour,
		SideEffectTimeout:   time.Second,
		CredentialMasterKey: strings.Repeat("m", 32),
		Log:                 log,
		Client:              c,
	}

	rt, err := New(cfg)
	require.NoError(t, err)

	assert.IsType(t, &notifications.LogNotifier{}, rt.notifier)
	assert.IsType(t, &events.LogPublisher{}, rt.publisher)
	require.NoError(t, rt.Store.Ping(context.Background()))

	n, err := rt.Service.Expire(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, rt.Close(context.Background()))
	assert.False(t, rt.Dispatcher.Dispatch("late", func(context.Context) error { return nil }))
}
