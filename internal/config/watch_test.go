package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "logging:\n  level: info\n", 0600)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { changes <- c }, nil)
	}()

	var got *Config
	require.Eventually(t, func() bool {
		require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0600))
		for {
			select {
			case c := <-changes:
				// A write can be observed mid-truncate; wait for the full file.
				if c.Logging.Level == "debug" {
					got = c
					return true
				}
			case <-time.After(50 * time.Millisecond):
				return false
			}
		}
	}, 5*time.Second, 100*time.Millisecond)

	assert.Equal(t, "debug", got.Logging.Level)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}
