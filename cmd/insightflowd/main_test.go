package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/insightflow/internal/config"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestMainIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	port := freePort(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SERVER_HOST", "127.0.0.1")
	t.Setenv("SERVER_HTTP_PORT", fmt.Sprint(port))
	t.Setenv("VECTORSTORE_PROVIDER", "chromem")
	t.Setenv("OPENAI_API_KEY", "sk-test-not-a-real-key")
	t.Setenv("LOGGING_LEVEL", "warn")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, modeServe, "", "testdata-missing.env")
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shutdown in time")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VECTORSTORE_PROVIDER", "sqlite")
	t.Setenv("OPENAI_API_KEY", "sk-test-not-a-real-key")

	err := run(context.Background(), modeServe, "", "testdata-missing.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading configuration")
}

func TestNewLogger(t *testing.T) {
	t.Run("mcp mode", func(t *testing.T) {
		cfg := config.Default()
		logger, err := newLogger(cfg, modeMCP)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		cfg := config.Default()
		cfg.Logging.Level = "loud"
		_, err := newLogger(cfg, modeServe)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logging.level")
	})
}
