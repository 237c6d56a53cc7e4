package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/rewardledger/internal/testutil"
)

func noEnv(string) string { return "" }

func Test_run(t *testing.T) {
	port, err := testutil.RandomPort()
	require.NoError(t, err, "failed to get random port to start server")
	listenAddr := fmt.Sprintf("localhost:%d", port)

	getwd := func() (string, error) { return t.TempDir(), nil }

	t.Run("in memory stop with signal", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		err := run(ctx, noEnv, getwd, []string{
			"--address", listenAddr,
			"--log-level", "debug",
			"--secret-key", "secret",
			"--redeem-codes", "WELCOME=20",
		})

		require.NoError(t, err, "on correct stop should not return error")
	})

	t.Run("with journal stop with signal", func(t *testing.T) {
		pg := testutil.StartPostgresContainer(t)
		t.Cleanup(pg.Terminate)

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		err := run(ctx, noEnv, getwd, []string{
			"--address", listenAddr,
			"--log-level", "debug",
			"--database", pg.DSN,
			"--secret-key", "secret",
		})

		require.NoError(t, err, "on correct stop should not return error")
	})

	t.Run("stop with config error", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		// Try to run without secret key. Must fail
		err := run(ctx, noEnv, getwd, []string{
			"--address", listenAddr,
			"--log-level", "debug",
		})

		require.Error(t, err, "on incorrect stop should return error")
	})

	t.Run("duplicate redeem codes refused", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		err := run(ctx, noEnv, getwd, []string{
			"--address", listenAddr,
			"--secret-key", "secret",
			"--redeem-codes", "DUP=10,dup=20",
		})

		require.Error(t, err)
	})
}
