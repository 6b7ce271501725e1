package stats_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tdex-network/tdex-feeder/pkg/marketfeed"
	"github.com/tdex-network/tdex-feeder/pkg/stats"
)

func TestDumpPrometheusDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats")

	err := stats.DumpPrometheusDefaults(path)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(content), "go_goroutines"))
}

func TestEnableStatistics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats")
	registry := marketfeed.NewRegistry(marketfeed.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	stats.EnableStatistics(ctx, 10*time.Millisecond, registry, path)

	time.Sleep(50 * time.Millisecond)
	cancel()

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 10*time.Millisecond)
}
