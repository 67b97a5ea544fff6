package metrics_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vpn-analytics/internal/metrics"
)

func TestAnalytics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := metrics.NewAnalytics(reg)
	require.NoError(t, err)

	ctx := context.Background()
	m.OnTracked(ctx, 1)
	m.OnTracked(ctx, 2)
	m.OnRejected(ctx)
	m.OnRollupError(ctx)

	err = promtestutil.GatherAndCompare(reg, strings.NewReader(`
# HELP vpn_analytics_connections Number of connection events held in memory.
# TYPE vpn_analytics_connections gauge
vpn_analytics_connections 2
# HELP vpn_analytics_events_rejected_total Total number of rejected track requests.
# TYPE vpn_analytics_events_rejected_total counter
vpn_analytics_events_rejected_total 1
# HELP vpn_analytics_events_tracked_total Total number of tracked connection events.
# TYPE vpn_analytics_events_tracked_total counter
vpn_analytics_events_tracked_total 2
# HELP vpn_analytics_rollup_errors_total Total number of failed rollup writes.
# TYPE vpn_analytics_rollup_errors_total counter
vpn_analytics_rollup_errors_total 1
`))
	assert.NoError(t, err)

	t.Run("duplicate", func(t *testing.T) {
		_, dupErr := metrics.NewAnalytics(reg)
		assert.Error(t, dupErr)
	})
}

func TestSetUpGauge(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.SetUpGauge(reg, "1.0.0", "abc"))

	n, err := promtestutil.GatherAndCount(reg, "vpn_analytics_up")
	require.NoError(t, err)

	assert.Equal(t, 1, n)
}
