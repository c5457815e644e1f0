// ABOUTME: Tests for tracing setup
// ABOUTME: Checks opt-in behaviour and clean shutdown against unreachable collectors

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/technosutra21/Techno/internal/config"
)

func TestSetup_NoopWhenDisabled(t *testing.T) {
	shutdown, err := Setup(t.Context(), config.TelemetryConfig{Endpoint: "http://localhost:4318"}, "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(t.Context()))
}

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := Setup(t.Context(), config.TelemetryConfig{Enabled: true}, "test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.NoError(t, shutdown(ctx), "noop shutdown ignores cancelled context")
}

func TestSetup_CreatesProvider(t *testing.T) {
	tests := []config.TelemetryConfig{
		// Non-routable addresses so no export happens
		{Enabled: true, Endpoint: "http://192.0.2.1:4318"},
		{Enabled: true, Endpoint: "192.0.2.1:4318", Insecure: true, ServiceName: "techno-sutra-test"},
	}
	for _, cfg := range tests {
		t.Run(cfg.Endpoint, func(t *testing.T) {
			shutdown, err := Setup(t.Context(), cfg, "test")
			require.NoError(t, err)
			require.NoError(t, shutdown(t.Context()))
		})
	}
}
