package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	for _, prod := range []bool{true, false} {
		l, err := NewLogger(prod, "event-ticketing")
		require.NoError(t, err)
		assert.NotNil(t, l)
		_ = l.Sync()
	}
}

func TestSetupTracingDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TracingOptions{ServiceName: "event-ticketing"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
