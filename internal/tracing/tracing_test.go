package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "", true, "host")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracerWithEndpoint(t *testing.T) {
	// The gRPC client connects lazily, so no collector is needed here.
	shutdown, err := InitTracer(context.Background(), "localhost:4317", true, "host")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
}
