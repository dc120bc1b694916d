package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestID_RoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	id, ok := RequestIDFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "req-1", id)
}

func TestRequestID_MintedWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	id, ok := RequestIDFromContext(ctx)
	require.True(t, ok)
	require.NotEmpty(t, id)
}

func TestRequestID_AbsentByDefault(t *testing.T) {
	_, ok := RequestIDFromContext(context.Background())
	require.False(t, ok)
}
