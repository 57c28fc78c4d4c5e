package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/ocd-calaccess/internal/logger"
)

func TestSetupWritesSpans(t *testing.T) {
	ctx := context.Background()
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var buf bytes.Buffer
	shutdown, err := Setup(ctx, logger.Nop(), "ocdpipe-test", true, &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(ctx, "stage parties")
	span.End()
	require.NoError(t, shutdown(ctx))

	assert.Contains(t, buf.String(), "stage parties")
}

func TestSetupDisabled(t *testing.T) {
	ctx := context.Background()
	previous := otel.GetTracerProvider()

	shutdown, err := Setup(ctx, logger.Nop(), "ocdpipe-test", false, nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(ctx))
	assert.Equal(t, previous, otel.GetTracerProvider())
}
