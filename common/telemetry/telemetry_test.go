package telemetry

import (
	"context"
	"testing"

	"github.com/opsconsole/console/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetry_TracingDisabled(t *testing.T) {
	tel := New(Options{ServiceName: "console"}, logger.New("error", "json"))
	require.NoError(t, tel.Start(context.Background()))

	_, span := tel.Tracer().Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid(), "no provider means no recorded spans")
	span.End()

	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestTelemetry_StdoutTracing(t *testing.T) {
	tel := New(Options{ServiceName: "console", EnableTracing: true, TracingBackend: "stdout"}, logger.New("error", "json"))
	require.NoError(t, tel.Start(context.Background()))

	_, span := tel.Tracer().Start(context.Background(), "process.create")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestTelemetry_UnknownBackend(t *testing.T) {
	tel := New(Options{ServiceName: "console", EnableTracing: true, TracingBackend: "zipkin"}, logger.New("error", "json"))
	assert.Error(t, tel.Start(context.Background()))
}
