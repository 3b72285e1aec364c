package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProviderExportsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := InitTracerProvider(context.Background(), Config{
		ServiceName: "contact-intake",
		Version:     "test",
		SampleRatio: 1,
		Exporter:    exporter,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := otel.Tracer("test").Start(context.Background(), "intake.Submit")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "intake.Submit", spans[0].Name)
	require.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}
