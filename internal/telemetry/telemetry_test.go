package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	for _, tc := range []struct {
		endpoint string
		enabled  bool
	}{
		{"", true},
		{"http://localhost:4318", false},
	} {
		shutdown, err := Setup(context.Background(), "fairsearch", tc.endpoint, tc.enabled)
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	}
}

func TestNewProviderRecordsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp, err := NewProvider(context.Background(), "fairsearch", sdktrace.WithSyncer(exp))
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "search.evaluate")
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "search.evaluate", spans[0].Name)
	require.NoError(t, tp.Shutdown(context.Background()))
}
