package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestRecordAnalysisExportsToRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := New("caseworker-test", reg, nil)
	defer o.Shutdown()

	ctx, span := o.StartSpan(context.Background(), "analyze_case", attribute.String("case_id", "CASE_1"))
	o.RecordAnalysis(ctx, 12*time.Millisecond, "high", "fallback")
	span.End()

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")
	assert.Contains(t, joined, "caseworker_analysis_count")
	assert.Contains(t, joined, "caseworker_analysis_duration")
}

func TestNilObservabilityIsSafe(t *testing.T) {
	var o *Observability
	ctx, span := o.StartSpan(context.Background(), "noop")
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
	span.End()

	o.RecordAnalysis(context.Background(), time.Millisecond, "low", "fallback")
	o.Shutdown()
}

func TestSpansAreExported(t *testing.T) {
	var traces bytes.Buffer
	o := New("caseworker-test", prometheus.NewRegistry(), &traces)

	_, span := o.StartSpan(context.Background(), "analyze_case", attribute.String("case_id", "CASE_7"))
	span.End()
	o.Shutdown()

	out := traces.String()
	assert.Contains(t, out, `"Name":"analyze_case"`)
	assert.Contains(t, out, "CASE_7")
}

func TestTracingDisabledWithoutWriter(t *testing.T) {
	o := New("caseworker-test", prometheus.NewRegistry(), nil)
	defer o.Shutdown()

	_, span := o.StartSpan(context.Background(), "analyze_case")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}
