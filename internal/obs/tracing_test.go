package obs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracingConfig{Exporter: "none"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracerRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracer(context.Background(), TracingConfig{Exporter: "zipkin"})
	assert.ErrorContains(t, err, "zipkin")
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestPGXTracerRecordsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var tracer PGXTracer
	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{
		SQL:  "select   id\n  from carts where user_id = $1",
		Args: []any{"u-1"},
	})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("SELECT 1")})

	ctx = tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "DELETE FROM carts"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("boom")})

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "cartstore SELECT", spans[0].Name())
	assert.Equal(t, "cartstore DELETE", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	var stmt string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "db.statement" {
			stmt = kv.Value.AsString()
		}
	}
	assert.Equal(t, "select id from carts where user_id = $1", stmt)
}

func TestCompactSQLTruncates(t *testing.T) {
	long := "SELECT " + strings.Repeat("x", 400)
	out := compactSQL(long)
	assert.Len(t, out, maxStatementLen+3)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.Equal(t, "QUERY", sqlVerb(""))
}
