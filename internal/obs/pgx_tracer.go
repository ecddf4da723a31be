package obs

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementLen = 300

type pgxSpanKey struct{}

// PGXTracer turns cart store queries into client spans named after the SQL
// verb, e.g. "cartstore SELECT".
type PGXTracer struct{}

func (PGXTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	stmt := compactSQL(data.SQL)
	verb := sqlVerb(stmt)
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", verb),
		attribute.String("db.statement", stmt),
		attribute.Int("db.args", len(data.Args)),
	}
	if conn != nil && conn.Config() != nil {
		attrs = append(attrs, attribute.String("db.name", conn.Config().Database))
	}
	ctx, span := otel.Tracer(instrumentationName+"/pgx").Start(ctx, "cartstore "+verb,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return context.WithValue(ctx, pgxSpanKey{}, span)
}

func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, ok := ctx.Value(pgxSpanKey{}).(trace.Span)
	if !ok {
		return
	}
	defer span.End()
	if data.Err != nil {
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, data.Err.Error())
		return
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
}

// compactSQL collapses whitespace and caps the statement length.
func compactSQL(sql string) string {
	s := strings.Join(strings.Fields(sql), " ")
	if len(s) <= maxStatementLen {
		return s
	}
	return s[:maxStatementLen] + "..."
}

func sqlVerb(stmt string) string {
	verb, _, _ := strings.Cut(stmt, " ")
	if verb == "" {
		return "QUERY"
	}
	return strings.ToUpper(verb)
}
