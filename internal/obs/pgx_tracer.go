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

// AttrStoreOperation names the order store method a query belongs to.
const AttrStoreOperation = attribute.Key("paybridge.store.operation")

const maxStatementLen = 300

type (
	dbOperationKey struct{}
	querySpanKey   struct{}
)

// WithDBOperation tags queries issued with ctx as part of an order store
// operation such as "orders.mark_paid".
func WithDBOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, dbOperationKey{}, op)
}

// DBOperation returns the store operation set by WithDBOperation.
func DBOperation(ctx context.Context) string {
	op, _ := ctx.Value(dbOperationKey{}).(string)
	return op
}

// PGXTracer implements pgx.QueryTracer. Spans are named after the store
// operation when the context carries one, otherwise after the SQL verb.
type PGXTracer struct {
	// Provider defaults to the global tracer provider.
	Provider trace.TracerProvider
}

func (t PGXTracer) tracer() trace.Tracer {
	if t.Provider != nil {
		return t.Provider.Tracer("paybridge/store")
	}
	return otel.Tracer("paybridge/store")
}

// TraceQueryStart opens a client span for the statement.
func (t PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	verb := sqlVerb(data.SQL)
	op := DBOperation(ctx)
	name := "pgx " + strings.ToLower(verb)
	if op != "" {
		name = op
	}
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", verb),
		attribute.String("db.statement", truncateSQL(data.SQL)),
	}
	if op != "" {
		attrs = append(attrs, AttrStoreOperation.String(op))
	}
	ctx, span := t.tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return context.WithValue(ctx, querySpanKey{}, span)
}

// TraceQueryEnd closes the span opened by TraceQueryStart.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, ok := ctx.Value(querySpanKey{}).(trace.Span)
	if !ok {
		return
	}
	if data.Err != nil {
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, "query failed")
	} else {
		span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	}
	span.End()
}

func sqlVerb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(fields[0])
}

func truncateSQL(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if len(trimmed) > maxStatementLen {
		return trimmed[:maxStatementLen] + "..."
	}
	return trimmed
}
