package obs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/noah-isme/paybridge/internal/obs"
)

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]string {
	out := make(map[attribute.Key]string, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value.Emit()
	}
	return out
}

func TestTracingConfigAttributes(t *testing.T) {
	cfg := obs.TracingConfig{
		ServiceName: "paybridge-api",
		Environment: "production",
		GatewayID:   "custom_gateway",
		StoreDriver: "postgres",
	}
	attrs := attrMap(cfg.Attributes())
	require.Equal(t, "paybridge-api", attrs["service.name"])
	require.Equal(t, "production", attrs["deployment.environment"])
	require.Equal(t, "custom_gateway", attrs[obs.AttrGatewayID])
	require.Equal(t, "postgres", attrs[obs.AttrStoreDriver])

	bare := attrMap(obs.TracingConfig{ServiceName: "paybridge-api"}.Attributes())
	require.Len(t, bare, 1)
}

func TestTracingConfigSamplerClampsRatio(t *testing.T) {
	for _, ratio := range []float64{0, -1, 7} {
		desc := obs.TracingConfig{SamplingRatio: ratio}.Sampler().Description()
		require.Contains(t, desc, "root:AlwaysOnSampler", ratio)
	}
	require.Contains(t, obs.TracingConfig{SamplingRatio: 0.25}.Sampler().Description(), "TraceIDRatioBased{0.25}")
}

func TestInitTracerExporters(t *testing.T) {
	shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{ServiceName: "paybridge-api", Exporter: "none"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = obs.InitTracer(context.Background(), obs.TracingConfig{ServiceName: "paybridge-api", Exporter: "zipkin"})
	require.ErrorContains(t, err, "zipkin")
}

func TestPGXTracerNamesSpansAfterStoreOperation(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := obs.PGXTracer{Provider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))}

	ctx := obs.WithDBOperation(context.Background(), "orders.mark_paid")
	require.Equal(t, "orders.mark_paid", obs.DBOperation(ctx))
	ctx = tracer.TraceQueryStart(ctx, nil, pgx.TraceQueryStartData{
		SQL: "\nUPDATE orders SET status = $2 WHERE id = $1 AND paid_at IS NULL",
	})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("UPDATE 1")})

	plain := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "select 1"})
	tracer.TraceQueryEnd(plain, nil, pgx.TraceQueryEndData{Err: errors.New("connection reset")})

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	paid := spans[0]
	require.Equal(t, "orders.mark_paid", paid.Name())
	attrs := attrMap(paid.Attributes())
	require.Equal(t, "UPDATE", attrs["db.operation"])
	require.Equal(t, "orders.mark_paid", attrs[obs.AttrStoreOperation])
	require.Equal(t, "1", attrs["db.rows_affected"])
	require.NotContains(t, attrs["db.statement"], "\n")

	failed := spans[1]
	require.Equal(t, "pgx select", failed.Name())
	require.Equal(t, codes.Error, failed.Status().Code)
	_, tagged := attrMap(failed.Attributes())[obs.AttrStoreOperation]
	require.False(t, tagged)
}
