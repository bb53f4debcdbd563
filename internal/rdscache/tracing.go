package rdscache

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the OTel tracer for RDS spans. It uses the global provider,
// which is a no-op until the embedding application installs a real one.
var tracer = otel.Tracer("github.com/tagsistant/rds/internal/rdscache")

// cacheMetrics holds OTel metric instruments for the cache. Instruments are
// registered against the global provider at init time, so they forward
// automatically once a real provider is installed.
var cacheMetrics struct {
	builds      metric.Int64Counter
	cacheHits   metric.Int64Counter
	invalidates metric.Int64Counter
	buildWaitMs metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/tagsistant/rds/internal/rdscache")
	cacheMetrics.builds, _ = m.Int64Counter("rds.builds",
		metric.WithDescription("subqueries materialised from scratch"),
		metric.WithUnit("{build}"),
	)
	cacheMetrics.cacheHits, _ = m.Int64Counter("rds.cache_hits",
		metric.WithDescription("prepare calls that found an existing, non-expired catalog entry"),
		metric.WithUnit("{hit}"),
	)
	cacheMetrics.invalidates, _ = m.Int64Counter("rds.invalidates",
		metric.WithDescription("rds_ids marked expired"),
		metric.WithUnit("{id}"),
	)
	cacheMetrics.buildWaitMs, _ = m.Float64Histogram("rds.build_wait_ms",
		metric.WithDescription("time spent waiting to acquire the build mutex"),
		metric.WithUnit("ms"),
	)
}

// endSpan records an error (if any) on the span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// spanSQL truncates a SQL/subquery string to keep span attributes readable.
func spanSQL(s string) string {
	const max = 300
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}

func subquerySpanAttrs(subquery string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("rds.subquery", spanSQL(subquery))}
}
