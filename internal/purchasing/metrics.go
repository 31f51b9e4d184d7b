package purchasing

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
)

var tracer = otel.Tracer("github.com/hdthieu/seafood-restaurant-be-sub001/internal/purchasing")

// Metrics counts document operations by outcome.
type Metrics struct {
	postings *prometheus.CounterVec
}

// NewMetrics registers the purchasing collectors. A nil registerer uses the
// default Prometheus registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_document_postings_total",
		Help: "Purchasing document operations by document, operation and result.",
	}, []string{"document", "operation", "result"})
	if err := registerer.Register(postings); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			postings = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			panic(err)
		}
	}
	return &Metrics{postings: postings}
}

func (m *Metrics) observe(document, operation string, err error) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(document, operation, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	if e, ok := shared.AsError(err); ok {
		return string(e.Kind)
	}
	return "error"
}

// startOp opens a span for one document operation. The returned function
// ends the span and records the outcome.
func (s *Service) startOp(ctx context.Context, document, operation string, id int64) (context.Context, func(*error)) {
	ctx, span := tracer.Start(ctx, "purchasing."+document+"."+operation,
		trace.WithAttributes(
			attribute.String("document", document),
			attribute.Int64("document.id", id),
		))
	return ctx, func(errp *error) {
		err := *errp
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, shared.CodeOf(err))
		}
		span.End()
		s.metrics.observe(document, operation, err)
	}
}
