package otel

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	eventbus "github.com/hanpama/ccn/internal/eventbus"
	events "github.com/hanpama/ccn/internal/events"
	reqid "github.com/hanpama/ccn/internal/reqid"
)

const instrumentation = "github.com/hanpama/ccn"

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(ctx context.Context, endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, errors.Wrap(err, "create otlp exporter")
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := newSubscriber(otel.Tracer(instrumentation)).register()

	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// spanKey identifies an open span. Validations outside HTTP requests have
// no request ID and are told apart by document.
type spanKey struct {
	rid      string
	document string
}

type subscriber struct {
	tracer          trace.Tracer
	httpSpans       sync.Map // rid -> trace.Span
	validationSpans sync.Map // spanKey -> trace.Span
}

func newSubscriber(tracer trace.Tracer) *subscriber {
	return &subscriber{tracer: tracer}
}

func (s *subscriber) register() func() {
	unsubscribers := []func(){
		eventbus.Subscribe(s.httpStart),
		eventbus.Subscribe(s.httpFinish),
		eventbus.Subscribe(s.validationStart),
		eventbus.Subscribe(s.validationFinish),
	}
	return func() {
		for _, u := range unsubscribers {
			u()
		}
	}
}

func (s *subscriber) httpStart(ctx context.Context, e events.HTTPStart) {
	_, span := s.tracer.Start(ctx, "http.request")
	span.SetAttributes(
		semconv.HTTPMethodKey.String(e.Request.Method),
		attribute.String("http.target", e.Request.URL.Path),
		attribute.String("request.id", e.RequestID),
	)
	s.httpSpans.Store(e.RequestID, span)
}

func (s *subscriber) httpFinish(ctx context.Context, e events.HTTPFinish) {
	v, ok := s.httpSpans.LoadAndDelete(e.RequestID)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
	if e.Status >= 500 {
		span.SetStatus(codes.Error, "server error")
	}
	span.End()
}

func (s *subscriber) validationStart(ctx context.Context, e events.ValidationStart) {
	rid, _ := reqid.FromContext(ctx)
	parent := ctx
	if v, ok := s.httpSpans.Load(rid); ok {
		parent = trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	_, span := s.tracer.Start(parent, "ccn.validate")
	span.SetAttributes(
		attribute.String("ccn.document", e.Document),
		attribute.StringSlice("graphql.operation.names", e.Operations),
	)
	s.validationSpans.Store(spanKey{rid: rid, document: e.Document}, span)
}

func (s *subscriber) validationFinish(ctx context.Context, e events.ValidationFinish) {
	rid, _ := reqid.FromContext(ctx)
	v, ok := s.validationSpans.LoadAndDelete(spanKey{rid: rid, document: e.Document})
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(
		attribute.Int("ccn.violation_count", e.Violations),
		attribute.Int("ccn.override_count", e.Overrides),
	)
	if e.Violations > 0 {
		span.SetStatus(codes.Error, "invalid document")
	}
	span.End()
}
