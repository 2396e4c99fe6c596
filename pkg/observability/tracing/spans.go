// Package tracing provides OpenTelemetry tracing for store operations.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/nimburion/rediswrapper"

// SpanOperation represents a traced store operation.
type SpanOperation string

// Span operation constants
const (
	// SpanOperationBatch is one atomic MULTI/EXEC batch
	SpanOperationBatch SpanOperation = "store.batch"
	// SpanOperationHealthCheck is one write/verify health check
	SpanOperationHealthCheck SpanOperation = "store.healthcheck"
	// SpanOperationGet is a single GET
	SpanOperationGet SpanOperation = "store.get"
	// SpanOperationSet is a single SET
	SpanOperationSet SpanOperation = "store.set"
	// SpanOperationDelete is a single DEL
	SpanOperationDelete SpanOperation = "store.delete"
)

// StartStoreSpan creates a client span for a store operation.
func StartStoreSpan(ctx context.Context, operation SpanOperation, opts ...StoreSpanOption) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)

	spanOpts := &storeSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("store.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	spanName := fmt.Sprintf("STORE %s", operation)
	if spanOpts.key != "" {
		spanName = fmt.Sprintf("STORE %s %s", operation, spanOpts.key)
	}

	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// StoreSpanOption configures a store span.
type StoreSpanOption func(*storeSpanOptions)

type storeSpanOptions struct {
	key        string
	attributes []attribute.KeyValue
}

// WithStoreSystem sets the store system (e.g., "redis").
func WithStoreSystem(system string) StoreSpanOption {
	return func(opts *storeSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("store.system", system))
	}
}

// WithStoreMode sets the addressing mode ("standalone" or "cluster").
func WithStoreMode(mode string) StoreSpanOption {
	return func(opts *storeSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("store.mode", mode))
	}
}

// WithStoreKey sets the key and adds it to the span name.
func WithStoreKey(key string) StoreSpanOption {
	return func(opts *storeSpanOptions) {
		opts.key = key
		opts.attributes = append(opts.attributes, attribute.String("store.key", key))
	}
}

// WithCommandCount sets the number of commands in a batch.
func WithCommandCount(n int) StoreSpanOption {
	return func(opts *storeSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int("store.batch.commands", n))
	}
}

// RecordError records err on span and marks it failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// End records err (or success) and ends span.
func End(span trace.Span, err error) {
	if err != nil {
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	span.End()
}
