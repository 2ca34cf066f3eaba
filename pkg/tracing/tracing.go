package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"QuoteHub/pkg/logger"
)

// Config selects the exporter and sampling of the process tracer.
type Config struct {
	ServiceName string
	Environment string
	Exporter    string // "stdout" or "none"
	SampleRatio float64
}

// Provider owns the SDK tracer provider installed as the global one.
type Provider struct {
	tp  *sdktrace.TracerProvider
	log *logger.Logger
}

type Option func(*options)

type options struct {
	writer     io.Writer
	processors []sdktrace.SpanProcessor
}

// WithWriter sends stdout exports to w.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithSpanProcessor registers an extra processor, e.g. a span recorder.
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *options) { o.processors = append(o.processors, sp) }
}

// New builds the tracer provider and installs it with W3C propagation.
func New(cfg Config, log *logger.Logger, opts ...Option) (*Provider, error) {
	if log == nil {
		log = logger.Nop()
	}
	o := options{writer: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment.name", cfg.Environment),
	)
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}

	switch cfg.Exporter {
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(o.writer))
		if err != nil {
			return nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	case "none", "":
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
	for _, sp := range o.processors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sp))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("tracing initialized",
		logger.String("exporter", cfg.Exporter),
		logger.Float("sample_ratio", cfg.SampleRatio),
	)
	return &Provider{tp: tp, log: log}, nil
}

func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracer shutdown: %w", err)
	}
	return nil
}
