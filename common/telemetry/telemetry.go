package telemetry

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/opsconsole/console/common/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Options selects which telemetry components run
type Options struct {
	ServiceName    string
	Environment    string
	EnablePprof    bool
	PprofPort      int
	EnableTracing  bool
	TracingBackend string
}

// Telemetry holds observability components
type Telemetry struct {
	log       *logger.Logger
	opts      Options
	pprofAddr string
	provider  *sdktrace.TracerProvider
	tracer    trace.Tracer
	pprofSrv  *http.Server
}

// New creates telemetry components. Tracing is a no-op until Start installs
// a provider.
func New(opts Options, log *logger.Logger) *Telemetry {
	return &Telemetry{
		log:       log,
		opts:      opts,
		pprofAddr: fmt.Sprintf("localhost:%d", opts.PprofPort),
		tracer:    noop.NewTracerProvider().Tracer(opts.ServiceName),
	}
}

// Start starts the pprof endpoint and the tracer provider when enabled
func (t *Telemetry) Start(ctx context.Context) error {
	if t.opts.EnablePprof {
		t.pprofSrv = &http.Server{Addr: t.pprofAddr, Handler: http.DefaultServeMux}
		go func() {
			t.log.Info("pprof server starting", "addr", t.pprofAddr)
			if err := t.pprofSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				t.log.Error("pprof server error", "error", err)
			}
		}()
	}

	if !t.opts.EnableTracing {
		return nil
	}

	exporter, err := t.exporter()
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", t.opts.ServiceName),
		attribute.String("environment", t.opts.Environment),
	)

	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(t.provider)
	t.tracer = t.provider.Tracer(t.opts.ServiceName)

	t.log.Info("tracing enabled", "backend", t.opts.TracingBackend)
	return nil
}

func (t *Telemetry) exporter() (sdktrace.SpanExporter, error) {
	switch t.opts.TracingBackend {
	case "", "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unsupported tracing backend %q", t.opts.TracingBackend)
	}
}

// Tracer returns the service tracer
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Shutdown flushes spans and stops the pprof endpoint
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.pprofSrv != nil {
		if err := t.pprofSrv.Shutdown(ctx); err != nil {
			t.log.Warn("pprof shutdown failed", "error", err)
		}
	}
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

