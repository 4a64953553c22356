// Package otel owns the OpenTelemetry log pipeline behind the slog
// bridge. Generation runs emit structured records; the provider batches
// them to the session log file and, when an endpoint is configured, to
// an OTLP collector.
package otel

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects the telemetry sinks for a scenekit session.
type Config struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	LogWriter    io.Writer // session log file (required when enabled)
	Endpoint     string    // OTLP/HTTP endpoint, file-only when empty
	Insecure     bool      // plain HTTP to the OTLP endpoint
}

// Provider holds the configured log provider. Disabled sessions carry a
// nil provider and every method is a no-op.
type Provider struct {
	logProvider *sdklog.LoggerProvider
	config      Config
}

// New wires the configured exporters into one log provider. At least
// one sink, the log writer or the OTLP endpoint, must be set when
// telemetry is enabled.
func New(cfg Config) (*Provider, error) {
	p := &Provider{
		config: cfg,
	}

	if !cfg.Enabled {
		return p, nil
	}

	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var processors []sdklog.Processor

	if cfg.LogWriter != nil {
		proc, err := fileProcessor(cfg)
		if err != nil {
			return nil, err
		}
		processors = append(processors, proc)
	}

	if cfg.Endpoint != "" {
		proc, err := otlpProcessor(ctx, cfg)
		if err != nil {
			return nil, err
		}
		processors = append(processors, proc)
	}

	if len(processors) == 0 {
		return nil, fmt.Errorf("OTel enabled but no log writer or endpoint configured")
	}

	opts := []sdklog.LoggerProviderOption{
		sdklog.WithResource(res),
	}
	for _, proc := range processors {
		opts = append(opts, sdklog.WithProcessor(proc))
	}
	p.logProvider = sdklog.NewLoggerProvider(opts...)

	return p, nil
}

// fileProcessor batches pretty-printed records to the session log file.
func fileProcessor(cfg Config) (sdklog.Processor, error) {
	exporter, err := stdoutlog.New(
		stdoutlog.WithWriter(cfg.LogWriter),
		stdoutlog.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file log exporter: %w", err)
	}
	return sdklog.NewBatchProcessor(exporter,
		sdklog.WithExportTimeout(cfg.BatchTimeout),
	), nil
}

// otlpProcessor batches records to the configured collector endpoint.
func otlpProcessor(ctx context.Context, cfg Config) (sdklog.Processor, error) {
	opts := []otlploghttp.Option{
		otlploghttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	}

	exporter, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}
	return sdklog.NewBatchProcessor(exporter,
		sdklog.WithExportTimeout(cfg.BatchTimeout),
	), nil
}

// LoggerProvider returns the log provider for the otelslog bridge, nil
// when telemetry is disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logProvider
}

// Meter returns a meter with the given name for creating metrics.
// Logs are the primary export path, so instruments are no-op.
func (p *Provider) Meter(name string) metric.Meter {
	return noop.Meter{}
}

// Flush forces a flush of all pending logs.
// Use this at run completion so queued records reach the exporters.
func (p *Provider) Flush(ctx context.Context) error {
	if !p.config.Enabled {
		return nil
	}

	if p.logProvider != nil {
		if err := p.logProvider.ForceFlush(ctx); err != nil {
			return fmt.Errorf("log flush failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops the exporters after a final flush. Called once on
// process exit.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.config.Enabled {
		return nil
	}

	if p.logProvider != nil {
		if err := p.logProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("log shutdown failed: %w", err)
		}
	}

	return nil
}

// Enabled returns whether OTel is enabled
func (p *Provider) Enabled() bool {
	return p.config.Enabled
}

// ensure otel import is used
var _ = otel.Version
