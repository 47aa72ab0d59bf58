// Package observability provides OpenTelemetry metrics and structured logging
// for the ledger node: counters for actions logged, batches sealed and access
// denials by reason.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config configures the metrics provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // e.g. "localhost:4317"
	ExportInterval time.Duration
	Enabled        bool
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "chronicler-core",
		ServiceVersion: "1.0.0",
		OTLPEndpoint:   "localhost:4317",
		ExportInterval: 15 * time.Second,
		Enabled:        true,
	}
}

// Provider manages the meter provider and the ledger counters.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter

	actionsLogged metric.Int64Counter
	batchesSealed metric.Int64Counter
	accessDenied  metric.Int64Counter
}

// NewProvider initializes the OTLP metric pipeline. With Enabled false it
// returns a provider whose counters are no-ops against the global meter.
func NewProvider(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	p := &Provider{}
	if cfg.Enabled {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("observability: creating OTLP exporter: %w", err)
		}

		res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		))
		if err != nil {
			return nil, fmt.Errorf("observability: building resource: %w", err)
		}

		p.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
				sdkmetric.WithInterval(cfg.ExportInterval))),
		)
		otel.SetMeterProvider(p.meterProvider)
	}

	p.meter = otel.Meter("chronicler.core")

	var err error
	if p.actionsLogged, err = p.meter.Int64Counter("chronicler.actions.logged",
		metric.WithDescription("Actions appended to the ledger")); err != nil {
		return nil, err
	}
	if p.batchesSealed, err = p.meter.Int64Counter("chronicler.batches.sealed",
		metric.WithDescription("Batch commitments sealed")); err != nil {
		return nil, err
	}
	if p.accessDenied, err = p.meter.Int64Counter("chronicler.access.denied",
		metric.WithDescription("Access checks denied, by reason")); err != nil {
		return nil, err
	}

	return p, nil
}

// RecordActionLogged counts one admitted action.
func (p *Provider) RecordActionLogged(ctx context.Context, agentID string) {
	p.actionsLogged.Add(ctx, 1, metric.WithAttributes(attribute.String("agent_id", agentID)))
}

// RecordBatchSealed counts one sealed batch of the given size.
func (p *Provider) RecordBatchSealed(ctx context.Context, actionCount int64) {
	p.batchesSealed.Add(ctx, 1, metric.WithAttributes(attribute.Int64("action_count", actionCount)))
}

// RecordAccessDenied counts one denial by reason.
func (p *Provider) RecordAccessDenied(ctx context.Context, reason string) {
	p.accessDenied.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// Shutdown flushes pending metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}

// NewLogger builds a text slog.Logger at the configured level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
