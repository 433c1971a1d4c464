package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds the compliance engine's metric instruments.
// All Record methods are safe to call on a nil *Registry.
type Registry struct {
	meter metric.Meter

	ComplianceCheckDuration metric.Float64Histogram
	DecisionCounter         metric.Int64Counter
	ViolationCounter        metric.Int64Counter
	ViolationLogFailures    metric.Int64Counter
	ConsentCheckCounter     metric.Int64Counter
	OverrideCounter         metric.Int64Counter
	NotificationFailures    metric.Int64Counter
	SweepRecordsCounter     metric.Int64Counter
}

// NewRegistry creates a new metrics registry on the global meter provider
func NewRegistry(meterName string) (*Registry, error) {
	return NewRegistryWithMeter(otel.Meter(meterName))
}

// NewRegistryWithMeter creates a registry on an explicit meter
func NewRegistryWithMeter(meter metric.Meter) (*Registry, error) {
	r := &Registry{meter: meter}
	var err error

	r.ComplianceCheckDuration, err = meter.Float64Histogram(
		"tcpa.compliance.check_duration",
		metric.WithDescription("Duration of compliance evaluations in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500),
	)
	if err != nil {
		return nil, err
	}

	r.DecisionCounter, err = meter.Int64Counter(
		"tcpa.compliance.decisions_total",
		metric.WithDescription("Compliance decisions by resulting action"),
	)
	if err != nil {
		return nil, err
	}

	r.ViolationCounter, err = meter.Int64Counter(
		"tcpa.compliance.violations_total",
		metric.WithDescription("Detected violations by type and severity"),
	)
	if err != nil {
		return nil, err
	}

	r.ViolationLogFailures, err = meter.Int64Counter(
		"tcpa.compliance.violation_log_failures_total",
		metric.WithDescription("Violation rows that failed to persist"),
	)
	if err != nil {
		return nil, err
	}

	r.ConsentCheckCounter, err = meter.Int64Counter(
		"tcpa.compliance.consent_checks_total",
		metric.WithDescription("Consent evaluations by outcome"),
	)
	if err != nil {
		return nil, err
	}

	r.OverrideCounter, err = meter.Int64Counter(
		"tcpa.compliance.overrides_total",
		metric.WithDescription("Manual override attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	r.NotificationFailures, err = meter.Int64Counter(
		"tcpa.compliance.notification_failures_total",
		metric.WithDescription("Violation notices that failed to publish"),
	)
	if err != nil {
		return nil, err
	}

	r.SweepRecordsCounter, err = meter.Int64Counter(
		"tcpa.consent.sweep_records_total",
		metric.WithDescription("Consent records changed by the maintenance sweeper"),
	)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// RecordDecision records one evaluation and its outcome
func (r *Registry) RecordDecision(ctx context.Context, duration time.Duration, mode, action string, compliant bool) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("action", action),
		attribute.Bool("compliant", compliant),
	)
	r.ComplianceCheckDuration.Record(ctx, float64(duration.Microseconds())/1000.0, attrs)
	r.DecisionCounter.Add(ctx, 1, attrs)
}

// RecordViolation counts one detected violation
func (r *Registry) RecordViolation(ctx context.Context, violationType, severity string) {
	if r == nil {
		return
	}
	r.ViolationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", violationType),
		attribute.String("severity", severity),
	))
}

// RecordViolationLogFailure counts a violation row that could not be written
func (r *Registry) RecordViolationLogFailure(ctx context.Context, violationType string) {
	if r == nil {
		return
	}
	r.ViolationLogFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("type", violationType)))
}

// RecordConsentCheck counts a consent evaluation
func (r *Registry) RecordConsentCheck(ctx context.Context, scope string, valid, implicit bool) {
	if r == nil {
		return
	}
	r.ConsentCheckCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.Bool("valid", valid),
		attribute.Bool("implicit", implicit),
	))
}

// RecordOverride counts an override attempt
func (r *Registry) RecordOverride(ctx context.Context, outcome string) {
	if r == nil {
		return
	}
	r.OverrideCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordNotificationFailure counts a failed violation notice
func (r *Registry) RecordNotificationFailure(ctx context.Context) {
	if r == nil {
		return
	}
	r.NotificationFailures.Add(ctx, 1)
}

// RecordSweep counts consent records changed by a sweep
func (r *Registry) RecordSweep(ctx context.Context, operation string, count int64) {
	if r == nil || count == 0 {
		return
	}
	r.SweepRecordsCounter.Add(ctx, count, metric.WithAttributes(attribute.String("operation", operation)))
}
