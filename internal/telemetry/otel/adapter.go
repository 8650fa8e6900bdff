package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"zero-trust-session-core/internal/telemetry"
)

const loggerName = "ztsession.security"

// recordEmitter is the part of an OTel logger the adapter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via provider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(loggerName)}
}

// NewEventEmitterWithLogger returns an EventEmitter writing to logger.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *telemetry.Event) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the event to an OTel log record: metadata becomes the body, ids become attributes.
func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetSeverity(severity(event.Type))
	if len(event.Metadata) > 0 {
		rec.SetBody(otellog.BytesValue(event.Metadata))
	}
	for _, kv := range []struct{ k, v string }{
		{"event_type", event.Type},
		{"source", event.Source},
		{"user_id", event.UserID},
		{"device_id", event.DeviceID},
		{"session_id", event.SessionID},
	} {
		if kv.v != "" {
			rec.AddAttributes(otellog.String(kv.k, kv.v))
		}
	}
	e.logger.Emit(ctx, rec)
	return nil
}

func severity(eventType string) otellog.Severity {
	if eventType == telemetry.EventRefreshReuse {
		return otellog.SeverityWarn
	}
	return otellog.SeverityInfo
}
