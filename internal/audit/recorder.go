package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"pennywise.app/internal/ids"
	"pennywise.app/internal/obs"
)

// Recorder appends security events to the audit trail. Appends are serialized
// so per-session event order matches transition order. Alert delivery for
// critical events is decoupled from the append: a failing sink is reported in
// the log but never suppresses the trail.
type Recorder struct {
	mu     sync.Mutex
	store  EventStore
	alerts AlertSink
	now    func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithAlertSink routes critical events to the alerting collaborator.
func WithAlertSink(sink AlertSink) RecorderOption {
	return func(r *Recorder) { r.alerts = sink }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder over the given store.
func NewRecorder(store EventStore, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store exposes the underlying event store for read paths (trail listing).
func (r *Recorder) Store() EventStore { return r.store }

// Record appends one event. The event is stamped with an ID and timestamp if
// missing. Critical events are additionally pushed to the alert sink; sink
// failure is logged, not returned, because the append already succeeded.
func (r *Recorder) Record(ctx context.Context, event *SecurityEvent) error {
	if event == nil || event.Type == "" {
		return fmt.Errorf("audit: event type is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now().UTC()
	}
	if event.RiskLevel == "" {
		event.RiskLevel = RiskLow
	}

	if err := r.store.Append(ctx, event); err != nil {
		return fmt.Errorf("audit: append %s: %w", event.Type, err)
	}
	obs.CountSecurityEvent(string(event.Type), string(event.RiskLevel))
	r.logLine(event)

	if event.RiskLevel == RiskCritical && r.alerts != nil {
		if err := r.alerts.Alert(ctx, event); err != nil {
			obs.LogEntry(map[string]any{
				"ts":    r.now().UTC().Format(time.RFC3339Nano),
				"type":  "alert_delivery_failed",
				"event": string(event.Type),
				"id":    event.ID,
				"error": err.Error(),
			})
		}
	}
	return nil
}

func (r *Recorder) logLine(event *SecurityEvent) {
	entry := map[string]any{
		"ts":      event.OccurredAt.Format(time.RFC3339Nano),
		"type":    "security_event",
		"event":   string(event.Type),
		"id":      event.ID,
		"success": event.Success,
		"risk":    string(event.RiskLevel),
	}
	if event.PrincipalID != "" {
		entry["principal_id"] = event.PrincipalID
	}
	if event.SessionID != "" {
		entry["session_id"] = event.SessionID
	}
	if len(event.Details) > 0 {
		// Marshal details separately so a bad value cannot sink the line.
		if data, err := json.Marshal(event.Details); err == nil {
			entry["details"] = json.RawMessage(data)
		}
	}
	obs.LogEntry(entry)
}
