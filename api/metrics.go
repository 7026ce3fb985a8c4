package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertLoginFailureSpike    AlertType = "login_failure_spike"
	AlertRotationFailureSpike AlertType = "rotation_failure_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// slidingCounter counts events inside a trailing time window.
type slidingCounter struct {
	events    []time.Time
	window    time.Duration
	threshold int
}

// metricsCollector tracks sliding window counters for anomaly detection. It
// only observes; it never blocks a request.
type metricsCollector struct {
	mu sync.Mutex

	loginFailures    slidingCounter
	rotationFailures slidingCounter

	now     func() time.Time
	alertFn AlertFunc
}

const (
	defaultLoginFailureWindow       = 1 * time.Minute
	defaultLoginFailureThreshold    = 50
	defaultRotationFailureWindow    = 5 * time.Minute
	defaultRotationFailureThreshold = 20
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		loginFailures:    slidingCounter{window: defaultLoginFailureWindow, threshold: defaultLoginFailureThreshold},
		rotationFailures: slidingCounter{window: defaultRotationFailureWindow, threshold: defaultRotationFailureThreshold},
		now:              time.Now,
		alertFn:          alertFn,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case AuditLoginFailure:
		m.record(&m.loginFailures, AlertLoginFailureSpike, "login failure rate exceeds threshold")
	case AuditRotationFailure:
		m.record(&m.rotationFailures, AlertRotationFailureSpike, "password rotation failure rate exceeds threshold")
	}
}

func (m *metricsCollector) record(c *slidingCounter, alert AlertType, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c.events = append(c.events, now)
	c.events = trimWindow(c.events, now, c.window)

	if len(c.events) >= c.threshold {
		m.alertFn(AlertEvent{
			Type:      alert,
			Message:   msg,
			Count:     len(c.events),
			Threshold: c.threshold,
			Timestamp: now,
		})
		// Reset to avoid repeated alerts within the same spike.
		c.events = c.events[:0]
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
