// Package alert defines the operator-facing alerting boundary. The core's
// only obligation is to emit a structured event naming the job or device, the
// alert kind, and free-form context.
package alert

import "go.uber.org/zap"

// Alert kinds emitted by the fiscal core.
const (
	KindJobDeadLettered = "job-dead-lettered"
	KindDeviceFaulted   = "device-faulted"
)

// Notifier receives operator-facing alerts. Implementations fan out to
// whatever channel the deployment uses (pager, dashboard, log aggregation).
type Notifier interface {
	// JobDeadLettered fires when a print job exhausts its options and
	// requires explicit operator action.
	JobDeadLettered(jobID, kind, context string)

	// DeviceFaulted fires when a device enters the Faulted state.
	DeviceFaulted(deviceID, kind, context string)
}

type zapNotifier struct {
	log *zap.Logger
}

// NewZapNotifier creates a Notifier that emits alerts as structured log
// events.
func NewZapNotifier(log *zap.Logger) Notifier {
	return &zapNotifier{log: log}
}

func (n *zapNotifier) JobDeadLettered(jobID, kind, context string) {
	n.log.Error("operator alert",
		zap.String("alert", KindJobDeadLettered),
		zap.String("job_id", jobID),
		zap.String("kind", kind),
		zap.String("context", context),
	)
}

func (n *zapNotifier) DeviceFaulted(deviceID, kind, context string) {
	n.log.Error("operator alert",
		zap.String("alert", KindDeviceFaulted),
		zap.String("device_id", deviceID),
		zap.String("kind", kind),
		zap.String("context", context),
	)
}

// NopNotifier discards all alerts. Used in tests that assert on state rather
// than notifications.
type NopNotifier struct{}

func (NopNotifier) JobDeadLettered(jobID, kind, context string) {}
func (NopNotifier) DeviceFaulted(deviceID, kind, context string) {}
