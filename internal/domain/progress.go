package domain

// StepStatus marks the lifecycle edge of a pipeline step event.
type StepStatus string

// Step event statuses.
const (
	StepStart StepStatus = "start"
	StepDone  StepStatus = "done"
)

// Event is one progress record emitted by the pipeline orchestrator. Events
// for a step are strictly ordered (start before done) and Pct is
// monotonically non-decreasing across the whole stream.
type Event struct {
	StepID string     `json:"step_id"`
	Label  string     `json:"label"`
	Status StepStatus `json:"status"`
	Pct    float64    `json:"pct"`
	Detail string     `json:"detail,omitempty"`
}

// EventSink receives progress events. Implementations must not block the
// pipeline for long; the chi transport backs this with the response stream.
type EventSink interface {
	Emit(Event)
}

// NopSink discards progress events.
type NopSink struct{}

// Emit implements EventSink.
func (NopSink) Emit(Event) {}
