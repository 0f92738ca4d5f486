package status

import (
	"sync/atomic"
	"time"

	"chunkq/internal/services"
)

// Processor states.
const (
	StateIdle        = "idle"
	StatePolling     = "polling"
	StateDeduping    = "deduping"
	StateAssembling  = "assembling"
	StateDispatching = "dispatching"
	StatePublishing  = "publishing"
	StateVacuuming   = "vacuuming"
	StateStopped     = "stopped"
)

// Block outcomes recorded in blocks_total.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
)

// ProcessorStatus is a point-in-time copy of a processor's state.
type ProcessorStatus struct {
	Index          string    `json:"index"`
	Running        bool      `json:"running"`
	State          string    `json:"state"`
	QueueSize      int       `json:"queue_size"`
	ProcessedTotal int64     `json:"processed_total"`
	ErrorsTotal    int64     `json:"errors_total"`
	LastError      string    `json:"last_error,omitempty"`
	LastErrorKind  string    `json:"last_error_kind,omitempty"`
	LastCycleAt    time.Time `json:"last_cycle_at,omitzero"`
	Cursor         int64     `json:"cursor"`
}

type lastError struct {
	message string
	kind    string
}

// Notifier records one processor's status.
type Notifier struct {
	index     string
	metrics   *Metrics
	running   atomic.Bool
	state     atomic.Value
	queueSize atomic.Int64
	processed atomic.Int64
	errors    atomic.Int64
	lastErr   atomic.Pointer[lastError]
	lastCycle atomic.Int64
	cursor    atomic.Int64
}

// NewNotifier creates a notifier for index. metrics may be nil.
func NewNotifier(index string, metrics *Metrics) *Notifier {
	n := &Notifier{index: index, metrics: metrics}
	n.state.Store(StateIdle)
	return n
}

// Index returns the index this notifier reports on.
func (n *Notifier) Index() string {
	return n.index
}

// Reset clears counters at processor start.
func (n *Notifier) Reset() {
	n.running.Store(false)
	n.state.Store(StateIdle)
	n.queueSize.Store(0)
	n.processed.Store(0)
	n.errors.Store(0)
	n.lastErr.Store(nil)
	n.lastCycle.Store(0)
	n.cursor.Store(0)
}

// SetRunning marks whether the processor loop is active.
func (n *Notifier) SetRunning(running bool) {
	n.running.Store(running)
}

// SetState records the processor's current phase.
func (n *Notifier) SetState(state string) {
	n.state.Store(state)
}

// SetQueueSize records the number of rows pending for the index.
func (n *Notifier) SetQueueSize(size int) {
	n.queueSize.Store(int64(size))
	if n.metrics != nil {
		n.metrics.QueueSize.WithLabelValues(n.index).Set(float64(size))
	}
}

// SetCursor records the highest row id the processor has moved past.
func (n *Notifier) SetCursor(cursor int64) {
	n.cursor.Store(cursor)
}

// AddProcessed counts rows that completed the full cycle.
func (n *Notifier) AddProcessed(count int) {
	if count <= 0 {
		return
	}
	n.processed.Add(int64(count))
	if n.metrics != nil {
		n.metrics.ProcessedTotal.WithLabelValues(n.index).Add(float64(count))
	}
}

// SetError records err as the most recent failure and counts it by kind.
// A nil err is ignored; successful cycles do not clear the last error.
func (n *Notifier) SetError(err error) {
	if err == nil {
		return
	}
	kind := services.Kind(err)
	n.lastErr.Store(&lastError{message: err.Error(), kind: kind})
	n.errors.Add(1)
	if n.metrics != nil {
		n.metrics.ErrorsTotal.WithLabelValues(n.index, kind).Inc()
	}
}

// ObserveBlock records the outcome of one dispatched block.
func (n *Notifier) ObserveBlock(outcome string) {
	if n.metrics != nil {
		n.metrics.BlocksTotal.WithLabelValues(n.index, outcome).Inc()
	}
}

// ObserveCycle records the end of a cycle that started at start.
func (n *Notifier) ObserveCycle(start time.Time) {
	end := time.Now()
	n.lastCycle.Store(end.UnixNano())
	if n.metrics != nil {
		n.metrics.CycleSeconds.WithLabelValues(n.index).Observe(end.Sub(start).Seconds())
	}
}

// Snapshot returns a copy of the current status.
func (n *Notifier) Snapshot() ProcessorStatus {
	st := ProcessorStatus{
		Index:          n.index,
		Running:        n.running.Load(),
		QueueSize:      int(n.queueSize.Load()),
		ProcessedTotal: n.processed.Load(),
		ErrorsTotal:    n.errors.Load(),
		Cursor:         n.cursor.Load(),
	}
	if state, ok := n.state.Load().(string); ok {
		st.State = state
	}
	if last := n.lastErr.Load(); last != nil {
		st.LastError = last.message
		st.LastErrorKind = last.kind
	}
	if ts := n.lastCycle.Load(); ts != 0 {
		st.LastCycleAt = time.Unix(0, ts).UTC()
	}
	return st
}
