// Package session resolves one device operation to a terminal verdict.
//
// A session merges three independently timed signal streams — status
// text, error text, and the chunk stream's derived completeness — plus
// a wall-clock deadline into a single sticky verdict. Absence of
// messages is itself a failure signal, so the deadline is polled by a
// timer injecting synthetic events rather than checked only on arrival.
package session

import (
	"fmt"
	"time"

	"github.com/opengrid-io/fleetkit/coredump"
	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/types"
)

// Config configures one session.
type Config struct {
	// Capability is the requested device operation.
	Capability types.Capability
	// Rules matches free-text verdicts for the capability.
	Rules Rules
	// Target is the device identifier to track. Empty selects broadcast
	// mode: the first device producing a qualifying event is adopted.
	Target string
	// Timeout bounds the whole operation.
	Timeout time.Duration
	// Logger receives session lifecycle entries.
	Logger *log.Logger
	// Assembler is the transfer owned by this session.
	Assembler *coredump.Assembler
	// Collector is optional; nil disables counting.
	Collector *metrics.Collector
}

// Session is the per-operation state machine.
//
// Not safe for concurrent use: all calls happen on the operation's
// single consumer goroutine. The deadline timer participates by
// injecting types.EventDeadline events into the same queue, which
// preserves single-writer semantics for session state.
type Session struct {
	capability types.Capability
	rules      Rules
	target     string
	timeout    time.Duration
	logger     *log.Logger
	assembler  *coredump.Assembler
	collector  *metrics.Collector

	state        types.SessionState
	startedAt    time.Time
	deadline     time.Time
	completeSeen bool
	vacuous      bool
	outcome      *types.Outcome
	audit        []types.Event
}

// New creates an idle session.
func New(cfg Config) *Session {
	return &Session{
		capability: cfg.Capability,
		rules:      cfg.Rules,
		target:     cfg.Target,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
		assembler:  cfg.Assembler,
		collector:  cfg.Collector,
		state:      types.StateIdle,
	}
}

// Start marks the operation requested and stamps the deadline.
// Called once, after the command publish (or, for passive capture,
// when listening begins). A non-positive timeout leaves the deadline
// unset; the session then runs until an explicit verdict or caller
// cancellation.
func (s *Session) Start(now time.Time) {
	if s.state != types.StateIdle {
		return
	}
	s.state = types.StateRequested
	s.startedAt = now
	deadline := "none"
	if s.timeout > 0 {
		s.deadline = now.Add(s.timeout)
		deadline = s.deadline.Format(time.RFC3339)
	}
	s.logger.Info("session started", map[string]any{
		"capability": string(s.capability),
		"deadline":   deadline,
		"broadcast":  s.target == "",
	})
}

// Handle consumes one classified event. Events for devices other than
// the target are ignored once a target is set; in broadcast mode the
// first qualifying event adopts its device retroactively. Terminal
// states are sticky: late events are audited but change nothing.
func (s *Session) Handle(ev types.Event) {
	if ev.Kind == types.EventDeadline {
		s.handleDeadline(ev.ReceivedAt)
		return
	}

	if s.target != "" && ev.Device != s.target {
		return
	}
	if s.target == "" {
		if !ev.Kind.Qualifying() {
			return
		}
		s.adopt(ev.Device)
	}

	s.audit = append(s.audit, ev)

	if s.state.Terminal() {
		return
	}

	switch ev.Kind {
	case types.EventHeader:
		s.assembler.AcceptHeader(ev.Header)
		s.markTransferring()

	case types.EventChunk:
		if err := s.assembler.AcceptChunk(ev.Chunk.Index, ev.Chunk.Total, ev.Chunk.Data); err != nil {
			s.collector.IncInvalidChunk()
			s.logger.Warn("chunk rejected", map[string]any{
				"index": ev.Chunk.Index,
				"error": err.Error(),
			})
			return
		}
		s.markTransferring()
		s.checkTransferDone()

	case types.EventComplete:
		s.assembler.AcceptComplete(ev.Complete)
		s.completeSeen = true
		s.checkTransferDone()

	case types.EventStatus:
		s.handleStatus(ev)

	case types.EventError:
		if s.rules.Failure(ev.Text) {
			text := ev.Text
			s.conclude(types.StateFailed, types.Outcome{
				Status:     types.OutcomeDeviceError,
				Message:    fmt.Sprintf("device reported %s failure", s.capability),
				DeviceText: &text,
			})
		}
	}
}

// adopt binds a broadcast-mode session to its first qualifying device.
func (s *Session) adopt(device string) {
	s.target = device
	s.logger = s.logger.WithDevice(device)
	s.logger.Info("target adopted", nil)
}

func (s *Session) markTransferring() {
	if s.state != types.StateRequested {
		return
	}
	s.state = types.StateTransferring
	s.logger.Info("transfer started", map[string]any{
		"declared": s.assembler.TotalDeclared(),
	})
}

// checkTransferDone succeeds once the explicit completion signal has
// been seen AND the chunk map covers [0, total). Either side may arrive
// first; reordered chunks can trail the completion message.
func (s *Session) checkTransferDone() {
	if !s.completeSeen || !s.assembler.Complete() {
		return
	}
	st := s.assembler.Stats()
	s.conclude(types.StateSucceeded, types.Outcome{
		Status: types.OutcomeSuccess,
		Message: fmt.Sprintf("transfer complete: %d/%d chunks, %d bytes",
			st.ChunksStored, s.assembler.TotalDeclared(), st.Bytes),
	})
}

func (s *Session) handleStatus(ev types.Event) {
	switch {
	case s.rules.VacuousSuccess(ev.Text):
		s.vacuous = true
		text := ev.Text
		s.conclude(types.StateSucceeded, types.Outcome{
			Status:     types.OutcomeSuccess,
			Message:    "device reports nothing to transfer",
			DeviceText: &text,
		})

	case s.rules.Success(ev.Text):
		text := ev.Text
		s.conclude(types.StateSucceeded, types.Outcome{
			Status:     types.OutcomeSuccess,
			Message:    "device reported completion",
			DeviceText: &text,
		})

	case s.rules.TransferStarting(ev.Text):
		s.logger.Info("device starting transfer", map[string]any{
			"status": ev.Text,
		})
	}
}

// handleDeadline resolves the timeout verdict. now comes from the
// injected event so transcript replay can use recorded time.
func (s *Session) handleDeadline(now time.Time) {
	if s.state == types.StateIdle || s.state.Terminal() {
		return
	}
	if s.deadline.IsZero() || now.Before(s.deadline) {
		return
	}

	received := s.assembler.Received()
	declared := s.assembler.TotalDeclared()
	msg := fmt.Sprintf("no verdict within %s", s.timeout)
	if received > 0 || declared > 0 {
		msg = fmt.Sprintf("no verdict within %s: %d/%d chunks received, missing %s",
			s.timeout, received, declared,
			coredump.FormatIndexRanges(s.assembler.Missing()))
	}
	s.conclude(types.StateTimedOut, types.Outcome{
		Status:  types.OutcomeTimeout,
		Message: msg,
	})
}

// conclude moves to a terminal state exactly once and freezes the
// transfer.
func (s *Session) conclude(state types.SessionState, outcome types.Outcome) {
	s.state = state
	s.outcome = &outcome
	s.assembler.Finalize()
	s.logger.Info("session concluded", map[string]any{
		"state":   string(state),
		"status":  string(outcome.Status),
		"message": outcome.Message,
	})
}

// State returns the current lifecycle state.
func (s *Session) State() types.SessionState {
	return s.state
}

// Terminal returns true once a verdict has been reached.
func (s *Session) Terminal() bool {
	return s.state.Terminal()
}

// Outcome returns the verdict once terminal.
func (s *Session) Outcome() (types.Outcome, bool) {
	if s.outcome == nil {
		return types.Outcome{}, false
	}
	return *s.outcome, true
}

// Target returns the tracked device, empty until broadcast adoption.
func (s *Session) Target() string {
	return s.target
}

// Vacuous returns true when the session succeeded with nothing to
// transfer; callers skip materialization and artifact saving.
func (s *Session) Vacuous() bool {
	return s.vacuous
}

// StartedAt returns when the operation was requested.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Deadline returns the operation deadline.
func (s *Session) Deadline() time.Time {
	return s.deadline
}

// Audit returns the ordered events observed for the target device,
// including any that arrived after the verdict.
func (s *Session) Audit() []types.Event {
	return s.audit
}
