// Package proctor turns raw environmental signals into counted violation
// events. Detection is decoupled from consequence: the monitor only reports
// counts into the session controller and queues audit records — thresholds
// and termination live in the controller, never here.
package proctor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quizhive/proctor-backend/internal/config"
	"github.com/quizhive/proctor-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Event is one observed environmental signal.
type Event struct {
	Kind    model.ViolationKind
	Payload string
	At      time.Time
}

// Source is an injectable stream of environmental events. Real sources are
// fed by the browser over the WebSocket gateway; tests substitute
// deterministic fakes.
type Source interface {
	Events() <-chan Event
}

// ChannelSource is the channel-backed Source used by the gateway.
type ChannelSource struct {
	ch chan Event
}

// NewChannelSource creates a buffered channel source.
func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{ch: make(chan Event, buffer)}
}

func (s *ChannelSource) Events() <-chan Event {
	return s.ch
}

// Emit pushes one event. Drops on a full buffer rather than blocking the
// caller: a lost audit record is preferable to a stalled event loop.
func (s *ChannelSource) Emit(ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// Close ends the source's stream.
func (s *ChannelSource) Close() {
	close(s.ch)
}

// Reporter is the controller-side intake the monitor drives. Satisfied by
// *session.Controller.
type Reporter interface {
	ReportTabHidden(ctx context.Context)
	ReportFullscreenExit(ctx context.Context)
}

// auditRecord is the queue payload drained by the violation worker.
type auditRecord struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Payload   string `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Monitor fans one or more sources into a session's controller and the
// audit queue. It never calls network or navigation functions beyond the
// queue push, and it re-arms immediately after every event.
type Monitor struct {
	sessionID string
	reporter  Reporter
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewMonitor creates a monitor for one session. rdb may be nil in tests;
// auditing is then skipped.
func NewMonitor(sessionID string, reporter Reporter, rdb *redis.Client, log zerolog.Logger) *Monitor {
	return &Monitor{
		sessionID: sessionID,
		reporter:  reporter,
		rdb:       rdb,
		log:       log.With().Str("component", "violation_monitor").Str("session_id", sessionID).Logger(),
	}
}

// Watch consumes a source until it closes or ctx is cancelled. Call in a
// goroutine, once per source.
func (m *Monitor) Watch(ctx context.Context, src Source) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-src.Events():
			if !ok {
				return
			}
			m.handle(ctx, ev)
		}
	}
}

// Report routes a single event outside a Watch loop. Used by the beacon
// endpoint, where events arrive as HTTP posts instead of a stream.
func (m *Monitor) Report(ctx context.Context, ev Event) {
	m.handle(ctx, ev)
}

func (m *Monitor) handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case model.ViolationTabSwitch:
		if m.reporter != nil {
			m.reporter.ReportTabHidden(ctx)
		}
	case model.ViolationFullscreenExit:
		if m.reporter != nil {
			m.reporter.ReportFullscreenExit(ctx)
		}
	default:
		m.log.Warn().Str("kind", string(ev.Kind)).Msg("Unknown violation kind")
		return
	}
	m.audit(ctx, ev)
}

// audit queues the event for batch persistence. Queue errors are logged and
// dropped — the count already reached the controller, which is the part
// that decides consequences.
func (m *Monitor) audit(ctx context.Context, ev Event) {
	if m.rdb == nil {
		return
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	data, _ := json.Marshal(auditRecord{
		SessionID: m.sessionID,
		Kind:      string(ev.Kind),
		Payload:   ev.Payload,
		Timestamp: at.Unix(),
	})
	if err := m.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err(); err != nil {
		m.log.Error().Err(err).Msg("Violation audit enqueue failed")
	}
}
