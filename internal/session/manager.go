package session

import (
	"context"
	"sync"

	"github.com/quizhive/proctor-backend/internal/model"
	"github.com/quizhive/proctor-backend/internal/progress"
	"github.com/quizhive/proctor-backend/internal/quizapi"
	"github.com/rs/zerolog"
)

// Manager holds the live controllers, one per session id. A reconnecting
// client attaches to its existing controller instead of spawning a second
// attempt for the same session.
type Manager struct {
	cfg     Config
	store   progress.Store
	results progress.ResultStore
	api     quizapi.API
	log     zerolog.Logger

	mu          sync.RWMutex
	controllers map[string]*Controller
	cancels     map[string]context.CancelFunc
}

// NewManager creates an empty controller registry.
func NewManager(cfg Config, store progress.Store, results progress.ResultStore, api quizapi.API, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:         cfg,
		store:       store,
		results:     results,
		api:         api,
		log:         log.With().Str("component", "session_manager").Logger(),
		controllers: make(map[string]*Controller),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Attach returns the live controller for a session, creating and starting
// one on first attach. The bool reports whether the controller already
// existed. A finished controller is swept and replaced so a reload after a
// failed load can retry the fetch.
func (m *Manager) Attach(ctx context.Context, sessionID, quizID, bearerToken string) (*Controller, bool, error) {
	m.mu.Lock()
	if ctrl, ok := m.controllers[sessionID]; ok {
		if !ctrl.Phase().Terminal() {
			m.mu.Unlock()
			return ctrl, true, nil
		}
		m.removeLocked(sessionID)
	}

	ctrl := NewController(m.cfg, m.store, m.results, m.api, sessionID, quizID, bearerToken, m.log)
	runCtx, cancel := context.WithCancel(context.Background())
	m.controllers[sessionID] = ctrl
	m.cancels[sessionID] = cancel
	m.mu.Unlock()

	if err := ctrl.Start(ctx); err != nil {
		m.Release(sessionID)
		return nil, false, err
	}

	go ctrl.Run(runCtx)
	m.log.Info().Str("session_id", sessionID).Str("quiz_id", quizID).Msg("Session controller started")
	return ctrl, false, nil
}

// Get returns the live controller for a session, or nil.
func (m *Manager) Get(sessionID string) *Controller {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controllers[sessionID]
}

// Release stops and forgets a controller. Called when a session reaches a
// resting state or its last client detaches after submission.
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	m.removeLocked(sessionID)
	m.mu.Unlock()
}

func (m *Manager) removeLocked(sessionID string) {
	if cancel, ok := m.cancels[sessionID]; ok {
		cancel()
		delete(m.cancels, sessionID)
	}
	delete(m.controllers, sessionID)
}

// Shutdown cancels every run loop. Each controller flushes its snapshot on
// the way out, so in-flight attempts survive a restart.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
		delete(m.controllers, id)
	}
}

// ActivePhases reports the phase of every live controller, keyed by session
// id. Used by the readiness surface for operator visibility.
func (m *Manager) ActivePhases() map[string]model.Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	phases := make(map[string]model.Phase, len(m.controllers))
	for id, ctrl := range m.controllers {
		phases[id] = ctrl.Phase()
	}
	return phases
}
