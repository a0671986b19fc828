package session

import (
	"context"
	"errors"
	"testing"

	"github.com/quizhive/proctor-backend/internal/model"
	"github.com/quizhive/proctor-backend/internal/progress"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(api *fakeAPI) *Manager {
	if api == nil {
		api = &fakeAPI{questions: testQuestions(3)}
	}
	return NewManager(defaultConfig(), progress.NewMemoryStore(), progress.NewMemoryResultStore(), api, zerolog.Nop())
}

func TestAttachCreatesAndReuses(t *testing.T) {
	m := newTestManager(nil)
	defer m.Shutdown()

	ctrl, existed, err := m.Attach(context.Background(), "sess-1", "quiz-1", "token")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, model.PhaseActive, ctrl.Phase())

	// A reconnect attaches to the same live controller.
	again, existed, err := m.Attach(context.Background(), "sess-1", "quiz-1", "token")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Same(t, ctrl, again)

	// A second session gets its own controller.
	other, existed, err := m.Attach(context.Background(), "sess-2", "quiz-1", "token")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.NotSame(t, ctrl, other)
}

func TestAttachStartFailureIsNotCached(t *testing.T) {
	api := &fakeAPI{startErr: errors.New("backend down")}
	m := newTestManager(api)
	defer m.Shutdown()

	_, _, err := m.Attach(context.Background(), "sess-1", "quiz-1", "token")
	require.Error(t, err)
	assert.Nil(t, m.Get("sess-1"))

	// Once the backend recovers, the same session can attach again.
	api.mu.Lock()
	api.startErr = nil
	api.questions = testQuestions(3)
	api.mu.Unlock()

	ctrl, existed, err := m.Attach(context.Background(), "sess-1", "quiz-1", "token")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, model.PhaseActive, ctrl.Phase())
}

func TestFinishedControllerIsSwept(t *testing.T) {
	m := newTestManager(nil)
	defer m.Shutdown()

	ctrl, _, err := m.Attach(context.Background(), "sess-1", "quiz-1", "token")
	require.NoError(t, err)

	ctrl.Submit(context.Background(), true)
	require.Equal(t, model.PhaseSubmitted, ctrl.Phase())

	// Attaching after submission replaces the spent controller.
	fresh, existed, err := m.Attach(context.Background(), "sess-1", "quiz-1", "token")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.NotSame(t, ctrl, fresh)
}

func TestReleaseForgetsController(t *testing.T) {
	m := newTestManager(nil)
	defer m.Shutdown()

	_, _, err := m.Attach(context.Background(), "sess-1", "quiz-1", "token")
	require.NoError(t, err)
	require.NotNil(t, m.Get("sess-1"))

	m.Release("sess-1")
	assert.Nil(t, m.Get("sess-1"))
}

func TestActivePhases(t *testing.T) {
	m := newTestManager(nil)
	defer m.Shutdown()

	_, _, err := m.Attach(context.Background(), "sess-1", "quiz-1", "token")
	require.NoError(t, err)
	_, _, err = m.Attach(context.Background(), "sess-2", "quiz-1", "token")
	require.NoError(t, err)

	phases := m.ActivePhases()
	assert.Len(t, phases, 2)
	assert.Equal(t, model.PhaseActive, phases["sess-1"])
	assert.Equal(t, model.PhaseActive, phases["sess-2"])
}
