package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "20:00", FormatClock(1200))
	assert.Equal(t, "00:59", FormatClock(59))
	assert.Equal(t, "01:00", FormatClock(60))
	assert.Equal(t, "00:00", FormatClock(0))
	// The clock never renders negative time.
	assert.Equal(t, "00:00", FormatClock(-5))
	// Budgets over an hour widen the minute field.
	assert.Equal(t, "100:01", FormatClock(6001))
}

func TestPalettePrecedence(t *testing.T) {
	env := startedEnv(t)

	// q1 is current, q2 bookmarked+answered, q3 answered, q4 visited,
	// q5 untouched.
	env.ctrl.SelectOption("q2", "A")
	env.ctrl.SelectOption("q3", "B")
	env.ctrl.ToggleBookmark("q2")
	env.ctrl.Navigate(3)
	env.ctrl.Navigate(0)

	view := env.ctrl.View()
	require.Len(t, view.Palette, 5)

	byID := make(map[string]QuestionStatus, len(view.Palette))
	for _, e := range view.Palette {
		byID[e.QuestionID] = e.Status
	}
	assert.Equal(t, StatusCurrent, byID["q1"])
	assert.Equal(t, StatusBookmarked, byID["q2"])
	assert.Equal(t, StatusAnswered, byID["q3"])
	assert.Equal(t, StatusVisited, byID["q4"])
	assert.Equal(t, StatusUnanswered, byID["q5"])
}

func TestPaletteCurrentWinsOverBookmark(t *testing.T) {
	env := startedEnv(t)

	env.ctrl.ToggleBookmark("q1")
	env.ctrl.SelectOption("q1", "A")

	view := env.ctrl.View()
	assert.Equal(t, StatusCurrent, view.Palette[0].Status)
}

func TestViewCopiesAreIsolated(t *testing.T) {
	env := startedEnv(t)

	view := env.ctrl.View()
	view.Answers["q1"] = "tampered"
	view.Bookmarked["q2"] = true
	view.Visited["q3"] = true

	fresh := env.ctrl.View()
	assert.Equal(t, Unanswered, fresh.Answers["q1"])
	assert.False(t, fresh.Bookmarked["q2"])
	assert.False(t, fresh.Visited["q3"])
}

func TestViewClockTracksRemaining(t *testing.T) {
	cfg := defaultConfig()
	cfg.TimeBudgetSeconds = 65
	env := newTestEnv(t, cfg, nil)
	require.NoError(t, env.ctrl.Start(context.Background()))

	env.ctrl.Tick(context.Background())
	view := env.ctrl.View()
	assert.Equal(t, 64, view.TimeRemaining)
	assert.Equal(t, "01:04", view.Clock)
}
