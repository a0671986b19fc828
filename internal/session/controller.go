// Package session implements the proctored quiz session core: a per-session
// state machine that reconciles user intents, countdown ticks and violation
// reports into one consistent submission decision, made exactly once.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quizhive/proctor-backend/internal/model"
	"github.com/quizhive/proctor-backend/internal/progress"
	"github.com/quizhive/proctor-backend/internal/quizapi"
	"github.com/rs/zerolog"
)

// Unanswered is the sentinel value for a question without a selection.
const Unanswered = ""

// Termination reasons carried on the result payload and state frames.
const (
	ReasonTimeExpired     = "Time ran out."
	ReasonTabSwitching    = "Quiz terminated due to excessive tab switching."
	ReasonFullscreenExits = "Quiz terminated due to repeated fullscreen exits."
)

// ErrSessionRequired is returned when a controller is started without a
// session credential.
var ErrSessionRequired = errors.New("session credential missing")

// Config carries the proctoring thresholds and timing knobs. Thresholds are
// configuration on purpose: consequence tuning must not touch event wiring.
type Config struct {
	TabSwitchLimit      int
	FullscreenExitLimit int
	TimeBudgetSeconds   int
	SnapshotInterval    time.Duration
}

// Controller owns the transient state of one proctored attempt. All state is
// mutated under a single mutex, which serializes timer ticks, violation
// reports and user intents into one ordered stream of transitions.
type Controller struct {
	cfg     Config
	log     zerolog.Logger
	store   progress.Store
	results progress.ResultStore
	api     quizapi.API

	sessionID string
	quizID    string
	token     string

	mu         sync.Mutex
	questions  []model.QuizQuestion
	indexByID  map[string]int
	answers    map[string]string
	bookmarked map[string]bool
	visited    map[string]bool

	currentIndex  int
	timeRemaining int

	tabSwitches     int
	fullscreenExits int

	phase             model.Phase
	showSubmitWarning bool
	fullscreenWarning int // pending warning count, 0 = none
	terminated        bool
	terminationReason string
	expired           bool // timer one-shot guard
	submitInFlight    bool // single-flight submission guard
	submitted         bool
	lastErr           string
	dirty             bool

	// notify is invoked after every observable state change, outside the
	// lock, so the gateway can push a fresh state frame.
	notify func()
}

// NewController creates a controller in the LOADING phase. Start must be
// called before any other operation.
func NewController(
	cfg Config,
	store progress.Store,
	results progress.ResultStore,
	api quizapi.API,
	sessionID, quizID, bearerToken string,
	log zerolog.Logger,
) *Controller {
	return &Controller{
		cfg:       cfg,
		log:       log.With().Str("component", "session_controller").Str("session_id", sessionID).Logger(),
		store:     store,
		results:   results,
		api:       api,
		sessionID: sessionID,
		quizID:    quizID,
		token:     bearerToken,
		phase:     model.PhaseLoading,
	}
}

// SetNotify registers the state-change callback. Pass nil to detach.
func (c *Controller) SetNotify(fn func()) {
	c.mu.Lock()
	c.notify = fn
	c.mu.Unlock()
}

// SessionID returns the opaque session identifier this controller owns.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Start fetches the question set and rehydrates any persisted progress.
// It is the only LOADING-phase operation; fetch failure is fatal to the
// session (FAILED) and is not retried automatically.
func (c *Controller) Start(ctx context.Context) error {
	if c.sessionID == "" {
		c.fail(ErrSessionRequired.Error())
		return ErrSessionRequired
	}

	questions, err := c.api.StartQuiz(ctx, c.quizID, c.token)
	if err != nil {
		c.log.Error().Err(err).Str("quiz_id", c.quizID).Msg("Question fetch failed")
		c.fail("failed to load quiz")
		return err
	}

	// Loaded exactly once, before any other mutation.
	snap, err := c.store.Load(ctx, c.sessionID)
	if err != nil {
		c.log.Warn().Err(err).Msg("Snapshot load failed, starting fresh")
		snap = nil
	}

	c.mu.Lock()
	c.questions = questions
	c.indexByID = make(map[string]int, len(questions))
	c.answers = make(map[string]string, len(questions))
	c.bookmarked = make(map[string]bool, len(questions))
	c.visited = make(map[string]bool, len(questions))
	for i, q := range questions {
		c.indexByID[q.ID] = i
		c.answers[q.ID] = Unanswered
		c.bookmarked[q.ID] = false
		c.visited[q.ID] = false
	}
	c.currentIndex = 0
	c.timeRemaining = c.cfg.TimeBudgetSeconds

	if snap != nil {
		c.rehydrateLocked(snap)
		c.log.Info().
			Int("current_index", c.currentIndex).
			Int("time_remaining", c.timeRemaining).
			Msg("Session rehydrated from snapshot")
	}

	// The opening question counts as visited.
	if len(c.questions) > 0 {
		c.visited[c.questions[c.currentIndex].ID] = true
	}

	c.phase = model.PhaseActive
	c.mu.Unlock()

	c.changed()
	return nil
}

// rehydrateLocked applies a persisted snapshot over the freshly initialized
// maps. Only keys belonging to the fetched question set are honored, so the
// three maps always share the exact question-id key set.
func (c *Controller) rehydrateLocked(snap *progress.Snapshot) {
	for id := range c.answers {
		if v, ok := snap.Answers[id]; ok {
			c.answers[id] = v
		}
		if v, ok := snap.Bookmarked[id]; ok {
			c.bookmarked[id] = v
		}
		if v, ok := snap.Visited[id]; ok {
			c.visited[id] = v
		}
	}
	if snap.CurrentIndex >= 0 && snap.CurrentIndex < len(c.questions) {
		c.currentIndex = snap.CurrentIndex
	}
	if snap.TimeRemainingSeconds >= 0 {
		c.timeRemaining = snap.TimeRemainingSeconds
	}
}

func (c *Controller) fail(msg string) {
	c.mu.Lock()
	c.phase = model.PhaseFailed
	c.lastErr = msg
	c.mu.Unlock()
	c.changed()
}

// ─── Intents ───────────────────────────────────────────────────────

// SelectOption records the selected option for a question. Unknown question
// ids are ignored: the answer key set never grows.
func (c *Controller) SelectOption(questionID, option string) {
	c.mu.Lock()
	if c.phase != model.PhaseActive {
		c.mu.Unlock()
		return
	}
	if _, ok := c.answers[questionID]; !ok {
		c.mu.Unlock()
		return
	}
	c.answers[questionID] = option
	c.dirty = true
	c.mu.Unlock()
	c.changed()
}

// ToggleBookmark flips the bookmark flag for a question.
func (c *Controller) ToggleBookmark(questionID string) {
	c.mu.Lock()
	if c.phase != model.PhaseActive {
		c.mu.Unlock()
		return
	}
	if _, ok := c.bookmarked[questionID]; !ok {
		c.mu.Unlock()
		return
	}
	c.bookmarked[questionID] = !c.bookmarked[questionID]
	c.dirty = true
	c.mu.Unlock()
	c.changed()
}

// Navigate moves to the question at index. Out-of-range requests are no-ops,
// not errors. The target question is marked visited; visited never reverts.
func (c *Controller) Navigate(index int) {
	c.mu.Lock()
	if c.phase != model.PhaseActive || index < 0 || index >= len(c.questions) {
		c.mu.Unlock()
		return
	}
	c.currentIndex = index
	c.visited[c.questions[index].ID] = true
	c.dirty = true
	c.mu.Unlock()
	c.changed()
}

// Next advances to the following question, if any.
func (c *Controller) Next() {
	c.mu.Lock()
	idx := c.currentIndex + 1
	c.mu.Unlock()
	c.Navigate(idx)
}

// Previous steps back to the preceding question, if any.
func (c *Controller) Previous() {
	c.mu.Lock()
	idx := c.currentIndex - 1
	c.mu.Unlock()
	c.Navigate(idx)
}

// Submit starts the submission procedure. With unanswered questions and
// force=false it only raises the confirmation warning; no network call is
// made until the user confirms.
func (c *Controller) Submit(ctx context.Context, force bool) {
	c.mu.Lock()
	if c.phase == model.PhaseTerminated {
		// Retry path for a forced submission that failed to land. The
		// termination reason is already recorded.
		c.submitLocked(ctx, "")
		return
	}
	if c.phase != model.PhaseActive {
		c.mu.Unlock()
		return
	}
	if !force && c.unansweredLocked() > 0 {
		c.phase = model.PhaseSubmitWarning
		c.showSubmitWarning = true
		c.mu.Unlock()
		c.changed()
		return
	}
	c.submitLocked(ctx, "")
}

// CancelSubmit dismisses the unanswered-questions warning.
func (c *Controller) CancelSubmit() {
	c.mu.Lock()
	if c.phase != model.PhaseSubmitWarning {
		c.mu.Unlock()
		return
	}
	c.phase = model.PhaseActive
	c.showSubmitWarning = false
	c.mu.Unlock()
	c.changed()
}

// ConfirmSubmit proceeds with submission despite unanswered questions.
func (c *Controller) ConfirmSubmit(ctx context.Context) {
	c.mu.Lock()
	if c.phase != model.PhaseSubmitWarning {
		c.mu.Unlock()
		return
	}
	c.submitLocked(ctx, "")
}

// ─── Environmental events ──────────────────────────────────────────

// ReportTabHidden counts one tab-switch violation. Reaching the configured
// limit terminates the session and force-submits.
func (c *Controller) ReportTabHidden(ctx context.Context) {
	c.mu.Lock()
	if !c.monitoringLocked() {
		c.mu.Unlock()
		return
	}
	c.tabSwitches++
	if c.tabSwitches >= c.cfg.TabSwitchLimit {
		c.terminateLocked(ctx, ReasonTabSwitching)
		return
	}
	c.mu.Unlock()
	c.changed()
}

// ReportFullscreenExit counts one fullscreen-exit violation. Counts below
// the limit surface a warning carrying the new count; the limit terminates.
func (c *Controller) ReportFullscreenExit(ctx context.Context) {
	c.mu.Lock()
	if !c.monitoringLocked() {
		c.mu.Unlock()
		return
	}
	c.fullscreenExits++
	if c.fullscreenExits >= c.cfg.FullscreenExitLimit {
		c.terminateLocked(ctx, ReasonFullscreenExits)
		return
	}
	c.fullscreenWarning = c.fullscreenExits
	c.mu.Unlock()
	c.changed()
}

// AcknowledgeFullscreenWarning dismisses the pending fullscreen warning.
// The client re-requests fullscreen on its side; the count is not reset.
func (c *Controller) AcknowledgeFullscreenWarning() {
	c.mu.Lock()
	c.fullscreenWarning = 0
	c.mu.Unlock()
	c.changed()
}

// monitoringLocked reports whether environmental events still matter.
// Once a submission is in flight or done, late events are ignored rather
// than queued for a second submission.
func (c *Controller) monitoringLocked() bool {
	return c.phase == model.PhaseActive || c.phase == model.PhaseSubmitWarning
}

// ─── Timer ─────────────────────────────────────────────────────────

// Tick advances the countdown by one second. Reaching zero fires the
// time-expired transition exactly once; later ticks are no-ops and the
// counter never goes negative.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	if c.expired || !c.monitoringLocked() {
		c.mu.Unlock()
		return
	}
	if c.timeRemaining > 0 {
		c.timeRemaining--
	}
	if c.timeRemaining > 0 {
		c.mu.Unlock()
		c.changed()
		return
	}
	c.expired = true
	c.log.Info().Msg("Time budget exhausted, forcing submission")
	c.submitLocked(ctx, ReasonTimeExpired)
}

// ─── Submission ────────────────────────────────────────────────────

// terminateLocked transitions to TERMINATED and immediately runs the forced
// submission. Caller holds the lock; it is released inside submitLocked.
func (c *Controller) terminateLocked(ctx context.Context, reason string) {
	c.terminated = true
	c.phase = model.PhaseTerminated
	c.log.Warn().
		Str("reason", reason).
		Int("tab_switches", c.tabSwitches).
		Int("fullscreen_exits", c.fullscreenExits).
		Msg("Session terminated")
	c.submitLocked(ctx, reason)
}

// submitLocked runs the submission procedure. The caller holds the lock; the
// lock is released around the network call and re-taken to apply the
// outcome. The single-flight guard collapses simultaneous triggers (manual
// confirm, timer expiry, violation threshold) into one outbound request.
func (c *Controller) submitLocked(ctx context.Context, reason string) {
	if c.submitInFlight || c.submitted {
		c.mu.Unlock()
		return
	}
	c.submitInFlight = true
	c.showSubmitWarning = false
	if reason != "" {
		c.terminationReason = reason
	}
	if !c.terminated {
		c.phase = model.PhaseSubmitting
	}

	answered := make([]model.AnsweredQuestion, 0, len(c.answers))
	for _, q := range c.questions {
		if v := c.answers[q.ID]; v != Unanswered {
			answered = append(answered, model.AnsweredQuestion{
				QuestionID:     q.ID,
				SelectedOption: v,
			})
		}
	}
	finalReason := c.terminationReason
	c.mu.Unlock()
	c.changed()

	raw, err := c.api.SubmitAnswers(ctx, c.sessionID, c.token, answered)

	c.mu.Lock()
	c.submitInFlight = false
	if err != nil {
		// Recoverable: in-memory answers survive and the user (or the
		// termination path) may retry. No automatic retry loop here.
		c.lastErr = "submission failed, please try again"
		if !c.terminated {
			c.phase = model.PhaseActive
		}
		c.mu.Unlock()
		c.log.Error().Err(err).Msg("Submission failed")
		c.changed()
		return
	}

	c.submitted = true
	c.phase = model.PhaseSubmitted
	c.lastErr = ""
	c.mu.Unlock()

	res := &model.SubmitResult{
		SessionID:         c.sessionID,
		Raw:               raw,
		TerminationReason: finalReason,
		SubmittedAt:       time.Now().UTC(),
	}
	if err := c.results.SaveResult(ctx, c.sessionID, res); err != nil {
		c.log.Error().Err(err).Msg("Result hand-off failed")
	}
	// The snapshot dies the instant the submission lands.
	if err := c.store.Clear(ctx, c.sessionID); err != nil {
		c.log.Error().Err(err).Msg("Snapshot clear failed")
	}

	c.log.Info().
		Int("answered", len(answered)).
		Str("reason", finalReason).
		Msg("Session submitted")
	c.changed()
}

func (c *Controller) unansweredLocked() int {
	n := 0
	for _, v := range c.answers {
		if v == Unanswered {
			n++
		}
	}
	return n
}

// ─── Persistence ───────────────────────────────────────────────────

// FlushProgress writes the current snapshot if anything changed since the
// last flush. Time remaining is always considered changed while active.
func (c *Controller) FlushProgress(ctx context.Context) {
	c.mu.Lock()
	if !c.monitoringLocked() {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	c.dirty = false
	c.mu.Unlock()

	if err := c.store.Save(ctx, c.sessionID, snap); err != nil {
		c.log.Error().Err(err).Msg("Snapshot save failed")
	}
}

// snapshotLocked copies the persistable state. Caller holds the lock.
func (c *Controller) snapshotLocked() *progress.Snapshot {
	snap := &progress.Snapshot{
		Answers:              make(map[string]string, len(c.answers)),
		Bookmarked:           make(map[string]bool, len(c.bookmarked)),
		Visited:              make(map[string]bool, len(c.visited)),
		CurrentIndex:         c.currentIndex,
		TimeRemainingSeconds: c.timeRemaining,
	}
	for k, v := range c.answers {
		snap.Answers[k] = v
	}
	for k, v := range c.bookmarked {
		snap.Bookmarked[k] = v
	}
	for k, v := range c.visited {
		snap.Visited[k] = v
	}
	return snap
}

// Run drives the countdown and the periodic snapshot flush until ctx is
// cancelled or the session reaches a resting state. Call in a goroutine.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	flushEvery := int(c.cfg.SnapshotInterval / time.Second)
	if flushEvery < 1 {
		flushEvery = 1
	}

	elapsed := 0
	for {
		select {
		case <-ctx.Done():
			// Best-effort flush so a restart resumes close to the
			// disconnect point.
			c.FlushProgress(context.Background())
			return
		case <-ticker.C:
			c.Tick(ctx)
			elapsed++
			if elapsed%flushEvery == 0 {
				c.FlushProgress(ctx)
			}
			if c.Phase().Terminal() {
				return
			}
		}
	}
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() model.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// changed fires the notify callback, if any, outside the lock.
func (c *Controller) changed() {
	c.mu.Lock()
	fn := c.notify
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
