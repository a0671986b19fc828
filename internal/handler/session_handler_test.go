package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/quizhive/proctor-backend/internal/auth"
	"github.com/quizhive/proctor-backend/internal/middleware"
	"github.com/quizhive/proctor-backend/internal/model"
	"github.com/quizhive/proctor-backend/internal/progress"
	"github.com/quizhive/proctor-backend/internal/quizapi"
	"github.com/quizhive/proctor-backend/internal/session"
	"github.com/quizhive/proctor-backend/internal/validator"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	validator.Setup()
	m.Run()
}

// stubAPI is a minimal quiz backend double for handler tests.
type stubAPI struct {
	running   bool
	statusErr error
	questions []model.QuizQuestion
}

func (s *stubAPI) StartQuiz(_ context.Context, _, _ string) ([]model.QuizQuestion, error) {
	return s.questions, nil
}

func (s *stubAPI) SubmitAnswers(_ context.Context, _, _ string, _ []model.AnsweredQuestion) ([]byte, error) {
	return []byte(`{"score":0}`), nil
}

func (s *stubAPI) Status(_ context.Context) (bool, error) {
	return s.running, s.statusErr
}

var _ quizapi.API = (*stubAPI)(nil)

type handlerEnv struct {
	router  *gin.Engine
	manager *session.Manager
	results *progress.MemoryResultStore
	api     *stubAPI
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	api := &stubAPI{
		running: true,
		questions: []model.QuizQuestion{
			{ID: "q1", Text: "Q?", Options: []model.Option{{ID: "a", Text: "A"}}, Marks: 1},
		},
	}
	results := progress.NewMemoryResultStore()
	manager := session.NewManager(session.Config{
		TabSwitchLimit:      5,
		FullscreenExitLimit: 3,
		TimeBudgetSeconds:   1200,
		SnapshotInterval:    5 * time.Second,
	}, progress.NewMemoryStore(), results, api, zerolog.Nop())
	t.Cleanup(manager.Shutdown)

	h := NewSessionHandler(api, results, nil, manager, nil, zerolog.Nop())

	r := gin.New()
	r.GET("/api/v1/status", h.GetStatus)
	sessions := r.Group("/api/v1/sessions")
	sessions.Use(middleware.RequireSessionJWT(auth.NewValidator(testSecret)))
	{
		sessions.GET("/:session_id/result", h.GetResult)
		sessions.POST("/:session_id/violations", h.ReportViolation)
	}

	return &handlerEnv{router: r, manager: manager, results: results, api: api}
}

func signSessionToken(t *testing.T, sessionID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		SessionID: sessionID,
		QuizID:    "quiz-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doRequest(env *handlerEnv, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestGetStatusRunning(t *testing.T) {
	env := newHandlerEnv(t)

	w := doRequest(env, http.MethodGet, "/api/v1/status", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"running"`)
}

func TestGetStatusNotReady(t *testing.T) {
	env := newHandlerEnv(t)
	env.api.running = false

	w := doRequest(env, http.MethodGet, "/api/v1/status", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "BACKEND_NOT_READY")
}

func TestGetResultRequiresToken(t *testing.T) {
	env := newHandlerEnv(t)

	w := doRequest(env, http.MethodGet, "/api/v1/sessions/sess-1/result", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetResultSessionMismatch(t *testing.T) {
	env := newHandlerEnv(t)
	token := signSessionToken(t, "sess-1")

	w := doRequest(env, http.MethodGet, "/api/v1/sessions/sess-2/result", token, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "SESSION_MISMATCH")
}

func TestGetResultNotReady(t *testing.T) {
	env := newHandlerEnv(t)
	token := signSessionToken(t, "sess-1")

	w := doRequest(env, http.MethodGet, "/api/v1/sessions/sess-1/result", token, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "RESULT_NOT_READY")
}

func TestGetResultReturnsGradedPayload(t *testing.T) {
	env := newHandlerEnv(t)
	token := signSessionToken(t, "sess-1")

	require.NoError(t, env.results.SaveResult(context.Background(), "sess-1", &model.SubmitResult{
		SessionID:   "sess-1",
		Raw:         []byte(`{"score":8}`),
		SubmittedAt: time.Now().UTC(),
	}))

	w := doRequest(env, http.MethodGet, "/api/v1/sessions/sess-1/result", token, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data model.SubmitResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "sess-1", body.Data.SessionID)
}

func TestReportViolationReachesLiveController(t *testing.T) {
	env := newHandlerEnv(t)
	token := signSessionToken(t, "sess-1")

	ctrl, _, err := env.manager.Attach(context.Background(), "sess-1", "quiz-1", token)
	require.NoError(t, err)

	w := doRequest(env, http.MethodPost, "/api/v1/sessions/sess-1/violations", token,
		`{"kind":"tab_switch","payload":"beacon"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, ctrl.View().TabSwitchViolations)
}

func TestReportViolationWithoutLiveController(t *testing.T) {
	env := newHandlerEnv(t)
	token := signSessionToken(t, "sess-1")

	// No controller attached; the report is still accepted for audit.
	w := doRequest(env, http.MethodPost, "/api/v1/sessions/sess-1/violations", token,
		`{"kind":"fullscreen_exit"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestReportViolationRejectsUnknownKind(t *testing.T) {
	env := newHandlerEnv(t)
	token := signSessionToken(t, "sess-1")

	w := doRequest(env, http.MethodPost, "/api/v1/sessions/sess-1/violations", token,
		`{"kind":"telepathy"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}
