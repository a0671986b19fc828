package quizapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quizhive/proctor-backend/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, zerolog.Nop()), srv
}

func TestStartQuizDecodesQuestions(t *testing.T) {
	var gotPath, gotAuth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"data": {
				"questions": [
					{"id":"q1","text":"First?","options":[{"id":"a","text":"Yes"}],"marks":2},
					{"id":"q2","text":"Second?","options":[{"id":"a","text":"No"}]}
				]
			}
		}`))
	})

	questions, err := client.StartQuiz(context.Background(), "quiz-9", "tok-123")
	require.NoError(t, err)
	assert.Equal(t, "/quizzes/quiz-9/start", gotPath)
	assert.Equal(t, "Bearer tok-123", gotAuth)

	require.Len(t, questions, 2)
	assert.Equal(t, "q1", questions[0].ID)
	assert.Equal(t, 2, questions[0].Marks)
	// Omitted marks default to 1.
	assert.Equal(t, 1, questions[1].Marks)
}

func TestStartQuizEmptySetIsAnError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": {"questions": []}}`))
	})

	_, err := client.StartQuiz(context.Background(), "quiz-9", "tok")
	assert.Error(t, err)
}

func TestStartQuizErrorStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.StartQuiz(context.Background(), "quiz-9", "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestSubmitAnswersSendsAnsweredSubset(t *testing.T) {
	var gotBody struct {
		Answers []model.AnsweredQuestion `json:"answers"`
	}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sessions/sess-1/submit", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"success": true, "data": {"score": 7, "max_score": 10}}`))
	})

	raw, err := client.SubmitAnswers(context.Background(), "sess-1", "tok", []model.AnsweredQuestion{
		{QuestionID: "q1", SelectedOption: "A"},
		{QuestionID: "q3", SelectedOption: "B"},
	})
	require.NoError(t, err)

	require.Len(t, gotBody.Answers, 2)
	assert.Equal(t, "q1", gotBody.Answers[0].QuestionID)
	assert.Equal(t, "A", gotBody.Answers[0].SelectedOption)
	assert.JSONEq(t, `{"score": 7, "max_score": 10}`, string(raw))
}

func TestSubmitAnswersRejectedEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "message": "session already finished"}`))
	})

	_, err := client.SubmitAnswers(context.Background(), "sess-1", "tok", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session already finished")
}

func TestSubmitAnswersEmptyListIsValid(t *testing.T) {
	var gotBody struct {
		Answers []model.AnsweredQuestion `json:"answers"`
	}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"success": true, "data": {"score": 0}}`))
	})

	// A terminated session submits whatever it has, possibly nothing.
	_, err := client.SubmitAnswers(context.Background(), "sess-1", "tok", []model.AnsweredQuestion{})
	require.NoError(t, err)
	assert.Empty(t, gotBody.Answers)
}

func TestStatusRunning(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/status", r.URL.Path)
		w.Write([]byte(`{"success": true, "data": {"status": "running"}}`))
	})

	ready, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestStatusNotRunning(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": {"status": "maintenance"}}`))
	})

	ready, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestStatusBackendUnreachable(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := client.Status(context.Background())
	assert.Error(t, err)
}
