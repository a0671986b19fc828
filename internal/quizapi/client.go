// Package quizapi is the client for the external quiz backend. It owns the
// wire format of the start/submit/status endpoints and nothing else; grading
// and question authoring live entirely on the other side of this boundary.
package quizapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quizhive/proctor-backend/internal/model"
	"github.com/rs/zerolog"
)

// API is the surface the session controller depends on. A fake
// implementation stands in during tests.
type API interface {
	// StartQuiz fetches the ordered question set for a quiz.
	StartQuiz(ctx context.Context, quizID, bearerToken string) ([]model.QuizQuestion, error)
	// SubmitAnswers posts the answered subset and returns the graded
	// payload verbatim.
	SubmitAnswers(ctx context.Context, sessionID, bearerToken string, answers []model.AnsweredQuestion) ([]byte, error)
	// Status reports whether the quiz backend is ready to serve.
	Status(ctx context.Context) (bool, error)
}

// envelope is the quiz backend's standard response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a quiz backend client with the given base URL and timeout.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "quizapi").Logger(),
	}
}

func (c *Client) StartQuiz(ctx context.Context, quizID, bearerToken string) ([]model.QuizQuestion, error) {
	var env envelope
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/quizzes/%s/start", quizID), bearerToken, nil, &env); err != nil {
		return nil, err
	}

	var payload struct {
		Questions []model.QuizQuestion `json:"questions"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode question set: %w", err)
	}
	if len(payload.Questions) == 0 {
		return nil, fmt.Errorf("quiz %s has no questions", quizID)
	}

	// Default marks to 1 where the backend omits them.
	for i := range payload.Questions {
		if payload.Questions[i].Marks <= 0 {
			payload.Questions[i].Marks = 1
		}
	}

	return payload.Questions, nil
}

func (c *Client) SubmitAnswers(ctx context.Context, sessionID, bearerToken string, answers []model.AnsweredQuestion) ([]byte, error) {
	body := struct {
		Answers []model.AnsweredQuestion `json:"answers"`
	}{Answers: answers}

	var env envelope
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%s/submit", sessionID), bearerToken, body, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "submission rejected"
		}
		return nil, fmt.Errorf("submit session %s: %s", sessionID, msg)
	}

	return env.Data, nil
}

func (c *Client) Status(ctx context.Context) (bool, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/status", "", nil, &env); err != nil {
		return false, err
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return false, fmt.Errorf("decode status: %w", err)
	}
	return payload.Status == "running", nil
}

// do performs one request against the quiz backend and decodes the envelope.
func (c *Client) do(ctx context.Context, method, path, bearerToken string, body interface{}, out *envelope) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("path", path).
			Msg("Quiz backend returned error status")
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
