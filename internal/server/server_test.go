package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-librarian/server/internal/librarian/graph"
	"github.com/smart-librarian/server/internal/librarian/model"
	"github.com/smart-librarian/server/internal/media"
)

type stubRunner struct {
	got model.TurnInput
	res graph.Result
}

func (s *stubRunner) HandleTurn(_ context.Context, in model.TurnInput) graph.Result {
	s.got = in
	return s.res
}

func newTestServer(t *testing.T, runner graph.Runner) *Server {
	t.Helper()
	s, err := New(Config{StaticDir: t.TempDir()}, runner, media.NewClient(media.Config{}), nil)
	require.NoError(t, err)
	return s
}

type stubAudit struct {
	turns []model.TurnRecord
	err   error
}

func (s *stubAudit) Recent(_ context.Context, _ time.Time, n int) ([]model.TurnRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	if n > len(s.turns) {
		n = len(s.turns)
	}
	return s.turns[len(s.turns)-n:], nil
}

func (s *stubAudit) Count(_ context.Context, _ time.Time) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return len(s.turns), nil
}

func newTestServerWithAudit(t *testing.T, audit AuditReader) *Server {
	t.Helper()
	s, err := New(Config{StaticDir: t.TempDir()}, &stubRunner{}, media.NewClient(media.Config{}), audit)
	require.NoError(t, err)
	return s
}

func TestHandleChat(t *testing.T) {
	runner := &stubRunner{res: graph.Result{Reply: "Hi! What kind of books are you interested in?", Outcome: model.OutcomeGreet}}
	s := newTestServer(t, runner)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message": "  hello  "}`))
	req.Header.Set("Content-Type", "application/json")
	s.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", runner.got.Message, "message is trimmed")

	var res graph.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, model.OutcomeGreet, res.Outcome)
	assert.Equal(t, runner.res.Reply, res.Reply)
}

func TestHandleChatBadPayload(t *testing.T) {
	s := newTestServer(t, &stubRunner{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("not json"))
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleImageEmptyPrompt(t *testing.T) {
	s := newTestServer(t, &stubRunner{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/image", strings.NewReader(`{"prompt": "   "}`))
	req.Header.Set("Content-Type", "application/json")
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "empty_prompt")
}

func TestHandleTTSEmptyText(t *testing.T) {
	s := newTestServer(t, &stubRunner{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tts", strings.NewReader(`{"text": ""}`))
	req.Header.Set("Content-Type", "application/json")
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestHandleAudit(t *testing.T) {
	audit := &stubAudit{turns: []model.TurnRecord{
		{TurnID: "t1", Query: "books about war", Outcome: model.OutcomeAnswered, Reply: "…"},
		{TurnID: "t2", Query: "hi", Outcome: model.OutcomeGreet, Reply: "…"},
	}}
	s := newTestServerWithAudit(t, audit)

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audit?date=2026-08-28&n=1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Date  string             `json:"date"`
		Count int                `json:"count"`
		Turns []model.TurnRecord `json:"turns"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "2026-08-28", res.Date)
	assert.Equal(t, 2, res.Count)
	require.Len(t, res.Turns, 1)
	assert.Equal(t, "t2", res.Turns[0].TurnID)
}

func TestHandleAuditBadDate(t *testing.T) {
	s := newTestServerWithAudit(t, &stubAudit{})

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audit?date=28-08-2026", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditRouteAbsentWithoutTrail(t *testing.T) {
	s := newTestServer(t, &stubRunner{})

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audit", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &stubRunner{})

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
