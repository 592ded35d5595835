package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chocolingo/server/internal/auth"
	"github.com/chocolingo/server/internal/progress"
	"github.com/chocolingo/server/internal/quiz"
)

type testEnv struct {
	mux    *http.ServeMux
	store  *quiz.MemoryStore
	tokens *auth.MemoryTokenStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := quiz.NewMemoryStore()
	tokens := auth.NewMemoryTokenStore()
	broker := progress.NewBroker()

	progressSvc := progress.NewService(progress.ServiceConfig{Store: store, Broker: broker})
	quizSvc := quiz.NewService(quiz.ServiceConfig{Store: store, Listener: progressSvc})
	authSvc := auth.NewService(auth.ServiceConfig{Store: store, Tokens: tokens, TokenTTL: time.Hour})

	h := New(Config{
		Quiz:     quizSvc,
		Progress: progressSvc,
		Auth:     authSvc,
		Store:    store,
		Broker:   broker,
	})
	return &testEnv{mux: h.Routes(), store: store, tokens: tokens}
}

func (e *testEnv) seedTopic(t *testing.T) (topicID int64, questionIDs []int64) {
	t.Helper()
	ctx := context.Background()

	topic := &quiz.Topic{Title: "Basic Verbs", Level: "A0"}
	if err := e.store.CreateTopic(ctx, topic); err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}
	for _, answer := range []string{"went", "went", "run"} {
		q := &quiz.Question{TopicID: topic.ID, Prompt: "p", Type: quiz.FillBlank, CorrectAnswer: answer, Active: true}
		if err := e.store.CreateQuestion(ctx, q); err != nil {
			t.Fatalf("CreateQuestion() error = %v", err)
		}
		questionIDs = append(questionIDs, q.ID)
	}
	return topic.ID, questionIDs
}

// newUserToken provisions an account directly and issues it a token.
func (e *testEnv) newUserToken(t *testing.T, username, role string) (int64, string) {
	t.Helper()
	ctx := context.Background()

	user := &quiz.User{Username: username, Email: username + "@example.com", PasswordHash: "x", Role: role}
	if err := e.store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	token := "token-" + username
	if err := e.tokens.Save(ctx, token, user.ID, time.Hour); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return user.ID, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestRegisterLoginMe(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "correcthorse",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201: %s", rec.Code, rec.Body)
	}

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "correcthorse",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200: %s", rec.Code, rec.Body)
	}
	login := decodeBody[struct {
		Token string `json:"token"`
	}](t, rec)
	if login.Token == "" {
		t.Fatal("login returned empty token")
	}

	rec = env.do(t, http.MethodGet, "/api/auth/me", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, want 200", rec.Code)
	}
	me := decodeBody[quiz.User](t, rec)
	if me.Username != "alice" {
		t.Errorf("username = %q, want alice", me.Username)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	paths := []string{
		"/api/topics",
		"/api/progress/dashboard",
		"/api/progress/map",
	}
	for _, path := range paths {
		if rec := env.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token status = %d, want 401", path, rec.Code)
		}
		if rec := env.do(t, http.MethodGet, path, "bogus", nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s with bad token status = %d, want 401", path, rec.Code)
		}
	}
}

func TestQueryTokenOnlyAcceptedOnFeed(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.newUserToken(t, "carol", quiz.RoleStudent)

	rec := env.do(t, http.MethodGet, "/api/progress/dashboard?token="+token, "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("dashboard with query token status = %d, want 401", rec.Code)
	}

	// The feed resolves the query token; without upgrade headers it is the
	// websocket handshake that fails, not authentication.
	rec = env.do(t, http.MethodGet, "/api/progress/feed?token="+token, "", nil)
	if rec.Code == http.StatusUnauthorized {
		t.Errorf("feed with query token status = %d, want authenticated", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/progress/feed?token=bogus", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("feed with bad query token status = %d, want 401", rec.Code)
	}
}

func TestListTopics_IncludesQuestionCount(t *testing.T) {
	env := newTestEnv(t)
	env.seedTopic(t)
	_, token := env.newUserToken(t, "alice", quiz.RoleStudent)

	rec := env.do(t, http.MethodGet, "/api/topics", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	topics := decodeBody[[]struct {
		Title         string `json:"title"`
		QuestionCount int    `json:"question_count"`
	}](t, rec)
	if len(topics) != 1 {
		t.Fatalf("topics = %d, want 1", len(topics))
	}
	if topics[0].QuestionCount != 3 {
		t.Errorf("question_count = %d, want 3", topics[0].QuestionCount)
	}
}

func TestQuizFlow(t *testing.T) {
	env := newTestEnv(t)
	topicID, questionIDs := env.seedTopic(t)
	_, token := env.newUserToken(t, "alice", quiz.RoleStudent)

	// Create a session; the payload must not leak correct answers.
	rec := env.do(t, http.MethodPost, "/api/quiz/sessions", token, map[string]any{
		"topic_id": topicID, "mode": "normal",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, want 201: %s", rec.Code, rec.Body)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("correct_answer")) {
		t.Error("session payload leaks correct answers")
	}
	created := decodeBody[struct {
		Session struct {
			ID int64 `json:"id"`
		} `json:"session"`
		Questions []struct {
			ID int64 `json:"id"`
		} `json:"questions"`
	}](t, rec)
	if len(created.Questions) != 3 {
		t.Fatalf("questions = %d, want 3", len(created.Questions))
	}

	// Submit two correct, one wrong.
	rec = env.do(t, http.MethodPost,
		fmt.Sprintf("/api/quiz/sessions/%d/answers", created.Session.ID), token,
		map[string]any{"answers": []map[string]any{
			{"question_id": questionIDs[0], "user_answer": "went"},
			{"question_id": questionIDs[1], "user_answer": "went"},
			{"question_id": questionIDs[2], "user_answer": "runs"},
		}})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, want 200: %s", rec.Code, rec.Body)
	}
	result := decodeBody[quiz.Result](t, rec)
	if result.CorrectAnswers != 2 || result.TotalQuestions != 3 {
		t.Errorf("result = %+v, want 2/3 correct", result)
	}

	// Second submission conflicts.
	rec = env.do(t, http.MethodPost,
		fmt.Sprintf("/api/quiz/sessions/%d/answers", created.Session.ID), token,
		map[string]any{"answers": []map[string]any{
			{"question_id": questionIDs[0], "user_answer": "went"},
		}})
	if rec.Code != http.StatusConflict {
		t.Errorf("second submit status = %d, want 409", rec.Code)
	}

	// Results re-derive the same outcome.
	rec = env.do(t, http.MethodGet,
		fmt.Sprintf("/api/quiz/sessions/%d/results", created.Session.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("results status = %d, want 200: %s", rec.Code, rec.Body)
	}
	derived := decodeBody[quiz.Result](t, rec)
	if derived.CorrectAnswers != result.CorrectAnswers {
		t.Errorf("derived correct = %d, want %d", derived.CorrectAnswers, result.CorrectAnswers)
	}

	// Dashboard reflects the completion.
	rec = env.do(t, http.MethodGet, "/api/progress/dashboard", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d, want 200", rec.Code)
	}
	dash := decodeBody[progress.Dashboard](t, rec)
	if dash.Streak != 1 || dash.TotalAnswered != 3 {
		t.Errorf("dashboard = %+v, want streak 1, answered 3", dash)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	topicID, _ := env.seedTopic(t)
	_, token := env.newUserToken(t, "alice", quiz.RoleStudent)
	_, otherToken := env.newUserToken(t, "bob", quiz.RoleStudent)

	// Unknown topic → 404.
	rec := env.do(t, http.MethodPost, "/api/quiz/sessions", token, map[string]any{"topic_id": 999})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown topic status = %d, want 404", rec.Code)
	}

	// Malformed body → 400.
	req := httptest.NewRequest(http.MethodPost, "/api/quiz/sessions", bytes.NewReader([]byte("{")))
	req.Header.Set("Authorization", "Bearer "+token)
	rec2 := httptest.NewRecorder()
	env.mux.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec2.Code)
	}

	// Foreign session → 404, not 403.
	rec = env.do(t, http.MethodPost, "/api/quiz/sessions", token, map[string]any{"topic_id": topicID})
	created := decodeBody[struct {
		Session struct {
			ID int64 `json:"id"`
		} `json:"session"`
	}](t, rec)
	rec = env.do(t, http.MethodGet,
		fmt.Sprintf("/api/quiz/sessions/%d", created.Session.ID), otherToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign session status = %d, want 404", rec.Code)
	}

	// Results before completion → 409.
	rec = env.do(t, http.MethodGet,
		fmt.Sprintf("/api/quiz/sessions/%d/results", created.Session.ID), token, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("early results status = %d, want 409", rec.Code)
	}
}

func TestAdminRoleEnforced(t *testing.T) {
	env := newTestEnv(t)
	_, student := env.newUserToken(t, "alice", quiz.RoleStudent)
	_, admin := env.newUserToken(t, "root", quiz.RoleAdmin)

	rec := env.do(t, http.MethodGet, "/api/admin/dashboard", student, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("student admin access status = %d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/admin/dashboard", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin dashboard status = %d, want 200: %s", rec.Code, rec.Body)
	}
	counts := decodeBody[quiz.Counts](t, rec)
	if counts.Users != 2 {
		t.Errorf("total_users = %d, want 2", counts.Users)
	}
}

func TestAdminTopicCRUD(t *testing.T) {
	env := newTestEnv(t)
	_, admin := env.newUserToken(t, "root", quiz.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/api/admin/topics", admin, map[string]any{
		"title": "Basic Verbs", "description": "d", "level": "A0",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create topic status = %d, want 201: %s", rec.Code, rec.Body)
	}
	topic := decodeBody[quiz.Topic](t, rec)

	// Self-prerequisite is rejected on update.
	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/admin/topics/%d", topic.ID), admin,
		map[string]any{"title": "Basic Verbs", "prerequisite_topic_id": topic.ID})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("self-prerequisite status = %d, want 400", rec.Code)
	}

	// Unknown prerequisite is rejected.
	rec = env.do(t, http.MethodPost, "/api/admin/topics", admin,
		map[string]any{"title": "Travel", "prerequisite_topic_id": 999})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown prerequisite status = %d, want 400", rec.Code)
	}

	// A valid prerequisite links.
	rec = env.do(t, http.MethodPost, "/api/admin/topics", admin,
		map[string]any{"title": "Travel", "level": "A1", "prerequisite_topic_id": topic.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create dependent topic status = %d, want 201: %s", rec.Code, rec.Body)
	}
	travel := decodeBody[quiz.Topic](t, rec)
	if travel.PrerequisiteID == nil || *travel.PrerequisiteID != topic.ID {
		t.Errorf("PrerequisiteID = %v, want %d", travel.PrerequisiteID, topic.ID)
	}
}

func TestAdminQuestionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	topicID, questionIDs := env.seedTopic(t)
	_, admin := env.newUserToken(t, "root", quiz.RoleAdmin)

	// Validation failures.
	rec := env.do(t, http.MethodPost, "/api/admin/questions", admin, map[string]any{
		"topic_id": topicID, "prompt": "p", "question_type": "essay", "correct_answer": "a",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad type status = %d, want 400", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/admin/questions", admin, map[string]any{
		"topic_id": topicID, "prompt": "p", "question_type": "multiple_choice",
		"correct_answer": "a", "choices": []string{"a"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("single choice status = %d, want 400", rec.Code)
	}

	// Create, paginate, deactivate.
	rec = env.do(t, http.MethodPost, "/api/admin/questions", admin, map[string]any{
		"topic_id": topicID, "prompt": "Pick went", "question_type": "multiple_choice",
		"correct_answer": "went", "choices": []string{"went", "goed"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create question status = %d, want 201: %s", rec.Code, rec.Body)
	}

	rec = env.do(t, http.MethodGet,
		fmt.Sprintf("/api/admin/questions?topic_id=%d&page=1&page_size=2", topicID), admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	page := decodeBody[questionPage](t, rec)
	if page.Total != 4 || len(page.Questions) != 2 {
		t.Errorf("page = total %d len %d, want 4 and 2", page.Total, len(page.Questions))
	}

	rec = env.do(t, http.MethodDelete,
		fmt.Sprintf("/api/admin/questions/%d", questionIDs[0]), admin, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	q, err := env.store.GetQuestion(context.Background(), questionIDs[0])
	if err != nil {
		t.Fatalf("GetQuestion() error = %v", err)
	}
	if q.Active {
		t.Error("deleted question should be deactivated, not removed")
	}
}
