package quiz_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/chocolingo/server/internal/platform/database"
	"github.com/chocolingo/server/internal/quiz"
)

// startPostgres spins up a throwaway Postgres container and returns a store
// backed by it. Requires Docker; skipped in short mode.
func startPostgres(t *testing.T) *quiz.PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("chocolingo_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminating container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := database.New(ctx, url, 5, 1)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	t.Cleanup(db.Close)

	store, err := quiz.NewPostgresStore(ctx, db.Pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	return store
}

func TestPostgresStore_SessionLifecycle(t *testing.T) {
	store := startPostgres(t)
	ctx := t.Context()

	user := &quiz.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", Role: quiz.RoleStudent}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	topic := &quiz.Topic{Title: "Basic Verbs", Level: "A0", Description: "past tense"}
	if err := store.CreateTopic(ctx, topic); err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}
	q1 := &quiz.Question{TopicID: topic.ID, Prompt: "Past tense of 'go'?", Type: quiz.MultipleChoice,
		Choices: []string{"went", "goed"}, CorrectAnswer: "went", Tags: []string{"verbs"}, Active: true}
	q2 := &quiz.Question{TopicID: topic.ID, Prompt: "I ___ yesterday.", Type: quiz.FillBlank,
		CorrectAnswer: "went", Active: true}
	for _, q := range []*quiz.Question{q1, q2} {
		if err := store.CreateQuestion(ctx, q); err != nil {
			t.Fatalf("CreateQuestion() error = %v", err)
		}
	}

	active, err := store.ActiveQuestions(ctx, topic.ID)
	if err != nil {
		t.Fatalf("ActiveQuestions() error = %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active questions = %d, want 2", len(active))
	}
	// JSONB choices and text[] tags must round-trip.
	if len(active[0].Choices) != 2 || active[0].Choices[0] != "went" {
		t.Errorf("Choices = %v, want [went goed]", active[0].Choices)
	}
	if len(active[0].Tags) != 1 || active[0].Tags[0] != "verbs" {
		t.Errorf("Tags = %v, want [verbs]", active[0].Tags)
	}

	sess := &quiz.Session{UserID: user.ID, TopicID: topic.ID, Mode: quiz.ModeNormal, StartedAt: time.Now().UTC()}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	completion := quiz.SessionCompletion{
		SessionID:   sess.ID,
		UserID:      user.ID,
		TopicID:     topic.ID,
		Score:       50,
		CompletedAt: now,
		Answers: []quiz.Answer{
			{QuestionID: q1.ID, UserAnswer: "went", Correct: true, SubmittedAt: now},
			{QuestionID: q2.ID, UserAnswer: "goed", Correct: false, SubmittedAt: now},
		},
		Mastery:       50,
		AnsweredDelta: 2,
	}
	if err := store.CompleteSession(ctx, completion); err != nil {
		t.Fatalf("CompleteSession() error = %v", err)
	}

	stored, err := store.GetSession(ctx, sess.ID, user.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if !stored.Completed() || stored.Score == nil || *stored.Score != 50 {
		t.Errorf("session = %+v, want completed with score 50", stored)
	}

	p, err := store.GetProgress(ctx, user.ID, topic.ID)
	if err != nil {
		t.Fatalf("GetProgress() error = %v", err)
	}
	if p.Mastery != 50 || p.QuestionsAnswered != 2 {
		t.Errorf("progress = %+v, want mastery 50 answered 2", p)
	}

	// Repeating the completion must be rejected by the guards.
	if err := store.CompleteSession(ctx, completion); !errors.Is(err, quiz.ErrInvalidState) {
		t.Errorf("repeated CompleteSession() error = %v, want ErrInvalidState", err)
	}
	answers, err := store.SessionAnswers(ctx, sess.ID)
	if err != nil {
		t.Fatalf("SessionAnswers() error = %v", err)
	}
	if len(answers) != 2 {
		t.Errorf("answers after repeat = %d, want 2", len(answers))
	}
}

func TestPostgresStore_OwnershipAndUniqueness(t *testing.T) {
	store := startPostgres(t)
	ctx := t.Context()

	alice := &quiz.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", Role: quiz.RoleStudent}
	if err := store.CreateUser(ctx, alice); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	bob := &quiz.User{Username: "bob", Email: "bob@example.com", PasswordHash: "x", Role: quiz.RoleStudent}
	if err := store.CreateUser(ctx, bob); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	dup := &quiz.User{Username: "alice", Email: "other@example.com", PasswordHash: "x", Role: quiz.RoleStudent}
	if err := store.CreateUser(ctx, dup); !errors.Is(err, quiz.ErrBadRequest) {
		t.Errorf("duplicate username error = %v, want ErrBadRequest", err)
	}

	topic := &quiz.Topic{Title: "Basic Verbs", Level: "A0"}
	if err := store.CreateTopic(ctx, topic); err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}
	sess := &quiz.Session{UserID: alice.ID, TopicID: topic.ID, Mode: quiz.ModeNormal, StartedAt: time.Now().UTC()}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if _, err := store.GetSession(ctx, sess.ID, bob.ID); !errors.Is(err, quiz.ErrNotFound) {
		t.Errorf("foreign GetSession() error = %v, want ErrNotFound", err)
	}

	got, err := store.FindTopicByTitle(ctx, "BASIC VERBS")
	if err != nil {
		t.Fatalf("FindTopicByTitle() error = %v", err)
	}
	if got.ID != topic.ID {
		t.Errorf("FindTopicByTitle() ID = %d, want %d", got.ID, topic.ID)
	}
}
