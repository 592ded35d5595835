package progress

import (
	"context"
	"testing"
	"time"

	"github.com/chocolingo/server/internal/quiz"
)

// completeOn records one completed single-answer session at the given time.
func completeOn(t *testing.T, store *quiz.MemoryStore, userID, topicID, questionID int64, at time.Time) {
	t.Helper()
	ctx := context.Background()

	sess := &quiz.Session{UserID: userID, TopicID: topicID, Mode: quiz.ModeNormal, StartedAt: at}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	err := store.CompleteSession(ctx, quiz.SessionCompletion{
		SessionID:   sess.ID,
		UserID:      userID,
		TopicID:     topicID,
		Score:       100,
		CompletedAt: at,
		Answers: []quiz.Answer{
			{QuestionID: questionID, UserAnswer: "x", Correct: true, SubmittedAt: at},
		},
		Mastery:       100,
		AnsweredDelta: 1,
	})
	if err != nil {
		t.Fatalf("CompleteSession() error = %v", err)
	}
}

func seedStreakFixture(t *testing.T) (*quiz.MemoryStore, int64, int64, int64) {
	t.Helper()
	ctx := context.Background()
	store := quiz.NewMemoryStore()

	user := &quiz.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x"}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	topic := &quiz.Topic{Title: "Basic Verbs", Level: "A0"}
	if err := store.CreateTopic(ctx, topic); err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}
	q := &quiz.Question{TopicID: topic.ID, Prompt: "p", Type: quiz.FillBlank, CorrectAnswer: "x", Active: true}
	if err := store.CreateQuestion(ctx, q); err != nil {
		t.Fatalf("CreateQuestion() error = %v", err)
	}
	return store, user.ID, topic.ID, q.ID
}

func TestComputeStreak(t *testing.T) {
	day := func(offset int) time.Time {
		return time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC).AddDate(0, 0, offset)
	}
	asOf := day(0)

	tests := []struct {
		name       string
		completions []time.Time
		want       int
	}{
		{"no completions", nil, 0},
		{"today only", []time.Time{day(0)}, 1},
		{"three consecutive days", []time.Time{day(0), day(-1), day(-2)}, 3},
		{"gap at day minus three", []time.Time{day(0), day(-1), day(-2), day(-4)}, 3},
		{"yesterday but not today", []time.Time{day(-1), day(-2)}, 0},
		{"two sessions same day count once", []time.Time{day(0), day(0).Add(2 * time.Hour)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, userID, topicID, questionID := seedStreakFixture(t)
			for _, at := range tt.completions {
				completeOn(t, store, userID, topicID, questionID, at)
			}

			got, err := computeStreak(t.Context(), store, userID, asOf)
			if err != nil {
				t.Fatalf("computeStreak() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("computeStreak() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputeStreak_UTCDayBoundary(t *testing.T) {
	store, userID, topicID, questionID := seedStreakFixture(t)

	// 23:59 UTC yesterday and 00:01 UTC today are different streak days.
	completeOn(t, store, userID, topicID, questionID,
		time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC))

	asOf := time.Date(2024, 3, 10, 0, 30, 0, 0, time.UTC)
	got, err := computeStreak(t.Context(), store, userID, asOf)
	if err != nil {
		t.Fatalf("computeStreak() error = %v", err)
	}
	if got != 0 {
		t.Errorf("computeStreak() = %d, want 0 when today has no completion", got)
	}
}
