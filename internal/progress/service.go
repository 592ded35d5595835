package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chocolingo/server/internal/quiz"
)

// TodayGoal is the fixed number of answered questions that counts as meeting
// the daily goal.
const TodayGoal = 5

const mapCacheTTL = 5 * time.Minute

// Store is the slice of quiz persistence the read-side projections need.
// Satisfied by quiz.Store implementations.
type Store interface {
	ListTopics(ctx context.Context) ([]quiz.Topic, error)
	GetProgress(ctx context.Context, userID, topicID int64) (*quiz.Progress, error)
	ListProgress(ctx context.Context, userID int64) ([]quiz.Progress, error)
	HasCompletionBetween(ctx context.Context, userID int64, from, to time.Time) (bool, error)
	CountAnswersBetween(ctx context.Context, userID int64, from, to time.Time) (int, error)
	AnswerTotals(ctx context.Context, userID int64) (total, correct int, err error)
}

// MapCache caches serialized knowledge maps. Satisfied by the platform cache
// wrapper; nil disables caching.
type MapCache interface {
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Dashboard is the stats summary for the authenticated user.
type Dashboard struct {
	Streak         int     `json:"streak"`
	TodayCompleted int     `json:"today_completed"`
	TodayGoal      int     `json:"today_goal"`
	TotalAnswered  int     `json:"total_answered"`
	Accuracy       float64 `json:"accuracy"`
}

// ServiceConfig holds dependencies for the progress read side.
type ServiceConfig struct {
	Store  Store
	Cache  MapCache // optional
	Broker *Broker  // optional
	Now    func() time.Time
}

// Service serves streaks, dashboard stats, and the knowledge map. It also
// implements quiz.CompletionListener to invalidate cached maps and feed the
// live event broker.
type Service struct {
	store  Store
	cache  MapCache
	broker *Broker
	now    func() time.Time
}

// NewService creates a progress service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:  cfg.Store,
		cache:  cfg.Cache,
		broker: cfg.Broker,
		now:    now,
	}
}

// Streak returns the user's consecutive-day completion streak as of today.
func (s *Service) Streak(ctx context.Context, userID int64) (int, error) {
	return computeStreak(ctx, s.store, userID, s.now())
}

// Dashboard assembles the user's stats summary: streak, today's answered
// count against the daily goal, and lifetime accuracy rounded to one decimal.
func (s *Service) Dashboard(ctx context.Context, userID int64) (*Dashboard, error) {
	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	streak, err := computeStreak(ctx, s.store, userID, now)
	if err != nil {
		return nil, fmt.Errorf("compute streak: %w", err)
	}
	today, err := s.store.CountAnswersBetween(ctx, userID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("count today's answers: %w", err)
	}
	total, correct, err := s.store.AnswerTotals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("answer totals: %w", err)
	}

	accuracy := 0.0
	if total > 0 {
		accuracy = round1(float64(correct) / float64(total) * 100)
	}
	return &Dashboard{
		Streak:         streak,
		TodayCompleted: today,
		TodayGoal:      TodayGoal,
		TotalAnswered:  total,
		Accuracy:       accuracy,
	}, nil
}

// TopicProgress returns the user's progress on a topic, defaulting to a
// zero-valued record when no session has completed yet.
func (s *Service) TopicProgress(ctx context.Context, userID, topicID int64) (*quiz.Progress, error) {
	p, err := s.store.GetProgress(ctx, userID, topicID)
	if errors.Is(err, quiz.ErrNotFound) {
		return &quiz.Progress{
			UserID:      userID,
			TopicID:     topicID,
			LastUpdated: s.now(),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// KnowledgeMap builds the user's knowledge map, serving a cached copy when
// one exists. Cache failures fall through to a fresh build.
func (s *Service) KnowledgeMap(ctx context.Context, userID int64) (*Map, error) {
	key := mapCacheKey(userID)
	if s.cache != nil {
		var cached Map
		ok, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			slog.Warn("knowledge map cache read failed", "user_id", userID, "error", err)
		} else if ok {
			return &cached, nil
		}
	}

	topics, err := s.store.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	records, err := s.store.ListProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	m := buildMap(topics, records)

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, m, mapCacheTTL); err != nil {
			slog.Warn("knowledge map cache write failed", "user_id", userID, "error", err)
		}
	}
	return m, nil
}

// SessionCompleted invalidates the user's cached knowledge map and publishes
// the completion to live feed subscribers. Called synchronously after the
// submission commits; failures here are logged, never surfaced to the
// submitter.
func (s *Service) SessionCompleted(e quiz.CompletionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.cache != nil {
		if err := s.cache.Delete(ctx, mapCacheKey(e.UserID)); err != nil {
			slog.Warn("knowledge map cache invalidation failed", "user_id", e.UserID, "error", err)
		}
	}

	if s.broker == nil {
		return
	}
	streak, err := computeStreak(ctx, s.store, e.UserID, e.CompletedAt)
	if err != nil {
		slog.Warn("streak for feed event failed", "user_id", e.UserID, "error", err)
	}
	s.broker.Publish(e.UserID, Event{
		Type:        EventSessionCompleted,
		SessionID:   e.SessionID,
		TopicID:     e.TopicID,
		Score:       e.Score,
		Mastery:     e.Mastery,
		Streak:      streak,
		CompletedAt: e.CompletedAt,
	})
}

func mapCacheKey(userID int64) string {
	return fmt.Sprintf("knowledge_map:%d", userID)
}
