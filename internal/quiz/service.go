package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionQuestion is a question as served to a quiz-taker: the correct
// answer is withheld until submission.
type SessionQuestion struct {
	ID      int64        `json:"id"`
	TopicID int64        `json:"topic_id"`
	Prompt  string       `json:"prompt"`
	Type    QuestionType `json:"question_type"`
	Choices []string     `json:"choices,omitempty"`
	Hint    string       `json:"hint,omitempty"`
}

// SessionView pairs a session with its (sanitized) question set.
type SessionView struct {
	Session   Session           `json:"session"`
	Questions []SessionQuestion `json:"questions"`
}

// Submission is one entry of an answer batch.
type Submission struct {
	QuestionID int64  `json:"question_id"`
	Answer     string `json:"user_answer"`
}

// AnswerResult is the graded outcome of one submission, with the correct
// answer revealed.
type AnswerResult struct {
	QuestionID    int64     `json:"question_id"`
	UserAnswer    string    `json:"user_answer"`
	Correct       bool      `json:"is_correct"`
	SubmittedAt   time.Time `json:"submitted_at"`
	CorrectAnswer string    `json:"correct_answer"`
}

// Result is the outcome of a scored session.
type Result struct {
	SessionID      int64          `json:"session_id"`
	Score          float64        `json:"score"`
	TotalQuestions int            `json:"total_questions"`
	CorrectAnswers int            `json:"correct_answers"`
	Answers        []AnswerResult `json:"answers"`
	TopicMastery   float64        `json:"topic_mastery"`
}

// CompletionEvent is published after a session is scored and its progress
// aggregate committed.
type CompletionEvent struct {
	UserID      int64
	TopicID     int64
	SessionID   int64
	Score       float64
	Mastery     float64
	CompletedAt time.Time
}

// CompletionListener receives completion events. Implementations must not
// block; the engine calls them synchronously after commit.
type CompletionListener interface {
	SessionCompleted(e CompletionEvent)
}

// ServiceConfig holds dependencies for the quiz engine.
type ServiceConfig struct {
	Store    Store
	Listener CompletionListener // optional
	Now      func() time.Time   // optional, defaults to time.Now
}

// Service is the quiz engine: it owns the session state machine, answer
// grading and scoring, and the synchronous mastery recompute.
type Service struct {
	store    Store
	listener CompletionListener
	now      func() time.Time
}

// NewService creates a quiz engine.
func NewService(cfg ServiceConfig) *Service {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    store,
		listener: cfg.Listener,
		now:      now,
	}
}

// CreateSession opens a new quiz session for the topic and returns it with
// the topic's active question set. Fails with ErrNotFound if the topic does
// not exist and ErrBadRequest if it has no active questions.
func (s *Service) CreateSession(ctx context.Context, userID, topicID int64, mode Mode) (*SessionView, error) {
	topic, err := s.store.GetTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}

	questions, err := s.store.ActiveQuestions(ctx, topic.ID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions available for this topic", ErrBadRequest)
	}

	if mode == "" {
		mode = ModeNormal
	}
	sess := &Session{
		UserID:    userID,
		TopicID:   topicID,
		Mode:      mode,
		StartedAt: s.now(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	slog.Info("quiz session created",
		"session_id", sess.ID,
		"user_id", userID,
		"topic_id", topicID,
		"mode", mode,
	)
	return &SessionView{Session: *sess, Questions: sanitize(questions)}, nil
}

// GetSession returns an owned session with its topic's active question set.
func (s *Service) GetSession(ctx context.Context, sessionID, userID int64) (*SessionView, error) {
	sess, err := s.store.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	questions, err := s.store.ActiveQuestions(ctx, sess.TopicID)
	if err != nil {
		return nil, err
	}
	return &SessionView{Session: *sess, Questions: sanitize(questions)}, nil
}

// SubmitAnswers grades and persists a full answer batch, completes the
// session with its score, and recomputes the topic mastery aggregate. The
// whole operation is atomic: a failed precondition or store error leaves the
// session open with no answers recorded.
//
// Preconditions, checked in order: the session exists and is owned by the
// caller; it is still open; no answers were submitted before; every question
// in the batch belongs to the session's topic; no question appears twice.
func (s *Service) SubmitAnswers(ctx context.Context, sessionID, userID int64, batch []Submission) (*Result, error) {
	sess, err := s.store.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if sess.Completed() {
		return nil, fmt.Errorf("%w: quiz session already completed", ErrInvalidState)
	}

	existing, err := s.store.SessionAnswers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: answers already submitted for this session", ErrInvalidState)
	}

	questions, err := s.store.ActiveQuestions(ctx, sess.TopicID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	seen := make(map[int64]bool, len(batch))
	for _, sub := range batch {
		if _, ok := byID[sub.QuestionID]; !ok {
			return nil, fmt.Errorf("%w: question %d not found in this topic", ErrBadRequest, sub.QuestionID)
		}
		if seen[sub.QuestionID] {
			return nil, fmt.Errorf("%w: duplicate answer for question %d", ErrBadRequest, sub.QuestionID)
		}
		seen[sub.QuestionID] = true
	}

	submittedAt := s.now()
	answers := make([]Answer, 0, len(batch))
	results := make([]AnswerResult, 0, len(batch))
	correctCount := 0
	for _, sub := range batch {
		question := byID[sub.QuestionID]
		correct := Grade(question, sub.Answer)
		if correct {
			correctCount++
		}
		answers = append(answers, Answer{
			SessionID:   sessionID,
			QuestionID:  sub.QuestionID,
			UserAnswer:  sub.Answer,
			Correct:     correct,
			SubmittedAt: submittedAt,
		})
		results = append(results, AnswerResult{
			QuestionID:    sub.QuestionID,
			UserAnswer:    sub.Answer,
			Correct:       correct,
			SubmittedAt:   submittedAt,
			CorrectAnswer: question.CorrectAnswer,
		})
	}

	// Score against the full topic question set, not the answered subset:
	// skipped questions count as wrong.
	score := float64(correctCount) / float64(len(questions)) * 100

	history, err := s.store.TopicAnswers(ctx, userID, sess.TopicID)
	if err != nil {
		return nil, err
	}
	mastery := recomputeMastery(history, answers)

	err = s.store.CompleteSession(ctx, SessionCompletion{
		SessionID:     sessionID,
		UserID:        userID,
		TopicID:       sess.TopicID,
		Score:         score,
		CompletedAt:   submittedAt,
		Answers:       answers,
		Mastery:       mastery,
		AnsweredDelta: len(answers),
	})
	if err != nil {
		return nil, err
	}

	slog.Info("quiz session completed",
		"session_id", sessionID,
		"user_id", userID,
		"topic_id", sess.TopicID,
		"score", score,
		"mastery", mastery,
	)

	if s.listener != nil {
		s.listener.SessionCompleted(CompletionEvent{
			UserID:      userID,
			TopicID:     sess.TopicID,
			SessionID:   sessionID,
			Score:       score,
			Mastery:     mastery,
			CompletedAt: submittedAt,
		})
	}

	return &Result{
		SessionID:      sessionID,
		Score:          score,
		TotalQuestions: len(questions),
		CorrectAnswers: correctCount,
		Answers:        results,
		TopicMastery:   mastery,
	}, nil
}

// Results re-derives the outcome of a completed session. Fails with
// ErrInvalidState while the session is still open.
func (s *Service) Results(ctx context.Context, sessionID, userID int64) (*Result, error) {
	sess, err := s.store.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !sess.Completed() {
		return nil, fmt.Errorf("%w: quiz session not completed yet", ErrInvalidState)
	}

	answers, err := s.store.SessionAnswers(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(answers))
	for _, a := range answers {
		ids = append(ids, a.QuestionID)
	}
	// Looked up by id so inactive questions still resolve for old sessions.
	questions, err := s.store.QuestionsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]AnswerResult, 0, len(answers))
	correctCount := 0
	for _, a := range answers {
		if a.Correct {
			correctCount++
		}
		results = append(results, AnswerResult{
			QuestionID:    a.QuestionID,
			UserAnswer:    a.UserAnswer,
			Correct:       a.Correct,
			SubmittedAt:   a.SubmittedAt,
			CorrectAnswer: questions[a.QuestionID].CorrectAnswer,
		})
	}

	mastery := 0.0
	if p, err := s.store.GetProgress(ctx, userID, sess.TopicID); err == nil {
		mastery = p.Mastery
	}

	score := 0.0
	if sess.Score != nil {
		score = *sess.Score
	}

	return &Result{
		SessionID:      sessionID,
		Score:          score,
		TotalQuestions: len(answers),
		CorrectAnswers: correctCount,
		Answers:        results,
		TopicMastery:   mastery,
	}, nil
}

func sanitize(questions []Question) []SessionQuestion {
	out := make([]SessionQuestion, len(questions))
	for i, q := range questions {
		out[i] = SessionQuestion{
			ID:      q.ID,
			TopicID: q.TopicID,
			Prompt:  q.Prompt,
			Type:    q.Type,
			Choices: q.Choices,
			Hint:    q.Hint,
		}
	}
	return out
}
