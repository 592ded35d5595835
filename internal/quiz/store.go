package quiz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ListQuestionsParams filters and pages the admin question listing.
type ListQuestionsParams struct {
	TopicID  *int64
	Page     int // 1-based
	PageSize int
}

// SessionCompletion carries everything the store must persist atomically when
// a session is scored: the graded answer batch, the session's terminal state,
// and the recomputed progress aggregate. Either all of it lands or none does.
type SessionCompletion struct {
	SessionID     int64
	UserID        int64
	TopicID       int64
	Score         float64
	CompletedAt   time.Time
	Answers       []Answer // QuestionID, UserAnswer, Correct, SubmittedAt set
	Mastery       float64
	AnsweredDelta int // added to the progress questions-answered accumulator
}

// Store persists all quiz platform state. Implementations must enforce the
// uniqueness constraints on (session, question) answers, (user, topic)
// progress rows, and usernames/emails.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// Topics
	CreateTopic(ctx context.Context, t *Topic) error
	UpdateTopic(ctx context.Context, t *Topic) error
	GetTopic(ctx context.Context, id int64) (*Topic, error)
	FindTopicByTitle(ctx context.Context, title string) (*Topic, error)
	ListTopics(ctx context.Context) ([]Topic, error) // ordered by (level, id)
	QuestionCounts(ctx context.Context) (map[int64]int, error)

	// Questions
	CreateQuestion(ctx context.Context, q *Question) error
	UpdateQuestion(ctx context.Context, q *Question) error
	GetQuestion(ctx context.Context, id int64) (*Question, error)
	QuestionsByID(ctx context.Context, ids []int64) (map[int64]Question, error)
	ListQuestions(ctx context.Context, p ListQuestionsParams) ([]Question, int, error)
	ActiveQuestions(ctx context.Context, topicID int64) ([]Question, error)

	// Sessions and answers. GetSession scopes by owner: a session belonging
	// to a different user is reported as ErrNotFound.
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, sessionID, userID int64) (*Session, error)
	SessionAnswers(ctx context.Context, sessionID int64) ([]Answer, error)
	TopicAnswers(ctx context.Context, userID, topicID int64) ([]Answer, error)
	CompleteSession(ctx context.Context, c SessionCompletion) error

	// Progress and read-side stats
	GetProgress(ctx context.Context, userID, topicID int64) (*Progress, error)
	ListProgress(ctx context.Context, userID int64) ([]Progress, error)
	HasCompletionBetween(ctx context.Context, userID int64, from, to time.Time) (bool, error)
	CountAnswersBetween(ctx context.Context, userID int64, from, to time.Time) (int, error)
	AnswerTotals(ctx context.Context, userID int64) (total, correct int, err error)

	// Admin counters
	Counts(ctx context.Context) (Counts, error)
}

// MemoryStore is an in-memory Store implementation used in tests and for
// running the server without Postgres.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[int64]*User
	topics    map[int64]*Topic
	questions map[int64]*Question
	sessions  map[int64]*Session
	answers   map[int64]*Answer
	progress  map[int64]*Progress
	nextID    int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]*User),
		topics:    make(map[int64]*Topic),
		questions: make(map[int64]*Question),
		sessions:  make(map[int64]*Session),
		answers:   make(map[int64]*Answer),
		progress:  make(map[int64]*Progress),
	}
}

func (s *MemoryStore) nextIDLocked() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) CreateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username {
			return fmt.Errorf("%w: username %q already taken", ErrBadRequest, u.Username)
		}
		if existing.Email == u.Email {
			return fmt.Errorf("%w: email %q already registered", ErrBadRequest, u.Email)
		}
	}

	u.ID = s.nextIDLocked()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	if u.Role == "" {
		u.Role = RoleStudent
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: user %q", ErrNotFound, username)
}

func (s *MemoryStore) CreateTopic(_ context.Context, t *Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = s.nextIDLocked()
	cp := *t
	s.topics[t.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateTopic(_ context.Context, t *Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.topics[t.ID]; !ok {
		return fmt.Errorf("%w: topic %d", ErrNotFound, t.ID)
	}
	cp := *t
	s.topics[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTopic(_ context.Context, id int64) (*Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.topics[id]
	if !ok {
		return nil, fmt.Errorf("%w: topic %d", ErrNotFound, id)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTopics(_ context.Context) ([]Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]Topic, 0, len(s.topics))
	for _, t := range s.topics {
		topics = append(topics, *t)
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Level != topics[j].Level {
			return topics[i].Level < topics[j].Level
		}
		return topics[i].ID < topics[j].ID
	})
	return topics, nil
}

func (s *MemoryStore) QuestionCounts(_ context.Context) (map[int64]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[int64]int)
	for _, q := range s.questions {
		counts[q.TopicID]++
	}
	return counts, nil
}

func (s *MemoryStore) CreateQuestion(_ context.Context, q *Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.topics[q.TopicID]; !ok {
		return fmt.Errorf("%w: topic %d", ErrNotFound, q.TopicID)
	}
	q.ID = s.nextIDLocked()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	cp := *q
	s.questions[q.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateQuestion(_ context.Context, q *Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.questions[q.ID]; !ok {
		return fmt.Errorf("%w: question %d", ErrNotFound, q.ID)
	}
	cp := *q
	s.questions[q.ID] = &cp
	return nil
}

func (s *MemoryStore) GetQuestion(_ context.Context, id int64) (*Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.questions[id]
	if !ok {
		return nil, fmt.Errorf("%w: question %d", ErrNotFound, id)
	}
	cp := *q
	return &cp, nil
}

func (s *MemoryStore) QuestionsByID(_ context.Context, ids []int64) (map[int64]Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]Question, len(ids))
	for _, id := range ids {
		if q, ok := s.questions[id]; ok {
			out[id] = *q
		}
	}
	return out, nil
}

func (s *MemoryStore) ListQuestions(_ context.Context, p ListQuestionsParams) ([]Question, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []Question
	for _, q := range s.questions {
		if p.TopicID != nil && q.TopicID != *p.TopicID {
			continue
		}
		all = append(all, *q)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	total := len(all)
	page, size := p.Page, p.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	start := (page - 1) * size
	if start >= total {
		return []Question{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (s *MemoryStore) ActiveQuestions(_ context.Context, topicID int64) ([]Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Question
	for _, q := range s.questions {
		if q.TopicID == topicID && q.Active {
			out = append(out, *q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.ID = s.nextIDLocked()
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID, userID int64) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return nil, fmt.Errorf("%w: session %d", ErrNotFound, sessionID)
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) SessionAnswers(_ context.Context, sessionID int64) ([]Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionAnswersLocked(sessionID), nil
}

func (s *MemoryStore) sessionAnswersLocked(sessionID int64) []Answer {
	var out []Answer
	for _, a := range s.answers {
		if a.SessionID == sessionID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) TopicAnswers(_ context.Context, userID, topicID int64) ([]Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Answer
	for _, a := range s.answers {
		sess, ok := s.sessions[a.SessionID]
		if ok && sess.UserID == userID && sess.TopicID == topicID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CompleteSession applies the whole completion under one lock, mirroring the
// single-transaction guarantee of the Postgres store. The open-session and
// no-existing-answers checks are re-verified here so a concurrent loser fails
// with ErrInvalidState instead of corrupting the answer set.
func (s *MemoryStore) CompleteSession(_ context.Context, c SessionCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[c.SessionID]
	if !ok || sess.UserID != c.UserID {
		return fmt.Errorf("%w: session %d", ErrNotFound, c.SessionID)
	}
	if sess.CompletedAt != nil {
		return fmt.Errorf("%w: session already completed", ErrInvalidState)
	}
	if len(s.sessionAnswersLocked(c.SessionID)) > 0 {
		return fmt.Errorf("%w: answers already submitted", ErrInvalidState)
	}

	seen := make(map[int64]bool, len(c.Answers))
	for i := range c.Answers {
		a := c.Answers[i]
		if seen[a.QuestionID] {
			return fmt.Errorf("%w: answers already submitted", ErrInvalidState)
		}
		seen[a.QuestionID] = true
		a.ID = s.nextIDLocked()
		a.SessionID = c.SessionID
		s.answers[a.ID] = &a
	}

	completedAt := c.CompletedAt
	score := c.Score
	sess.CompletedAt = &completedAt
	sess.Score = &score

	if p := s.progressLocked(c.UserID, c.TopicID); p != nil {
		p.Mastery = c.Mastery
		p.QuestionsAnswered += c.AnsweredDelta
		p.LastUpdated = completedAt
	} else {
		id := s.nextIDLocked()
		s.progress[id] = &Progress{
			ID:                id,
			UserID:            c.UserID,
			TopicID:           c.TopicID,
			Mastery:           c.Mastery,
			QuestionsAnswered: c.AnsweredDelta,
			LastUpdated:       completedAt,
		}
	}
	return nil
}

func (s *MemoryStore) progressLocked(userID, topicID int64) *Progress {
	for _, p := range s.progress {
		if p.UserID == userID && p.TopicID == topicID {
			return p
		}
	}
	return nil
}

func (s *MemoryStore) GetProgress(_ context.Context, userID, topicID int64) (*Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.progressLocked(userID, topicID)
	if p == nil {
		return nil, fmt.Errorf("%w: progress for user %d topic %d", ErrNotFound, userID, topicID)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListProgress(_ context.Context, userID int64) ([]Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Progress
	for _, p := range s.progress {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicID < out[j].TopicID })
	return out, nil
}

func (s *MemoryStore) HasCompletionBetween(_ context.Context, userID int64, from, to time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.UserID != userID || sess.CompletedAt == nil {
			continue
		}
		if !sess.CompletedAt.Before(from) && sess.CompletedAt.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CountAnswersBetween(_ context.Context, userID int64, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, a := range s.answers {
		sess, ok := s.sessions[a.SessionID]
		if !ok || sess.UserID != userID {
			continue
		}
		if !a.SubmittedAt.Before(from) && a.SubmittedAt.Before(to) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) AnswerTotals(_ context.Context, userID int64) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total, correct := 0, 0
	for _, a := range s.answers {
		sess, ok := s.sessions[a.SessionID]
		if !ok || sess.UserID != userID {
			continue
		}
		total++
		if a.Correct {
			correct++
		}
	}
	return total, correct, nil
}

func (s *MemoryStore) Counts(_ context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := Counts{
		Topics: len(s.topics),
		Users:  len(s.users),
	}
	for _, q := range s.questions {
		c.Questions++
		if q.Active {
			c.ActiveQuestions++
		}
	}
	c.InactiveQuestions = c.Questions - c.ActiveQuestions
	return c, nil
}

// FindTopicByTitle returns the topic with the given title, if any. Used by
// content seeding and imports; matching is case-insensitive.
func (s *MemoryStore) FindTopicByTitle(_ context.Context, title string) (*Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.topics {
		if strings.EqualFold(t.Title, title) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: topic %q", ErrNotFound, title)
}
