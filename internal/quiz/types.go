// Package quiz implements the progress and mastery engine: quiz session
// lifecycle, answer grading and scoring, and per-topic mastery aggregation.
package quiz

import "time"

// QuestionType tags how a question is presented to the user. Grading is
// identical for both types.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	FillBlank      QuestionType = "fill_blank"
)

// Mode selects the quiz variant. It is stored with the session but does not
// alter grading; timed mode carries no timer enforcement.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeHard   Mode = "hard"
	ModeTimed  Mode = "timed"
)

// User roles.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User is a registered account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Topic is a unit of study. A topic may depend on at most one other topic;
// the engine treats topics as read-only.
type Topic struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Level          string `json:"level"` // proficiency tag, e.g. "A0"; empty means ungrouped
	PrerequisiteID *int64 `json:"prerequisite_topic_id,omitempty"`
}

// Question belongs to exactly one topic. Inactive questions are never served
// to quiz-takers but are retained for historical answer integrity.
type Question struct {
	ID            int64        `json:"id"`
	TopicID       int64        `json:"topic_id"`
	Prompt        string       `json:"prompt"`
	Type          QuestionType `json:"question_type"`
	Choices       []string     `json:"choices,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	Explanation   string       `json:"explanation,omitempty"`
	Hint          string       `json:"hint,omitempty"`
	Difficulty    string       `json:"difficulty"`
	Tags          []string     `json:"tags,omitempty"`
	Active        bool         `json:"is_active"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Session is one attempt at a topic's question set. It is open until all
// answers are submitted together as one batch, then completed with a score.
// Invariant: CompletedAt and Score are set together or not at all.
type Session struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	TopicID     int64      `json:"topic_id"`
	Mode        Mode       `json:"mode"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Score       *float64   `json:"score,omitempty"`
}

// Completed reports whether the session has reached its terminal state.
func (s *Session) Completed() bool {
	return s.CompletedAt != nil
}

// Answer records one graded submission. The correctness verdict is frozen at
// submission time; at most one answer exists per (session, question) pair.
type Answer struct {
	ID          int64     `json:"id"`
	SessionID   int64     `json:"session_id"`
	QuestionID  int64     `json:"question_id"`
	UserAnswer  string    `json:"user_answer"`
	Correct     bool      `json:"is_correct"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Progress is the per-(user, topic) mastery aggregate. Mastery is recomputed
// from the full answer history on every completed session; QuestionsAnswered
// only ever grows.
type Progress struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	TopicID           int64     `json:"topic_id"`
	Mastery           float64   `json:"mastery_percentage"`
	QuestionsAnswered int       `json:"questions_answered"`
	LastUpdated       time.Time `json:"last_updated"`
}

// Counts holds platform-wide totals for the admin dashboard.
type Counts struct {
	Topics            int `json:"total_topics"`
	Questions         int `json:"total_questions"`
	ActiveQuestions   int `json:"active_questions"`
	InactiveQuestions int `json:"inactive_questions"`
	Users             int `json:"total_users"`
}
