package quiz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chocolingo/server/internal/platform/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'student',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS topics (
    id BIGSERIAL PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    level TEXT NOT NULL DEFAULT '',
    prerequisite_topic_id BIGINT REFERENCES topics(id)
);

CREATE TABLE IF NOT EXISTS questions (
    id BIGSERIAL PRIMARY KEY,
    topic_id BIGINT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    prompt TEXT NOT NULL,
    question_type TEXT NOT NULL,
    choices JSONB,
    correct_answer TEXT NOT NULL,
    explanation TEXT NOT NULL DEFAULT '',
    hint TEXT NOT NULL DEFAULT '',
    difficulty TEXT NOT NULL DEFAULT 'easy',
    tags TEXT[],
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS quiz_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    topic_id BIGINT NOT NULL REFERENCES topics(id),
    mode TEXT NOT NULL DEFAULT 'normal',
    started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed_at TIMESTAMPTZ,
    score DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS answers (
    id BIGSERIAL PRIMARY KEY,
    session_id BIGINT NOT NULL REFERENCES quiz_sessions(id) ON DELETE CASCADE,
    question_id BIGINT NOT NULL REFERENCES questions(id),
    user_answer TEXT NOT NULL,
    is_correct BOOLEAN NOT NULL,
    submitted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (session_id, question_id)
);

CREATE TABLE IF NOT EXISTS user_progress (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    topic_id BIGINT NOT NULL REFERENCES topics(id),
    mastery_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
    questions_answered BIGINT NOT NULL DEFAULT 0,
    last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (user_id, topic_id)
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_completed ON quiz_sessions (user_id, completed_at);
CREATE INDEX IF NOT EXISTS idx_answers_session ON answers (session_id);
CREATE INDEX IF NOT EXISTS idx_questions_topic ON questions (topic_id);
`

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed store and ensures the schema
// exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *User) error {
	role := u.Role
	if role == "" {
		role = RoleStudent
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, role)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, role, created_at`,
		u.Username, u.Email, u.PasswordHash, role,
	).Scan(&u.ID, &u.Role, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username or email already registered", ErrBadRequest)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, role, created_at
		 FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, role, created_at
		 FROM users WHERE username = $1`, username))
}

func (s *PostgresStore) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) CreateTopic(ctx context.Context, t *Topic) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO topics (title, description, level, prerequisite_topic_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		t.Title, t.Description, t.Level, t.PrerequisiteID,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTopic(ctx context.Context, t *Topic) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE topics
		 SET title = $2, description = $3, level = $4, prerequisite_topic_id = $5
		 WHERE id = $1`,
		t.ID, t.Title, t.Description, t.Level, t.PrerequisiteID,
	)
	if err != nil {
		return fmt.Errorf("update topic: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: topic %d", ErrNotFound, t.ID)
	}
	return nil
}

func (s *PostgresStore) GetTopic(ctx context.Context, id int64) (*Topic, error) {
	return s.scanTopic(s.pool.QueryRow(ctx,
		`SELECT id, title, description, level, prerequisite_topic_id
		 FROM topics WHERE id = $1`, id))
}

func (s *PostgresStore) FindTopicByTitle(ctx context.Context, title string) (*Topic, error) {
	return s.scanTopic(s.pool.QueryRow(ctx,
		`SELECT id, title, description, level, prerequisite_topic_id
		 FROM topics WHERE lower(title) = lower($1)
		 ORDER BY id LIMIT 1`, title))
}

func (s *PostgresStore) scanTopic(row pgx.Row) (*Topic, error) {
	var t Topic
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Level, &t.PrerequisiteID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: topic", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) ListTopics(ctx context.Context) ([]Topic, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, description, level, prerequisite_topic_id
		 FROM topics ORDER BY level, id`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Level, &t.PrerequisiteID); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

func (s *PostgresStore) QuestionCounts(ctx context.Context) (map[int64]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT topic_id, count(*) FROM questions GROUP BY topic_id`)
	if err != nil {
		return nil, fmt.Errorf("question counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var topicID int64
		var n int
		if err := rows.Scan(&topicID, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[topicID] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) CreateQuestion(ctx context.Context, q *Question) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO questions
		   (topic_id, prompt, question_type, choices, correct_answer,
		    explanation, hint, difficulty, tags, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`,
		q.TopicID, q.Prompt, q.Type, q.Choices, q.CorrectAnswer,
		q.Explanation, q.Hint, q.Difficulty, q.Tags, q.Active,
	).Scan(&q.ID, &q.CreatedAt)
	if err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateQuestion(ctx context.Context, q *Question) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE questions
		 SET prompt = $2, question_type = $3, choices = $4, correct_answer = $5,
		     explanation = $6, hint = $7, difficulty = $8, tags = $9, is_active = $10
		 WHERE id = $1`,
		q.ID, q.Prompt, q.Type, q.Choices, q.CorrectAnswer,
		q.Explanation, q.Hint, q.Difficulty, q.Tags, q.Active,
	)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: question %d", ErrNotFound, q.ID)
	}
	return nil
}

const questionColumns = `id, topic_id, prompt, question_type, choices, correct_answer,
	explanation, hint, difficulty, tags, is_active, created_at`

func (s *PostgresStore) GetQuestion(ctx context.Context, id int64) (*Question, error) {
	var q Question
	err := s.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.TopicID, &q.Prompt, &q.Type, &q.Choices, &q.CorrectAnswer,
		&q.Explanation, &q.Hint, &q.Difficulty, &q.Tags, &q.Active, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: question %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return &q, nil
}

func (s *PostgresStore) QuestionsByID(ctx context.Context, ids []int64) (map[int64]Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("questions by id: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]Question, len(ids))
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out[q.ID] = q
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListQuestions(ctx context.Context, p ListQuestionsParams) ([]Question, int, error) {
	page, size := p.Page, p.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}

	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM questions WHERE $1::bigint IS NULL OR topic_id = $1`,
		p.TopicID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count questions: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions
		 WHERE $1::bigint IS NULL OR topic_id = $1
		 ORDER BY created_at DESC, id DESC
		 OFFSET $2 LIMIT $3`,
		p.TopicID, (page-1)*size, size)
	if err != nil {
		return nil, 0, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	questions := []Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, 0, err
		}
		questions = append(questions, q)
	}
	return questions, total, rows.Err()
}

func (s *PostgresStore) ActiveQuestions(ctx context.Context, topicID int64) ([]Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions
		 WHERE topic_id = $1 AND is_active
		 ORDER BY id`, topicID)
	if err != nil {
		return nil, fmt.Errorf("active questions: %w", err)
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func scanQuestion(rows pgx.Rows) (Question, error) {
	var q Question
	err := rows.Scan(&q.ID, &q.TopicID, &q.Prompt, &q.Type, &q.Choices, &q.CorrectAnswer,
		&q.Explanation, &q.Hint, &q.Difficulty, &q.Tags, &q.Active, &q.CreatedAt)
	if err != nil {
		return Question{}, fmt.Errorf("scan question: %w", err)
	}
	return q, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *Session) error {
	mode := sess.Mode
	if mode == "" {
		mode = ModeNormal
	}
	startedAt := sess.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO quiz_sessions (user_id, topic_id, mode, started_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, mode, started_at`,
		sess.UserID, sess.TopicID, mode, startedAt,
	).Scan(&sess.ID, &sess.Mode, &sess.StartedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID, userID int64) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, topic_id, mode, started_at, completed_at, score
		 FROM quiz_sessions
		 WHERE id = $1 AND user_id = $2`,
		sessionID, userID,
	).Scan(&sess.ID, &sess.UserID, &sess.TopicID, &sess.Mode,
		&sess.StartedAt, &sess.CompletedAt, &sess.Score)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %d", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) SessionAnswers(ctx context.Context, sessionID int64) ([]Answer, error) {
	return s.queryAnswers(ctx,
		`SELECT id, session_id, question_id, user_answer, is_correct, submitted_at
		 FROM answers
		 WHERE session_id = $1
		 ORDER BY id`, sessionID)
}

func (s *PostgresStore) TopicAnswers(ctx context.Context, userID, topicID int64) ([]Answer, error) {
	return s.queryAnswers(ctx,
		`SELECT a.id, a.session_id, a.question_id, a.user_answer, a.is_correct, a.submitted_at
		 FROM answers a
		 JOIN quiz_sessions qs ON qs.id = a.session_id
		 WHERE qs.user_id = $1 AND qs.topic_id = $2
		 ORDER BY a.id`, userID, topicID)
}

func (s *PostgresStore) queryAnswers(ctx context.Context, query string, args ...any) ([]Answer, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var answers []Answer
	for rows.Next() {
		var a Answer
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuestionID,
			&a.UserAnswer, &a.Correct, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// CompleteSession persists the answer batch, marks the session completed, and
// upserts the progress aggregate in a single transaction. The guarded UPDATE
// on completed_at and the (session_id, question_id) unique constraint make a
// concurrent duplicate submission fail with ErrInvalidState instead of
// leaving a partially written answer set.
func (s *PostgresStore) CompleteSession(ctx context.Context, c SessionCompletion) error {
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, a := range c.Answers {
			_, err := tx.Exec(ctx,
				`INSERT INTO answers (session_id, question_id, user_answer, is_correct, submitted_at)
				 VALUES ($1, $2, $3, $4, $5)`,
				c.SessionID, a.QuestionID, a.UserAnswer, a.Correct, a.SubmittedAt)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: answers already submitted", ErrInvalidState)
				}
				return fmt.Errorf("insert answer: %w", err)
			}
		}

		cmd, err := tx.Exec(ctx,
			`UPDATE quiz_sessions
			 SET completed_at = $3, score = $4
			 WHERE id = $1 AND user_id = $2 AND completed_at IS NULL`,
			c.SessionID, c.UserID, c.CompletedAt, c.Score)
		if err != nil {
			return fmt.Errorf("complete session: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return fmt.Errorf("%w: session already completed", ErrInvalidState)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO user_progress (user_id, topic_id, mastery_percentage, questions_answered, last_updated)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (user_id, topic_id) DO UPDATE
			 SET mastery_percentage = EXCLUDED.mastery_percentage,
			     questions_answered = user_progress.questions_answered + EXCLUDED.questions_answered,
			     last_updated = EXCLUDED.last_updated`,
			c.UserID, c.TopicID, c.Mastery, c.AnsweredDelta, c.CompletedAt)
		if err != nil {
			return fmt.Errorf("upsert progress: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) GetProgress(ctx context.Context, userID, topicID int64) (*Progress, error) {
	var p Progress
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, topic_id, mastery_percentage, questions_answered, last_updated
		 FROM user_progress
		 WHERE user_id = $1 AND topic_id = $2`,
		userID, topicID,
	).Scan(&p.ID, &p.UserID, &p.TopicID, &p.Mastery, &p.QuestionsAnswered, &p.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: progress for topic %d", ErrNotFound, topicID)
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListProgress(ctx context.Context, userID int64) ([]Progress, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, topic_id, mastery_percentage, questions_answered, last_updated
		 FROM user_progress
		 WHERE user_id = $1
		 ORDER BY topic_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []Progress
	for rows.Next() {
		var p Progress
		if err := rows.Scan(&p.ID, &p.UserID, &p.TopicID,
			&p.Mastery, &p.QuestionsAnswered, &p.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) HasCompletionBetween(ctx context.Context, userID int64, from, to time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM quiz_sessions
		   WHERE user_id = $1
		     AND completed_at >= $2
		     AND completed_at < $3
		 )`, userID, from, to,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("completion check: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CountAnswersBetween(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*)
		 FROM answers a
		 JOIN quiz_sessions qs ON qs.id = a.session_id
		 WHERE qs.user_id = $1
		   AND a.submitted_at >= $2
		   AND a.submitted_at < $3`,
		userID, from, to,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) AnswerTotals(ctx context.Context, userID int64) (int, int, error) {
	var total, correct int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE a.is_correct)
		 FROM answers a
		 JOIN quiz_sessions qs ON qs.id = a.session_id
		 WHERE qs.user_id = $1`, userID,
	).Scan(&total, &correct)
	if err != nil {
		return 0, 0, fmt.Errorf("answer totals: %w", err)
	}
	return total, correct, nil
}

func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT count(*) FROM topics),
		   (SELECT count(*) FROM questions),
		   (SELECT count(*) FROM questions WHERE is_active),
		   (SELECT count(*) FROM users)`,
	).Scan(&c.Topics, &c.Questions, &c.ActiveQuestions, &c.Users)
	if err != nil {
		return Counts{}, fmt.Errorf("counts: %w", err)
	}
	c.InactiveQuestions = c.Questions - c.ActiveQuestions
	return c, nil
}
