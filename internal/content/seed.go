package content

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chocolingo/server/internal/quiz"
)

// Store is the slice of quiz persistence seeding and imports need. Satisfied
// by quiz.Store implementations.
type Store interface {
	CreateTopic(ctx context.Context, t *quiz.Topic) error
	UpdateTopic(ctx context.Context, t *quiz.Topic) error
	FindTopicByTitle(ctx context.Context, title string) (*quiz.Topic, error)
	CreateQuestion(ctx context.Context, q *quiz.Question) error
	Counts(ctx context.Context) (quiz.Counts, error)
}

// Seed populates an empty database from the loaded packs. When any topic
// already exists the seed is a no-op: content is owned by admins once the
// platform is live. Prerequisites are resolved by title in a second pass so a
// topic may reference one declared later or in another pack.
func Seed(ctx context.Context, store Store, packs []*Pack) error {
	counts, err := store.Counts(ctx)
	if err != nil {
		return fmt.Errorf("seed precheck: %w", err)
	}
	if counts.Topics > 0 {
		slog.Info("database already has topics, skipping seed", "topics", counts.Topics)
		return nil
	}

	type pending struct {
		topic        *quiz.Topic
		prerequisite string
	}
	var created []pending
	topicCount, questionCount := 0, 0

	for _, pack := range packs {
		for _, pt := range pack.Topics {
			topic := &quiz.Topic{
				Title:       pt.Title,
				Description: pt.Description,
				Level:       pt.Level,
			}
			if err := store.CreateTopic(ctx, topic); err != nil {
				return fmt.Errorf("seed topic %q: %w", pt.Title, err)
			}
			topicCount++
			if pt.Prerequisite != "" {
				created = append(created, pending{topic: topic, prerequisite: pt.Prerequisite})
			}

			for _, pq := range pt.Questions {
				q := &quiz.Question{
					TopicID:       topic.ID,
					Prompt:        pq.Prompt,
					Type:          quiz.QuestionType(pq.Type),
					Choices:       pq.Choices,
					CorrectAnswer: pq.Answer,
					Explanation:   pq.Explanation,
					Hint:          pq.Hint,
					Difficulty:    pq.Difficulty,
					Tags:          pq.Tags,
					Active:        true,
				}
				if err := store.CreateQuestion(ctx, q); err != nil {
					return fmt.Errorf("seed question for %q: %w", pt.Title, err)
				}
				questionCount++
			}
		}
	}

	for _, p := range created {
		prereq, err := store.FindTopicByTitle(ctx, p.prerequisite)
		if err != nil {
			return fmt.Errorf("prerequisite %q of topic %q: %w", p.prerequisite, p.topic.Title, err)
		}
		if prereq.ID == p.topic.ID {
			return fmt.Errorf("%w: topic %q cannot be its own prerequisite", quiz.ErrBadRequest, p.topic.Title)
		}
		p.topic.PrerequisiteID = &prereq.ID
		if err := store.UpdateTopic(ctx, p.topic); err != nil {
			return fmt.Errorf("link prerequisite of %q: %w", p.topic.Title, err)
		}
	}

	slog.Info("database seeded", "topics", topicCount, "questions", questionCount)
	return nil
}
