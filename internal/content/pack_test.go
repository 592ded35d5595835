package content

import (
	"errors"
	"testing"

	"github.com/chocolingo/server/internal/quiz"
)

const validPack = `
topics:
  - title: Basic Verbs
    description: Learn the most common verbs
    level: A0
    questions:
      - prompt: "What is the past tense of 'go'?"
        type: multiple_choice
        choices: [went, goed, goes, going]
        answer: went
        explanation: "The past tense of 'go' is 'went'."
      - prompt: "Complete: I ___ to the store yesterday."
        type: fill_blank
        answer: went
  - title: Pronouns
    description: Learn about personal pronouns
    level: A0
    prerequisite: Basic Verbs
    questions:
      - prompt: "Complete: ___ are learning English."
        type: fill_blank
        answer: We
`

func TestParsePack(t *testing.T) {
	pack, err := ParsePack([]byte(validPack))
	if err != nil {
		t.Fatalf("ParsePack() error = %v", err)
	}
	if len(pack.Topics) != 2 {
		t.Fatalf("topics = %d, want 2", len(pack.Topics))
	}
	if pack.Topics[0].Title != "Basic Verbs" || len(pack.Topics[0].Questions) != 2 {
		t.Errorf("first topic = %+v, want Basic Verbs with 2 questions", pack.Topics[0])
	}
	if pack.Topics[1].Prerequisite != "Basic Verbs" {
		t.Errorf("Prerequisite = %q, want %q", pack.Topics[1].Prerequisite, "Basic Verbs")
	}
	q := pack.Topics[0].Questions[0]
	if len(q.Choices) != 4 || q.Answer != "went" {
		t.Errorf("question = %+v, want 4 choices and answer went", q)
	}
}

func TestParsePack_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "topics: ["},
		{"no topics key", "other: 1"},
		{"empty topics", "topics: []"},
		{"topic without title", `
topics:
  - description: x
    questions: []
`},
		{"question without answer", `
topics:
  - title: T
    questions:
      - prompt: p
        type: fill_blank
`},
		{"unknown question type", `
topics:
  - title: T
    questions:
      - prompt: p
        type: essay
        answer: a
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePack([]byte(tt.doc)); err == nil {
				t.Error("ParsePack() should fail")
			}
		})
	}
}

func TestParsePack_SchemaErrorIsBadRequest(t *testing.T) {
	_, err := ParsePack([]byte("topics: []"))
	if !errors.Is(err, quiz.ErrBadRequest) {
		t.Errorf("error = %v, want ErrBadRequest", err)
	}
}
