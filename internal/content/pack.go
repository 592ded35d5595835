// Package content loads question packs from YAML files, seeds an empty
// database with them, and imports questions from admin-uploaded XLSX files.
package content

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/chocolingo/server/internal/quiz"
)

// Pack is one YAML content document: a set of topics with their questions.
type Pack struct {
	Topics []PackTopic `yaml:"topics" json:"topics"`
}

// PackTopic declares a topic. Prerequisite refers to another topic by title;
// it may point at a topic in any loaded pack.
type PackTopic struct {
	Title        string         `yaml:"title" json:"title"`
	Description  string         `yaml:"description" json:"description"`
	Level        string         `yaml:"level" json:"level"`
	Prerequisite string         `yaml:"prerequisite" json:"prerequisite"`
	Questions    []PackQuestion `yaml:"questions" json:"questions"`
}

// PackQuestion declares a question within a pack topic.
type PackQuestion struct {
	Prompt      string   `yaml:"prompt" json:"prompt"`
	Type        string   `yaml:"type" json:"type"`
	Choices     []string `yaml:"choices" json:"choices"`
	Answer      string   `yaml:"answer" json:"answer"`
	Explanation string   `yaml:"explanation" json:"explanation"`
	Hint        string   `yaml:"hint" json:"hint"`
	Difficulty  string   `yaml:"difficulty" json:"difficulty"`
	Tags        []string `yaml:"tags" json:"tags"`
}

// packSchema validates pack documents before anything touches the database.
const packSchema = `{
  "type": "object",
  "required": ["topics"],
  "properties": {
    "topics": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["title", "questions"],
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "level": {"type": "string"},
          "prerequisite": {"type": "string"},
          "questions": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["prompt", "type", "answer"],
              "properties": {
                "prompt": {"type": "string", "minLength": 1},
                "type": {"type": "string", "enum": ["multiple_choice", "fill_blank"]},
                "choices": {"type": "array", "items": {"type": "string"}},
                "answer": {"type": "string", "minLength": 1},
                "explanation": {"type": "string"},
                "hint": {"type": "string"},
                "difficulty": {"type": "string"},
                "tags": {"type": "array", "items": {"type": "string"}}
              }
            }
          }
        }
      }
    }
  }
}`

// ParsePack decodes and validates one YAML pack document.
func ParsePack(data []byte) (*Pack, error) {
	// Decode to a generic document first so the schema sees the raw shape.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse pack: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(packSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("validate pack: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: invalid pack: %s", quiz.ErrBadRequest, strings.Join(msgs, "; "))
	}

	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse pack: %w", err)
	}
	return &pack, nil
}
