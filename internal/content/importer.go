package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/chocolingo/server/internal/quiz"
)

// XLSX import column layout, one question per row, header on row 1:
//
//	A topic title   B prompt        C type (multiple_choice | fill_blank)
//	D choices (|-separated)         E correct answer
//	F explanation   G hint          H difficulty    I tags (|-separated)
const importSheet = "Sheet1"

// ImportReport summarizes one XLSX import. Row numbers in Errors are
// 1-based, matching what the admin sees in a spreadsheet editor.
type ImportReport struct {
	TotalRows        int      `json:"total_rows"`
	TopicsCreated    int      `json:"topics_created"`
	QuestionsCreated int      `json:"questions_created"`
	Skipped          int      `json:"skipped"`
	Errors           []string `json:"errors"`
}

// ImportQuestions reads an uploaded XLSX workbook and creates the questions
// it describes, creating topics on first reference. Rows that fail validation
// are skipped and reported; the rest of the import proceeds.
func ImportQuestions(ctx context.Context, store Store, r io.Reader) (*ImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: not a readable workbook: %v", quiz.ErrBadRequest, err)
	}
	defer f.Close()

	rows, err := f.GetRows(importSheet)
	if err != nil {
		return nil, fmt.Errorf("%w: missing sheet %q", quiz.ErrBadRequest, importSheet)
	}

	report := &ImportReport{Errors: []string{}}
	topicIDs := make(map[string]int64)

	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		report.TotalRows++

		rowNum := i + 1
		q, topicTitle, err := parseImportRow(row)
		if err != nil {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}

		topicID, ok := topicIDs[strings.ToLower(topicTitle)]
		if !ok {
			topicID, err = resolveTopic(ctx, store, topicTitle, report)
			if err != nil {
				report.Skipped++
				report.Errors = append(report.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
				continue
			}
			topicIDs[strings.ToLower(topicTitle)] = topicID
		}

		q.TopicID = topicID
		if err := store.CreateQuestion(ctx, q); err != nil {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		report.QuestionsCreated++
	}

	slog.Info("question import finished",
		"rows", report.TotalRows,
		"created", report.QuestionsCreated,
		"topics_created", report.TopicsCreated,
		"skipped", report.Skipped,
	)
	return report, nil
}

func parseImportRow(row []string) (*quiz.Question, string, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	topicTitle := cell(0)
	prompt := cell(1)
	qType := quiz.QuestionType(cell(2))
	answer := cell(4)

	if topicTitle == "" {
		return nil, "", fmt.Errorf("missing topic title")
	}
	if prompt == "" {
		return nil, "", fmt.Errorf("missing prompt")
	}
	if qType != quiz.MultipleChoice && qType != quiz.FillBlank {
		return nil, "", fmt.Errorf("unknown question type %q", cell(2))
	}
	if answer == "" {
		return nil, "", fmt.Errorf("missing correct answer")
	}

	q := &quiz.Question{
		Prompt:        prompt,
		Type:          qType,
		Choices:       splitList(cell(3)),
		CorrectAnswer: answer,
		Explanation:   cell(5),
		Hint:          cell(6),
		Difficulty:    cell(7),
		Tags:          splitList(cell(8)),
		Active:        true,
	}
	if qType == quiz.MultipleChoice && len(q.Choices) < 2 {
		return nil, "", fmt.Errorf("multiple choice question needs at least two choices")
	}
	return q, topicTitle, nil
}

func resolveTopic(ctx context.Context, store Store, title string, report *ImportReport) (int64, error) {
	topic, err := store.FindTopicByTitle(ctx, title)
	if err == nil {
		return topic.ID, nil
	}
	if !errors.Is(err, quiz.ErrNotFound) {
		return 0, fmt.Errorf("find topic %q: %w", title, err)
	}
	topic = &quiz.Topic{Title: title}
	if err := store.CreateTopic(ctx, topic); err != nil {
		return 0, fmt.Errorf("create topic %q: %w", title, err)
	}
	report.TopicsCreated++
	return topic.ID, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
