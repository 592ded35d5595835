package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/chocolingo/server/internal/content"
	"github.com/chocolingo/server/internal/quiz"
)

func (h *Handler) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Counts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

type topicRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Level          string `json:"level"`
	PrerequisiteID *int64 `json:"prerequisite_topic_id"`
}

func (h *Handler) topicFromRequest(r *http.Request, topicID int64) (*quiz.Topic, error) {
	var req topicRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", quiz.ErrBadRequest)
	}
	if req.PrerequisiteID != nil {
		if topicID != 0 && *req.PrerequisiteID == topicID {
			return nil, fmt.Errorf("%w: topic cannot be its own prerequisite", quiz.ErrBadRequest)
		}
		if _, err := h.store.GetTopic(r.Context(), *req.PrerequisiteID); err != nil {
			return nil, fmt.Errorf("%w: prerequisite topic %d not found", quiz.ErrBadRequest, *req.PrerequisiteID)
		}
	}
	return &quiz.Topic{
		ID:             topicID,
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Level:          req.Level,
		PrerequisiteID: req.PrerequisiteID,
	}, nil
}

func (h *Handler) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	topic, err := h.topicFromRequest(r, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.CreateTopic(r.Context(), topic); err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, topic)
}

func (h *Handler) handleUpdateTopic(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	topic, err := h.topicFromRequest(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.UpdateTopic(r.Context(), topic); err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, topic)
}

type questionRequest struct {
	TopicID       int64    `json:"topic_id"`
	Prompt        string   `json:"prompt"`
	Type          string   `json:"question_type"`
	Choices       []string `json:"choices"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
	Hint          string   `json:"hint"`
	Difficulty    string   `json:"difficulty"`
	Tags          []string `json:"tags"`
	Active        *bool    `json:"is_active"`
}

func (req *questionRequest) validate() error {
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", quiz.ErrBadRequest)
	}
	t := quiz.QuestionType(req.Type)
	if t != quiz.MultipleChoice && t != quiz.FillBlank {
		return fmt.Errorf("%w: unknown question type %q", quiz.ErrBadRequest, req.Type)
	}
	if strings.TrimSpace(req.CorrectAnswer) == "" {
		return fmt.Errorf("%w: correct answer is required", quiz.ErrBadRequest)
	}
	if t == quiz.MultipleChoice && len(req.Choices) < 2 {
		return fmt.Errorf("%w: multiple choice question needs at least two choices", quiz.ErrBadRequest)
	}
	return nil
}

func (req *questionRequest) apply(q *quiz.Question) {
	q.TopicID = req.TopicID
	q.Prompt = req.Prompt
	q.Type = quiz.QuestionType(req.Type)
	q.Choices = req.Choices
	q.CorrectAnswer = req.CorrectAnswer
	q.Explanation = req.Explanation
	q.Hint = req.Hint
	q.Difficulty = req.Difficulty
	q.Tags = req.Tags
	if req.Active != nil {
		q.Active = *req.Active
	}
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	q := &quiz.Question{Active: true}
	req.apply(q)
	if err := h.store.CreateQuestion(r.Context(), q); err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, q)
}

type questionPage struct {
	Questions []quiz.Question `json:"questions"`
	Total     int             `json:"total"`
	Page      int             `json:"page"`
	PageSize  int             `json:"page_size"`
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	params := quiz.ListQuestionsParams{
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 20),
	}
	if raw := r.URL.Query().Get("topic_id"); raw != "" {
		topicID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid topic_id %q", quiz.ErrBadRequest, raw))
			return
		}
		params.TopicID = &topicID
	}

	questions, total, err := h.store.ListQuestions(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, questionPage{
		Questions: questions,
		Total:     total,
		Page:      params.Page,
		PageSize:  params.PageSize,
	})
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.store.GetQuestion(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.store.GetQuestion(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.apply(q)
	if err := h.store.UpdateQuestion(r.Context(), q); err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

// handleDeleteQuestion deactivates instead of removing, preserving historical
// answer integrity.
func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.store.GetQuestion(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q.Active = false
	if err := h.store.UpdateQuestion(r.Context(), q); err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) handleImportQuestions(w http.ResponseWriter, r *http.Request) {
	upload, err := importUpload(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer upload.Close()

	report, err := content.ImportQuestions(r.Context(), h.store, upload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// importUpload accepts the workbook either as a multipart "file" field or as
// a raw request body.
func importUpload(r *http.Request) (io.ReadCloser, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: missing file field", quiz.ErrBadRequest)
		}
		return file, nil
	}
	return r.Body, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
