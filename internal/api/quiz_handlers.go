package api

import (
	"net/http"

	"github.com/chocolingo/server/internal/quiz"
)

// topicView is a topic with its question count, as shown on the topic list.
type topicView struct {
	quiz.Topic
	QuestionCount int `json:"question_count"`
}

func (h *Handler) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.store.ListTopics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	counts, err := h.store.QuestionCounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	views := make([]topicView, len(topics))
	for i, t := range topics {
		views[i] = topicView{Topic: t, QuestionCount: counts[t.ID]}
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handler) handleGetTopic(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	topic, err := h.store.GetTopic(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, topic)
}

type createSessionRequest struct {
	TopicID int64     `json:"topic_id"`
	Mode    quiz.Mode `json:"mode"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	view, err := h.quiz.CreateSession(r.Context(), currentUser(r).ID, req.TopicID, req.Mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.quiz.GetSession(r.Context(), id, currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

type submitAnswersRequest struct {
	Answers []quiz.Submission `json:"answers"`
}

func (h *Handler) handleSubmitAnswers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req submitAnswersRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.quiz.SubmitAnswers(r.Context(), id, currentUser(r).ID, req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.quiz.Results(r.Context(), id, currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.progress.Dashboard(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleTopicProgress(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.progress.TopicProgress(r.Context(), currentUser(r).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) handleKnowledgeMap(w http.ResponseWriter, r *http.Request) {
	m, err := h.progress.KnowledgeMap(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}
