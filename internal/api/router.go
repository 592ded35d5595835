package api

import "net/http"

// Routes builds the HTTP router.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", h.requireUser(h.handleLogout))
	mux.HandleFunc("GET /api/auth/me", h.requireUser(h.handleMe))

	mux.HandleFunc("GET /api/topics", h.requireUser(h.handleListTopics))
	mux.HandleFunc("GET /api/topics/{id}", h.requireUser(h.handleGetTopic))

	mux.HandleFunc("POST /api/quiz/sessions", h.requireUser(h.handleCreateSession))
	mux.HandleFunc("GET /api/quiz/sessions/{id}", h.requireUser(h.handleGetSession))
	mux.HandleFunc("POST /api/quiz/sessions/{id}/answers", h.requireUser(h.handleSubmitAnswers))
	mux.HandleFunc("GET /api/quiz/sessions/{id}/results", h.requireUser(h.handleResults))

	mux.HandleFunc("GET /api/progress/dashboard", h.requireUser(h.handleDashboard))
	mux.HandleFunc("GET /api/progress/topics/{id}", h.requireUser(h.handleTopicProgress))
	mux.HandleFunc("GET /api/progress/map", h.requireUser(h.handleKnowledgeMap))
	mux.HandleFunc("GET /api/progress/feed", h.requireFeedUser(h.handleFeed))

	mux.HandleFunc("GET /api/admin/dashboard", h.requireAdmin(h.handleAdminDashboard))
	mux.HandleFunc("POST /api/admin/topics", h.requireAdmin(h.handleCreateTopic))
	mux.HandleFunc("PUT /api/admin/topics/{id}", h.requireAdmin(h.handleUpdateTopic))
	mux.HandleFunc("POST /api/admin/questions", h.requireAdmin(h.handleCreateQuestion))
	mux.HandleFunc("GET /api/admin/questions", h.requireAdmin(h.handleListQuestions))
	mux.HandleFunc("GET /api/admin/questions/{id}", h.requireAdmin(h.handleGetQuestion))
	mux.HandleFunc("PUT /api/admin/questions/{id}", h.requireAdmin(h.handleUpdateQuestion))
	mux.HandleFunc("DELETE /api/admin/questions/{id}", h.requireAdmin(h.handleDeleteQuestion))
	mux.HandleFunc("POST /api/admin/questions/import", h.requireAdmin(h.handleImportQuestions))

	return mux
}
