package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/chocolingo/server/internal/quiz"
)

type contextKey struct{ name string }

var userKey = contextKey{"user"}

// requireUser resolves the Authorization bearer token and stores the account
// in the request context.
func (h *Handler) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return h.withUser(next, false)
}

// requireFeedUser additionally accepts the token as a ?token= query
// parameter, since browser websocket clients cannot set headers. Only the
// feed route is mounted behind it.
func (h *Handler) requireFeedUser(next http.HandlerFunc) http.HandlerFunc {
	return h.withUser(next, true)
}

func (h *Handler) withUser(next http.HandlerFunc, allowQueryToken bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" && allowQueryToken {
			token = r.URL.Query().Get("token")
		}
		user, err := h.auth.CurrentUser(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	}
}

// requireAdmin wraps requireUser with a role check.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return h.requireUser(func(w http.ResponseWriter, r *http.Request) {
		if currentUser(r).Role != quiz.RoleAdmin {
			writeError(w, r, fmt.Errorf("%w", errForbidden))
			return
		}
		next(w, r)
	})
}

// currentUser returns the authenticated account. Only valid below
// requireUser; the middleware guarantees presence.
func currentUser(r *http.Request) *quiz.User {
	return r.Context().Value(userKey).(*quiz.User)
}

func bearerToken(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token
	}
	return ""
}
