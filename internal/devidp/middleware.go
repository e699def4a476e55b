package devidp

import (
	"context"
	"net/http"
	"strings"
)

type sessionKey struct{}

// requireSession rejects requests without a live bearer session and makes
// the session available to downstream handlers.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := bearerToken(r)
		if id == "" {
			writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "Sign in to continue.", "")
			return
		}
		sess, err := s.records.getSession(id)
		if err != nil {
			writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "Your session has ended. Sign in again.", "")
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) *sessionRecord {
	sess, _ := ctx.Value(sessionKey{}).(*sessionRecord)
	return sess
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}
