package middleware

import (
	"context"
	"net/http"

	"github.com/linguachat/internal/storage"
)

const SessionCookie = "lc_session"

// sessionID достаёт идентификатор сессии из заголовка, cookie или query
// (query нужен для WebSocket: браузерный API не умеет заголовки).
func sessionID(r *http.Request) string {
	if sid := r.Header.Get("X-Session-Id"); sid != "" {
		return sid
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("session_id")
}

// SessionAuth проверяет сессию в store и кладёт user_id в контекст. 401 без сессии.
func SessionAuth(store storage.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := sessionID(r)
			if sid == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			userID, err := store.GetSession(r.Context(), sid)
			if err != nil || userID == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
