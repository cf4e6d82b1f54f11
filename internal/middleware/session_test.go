package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linguachat/internal/storage/memory"
)

func sessionEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetUserID(r.Context())))
	})
}

func TestSessionAuth(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.SetSession(context.Background(), "sess-1", "user-1"))
	h := SessionAuth(store)(sessionEcho())

	t.Run("header", func(t *testing.T) {
		req := require.New(t)
		r := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
		r.Header.Set("X-Session-Id", "sess-1")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		req.Equal(http.StatusOK, w.Code)
		req.Equal("user-1", w.Body.String())
	})

	t.Run("cookie", func(t *testing.T) {
		req := require.New(t)
		r := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
		r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "sess-1"})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		req.Equal(http.StatusOK, w.Code)
		req.Equal("user-1", w.Body.String())
	})

	t.Run("query for websocket", func(t *testing.T) {
		req := require.New(t)
		r := httptest.NewRequest(http.MethodGet, "/ws?session_id=sess-1", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		req.Equal(http.StatusOK, w.Code)
		req.Equal("user-1", w.Body.String())
	})

	t.Run("missing session", func(t *testing.T) {
		req := require.New(t)
		r := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		req.Equal(http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		req := require.New(t)
		r := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
		r.Header.Set("X-Session-Id", "sess-nope")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		req.Equal(http.StatusUnauthorized, w.Code)
	})
}

func TestMaskToken(t *testing.T) {
	req := require.New(t)
	req.Equal("****", MaskToken("ab"))
	req.Equal("****", MaskToken(""))
	req.Equal("abcd***", MaskToken("abcdefgh"))
}
