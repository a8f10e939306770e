package session_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sesslock/pkg/session"
)

// appendHandler appends the request body to the session payload and echoes it.
func appendHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.MustFromContext(r.Context())
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if len(body) > 0 {
			sess.SetData(append(sess.Data(), body...))
		}
		w.Header().Set("X-Session-ID", sess.ID())
		_, _ = w.Write(sess.Data())
	})
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func noGC(int) int { return 1 << 30 }

func TestMiddleware(t *testing.T) {
	t.Run("new session gets a cookie and persists data", func(t *testing.T) {
		storage := session.NewMemoryStorage()
		handler := session.Middleware(storage.Factory(), session.WithGCRoll(noGC))(appendHandler(t))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a")))
		require.Equal(t, http.StatusOK, rec.Code)

		c := sessionCookie(t, rec)
		assert.True(t, session.ValidID(c.Value))
		assert.True(t, c.HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		assert.Equal(t, c.Value, rec.Header().Get("X-Session-ID"))
		assert.Equal(t, 1, storage.Len())

		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("b"))
		req.AddCookie(c)
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, "ab", rec.Body.String())
		assert.Equal(t, c.Value, rec.Header().Get("X-Session-ID"))
		assert.Empty(t, rec.Result().Cookies(), "known session with lifetime 0 is not re-sent")
	})

	t.Run("invalid cookie is replaced", func(t *testing.T) {
		storage := session.NewMemoryStorage()
		handler := session.Middleware(storage.Factory(), session.WithGCRoll(noGC))(appendHandler(t))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "sid", Value: "../../etc/passwd"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		c := sessionCookie(t, rec)
		assert.NotEqual(t, "../../etc/passwd", c.Value)
		assert.True(t, session.ValidID(c.Value))
	})

	t.Run("lock is released after the request", func(t *testing.T) {
		storage := session.NewMemoryStorage()
		handler := session.Middleware(storage.Factory(session.WithMemoryLockTimeout(shortWait)), session.WithGCRoll(noGC))(appendHandler(t))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x")))
		c := sessionCookie(t, rec)

		for range 3 {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(c)
			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, "x", rec.Body.String())
		}
	})

	t.Run("regenerate moves the payload", func(t *testing.T) {
		storage := session.NewMemoryStorage()
		mw := session.Middleware(storage.Factory(), session.WithGCRoll(noGC))

		first := httptest.NewRecorder()
		mw(appendHandler(t)).ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("data")))
		oldCookie := sessionCookie(t, first)

		regen := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, session.MustFromContext(r.Context()).Regenerate())
		}))
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.AddCookie(oldCookie)
		rec := httptest.NewRecorder()
		regen.ServeHTTP(rec, req)

		newCookie := sessionCookie(t, rec)
		assert.NotEqual(t, oldCookie.Value, newCookie.Value)

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(newCookie)
		rec = httptest.NewRecorder()
		mw(appendHandler(t)).ServeHTTP(rec, req)
		assert.Equal(t, "data", rec.Body.String())
	})

	t.Run("destroy clears the cookie and the record", func(t *testing.T) {
		storage := session.NewMemoryStorage()
		mw := session.Middleware(storage.Factory(), session.WithGCRoll(noGC))

		first := httptest.NewRecorder()
		mw(appendHandler(t)).ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("data")))
		c := sessionCookie(t, first)
		require.Equal(t, 1, storage.Len())

		destroy := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := session.MustFromContext(r.Context())
			require.NoError(t, sess.Destroy(r.Context()))
			assert.True(t, sess.Destroyed())
			w.WriteHeader(http.StatusNoContent)
		}))
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		req.AddCookie(c)
		rec := httptest.NewRecorder()
		destroy.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, 0, storage.Len())
		assert.Less(t, sessionCookie(t, rec).MaxAge, 0)
	})

	t.Run("gc runs when the roll hits", func(t *testing.T) {
		storage := session.NewMemoryStorage()
		spies := make([]*spyBackend, 0)
		factory := func() session.Backend {
			spy := newSpy(storage.Backend())
			spies = append(spies, spy)
			return spy
		}
		always := func(int) int { return 0 }

		handler := session.Middleware(factory, session.WithGCRoll(always))(appendHandler(t))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		require.Len(t, spies, 1)
		assert.Equal(t, 1, spies[0].Calls("DeleteExpired"))
	})

	t.Run("gc disabled by probability zero", func(t *testing.T) {
		storage := session.NewMemoryStorage()
		var spy *spyBackend
		factory := func() session.Backend {
			spy = newSpy(storage.Backend())
			return spy
		}
		cfg := session.DefaultConfig()
		cfg.GCProbability = 0

		handler := session.Middleware(factory,
			session.WithMiddlewareConfig(cfg),
			session.WithGCRoll(func(int) int { return 0 }),
		)(appendHandler(t))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, 0, spy.Calls("DeleteExpired"))
	})

	t.Run("unavailable storage fails the request", func(t *testing.T) {
		factory := func() session.Backend {
			spy := newSpy(session.NewMemoryStorage().Backend())
			spy.openErr = session.ErrEnvironmentUnavailable
			return spy
		}
		called := false
		handler := session.Middleware(factory)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			called = true
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.False(t, called)
	})

	t.Run("header transport", func(t *testing.T) {
		storage := session.NewMemoryStorage()
		handler := session.Middleware(storage.Factory(),
			session.WithTransport(session.NewHeaderTransport("X-Session")),
			session.WithGCRoll(noGC),
		)(appendHandler(t))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("h")))
		id := rec.Header().Get("X-Session")
		require.True(t, session.ValidID(id))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Session", id)
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, "h", rec.Body.String())
	})
}

func TestContext(t *testing.T) {
	_, ok := session.FromContext(context.Background())
	assert.False(t, ok)
	assert.Panics(t, func() { session.MustFromContext(context.Background()) })

	_, ok = session.IDFromContext(context.Background())
	assert.False(t, ok)
}
