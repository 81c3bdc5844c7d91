package filter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaccess/internal/observability"
)

func newMiddlewareFilter(t *testing.T, opts ...Option) *Filter {
	t.Helper()

	f := newTestFilter(t, opts...)
	require.NoError(t, f.Deny("^/admin", "guest"))
	f.SetDefault("/login")
	return f
}

func TestMiddleware_Proceed(t *testing.T) {
	t.Parallel()

	f := newMiddlewareFilter(t)
	handler := Middleware(f, HeaderRoleFunc(""), observability.NopLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set(RoleHeader, "guest")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_Redirect(t *testing.T) {
	t.Parallel()

	f := newMiddlewareFilter(t)
	handler := Middleware(f, HeaderRoleFunc(""), observability.NopLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run for restricted requests")
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/admin/panel", nil)
	req.Header.Set(RoleHeader, "guest")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestMiddleware_MissingRoleFails(t *testing.T) {
	t.Parallel()

	f := newMiddlewareFilter(t)
	handler := Middleware(f, HeaderRoleFunc(""), observability.NopLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run without a role")
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "access evaluation failed")
}

func TestMiddleware_FullURLMatching(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, WithFullURLs())
	require.NoError(t, f.Deny("preview=true", "guest"))
	f.SetDefault("/login")

	handler := Middleware(f, HeaderRoleFunc(""), observability.NopLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/posts?preview=true", nil)
	req.Header.Set(RoleHeader, "guest")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestMiddleware_FullURLIncludesHost(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, WithFullURLs())
	require.NoError(t, f.Deny(`^http://internal\.example\.com/admin`, "guest"))
	f.SetDefault("/login")

	handler := Middleware(f, HeaderRoleFunc(""), observability.NopLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "http://internal.example.com/admin/panel", nil)
	req.Header.Set(RoleHeader, "guest")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)

	// Same path on another host is not restricted.
	req = httptest.NewRequest(http.MethodGet, "http://public.example.com/admin/panel", nil)
	req.Header.Set(RoleHeader, "guest")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGinMiddleware(t *testing.T) {
	t.Parallel()

	gin.SetMode(gin.TestMode)

	f := newMiddlewareFilter(t)
	f.SetDefaultFor("guest", "/welcome")

	router := gin.New()
	router.Use(GinMiddleware(f, HeaderRoleFunc("X-User-Role"), observability.NopLogger()))
	router.GET("/*path", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	t.Run("proceed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/public", nil)
		req.Header.Set("X-User-Role", "guest")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("redirect uses role override", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/panel", nil)
		req.Header.Set("X-User-Role", "guest")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/welcome", rec.Header().Get("Location"))
	})

	t.Run("missing role fails", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/public", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHeaderRoleFunc_DefaultHeader(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RoleHeader, "staff")

	assert.Equal(t, "staff", HeaderRoleFunc("")(req))
	assert.Empty(t, HeaderRoleFunc("X-Other")(req))
}
