package filter

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaccess/internal/observability"
)

// RoleHeader is the default header the role is read from.
const RoleHeader = "X-Role"

// RoleFunc extracts the requester's role from a request. It returns an
// empty string when no role is present.
type RoleFunc func(r *http.Request) string

// HeaderRoleFunc reads the role from the given header.
func HeaderRoleFunc(header string) RoleFunc {
	if header == "" {
		header = RoleHeader
	}
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}

// effectivePath returns the request path, or the full request URL when
// the filter was built with WithFullURLs. Server requests carry only
// path and query in the URL, so the scheme and host are reconstructed
// from the request itself.
func effectivePath(f *Filter, r *http.Request) string {
	if !f.UsesFullURLs() {
		return r.URL.Path
	}
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// Middleware returns a net/http middleware that evaluates every request
// and issues a redirect when the filter restricts it. Evaluation errors
// fail the request with 500; they signal a configuration defect, not a
// user condition.
func Middleware(f *Filter, roleFn RoleFunc, logger observability.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := f.Evaluate(r.Context(), roleFn(r), effectivePath(f, r))
			if err != nil {
				logger.Error("access evaluation failed",
					observability.String("path", r.URL.Path),
					observability.Error(err),
				)
				writeEvaluationError(w)
				return
			}

			if decision.Redirect {
				http.Redirect(w, r, decision.Location, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GinMiddleware returns a gin middleware with the same behavior as
// Middleware.
func GinMiddleware(f *Filter, roleFn RoleFunc, logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return func(c *gin.Context) {
		decision, err := f.Evaluate(c.Request.Context(), roleFn(c.Request), effectivePath(f, c.Request))
		if err != nil {
			logger.Error("access evaluation failed",
				observability.String("path", c.Request.URL.Path),
				observability.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "access evaluation failed",
			})
			return
		}

		if decision.Redirect {
			c.Redirect(http.StatusFound, decision.Location)
			c.Abort()
			return
		}

		c.Next()
	}
}

// writeEvaluationError writes the JSON error body for a failed evaluation.
func writeEvaluationError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "access evaluation failed",
	})
}
