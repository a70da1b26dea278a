package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"discuss/internal/auth"
	"discuss/internal/store"
)

const slowRequest = 2 * time.Second

// WithRecover wraps an http.Handler and recovers from panics,
// answering with the error page instead of crashing the server.
func (h *Handler) WithRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.Logger.Errorw("panic recovered", "panic", rec, "method", r.Method, "path", r.URL.Path)
				h.render(w, r, http.StatusInternalServerError, "error", map[string]any{"Title": "Error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// accessLog logs each request once and feeds the request metrics.
func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := routeName(r)
		elapsed := time.Since(start)
		h.metrics.Requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		h.metrics.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		fields := []interface{}{
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", rec.status,
			"duration", elapsed,
			"remote_addr", r.RemoteAddr,
		}
		if elapsed > slowRequest {
			h.Logger.Warnw("slow request", fields...)
			return
		}
		h.Logger.Infow("request", fields...)
	})
}

// loadUser resolves the session cookie and puts the user into the request
// context. Unknown or expired sessions leave the request anonymous.
func (h *Handler) loadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok, err := h.sessions.CurrentUserID(r)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		if ok {
			u, err := h.store.UserByID(r.Context(), uid)
			switch {
			case errors.Is(err, store.ErrNotFound):
			case err != nil:
				h.serverError(w, r, err)
				return
			default:
				r = r.WithContext(auth.WithUser(r.Context(), u))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth sends anonymous visitors to the login page, remembering where
// they wanted to go. Asynchronous requests get a bare 401 instead.
func (h *Handler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.UserFromContext(r.Context()) == nil {
			h.redirectToLogin(w, r)
			return
		}
		next.ServeHTTP(w, r)
	}
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	if isXHR(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	http.Redirect(w, r, "/login/?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
}

// RequireStaff hides the wrapped handler from everyone but staff users.
func (h *Handler) RequireStaff(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if u := auth.UserFromContext(r.Context()); u == nil || !u.IsStaff {
			h.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	}
}
