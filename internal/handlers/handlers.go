package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"discuss/internal/auth"
	"discuss/internal/forms"
	"discuss/internal/media"
	"discuss/internal/metrics"
	"discuss/internal/models"
	"discuss/internal/store"
	"discuss/web"
)

type Config struct {
	Store     *store.Store
	Sessions  *auth.Manager
	Flashes   sessions.Store
	Media     *media.Store
	Metrics   *metrics.Metrics
	Logger    *zap.SugaredLogger
	MaxUpload int64
	// StaticDir serves assets from disk instead of the embedded copy.
	StaticDir string
}

type Handler struct {
	store     *store.Store
	sessions  *auth.Manager
	flashes   sessions.Store
	media     *media.Store
	metrics   *metrics.Metrics
	Logger    *zap.SugaredLogger
	tpls      *template.Template
	maxUpload int64
	staticDir string
	now       func() time.Time
}

func New(c Config) (*Handler, error) {
	tpls, err := template.New("").Funcs(templateFuncs).ParseFS(web.Templates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New()
	}
	if c.MaxUpload <= 0 {
		c.MaxUpload = 10 << 20
	}
	return &Handler{
		store:     c.Store,
		sessions:  c.Sessions,
		flashes:   c.Flashes,
		media:     c.Media,
		metrics:   c.Metrics,
		Logger:    c.Logger,
		tpls:      tpls,
		maxUpload: c.MaxUpload,
		staticDir: c.StaticDir,
		now:       time.Now,
	}, nil
}

var templateFuncs = template.FuncMap{
	"avatarURL": func(ref string) string { return media.URL(ref, media.Avatars) },
	"iconURL":   func(ref string) string { return media.URL(ref, media.CategoryIcons) },
	"preview":   store.Preview,
	"date":      func(t time.Time) string { return t.Format("Jan 2, 2006 15:04") },
	"dateValue": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("2006-01-02")
	},
	"owns": func(u *models.User, ownerID uint) bool {
		return u != nil && u.ID == ownerID
	},
	"like": func(url string, liked bool, total int, u *models.User) map[string]any {
		return map[string]any{"URL": url, "Liked": liked, "Total": total, "Enabled": u != nil}
	},
	"dict": func(kv ...any) (map[string]any, error) {
		if len(kv)%2 != 0 {
			return nil, errors.New("dict needs key/value pairs")
		}
		m := make(map[string]any, len(kv)/2)
		for i := 0; i < len(kv); i += 2 {
			k, ok := kv[i].(string)
			if !ok {
				return nil, fmt.Errorf("dict key %v is not a string", kv[i])
			}
			m[k] = kv[i+1]
		}
		return m, nil
	},
}

func getTheme(r *http.Request) string {
	if c, err := r.Cookie("theme"); err == nil && (c.Value == "dark" || c.Value == "light") {
		return c.Value
	}
	return "light"
}

func (h *Handler) ToggleTheme(w http.ResponseWriter, r *http.Request) {
	newv := "dark"
	if getTheme(r) == "dark" {
		newv = "light"
	}
	http.SetCookie(w, &http.Cookie{
		Name:    "theme",
		Value:   newv,
		Path:    "/",
		Expires: h.now().Add(365 * 24 * time.Hour),
	})
	back := "/"
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Path != "" {
		back = safeNext(ref.RequestURI())
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// render executes a named template with the data every page needs. The
// page is buffered so a template error still yields a clean 500.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	u := auth.UserFromContext(r.Context())
	data["User"] = u
	data["Logged"] = u != nil
	data["Theme"] = getTheme(r)
	data["Flashes"] = h.popFlashes(w, r)
	if _, ok := data["Title"]; !ok {
		data["Title"] = "Forum"
	}
	if _, ok := data["Errors"]; !ok {
		data["Errors"] = forms.Errors{}
	}
	if _, ok := data["Form"]; !ok {
		data["Form"] = url.Values{}
	}

	var buf bytes.Buffer
	if err := h.tpls.ExecuteTemplate(&buf, name, data); err != nil {
		h.Logger.Errorw("render template", "template", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, "notfound", map[string]any{"Title": "Not found"})
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.Logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	h.render(w, r, http.StatusInternalServerError, "error", map[string]any{"Title": "Error"})
}

// Healthz reports whether the database answers.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.Logger.Warnw("health check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// idParam reads the numeric {id} route variable.
func idParam(r *http.Request) (uint, bool) {
	v, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func isXHR(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// safeNext only lets local paths through.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	return next
}

// parseForm handles both urlencoded and multipart bodies, capping uploads
// at maxUpload bytes.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) error {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	err := r.ParseMultipartForm(h.maxUpload)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}
