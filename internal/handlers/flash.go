package handlers

import (
	"encoding/gob"
	"net/http"

	"github.com/gorilla/sessions"
)

const flashSession = "forum_flash"

const (
	flashSuccess = "success"
	flashError   = "error"
	flashInfo    = "info"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Level string
	Text  string
}

func init() {
	gob.Register(Flash{})
}

// NewFlashStore returns the signed cookie store used for flash messages.
func NewFlashStore(key []byte, secure bool) *sessions.CookieStore {
	fs := sessions.NewCookieStore(key)
	fs.Options.Path = "/"
	fs.Options.HttpOnly = true
	fs.Options.Secure = secure
	fs.Options.SameSite = http.SameSiteLaxMode
	return fs
}

func (h *Handler) flash(w http.ResponseWriter, r *http.Request, level, text string) {
	// a tampered or stale cookie still yields a fresh session
	sess, _ := h.flashes.Get(r, flashSession)
	if sess == nil {
		return
	}
	sess.AddFlash(Flash{Level: level, Text: text})
	if err := sess.Save(r, w); err != nil {
		h.Logger.Warnw("save flash", "error", err)
	}
}

func (h *Handler) popFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	sess, _ := h.flashes.Get(r, flashSession)
	if sess == nil {
		return nil
	}
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}
	if err := sess.Save(r, w); err != nil {
		h.Logger.Warnw("clear flashes", "error", err)
	}
	out := make([]Flash, 0, len(raw))
	for _, f := range raw {
		if fl, ok := f.(Flash); ok {
			out = append(out, fl)
		}
	}
	return out
}
