package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sessionCookie = "forum_session"

type Manager struct {
	store  Store
	maxAge time.Duration
	secure bool
	now    func() time.Time
}

func NewManager(store Store, maxAge time.Duration, secure bool) *Manager {
	return &Manager{store: store, maxAge: maxAge, secure: secure, now: time.Now}
}

// Create starts a new session for userID and sets the session cookie.
func (m *Manager) Create(ctx context.Context, w http.ResponseWriter, userID uint) error {
	id := uuid.New().String()
	expires := m.now().Add(m.maxAge)

	if err := m.store.Save(ctx, id, userID, expires); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
	return nil
}

func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var err error
	if c, _ := r.Cookie(sessionCookie); c != nil && c.Value != "" {
		err = m.store.Delete(ctx, c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
	return err
}

// DestroyUser ends every session of userID.
func (m *Manager) DestroyUser(ctx context.Context, userID uint) error {
	return m.store.DeleteUser(ctx, userID)
}

// CurrentUserID resolves the session cookie. Storage errors are reported
// separately from a missing or expired session.
func (m *Manager) CurrentUserID(r *http.Request) (uint, bool, error) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return 0, false, nil
	}
	uid, exp, err := m.store.Load(r.Context(), c.Value)
	if errors.Is(err, ErrNoSession) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if m.now().After(exp) {
		return 0, false, nil
	}
	return uid, true, nil
}

// RunSweeper removes expired sessions every interval until ctx is done.
// It is a no-op for stores that expire entries themselves.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration, log *zap.SugaredLogger) {
	exp, ok := m.store.(Expirer)
	if !ok {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := exp.DeleteExpired(ctx, m.now())
			if err != nil {
				log.Errorw("sweep sessions", "error", err)
				continue
			}
			if n > 0 {
				log.Infow("swept expired sessions", "count", n)
			}
		}
	}
}
