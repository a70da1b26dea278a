package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"discuss/internal/auth"
	"discuss/internal/forms"
	"discuss/internal/media"
	"discuss/internal/models"
	"discuss/internal/store"
)

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, "register", map[string]any{"Title": "Register"})
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	reg, errs := forms.ParseRegistration(r.PostForm, h.now())
	if !errs.Has("nickname") {
		taken, err := h.store.NicknameTaken(r.Context(), reg.Nickname, 0)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		if taken {
			errs.Add("nickname", forms.MsgNicknameTaken)
		}
	}
	if !errs.OK() {
		h.renderRegister(w, r, errs)
		return
	}

	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	dob := reg.DateOfBirth
	u := &models.User{
		Nickname:     reg.Nickname,
		Email:        reg.Email,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		DateOfBirth:  &dob,
		PasswordHash: hash,
	}
	err = h.store.CreateUser(r.Context(), u)
	if errors.Is(err, store.ErrNicknameTaken) {
		errs.Add("nickname", forms.MsgNicknameTaken)
		h.renderRegister(w, r, errs)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	if err := h.sessions.Create(r.Context(), w, u.ID); err != nil {
		h.serverError(w, r, err)
		return
	}
	h.metrics.AuthEvents.WithLabelValues("register").Inc()
	h.Logger.Infow("user registered", "user_id", u.ID, "nickname", u.Nickname)
	h.flash(w, r, flashSuccess, "Registration successful")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) renderRegister(w http.ResponseWriter, r *http.Request, errs forms.Errors) {
	h.render(w, r, http.StatusOK, "register", map[string]any{
		"Title":  "Register",
		"Form":   r.PostForm,
		"Errors": errs,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, "login", map[string]any{
			"Title": "Login",
			"Next":  safeNext(r.URL.Query().Get("next")),
		})
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	next := safeNext(r.PostForm.Get("next"))
	creds, errs := forms.ParseLogin(r.PostForm)
	if errs.OK() {
		u, err := h.store.UserByNickname(r.Context(), creds.Nickname)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			h.serverError(w, r, err)
			return
		case auth.CheckPassword(creds.Password, u.PasswordHash):
			h.startSession(w, r, u, next)
			return
		}
		h.metrics.AuthEvents.WithLabelValues("login_failed").Inc()
		errs.Add("", forms.MsgBadLogin)
	}

	h.render(w, r, http.StatusOK, "login", map[string]any{
		"Title":  "Login",
		"Form":   r.PostForm,
		"Errors": errs,
		"Next":   next,
	})
}

// startSession replaces any previous sessions of u with a fresh one.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, u *models.User, next string) {
	ctx := r.Context()
	if err := h.sessions.DestroyUser(ctx, u.ID); err != nil {
		h.serverError(w, r, err)
		return
	}
	if err := h.sessions.Create(ctx, w, u.ID); err != nil {
		h.serverError(w, r, err)
		return
	}
	if err := h.store.TouchLogin(ctx, u.ID, h.now()); err != nil {
		h.Logger.Warnw("update last login", "user_id", u.ID, "error", err)
	}
	h.metrics.AuthEvents.WithLabelValues("login").Inc()
	h.flash(w, r, flashSuccess, "Welcome back, "+u.Nickname+"!")
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(r.Context(), w, r); err != nil {
		h.Logger.Warnw("destroy session", "error", err)
	}
	h.metrics.AuthEvents.WithLabelValues("logout").Inc()
	h.flash(w, r, flashInfo, "You have been logged out.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Profile shows a user with their categories, posts and liked posts.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var viewerID uint
	if viewer := auth.UserFromContext(ctx); viewer != nil {
		viewerID = viewer.ID
	}

	pu, err := h.store.UserByNickname(ctx, mux.Vars(r)["nickname"])
	if errors.Is(err, store.ErrNotFound) {
		h.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	cats, err := h.store.CategoriesBy(ctx, pu.ID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	posts, err := h.store.PostsBy(ctx, pu.ID, viewerID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	liked, err := h.store.LikedPosts(ctx, pu.ID, viewerID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "profile", map[string]any{
		"Title":       pu.Nickname,
		"ProfileUser": pu,
		"Categories":  cats,
		"Posts":       posts,
		"Liked":       liked,
	})
}

func profileValues(u *models.User) url.Values {
	v := url.Values{}
	v.Set("nickname", u.Nickname)
	v.Set("first_name", u.FirstName)
	v.Set("last_name", u.LastName)
	if u.DateOfBirth != nil {
		v.Set("date_of_birth", u.DateOfBirth.Format("2006-01-02"))
	}
	return v
}

func (h *Handler) EditProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := auth.UserFromContext(ctx)

	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, "edit_profile", map[string]any{
			"Title": "Edit profile",
			"Form":  profileValues(u),
		})
		return
	}

	errs := forms.Errors{}
	if err := h.parseForm(w, r); err != nil {
		errs.Add("avatar", "The upload could not be read or is too large.")
		h.renderEditProfile(w, r, errs)
		return
	}

	p, errs := forms.ParseProfile(r.PostForm, h.now())
	if !errs.Has("nickname") {
		taken, err := h.store.NicknameTaken(ctx, p.Nickname, u.ID)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		if taken {
			errs.Add("nickname", forms.MsgNicknameTaken)
		}
	}
	if !errs.OK() {
		h.renderEditProfile(w, r, errs)
		return
	}

	avatar, ok := h.saveUpload(w, r, "avatar", media.Avatars, errs)
	if !ok {
		return
	}
	if !errs.OK() {
		h.renderEditProfile(w, r, errs)
		return
	}

	updated := *u
	updated.Nickname = p.Nickname
	updated.FirstName = p.FirstName
	updated.LastName = p.LastName
	updated.DateOfBirth = p.DateOfBirth
	if avatar != "" {
		updated.Avatar = avatar
	}

	err := h.store.UpdateProfile(ctx, &updated)
	if errors.Is(err, store.ErrNicknameTaken) {
		h.media.Remove(avatar)
		errs.Add("nickname", forms.MsgNicknameTaken)
		h.renderEditProfile(w, r, errs)
		return
	}
	if err != nil {
		h.media.Remove(avatar)
		h.serverError(w, r, err)
		return
	}
	if avatar != "" && u.Avatar != "" {
		if err := h.media.Remove(u.Avatar); err != nil {
			h.Logger.Warnw("remove old avatar", "ref", u.Avatar, "error", err)
		}
	}

	h.flash(w, r, flashSuccess, "Success!")
	http.Redirect(w, r, "/profile/"+url.PathEscape(updated.Nickname)+"/", http.StatusSeeOther)
}

func (h *Handler) renderEditProfile(w http.ResponseWriter, r *http.Request, errs forms.Errors) {
	h.render(w, r, http.StatusOK, "edit_profile", map[string]any{
		"Title":  "Edit profile",
		"Form":   r.PostForm,
		"Errors": errs,
	})
}

// saveUpload stores the optional image in form field name. It returns the
// new media reference ("" when nothing was uploaded). A rejected image is
// reported through errs; ok is false only when a response was already
// written.
func (h *Handler) saveUpload(w http.ResponseWriter, r *http.Request, name, kind string, errs forms.Errors) (ref string, ok bool) {
	if r.MultipartForm == nil {
		return "", true
	}
	file, _, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return "", true
	}
	if err != nil {
		errs.Add(name, "The upload could not be read.")
		return "", true
	}
	defer file.Close()

	ref, err = h.media.Save(kind, file)
	if errors.Is(err, media.ErrNotImage) {
		errs.Add(name, "Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
		return "", true
	}
	if err != nil {
		h.serverError(w, r, err)
		return "", false
	}
	return ref, true
}
