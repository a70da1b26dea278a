package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"discuss/internal/auth"
	"discuss/internal/forms"
	"discuss/internal/media"
	"discuss/internal/models"
	"discuss/internal/store"
)

// Index lists every category.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	cats, err := h.store.Categories(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "home", map[string]any{
		"Title":      "Forum",
		"Categories": cats,
	})
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, "create_category", map[string]any{"Title": "Create category"})
		return
	}

	u := auth.UserFromContext(r.Context())
	errs := forms.Errors{}
	if err := h.parseForm(w, r); err != nil {
		errs.Add("icon", "The upload could not be read or is too large.")
		h.renderCreateCategory(w, r, errs)
		return
	}
	in, errs := forms.ParseCategory(r.PostForm)
	if !errs.OK() {
		h.renderCreateCategory(w, r, errs)
		return
	}
	icon, ok := h.saveUpload(w, r, "icon", media.CategoryIcons, errs)
	if !ok {
		return
	}
	if !errs.OK() {
		h.renderCreateCategory(w, r, errs)
		return
	}

	c := &models.Category{
		Name:        in.Name,
		Description: in.Description,
		Icon:        icon,
		CreatedByID: u.ID,
	}
	if err := h.store.CreateCategory(r.Context(), c); err != nil {
		h.media.Remove(icon)
		h.serverError(w, r, err)
		return
	}
	h.metrics.Created.WithLabelValues("category").Inc()
	h.flash(w, r, flashSuccess, "Success!")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) renderCreateCategory(w http.ResponseWriter, r *http.Request, errs forms.Errors) {
	h.render(w, r, http.StatusOK, "create_category", map[string]any{
		"Title":  "Create category",
		"Form":   r.PostForm,
		"Errors": errs,
	})
}

// CategoryDetail lists a category's posts. A POST adds a new post to it.
func (h *Handler) CategoryDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := idParam(r)
	if !ok {
		h.NotFound(w, r)
		return
	}
	cat, err := h.store.CategoryByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		h.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	u := auth.UserFromContext(ctx)
	var viewerID uint
	if u != nil {
		viewerID = u.ID
	}

	errs := forms.Errors{}
	if r.Method == http.MethodPost {
		if u == nil {
			h.redirectToLogin(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		var text string
		text, errs = forms.ParseText(r.PostForm)
		if errs.OK() {
			p := &models.Post{CategoryID: cat.ID, AuthorID: u.ID, Text: text}
			err := h.store.CreatePost(ctx, p)
			if errors.Is(err, store.ErrNotFound) {
				h.NotFound(w, r)
				return
			}
			if err != nil {
				h.serverError(w, r, err)
				return
			}
			h.metrics.Created.WithLabelValues("post").Inc()
			h.flash(w, r, flashSuccess, "Success!")
			http.Redirect(w, r, fmt.Sprintf("/category/%d/", cat.ID), http.StatusSeeOther)
			return
		}
	}

	posts, err := h.store.PostsInCategory(ctx, cat.ID, viewerID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "category_detail", map[string]any{
		"Title":    cat.Name,
		"Category": cat,
		"Posts":    posts,
		"Form":     r.PostForm,
		"Errors":   errs,
	})
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.NotFound(w, r)
		return
	}
	u := auth.UserFromContext(r.Context())

	cat, err := h.store.DeleteCategory(r.Context(), id, u.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.NotFound(w, r)
		return
	case errors.Is(err, store.ErrNotOwner):
		h.flash(w, r, flashError, "You can only delete your own categories.")
	case err != nil:
		h.serverError(w, r, err)
		return
	default:
		if err := h.media.Remove(cat.Icon); err != nil {
			h.Logger.Warnw("remove category icon", "ref", cat.Icon, "error", err)
		}
		h.metrics.Deleted.WithLabelValues("category").Inc()
		h.flash(w, r, flashSuccess, "Success!")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
