package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"discuss/internal/auth"
	"discuss/internal/forms"
	"discuss/internal/models"
	"discuss/internal/store"
)

// PostDetail shows a post with its comments. A POST adds a comment.
func (h *Handler) PostDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := idParam(r)
	if !ok {
		h.NotFound(w, r)
		return
	}

	u := auth.UserFromContext(ctx)
	var viewerID uint
	if u != nil {
		viewerID = u.ID
	}

	post, err := h.store.PostByID(ctx, id, viewerID)
	if errors.Is(err, store.ErrNotFound) {
		h.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
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
			c := &models.Comment{PostID: post.ID, AuthorID: u.ID, Text: text}
			err := h.store.CreateComment(ctx, c)
			if errors.Is(err, store.ErrNotFound) {
				h.NotFound(w, r)
				return
			}
			if err != nil {
				h.serverError(w, r, err)
				return
			}
			h.metrics.Created.WithLabelValues("comment").Inc()
			h.flash(w, r, flashSuccess, "Success!")
			http.Redirect(w, r, fmt.Sprintf("/post/%d/", post.ID), http.StatusSeeOther)
			return
		}
	}

	comments, err := h.store.CommentsOnPost(ctx, post.ID, viewerID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "post_detail", map[string]any{
		"Title":    post.Category.Name,
		"Post":     post,
		"Comments": comments,
		"Form":     r.PostForm,
		"Errors":   errs,
	})
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.NotFound(w, r)
		return
	}
	u := auth.UserFromContext(r.Context())

	post, err := h.store.DeletePost(r.Context(), id, u.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.NotFound(w, r)
		return
	case errors.Is(err, store.ErrNotOwner):
		h.flash(w, r, flashError, "You can only delete your own posts.")
	case err != nil:
		h.serverError(w, r, err)
		return
	default:
		h.metrics.Deleted.WithLabelValues("post").Inc()
		h.flash(w, r, flashSuccess, "Success!")
	}
	http.Redirect(w, r, fmt.Sprintf("/category/%d/", post.CategoryID), http.StatusSeeOther)
}

func (h *Handler) TogglePostLike(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.NotFound(w, r)
		return
	}
	u := auth.UserFromContext(r.Context())

	st, err := h.store.TogglePostLike(r.Context(), id, u.ID)
	if errors.Is(err, store.ErrNotFound) {
		h.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.metrics.Like("post", st.Liked)
	h.likeResponse(w, r, st)
}

// likeResponse answers asynchronous toggles with JSON and everything else
// with a redirect to the post the target belongs to.
func (h *Handler) likeResponse(w http.ResponseWriter, r *http.Request, st store.LikeState) {
	if isXHR(r) {
		writeJSON(w, http.StatusOK, st)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/post/%d/", st.PostID), http.StatusSeeOther)
}
