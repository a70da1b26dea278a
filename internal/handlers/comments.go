package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"discuss/internal/auth"
	"discuss/internal/store"
)

func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.NotFound(w, r)
		return
	}
	u := auth.UserFromContext(r.Context())

	c, err := h.store.DeleteComment(r.Context(), id, u.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.NotFound(w, r)
		return
	case errors.Is(err, store.ErrNotOwner):
		h.flash(w, r, flashError, "You can only delete your own comments.")
	case err != nil:
		h.serverError(w, r, err)
		return
	default:
		h.metrics.Deleted.WithLabelValues("comment").Inc()
		h.flash(w, r, flashSuccess, "Success!")
	}
	http.Redirect(w, r, fmt.Sprintf("/post/%d/", c.PostID), http.StatusSeeOther)
}

func (h *Handler) ToggleCommentLike(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.NotFound(w, r)
		return
	}
	u := auth.UserFromContext(r.Context())

	st, err := h.store.ToggleCommentLike(r.Context(), id, u.ID)
	if errors.Is(err, store.ErrNotFound) {
		h.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.metrics.Like("comment", st.Liked)
	h.likeResponse(w, r, st)
}
