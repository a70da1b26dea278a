package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"discuss/internal/models"
	"discuss/internal/store"
)

type dateBucket struct {
	Value string
	Label string
}

var dateBuckets = []dateBucket{
	{store.SinceToday, "Today"},
	{store.SinceWeek, "Past 7 days"},
	{store.SinceMonth, "This month"},
	{store.SinceYear, "This year"},
}

// adminFilterView is what the filter bar of an admin list renders.
type adminFilterView struct {
	Query           string
	Since           string
	Dated           bool
	Buckets         []dateBucket
	CategoryID      uint
	CategoryOptions []models.Category
}

func (h *Handler) adminFilter(r *http.Request) store.AdminFilter {
	q := r.URL.Query()
	f := store.AdminFilter{
		Query: strings.TrimSpace(q.Get("q")),
		Now:   h.now(),
	}
	if _, ok := store.SinceBound(q.Get("since"), f.Now); ok {
		f.Since = q.Get("since")
	}
	if id, err := strconv.ParseUint(q.Get("category"), 10, 32); err == nil {
		f.CategoryID = uint(id)
	}
	return f
}

func filterView(f store.AdminFilter, dated bool) adminFilterView {
	return adminFilterView{
		Query:      f.Query,
		Since:      f.Since,
		Dated:      dated,
		Buckets:    dateBuckets,
		CategoryID: f.CategoryID,
	}
}

func (h *Handler) AdminIndex(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Counts(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "admin_index", map[string]any{
		"Title":  "Administration",
		"Counts": counts,
	})
}

func (h *Handler) AdminUsers(w http.ResponseWriter, r *http.Request) {
	f := h.adminFilter(r)
	users, err := h.store.AdminUsers(r.Context(), f)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "admin_users", map[string]any{
		"Title":  "Users",
		"Users":  users,
		"Filter": filterView(f, false),
	})
}

func (h *Handler) AdminCategories(w http.ResponseWriter, r *http.Request) {
	f := h.adminFilter(r)
	cats, err := h.store.AdminCategories(r.Context(), f)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "admin_categories", map[string]any{
		"Title":      "Categories",
		"Categories": cats,
		"Filter":     filterView(f, true),
	})
}

func (h *Handler) AdminPosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f := h.adminFilter(r)
	posts, err := h.store.AdminPosts(ctx, f)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	cats, err := h.store.Categories(ctx)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	view := filterView(f, true)
	view.CategoryOptions = cats
	h.render(w, r, http.StatusOK, "admin_posts", map[string]any{
		"Title":  "Posts",
		"Posts":  posts,
		"Filter": view,
	})
}

func (h *Handler) AdminComments(w http.ResponseWriter, r *http.Request) {
	f := h.adminFilter(r)
	comments, err := h.store.AdminComments(r.Context(), f)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "admin_comments", map[string]any{
		"Title":    "Comments",
		"Comments": comments,
		"Filter":   filterView(f, true),
	})
}
