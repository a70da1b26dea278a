package handlers

import (
	"io/fs"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"discuss/web"
)

// Routes builds the application's router with its middleware chain.
func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.StrictSlash(true)
	r.Use(h.accessLog, h.loadUser)

	r.HandleFunc("/", h.Index).Methods(http.MethodGet)
	r.HandleFunc("/register/", h.Register).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/login/", h.Login).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/logout/", h.RequireAuth(h.Logout)).Methods(http.MethodGet, http.MethodPost)

	r.HandleFunc("/profile/edit/", h.RequireAuth(h.EditProfile)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/profile/{nickname}/", h.RequireAuth(h.Profile)).Methods(http.MethodGet)

	r.HandleFunc("/category/create/", h.RequireAuth(h.CreateCategory)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/category/{id:[0-9]+}/", h.CategoryDetail).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/category/{id:[0-9]+}/delete/", h.RequireAuth(h.DeleteCategory)).Methods(http.MethodPost)

	r.HandleFunc("/post/{id:[0-9]+}/", h.PostDetail).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/post/{id:[0-9]+}/delete/", h.RequireAuth(h.DeletePost)).Methods(http.MethodPost)
	r.HandleFunc("/post/{id:[0-9]+}/like/", h.RequireAuth(h.TogglePostLike)).Methods(http.MethodPost)

	r.HandleFunc("/comment/{id:[0-9]+}/delete/", h.RequireAuth(h.DeleteComment)).Methods(http.MethodPost)
	r.HandleFunc("/comment/{id:[0-9]+}/like/", h.RequireAuth(h.ToggleCommentLike)).Methods(http.MethodPost)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/", h.RequireStaff(h.AdminIndex)).Methods(http.MethodGet)
	admin.HandleFunc("/users/", h.RequireStaff(h.AdminUsers)).Methods(http.MethodGet)
	admin.HandleFunc("/categories/", h.RequireStaff(h.AdminCategories)).Methods(http.MethodGet)
	admin.HandleFunc("/posts/", h.RequireStaff(h.AdminPosts)).Methods(http.MethodGet)
	admin.HandleFunc("/comments/", h.RequireStaff(h.AdminComments)).Methods(http.MethodGet)

	r.HandleFunc("/toggle-theme", h.ToggleTheme).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/healthz", h.Healthz).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)

	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", h.staticFiles()))
	if h.media != nil {
		r.PathPrefix("/media/").Handler(http.StripPrefix("/media/", http.FileServer(filesOnly{http.Dir(h.media.Root())})))
	}

	r.NotFoundHandler = h.accessLog(h.loadUser(http.HandlerFunc(h.NotFound)))

	return h.WithRecover(r)
}

func (h *Handler) staticFiles() http.Handler {
	if h.staticDir != "" {
		return http.FileServer(http.Dir(h.staticDir))
	}
	sub, err := fs.Sub(web.Static, "static")
	if err != nil {
		// the embedded tree always has a static directory
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

// filesOnly hides directories so uploaded file names cannot be listed.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if st.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
