package httpapp

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/index.html static/app.js static/style.css static/favicon.svg
var staticFS embed.FS

type assets struct {
	index []byte
	files http.Handler
}

func loadAssets() (*assets, error) {
	index, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		return nil, err
	}
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}
	return &assets{
		index: index,
		files: http.StripPrefix("/static/", http.FileServer(http.FS(sub))),
	}, nil
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.assets.index)
}

func (s *Server) serveFavicon(w http.ResponseWriter, r *http.Request) {
	r.URL.Path = "/static/favicon.svg"
	s.assets.files.ServeHTTP(w, r)
}
