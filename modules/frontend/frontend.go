// Package frontend serves the embedded single-page player UI. It shares no
// state with the resolver or proxy; it is just a sibling route.
package frontend

import (
	_ "embed"
	"log/slog"
	"net/http"

	"github.com/grafana/dskit/services"
)

//go:embed index.html
var indexHTML []byte

var module = "frontend"

type Frontend struct {
	services.Service
	logger *slog.Logger
}

// New creates and returns a new Frontend.
func New(logger slog.Logger) (*Frontend, error) {
	f := &Frontend{
		logger: logger.With("module", module),
	}

	f.Service = services.NewIdleService(nil, nil)

	return f, nil
}

// Handler returns the HTTP handler for the index page.
func (f *Frontend) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=300")
		if req.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(indexHTML)
	})
}
