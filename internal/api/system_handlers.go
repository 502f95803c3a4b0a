package api

import (
	"bytes"
	"fmt"
	"html"
	"net/http"

	apidocs "notionsearch/docs"
)

func (s *Server) handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(apidocs.OpenAPISpec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"notion_configured": s.searcher.Available(),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if len(s.index) == 0 {
		s.writeErr(r.Context(), w, http.StatusNotFound, "not found", "index")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(s.index)
}

// injectFrontendDSN places a sentry-dsn meta tag before </head>.
func injectFrontendDSN(index []byte, dsn string) []byte {
	if dsn == "" {
		return index
	}
	meta := fmt.Sprintf("<meta name=\"sentry-dsn\" content=\"%s\">\n</head>", html.EscapeString(dsn))
	return bytes.Replace(index, []byte("</head>"), []byte(meta), 1)
}
