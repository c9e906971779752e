// Package widget serves the browser chat widget.
package widget

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/mira-chat/internal/model/persona"
)

//go:embed templates/*.html
var templates embed.FS

var page = template.Must(template.ParseFS(templates, "templates/widget.html"))

// Handler renders the widget page for one persona.
type Handler struct {
	persona persona.Persona
	apiBase string
}

// New creates a widget handler talking to the API mounted at apiBase.
func New(p persona.Persona, apiBase string) *Handler {
	return &Handler{persona: p, apiBase: apiBase}
}

// RegisterRoutes mounts the page at /.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handlePage)
}

type pageData struct {
	Persona persona.Persona
	APIBase string
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := page.Execute(&buf, pageData{Persona: h.persona, APIBase: h.apiBase}); err != nil {
		log.Error().Err(err).Msg("[widget] render failed")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}
