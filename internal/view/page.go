package view

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/portal/internal/allauth"
	"github.com/odyssey-erp/portal/internal/shared"
)

// UserSource reports the signed-in user shown in the header.
type UserSource interface {
	User() (allauth.User, bool)
}

// Renderer renders pages with the values every page needs: the UI CSRF
// token, the pending toasts of the UI session and the signed-in user.
type Renderer struct {
	logger    *slog.Logger
	templates *Engine
	csrf      *shared.CSRFManager
	users     UserSource
}

// NewRenderer builds a Renderer. users may be nil for pages without a header user.
func NewRenderer(logger *slog.Logger, templates *Engine, csrf *shared.CSRFManager, users UserSource) *Renderer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Renderer{logger: logger, templates: templates, csrf: csrf, users: users}
}

// Data collects the template data for r. Toasts are popped from the session,
// so they show once.
func (p *Renderer) Data(r *http.Request, title string, data any) TemplateData {
	sess := shared.SessionFromContext(r.Context())
	out := TemplateData{Title: title, CurrentPath: r.URL.Path, Data: data}
	if p.csrf != nil {
		out.CSRFToken, _ = p.csrf.EnsureToken(r.Context(), sess)
	}
	if sess != nil {
		out.Toasts = sess.PopToasts()
	}
	if p.users != nil {
		if u, ok := p.users.User(); ok {
			out.User = &u
		}
	}
	return out
}

// Render writes page with status. A template failure answers 500.
func (p *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	if err := p.templates.Render(w, status, page, p.Data(r, title, data)); err != nil {
		p.logger.Error("render "+page, slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// Toast queues a toast on the UI session of r, if there is one.
func Toast(r *http.Request, kind, title, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddToast(shared.Toast{Kind: kind, Title: title, Message: message})
	}
}
