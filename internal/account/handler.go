package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/portal/internal/allauth"
	"github.com/odyssey-erp/portal/internal/forms"
	"github.com/odyssey-erp/portal/internal/platform/httpx"
	"github.com/odyssey-erp/portal/internal/shared"
	"github.com/odyssey-erp/portal/internal/view"
)

// Paths the handler serves and redirects to.
const (
	DashboardPath      = "/dashboard"
	SettingsPath       = "/dashboard/settings"
	ReauthenticatePath = "/dashboard/reauthenticate"
	AuthPath           = "/auth"
)

const toastFailed = "Something went wrong!"

// Handler wires the dashboard and account settings endpoints.
type Handler struct {
	logger    *slog.Logger
	api       API
	config    ConfigSource
	store     Store
	pages     *view.Renderer
	validator *forms.Validator
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, api API, config ConfigSource, store Store, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		logger:    logger,
		api:       api,
		config:    config,
		store:     store,
		pages:     view.NewRenderer(logger, templates, csrf, store),
		validator: forms.NewValidator(),
	}
}

// MountRoutes registers the dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route(DashboardPath, func(r chi.Router) {
		r.Get("/", h.showDashboard)
		r.Get("/settings", h.showSettings)
		r.Post("/settings/email", h.handleAddEmail)
		r.Post("/settings/email/verify", h.handleRequestVerification)
		r.Post("/settings/email/primary", h.handlePrimaryEmail)
		r.Post("/settings/email/remove", h.handleRemoveEmail)
		r.Post("/settings/password", h.handleChangePassword)
		r.Post("/settings/providers/disconnect", h.handleDisconnectProvider)
		r.Post("/settings/sessions/end", h.handleEndSessions)
		r.Get("/reauthenticate", h.showReauthenticate)
		r.Post("/reauthenticate", h.handleReauthenticate)
	})
}

// MountAPI registers the JSON endpoints.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/session", h.sessionJSON)
	r.Get("/config", h.configJSON)
}

func (h *Handler) showDashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/dashboard.html", "Dashboard Home", nil)
}

type settingsData struct {
	Status          *allauth.AuthResult
	StatusJSON      string
	Emails          []allauth.EmailAddress
	Providers       []allauth.ProviderAccount
	Available       []allauth.Provider
	Sessions        []allauth.UserSession
	HasPassword     bool
	Errors          forms.Errors
	SectionFailures []string
}

func (h *Handler) showSettings(w http.ResponseWriter, r *http.Request) {
	data, err := h.loadSettings(r.Context())
	if err != nil {
		h.logger.Error("load settings", slog.Any("error", err))
		h.render(w, r, http.StatusBadGateway, "pages/error.html", "Dashboard Settings", errorData{Message: allauth.ErrorMessage(err)})
		return
	}
	if !data.Status.Authenticated() {
		h.store.Logout()
		view.Toast(r, shared.ToastError, "Your session has ended", "Please log in again.")
		http.Redirect(w, r, AuthPath, http.StatusSeeOther)
		return
	}
	h.store.Login(*data.Status.User)
	h.render(w, r, http.StatusOK, "pages/settings.html", "Dashboard Settings", data)
}

// loadSettings fetches the settings sections concurrently. Only a failed
// status read fails the page; other sections degrade to a notice.
func (h *Handler) loadSettings(ctx context.Context) (*settingsData, error) {
	data := &settingsData{}
	var emailsErr, providersErr, sessionsErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		status, err := h.api.GetAuthStatus(gctx)
		if err != nil {
			return err
		}
		data.Status = status
		return nil
	})
	g.Go(func() error {
		data.Emails, emailsErr = h.api.ListEmailAddresses(gctx)
		return nil
	})
	g.Go(func() error {
		data.Providers, providersErr = h.api.ListProviderAccounts(gctx)
		return nil
	})
	g.Go(func() error {
		data.Sessions, sessionsErr = h.api.ListSessions(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if data.Status.Authenticated() {
		sections := []struct {
			name string
			err  error
		}{
			{"email addresses", emailsErr},
			{"connected accounts", providersErr},
			{"sessions", sessionsErr},
		}
		for _, s := range sections {
			if s.err != nil {
				h.logger.Warn("load settings section", slog.String("section", s.name), slog.Any("error", s.err))
				data.SectionFailures = append(data.SectionFailures, fmt.Sprintf("Could not load %s: %s", s.name, allauth.ErrorMessage(s.err)))
			}
		}
		if u := data.Status.User; u.HasUsablePassword == nil || *u.HasUsablePassword {
			data.HasPassword = true
		}
	}
	if cfg, err := h.config.Get(ctx); err == nil {
		data.Available = cfg.RedirectProviders()
	}
	if raw, err := json.MarshalIndent(data.Status, "", "  "); err == nil {
		data.StatusJSON = string(raw)
	}
	return data, nil
}

func (h *Handler) handleAddEmail(w http.ResponseWriter, r *http.Request) {
	h.emailAction(w, r, "Email added", "A verification email is on its way.", h.api.AddEmailAddress)
}

func (h *Handler) handlePrimaryEmail(w http.ResponseWriter, r *http.Request) {
	h.emailAction(w, r, "Primary email changed", "", h.api.ChangePrimaryEmailAddress)
}

func (h *Handler) handleRemoveEmail(w http.ResponseWriter, r *http.Request) {
	h.emailAction(w, r, "Email removed", "", h.api.RemoveEmailAddress)
}

func (h *Handler) handleRequestVerification(w http.ResponseWriter, r *http.Request) {
	h.emailAction(w, r, "Verification sent", "Check your inbox.", func(ctx context.Context, email string) ([]allauth.EmailAddress, error) {
		_, err := h.api.RequestEmailVerification(ctx, email)
		return nil, err
	})
}

func (h *Handler) emailAction(w http.ResponseWriter, r *http.Request, title, message string, call func(context.Context, string) ([]allauth.EmailAddress, error)) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := forms.EmailAddress{Email: forms.Value(r, "email")}
	if errs := h.validator.Validate(form); len(errs) > 0 {
		view.Toast(r, shared.ToastError, toastFailed, errs["email"])
		http.Redirect(w, r, SettingsPath, http.StatusSeeOther)
		return
	}
	if _, err := call(r.Context(), form.Email); err != nil {
		h.actionFailed(w, r, "email action", err)
		return
	}
	view.Toast(r, shared.ToastSuccess, title, message)
	http.Redirect(w, r, SettingsPath, http.StatusSeeOther)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := forms.ChangePassword{
		CurrentPassword: forms.Secret(r, "currentPassword"),
		NewPassword:     forms.Secret(r, "newPassword"),
		ConfirmPassword: forms.Secret(r, "confirmPassword"),
	}
	errs := h.validator.Validate(form)
	if u, ok := h.store.User(); ok && (u.HasUsablePassword == nil || *u.HasUsablePassword) && form.CurrentPassword == "" {
		errs["currentPassword"] = "Current password is required"
	}
	if len(errs) > 0 {
		for _, field := range []string{"currentPassword", "newPassword", "confirmPassword"} {
			if msg, ok := errs[field]; ok {
				view.Toast(r, shared.ToastError, toastFailed, msg)
				break
			}
		}
		http.Redirect(w, r, SettingsPath, http.StatusSeeOther)
		return
	}
	err := h.api.ChangePassword(r.Context(), allauth.ChangePasswordInput{
		CurrentPassword: form.CurrentPassword,
		NewPassword:     form.NewPassword,
	})
	if err != nil {
		h.actionFailed(w, r, "change password", err)
		return
	}
	view.Toast(r, shared.ToastSuccess, "Password changed", "")
	http.Redirect(w, r, SettingsPath, http.StatusSeeOther)
}

func (h *Handler) handleDisconnectProvider(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	provider, account := forms.Value(r, "provider"), forms.Value(r, "account")
	if provider == "" || account == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if _, err := h.api.DisconnectProviderAccount(r.Context(), provider, account); err != nil {
		h.actionFailed(w, r, "disconnect provider", err)
		return
	}
	view.Toast(r, shared.ToastSuccess, "Account disconnected", "")
	http.Redirect(w, r, SettingsPath, http.StatusSeeOther)
}

func (h *Handler) handleEndSessions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	var ids []int64
	for _, raw := range r.PostForm["session"] {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		view.Toast(r, shared.ToastError, toastFailed, "Select at least one session.")
		http.Redirect(w, r, SettingsPath, http.StatusSeeOther)
		return
	}
	if _, err := h.api.EndSessions(r.Context(), ids); err != nil {
		h.actionFailed(w, r, "end sessions", err)
		return
	}
	view.Toast(r, shared.ToastSuccess, "Sessions ended", "")
	http.Redirect(w, r, SettingsPath, http.StatusSeeOther)
}

type reauthData struct {
	Next   string
	Errors forms.Errors
}

func (h *Handler) showReauthenticate(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/reauthenticate.html", "Confirm access", reauthData{Next: safeNext(r.URL.Query().Get("next"))})
}

func (h *Handler) handleReauthenticate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	next := safeNext(r.PostFormValue("next"))
	form := forms.Reauthenticate{Password: forms.Secret(r, "password")}
	errs := h.validator.Validate(form)
	if len(errs) == 0 {
		res, err := h.api.Reauthenticate(r.Context(), form.Password)
		switch {
		case err != nil:
			h.logger.Warn("reauthenticate failed", slog.Any("error", err))
			var apiErr *allauth.Error
			if errors.As(err, &apiErr) {
				for field, msg := range apiErr.FieldMessages() {
					errs[field] = msg
				}
			}
			if len(errs) == 0 {
				errs["general"] = allauth.ErrorMessage(err)
			}
		case res.Authenticated():
			h.store.Login(*res.User)
			view.Toast(r, shared.ToastSuccess, "Access confirmed", "You can retry your change now.")
			http.Redirect(w, r, next, http.StatusSeeOther)
			return
		default:
			h.store.Logout()
			view.Toast(r, shared.ToastError, "Your session has ended", "Please log in again.")
			http.Redirect(w, r, AuthPath, http.StatusSeeOther)
			return
		}
	}
	h.render(w, r, http.StatusBadRequest, "pages/reauthenticate.html", "Confirm access", reauthData{Next: next, Errors: errs})
}

type sessionView struct {
	Authenticated bool          `json:"authenticated"`
	User          *allauth.User `json:"user"`
}

func (h *Handler) sessionJSON(w http.ResponseWriter, r *http.Request) {
	var out sessionView
	if u, ok := h.store.User(); ok {
		out = sessionView{Authenticated: true, User: &u}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) configJSON(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.config.Get(r.Context())
	if err != nil {
		h.logger.Warn("load allauth config", slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUpstream, allauth.ErrorMessage(err)))
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}

// actionFailed routes a failed account change. A 401 carrying the
// reauthenticate flow asks for the password again; any other 401 means the
// backend session is gone.
func (h *Handler) actionFailed(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Warn(op+" failed", slog.Any("error", err))
	var apiErr *allauth.Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		for _, f := range apiErr.Flows {
			if f.ID == allauth.FlowReauthenticate || f.ID == allauth.FlowMFAReauthenticate {
				http.Redirect(w, r, ReauthenticatePath+"?next="+SettingsPath, http.StatusSeeOther)
				return
			}
		}
		h.store.Logout()
		view.Toast(r, shared.ToastError, "Your session has ended", "Please log in again.")
		http.Redirect(w, r, AuthPath, http.StatusSeeOther)
		return
	}
	view.Toast(r, shared.ToastError, toastFailed, allauth.ErrorMessage(err))
	http.Redirect(w, r, SettingsPath, http.StatusSeeOther)
}

type errorData struct {
	Message string
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	h.pages.Render(w, r, status, page, title, data)
}

// safeNext keeps redirects inside the dashboard.
func safeNext(next string) string {
	if next == DashboardPath || strings.HasPrefix(next, DashboardPath+"/") {
		if !strings.HasPrefix(next, ReauthenticatePath) {
			return next
		}
	}
	return SettingsPath
}
