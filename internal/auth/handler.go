package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/portal/internal/allauth"
	"github.com/odyssey-erp/portal/internal/forms"
	"github.com/odyssey-erp/portal/internal/shared"
	"github.com/odyssey-erp/portal/internal/view"
)

// Toast titles and notices shown by the auth pages.
const (
	ToastWelcome    = "Welcome Back!"
	ToastRegistered = "Registration Successful!"
	ToastSubmitted  = "Successful Submission."
	ToastFailed     = "Something went wrong!"
	ResetNotice     = "You will be emailed a password reset link if your email is in our system."

	ProviderCancelled  = "Sign in with the provider was cancelled."
	ProviderDenied     = "The provider did not grant access."
	ProviderNoSession  = "The provider sign in did not reach this portal. The backend rejected the redirect or did not start a session for this browser. Sign in with your password instead."
	ProviderErrorTitle = "Provider sign in failed"
)

// Paths the handler redirects to.
const (
	AuthPath      = "/auth"
	DashboardPath = "/dashboard/settings"
	CallbackPath  = "/auth/callback"
	CodePath      = "/auth/code/confirm"
	SignupPath    = "/auth/provider/signup"
)

// Auth form names selected with ?form=.
const (
	FormLogin          = "login"
	FormRegister       = "register"
	FormForgotPassword = "forgot_password"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger      *slog.Logger
	api         API
	config      ConfigSource
	store       Store
	pages       *view.Renderer
	validator   *forms.Validator
	callbackURL string
}

// NewHandler constructs a Handler. frontendURL is the public origin of the
// portal; providers send the browser back to its callback path.
func NewHandler(logger *slog.Logger, api API, config ConfigSource, store Store, templates *view.Engine, csrf *shared.CSRFManager, frontendURL string) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		logger:      logger,
		api:         api,
		config:      config,
		store:       store,
		pages:       view.NewRenderer(logger, templates, csrf, store),
		validator:   forms.NewValidator(),
		callbackURL: strings.TrimRight(frontendURL, "/") + CallbackPath,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/auth", h.showAuth)
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/register", h.handleRegister)
	r.Post("/auth/password/forgot", h.handleForgotPassword)
	r.Get("/auth/code/confirm", h.showConfirmCode)
	r.Post("/auth/code/confirm", h.handleConfirmCode)
	r.Post("/auth/provider/redirect", h.handleProviderRedirect)
	r.Get("/auth/callback", h.handleCallback)
	r.Get("/auth/provider/signup", h.showProviderSignup)
	r.Post("/auth/provider/signup", h.handleProviderSignup)
	r.Get("/account/verify-email/{key}", h.showVerifyEmail)
	r.Post("/account/verify-email/{key}", h.handleVerifyEmail)
	r.Get("/account/password/reset/key/{key}", h.showResetPassword)
	r.Post("/account/password/reset/key/{key}", h.handleResetPassword)
	r.Post("/logout", h.handleLogout)
}

type authPageData struct {
	Form       string
	Login      forms.Login
	Register   forms.Register
	Forgot     forms.ForgotPassword
	Errors     forms.Errors
	Notice     string
	Providers  []allauth.Provider
	SignupOpen bool
}

func (h *Handler) showAuth(w http.ResponseWriter, r *http.Request) {
	form := r.URL.Query().Get("form")
	switch form {
	case FormRegister, FormForgotPassword:
	default:
		form = FormLogin
	}
	h.renderAuth(w, r, http.StatusOK, authPageData{Form: form})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := forms.Login{
		Username: forms.Value(r, "username"),
		Password: forms.Secret(r, "password"),
	}
	errs := h.validator.Validate(form)
	if len(errs) == 0 {
		res, err := h.api.Login(r.Context(), allauth.LoginInput{Username: form.Username, Password: form.Password})
		if err == nil && h.complete(w, r, res, ToastWelcome) {
			return
		}
		h.fail(r, "login", err, errs)
	}
	h.renderAuth(w, r, http.StatusBadRequest, authPageData{
		Form:   FormLogin,
		Login:  forms.Login{Username: form.Username},
		Errors: errs,
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := forms.Register{
		Email:           forms.Value(r, "email"),
		Username:        forms.Value(r, "username"),
		Password:        forms.Secret(r, "password"),
		ConfirmPassword: forms.Secret(r, "confirmPassword"),
	}
	errs := h.validator.Validate(form)
	if len(errs) == 0 {
		res, err := h.api.Signup(r.Context(), allauth.SignupInput{
			Email:    form.Email,
			Username: form.Username,
			Password: form.Password,
		})
		if err == nil && h.complete(w, r, res, ToastRegistered) {
			return
		}
		h.fail(r, "signup", err, errs)
	}
	h.renderAuth(w, r, http.StatusBadRequest, authPageData{
		Form:     FormRegister,
		Register: forms.Register{Email: form.Email, Username: form.Username},
		Errors:   errs,
	})
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := forms.ForgotPassword{Email: forms.Value(r, "email")}
	errs := h.validator.Validate(form)
	if len(errs) > 0 {
		h.renderAuth(w, r, http.StatusBadRequest, authPageData{Form: FormForgotPassword, Forgot: form, Errors: errs})
		return
	}
	if _, err := h.api.RequestPassword(r.Context(), form.Email); err != nil {
		h.fail(r, "request password", err, errs)
		h.renderAuth(w, r, http.StatusBadRequest, authPageData{Form: FormForgotPassword, Forgot: form, Errors: errs})
		return
	}
	view.Toast(r, shared.ToastSuccess, ToastSubmitted, "")
	h.renderAuth(w, r, http.StatusOK, authPageData{Form: FormForgotPassword, Notice: ResetNotice})
}

type codePageData struct {
	Errors forms.Errors
}

func (h *Handler) showConfirmCode(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/confirm_code.html", "Confirm login code", codePageData{})
}

func (h *Handler) handleConfirmCode(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := forms.LoginCode{Code: forms.Value(r, "code")}
	errs := h.validator.Validate(form)
	if len(errs) == 0 {
		res, err := h.api.ConfirmLoginCode(r.Context(), form.Code)
		if err == nil && h.complete(w, r, res, ToastWelcome) {
			return
		}
		h.fail(r, "confirm login code", err, errs)
	}
	h.render(w, r, http.StatusBadRequest, "pages/confirm_code.html", "Confirm login code", codePageData{Errors: errs})
}

type providerRedirectData struct {
	Provider string
	Form     allauth.RedirectForm
}

func (h *Handler) handleProviderRedirect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	provider := forms.Value(r, "provider")
	form, err := h.api.ProviderRedirectForm(allauth.ProviderRedirectInput{
		Provider:    provider,
		Process:     allauth.ProcessLogin,
		CallbackURL: h.callbackURL,
	})
	if err != nil {
		h.logger.Warn("provider redirect", slog.String("provider", provider), slog.Any("error", err))
		view.Toast(r, shared.ToastError, ToastFailed, allauth.ErrorMessage(err))
		http.Redirect(w, r, AuthPath, http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "pages/provider_redirect.html", "Redirecting", providerRedirectData{Provider: provider, Form: form})
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if code := r.URL.Query().Get("error"); code != "" {
		h.logger.Warn("provider callback error", slog.String("error", code))
		view.Toast(r, shared.ToastError, ProviderErrorTitle, callbackMessage(code))
		http.Redirect(w, r, AuthPath, http.StatusSeeOther)
		return
	}
	res, err := h.api.GetAuthStatus(r.Context())
	if err == nil && h.complete(w, r, res, ToastWelcome) {
		return
	}
	if err != nil {
		h.logger.Warn("provider callback status", slog.Any("error", err))
		view.Toast(r, shared.ToastError, ProviderErrorTitle, allauth.ErrorMessage(err))
	} else {
		h.logger.Warn("provider callback without session")
		view.Toast(r, shared.ToastError, ProviderErrorTitle, ProviderNoSession)
	}
	http.Redirect(w, r, AuthPath, http.StatusSeeOther)
}

// callbackMessage turns the error code allauth appends to the callback URL
// into text for the operator.
func callbackMessage(code string) string {
	switch code {
	case "cancelled":
		return ProviderCancelled
	case "denied", "access_denied":
		return ProviderDenied
	default:
		return "The provider returned an error (" + code + ")."
	}
}

type providerSignupData struct {
	Form   forms.ProviderSignup
	Errors forms.Errors
}

func (h *Handler) showProviderSignup(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/provider_signup.html", "Complete sign up", providerSignupData{})
}

func (h *Handler) handleProviderSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := forms.ProviderSignup{Email: forms.Value(r, "email")}
	errs := h.validator.Validate(form)
	if len(errs) == 0 {
		res, err := h.api.ProviderSignup(r.Context(), form.Email)
		if err == nil && h.complete(w, r, res, ToastRegistered) {
			return
		}
		h.fail(r, "provider signup", err, errs)
	}
	h.render(w, r, http.StatusBadRequest, "pages/provider_signup.html", "Complete sign up", providerSignupData{Form: form, Errors: errs})
}

type verifyEmailData struct {
	Key   string
	Info  *allauth.EmailVerificationInfo
	Error string
}

func (h *Handler) showVerifyEmail(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	info, err := h.api.GetEmailVerificationInfo(r.Context(), key)
	if err != nil {
		h.logger.Warn("email verification info", slog.Any("error", err))
		h.render(w, r, http.StatusBadRequest, "pages/verify_email.html", "Verify email", verifyEmailData{Key: key, Error: allauth.ErrorMessage(err)})
		return
	}
	h.render(w, r, http.StatusOK, "pages/verify_email.html", "Verify email", verifyEmailData{Key: key, Info: info})
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	res, err := h.api.VerifyEmail(r.Context(), key)
	if err != nil {
		h.logger.Warn("verify email", slog.Any("error", err))
		view.Toast(r, shared.ToastError, ToastFailed, allauth.ErrorMessage(err))
		http.Redirect(w, r, r.URL.Path, http.StatusSeeOther)
		return
	}
	if res.Authenticated() {
		h.store.Login(*res.User)
		view.Toast(r, shared.ToastSuccess, "Email verified", "")
		http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
		return
	}
	view.Toast(r, shared.ToastSuccess, "Email verified", "You can now log in.")
	http.Redirect(w, r, AuthPath+"?form="+FormLogin, http.StatusSeeOther)
}

type resetPasswordData struct {
	Key    string
	Info   *allauth.PasswordResetInfo
	Errors forms.Errors
	Error  string
}

func (h *Handler) showResetPassword(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	info, err := h.api.GetPasswordResetInfo(r.Context(), key)
	if err != nil {
		h.logger.Warn("password reset info", slog.Any("error", err))
		h.render(w, r, http.StatusBadRequest, "pages/reset_password.html", "Reset password", resetPasswordData{Key: key, Error: allauth.ErrorMessage(err)})
		return
	}
	h.render(w, r, http.StatusOK, "pages/reset_password.html", "Reset password", resetPasswordData{Key: key, Info: info})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := forms.ResetPassword{
		Key:             chi.URLParam(r, "key"),
		Password:        forms.Secret(r, "password"),
		ConfirmPassword: forms.Secret(r, "confirmPassword"),
	}
	errs := h.validator.Validate(form)
	if len(errs) == 0 {
		res, err := h.api.ResetPassword(r.Context(), allauth.ResetPasswordInput{Key: form.Key, Password: form.Password})
		if err == nil {
			if res.Authenticated() {
				h.store.Login(*res.User)
				view.Toast(r, shared.ToastSuccess, "Password reset", "")
				http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
				return
			}
			view.Toast(r, shared.ToastSuccess, "Password reset", "Log in with your new password.")
			http.Redirect(w, r, AuthPath+"?form="+FormLogin, http.StatusSeeOther)
			return
		}
		h.fail(r, "reset password", err, errs)
	}
	h.render(w, r, http.StatusBadRequest, "pages/reset_password.html", "Reset password", resetPasswordData{Key: form.Key, Errors: errs})
}

// handleLogout clears the local session whatever the backend answers. The
// backend reports a successful logout as 401, and a failed round trip must
// not leave the portal signed in.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.api.Logout(r.Context()); err != nil {
		h.logger.Warn("logout request failed", slog.Any("error", err))
	}
	h.store.Logout()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// complete applies an authentication result: it signs the user in or routes
// to the step the backend waits on. It reports false when res offers neither.
func (h *Handler) complete(w http.ResponseWriter, r *http.Request, res *allauth.AuthResult, title string) bool {
	if res.Authenticated() {
		h.store.Login(*res.User)
		view.Toast(r, shared.ToastSuccess, title, "")
		http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
		return true
	}
	flow, ok := res.PendingFlow()
	if !ok {
		return false
	}
	switch flow.ID {
	case allauth.FlowVerifyEmail:
		if title != ToastRegistered {
			title = "Verify your email address"
		}
		view.Toast(r, shared.ToastSuccess, title, "Check your email to verify your address.")
		http.Redirect(w, r, AuthPath+"?form="+FormLogin, http.StatusSeeOther)
	case allauth.FlowLoginByCode:
		http.Redirect(w, r, CodePath, http.StatusSeeOther)
	case allauth.FlowProviderSignup:
		http.Redirect(w, r, SignupPath, http.StatusSeeOther)
	default:
		h.logger.Warn("unsupported pending flow", slog.String("flow", flow.ID))
		return false
	}
	return true
}

// fail records a failed call: field messages from the backend go next to
// their inputs and a generic toast is queued.
func (h *Handler) fail(r *http.Request, op string, err error, errs forms.Errors) {
	if err == nil {
		errs["general"] = "This sign-in step is not supported."
		view.Toast(r, shared.ToastError, ToastFailed, "")
		return
	}
	h.logger.Warn(op+" failed", slog.Any("error", err))
	var apiErr *allauth.Error
	if errors.As(err, &apiErr) {
		for field, msg := range apiErr.FieldMessages() {
			errs[field] = msg
		}
	}
	if len(errs) == 0 {
		errs["general"] = allauth.ErrorMessage(err)
	}
	view.Toast(r, shared.ToastError, ToastFailed, "")
}

func (h *Handler) renderAuth(w http.ResponseWriter, r *http.Request, status int, data authPageData) {
	data.SignupOpen = true
	cfg, err := h.config.Get(r.Context())
	if err != nil {
		h.logger.Warn("load allauth config", slog.Any("error", err))
	} else {
		data.Providers = cfg.RedirectProviders()
		data.SignupOpen = cfg.Account.IsOpenForSignup
	}
	title := "Login"
	switch data.Form {
	case FormRegister:
		title = "Register"
	case FormForgotPassword:
		title = "Reset Password"
	}
	h.render(w, r, status, "pages/auth.html", title, data)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	h.pages.Render(w, r, status, page, title, data)
}
