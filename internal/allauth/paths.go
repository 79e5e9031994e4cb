package allauth

// ClientKind selects the allauth client context the API root is built for.
type ClientKind string

const (
	ClientBrowser ClientKind = "browser"
	ClientApp     ClientKind = "app"
)

// Path suffixes relative to /_allauth/{client}/v1.
const (
	ConfigPath            = "/config"
	SessionPath           = "/auth/session"
	LoginPath             = "/auth/login"
	SignupPath            = "/auth/signup"
	EmailVerificationPath = "/auth/email/verify"
	ReauthenticatePath    = "/auth/reauthenticate"
	RequestPasswordPath   = "/auth/password/request"
	ResetPasswordPath     = "/auth/password/request"
	ProviderRedirectPath  = "/auth/provider/redirect"
	ProviderTokenPath     = "/auth/provider/token"
	ProviderSignupPath    = "/auth/provider/signup"
	ConfirmLoginCodePath  = "/auth/code/confirm"
	EmailAddressesPath    = "/account/email"
	ChangePasswordPath    = "/account/password/change"
	ProviderAccountsPath  = "/account/providers"
	SessionsPath          = "/auth/sessions"
)

// Cookie and header names used for Django CSRF protection.
const (
	CSRFCookieName = "csrftoken"
	CSRFHeaderName = "X-CSRFToken"
	CSRFFormField  = "csrfmiddlewaretoken"
)

// Key headers for the GET variants of the verification and reset endpoints.
const (
	EmailVerificationKeyHeader = "X-Email-Verification-Key"
	PasswordResetKeyHeader     = "X-Password-Reset-Key"
)

func apiRoot(kind ClientKind) string {
	return "/_allauth/" + string(kind) + "/v1"
}
