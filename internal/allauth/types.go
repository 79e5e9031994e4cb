package allauth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Identifier is a value the API may send as either a JSON string or number.
type Identifier string

// UnmarshalJSON accepts strings, numbers and null.
func (id *Identifier) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = Identifier(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier: %w", err)
	}
	*id = Identifier(n.String())
	return nil
}

// String returns the identifier text.
func (id Identifier) String() string { return string(id) }

// User is the identity record returned by the API.
type User struct {
	ID                Identifier `json:"id,omitempty"`
	Display           Identifier `json:"display,omitempty"`
	HasUsablePassword *bool      `json:"has_usable_password,omitempty"`
	Email             string     `json:"email,omitempty"`
	Username          string     `json:"username,omitempty"`
}

// Clone returns a copy that shares no memory with u.
func (u User) Clone() User {
	if u.HasUsablePassword != nil {
		v := *u.HasUsablePassword
		u.HasUsablePassword = &v
	}
	return u
}

// Name picks the best label to show for the user.
func (u User) Name() string {
	switch {
	case u.Display != "":
		return u.Display.String()
	case u.Username != "":
		return u.Username
	case u.Email != "":
		return u.Email
	}
	return u.ID.String()
}

// AuthMethod records one way the current session was (re)authenticated.
type AuthMethod struct {
	Method          string  `json:"method"`
	At              float64 `json:"at"`
	Email           string  `json:"email,omitempty"`
	Username        string  `json:"username,omitempty"`
	Reauthenticated bool    `json:"reauthenticated,omitempty"`
	Provider        string  `json:"provider,omitempty"`
	UID             string  `json:"uid,omitempty"`
	Type            string  `json:"type,omitempty"`
}

// Flow is an authentication step the backend offers or expects next.
type Flow struct {
	ID        string    `json:"id"`
	Provider  *Provider `json:"provider,omitempty"`
	Providers []string  `json:"providers,omitempty"`
	IsPending bool      `json:"is_pending,omitempty"`
	Types     []string  `json:"types,omitempty"`
}

// Flow identifiers the UI reacts to.
const (
	FlowLogin             = "login"
	FlowSignup            = "signup"
	FlowVerifyEmail       = "verify_email"
	FlowLoginByCode       = "login_by_code"
	FlowProviderRedirect  = "provider_redirect"
	FlowProviderSignup    = "provider_signup"
	FlowProviderToken     = "provider_token"
	FlowReauthenticate    = "reauthenticate"
	FlowMFAAuthenticate   = "mfa_authenticate"
	FlowMFAReauthenticate = "mfa_reauthenticate"
)

// Meta is the metadata attached to authentication responses.
type Meta struct {
	SessionToken     string `json:"session_token,omitempty"`
	AccessToken      string `json:"access_token,omitempty"`
	IsAuthenticated  bool   `json:"is_authenticated"`
	IsAuthenticating bool   `json:"is_authenticating,omitempty"`
}

// Provider describes a configured third-party identity provider.
type Provider struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	ClientID string   `json:"client_id,omitempty"`
	Flows    []string `json:"flows,omitempty"`
}

// Supports reports whether the provider offers the given flow.
func (p Provider) Supports(flow string) bool {
	for _, f := range p.Flows {
		if f == flow {
			return true
		}
	}
	return false
}

// Config is the backend configuration exposed at /config.
type Config struct {
	Account struct {
		LoginMethods                   []string `json:"login_methods,omitempty"`
		IsOpenForSignup                bool     `json:"is_open_for_signup"`
		EmailVerificationByCodeEnabled bool     `json:"email_verification_by_code_enabled"`
		LoginByCodeEnabled             bool     `json:"login_by_code_enabled"`
	} `json:"account"`
	SocialAccount struct {
		Providers []Provider `json:"providers"`
	} `json:"socialaccount"`
	MFA struct {
		SupportedTypes []string `json:"supported_types"`
	} `json:"mfa"`
	UserSessions struct {
		TrackActivity bool `json:"track_activity"`
	} `json:"usersessions"`
}

// RedirectProviders lists providers usable through the browser redirect flow.
func (c *Config) RedirectProviders() []Provider {
	if c == nil {
		return nil
	}
	var out []Provider
	for _, p := range c.SocialAccount.Providers {
		if len(p.Flows) == 0 || p.Supports(FlowProviderRedirect) {
			out = append(out, p)
		}
	}
	return out
}

// EmailAddress is one address attached to the account.
type EmailAddress struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// ProviderAccount is a third-party account linked to the user.
type ProviderAccount struct {
	UID      string     `json:"uid"`
	Display  Identifier `json:"display"`
	Provider Provider   `json:"provider"`
}

// UserSession is one active session of the user.
type UserSession struct {
	ID         int64   `json:"id"`
	UserAgent  string  `json:"user_agent"`
	IP         string  `json:"ip"`
	CreatedAt  float64 `json:"created_at"`
	IsCurrent  bool    `json:"is_current"`
	LastSeenAt float64 `json:"last_seen_at,omitempty"`
}

// SessionIDString formats a session ID for form values.
func (s UserSession) SessionIDString() string {
	return strconv.FormatInt(s.ID, 10)
}

// EmailVerificationInfo describes a pending email verification key.
type EmailVerificationInfo struct {
	Email            string `json:"email"`
	User             *User  `json:"user"`
	IsAuthenticating bool   `json:"-"`
}

// PasswordResetInfo describes the user a reset key belongs to.
type PasswordResetInfo struct {
	User *User `json:"user"`
}

// LoginInput carries credentials for a password login.
type LoginInput struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// SignupInput carries the fields of a signup.
type SignupInput struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// ResetPasswordInput completes a password reset.
type ResetPasswordInput struct {
	Key      string `json:"key"`
	Password string `json:"password"`
}

// Provider processes.
const (
	ProcessLogin   = "login"
	ProcessConnect = "connect"
)

// ProviderToken holds tokens obtained from a provider out of band.
type ProviderToken struct {
	ClientID    string `json:"client_id"`
	IDToken     string `json:"id_token,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

// ProviderTokenInput authenticates with provider tokens.
type ProviderTokenInput struct {
	Provider string        `json:"provider"`
	Process  string        `json:"process"`
	Token    ProviderToken `json:"token"`
}

// ChangePasswordInput changes the password of the signed-in user.
type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password,omitempty"`
	NewPassword     string `json:"new_password"`
}

// ProviderRedirectInput describes the provider redirect the browser will follow.
type ProviderRedirectInput struct {
	Provider    string
	Process     string
	CallbackURL string
}

// FormField is a hidden input of a RedirectForm.
type FormField struct {
	Name  string
	Value string
}

// RedirectForm is a form the browser has to submit natively.
type RedirectForm struct {
	Action string
	Method string
	Fields []FormField
}

// Value returns the value of the named field.
func (f RedirectForm) Value(name string) (string, bool) {
	for _, field := range f.Fields {
		if field.Name == name {
			return field.Value, true
		}
	}
	return "", false
}
