// Package auth serves the sign-in flows of the portal: login, registration,
// password recovery, provider sign-in, login codes and email verification.
package auth

import (
	"context"

	"github.com/odyssey-erp/portal/internal/allauth"
)

// API is the part of the allauth client the auth pages use.
type API interface {
	GetAuthStatus(ctx context.Context) (*allauth.AuthResult, error)
	Login(ctx context.Context, in allauth.LoginInput) (*allauth.AuthResult, error)
	Signup(ctx context.Context, in allauth.SignupInput) (*allauth.AuthResult, error)
	Logout(ctx context.Context) error
	RequestPassword(ctx context.Context, email string) (int, error)
	GetPasswordResetInfo(ctx context.Context, key string) (*allauth.PasswordResetInfo, error)
	ResetPassword(ctx context.Context, in allauth.ResetPasswordInput) (*allauth.AuthResult, error)
	GetEmailVerificationInfo(ctx context.Context, key string) (*allauth.EmailVerificationInfo, error)
	VerifyEmail(ctx context.Context, key string) (*allauth.AuthResult, error)
	ConfirmLoginCode(ctx context.Context, code string) (*allauth.AuthResult, error)
	ProviderSignup(ctx context.Context, email string) (*allauth.AuthResult, error)
	ProviderRedirectForm(in allauth.ProviderRedirectInput) (allauth.RedirectForm, error)
}

// ConfigSource returns the cached backend configuration.
type ConfigSource interface {
	Get(ctx context.Context) (*allauth.Config, error)
}

// Store is the process-wide session store.
type Store interface {
	User() (allauth.User, bool)
	Login(allauth.User)
	Logout()
}
