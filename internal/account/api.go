// Package account serves the signed-in part of the portal: the dashboard,
// account settings, reauthentication and the JSON session read.
package account

import (
	"context"

	"github.com/odyssey-erp/portal/internal/allauth"
)

// API is the part of the allauth client the account pages use.
type API interface {
	GetAuthStatus(ctx context.Context) (*allauth.AuthResult, error)
	Reauthenticate(ctx context.Context, password string) (*allauth.AuthResult, error)
	ListEmailAddresses(ctx context.Context) ([]allauth.EmailAddress, error)
	AddEmailAddress(ctx context.Context, email string) ([]allauth.EmailAddress, error)
	RequestEmailVerification(ctx context.Context, email string) (int, error)
	ChangePrimaryEmailAddress(ctx context.Context, email string) ([]allauth.EmailAddress, error)
	RemoveEmailAddress(ctx context.Context, email string) ([]allauth.EmailAddress, error)
	ChangePassword(ctx context.Context, in allauth.ChangePasswordInput) error
	ListProviderAccounts(ctx context.Context) ([]allauth.ProviderAccount, error)
	DisconnectProviderAccount(ctx context.Context, provider, account string) ([]allauth.ProviderAccount, error)
	ListSessions(ctx context.Context) ([]allauth.UserSession, error)
	EndSessions(ctx context.Context, ids []int64) ([]allauth.UserSession, error)
}

// ConfigSource returns the cached backend configuration.
type ConfigSource interface {
	Get(ctx context.Context) (*allauth.Config, error)
}

// Store is the process-wide session store.
type Store interface {
	User() (allauth.User, bool)
	Authenticated() bool
	Login(allauth.User)
	Logout()
}
