package allauth

import (
	"context"
	"errors"
	"net/http"
)

// ErrProviderRequired is returned when a provider redirect names no provider.
var ErrProviderRequired = errors.New("allauth: provider required")

// ProviderRedirectForm builds the form that starts a provider redirect flow.
//
// No request is made: the backend answers the POST with a redirect to the
// provider, which only works as a real browser navigation. The caller renders
// the returned form and lets the browser submit it. The CSRF token is read
// from the jar at build time and travels as a hidden field.
func (c *Client) ProviderRedirectForm(in ProviderRedirectInput) (RedirectForm, error) {
	if in.Provider == "" {
		return RedirectForm{}, ErrProviderRequired
	}
	process := in.Process
	if process == "" {
		process = ProcessLogin
	}
	token, _ := c.CSRFToken()
	return RedirectForm{
		Action: c.URL(ProviderRedirectPath),
		Method: http.MethodPost,
		Fields: []FormField{
			{Name: "provider", Value: in.Provider},
			{Name: "process", Value: process},
			{Name: "callback_url", Value: in.CallbackURL},
			{Name: CSRFFormField, Value: token},
		},
	}, nil
}

// ProviderToken authenticates with tokens obtained from the provider directly.
func (c *Client) ProviderToken(ctx context.Context, in ProviderTokenInput) (*AuthResult, error) {
	const op = "provider token"
	if in.Process == "" {
		in.Process = ProcessLogin
	}
	resp, err := c.do(ctx, call{op: op, method: http.MethodPost, path: ProviderTokenPath, body: in, accept: authStatuses})
	if err != nil {
		return nil, err
	}
	return decodeAuth(op, resp)
}

// ProviderSignup completes a provider signup that lacked information.
func (c *Client) ProviderSignup(ctx context.Context, email string) (*AuthResult, error) {
	const op = "provider signup"
	body := map[string]string{"email": email}
	resp, err := c.do(ctx, call{op: op, method: http.MethodPost, path: ProviderSignupPath, body: body, accept: authStatuses})
	if err != nil {
		return nil, err
	}
	return decodeAuth(op, resp)
}

// ListProviderAccounts lists the provider accounts linked to the user.
func (c *Client) ListProviderAccounts(ctx context.Context) ([]ProviderAccount, error) {
	const op = "list provider accounts"
	resp, err := c.do(ctx, call{op: op, method: http.MethodGet, path: ProviderAccountsPath})
	if err != nil {
		return nil, err
	}
	var out []ProviderAccount
	if err := decode(op, resp, resp.Data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DisconnectProviderAccount unlinks a provider account and returns the rest.
func (c *Client) DisconnectProviderAccount(ctx context.Context, provider, account string) ([]ProviderAccount, error) {
	const op = "disconnect provider account"
	body := map[string]string{"provider": provider, "account": account}
	resp, err := c.do(ctx, call{op: op, method: http.MethodDelete, path: ProviderAccountsPath, body: body})
	if err != nil {
		return nil, err
	}
	var out []ProviderAccount
	if err := decode(op, resp, resp.Data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
