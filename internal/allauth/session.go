package allauth

import (
	"context"
	"net/http"
)

// GetConfig fetches the backend configuration. It does not depend on the
// session, so callers usually fetch it once at boot.
func (c *Client) GetConfig(ctx context.Context) (*Config, error) {
	const op = "get config"
	resp, err := c.do(ctx, call{op: op, method: http.MethodGet, path: ConfigPath})
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := decode(op, resp, resp.Data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetAuthStatus reads the authentication state of the current session. A 401
// is the regular answer for an anonymous session.
func (c *Client) GetAuthStatus(ctx context.Context) (*AuthResult, error) {
	const op = "get auth status"
	resp, err := c.do(ctx, call{op: op, method: http.MethodGet, path: SessionPath, accept: authStatuses})
	if err != nil {
		return nil, err
	}
	return decodeAuth(op, resp)
}

// Logout ends the current session. The backend answers a successful logout
// with 401, which is not reported as an error.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, call{op: "logout", method: http.MethodDelete, path: SessionPath, accept: authStatuses})
	return err
}

// Login signs in with a username or email and a password.
func (c *Client) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	const op = "login"
	resp, err := c.do(ctx, call{op: op, method: http.MethodPost, path: LoginPath, body: in, accept: authStatuses})
	if err != nil {
		return nil, err
	}
	return decodeAuth(op, resp)
}

// Signup registers a new account. Depending on backend settings the user is
// signed in right away or a verification flow is left pending.
func (c *Client) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	const op = "signup"
	resp, err := c.do(ctx, call{op: op, method: http.MethodPost, path: SignupPath, body: in, accept: authStatuses})
	if err != nil {
		return nil, err
	}
	return decodeAuth(op, resp)
}

// ConfirmLoginCode completes a login-by-code flow.
func (c *Client) ConfirmLoginCode(ctx context.Context, code string) (*AuthResult, error) {
	const op = "confirm login code"
	body := map[string]string{"code": code}
	resp, err := c.do(ctx, call{op: op, method: http.MethodPost, path: ConfirmLoginCodePath, body: body, accept: authStatuses})
	if err != nil {
		return nil, err
	}
	return decodeAuth(op, resp)
}

// Reauthenticate re-proves the identity of the signed-in user with a password.
func (c *Client) Reauthenticate(ctx context.Context, password string) (*AuthResult, error) {
	const op = "reauthenticate"
	body := map[string]string{"password": password}
	resp, err := c.do(ctx, call{op: op, method: http.MethodPost, path: ReauthenticatePath, body: body, accept: authStatuses})
	if err != nil {
		return nil, err
	}
	return decodeAuth(op, resp)
}

// ListSessions lists the active sessions of the user.
func (c *Client) ListSessions(ctx context.Context) ([]UserSession, error) {
	const op = "list sessions"
	resp, err := c.do(ctx, call{op: op, method: http.MethodGet, path: SessionsPath})
	if err != nil {
		return nil, err
	}
	var out []UserSession
	if err := decode(op, resp, resp.Data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EndSessions terminates the given sessions and returns the remaining ones.
func (c *Client) EndSessions(ctx context.Context, ids []int64) ([]UserSession, error) {
	const op = "end sessions"
	body := struct {
		Sessions []int64 `json:"sessions"`
	}{Sessions: ids}
	resp, err := c.do(ctx, call{op: op, method: http.MethodDelete, path: SessionsPath, body: body})
	if err != nil {
		return nil, err
	}
	var out []UserSession
	if err := decode(op, resp, resp.Data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
