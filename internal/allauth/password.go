package allauth

import (
	"context"
	"net/http"
)

// RequestPassword asks the backend to mail a password reset link. The backend
// answers 200 whether or not the address is known.
func (c *Client) RequestPassword(ctx context.Context, email string) (int, error) {
	resp, err := c.do(ctx, call{
		op:     "request password",
		method: http.MethodPost,
		path:   RequestPasswordPath,
		body:   map[string]string{"email": email},
	})
	if err != nil {
		return 0, err
	}
	return resp.Status, nil
}

// GetPasswordResetInfo validates a reset key and returns its user.
func (c *Client) GetPasswordResetInfo(ctx context.Context, key string) (*PasswordResetInfo, error) {
	const op = "get password reset info"
	header := http.Header{}
	header.Set(PasswordResetKeyHeader, key)
	resp, err := c.do(ctx, call{op: op, method: http.MethodGet, path: c.resetPath, header: header})
	if err != nil {
		return nil, err
	}
	var info PasswordResetInfo
	if err := decode(op, resp, resp.Data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ResetPassword sets a new password with a reset key. A 401 result means the
// password was reset and the user still has to log in.
func (c *Client) ResetPassword(ctx context.Context, in ResetPasswordInput) (*AuthResult, error) {
	const op = "reset password"
	resp, err := c.do(ctx, call{op: op, method: http.MethodPost, path: c.resetPath, body: in, accept: authStatuses})
	if err != nil {
		return nil, err
	}
	return decodeAuth(op, resp)
}

// ChangePassword changes the password of the signed-in user. Accounts created
// through a provider have no current password.
func (c *Client) ChangePassword(ctx context.Context, in ChangePasswordInput) error {
	_, err := c.do(ctx, call{op: "change password", method: http.MethodPost, path: ChangePasswordPath, body: in})
	return err
}
