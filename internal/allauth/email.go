package allauth

import (
	"context"
	"net/http"
)

// GetEmailVerificationInfo describes the verification key sent by email.
func (c *Client) GetEmailVerificationInfo(ctx context.Context, key string) (*EmailVerificationInfo, error) {
	const op = "get email verification info"
	header := http.Header{}
	header.Set(EmailVerificationKeyHeader, key)
	resp, err := c.do(ctx, call{op: op, method: http.MethodGet, path: EmailVerificationPath, header: header})
	if err != nil {
		return nil, err
	}
	var info EmailVerificationInfo
	if err := decode(op, resp, resp.Data, &info); err != nil {
		return nil, err
	}
	var meta Meta
	if err := decode(op, resp, resp.Meta, &meta); err != nil {
		return nil, err
	}
	info.IsAuthenticating = meta.IsAuthenticating
	return &info, nil
}

// VerifyEmail submits a verification key. A 401 result means the address was
// verified but nobody is signed in.
func (c *Client) VerifyEmail(ctx context.Context, key string) (*AuthResult, error) {
	const op = "verify email"
	body := map[string]string{"key": key}
	resp, err := c.do(ctx, call{op: op, method: http.MethodPost, path: EmailVerificationPath, body: body, accept: authStatuses})
	if err != nil {
		return nil, err
	}
	return decodeAuth(op, resp)
}

// ListEmailAddresses lists the addresses of the account.
func (c *Client) ListEmailAddresses(ctx context.Context) ([]EmailAddress, error) {
	return c.emailAddresses(ctx, "list email addresses", http.MethodGet, nil)
}

// AddEmailAddress adds an unverified address and triggers a verification mail.
func (c *Client) AddEmailAddress(ctx context.Context, email string) ([]EmailAddress, error) {
	return c.emailAddresses(ctx, "add email address", http.MethodPost, map[string]string{"email": email})
}

// RequestEmailVerification asks for another verification mail. Sending is
// rate limited by the backend.
func (c *Client) RequestEmailVerification(ctx context.Context, email string) (int, error) {
	resp, err := c.do(ctx, call{
		op:     "request email verification",
		method: http.MethodPut,
		path:   EmailAddressesPath,
		body:   map[string]string{"email": email},
	})
	if err != nil {
		return 0, err
	}
	return resp.Status, nil
}

// ChangePrimaryEmailAddress marks a verified address as primary.
func (c *Client) ChangePrimaryEmailAddress(ctx context.Context, email string) ([]EmailAddress, error) {
	body := struct {
		Email   string `json:"email"`
		Primary bool   `json:"primary"`
	}{Email: email, Primary: true}
	return c.emailAddresses(ctx, "change primary email address", http.MethodPatch, body)
}

// RemoveEmailAddress removes an address from the account.
func (c *Client) RemoveEmailAddress(ctx context.Context, email string) ([]EmailAddress, error) {
	return c.emailAddresses(ctx, "remove email address", http.MethodDelete, map[string]string{"email": email})
}

func (c *Client) emailAddresses(ctx context.Context, op, method string, body any) ([]EmailAddress, error) {
	resp, err := c.do(ctx, call{op: op, method: method, path: EmailAddressesPath, body: body})
	if err != nil {
		return nil, err
	}
	var out []EmailAddress
	if err := decode(op, resp, resp.Data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
