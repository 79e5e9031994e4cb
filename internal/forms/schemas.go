package forms

import (
	"net/http"
	"strings"
)

// Login is the username and password form.
type Login struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required,min=8"`
}

// Register is the signup form.
type Register struct {
	Email           string `form:"email" validate:"required,email"`
	Username        string `form:"username" validate:"required"`
	Password        string `form:"password" validate:"required,min=8"`
	ConfirmPassword string `form:"confirmPassword" validate:"required,min=8,eqfield=Password"`
}

// ForgotPassword requests a reset link.
type ForgotPassword struct {
	Email string `form:"email" validate:"required,email"`
}

// ResetPassword sets a new password with a reset key.
type ResetPassword struct {
	Key             string `form:"key" validate:"required"`
	Password        string `form:"password" validate:"required,min=8"`
	ConfirmPassword string `form:"confirmPassword" validate:"required,min=8,eqfield=Password"`
}

// ChangePassword changes the password of the signed-in user. CurrentPassword
// is empty for accounts without a usable password.
type ChangePassword struct {
	CurrentPassword string `form:"currentPassword"`
	NewPassword     string `form:"newPassword" validate:"required,min=8"`
	ConfirmPassword string `form:"confirmPassword" validate:"required,min=8,eqfield=NewPassword"`
}

// Reauthenticate confirms the password before a sensitive action.
type Reauthenticate struct {
	Password string `form:"password" validate:"required"`
}

// LoginCode confirms a login code.
type LoginCode struct {
	Code string `form:"code" validate:"required"`
}

// EmailAddress names one address of the account.
type EmailAddress struct {
	Email string `form:"email" validate:"required,email"`
}

// ProviderSignup completes a provider signup.
type ProviderSignup struct {
	Email string `form:"email" validate:"required,email"`
}

// Value reads a trimmed form value. Passwords are read with Secret.
func Value(r *http.Request, name string) string {
	return strings.TrimSpace(r.PostFormValue(name))
}

// Secret reads a form value verbatim.
func Secret(r *http.Request, name string) string {
	return r.PostFormValue(name)
}
