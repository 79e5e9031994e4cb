// Package forms validates the portal's HTML form submissions.
package forms

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Errors maps form field names to the message shown next to them.
type Errors map[string]string

// Has reports whether field has a message.
func (e Errors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// Validator checks form structs and renders field messages.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a validator that names fields by their form tag.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate returns one message per invalid field; it is empty when form is valid.
func (v *Validator) Validate(form any) Errors {
	out := Errors{}
	err := v.validate.Struct(form)
	if err == nil {
		return out
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["general"] = err.Error()
		return out
	}
	for _, fe := range verrs {
		if _, ok := out[fe.Field()]; ok {
			continue
		}
		out[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	if msg, ok := messages[fe.Namespace()+"."+fe.Tag()]; ok {
		return msg
	}
	if msg, ok := messages[fe.Namespace()]; ok {
		return msg
	}
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email"
	case "min":
		return "Must be at least " + fe.Param() + " characters"
	case "eqfield":
		return "Passwords don't match"
	case "numeric":
		return "Must contain digits only"
	}
	return "Invalid value"
}

// messages keys are "Struct.field.tag" or "Struct.field" for every tag.
var messages = map[string]string{
	"Login.username.required": "Username is required",
	"Login.password":          "Invalid password",

	"Register.email.required":           "Email is required",
	"Register.email.email":              "Invalid email",
	"Register.username.required":        "Username is required",
	"Register.password":                 "Password must be at least 8 characters",
	"Register.confirmPassword.required": "You must confirm your password",
	"Register.confirmPassword.min":      "You must confirm your password",
	"Register.confirmPassword.eqfield":  "Passwords don't match",

	"ForgotPassword.email.required": "Email is required",
	"ForgotPassword.email.email":    "Invalid email",

	"ResetPassword.key":                      "The reset link is invalid",
	"ResetPassword.password":                 "Password must be at least 8 characters",
	"ResetPassword.confirmPassword.required": "You must confirm your password",
	"ResetPassword.confirmPassword.min":      "You must confirm your password",
	"ResetPassword.confirmPassword.eqfield":  "Passwords don't match",

	"ChangePassword.newPassword":              "Password must be at least 8 characters",
	"ChangePassword.confirmPassword.required": "You must confirm your password",
	"ChangePassword.confirmPassword.min":      "You must confirm your password",
	"ChangePassword.confirmPassword.eqfield":  "Passwords don't match",

	"Reauthenticate.password": "Password is required",

	"LoginCode.code": "Enter the code from your email",

	"EmailAddress.email.required": "Email is required",
	"EmailAddress.email.email":    "Invalid email",

	"ProviderSignup.email.required": "Email is required",
	"ProviderSignup.email.email":    "Invalid email",
}
