// Package allauth is a client for the django-allauth headless API.
//
// A Client owns a cookie jar, so the backend session cookie and the csrftoken
// cookie round-trip on every call. Each endpoint method performs exactly one
// HTTP request and returns either the decoded payload or a *Error carrying a
// human readable message. Responses where a 401 describes a domain outcome
// rather than a failure (login pending verification, email verified but not
// signed in, logged out) are decoded into AuthResult instead of an error.
//
// The provider redirect flow is not a request/response exchange: the backend
// answers with a redirect the browser has to follow itself. ProviderRedirectForm
// therefore returns the form the UI must submit instead of calling the API.
package allauth
