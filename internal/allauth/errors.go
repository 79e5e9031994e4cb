package allauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why a call failed.
type ErrorKind int

const (
	// KindTransport covers failures before a response was received.
	KindTransport ErrorKind = iota + 1
	// KindStatus covers responses with a status the operation does not accept.
	KindStatus
	// KindMalformed covers responses that could not be decoded.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindMalformed:
		return "malformed"
	}
	return "unknown"
}

// FieldError is one entry of the API's errors array.
type FieldError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// Error is the single error kind returned by every endpoint method.
type Error struct {
	Op      string
	Kind    ErrorKind
	Status  int
	Message string
	Errors  []FieldError
	Flows   []Flow
	Err     error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return e.Op + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// FieldMessages maps API field errors to their param names.
func (e *Error) FieldMessages() map[string]string {
	out := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		if fe.Param == "" || fe.Message == "" {
			continue
		}
		if _, ok := out[fe.Param]; !ok {
			out[fe.Param] = fe.Message
		}
	}
	return out
}

// IsStatus reports whether err is an *Error for the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// KindOf returns the kind of err, or zero when err is not an *Error.
func KindOf(err error) ErrorKind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

type errorPayload struct {
	Status  int          `json:"status"`
	Message string       `json:"message"`
	Detail  string       `json:"detail"`
	Errors  []FieldError `json:"errors"`
	Data    struct {
		Flows []Flow `json:"flows"`
	} `json:"data"`
}

// apiMessage extracts the structured message of an error body, if any.
func apiMessage(p *errorPayload) string {
	if p == nil {
		return ""
	}
	if msg := strings.TrimSpace(p.Message); msg != "" {
		return msg
	}
	for _, fe := range p.Errors {
		if msg := strings.TrimSpace(fe.Message); msg != "" {
			return msg
		}
	}
	return strings.TrimSpace(p.Detail)
}

func statusError(op string, status int, body []byte) *Error {
	e := &Error{Op: op, Kind: KindStatus, Status: status}
	var payload errorPayload
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		e.Errors = payload.Errors
		e.Flows = payload.Data.Flows
		e.Message = apiMessage(&payload)
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("request failed with status code %d", status)
	}
	return e
}

func transportError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindTransport, Message: ErrorMessage(err), Err: err}
}

func malformedError(op string, status int, err error) *Error {
	return &Error{
		Op:      op,
		Kind:    KindMalformed,
		Status:  status,
		Message: "malformed response: " + ErrorMessage(err),
		Err:     err,
	}
}

// ErrorMessage derives a human readable message from any failure value.
//
// Priority: the structured API message, the error's own message, the JSON
// encoding of the value, and finally its fmt representation.
func ErrorMessage(v any) string {
	switch e := v.(type) {
	case nil:
		return "unknown error"
	case *Error:
		return e.Message
	case error:
		var apiErr *Error
		if errors.As(e, &apiErr) {
			return apiErr.Message
		}
		return e.Error()
	case string:
		return e
	case []byte:
		var payload errorPayload
		if json.Unmarshal(e, &payload) == nil {
			if msg := apiMessage(&payload); msg != "" {
				return msg
			}
		}
		return string(e)
	}
	if m, ok := v.(map[string]any); ok {
		if msg, ok := m["message"].(string); ok && msg != "" {
			return msg
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
