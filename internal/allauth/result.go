package allauth

import "net/http"

// Outcome tags what an authentication response means for the session.
type Outcome int

const (
	// OutcomeUnauthenticated means the request was handled but no user is
	// signed in; Flows lists what the backend expects next.
	OutcomeUnauthenticated Outcome = iota
	// OutcomeAuthenticated means the response carries the signed-in user.
	OutcomeAuthenticated
)

func (o Outcome) String() string {
	if o == OutcomeAuthenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// AuthResult is the decoded form of every authentication response.
type AuthResult struct {
	Status  int
	Outcome Outcome
	User    *User
	Methods []AuthMethod
	Flows   []Flow
	Meta    Meta
}

// Authenticated reports whether r carries a server-confirmed user.
func (r *AuthResult) Authenticated() bool {
	return r != nil && r.Outcome == OutcomeAuthenticated && r.User != nil
}

// PendingFlow returns the flow the backend is waiting on, if any.
func (r *AuthResult) PendingFlow() (Flow, bool) {
	if r == nil {
		return Flow{}, false
	}
	for _, f := range r.Flows {
		if f.IsPending {
			return f, true
		}
	}
	return Flow{}, false
}

// HasFlow reports whether the backend offers the flow id.
func (r *AuthResult) HasFlow(id string) bool {
	if r == nil {
		return false
	}
	for _, f := range r.Flows {
		if f.ID == id {
			return true
		}
	}
	return false
}

var authStatuses = []int{http.StatusUnauthorized}

func decodeAuth(op string, resp *Response) (*AuthResult, error) {
	var data struct {
		User    *User        `json:"user"`
		Methods []AuthMethod `json:"methods"`
		Flows   []Flow       `json:"flows"`
	}
	if err := decode(op, resp, resp.Data, &data); err != nil {
		return nil, err
	}
	var meta Meta
	if err := decode(op, resp, resp.Meta, &meta); err != nil {
		return nil, err
	}
	r := &AuthResult{
		Status:  resp.Status,
		User:    data.User,
		Methods: data.Methods,
		Flows:   data.Flows,
		Meta:    meta,
	}
	if resp.Status >= 200 && resp.Status < 300 && data.User != nil {
		r.Outcome = OutcomeAuthenticated
	}
	return r, nil
}
