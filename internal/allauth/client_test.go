package allauth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	CSRF   string
	Header http.Header
	Body   map[string]any
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []recordedRequest
	handle   func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, CSRF: r.Header.Get(CSRFHeaderName), Header: r.Header.Clone()}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &rec.Body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
	if f.handle != nil {
		f.handle(w, r)
		return
	}
	writeJSON(w, http.StatusOK, `{"status":200,"data":[]}`)
}

func (f *fakeBackend) last(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func newTestClient(t *testing.T, backend *fakeBackend) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	client, err := New(srv.URL)
	require.NoError(t, err)
	return client, srv
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("/_allauth")
	assert.Error(t, err)
}

func TestURLUsesClientRoot(t *testing.T) {
	c, err := New("https://api.example.com/", WithClientKind(ClientApp))
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/_allauth/app/v1/auth/login", c.URL(LoginPath))
}

func TestCSRFHeaderFollowsCookie(t *testing.T) {
	backend := &fakeBackend{}
	backend.handle = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/_allauth/browser/v1/config" {
			http.SetCookie(w, &http.Cookie{Name: CSRFCookieName, Value: url.QueryEscape("tok=1"), Path: "/"})
			writeJSON(w, http.StatusOK, `{"status":200,"data":{}}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"status":200,"data":[]}`)
	}
	client, _ := newTestClient(t, backend)
	ctx := context.Background()

	_, err := client.GetConfig(ctx)
	require.NoError(t, err)
	first := backend.last(t)
	assert.Empty(t, first.CSRF, "no cookie yet, no header")
	_, hasHeader := first.Header[http.CanonicalHeaderKey(CSRFHeaderName)]
	assert.False(t, hasHeader)

	_, err = client.ListEmailAddresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok=1", backend.last(t).CSRF)

	token, ok := client.CSRFToken()
	assert.True(t, ok)
	assert.Equal(t, "tok=1", token)
}

func TestCSRFTokenReadOnEveryRequest(t *testing.T) {
	backend := &fakeBackend{}
	client, srv := newTestClient(t, backend)
	ctx := context.Background()
	u, _ := url.Parse(srv.URL)

	client.httpClient.Jar.SetCookies(u, []*http.Cookie{{Name: CSRFCookieName, Value: "first", Path: "/"}})
	_, err := client.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", backend.last(t).CSRF)

	client.httpClient.Jar.SetCookies(u, []*http.Cookie{{Name: CSRFCookieName, Value: "second", Path: "/"}})
	_, err = client.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", backend.last(t).CSRF)
}

func TestSessionCookieRoundTrips(t *testing.T) {
	backend := &fakeBackend{}
	backend.handle = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/_allauth/browser/v1/auth/login" {
			http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "s1", Path: "/"})
			writeJSON(w, http.StatusOK, `{"status":200,"data":{"user":{"id":1}},"meta":{"is_authenticated":true}}`)
			return
		}
		ck, err := r.Cookie("sessionid")
		if err != nil || ck.Value != "s1" {
			writeJSON(w, http.StatusUnauthorized, `{"status":401,"data":{"flows":[]},"meta":{"is_authenticated":false}}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"status":200,"data":{"user":{"id":1}},"meta":{"is_authenticated":true}}`)
	}
	client, _ := newTestClient(t, backend)
	ctx := context.Background()

	_, err := client.Login(ctx, LoginInput{Username: "alice", Password: "password123"})
	require.NoError(t, err)
	status, err := client.GetAuthStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Authenticated())
}

func TestLoginDecodesUser(t *testing.T) {
	backend := &fakeBackend{}
	backend.handle = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":200,"data":{"user":{"id":1,"username":"alice","has_usable_password":true},"methods":[{"method":"password","at":1700000000,"username":"alice"}]},"meta":{"is_authenticated":true}}`)
	}
	client, _ := newTestClient(t, backend)

	res, err := client.Login(context.Background(), LoginInput{Username: "alice", Password: "password123"})
	require.NoError(t, err)

	req := backend.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/_allauth/browser/v1/auth/login", req.Path)
	assert.Equal(t, "alice", req.Body["username"])
	assert.Equal(t, "password123", req.Body["password"])
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	require.True(t, res.Authenticated())
	assert.Equal(t, Identifier("1"), res.User.ID)
	assert.Equal(t, "alice", res.User.Username)
	require.NotNil(t, res.User.HasUsablePassword)
	assert.True(t, *res.User.HasUsablePassword)
	require.Len(t, res.Methods, 1)
	assert.Equal(t, "password", res.Methods[0].Method)
	assert.True(t, res.Meta.IsAuthenticated)
}

func TestLoginPendingVerificationIsNotAnError(t *testing.T) {
	backend := &fakeBackend{}
	backend.handle = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"status":401,"data":{"flows":[{"id":"login"},{"id":"verify_email","is_pending":true}]},"meta":{"is_authenticated":false}}`)
	}
	client, _ := newTestClient(t, backend)

	res, err := client.Login(context.Background(), LoginInput{Username: "alice", Password: "password123"})
	require.NoError(t, err)
	assert.False(t, res.Authenticated())
	assert.Equal(t, OutcomeUnauthenticated, res.Outcome)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	flow, ok := res.PendingFlow()
	require.True(t, ok)
	assert.Equal(t, FlowVerifyEmail, flow.ID)
	assert.True(t, res.HasFlow(FlowLogin))
}

func TestGetAuthStatusWithoutUser(t *testing.T) {
	backend := &fakeBackend{}
	backend.handle = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":200,"data":{"user":null}}`)
	}
	client, _ := newTestClient(t, backend)

	res, err := client.GetAuthStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Authenticated())
	assert.Nil(t, res.User)
}

func TestLogoutAcceptsUnauthorized(t *testing.T) {
	backend := &fakeBackend{}
	backend.handle = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"status":401,"data":{"flows":[{"id":"login"}]},"meta":{"is_authenticated":false}}`)
	}
	client, _ := newTestClient(t, backend)

	require.NoError(t, client.Logout(context.Background()))
	req := backend.last(t)
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/_allauth/browser/v1/auth/session", req.Path)
}

func TestStatusErrorCarriesAPIMessage(t *testing.T) {
	backend := &fakeBackend{}
	backend.handle = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"status":400,"errors":[{"message":"The username and/or password you specified are not correct.","code":"username_password_mismatch","param":"password"}]}`)
	}
	client, _ := newTestClient(t, backend)

	_, err := client.Login(context.Background(), LoginInput{Username: "alice", Password: "wrongpass"})
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindStatus, apiErr.Kind)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "The username and/or password you specified are not correct.", apiErr.Message)
	assert.Equal(t, apiErr.Message, apiErr.FieldMessages()["password"])
	assert.True(t, IsStatus(err, http.StatusBadRequest))
}

func TestStatusErrorWithoutBodyUsesGenericMessage(t *testing.T) {
	backend := &fakeBackend{}
	backend.handle = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}
	client, _ := newTestClient(t, backend)

	_, err := client.ListProviderAccounts(context.Background())
	require.Error(t, err)
	assert.Equal(t, "request failed with status code 403", ErrorMessage(err))
	assert.Equal(t, KindStatus, KindOf(err))
}

func TestMalformedResponse(t *testing.T) {
	backend := &fakeBackend{}
	backend.handle = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `<html>oops</html>`)
	}
	client, _ := newTestClient(t, backend)

	_, err := client.GetConfig(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindMalformed, KindOf(err))
}

func TestTransportFailure(t *testing.T) {
	backend := &fakeBackend{}
	client, srv := newTestClient(t, backend)
	srv.Close()

	_, err := client.GetAuthStatus(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.NotEmpty(t, ErrorMessage(err))
}

type recordingObserver struct {
	ops      []string
	statuses []int
	errs     []error
}

func (o *recordingObserver) ObserveCall(op string, status int, err error) {
	o.ops = append(o.ops, op)
	o.statuses = append(o.statuses, status)
	o.errs = append(o.errs, err)
}

func TestObserverSeesEveryCall(t *testing.T) {
	backend := &fakeBackend{}
	backend.handle = func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			writeJSON(w, http.StatusUnauthorized, `{"status":401}`)
			return
		}
		writeJSON(w, http.StatusConflict, `{"status":409}`)
	}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	obs := &recordingObserver{}
	client, err := New(srv.URL, WithObserver(obs))
	require.NoError(t, err)

	_ = client.Logout(context.Background())
	_, _ = client.Login(context.Background(), LoginInput{})

	assert.Equal(t, []string{"logout", "login"}, obs.ops)
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusConflict}, obs.statuses)
	assert.NoError(t, obs.errs[0])
	assert.Error(t, obs.errs[1])
}
