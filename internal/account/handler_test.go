package account_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/portal/internal/account"
	"github.com/odyssey-erp/portal/internal/allauth"
	"github.com/odyssey-erp/portal/internal/session"
	"github.com/odyssey-erp/portal/internal/shared"
	"github.com/odyssey-erp/portal/internal/view"
)

type fakeAPI struct {
	mu          sync.Mutex
	status      *allauth.AuthResult
	statusErr   error
	reauth      *allauth.AuthResult
	reauthErr   error
	actionErr   error
	sessionsErr error
	added       []string
	ended       []int64
	password    []allauth.ChangePasswordInput
}

func (f *fakeAPI) GetAuthStatus(ctx context.Context) (*allauth.AuthResult, error) {
	return f.status, f.statusErr
}

func (f *fakeAPI) Reauthenticate(ctx context.Context, password string) (*allauth.AuthResult, error) {
	return f.reauth, f.reauthErr
}

func (f *fakeAPI) ListEmailAddresses(ctx context.Context) ([]allauth.EmailAddress, error) {
	return []allauth.EmailAddress{{Email: "alice@example.com", Primary: true, Verified: true}}, nil
}

func (f *fakeAPI) AddEmailAddress(ctx context.Context, email string) ([]allauth.EmailAddress, error) {
	f.mu.Lock()
	f.added = append(f.added, email)
	f.mu.Unlock()
	return nil, f.actionErr
}

func (f *fakeAPI) RequestEmailVerification(ctx context.Context, email string) (int, error) {
	return http.StatusOK, f.actionErr
}

func (f *fakeAPI) ChangePrimaryEmailAddress(ctx context.Context, email string) ([]allauth.EmailAddress, error) {
	return nil, f.actionErr
}

func (f *fakeAPI) RemoveEmailAddress(ctx context.Context, email string) ([]allauth.EmailAddress, error) {
	return nil, f.actionErr
}

func (f *fakeAPI) ChangePassword(ctx context.Context, in allauth.ChangePasswordInput) error {
	f.password = append(f.password, in)
	return f.actionErr
}

func (f *fakeAPI) ListProviderAccounts(ctx context.Context) ([]allauth.ProviderAccount, error) {
	return []allauth.ProviderAccount{{UID: "42", Display: "alice#0001", Provider: allauth.Provider{ID: "discord", Name: "Discord"}}}, nil
}

func (f *fakeAPI) DisconnectProviderAccount(ctx context.Context, provider, acct string) ([]allauth.ProviderAccount, error) {
	return nil, f.actionErr
}

func (f *fakeAPI) ListSessions(ctx context.Context) ([]allauth.UserSession, error) {
	if f.sessionsErr != nil {
		return nil, f.sessionsErr
	}
	return []allauth.UserSession{{ID: 3, UserAgent: "Firefox", IP: "10.0.0.1", CreatedAt: 1700000000, IsCurrent: true}}, nil
}

func (f *fakeAPI) EndSessions(ctx context.Context, ids []int64) ([]allauth.UserSession, error) {
	f.ended = append(f.ended, ids...)
	return nil, f.actionErr
}

type configSource struct {
	err error
}

func (c configSource) Get(ctx context.Context) (*allauth.Config, error) {
	if c.err != nil {
		return nil, c.err
	}
	cfg := &allauth.Config{}
	cfg.Account.IsOpenForSignup = true
	return cfg, nil
}

type harness struct {
	router http.Handler
	store  *session.Store
	last   *shared.Session
}

func newHarness(t *testing.T, api *fakeAPI, cfg configSource) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	templates, err := view.NewEngine()
	require.NoError(t, err)

	h := &harness{store: session.NewStore()}
	handler := account.NewHandler(nil, api, cfg, h.store, templates, shared.NewCSRFManager("csrfsecret"))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Load(r.Context(), r)
			require.NoError(t, err)
			h.last = sess
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	})
	handler.MountRoutes(r)
	r.Route("/api", handler.MountAPI)
	h.router = r
	return h
}

func (h *harness) do(method, path string, values url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if values != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(values.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func alice() *allauth.User {
	usable := true
	return &allauth.User{ID: "1", Username: "alice", Email: "alice@example.com", HasUsablePassword: &usable}
}

func signedIn() *allauth.AuthResult {
	return &allauth.AuthResult{Status: http.StatusOK, Outcome: allauth.OutcomeAuthenticated, User: alice()}
}

func reauthRequired() error {
	return &allauth.Error{
		Op: "add email address", Kind: allauth.KindStatus, Status: http.StatusUnauthorized,
		Message: "request failed with status code 401",
		Flows:   []allauth.Flow{{ID: allauth.FlowReauthenticate}},
	}
}

func TestSettingsPage(t *testing.T) {
	h := newHarness(t, &fakeAPI{status: signedIn()}, configSource{})
	h.store.Login(allauth.User{ID: "1"})

	rec := h.do(http.MethodGet, "/dashboard/settings", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Dashboard Settings")
	assert.Contains(t, body, "alice@example.com")
	assert.Contains(t, body, "alice#0001")
	assert.Contains(t, body, "Firefox")

	u, ok := h.store.User()
	require.True(t, ok)
	assert.Equal(t, "alice", u.Username, "settings refresh the stored user")
}

func TestSettingsSectionFailureDegrades(t *testing.T) {
	h := newHarness(t, &fakeAPI{status: signedIn(), sessionsErr: errors.New("boom")}, configSource{})
	h.store.Login(*alice())

	rec := h.do(http.MethodGet, "/dashboard/settings", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Could not load sessions: boom")
}

func TestSettingsEndedSessionClearsStore(t *testing.T) {
	h := newHarness(t, &fakeAPI{status: &allauth.AuthResult{Status: http.StatusUnauthorized}}, configSource{})
	h.store.Login(*alice())

	rec := h.do(http.MethodGet, "/dashboard/settings", nil)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, account.AuthPath, rec.Header().Get("Location"))
	assert.False(t, h.store.Authenticated())
}

func TestSettingsStatusFailure(t *testing.T) {
	h := newHarness(t, &fakeAPI{statusErr: &allauth.Error{Kind: allauth.KindTransport, Message: "connection refused"}}, configSource{})
	h.store.Login(*alice())

	rec := h.do(http.MethodGet, "/dashboard/settings", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
	assert.True(t, h.store.Authenticated(), "a transport failure is not a confirmed logout")
}

func TestAddEmail(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, configSource{})
	h.store.Login(*alice())

	rec := h.do(http.MethodPost, "/dashboard/settings/email", url.Values{"email": {"new@example.com"}})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, account.SettingsPath, rec.Header().Get("Location"))
	assert.Equal(t, []string{"new@example.com"}, api.added)
	toasts := h.last.PopToasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, shared.ToastSuccess, toasts[0].Kind)

	rec = h.do(http.MethodPost, "/dashboard/settings/email", url.Values{"email": {"nope"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Len(t, api.added, 1, "invalid address never reaches the backend")
}

func TestActionNeedingReauthentication(t *testing.T) {
	h := newHarness(t, &fakeAPI{actionErr: reauthRequired()}, configSource{})
	h.store.Login(*alice())

	rec := h.do(http.MethodPost, "/dashboard/settings/email", url.Values{"email": {"new@example.com"}})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, account.ReauthenticatePath+"?next="+account.SettingsPath, rec.Header().Get("Location"))
	assert.True(t, h.store.Authenticated())
}

func TestActionWithEndedSession(t *testing.T) {
	h := newHarness(t, &fakeAPI{actionErr: &allauth.Error{Kind: allauth.KindStatus, Status: http.StatusUnauthorized}}, configSource{})
	h.store.Login(*alice())

	rec := h.do(http.MethodPost, "/dashboard/settings/providers/disconnect", url.Values{"provider": {"discord"}, "account": {"42"}})

	assert.Equal(t, account.AuthPath, rec.Header().Get("Location"))
	assert.False(t, h.store.Authenticated())
}

func TestChangePasswordRequiresCurrentPassword(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, configSource{})
	h.store.Login(*alice())

	h.do(http.MethodPost, "/dashboard/settings/password", url.Values{"newPassword": {"password123"}, "confirmPassword": {"password123"}})
	assert.Empty(t, api.password)

	noPassword := false
	h.store.Login(allauth.User{ID: "1", HasUsablePassword: &noPassword})
	h.do(http.MethodPost, "/dashboard/settings/password", url.Values{"newPassword": {"password123"}, "confirmPassword": {"password123"}})
	require.Len(t, api.password, 1)
	assert.Empty(t, api.password[0].CurrentPassword)
}

func TestEndSessions(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, configSource{})
	h.store.Login(*alice())

	h.do(http.MethodPost, "/dashboard/settings/sessions/end", url.Values{"session": {"3", "4"}})
	assert.Equal(t, []int64{3, 4}, api.ended)

	rec := h.do(http.MethodPost, "/dashboard/settings/sessions/end", url.Values{"session": {"x"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReauthenticate(t *testing.T) {
	api := &fakeAPI{reauth: signedIn()}
	h := newHarness(t, api, configSource{})
	h.store.Login(*alice())

	rec := h.do(http.MethodGet, "/dashboard/reauthenticate?next=/dashboard/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/dashboard/reauthenticate", url.Values{"password": {"secret"}, "next": {"https://evil.example/"}})
	assert.Equal(t, account.SettingsPath, rec.Header().Get("Location"))

	rec = h.do(http.MethodPost, "/dashboard/reauthenticate", url.Values{"password": {"secret"}, "next": {"/dashboard"}})
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	api.reauth = &allauth.AuthResult{Status: http.StatusUnauthorized}
	rec = h.do(http.MethodPost, "/dashboard/reauthenticate", url.Values{"password": {"secret"}})
	assert.Equal(t, account.AuthPath, rec.Header().Get("Location"))
	assert.False(t, h.store.Authenticated(), "an unauthenticated reauthentication clears the store")
}

func TestReauthenticateWrongPassword(t *testing.T) {
	api := &fakeAPI{reauthErr: &allauth.Error{
		Kind: allauth.KindStatus, Status: http.StatusBadRequest, Message: "Incorrect password.",
		Errors: []allauth.FieldError{{Message: "Incorrect password.", Param: "password"}},
	}}
	h := newHarness(t, api, configSource{})
	h.store.Login(*alice())

	rec := h.do(http.MethodPost, "/dashboard/reauthenticate", url.Values{"password": {"wrong"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Incorrect password.")
	assert.True(t, h.store.Authenticated())
}

func TestSessionJSON(t *testing.T) {
	h := newHarness(t, &fakeAPI{}, configSource{})

	rec := h.do(http.MethodGet, "/api/session", nil)
	assert.JSONEq(t, `{"authenticated":false,"user":null}`, rec.Body.String())

	h.store.Login(allauth.User{ID: "1", Username: "alice"})
	rec = h.do(http.MethodGet, "/api/session", nil)
	var out struct {
		Authenticated bool         `json:"authenticated"`
		User          allauth.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Authenticated)
	assert.Equal(t, "alice", out.User.Username)
}

func TestConfigJSON(t *testing.T) {
	h := newHarness(t, &fakeAPI{}, configSource{})
	rec := h.do(http.MethodGet, "/api/config", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_open_for_signup":true`)

	h = newHarness(t, &fakeAPI{}, configSource{err: errors.New("down")})
	rec = h.do(http.MethodGet, "/api/config", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
