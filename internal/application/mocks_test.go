package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/brandon-dore/desk-booking-web-app-secure-devops/internal/domain/model"
)

// baseTime is the fixed "now" used by guards under test.
var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return baseTime }

// makeToken issues an HS256 token for sub expiring at exp.
func makeToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return signed
}

// tokenWithoutExp issues a well-formed token whose payload has no exp claim.
func tokenWithoutExp(t *testing.T) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"}).
		SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return signed
}

// --- mock AuthAPI ---

type mockAuthAPI struct {
	loginCred *model.Credential
	loginErr  error
	logins    []model.LoginInput

	registerUser *model.User
	registerErr  error
	registered   []model.Registration

	user      *model.User
	userErr   error
	userCalls int
}

func (m *mockAuthAPI) Login(_ context.Context, in model.LoginInput) (*model.Credential, error) {
	m.logins = append(m.logins, in)
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return m.loginCred.Clone(), nil
}

func (m *mockAuthAPI) Register(_ context.Context, in model.Registration) (*model.User, error) {
	m.registered = append(m.registered, in)
	return m.registerUser, m.registerErr
}

func (m *mockAuthAPI) CurrentUser(_ context.Context, _ string) (*model.User, error) {
	m.userCalls++
	return m.user, m.userErr
}

// --- mock CredentialStore ---

type mockCredentialStore struct {
	mu        sync.Mutex
	values    map[string]string
	setErr    error
	getErr    error
	deleteErr error
	deletes   int
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{values: make(map[string]string)}
}

func (m *mockCredentialStore) Set(_ context.Context, service, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.values[service+"/"+key] = value
	return nil
}

func (m *mockCredentialStore) Get(_ context.Context, service, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	return m.values[service+"/"+key], nil
}

func (m *mockCredentialStore) Delete(_ context.Context, service, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.values, service+"/"+key)
	return nil
}

func (m *mockCredentialStore) session() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values["deskbooking/user"]
}

// --- mock ResourceAPI ---

type patchCall struct {
	token    string
	resource model.Resource
	id       int64
	delta    model.Delta
}

type mockResourceAPI struct {
	calls   int
	patches []patchCall
	tokens  []string

	record model.Record
	page   *model.Page
	list   []model.Record
	err    error
}

func (m *mockResourceAPI) seen(token string) {
	m.calls++
	m.tokens = append(m.tokens, token)
}

func (m *mockResourceAPI) List(_ context.Context, token string, _ model.Resource, _ model.ListParams) (*model.Page, error) {
	m.seen(token)
	return m.page, m.err
}

func (m *mockResourceAPI) Get(_ context.Context, token string, _ model.Resource, _ int64) (model.Record, error) {
	m.seen(token)
	return m.record, m.err
}

func (m *mockResourceAPI) Create(_ context.Context, token string, _ model.Resource, data model.Record) (model.Record, error) {
	m.seen(token)
	return data, m.err
}

func (m *mockResourceAPI) Patch(_ context.Context, token string, resource model.Resource, id int64, delta model.Delta) (model.Record, error) {
	m.seen(token)
	m.patches = append(m.patches, patchCall{token: token, resource: resource, id: id, delta: delta})
	return m.record, m.err
}

func (m *mockResourceAPI) Delete(_ context.Context, token string, _ model.Resource, _ int64) error {
	m.seen(token)
	return m.err
}

func (m *mockResourceAPI) MyBookings(_ context.Context, token string) ([]model.Record, error) {
	m.seen(token)
	return m.list, m.err
}

func (m *mockResourceAPI) RoomDesks(_ context.Context, token string, _ int64) ([]model.Record, error) {
	m.seen(token)
	return m.list, m.err
}

func (m *mockResourceAPI) RoomBookings(_ context.Context, token string, _ int64, _ string) ([]model.Record, error) {
	m.seen(token)
	return m.list, m.err
}

// staticCredentials is a CredentialSource with a fixed credential.
type staticCredentials struct {
	cred *model.Credential
}

func (s staticCredentials) CurrentCredential() *model.Credential {
	return s.cred.Clone()
}
