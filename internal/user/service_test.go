package user

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alignctx "github.com/alignlab/alignd/internal/context"
	"github.com/alignlab/alignd/internal/db"
	"github.com/alignlab/alignd/pkg/model"
)

type fakeUserStore struct {
	nextID model.UserID
	users  map[model.UserID]*model.User
	tiers  map[model.SubscriptionTierID]*model.SubscriptionTier
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		nextID: 1,
		users:  map[model.UserID]*model.User{},
		tiers: map[model.SubscriptionTierID]*model.SubscriptionTier{
			1: {ID: 1, Name: "free", DisplayName: "Free",
				TotalStorageLimit: 1000, MaxConcurrentTasks: 1, Active: true},
		},
	}
}

func (f *fakeUserStore) Add(_ context.Context, user *model.User) error {
	user.ID = f.nextID
	f.nextID++
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserStore) ByID(_ context.Context, id model.UserID) (*model.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserStore) ByUsername(_ context.Context, username string) (*model.User, error) {
	for _, user := range f.users {
		if user.Username == username {
			copied := *user
			return &copied, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeUserStore) ByEmail(_ context.Context, email string) (*model.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeUserStore) TierByName(_ context.Context, name string) (*model.SubscriptionTier, error) {
	for _, tier := range f.tiers {
		if tier.Name == name && tier.Active {
			return tier, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeUserStore) TierByID(
	_ context.Context, id model.SubscriptionTierID,
) (*model.SubscriptionTier, error) {
	tier, ok := f.tiers[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return tier, nil
}

func (f *fakeUserStore) UpdateStorage(_ context.Context, id model.UserID, delta int64) error {
	user, ok := f.users[id]
	if !ok {
		return db.ErrNotFound
	}
	user.UsedStorage += delta
	if user.UsedStorage < 0 {
		user.UsedStorage = 0
	}
	return nil
}

type fakeSessionStore struct {
	nextID   model.SessionID
	sessions map[model.SessionID]*model.UserSession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{nextID: 1, sessions: map[model.SessionID]*model.UserSession{}}
}

func (f *fakeSessionStore) Add(_ context.Context, session *model.UserSession) error {
	session.ID = f.nextID
	f.nextID++
	copied := *session
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeSessionStore) ByID(
	_ context.Context, id model.SessionID,
) (*model.UserSession, error) {
	session, ok := f.sessions[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (f *fakeSessionStore) Delete(_ context.Context, id model.SessionID) error {
	delete(f.sessions, id)
	return nil
}

func newServiceFixture(t *testing.T) (*Service, *fakeUserStore, *fakeSessionStore) {
	t.Helper()
	users := newFakeUserStore()
	sessions := newFakeSessionStore()
	return NewService("test-token-key", users, sessions), users, sessions
}

func echoContext() echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func addUser(t *testing.T, users *fakeUserStore, username, password string) *model.User {
	t.Helper()
	user := model.User{
		Email:    username + "@example.com",
		Username: username,
		Active:   true,
		TierID:   1,
	}
	require.NoError(t, user.UpdatePasswordHash(password))
	require.NoError(t, users.Add(context.Background(), &user))
	return &user
}

func TestTokenRoundTrip(t *testing.T) {
	s, users, _ := newServiceFixture(t)
	user := addUser(t, users, "alice", "hunter2")

	token, err := s.generateToken(echoContext(), *user)
	require.NoError(t, err)

	session, err := s.ValidateToken(echoContext(), token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)
}

func TestValidateTokenExpiredSession(t *testing.T) {
	s, users, sessions := newServiceFixture(t)
	user := addUser(t, users, "alice", "hunter2")

	token, err := s.generateToken(echoContext(), *user)
	require.NoError(t, err)
	for _, session := range sessions.sessions {
		session.Expiry = time.Now().Add(-time.Hour)
	}

	_, err = s.ValidateToken(echoContext(), token)
	require.Error(t, err)
}

func TestValidateTokenDeletedSession(t *testing.T) {
	s, users, sessions := newServiceFixture(t)
	user := addUser(t, users, "alice", "hunter2")

	token, err := s.generateToken(echoContext(), *user)
	require.NoError(t, err)
	for id := range sessions.sessions {
		require.NoError(t, sessions.Delete(context.Background(), id))
	}

	_, err = s.ValidateToken(echoContext(), token)
	require.Error(t, err)
}

func TestValidateTokenWrongKey(t *testing.T) {
	s, users, sessions := newServiceFixture(t)
	user := addUser(t, users, "alice", "hunter2")

	token, err := s.generateToken(echoContext(), *user)
	require.NoError(t, err)

	other := NewService("different-key", users, sessions)
	_, err = other.ValidateToken(echoContext(), token)
	require.Error(t, err)
}

func authedContext(token string) *alignctx.AlignContext {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return &alignctx.AlignContext{Context: e.NewContext(req, httptest.NewRecorder())}
}

func TestProcessAuthentication(t *testing.T) {
	s, users, _ := newServiceFixture(t)
	user := addUser(t, users, "alice", "hunter2")
	token, err := s.generateToken(echoContext(), *user)
	require.NoError(t, err)

	var authed model.User
	handler := s.ProcessAuthentication(func(c echo.Context) error {
		authed = c.(*alignctx.AlignContext).MustGetUser()
		return nil
	})

	require.NoError(t, handler(authedContext(token)))
	assert.Equal(t, user.ID, authed.ID)

	err = handler(authedContext(""))
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)

	err = handler(authedContext("garbage"))
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestProcessAuthenticationInactiveUser(t *testing.T) {
	s, users, _ := newServiceFixture(t)
	user := addUser(t, users, "alice", "hunter2")
	token, err := s.generateToken(echoContext(), *user)
	require.NoError(t, err)

	users.users[user.ID].Active = false

	handler := s.ProcessAuthentication(func(echo.Context) error { return nil })
	err = handler(authedContext(token))
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)
}

func TestCheckStorageQuota(t *testing.T) {
	s, users, _ := newServiceFixture(t)
	user := addUser(t, users, "alice", "hunter2")

	ok, err := s.CheckStorageQuota(context.Background(), user.ID, 1000)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.AddStorageUsage(context.Background(), user.ID, 900))
	ok, err = s.CheckStorageQuota(context.Background(), user.ID, 200)
	require.NoError(t, err)
	assert.False(t, ok)

	// Releases clamp at zero rather than going negative.
	require.NoError(t, s.AddStorageUsage(context.Background(), user.ID, -5000))
	ok, err = s.CheckStorageQuota(context.Background(), user.ID, 1000)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQuotaReport(t *testing.T) {
	s, users, _ := newServiceFixture(t)
	user := addUser(t, users, "alice", "hunter2")
	require.NoError(t, s.AddStorageUsage(context.Background(), user.ID, 400))

	report, err := s.Quota(echoContext(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), report.TotalStorageLimit)
	assert.Equal(t, int64(400), report.UsedStorage)
	assert.Equal(t, int64(600), report.AvailableStorage)
	assert.Equal(t, "Free", report.SubscriptionTier)
}
