package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/quill/pkg/accounts"
	"github.com/platinummonkey/quill/pkg/auth"
)

func newAuthHandlers(users *fakeUsers, accts *fakeAccounts) *AuthHandlers {
	hasher := auth.NewPasswordHasher(4) // low cost keeps tests fast
	tokens := auth.NewTokenService([]byte("test-secret"), time.Hour)
	return NewAuthHandlers(users, accts, hasher, tokens, newTestLogger(), newTestMetrics())
}

func TestRegisterCreatesAccountAndAdmin(t *testing.T) {
	users := newFakeUsers()
	accts := newFakeAccounts()
	h := newAuthHandlers(users, accts)

	req := jsonRequest(t, "POST", "/auth/register", map[string]string{
		"email":       "Admin@Example.com",
		"password":    "supersecret",
		"name":        "Admin",
		"accountName": "Acme Inc",
	})
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.True(t, envelope.Success)
	assert.NotEmpty(t, dataField(t, envelope, "token"))

	user, err := users.GetUserByEmail("admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, user.Role)

	account, err := accts.GetAccountBySlug("acme-inc")
	require.NoError(t, err)
	assert.Equal(t, account.ID, user.AccountID)
}

func TestRegisterRollsBackAccountOnUserFailure(t *testing.T) {
	users := newFakeUsers()
	users.createErr = errBoom
	accts := newFakeAccounts()
	h := newAuthHandlers(users, accts)

	req := jsonRequest(t, "POST", "/auth/register", map[string]string{
		"email":       "admin@example.com",
		"password":    "supersecret",
		"name":        "Admin",
		"accountName": "Acme Inc",
	})
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, []int64{1}, accts.deleted, "orphaned account must be removed")
	_, err := accts.GetAccountBySlug("acme-inc")
	assert.ErrorIs(t, err, accounts.ErrAccountNotFound)
}

func TestRegisterValidation(t *testing.T) {
	h := newAuthHandlers(newFakeUsers(), newFakeAccounts())

	req := jsonRequest(t, "POST", "/auth/register", map[string]string{
		"email":    "not-an-email",
		"password": "short",
	})
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.False(t, envelope.Success)
	assert.Len(t, envelope.Errors, 4)
}

func TestLoginSuccessAndFailure(t *testing.T) {
	users := newFakeUsers()
	accts := newFakeAccounts()
	h := newAuthHandlers(users, accts)

	account := accts.add(activeAccount(1))
	hash, err := h.hasher.Hash("correct-horse")
	require.NoError(t, err)
	user := activeUser(1, account.ID, auth.RoleMember)
	user.Email = "member@example.com"
	user.PasswordHash = hash
	users.add(user)

	rec := httptest.NewRecorder()
	h.Login(rec, jsonRequest(t, "POST", "/auth/login", map[string]string{
		"email":    "member@example.com",
		"password": "correct-horse",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.NotEmpty(t, dataField(t, envelope, "token"))
	assert.Equal(t, []int64{user.ID}, users.logins)

	rec = httptest.NewRecorder()
	h.Login(rec, jsonRequest(t, "POST", "/auth/login", map[string]string{
		"email":    "member@example.com",
		"password": "wrong",
	}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.Login(rec, jsonRequest(t, "POST", "/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "correct-horse",
	}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRejectsSuspendedAccount(t *testing.T) {
	users := newFakeUsers()
	accts := newFakeAccounts()
	h := newAuthHandlers(users, accts)

	account := activeAccount(1)
	account.IsActive = false
	accts.add(account)

	hash, err := h.hasher.Hash("correct-horse")
	require.NoError(t, err)
	user := activeUser(1, account.ID, auth.RoleMember)
	user.PasswordHash = hash
	users.add(user)

	rec := httptest.NewRecorder()
	h.Login(rec, jsonRequest(t, "POST", "/auth/login", map[string]string{
		"email":    user.Email,
		"password": "correct-horse",
	}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileReturnsUserAndAccount(t *testing.T) {
	h := newAuthHandlers(newFakeUsers(), newFakeAccounts())
	account := activeAccount(7)
	user := activeUser(3, account.ID, auth.RoleMember)

	req := withIdentity(httptest.NewRequest("GET", "/auth/profile", nil), user, account, false)
	rec := httptest.NewRecorder()
	h.Profile(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	userData, ok := dataField(t, envelope, "user").(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(user.ID), userData["id"])
}

func TestInviteCreatesMember(t *testing.T) {
	users := newFakeUsers()
	h := newAuthHandlers(users, newFakeAccounts())
	account := activeAccount(7)
	admin := activeUser(1, account.ID, auth.RoleAdmin)

	req := withIdentity(jsonRequest(t, "POST", "/auth/invite", map[string]string{
		"email": "New@Example.com",
		"name":  "New User",
	}), admin, account, false)
	rec := httptest.NewRecorder()
	h.Invite(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.NotEmpty(t, dataField(t, envelope, "temporary_password"))

	invited, err := users.GetUserByEmail("new@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleMember, invited.Role)
	assert.Equal(t, account.ID, invited.AccountID)
}

func TestInviteDuplicateEmail(t *testing.T) {
	users := newFakeUsers()
	h := newAuthHandlers(users, newFakeAccounts())
	account := activeAccount(7)
	admin := activeUser(1, account.ID, auth.RoleAdmin)
	existing := activeUser(2, account.ID, auth.RoleMember)
	existing.Email = "taken@example.com"
	users.add(existing)

	req := withIdentity(jsonRequest(t, "POST", "/auth/invite", map[string]string{
		"email": "taken@example.com",
		"name":  "Dup",
	}), admin, account, false)
	rec := httptest.NewRecorder()
	h.Invite(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInviteRejectsUnknownRole(t *testing.T) {
	h := newAuthHandlers(newFakeUsers(), newFakeAccounts())
	account := activeAccount(7)
	admin := activeUser(1, account.ID, auth.RoleAdmin)

	req := withIdentity(jsonRequest(t, "POST", "/auth/invite", map[string]string{
		"email": "x@example.com",
		"name":  "X",
		"role":  "superuser",
	}), admin, account, false)
	rec := httptest.NewRecorder()
	h.Invite(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangePassword(t *testing.T) {
	users := newFakeUsers()
	h := newAuthHandlers(users, newFakeAccounts())
	account := activeAccount(7)

	hash, err := h.hasher.Hash("old-password")
	require.NoError(t, err)
	user := activeUser(1, account.ID, auth.RoleMember)
	user.PasswordHash = hash
	users.add(user)

	req := withIdentity(jsonRequest(t, "POST", "/auth/change-password", map[string]string{
		"currentPassword": "old-password",
		"newPassword":     "brand-new-password",
	}), user, account, false)
	rec := httptest.NewRecorder()
	h.ChangePassword(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.NotEmpty(t, dataField(t, envelope, "token"))
	newHash := users.passwordSets[user.ID]
	require.NotEmpty(t, newHash)
	assert.True(t, h.hasher.Verify("brand-new-password", newHash))
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	users := newFakeUsers()
	h := newAuthHandlers(users, newFakeAccounts())
	account := activeAccount(7)

	hash, err := h.hasher.Hash("old-password")
	require.NoError(t, err)
	user := activeUser(1, account.ID, auth.RoleMember)
	user.PasswordHash = hash
	users.add(user)

	req := withIdentity(jsonRequest(t, "POST", "/auth/change-password", map[string]string{
		"currentPassword": "not-it",
		"newPassword":     "brand-new-password",
	}), user, account, false)
	rec := httptest.NewRecorder()
	h.ChangePassword(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, users.passwordSets)
}

func TestLogoutInvalidatesTokens(t *testing.T) {
	users := newFakeUsers()
	h := newAuthHandlers(users, newFakeAccounts())
	account := activeAccount(7)
	user := activeUser(1, account.ID, auth.RoleMember)
	users.add(user)

	req := withIdentity(httptest.NewRequest("POST", "/auth/logout", nil), user, account, false)
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{user.ID}, users.invalidated)
}
