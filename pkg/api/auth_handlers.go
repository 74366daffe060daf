package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/quill/pkg/accounts"
	"github.com/platinummonkey/quill/pkg/auth"
	"github.com/platinummonkey/quill/pkg/httputil"
	"github.com/platinummonkey/quill/pkg/middleware"
	"github.com/platinummonkey/quill/pkg/observability"
)

// AuthHandlers serves registration, login, and session management
type AuthHandlers struct {
	users    UserDirectory
	accounts AccountDirectory
	hasher   *auth.PasswordHasher
	tokens   TokenIssuer
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewAuthHandlers creates the auth handler set
func NewAuthHandlers(users UserDirectory, accts AccountDirectory, hasher *auth.PasswordHasher, tokens TokenIssuer, logger *observability.Logger, metrics *observability.Metrics) *AuthHandlers {
	return &AuthHandlers{
		users:    users,
		accounts: accts,
		hasher:   hasher,
		tokens:   tokens,
		logger:   logger,
		metrics:  metrics,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegister(req *registerRequest) []httputil.FieldError {
	var errs []httputil.FieldError
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	req.AccountName = strings.TrimSpace(req.AccountName)

	if req.Email == "" || !strings.Contains(req.Email, "@") {
		errs = append(errs, httputil.FieldError{Field: "email", Message: "a valid email is required"})
	}
	if len(req.Password) < MinPasswordLength {
		errs = append(errs, httputil.FieldError{Field: "password", Message: "password must be at least 8 characters"})
	}
	if req.Name == "" {
		errs = append(errs, httputil.FieldError{Field: "name", Message: "name is required"})
	}
	if req.AccountName == "" {
		errs = append(errs, httputil.FieldError{Field: "accountName", Message: "account name is required"})
	}
	return errs
}

// Register creates a new account with its first admin user and returns a
// session token
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if errs := validateRegister(&req); len(errs) > 0 {
		httputil.WriteValidationErrors(w, errs)
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		h.logger.WithError(err).Error("failed to hash password")
		httputil.WriteInternalError(w)
		return
	}

	account := &accounts.Account{Name: req.AccountName}
	if err := h.accounts.CreateAccount(account); err != nil {
		h.logger.WithError(err).Error("failed to create account")
		httputil.WriteInternalError(w)
		return
	}

	user := &auth.User{
		AccountID:    account.ID,
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         auth.RoleAdmin,
	}
	if err := h.users.CreateUser(user); err != nil {
		// The account was persisted first, so roll it back rather than
		// leaving an orphaned tenant holding the slug.
		if delErr := h.accounts.DeleteAccount(account.ID); delErr != nil {
			h.logger.WithError(delErr).WithField("account_id", account.ID).
				Error("failed to roll back account after user create failure")
		}
		if errors.Is(err, auth.ErrDuplicateEmail) {
			httputil.WriteConflict(w, "email already registered")
			return
		}
		h.logger.WithError(err).Error("failed to create user")
		httputil.WriteInternalError(w)
		return
	}

	token, err := h.tokens.Issue(user.ID, account.ID, user.Role)
	if err != nil {
		h.logger.WithError(err).Error("failed to issue token")
		httputil.WriteInternalError(w)
		return
	}

	h.metrics.RegistrationsTotal.Inc()
	h.logger.WithFields(map[string]interface{}{
		"account_id": account.ID,
		"slug":       account.Slug,
	}).Info("account registered")

	httputil.WriteCreated(w, "account registered", map[string]interface{}{
		"token":   token,
		"user":    user,
		"account": account,
	})
}

// Login verifies credentials and returns a session token
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.users.GetUserByEmail(normalizeEmail(req.Email))
	if err != nil || user.IsDeleted || !user.IsActive {
		h.rejectLogin(w)
		return
	}
	if !h.hasher.Verify(req.Password, user.PasswordHash) {
		h.rejectLogin(w)
		return
	}

	account, err := h.accounts.GetAccount(user.AccountID)
	if err != nil || account.IsDeleted || !account.IsActive {
		h.rejectLogin(w)
		return
	}

	token, err := h.tokens.Issue(user.ID, user.AccountID, user.Role)
	if err != nil {
		h.logger.WithError(err).Error("failed to issue token")
		httputil.WriteInternalError(w)
		return
	}

	if err := h.users.RecordLogin(user.ID, middleware.ClientIP(r)); err != nil {
		// Login still succeeds; last-login metadata is advisory.
		h.logger.WithError(err).Warn("failed to record login")
	}

	h.metrics.LoginsTotal.WithLabelValues("success").Inc()
	httputil.WriteSuccess(w, "logged in", map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

func (h *AuthHandlers) rejectLogin(w http.ResponseWriter) {
	h.metrics.LoginsTotal.WithLabelValues("failure").Inc()
	httputil.WriteUnauthorized(w, "invalid email or password")
}

// Profile returns the authenticated user and their account
func (h *AuthHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	account := middleware.GetAccount(r)
	if authCtx == nil || account == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	httputil.WriteSuccess(w, "", map[string]interface{}{
		"user":    authCtx.User,
		"account": account,
	})
}

// Invite creates another user in the caller's account with a generated
// temporary password. The password is returned once in the response and
// must be changed by the invitee.
func (h *AuthHandlers) Invite(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r)
	if account == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req inviteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	role := auth.RoleName(req.Role)
	if role == "" {
		role = auth.RoleMember
	}

	var errs []httputil.FieldError
	if email == "" || !strings.Contains(email, "@") {
		errs = append(errs, httputil.FieldError{Field: "email", Message: "a valid email is required"})
	}
	if name == "" {
		errs = append(errs, httputil.FieldError{Field: "name", Message: "name is required"})
	}
	if !role.Valid() {
		errs = append(errs, httputil.FieldError{Field: "role", Message: "role must be admin or member"})
	}
	if len(errs) > 0 {
		httputil.WriteValidationErrors(w, errs)
		return
	}

	tempPassword := uuid.NewString()
	hash, err := h.hasher.Hash(tempPassword)
	if err != nil {
		h.logger.WithError(err).Error("failed to hash password")
		httputil.WriteInternalError(w)
		return
	}

	user := &auth.User{
		AccountID:    account.ID,
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
	}
	if err := h.users.CreateUser(user); err != nil {
		if errors.Is(err, auth.ErrDuplicateEmail) {
			httputil.WriteConflict(w, "email already registered in this account")
			return
		}
		h.logger.WithError(err).Error("failed to create user")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteCreated(w, "user invited", map[string]interface{}{
		"user":               user,
		"temporary_password": tempPassword,
	})
}

// ChangePassword verifies the current password, stores the new hash, and
// bumps the token watermark so previously issued tokens stop working. A
// fresh token is returned so the caller's session survives the change.
func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req changePasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.NewPassword) < MinPasswordLength {
		httputil.WriteValidationErrors(w, []httputil.FieldError{
			{Field: "newPassword", Message: "password must be at least 8 characters"},
		})
		return
	}
	if !h.hasher.Verify(req.CurrentPassword, authCtx.User.PasswordHash) {
		httputil.WriteUnauthorized(w, "current password is incorrect")
		return
	}

	hash, err := h.hasher.Hash(req.NewPassword)
	if err != nil {
		h.logger.WithError(err).Error("failed to hash password")
		httputil.WriteInternalError(w)
		return
	}
	if err := h.users.UpdatePassword(authCtx.User.ID, hash); err != nil {
		h.logger.WithError(err).Error("failed to update password")
		httputil.WriteInternalError(w)
		return
	}

	token, err := h.tokens.Issue(authCtx.User.ID, authCtx.User.AccountID, authCtx.User.Role)
	if err != nil {
		h.logger.WithError(err).Error("failed to issue token")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, "password changed", map[string]interface{}{
		"token": token,
	})
}

// Logout bumps the token watermark, revoking every outstanding token for
// the user
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if err := h.users.InvalidateTokens(authCtx.User.ID); err != nil {
		h.logger.WithError(err).Error("failed to invalidate tokens")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, "logged out", nil)
}
