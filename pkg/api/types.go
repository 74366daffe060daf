package api

import (
	"context"

	"github.com/platinummonkey/quill/pkg/accounts"
	"github.com/platinummonkey/quill/pkg/auth"
	"github.com/platinummonkey/quill/pkg/billing"
	"github.com/platinummonkey/quill/pkg/notes"
)

// UserDirectory is the user persistence surface the handlers need
type UserDirectory interface {
	CreateUser(user *auth.User) error
	GetUserByID(id int64) (*auth.User, error)
	GetUserByEmail(email string) (*auth.User, error)
	UpdatePassword(userID int64, passwordHash string) error
	InvalidateTokens(userID int64) error
	RecordLogin(userID int64, ip string) error
}

// AccountDirectory is the account persistence surface the handlers need
type AccountDirectory interface {
	CreateAccount(account *accounts.Account) error
	GetAccount(id int64) (*accounts.Account, error)
	GetAccountBySlug(slug string) (*accounts.Account, error)
	DeleteAccount(id int64) error
}

// TokenIssuer issues and verifies session tokens
type TokenIssuer interface {
	Issue(userID, accountID int64, role auth.RoleName) (string, error)
	Verify(token string) (*auth.Claims, error)
}

// NoteService is the note operations surface the handlers need
type NoteService interface {
	Create(accountID, ownerID int64, input notes.CreateInput) (*notes.Note, error)
	Get(scope notes.Scope, noteID int64) (*notes.Note, error)
	List(scope notes.Scope, req notes.ListRequest) (*notes.List, error)
	Update(scope notes.Scope, noteID int64, input notes.UpdateInput) (*notes.Note, error)
	Delete(scope notes.Scope, noteID int64) error
}

// BillingService is the subscription operations surface the handlers need
type BillingService interface {
	Plans() billing.Catalog
	GetActiveSubscription(accountID int64) (*billing.Subscription, error)
	UpgradeSubscription(ctx context.Context, accountID int64) (*billing.UpgradeOrder, error)
	VerifyPaymentAndUpgrade(ctx context.Context, accountID int64, req billing.VerifyRequest) (*billing.Subscription, error)
	CancelSubscription(accountID int64) error
	ListPayments(accountID int64, page, limit int) ([]*billing.Payment, int, error)
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	AccountName string `json:"accountName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type inviteRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// MinPasswordLength is the minimum accepted password length
const MinPasswordLength = 8
