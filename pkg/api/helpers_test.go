package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/quill/pkg/accounts"
	"github.com/platinummonkey/quill/pkg/auth"
	"github.com/platinummonkey/quill/pkg/billing"
	"github.com/platinummonkey/quill/pkg/contextkeys"
	"github.com/platinummonkey/quill/pkg/httputil"
	"github.com/platinummonkey/quill/pkg/middleware"
	"github.com/platinummonkey/quill/pkg/notes"
	"github.com/platinummonkey/quill/pkg/observability"
)

func newTestLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

func activeUser(id, accountID int64, role auth.RoleName) *auth.User {
	return &auth.User{
		ID:        id,
		AccountID: accountID,
		Email:     "user@example.com",
		Name:      "Test User",
		Role:      role,
		IsActive:  true,
	}
}

func activeAccount(id int64) *accounts.Account {
	return &accounts.Account{
		ID:        id,
		Name:      "Acme",
		Slug:      "acme",
		Plan:      accounts.PlanFree,
		NoteLimit: accounts.FreePlanNoteLimit,
		IsActive:  true,
	}
}

// withIdentity seeds the request context the way the pipeline would after
// authenticate, tenant resolution, and (optionally) the ownership stage.
func withIdentity(r *http.Request, user *auth.User, account *accounts.Account, ownerScoped bool) *http.Request {
	ctx := r.Context()
	ctx = contextkeys.WithAuth(ctx, &auth.Context{User: user})
	ctx = contextkeys.WithAccount(ctx, account)
	filter := middleware.TenantFilter{AccountID: account.ID}
	if ownerScoped {
		filter.OwnerID = &user.ID
	}
	ctx = contextkeys.WithTenantFilter(ctx, filter)
	return r.WithContext(ctx)
}

func jsonRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httputil.Envelope {
	t.Helper()
	var envelope httputil.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func dataField(t *testing.T, envelope httputil.Envelope, key string) interface{} {
	t.Helper()
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok, "envelope data is not an object")
	return data[key]
}

// fakeUsers is an in-memory UserDirectory
type fakeUsers struct {
	users        map[int64]*auth.User
	byEmail      map[string]*auth.User
	nextID       int64
	createErr    error
	invalidated  []int64
	logins       []int64
	passwordSets map[int64]string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		users:        make(map[int64]*auth.User),
		byEmail:      make(map[string]*auth.User),
		nextID:       1,
		passwordSets: make(map[int64]string),
	}
}

func (f *fakeUsers) add(user *auth.User) *auth.User {
	if user.ID == 0 {
		user.ID = f.nextID
		f.nextID++
	}
	f.users[user.ID] = user
	f.byEmail[user.Email] = user
	return user
}

func (f *fakeUsers) CreateUser(user *auth.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.byEmail[user.Email]; exists {
		return auth.ErrDuplicateEmail
	}
	f.add(user)
	return nil
}

func (f *fakeUsers) GetUserByID(id int64) (*auth.User, error) {
	if user, ok := f.users[id]; ok {
		return user, nil
	}
	return nil, auth.ErrUserNotFound
}

func (f *fakeUsers) GetUserByEmail(email string) (*auth.User, error) {
	if user, ok := f.byEmail[email]; ok {
		return user, nil
	}
	return nil, auth.ErrUserNotFound
}

func (f *fakeUsers) UpdatePassword(userID int64, passwordHash string) error {
	user, ok := f.users[userID]
	if !ok {
		return auth.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	f.passwordSets[userID] = passwordHash
	return nil
}

func (f *fakeUsers) InvalidateTokens(userID int64) error {
	if _, ok := f.users[userID]; !ok {
		return auth.ErrUserNotFound
	}
	f.invalidated = append(f.invalidated, userID)
	return nil
}

func (f *fakeUsers) RecordLogin(userID int64, ip string) error {
	f.logins = append(f.logins, userID)
	return nil
}

// fakeAccounts is an in-memory AccountDirectory
type fakeAccounts struct {
	accounts map[int64]*accounts.Account
	bySlug   map[string]*accounts.Account
	nextID   int64
	deleted  []int64
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		accounts: make(map[int64]*accounts.Account),
		bySlug:   make(map[string]*accounts.Account),
		nextID:   1,
	}
}

func (f *fakeAccounts) add(account *accounts.Account) *accounts.Account {
	if account.ID == 0 {
		account.ID = f.nextID
		f.nextID++
	}
	f.accounts[account.ID] = account
	f.bySlug[account.Slug] = account
	return account
}

func (f *fakeAccounts) CreateAccount(account *accounts.Account) error {
	if account.Plan == "" {
		account.Plan = accounts.PlanFree
	}
	if account.NoteLimit == 0 {
		account.NoteLimit = accounts.FreePlanNoteLimit
	}
	if account.Slug == "" {
		account.Slug = accounts.Slugify(account.Name)
	}
	account.IsActive = true
	f.add(account)
	return nil
}

func (f *fakeAccounts) GetAccount(id int64) (*accounts.Account, error) {
	if account, ok := f.accounts[id]; ok {
		return account, nil
	}
	return nil, accounts.ErrAccountNotFound
}

func (f *fakeAccounts) GetAccountBySlug(slug string) (*accounts.Account, error) {
	if account, ok := f.bySlug[slug]; ok {
		return account, nil
	}
	return nil, accounts.ErrAccountNotFound
}

func (f *fakeAccounts) DeleteAccount(id int64) error {
	account, ok := f.accounts[id]
	if !ok {
		return accounts.ErrAccountNotFound
	}
	delete(f.accounts, id)
	delete(f.bySlug, account.Slug)
	f.deleted = append(f.deleted, id)
	return nil
}

// fakeNotes records calls and returns canned results
type fakeNotes struct {
	createErr  error
	created    *notes.Note
	lastScope  notes.Scope
	lastList   notes.ListRequest
	list       *notes.List
	note       *notes.Note
	noteErr    error
	deleteErr  error
	deletedIDs []int64
}

func (f *fakeNotes) Create(accountID, ownerID int64, input notes.CreateInput) (*notes.Note, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	note := &notes.Note{
		ID:          1,
		AccountID:   accountID,
		OwnerID:     ownerID,
		Title:       input.Title,
		Description: input.Description,
	}
	f.created = note
	return note, nil
}

func (f *fakeNotes) Get(scope notes.Scope, noteID int64) (*notes.Note, error) {
	f.lastScope = scope
	if f.noteErr != nil {
		return nil, f.noteErr
	}
	// Mirror the store's tenant filter: a note outside the caller's
	// account is indistinguishable from a missing one.
	if f.note != nil && f.note.AccountID != 0 && f.note.AccountID != scope.AccountID {
		return nil, notes.ErrNoteNotFound
	}
	return f.note, nil
}

func (f *fakeNotes) List(scope notes.Scope, req notes.ListRequest) (*notes.List, error) {
	f.lastScope = scope
	f.lastList = req
	if f.list != nil {
		return f.list, nil
	}
	return &notes.List{Notes: []*notes.Note{}, Page: req.Page, Limit: req.Limit}, nil
}

func (f *fakeNotes) Update(scope notes.Scope, noteID int64, input notes.UpdateInput) (*notes.Note, error) {
	f.lastScope = scope
	if f.noteErr != nil {
		return nil, f.noteErr
	}
	return f.note, nil
}

func (f *fakeNotes) Delete(scope notes.Scope, noteID int64) error {
	f.lastScope = scope
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedIDs = append(f.deletedIDs, noteID)
	return nil
}

// fakeBilling records calls and returns canned results
type fakeBilling struct {
	catalog    billing.Catalog
	sub        *billing.Subscription
	subErr     error
	order      *billing.UpgradeOrder
	upgradeErr error
	verifySub  *billing.Subscription
	verifyErr  error
	cancelErr  error
	cancelled  []int64
	payments   []*billing.Payment
}

func (f *fakeBilling) Plans() billing.Catalog {
	if f.catalog != nil {
		return f.catalog
	}
	return billing.DefaultCatalog()
}

func (f *fakeBilling) GetActiveSubscription(accountID int64) (*billing.Subscription, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	return f.sub, nil
}

func (f *fakeBilling) UpgradeSubscription(ctx context.Context, accountID int64) (*billing.UpgradeOrder, error) {
	if f.upgradeErr != nil {
		return nil, f.upgradeErr
	}
	return f.order, nil
}

func (f *fakeBilling) VerifyPaymentAndUpgrade(ctx context.Context, accountID int64, req billing.VerifyRequest) (*billing.Subscription, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verifySub, nil
}

func (f *fakeBilling) CancelSubscription(accountID int64) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, accountID)
	return nil
}

func (f *fakeBilling) ListPayments(accountID int64, page, limit int) ([]*billing.Payment, int, error) {
	return f.payments, len(f.payments), nil
}

var errBoom = errors.New("boom")
