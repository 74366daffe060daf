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
	"github.com/platinummonkey/quill/pkg/billing"
)

func TestPlansIsPublic(t *testing.T) {
	h := NewBillingHandlers(&fakeBilling{}, newTestLogger(), newTestMetrics())

	rec := httptest.NewRecorder()
	h.Plans(rec, httptest.NewRequest("GET", "/subscription/plans", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	plans, ok := dataField(t, envelope, "plans").([]interface{})
	require.True(t, ok)
	assert.Len(t, plans, 2)
}

func TestSubscriptionWithoutActiveSub(t *testing.T) {
	h := NewBillingHandlers(&fakeBilling{subErr: billing.ErrNoActiveSubscription},
		newTestLogger(), newTestMetrics())
	account := activeAccount(7)
	user := activeUser(3, account.ID, auth.RoleMember)

	req := withIdentity(httptest.NewRequest("GET", "/subscription", nil), user, account, false)
	rec := httptest.NewRecorder()
	h.Subscription(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, string(accounts.PlanFree), dataField(t, envelope, "plan"))
	assert.Nil(t, dataField(t, envelope, "subscription"))
}

func TestUpgradeReturnsOrder(t *testing.T) {
	fake := &fakeBilling{order: &billing.UpgradeOrder{
		PaymentID:   11,
		OrderID:     "order_123",
		AmountCents: 9900,
		Currency:    "USD",
		KeyID:       "key_abc",
	}}
	h := NewBillingHandlers(fake, newTestLogger(), newTestMetrics())
	account := activeAccount(7)
	admin := activeUser(3, account.ID, auth.RoleAdmin)

	req := withIdentity(httptest.NewRequest("POST", "/subscription/tenants/acme/upgrade", nil),
		admin, account, false)
	rec := httptest.NewRecorder()
	h.Upgrade(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, "order_123", dataField(t, envelope, "order_id"))
	assert.Equal(t, "key_abc", dataField(t, envelope, "key_id"))
}

func TestUpgradeAlreadyPro(t *testing.T) {
	h := NewBillingHandlers(&fakeBilling{upgradeErr: accounts.ErrAlreadyPro},
		newTestLogger(), newTestMetrics())
	account := activeAccount(7)
	admin := activeUser(3, account.ID, auth.RoleAdmin)

	req := withIdentity(httptest.NewRequest("POST", "/subscription/tenants/acme/upgrade", nil),
		admin, account, false)
	rec := httptest.NewRecorder()
	h.Upgrade(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestVerifyPaymentSuccess(t *testing.T) {
	now := time.Now()
	fake := &fakeBilling{verifySub: &billing.Subscription{
		ID:        5,
		AccountID: 7,
		Plan:      accounts.PlanPro,
		Status:    billing.SubscriptionStatusActive,
		StartsAt:  now,
		EndsAt:    now.Add(billing.ProGrantDuration),
	}}
	h := NewBillingHandlers(fake, newTestLogger(), newTestMetrics())
	account := activeAccount(7)
	admin := activeUser(3, account.ID, auth.RoleAdmin)

	req := withIdentity(jsonRequest(t, "POST", "/subscription/verify-payment", map[string]interface{}{
		"payment_id":         11,
		"order_id":           "order_123",
		"gateway_payment_id": "pay_456",
		"signature":          "sig",
	}), admin, account, false)
	rec := httptest.NewRecorder()
	h.VerifyPayment(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, string(accounts.PlanPro), dataField(t, envelope, "plan"))
	assert.Equal(t, float64(accounts.UnlimitedNotes), dataField(t, envelope, "note_limit"))
}

func TestVerifyPaymentForgedSignature(t *testing.T) {
	h := NewBillingHandlers(&fakeBilling{verifyErr: &billing.SignatureError{OrderID: "order_123"}},
		newTestLogger(), newTestMetrics())
	account := activeAccount(7)
	admin := activeUser(3, account.ID, auth.RoleAdmin)

	req := withIdentity(jsonRequest(t, "POST", "/subscription/verify-payment", map[string]interface{}{
		"payment_id": 11,
		"order_id":   "order_123",
		"signature":  "forged",
	}), admin, account, false)
	rec := httptest.NewRecorder()
	h.VerifyPayment(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyPaymentUnknownPayment(t *testing.T) {
	h := NewBillingHandlers(&fakeBilling{verifyErr: billing.ErrPaymentNotFound},
		newTestLogger(), newTestMetrics())
	account := activeAccount(7)
	admin := activeUser(3, account.ID, auth.RoleAdmin)

	req := withIdentity(jsonRequest(t, "POST", "/subscription/verify-payment", map[string]interface{}{
		"payment_id": 999,
		"order_id":   "order_123",
		"signature":  "sig",
	}), admin, account, false)
	rec := httptest.NewRecorder()
	h.VerifyPayment(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelSubscription(t *testing.T) {
	fake := &fakeBilling{}
	h := NewBillingHandlers(fake, newTestLogger(), newTestMetrics())
	account := activeAccount(7)
	admin := activeUser(3, account.ID, auth.RoleAdmin)

	req := withIdentity(httptest.NewRequest("POST", "/subscription/cancel", nil), admin, account, false)
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{account.ID}, fake.cancelled)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, string(accounts.PlanFree), dataField(t, envelope, "plan"))
}

func TestCancelWithoutActiveSub(t *testing.T) {
	h := NewBillingHandlers(&fakeBilling{cancelErr: billing.ErrNoActiveSubscription},
		newTestLogger(), newTestMetrics())
	account := activeAccount(7)
	admin := activeUser(3, account.ID, auth.RoleAdmin)

	req := withIdentity(httptest.NewRequest("POST", "/subscription/cancel", nil), admin, account, false)
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentsPagination(t *testing.T) {
	fake := &fakeBilling{payments: []*billing.Payment{
		{ID: 1, AccountID: 7, Status: billing.PaymentStatusSuccess},
		{ID: 2, AccountID: 7, Status: billing.PaymentStatusFailed},
	}}
	h := NewBillingHandlers(fake, newTestLogger(), newTestMetrics())
	account := activeAccount(7)
	user := activeUser(3, account.ID, auth.RoleMember)

	req := withIdentity(httptest.NewRequest("GET", "/subscription/payments?page=1&limit=10", nil),
		user, account, false)
	rec := httptest.NewRecorder()
	h.Payments(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, float64(2), dataField(t, envelope, "total_count"))
}
