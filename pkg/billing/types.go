package billing

import (
	"errors"
	"time"

	"github.com/platinummonkey/quill/pkg/accounts"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Subscription is a one-time-payment plan grant. Pro subscriptions run for
// a fixed year from purchase; there is no recurring billing.
type Subscription struct {
	ID          int64              `json:"id"`
	AccountID   int64              `json:"account_id"`
	Plan        accounts.Plan      `json:"plan"`
	Status      SubscriptionStatus `json:"status"`
	StartsAt    time.Time          `json:"starts_at"`
	EndsAt      time.Time          `json:"ends_at"`
	CancelledAt *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ProGrantDuration is the lifetime of a purchased pro subscription
const ProGrantDuration = 365 * 24 * time.Hour

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Payment tracks one gateway order from creation through verification
type Payment struct {
	ID               int64         `json:"id"`
	AccountID        int64         `json:"account_id"`
	SubscriptionID   *int64        `json:"subscription_id,omitempty"`
	GatewayOrderID   string        `json:"gateway_order_id"`
	GatewayPaymentID string        `json:"gateway_payment_id,omitempty"`
	AmountCents      int64         `json:"amount_cents"`
	Currency         string        `json:"currency"`
	Status           PaymentStatus `json:"status"`
	Method           string        `json:"method,omitempty"`
	FailureReason    string        `json:"failure_reason,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// InvoiceStatus represents the status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusPaid InvoiceStatus = "paid"
	InvoiceStatusVoid InvoiceStatus = "void"
)

// Invoice is the billing record issued for a successful payment
type Invoice struct {
	ID          int64         `json:"id"`
	AccountID   int64         `json:"account_id"`
	PaymentID   int64         `json:"payment_id"`
	Number      string        `json:"number"`
	AmountCents int64         `json:"amount_cents"`
	Currency    string        `json:"currency"`
	Status      InvoiceStatus `json:"status"`
	IssuedAt    time.Time     `json:"issued_at"`
}

var (
	// ErrNoActiveSubscription is returned when the account has no active
	// subscription to act on
	ErrNoActiveSubscription = errors.New("no active subscription")
	// ErrPaymentNotFound is returned when no pending payment matches the
	// verification request. Mismatched ids are treated the same as missing
	// ones to give replayed or forged requests nothing to learn from.
	ErrPaymentNotFound = errors.New("payment not found")
)

// SignatureError is returned when the gateway signature on a verification
// request does not match the expected HMAC
type SignatureError struct {
	OrderID string
}

func (e *SignatureError) Error() string {
	return "payment signature verification failed"
}

// IsSignatureError reports whether err is a signature verification failure
func IsSignatureError(err error) bool {
	var se *SignatureError
	return errors.As(err, &se)
}

// PlanInfo describes a purchasable plan
type PlanInfo struct {
	Plan        accounts.Plan `json:"plan"`
	Name        string        `json:"name"`
	PriceCents  int64         `json:"price_cents"`
	Currency    string        `json:"currency"`
	NoteLimit   int           `json:"note_limit"`
	Description string        `json:"description,omitempty"`
}

// Catalog is the ordered list of purchasable plans
type Catalog []PlanInfo

// Find returns the catalog entry for a plan
func (c Catalog) Find(plan accounts.Plan) (PlanInfo, bool) {
	for _, info := range c {
		if info.Plan == plan {
			return info, true
		}
	}
	return PlanInfo{}, false
}

// DefaultCatalog is the built-in plan catalog, overridable through
// configuration
func DefaultCatalog() Catalog {
	return Catalog{
		{
			Plan:        accounts.PlanFree,
			Name:        "Free",
			PriceCents:  0,
			Currency:    "USD",
			NoteLimit:   accounts.FreePlanNoteLimit,
			Description: "Up to 10 notes for small teams",
		},
		{
			Plan:        accounts.PlanPro,
			Name:        "Pro",
			PriceCents:  9900,
			Currency:    "USD",
			NoteLimit:   accounts.UnlimitedNotes,
			Description: "Unlimited notes, billed once per year",
		},
	}
}

// UpgradeOrder is returned to the caller to drive client-side checkout
type UpgradeOrder struct {
	PaymentID   int64  `json:"payment_id"`
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	KeyID       string `json:"key_id"`
}

// VerifyRequest carries the gateway callback fields plus the local payment
// id issued at order creation
type VerifyRequest struct {
	PaymentID        int64  `json:"payment_id"`
	OrderID          string `json:"order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}
