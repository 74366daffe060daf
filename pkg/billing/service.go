package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/quill/pkg/accounts"
)

// AccountManager is the slice of the account service the billing flow needs
type AccountManager interface {
	CheckUpgradeEligibility(accountID int64) (*accounts.Account, error)
	UpgradeToPro(accountID, subscriptionID int64) error
	DowngradeToFree(accountID int64) error
}

// Service implements the upgrade and verification flows over PostgreSQL
type Service struct {
	db       *sql.DB
	accounts AccountManager
	gateway  Gateway
	catalog  Catalog
}

// NewService creates a billing service. A nil catalog uses the defaults.
func NewService(db *sql.DB, accountManager AccountManager, gateway Gateway, catalog Catalog) *Service {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Service{db: db, accounts: accountManager, gateway: gateway, catalog: catalog}
}

// Plans lists the purchasable plans
func (s *Service) Plans() Catalog {
	return s.catalog
}

const subscriptionColumns = `id, account_id, plan, status, starts_at, ends_at, cancelled_at, created_at, updated_at`

func scanSubscription(scanner interface{ Scan(...interface{}) error }) (*Subscription, error) {
	sub := &Subscription{}
	var cancelledAt sql.NullTime
	err := scanner.Scan(
		&sub.ID, &sub.AccountID, &sub.Plan, &sub.Status,
		&sub.StartsAt, &sub.EndsAt, &cancelledAt,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	if cancelledAt.Valid {
		sub.CancelledAt = &cancelledAt.Time
	}
	return sub, nil
}

// GetActiveSubscription returns the account's active subscription, or
// ErrNoActiveSubscription for free accounts
func (s *Service) GetActiveSubscription(accountID int64) (*Subscription, error) {
	row := s.db.QueryRow(`
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE account_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1`,
		accountID, SubscriptionStatusActive,
	)
	return scanSubscription(row)
}

// UpgradeSubscription starts the pro upgrade: checks eligibility, registers
// a gateway order for the pro price, and records a pending payment. The
// returned order carries everything the client needs for checkout.
func (s *Service) UpgradeSubscription(ctx context.Context, accountID int64) (*UpgradeOrder, error) {
	if _, err := s.accounts.CheckUpgradeEligibility(accountID); err != nil {
		return nil, err
	}

	pro, ok := s.catalog.Find(accounts.PlanPro)
	if !ok {
		return nil, fmt.Errorf("pro plan missing from catalog")
	}

	receipt := fmt.Sprintf("quill_%d_%s", accountID, uuid.NewString()[:8])
	order, err := s.gateway.CreateOrder(ctx, pro.PriceCents, pro.Currency, receipt)
	if err != nil {
		return nil, err
	}

	var paymentID int64
	err = s.db.QueryRow(`
		INSERT INTO payments (account_id, gateway_order_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		accountID, order.ID, pro.PriceCents, pro.Currency, PaymentStatusPending,
	).Scan(&paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	return &UpgradeOrder{
		PaymentID:   paymentID,
		OrderID:     order.ID,
		AmountCents: pro.PriceCents,
		Currency:    pro.Currency,
		KeyID:       s.gateway.KeyID(),
	}, nil
}

// VerifyPaymentAndUpgrade completes the upgrade after checkout. The writes
// are sequential single statements; a crash mid-sequence can leave a
// successful payment without its subscription, which is reconciled
// manually rather than hidden.
func (s *Service) VerifyPaymentAndUpgrade(ctx context.Context, accountID int64, req VerifyRequest) (*Subscription, error) {
	// The pending lookup pins local id, account, and gateway order together
	// so a replayed or cross-account verification finds nothing.
	var paymentID int64
	err := s.db.QueryRow(`
		SELECT id FROM payments
		WHERE id = $1 AND account_id = $2 AND gateway_order_id = $3 AND status = $4`,
		req.PaymentID, accountID, req.OrderID, PaymentStatusPending,
	).Scan(&paymentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}

	if !s.gateway.VerifySignature(req.OrderID, req.GatewayPaymentID, req.Signature) {
		_, markErr := s.db.Exec(`
			UPDATE payments
			SET status = $1, failure_reason = $2, updated_at = NOW()
			WHERE id = $3`,
			PaymentStatusFailed, "signature mismatch", paymentID,
		)
		if markErr != nil {
			return nil, fmt.Errorf("failed to mark payment failed: %w", markErr)
		}
		return nil, &SignatureError{OrderID: req.OrderID}
	}

	gatewayPayment, err := s.gateway.FetchPayment(ctx, req.GatewayPaymentID)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(`
		UPDATE payments
		SET status = $1, gateway_payment_id = $2, method = $3, updated_at = NOW()
		WHERE id = $4`,
		PaymentStatusSuccess, gatewayPayment.ID, gatewayPayment.Method, paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark payment success: %w", err)
	}

	if err := s.cancelActiveSubscription(accountID); err != nil {
		return nil, err
	}

	now := time.Now()
	sub := &Subscription{
		AccountID: accountID,
		Plan:      accounts.PlanPro,
		Status:    SubscriptionStatusActive,
		StartsAt:  now,
		EndsAt:    now.Add(ProGrantDuration),
	}
	err = s.db.QueryRow(`
		INSERT INTO subscriptions (account_id, plan, status, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		sub.AccountID, sub.Plan, sub.Status, sub.StartsAt, sub.EndsAt,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	_, err = s.db.Exec(`
		UPDATE payments SET subscription_id = $1, updated_at = NOW() WHERE id = $2`,
		sub.ID, paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to link payment: %w", err)
	}

	if err := s.accounts.UpgradeToPro(accountID, sub.ID); err != nil {
		return nil, err
	}

	if err := s.issueInvoice(accountID, paymentID, gatewayPayment.AmountCents, gatewayPayment.Currency); err != nil {
		return nil, err
	}

	return sub, nil
}

// cancelActiveSubscription marks any active subscription cancelled. No rows
// is fine: first upgrades have nothing to cancel.
func (s *Service) cancelActiveSubscription(accountID int64) error {
	_, err := s.db.Exec(`
		UPDATE subscriptions
		SET status = $1, cancelled_at = NOW(), updated_at = NOW()
		WHERE account_id = $2 AND status = $3`,
		SubscriptionStatusCancelled, accountID, SubscriptionStatusActive,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel prior subscription: %w", err)
	}
	return nil
}

func (s *Service) issueInvoice(accountID, paymentID, amountCents int64, currency string) error {
	number := fmt.Sprintf("QL-%d-%06d", time.Now().Year(), paymentID)
	_, err := s.db.Exec(`
		INSERT INTO invoices (account_id, payment_id, number, amount_cents, currency, status, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		accountID, paymentID, number, amountCents, currency, InvoiceStatusPaid,
	)
	if err != nil {
		return fmt.Errorf("failed to issue invoice: %w", err)
	}
	return nil
}

// CancelSubscription cancels the active subscription and downgrades the
// account immediately, ignoring the remaining paid period
func (s *Service) CancelSubscription(accountID int64) error {
	sub, err := s.GetActiveSubscription(accountID)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		UPDATE subscriptions
		SET status = $1, cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $2`,
		SubscriptionStatusCancelled, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}

	return s.accounts.DowngradeToFree(accountID)
}

// ListPayments returns the account's payment history, newest first
func (s *Service) ListPayments(accountID int64, page, limit int) ([]*Payment, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM payments WHERE account_id = $1`, accountID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT id, account_id, subscription_id, gateway_order_id,
		       COALESCE(gateway_payment_id, ''), amount_cents, currency, status,
		       COALESCE(method, ''), COALESCE(failure_reason, ''),
		       created_at, updated_at
		FROM payments
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := []*Payment{}
	for rows.Next() {
		p := &Payment{}
		var subscriptionID sql.NullInt64
		err := rows.Scan(
			&p.ID, &p.AccountID, &subscriptionID, &p.GatewayOrderID,
			&p.GatewayPaymentID, &p.AmountCents, &p.Currency, &p.Status,
			&p.Method, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan payment: %w", err)
		}
		if subscriptionID.Valid {
			p.SubscriptionID = &subscriptionID.Int64
		}
		payments = append(payments, p)
	}
	return payments, total, rows.Err()
}

// ExpireOverdue marks active subscriptions past their end date expired and
// downgrades the owning accounts. Returns the number of expired grants.
func (s *Service) ExpireOverdue(now time.Time) (int, error) {
	rows, err := s.db.Query(`
		UPDATE subscriptions
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND ends_at < $3
		RETURNING account_id`,
		SubscriptionStatusExpired, SubscriptionStatusActive, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	defer rows.Close()

	var accountIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to scan expired subscription: %w", err)
		}
		accountIDs = append(accountIDs, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, accountID := range accountIDs {
		if err := s.accounts.DowngradeToFree(accountID); err != nil {
			return len(accountIDs), fmt.Errorf("failed to downgrade account %d: %w", accountID, err)
		}
	}
	return len(accountIDs), nil
}
