package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/quill/pkg/accounts"
	"github.com/platinummonkey/quill/pkg/billing"
	"github.com/platinummonkey/quill/pkg/httputil"
	"github.com/platinummonkey/quill/pkg/middleware"
	"github.com/platinummonkey/quill/pkg/observability"
)

// BillingHandlers serves the subscription and payment endpoints
type BillingHandlers struct {
	billing BillingService
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewBillingHandlers creates the billing handler set
func NewBillingHandlers(service BillingService, logger *observability.Logger, metrics *observability.Metrics) *BillingHandlers {
	return &BillingHandlers{billing: service, logger: logger, metrics: metrics}
}

// Plans returns the purchasable plan catalog. Public, no authentication.
func (h *BillingHandlers) Plans(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, "", map[string]interface{}{
		"plans": h.billing.Plans(),
	})
}

// Subscription returns the account's plan and active subscription, if any
func (h *BillingHandlers) Subscription(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r)
	if account == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	sub, err := h.billing.GetActiveSubscription(account.ID)
	if err != nil && !errors.Is(err, billing.ErrNoActiveSubscription) {
		h.logger.WithError(err).Error("failed to load subscription")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, "", map[string]interface{}{
		"plan":         account.Plan,
		"note_limit":   account.NoteLimit,
		"subscription": sub,
	})
}

// Upgrade creates a gateway order for the pro plan and records a pending
// payment. The tenant is resolved by slug by the route's pipeline, so the
// URL names the account being upgraded.
func (h *BillingHandlers) Upgrade(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r)
	if account == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	order, err := h.billing.UpgradeSubscription(r.Context(), account.ID)
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrAlreadyPro):
			httputil.WriteConflict(w, "account is already on the pro plan")
		case errors.Is(err, accounts.ErrAccountSuspended), errors.Is(err, accounts.ErrAccountDeleted):
			httputil.WriteForbidden(w, "account is not eligible for upgrade")
		default:
			h.logger.WithError(err).Error("failed to create upgrade order")
			httputil.WriteInternalError(w)
		}
		return
	}

	httputil.WriteCreated(w, "upgrade order created", order)
}

// VerifyPayment checks the gateway signature and, when valid, performs the
// plan upgrade
func (h *BillingHandlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r)
	if account == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req billing.VerifyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	sub, err := h.billing.VerifyPaymentAndUpgrade(r.Context(), account.ID, req)
	if err != nil {
		switch {
		case billing.IsSignatureError(err):
			h.metrics.PaymentsVerifiedTotal.WithLabelValues("failure").Inc()
			httputil.WriteBadRequest(w, "payment signature verification failed")
		case errors.Is(err, billing.ErrPaymentNotFound):
			httputil.WriteNotFound(w, "no matching pending payment")
		default:
			h.logger.WithError(err).Error("payment verification failed")
			httputil.WriteInternalError(w)
		}
		return
	}

	h.metrics.PaymentsVerifiedTotal.WithLabelValues("success").Inc()
	h.metrics.UpgradesTotal.Inc()
	h.metrics.ActiveSubscriptions.Inc()
	h.logger.WithField("account_id", account.ID).Info("account upgraded to pro")

	httputil.WriteSuccess(w, "payment verified, account upgraded", map[string]interface{}{
		"subscription": sub,
		"plan":         accounts.PlanPro,
		"note_limit":   accounts.UnlimitedNotes,
	})
}

// Payments returns the account's payment history, newest first
func (h *BillingHandlers) Payments(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r)
	if account == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	page := httputil.QueryInt(r, "page", 1)
	limit := httputil.QueryInt(r, "limit", 20)

	payments, total, err := h.billing.ListPayments(account.ID, page, limit)
	if err != nil {
		h.logger.WithError(err).Error("failed to list payments")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, "", map[string]interface{}{
		"payments":    payments,
		"total_count": total,
		"page":        page,
		"limit":       limit,
	})
}

// Cancel cancels the active subscription and immediately downgrades the
// account to the free plan
func (h *BillingHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r)
	if account == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	if err := h.billing.CancelSubscription(account.ID); err != nil {
		if errors.Is(err, billing.ErrNoActiveSubscription) {
			httputil.WriteBadRequest(w, "no active subscription to cancel")
			return
		}
		h.logger.WithError(err).Error("failed to cancel subscription")
		httputil.WriteInternalError(w)
		return
	}

	h.metrics.ActiveSubscriptions.Dec()
	httputil.WriteSuccess(w, "subscription cancelled", map[string]interface{}{
		"plan": accounts.PlanFree,
	})
}
