package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/prospector/internal/auth"
	"github.com/dukerupert/prospector/internal/model"
	"github.com/dukerupert/prospector/internal/plan"
	"github.com/dukerupert/prospector/internal/store"
	"github.com/dukerupert/prospector/internal/validate"
)

// Payments is the payment provider as seen by the HTTP layer.
type Payments interface {
	CreateCustomer(ctx context.Context, userID, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID, userID, plan string) (string, error)
	CreateBillingPortalSession(ctx context.Context, customerID string) (string, error)
	SubscriptionPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error)
	ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

type CheckoutHandler struct {
	payments  Payments
	store     store.Store
	catalog   *plan.Catalog
	validator *validate.Validator
	logger    *slog.Logger
}

func NewCheckoutHandler(p Payments, s store.Store, catalog *plan.Catalog, v *validate.Validator, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		payments:  p,
		store:     s,
		catalog:   catalog,
		validator: v,
		logger:    logger,
	}
}

type checkoutRequest struct {
	Plan string `json:"plan" validate:"required,max=64"`
}

// CreateCheckoutSession creates a Stripe checkout session and returns the URL.
func (h *CheckoutHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !validBody(w, h.validator, h.logger, req) {
		return
	}

	p, err := h.catalog.Get(req.Plan)
	if errors.Is(err, plan.ErrUnknownPlan) || (err == nil && !h.catalog.Purchasable(p.ID)) {
		writeError(w, http.StatusBadRequest, "plan is not available for purchase")
		return
	}

	sub, err := h.store.GetSubscription(r.Context(), ac.UserID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusConflict, "account setup incomplete")
		return
	}
	if err != nil {
		h.logger.Error("load subscription", "user_id", ac.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sub.Status == model.StatusActive && sub.Plan == p.ID {
		writeError(w, http.StatusConflict, "already subscribed to this plan")
		return
	}

	customerID, ok := h.ensureCustomer(w, r, sub, ac)
	if !ok {
		return
	}

	url, err := h.payments.CreateCheckoutSession(r.Context(), customerID, p.StripePriceID, ac.UserID, p.ID)
	if err != nil {
		h.logger.Error("create checkout session", "user_id", ac.UserID, "plan", p.ID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to create checkout session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *CheckoutHandler) ensureCustomer(w http.ResponseWriter, r *http.Request, sub *model.Subscription, ac auth.AuthContext) (string, bool) {
	if id := model.Ref(sub.StripeCustomerID); id != "" {
		return id, true
	}

	email := ac.Email
	if email == "" {
		if acct, err := h.store.GetAccount(r.Context(), ac.UserID); err == nil {
			email = acct.Email
		}
	}
	customerID, err := h.payments.CreateCustomer(r.Context(), ac.UserID, email)
	if err != nil {
		h.logger.Error("create customer", "user_id", ac.UserID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to create customer")
		return "", false
	}
	if err := h.store.SetStripeCustomerID(r.Context(), ac.UserID, customerID); err != nil {
		h.logger.Error("store customer id", "user_id", ac.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return "", false
	}
	return customerID, true
}

// BillingPortal creates a Stripe billing portal session and returns the URL.
func (h *CheckoutHandler) BillingPortal(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	sub, err := h.store.GetSubscription(r.Context(), userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Error("load subscription", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sub == nil || sub.StripeCustomerID == nil {
		writeError(w, http.StatusBadRequest, "no billing account")
		return
	}

	url, err := h.payments.CreateBillingPortalSession(r.Context(), *sub.StripeCustomerID)
	if err != nil {
		h.logger.Error("create portal session", "user_id", userID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to create portal session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
