package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/prospector/internal/billing"
	billingstripe "github.com/dukerupert/prospector/internal/billing/stripe"
	"github.com/dukerupert/prospector/internal/metrics"
	"github.com/dukerupert/prospector/internal/model"
	"github.com/dukerupert/prospector/internal/plan"
)

// processedEventTTL is how long a processed event id is remembered.
const processedEventTTL = 24 * time.Hour

type WebhookHandler struct {
	payments Payments
	sync     *billing.Synchronizer
	catalog  *plan.Catalog
	events   *cache.Cache
	logger   *slog.Logger
	now      func() time.Time
}

func NewWebhookHandler(p Payments, sync *billing.Synchronizer, catalog *plan.Catalog, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		payments: p,
		sync:     sync,
		catalog:  catalog,
		events:   cache.New(processedEventTTL, time.Hour),
		logger:   logger,
		now:      time.Now,
	}
}

func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	event, err := h.payments.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature rejected", "error", err)
		metrics.WebhookRequestsTotal.WithLabelValues("unknown", "invalid_signature").Inc()
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}
	eventType := string(event.Type)
	defer func() {
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	if _, seen := h.events.Get(event.ID); seen {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, string(billing.OutcomeDuplicate)).Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": string(billing.OutcomeDuplicate)})
		return
	}

	outcome, err := h.dispatch(r.Context(), event)
	if err != nil {
		h.logger.Error("webhook processing failed", "event_id", event.ID, "type", eventType, "error", err)
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, "error").Inc()
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	h.events.SetDefault(event.ID, outcome)
	metrics.WebhookRequestsTotal.WithLabelValues(eventType, string(outcome)).Inc()
	h.logger.Info("webhook processed", "event_id", event.ID, "type", eventType, "outcome", outcome)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

func (h *WebhookHandler) dispatch(ctx context.Context, event stripe.Event) (billing.Outcome, error) {
	switch event.Type {
	case "checkout.session.completed":
		return h.handleCheckoutCompleted(ctx, event)
	case "invoice.paid":
		inv, err := billingstripe.ParseInvoice(event)
		if err != nil {
			return billing.OutcomeIgnored, err
		}
		// The first invoice is covered by checkout.session.completed.
		if !inv.Renewal || inv.SubscriptionID == "" {
			return billing.OutcomeIgnored, nil
		}
		return h.sync.SubscriptionRenewed(ctx, billing.SubscriptionRenewed{
			SubscriptionRef: inv.SubscriptionID,
			PeriodEnd:       inv.PeriodEnd,
		})
	case "invoice.payment_failed":
		inv, err := billingstripe.ParseInvoice(event)
		if err != nil {
			return billing.OutcomeIgnored, err
		}
		return h.sync.PaymentFailed(ctx, billing.PaymentFailed{SubscriptionRef: inv.SubscriptionID})
	case "customer.subscription.deleted":
		id, err := billingstripe.ParseSubscriptionID(event)
		if err != nil {
			return billing.OutcomeIgnored, err
		}
		return h.sync.SubscriptionCanceled(ctx, billing.SubscriptionCanceled{SubscriptionRef: id})
	default:
		return billing.OutcomeIgnored, nil
	}
}

func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) (billing.Outcome, error) {
	co, err := billingstripe.ParseCheckoutCompleted(event)
	if err != nil {
		return billing.OutcomeIgnored, err
	}
	if co.SubscriptionID == "" || !co.PaymentComplete {
		h.logger.Info("checkout without active subscription ignored", "event_id", event.ID, "user_id", co.UserID)
		return billing.OutcomeIgnored, nil
	}
	if co.UserID == "" {
		return billing.OutcomeIgnored, fmt.Errorf("checkout %s has no user reference", event.ID)
	}
	if co.Plan == "" && co.PriceID != "" {
		p, err := h.catalog.ByStripePrice(co.PriceID)
		if err != nil {
			return billing.OutcomeIgnored, err
		}
		co.Plan = p.ID
	}

	if co.PeriodEnd.IsZero() {
		co.PeriodEnd, err = h.payments.SubscriptionPeriodEnd(ctx, co.SubscriptionID)
		if err != nil {
			h.logger.Warn("subscription period lookup failed, using plan cadence", "subscription", co.SubscriptionID, "error", err)
			co.PeriodEnd, err = h.cadencePeriodEnd(co.Plan)
			if err != nil {
				return billing.OutcomeIgnored, err
			}
		}
	}

	return h.sync.CheckoutCompleted(ctx, billing.CheckoutCompleted{
		UserID:          co.UserID,
		Plan:            co.Plan,
		CustomerRef:     co.CustomerID,
		SubscriptionRef: co.SubscriptionID,
		PeriodEnd:       co.PeriodEnd,
	})
}

func (h *WebhookHandler) cadencePeriodEnd(planID string) (time.Time, error) {
	p, err := h.catalog.Get(planID)
	if err != nil {
		return time.Time{}, err
	}
	now := h.now().UTC()
	switch p.Cadence {
	case model.CadenceAnnual:
		return now.AddDate(1, 0, 0), nil
	case model.CadenceMonthly:
		return now.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, errors.New("plan " + p.ID + " has no billing cadence")
	}
}
