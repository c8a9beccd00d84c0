package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/billingportal/session"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	PortalReturn  string
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg}
}

// CreateCustomer creates a Stripe customer and returns the customer ID.
func (c *Client) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession creates a subscription checkout session and returns
// its URL. The user id and plan ride along so the completion webhook can be
// attributed without a lookup.
func (c *Client) CreateCheckoutSession(ctx context.Context, customerID, priceID, userID, plan string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(userID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": userID, "plan": plan},
		},
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(c.cfg.SuccessURL),
		CancelURL:           stripe.String(c.cfg.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)
	params.AddMetadata("plan", plan)
	sess, err := checksession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreateBillingPortalSession creates a Stripe billing portal session and returns the URL.
func (c *Client) CreateBillingPortalSession(ctx context.Context, customerID string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(c.cfg.PortalReturn),
	}
	params.Context = ctx
	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// SubscriptionPeriodEnd fetches the end of the subscription's current billing
// period.
func (c *Client) SubscriptionPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return time.Time{}, fmt.Errorf("get subscription: %w", err)
	}
	if end := subscriptionPeriodEnd(sub); !end.IsZero() {
		return end, nil
	}
	return time.Time{}, errors.New("subscription has no current period")
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, c.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

func subscriptionPeriodEnd(sub *stripe.Subscription) time.Time {
	if sub == nil || sub.Items == nil {
		return time.Time{}
	}
	var end int64
	for _, item := range sub.Items.Data {
		if item != nil && item.CurrentPeriodEnd > end {
			end = item.CurrentPeriodEnd
		}
	}
	if end == 0 {
		return time.Time{}
	}
	return time.Unix(end, 0).UTC()
}

// Checkout is the subset of a completed checkout session the service needs.
type Checkout struct {
	UserID          string
	Plan            string
	CustomerID      string
	SubscriptionID  string
	PriceID         string
	PeriodEnd       time.Time
	PaymentComplete bool
}

// ParseCheckoutCompleted decodes a checkout.session.completed event. The user
// id comes from client_reference_id, falling back to metadata.
func ParseCheckoutCompleted(event stripe.Event) (Checkout, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return Checkout{}, fmt.Errorf("unmarshal checkout session: %w", err)
	}
	out := Checkout{
		UserID:          sess.ClientReferenceID,
		Plan:            sess.Metadata["plan"],
		PaymentComplete: sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusUnpaid,
	}
	if out.UserID == "" {
		out.UserID = sess.Metadata["user_id"]
	}
	if sess.Customer != nil {
		out.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		out.SubscriptionID = sess.Subscription.ID
		out.PeriodEnd = subscriptionPeriodEnd(sess.Subscription)
		if items := sess.Subscription.Items; items != nil && len(items.Data) > 0 && items.Data[0].Price != nil {
			out.PriceID = items.Data[0].Price.ID
		}
	}
	return out, nil
}

// Invoice is the subset of an invoice event the service needs.
type Invoice struct {
	SubscriptionID string
	PeriodEnd      time.Time
	Renewal        bool
}

// ParseInvoice decodes invoice.paid and invoice.payment_failed events. The
// period end is taken from the subscription line, falling back to the
// invoice period.
func ParseInvoice(event stripe.Event) (Invoice, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return Invoice{}, fmt.Errorf("unmarshal invoice: %w", err)
	}
	out := Invoice{
		SubscriptionID: subscriptionIDFromInvoice(inv),
		Renewal:        inv.BillingReason == stripe.InvoiceBillingReasonSubscriptionCycle,
	}
	var end int64
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line != nil && line.Period != nil && line.Period.End > end {
				end = line.Period.End
			}
		}
	}
	if end == 0 {
		end = inv.PeriodEnd
	}
	if end > 0 {
		out.PeriodEnd = time.Unix(end, 0).UTC()
	}
	return out, nil
}

// subscriptionIDFromInvoice extracts the subscription ID from an invoice's parent.
func subscriptionIDFromInvoice(inv stripe.Invoice) string {
	if inv.Parent != nil &&
		inv.Parent.SubscriptionDetails != nil &&
		inv.Parent.SubscriptionDetails.Subscription != nil {
		return inv.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}

// ParseSubscriptionID decodes a customer.subscription.* event and returns the
// subscription's ID.
func ParseSubscriptionID(event stripe.Event) (string, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return "", fmt.Errorf("unmarshal subscription: %w", err)
	}
	return sub.ID, nil
}
