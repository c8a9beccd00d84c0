package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/prospector/internal/auth"
	"github.com/dukerupert/prospector/internal/billing"
	billingstripe "github.com/dukerupert/prospector/internal/billing/stripe"
	"github.com/dukerupert/prospector/internal/gate"
	"github.com/dukerupert/prospector/internal/generator"
	"github.com/dukerupert/prospector/internal/plan"
	"github.com/dukerupert/prospector/internal/store"
	"github.com/dukerupert/prospector/internal/trial"
	"github.com/dukerupert/prospector/internal/validate"
)

const testWebhookSecret = "whsec_test_123"

// mockPayments stubs the provider calls; signature checks use the real
// verifier.
type mockPayments struct {
	mock.Mock
	verifier *billingstripe.Client
}

func (m *mockPayments) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	args := m.Called(ctx, userID, email)
	return args.String(0), args.Error(1)
}

func (m *mockPayments) CreateCheckoutSession(ctx context.Context, customerID, priceID, userID, plan string) (string, error) {
	args := m.Called(ctx, customerID, priceID, userID, plan)
	return args.String(0), args.Error(1)
}

func (m *mockPayments) CreateBillingPortalSession(ctx context.Context, customerID string) (string, error) {
	args := m.Called(ctx, customerID)
	return args.String(0), args.Error(1)
}

func (m *mockPayments) SubscriptionPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error) {
	args := m.Called(ctx, subscriptionID)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *mockPayments) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return m.verifier.ConstructWebhookEvent(payload, sigHeader)
}

type env struct {
	store    *store.MemoryStore
	catalog  *plan.Catalog
	trials   *trial.Manager
	gate     *gate.Gate
	payments *mockPayments
	gen      *generator.Static

	generate *GenerateHandler
	trial    *TrialHandler
	usage    *UsageHandler
	checkout *CheckoutHandler
	webhook  *WebhookHandler

	// generateRoute is the full /generate chain: parse, charge, generate.
	generateRoute http.HandlerFunc
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	base, err := plan.Load("")
	require.NoError(t, err)
	catalog, err := base.WithPrices(map[string]string{"starter": "price_starter", "pro": "price_pro"})
	require.NoError(t, err)

	s := store.NewMemoryStore()
	v := validate.New()
	g := gate.New(s, catalog, logger)
	tm := trial.NewManager(s, catalog, logger)
	payments := &mockPayments{verifier: billingstripe.NewClient(billingstripe.Config{WebhookSecret: testWebhookSecret})}
	gen := &generator.Static{}
	sync := billing.NewSynchronizer(s, catalog, logger)

	gh := NewGenerateHandler(gen, v, logger)
	userID := func(r *http.Request) string { return auth.UserID(r.Context()) }
	route := gh.ParseRequest(gate.Middleware(g, ActionGenerate, userID)(http.HandlerFunc(gh.Generate)))

	return &env{
		store:         s,
		catalog:       catalog,
		trials:        tm,
		gate:          g,
		payments:      payments,
		gen:           gen,
		generate:      gh,
		generateRoute: route.ServeHTTP,
		trial:         NewTrialHandler(tm, logger),
		usage:         NewUsageHandler(g, catalog, logger),
		checkout:      NewCheckoutHandler(payments, s, catalog, v, logger),
		webhook:       NewWebhookHandler(payments, sync, catalog, logger),
	}
}

// request builds a request authenticated as userID; an empty id means anonymous.
func request(method, target, userID string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{UserID: userID, Email: userID + "@example.com"}))
	}
	return req
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}

func (e *env) startTrial(t *testing.T, userID string) {
	t.Helper()
	_, err := e.trials.Start(context.Background(), userID, userID+"@example.com")
	require.NoError(t, err)
}
