package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/prospector/internal/model"
)

func TestCheckoutCreatesCustomer(t *testing.T) {
	e := newEnv(t)
	e.startTrial(t, "user_1")
	e.payments.On("CreateCustomer", mock.Anything, "user_1", "user_1@example.com").Return("cus_1", nil).Once()
	e.payments.On("CreateCheckoutSession", mock.Anything, "cus_1", "price_pro", "user_1", "pro").
		Return("https://checkout.stripe.test/s/1", nil).Once()

	rec := serve(e.checkout.CreateCheckoutSession, request("POST", "/billing/checkout", "user_1", map[string]string{"plan": "pro"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"url":"https://checkout.stripe.test/s/1"}`, rec.Body.String())

	sub, err := e.store.GetSubscription(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", model.Ref(sub.StripeCustomerID))
	e.payments.AssertExpectations(t)
}

func TestCheckoutReusesCustomer(t *testing.T) {
	e := newEnv(t)
	e.startTrial(t, "user_1")
	require.NoError(t, e.store.SetStripeCustomerID(context.Background(), "user_1", "cus_existing"))
	e.payments.On("CreateCheckoutSession", mock.Anything, "cus_existing", "price_starter", "user_1", "starter").
		Return("https://checkout.stripe.test/s/2", nil).Once()

	rec := serve(e.checkout.CreateCheckoutSession, request("POST", "/billing/checkout", "user_1", map[string]string{"plan": "starter"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	e.payments.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
	e.payments.AssertExpectations(t)
}

func TestCheckoutRejectsUnpurchasablePlan(t *testing.T) {
	e := newEnv(t)
	e.startTrial(t, "user_1")

	for _, p := range []string{"trial", "pro_annual", "enterprise"} {
		rec := serve(e.checkout.CreateCheckoutSession, request("POST", "/billing/checkout", "user_1", map[string]string{"plan": p}))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "plan %s", p)
	}
	rec := serve(e.checkout.CreateCheckoutSession, request("POST", "/billing/checkout", "user_1", map[string]string{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	e.payments.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckoutNotProvisioned(t *testing.T) {
	e := newEnv(t)
	rec := serve(e.checkout.CreateCheckoutSession, request("POST", "/billing/checkout", "ghost", map[string]string{"plan": "pro"}))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCheckoutProviderFailure(t *testing.T) {
	e := newEnv(t)
	e.startTrial(t, "user_1")
	e.payments.On("CreateCustomer", mock.Anything, "user_1", mock.Anything).Return("", errors.New("stripe down")).Once()

	rec := serve(e.checkout.CreateCheckoutSession, request("POST", "/billing/checkout", "user_1", map[string]string{"plan": "pro"}))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "stripe down")
}

func TestBillingPortal(t *testing.T) {
	e := newEnv(t)
	e.startTrial(t, "user_1")

	rec := serve(e.checkout.BillingPortal, request("POST", "/billing/portal", "user_1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no customer yet")

	require.NoError(t, e.store.SetStripeCustomerID(context.Background(), "user_1", "cus_1"))
	e.payments.On("CreateBillingPortalSession", mock.Anything, "cus_1").Return("https://billing.stripe.test/p/1", nil).Once()

	rec = serve(e.checkout.BillingPortal, request("POST", "/billing/portal", "user_1", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"url":"https://billing.stripe.test/p/1"}`, rec.Body.String())
	e.payments.AssertExpectations(t)
}
