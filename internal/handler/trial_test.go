package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/prospector/internal/model"
)

func TestTrialStart(t *testing.T) {
	e := newEnv(t)

	rec := serve(e.trial.Start, request("POST", "/trial", "user_1", nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sub model.Subscription
	decode(t, rec, &sub)
	assert.Equal(t, model.StatusTrialing, sub.Status)
	assert.NotNil(t, sub.TrialEndsAt)

	acct, err := e.store.GetAccount(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, "user_1@example.com", acct.Email)

	rec = serve(e.trial.Start, request("POST", "/trial", "user_1", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTrialRestore(t *testing.T) {
	e := newEnv(t)
	e.startTrial(t, "user_1")
	_, err := e.store.IncrementUsage(context.Background(), "user_1", 10, 10)
	require.NoError(t, err)

	req := request("POST", "/admin/trials/user_1/restore", "", nil)
	req.SetPathValue("userID", "user_1")
	rec := serve(e.trial.Restore, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	u, err := e.store.GetUsage(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Used)
}

func TestUsage(t *testing.T) {
	e := newEnv(t)
	e.startTrial(t, "user_1")
	_, err := e.store.IncrementUsage(context.Background(), "user_1", 8, 10)
	require.NoError(t, err)

	rec := serve(e.usage.Usage, request("GET", "/usage", "user_1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Plan   string `json:"plan"`
		Status string `json:"status"`
		Usage  struct {
			Used      int    `json:"used"`
			Remaining int    `json:"remaining"`
			State     string `json:"state"`
		} `json:"usage"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "trial", resp.Plan)
	assert.Equal(t, "trialing", resp.Status)
	assert.Equal(t, 8, resp.Usage.Used)
	assert.Equal(t, 2, resp.Usage.Remaining)
	assert.Equal(t, "warning", resp.Usage.State)

	rec = serve(e.usage.Usage, request("GET", "/usage", "ghost", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPlans(t *testing.T) {
	e := newEnv(t)
	rec := serve(e.usage.Plans, request("GET", "/plans", "", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Plans []struct {
			ID          string `json:"id"`
			Purchasable bool   `json:"purchasable"`
		} `json:"plans"`
	}
	decode(t, rec, &resp)
	purchasable := map[string]bool{}
	for _, p := range resp.Plans {
		purchasable[p.ID] = p.Purchasable
	}
	assert.Len(t, resp.Plans, 5)
	assert.True(t, purchasable["pro"])
	assert.False(t, purchasable["pro_annual"])
	assert.False(t, purchasable["trial"])
	assert.NotContains(t, rec.Body.String(), "price_pro")
}
