package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/prospector/internal/validate"
)

func TestValidBody(t *testing.T) {
	v := validate.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rec := httptest.NewRecorder()
	assert.True(t, validBody(rec, v, logger, checkoutRequest{Plan: "pro"}))
	assert.Zero(t, rec.Body.Len(), "nothing written for a valid body")

	rec = httptest.NewRecorder()
	assert.False(t, validBody(rec, v, logger, checkoutRequest{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Fields []struct {
			Field string `json:"field"`
		} `json:"fields"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Fields, 1)
	assert.Equal(t, "plan", resp.Fields[0].Field)

	// A value the validator cannot inspect is a server fault, not bad input.
	rec = httptest.NewRecorder()
	assert.False(t, validBody(rec, v, logger, "not a struct"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "fields")
}
