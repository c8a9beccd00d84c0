package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/prospector/internal/auth"
	"github.com/dukerupert/prospector/internal/gate"
	"github.com/dukerupert/prospector/internal/plan"
	"github.com/dukerupert/prospector/internal/store"
)

type UsageHandler struct {
	gate    *gate.Gate
	catalog *plan.Catalog
	logger  *slog.Logger
}

func NewUsageHandler(g *gate.Gate, catalog *plan.Catalog, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{gate: g, catalog: catalog, logger: logger}
}

// Usage returns the caller's entitlement snapshot without charging.
func (h *UsageHandler) Usage(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	out, err := h.gate.Check(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusConflict, "account setup incomplete")
		return
	}
	if err != nil {
		h.logger.Error("check usage", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type planView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Quota       int    `json:"quota"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
	Cadence     string `json:"cadence"`
	Purchasable bool   `json:"purchasable"`
}

// Plans lists the catalog.
func (h *UsageHandler) Plans(w http.ResponseWriter, r *http.Request) {
	plans := h.catalog.All()
	views := make([]planView, 0, len(plans))
	for _, p := range plans {
		views = append(views, planView{
			ID:          p.ID,
			Name:        p.Name,
			Quota:       p.Quota,
			PriceCents:  p.PriceCents,
			Currency:    p.Currency,
			Cadence:     string(p.Cadence),
			Purchasable: p.StripePriceID != "",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": views})
}
