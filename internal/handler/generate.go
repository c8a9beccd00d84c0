package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/prospector/internal/auth"
	"github.com/dukerupert/prospector/internal/entitlement"
	"github.com/dukerupert/prospector/internal/gate"
	"github.com/dukerupert/prospector/internal/generator"
	"github.com/dukerupert/prospector/internal/validate"
)

// ActionGenerate is the gate action name for one ICP extraction.
const ActionGenerate = "generate"

type generateRequestKey struct{}

type GenerateHandler struct {
	generator generator.Generator
	validator *validate.Validator
	logger    *slog.Logger
}

func NewGenerateHandler(gen generator.Generator, v *validate.Validator, logger *slog.Logger) *GenerateHandler {
	return &GenerateHandler{generator: gen, validator: v, logger: logger}
}

type generateResponse struct {
	Result generator.Result     `json:"result"`
	Usage  entitlement.Decision `json:"usage"`
}

// ParseRequest decodes and validates the body before the gate charges, so a
// malformed request costs nothing.
func (h *GenerateHandler) ParseRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generator.Request
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if !validBody(w, h.validator, h.logger, req) {
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), generateRequestKey{}, req)))
	})
}

// Generate runs one ICP extraction. It must sit behind ParseRequest and
// gate.Middleware; the generation is already charged when it runs.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	req, ok := r.Context().Value(generateRequestKey{}).(generator.Request)
	out, charged := gate.OutcomeFromContext(r.Context())
	if !ok || !charged {
		h.logger.Error("generate reached without parsed request or charge", "user_id", userID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	result, err := h.generator.Generate(r.Context(), req)
	var provider *generator.ProviderError
	switch {
	case errors.As(err, &provider):
		h.logger.Error("generation failed", "user_id", userID, "provider", provider.Provider, "error", provider.Err)
		writeError(w, http.StatusBadGateway, "generation failed, please retry")
		return
	case err != nil:
		h.logger.Error("generation failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{Result: result, Usage: out.Decision})
}
