package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dukerupert/prospector/internal/middleware"
	"github.com/dukerupert/prospector/internal/store"
)

type contextKey int

const outcomeKey contextKey = 0

// OutcomeFromContext returns the snapshot Run hands to the gated action.
func OutcomeFromContext(ctx context.Context) (Outcome, bool) {
	out, ok := ctx.Value(outcomeKey).(Outcome)
	return out, ok
}

// Middleware runs next through Run, so every request that reaches next has
// been charged one generation. userID extracts the authenticated user; an
// empty id is rejected with 401. A 5xx from next counts as a failed action
// but the charge stands.
func Middleware(g *Gate, action string, userID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := userID(r)
			if id == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			rec := middleware.NewStatusRecorder(w)
			_, err := g.Run(r.Context(), id, action, func(ctx context.Context) error {
				next.ServeHTTP(rec, r.WithContext(ctx))
				if rec.Status() >= http.StatusInternalServerError {
					return fmt.Errorf("%s: handler responded %d", action, rec.Status())
				}
				return nil
			})
			if err == nil || rec.Status() != 0 {
				return
			}

			var blocked *BlockedError
			switch {
			case errors.As(err, &blocked):
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusPaymentRequired)
				json.NewEncoder(w).Encode(blocked)
			case errors.Is(err, store.ErrNotFound):
				writeError(w, http.StatusConflict, "account setup incomplete")
			default:
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
