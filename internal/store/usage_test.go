package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukerupert/prospector/internal/database"
)

func provision(t *testing.T, s Store, userID string) {
	t.Helper()
	ends := time.Now().UTC().Add(24 * time.Hour)
	if err := s.ProvisionTrial(context.Background(), trialSubscription(userID, ends), ends); err != nil {
		t.Fatalf("provision %s: %v", userID, err)
	}
}

func TestIncrementUsage(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			provision(t, s, "user_1")

			used, err := s.IncrementUsage(ctx, "user_1", 1, 10)
			if err != nil {
				t.Fatalf("increment: %v", err)
			}
			if used != 1 {
				t.Errorf("used = %d, want 1", used)
			}
			used, _ = s.IncrementUsage(ctx, "user_1", 2, 10)
			if used != 3 {
				t.Errorf("used = %d, want 3", used)
			}

			u, _ := s.GetUsage(ctx, "user_1")
			if u.Used != 3 {
				t.Errorf("stored used = %d, want 3", u.Used)
			}
		})
	}
}

func TestIncrementUsageStopsAtLimit(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			provision(t, s, "user_1")

			for i := 0; i < 3; i++ {
				if _, err := s.IncrementUsage(ctx, "user_1", 1, 3); err != nil {
					t.Fatalf("increment %d: %v", i+1, err)
				}
			}
			if _, err := s.IncrementUsage(ctx, "user_1", 1, 3); !errors.Is(err, ErrQuotaExceeded) {
				t.Errorf("err = %v, want ErrQuotaExceeded", err)
			}
			u, _ := s.GetUsage(ctx, "user_1")
			if u.Used != 3 {
				t.Errorf("used = %d, want 3 (at limit, not past it)", u.Used)
			}
		})
	}
}

func TestIncrementUsageErrors(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := s.IncrementUsage(ctx, "missing", 1, 10); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing row: err = %v, want ErrNotFound", err)
			}
			provision(t, s, "user_1")
			if _, err := s.IncrementUsage(ctx, "user_1", 0, 10); !errors.Is(err, ErrInvalidAmount) {
				t.Errorf("zero amount: err = %v, want ErrInvalidAmount", err)
			}
			if _, err := s.IncrementUsage(ctx, "user_1", 1, 0); !errors.Is(err, ErrQuotaExceeded) {
				t.Errorf("zero limit: err = %v, want ErrQuotaExceeded", err)
			}
		})
	}
}

func TestGetUsageNotFound(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.GetUsage(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestResetUsage(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			provision(t, s, "user_1")
			s.IncrementUsage(ctx, "user_1", 10, 10)

			periodEnd := time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)
			if err := s.ResetUsage(ctx, "user_1", periodEnd); err != nil {
				t.Fatalf("reset: %v", err)
			}
			u, _ := s.GetUsage(ctx, "user_1")
			if u.Used != 0 {
				t.Errorf("used = %d, want 0", u.Used)
			}
			if !u.CycleExpiresAt.Equal(periodEnd) {
				t.Errorf("cycle_expires_at = %v, want %v", u.CycleExpiresAt, periodEnd)
			}
		})
	}
}

func TestResetUsageCreatesMissingRow(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			periodEnd := time.Now().UTC().Add(time.Hour)
			if err := s.ResetUsage(ctx, "orphan", periodEnd); err != nil {
				t.Fatalf("reset: %v", err)
			}
			if _, err := s.GetUsage(ctx, "orphan"); err != nil {
				t.Errorf("get usage: %v", err)
			}
		})
	}
}

// runConcurrentIncrements starts n increments from used = limit-1 and
// returns how many of them succeeded.
func runConcurrentIncrements(t *testing.T, s Store, n, limit int) int64 {
	t.Helper()
	ctx := context.Background()
	provision(t, s, "user_1")
	if _, err := s.IncrementUsage(ctx, "user_1", limit-1, limit); err != nil {
		t.Fatalf("prefill: %v", err)
	}

	var allowed int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.IncrementUsage(ctx, "user_1", 1, limit)
			switch {
			case err == nil:
				atomic.AddInt64(&allowed, 1)
			case errors.Is(err, ErrQuotaExceeded):
			default:
				t.Errorf("increment: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	return allowed
}

func TestConcurrentIncrementsNeverPassLimit(t *testing.T) {
	const n, limit = 25, 10
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			allowed := runConcurrentIncrements(t, s, n, limit)
			if allowed != 1 {
				t.Errorf("allowed = %d, want exactly 1", allowed)
			}
			u, _ := s.GetUsage(context.Background(), "user_1")
			if u.Used != limit {
				t.Errorf("used = %d, want %d", u.Used, limit)
			}
		})
	}
}

func TestConcurrentIncrementsOnFileDatabase(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s := NewSQLStore(db)

	const n, limit = 16, 5
	allowed := runConcurrentIncrements(t, s, n, limit)
	if allowed != 1 {
		t.Errorf("allowed = %d, want exactly 1", allowed)
	}
	u, _ := s.GetUsage(context.Background(), "user_1")
	if u.Used != limit {
		t.Errorf("used = %d, want %d", u.Used, limit)
	}
}
