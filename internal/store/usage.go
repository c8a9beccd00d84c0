package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/prospector/internal/model"
)

type UsageStore struct {
	db *sql.DB
}

func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

func scanUsage(scanner interface{ Scan(...any) error }) (*model.UsageCounter, error) {
	var u model.UsageCounter
	err := scanner.Scan(&u.UserID, &u.Used, &u.CycleStartedAt, &u.CycleExpiresAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.CycleStartedAt = u.CycleStartedAt.UTC()
	u.CycleExpiresAt = u.CycleExpiresAt.UTC()
	return &u, nil
}

const usageCols = `user_id, used, cycle_started_at, cycle_expires_at, updated_at`

func (s *UsageStore) GetUsage(ctx context.Context, userID string) (*model.UsageCounter, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+usageCols+` FROM usage_counters WHERE user_id = ?`, userID)
	u, err := scanUsage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	return u, nil
}

// IncrementUsage runs a single conditional UPDATE so that concurrent callers
// can never push the counter past limit between a read and a write.
func (s *UsageStore) IncrementUsage(ctx context.Context, userID string, amount, limit int) (int, error) {
	if amount < 1 {
		return 0, ErrInvalidAmount
	}
	var used int
	err := s.db.QueryRowContext(ctx,
		`UPDATE usage_counters SET used = used + ?, updated_at = ?
		 WHERE user_id = ? AND used + ? <= ?
		 RETURNING used`,
		amount, time.Now().UTC(), userID, amount, limit,
	).Scan(&used)
	if err == nil {
		return used, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("increment usage: %w", err)
	}

	// Nothing updated: either the row is missing or the limit was hit.
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM usage_counters WHERE user_id = ?`, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("check usage row: %w", err)
	}
	return 0, ErrQuotaExceeded
}

func (s *UsageStore) ResetUsage(ctx context.Context, userID string, cycleExpiresAt time.Time) error {
	return resetUsage(ctx, s.db, userID, cycleExpiresAt)
}

func resetUsage(ctx context.Context, db execer, userID string, cycleExpiresAt time.Time) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`INSERT INTO usage_counters (user_id, used, cycle_started_at, cycle_expires_at, updated_at)
		 VALUES (?, 0, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   used = 0,
		   cycle_started_at = excluded.cycle_started_at,
		   cycle_expires_at = excluded.cycle_expires_at,
		   updated_at = excluded.updated_at`,
		userID, now, cycleExpiresAt.UTC(), now,
	)
	if err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	return nil
}
