package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/prospector/internal/model"
)

type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

func scanAccount(scanner interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	err := scanner.Scan(&a.UserID, &a.Email, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const accountCols = `user_id, email, created_at`

// UpsertAccount records the user and refreshes the email when a non-empty
// one is given.
func (s *AccountStore) UpsertAccount(ctx context.Context, userID, email string) (*model.Account, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, email) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   email = CASE WHEN excluded.email != '' THEN excluded.email ELSE accounts.email END`,
		userID, email,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert account: %w", err)
	}
	return s.GetAccount(ctx, userID)
}

func (s *AccountStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE user_id = ?`, userID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}
