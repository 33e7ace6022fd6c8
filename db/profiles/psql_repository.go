package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"opsboard/entity"
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) BusinessIDForUser(ctx context.Context, userID string) (string, error) {
	var businessID string
	err := r.db.GetContext(ctx, &businessID, `
		SELECT business_id FROM profiles WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", entity.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("could not get profile: %w", err)
	}
	return businessID, nil
}

func (r *PostgresRepository) Store(ctx context.Context, userID, businessID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, business_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET business_id = excluded.business_id
	`, userID, businessID)
	if err != nil {
		return fmt.Errorf("could not store profile: %w", err)
	}
	return nil
}
