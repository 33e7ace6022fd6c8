package changelog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Entry is one audited change-stream event.
type Entry struct {
	EventID     string          `json:"event_id" db:"event_id"`
	PublishedAt time.Time       `json:"published_at" db:"published_at"`
	TableName   string          `json:"table_name" db:"table_name"`
	Kind        string          `json:"kind" db:"kind"`
	BusinessID  string          `json:"business_id" db:"business_id"`
	EntityID    string          `json:"entity_id" db:"entity_id"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
}

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Store is idempotent under redelivery.
func (r *PostgresRepository) Store(ctx context.Context, entry Entry) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO change_log (event_id, published_at, table_name, kind, business_id, entity_id, payload)
		VALUES (:event_id, :published_at, :table_name, :kind, :business_id, :entity_id, :payload)
		ON CONFLICT DO NOTHING
	`, entry)
	if err != nil {
		return fmt.Errorf("could not store change log entry: %w", err)
	}
	return nil
}

// ByBusiness returns the tenant's audit trail, oldest event first.
func (r *PostgresRepository) ByBusiness(ctx context.Context, businessID string) ([]Entry, error) {
	var entries []Entry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT event_id, published_at, table_name, kind, business_id, entity_id, payload
		FROM change_log
		WHERE business_id = $1
		ORDER BY published_at ASC
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("could not list change log entries: %w", err)
	}
	return entries, nil
}
