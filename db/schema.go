package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id UUID PRIMARY KEY,
	business_id UUID NOT NULL
);

CREATE TABLE IF NOT EXISTS customers (
	customer_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	business_id UUID NOT NULL,
	full_name TEXT NOT NULL,
	email TEXT,
	phone TEXT,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS customers_business_idx ON customers (business_id);

CREATE TABLE IF NOT EXISTS bookings (
	booking_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	business_id UUID NOT NULL,
	customer_name TEXT NOT NULL,
	service TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'scheduled',
	notes TEXT,
	starts_at TIMESTAMPTZ NOT NULL,
	ends_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS bookings_business_idx ON bookings (business_id);

CREATE TABLE IF NOT EXISTS invoices (
	invoice_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	business_id UUID NOT NULL,
	customer_id UUID REFERENCES customers (customer_id) ON DELETE SET NULL,
	amount_cents BIGINT NOT NULL CHECK (amount_cents >= 0),
	currency TEXT NOT NULL DEFAULT 'usd',
	status TEXT NOT NULL DEFAULT 'draft',
	checkout_session_id TEXT,
	checkout_url TEXT,
	pdf_url TEXT,
	due_date TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS invoices_business_idx ON invoices (business_id);

CREATE TABLE IF NOT EXISTS tickets (
	ticket_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	business_id UUID NOT NULL,
	customer_id UUID REFERENCES customers (customer_id) ON DELETE SET NULL,
	subject TEXT NOT NULL,
	message TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'open',
	priority TEXT NOT NULL DEFAULT 'medium',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS tickets_business_idx ON tickets (business_id);

CREATE TABLE IF NOT EXISTS change_log (
	event_id UUID PRIMARY KEY,
	published_at TIMESTAMPTZ NOT NULL,
	table_name TEXT NOT NULL,
	kind TEXT NOT NULL,
	business_id TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	payload JSONB NOT NULL
);
`

func InitializeDatabaseSchema(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("could not initialize database schema: %w", err)
	}
	return nil
}
