package invoices

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"opsboard/entity"
	"opsboard/pubsub/bus"
	"opsboard/pubsub/outbox"
)

const allColumns = `invoice_id, business_id, customer_id, amount_cents, currency, status, checkout_session_id, checkout_url, pdf_url, due_date, created_at`

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// invoiceRow carries the denormalized customer columns of the join.
type invoiceRow struct {
	entity.Invoice
	RefCustomerID *string `db:"ref_customer_id"`
	RefFullName   *string `db:"ref_full_name"`
	RefEmail      *string `db:"ref_email"`
}

func (row invoiceRow) toInvoice(now time.Time) entity.Invoice {
	invoice := row.Invoice
	if row.RefCustomerID != nil && row.RefFullName != nil {
		invoice.Customer = &entity.CustomerRef{
			ID:       *row.RefCustomerID,
			FullName: *row.RefFullName,
			Email:    row.RefEmail,
		}
	}
	// overdue is derived at read time, never stored
	invoice.Status = invoice.EffectiveStatus(now)
	return invoice
}

const joinedSelect = `
	SELECT i.invoice_id, i.business_id, i.customer_id, i.amount_cents, i.currency,
	       i.status, i.checkout_session_id, i.checkout_url, i.pdf_url, i.due_date, i.created_at,
	       c.customer_id AS ref_customer_id, c.full_name AS ref_full_name, c.email AS ref_email
	FROM invoices i
	LEFT JOIN customers c ON c.customer_id = i.customer_id
`

// ListByBusiness returns invoices newest first with the customer join
// denormalized onto each row; change events do not carry the joined fields,
// so synchronizers re-call this after every event.
func (r *PostgresRepository) ListByBusiness(ctx context.Context, businessID string) ([]entity.Invoice, error) {
	var rows []invoiceRow
	err := r.db.SelectContext(ctx, &rows, joinedSelect+`
		WHERE i.business_id = $1
		ORDER BY i.created_at DESC
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("could not list invoices: %w", err)
	}

	now := time.Now()
	invoices := make([]entity.Invoice, 0, len(rows))
	for _, row := range rows {
		invoices = append(invoices, row.toInvoice(now))
	}
	return invoices, nil
}

func (r *PostgresRepository) GetWithCustomer(ctx context.Context, id string) (entity.Invoice, error) {
	var row invoiceRow
	err := r.db.GetContext(ctx, &row, joinedSelect+`
		WHERE i.invoice_id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Invoice{}, entity.ErrNotFound
	}
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("could not get invoice: %w", err)
	}
	return row.toInvoice(time.Now()), nil
}

func (r *PostgresRepository) Create(ctx context.Context, input entity.InvoiceInput) (invoice entity.Invoice, err error) {
	if input.AmountCents < 0 {
		return entity.Invoice{}, fmt.Errorf("amount must not be negative")
	}
	input.Currency = entity.NormalizeCurrency(input.Currency)
	if input.Status == "" {
		input.Status = entity.InvoiceDraft
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackErr := tx.Rollback()
			err = errors.Join(err, rollbackErr)
			return
		}
		err = tx.Commit()
	}()

	err = tx.GetContext(ctx, &invoice, `
		INSERT INTO invoices (business_id, customer_id, amount_cents, currency, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+allColumns,
		input.BusinessID, input.CustomerID, input.AmountCents,
		input.Currency, input.Status, input.DueDate,
	)
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("could not create invoice: %w", err)
	}

	row, err := json.Marshal(invoice)
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("could not marshal invoice: %w", err)
	}

	err = outbox.PublishChange(ctx, tx, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableInvoices,
		Kind:       entity.ChangeInsert,
		BusinessID: invoice.BusinessID,
		EntityID:   invoice.ID,
		Row:        row,
	})
	if err != nil {
		return entity.Invoice{}, err
	}

	return invoice, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, patch entity.InvoicePatch) (invoice entity.Invoice, err error) {
	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.CustomerID != nil {
		set("customer_id", *patch.CustomerID)
	}
	if patch.AmountCents != nil {
		if *patch.AmountCents < 0 {
			return entity.Invoice{}, fmt.Errorf("amount must not be negative")
		}
		set("amount_cents", *patch.AmountCents)
	}
	if patch.Currency != nil {
		set("currency", entity.NormalizeCurrency(*patch.Currency))
	}
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.DueDate != nil {
		set("due_date", *patch.DueDate)
	}

	if len(sets) == 0 {
		return r.GetWithCustomer(ctx, id)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackErr := tx.Rollback()
			err = errors.Join(err, rollbackErr)
			return
		}
		err = tx.Commit()
	}()

	args = append(args, id)
	err = tx.GetContext(ctx, &invoice, fmt.Sprintf(`
		UPDATE invoices SET %s
		WHERE invoice_id = $%d
		RETURNING `+allColumns,
		strings.Join(sets, ", "), len(args),
	), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Invoice{}, entity.ErrNotFound
	}
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("could not update invoice: %w", err)
	}

	row, err := json.Marshal(patch)
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("could not marshal invoice patch: %w", err)
	}

	err = outbox.PublishChange(ctx, tx, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableInvoices,
		Kind:       entity.ChangeUpdate,
		BusinessID: invoice.BusinessID,
		EntityID:   invoice.ID,
		Row:        row,
	})
	if err != nil {
		return entity.Invoice{}, err
	}

	return invoice, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackErr := tx.Rollback()
			err = errors.Join(err, rollbackErr)
			return
		}
		err = tx.Commit()
	}()

	var businessID string
	err = tx.GetContext(ctx, &businessID, `
		DELETE FROM invoices
		WHERE invoice_id = $1
		RETURNING business_id
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("could not delete invoice: %w", err)
	}

	return outbox.PublishChange(ctx, tx, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableInvoices,
		Kind:       entity.ChangeDelete,
		BusinessID: businessID,
		EntityID:   id,
	})
}

// RecordCheckoutSession transitions draft -> sent and persists the external
// session, atomically with the change and domain events.
func (r *PostgresRepository) RecordCheckoutSession(ctx context.Context, id, sessionID, checkoutURL string) (invoice entity.Invoice, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackErr := tx.Rollback()
			err = errors.Join(err, rollbackErr)
			return
		}
		err = tx.Commit()
	}()

	err = tx.GetContext(ctx, &invoice, `
		UPDATE invoices
		SET status = $2, checkout_session_id = $3, checkout_url = $4
		WHERE invoice_id = $1
		RETURNING `+allColumns,
		id, entity.InvoiceSent, sessionID, checkoutURL,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Invoice{}, entity.ErrNotFound
	}
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("could not record checkout session: %w", err)
	}

	row, err := json.Marshal(map[string]any{
		"status":              entity.InvoiceSent,
		"checkout_session_id": sessionID,
		"checkout_url":        checkoutURL,
	})
	if err != nil {
		return entity.Invoice{}, err
	}

	err = outbox.PublishChange(ctx, tx, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableInvoices,
		Kind:       entity.ChangeUpdate,
		BusinessID: invoice.BusinessID,
		EntityID:   invoice.ID,
		Row:        row,
	})
	if err != nil {
		return entity.Invoice{}, err
	}

	eventBus, err := bus.NewEventBusForTx(ctx, tx)
	if err != nil {
		return entity.Invoice{}, err
	}

	err = eventBus.Publish(ctx, entity.InvoiceCheckoutStarted{
		Header:            entity.NewEventHeaderWithIdempotencyKey(sessionID),
		InvoiceID:         invoice.ID,
		BusinessID:        invoice.BusinessID,
		CheckoutSessionID: sessionID,
		CheckoutURL:       checkoutURL,
		AmountCents:       invoice.AmountCents,
		Currency:          invoice.Currency,
	})
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("could not publish event: %w", err)
	}

	return invoice, nil
}

// MarkPaid is idempotent under at-least-once webhook delivery: the first call
// transitions to paid and emits events, replays find the invoice already paid
// and do nothing.
func (r *PostgresRepository) MarkPaid(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackErr := tx.Rollback()
			err = errors.Join(err, rollbackErr)
			return
		}
		err = tx.Commit()
	}()

	var businessID string
	err = tx.GetContext(ctx, &businessID, `
		UPDATE invoices
		SET status = $2
		WHERE invoice_id = $1 AND status <> $2
		RETURNING business_id
	`, id, entity.InvoicePaid)
	if errors.Is(err, sql.ErrNoRows) {
		// already paid, or gone
		var exists bool
		err = tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM invoices WHERE invoice_id = $1)`, id)
		if err != nil {
			return fmt.Errorf("could not check invoice: %w", err)
		}
		if !exists {
			return entity.ErrNotFound
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not mark invoice paid: %w", err)
	}

	row, err := json.Marshal(map[string]any{"status": entity.InvoicePaid})
	if err != nil {
		return err
	}

	err = outbox.PublishChange(ctx, tx, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableInvoices,
		Kind:       entity.ChangeUpdate,
		BusinessID: businessID,
		EntityID:   id,
		Row:        row,
	})
	if err != nil {
		return err
	}

	eventBus, err := bus.NewEventBusForTx(ctx, tx)
	if err != nil {
		return err
	}

	err = eventBus.Publish(ctx, entity.InvoiceMarkedPaid{
		Header:     entity.NewEventHeaderWithIdempotencyKey(id),
		InvoiceID:  id,
		BusinessID: businessID,
	})
	if err != nil {
		return fmt.Errorf("could not publish event: %w", err)
	}

	return nil
}
