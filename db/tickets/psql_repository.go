package tickets

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
	"opsboard/pubsub/outbox"
)

const allColumns = `ticket_id, business_id, customer_id, subject, message, status, priority, created_at, updated_at`

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type ticketRow struct {
	entity.Ticket
	RefCustomerID *string `db:"ref_customer_id"`
	RefFullName   *string `db:"ref_full_name"`
	RefEmail      *string `db:"ref_email"`
}

func (row ticketRow) toTicket() entity.Ticket {
	ticket := row.Ticket
	if row.RefCustomerID != nil && row.RefFullName != nil {
		ticket.Customer = &entity.CustomerRef{
			ID:       *row.RefCustomerID,
			FullName: *row.RefFullName,
			Email:    row.RefEmail,
		}
	}
	return ticket
}

// ListByBusiness returns tickets newest first with the customer join
// denormalized onto each row.
func (r *PostgresRepository) ListByBusiness(ctx context.Context, businessID string) ([]entity.Ticket, error) {
	var rows []ticketRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT t.ticket_id, t.business_id, t.customer_id, t.subject, t.message,
		       t.status, t.priority, t.created_at, t.updated_at,
		       c.customer_id AS ref_customer_id, c.full_name AS ref_full_name, c.email AS ref_email
		FROM tickets t
		LEFT JOIN customers c ON c.customer_id = t.customer_id
		WHERE t.business_id = $1
		ORDER BY t.created_at DESC
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("could not list tickets: %w", err)
	}

	tickets := make([]entity.Ticket, 0, len(rows))
	for _, row := range rows {
		tickets = append(tickets, row.toTicket())
	}
	return tickets, nil
}

func (r *PostgresRepository) Create(ctx context.Context, input entity.TicketInput) (ticket entity.Ticket, err error) {
	if input.Status == "" {
		input.Status = entity.TicketOpen
	}
	if input.Priority == "" {
		input.Priority = entity.PriorityMedium
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return entity.Ticket{}, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackErr := tx.Rollback()
			err = errors.Join(err, rollbackErr)
			return
		}
		err = tx.Commit()
	}()

	err = tx.GetContext(ctx, &ticket, `
		INSERT INTO tickets (business_id, customer_id, subject, message, status, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+allColumns,
		input.BusinessID, input.CustomerID, input.Subject, input.Message,
		input.Status, input.Priority,
	)
	if err != nil {
		return entity.Ticket{}, fmt.Errorf("could not create ticket: %w", err)
	}

	row, err := json.Marshal(ticket)
	if err != nil {
		return entity.Ticket{}, fmt.Errorf("could not marshal ticket: %w", err)
	}

	err = outbox.PublishChange(ctx, tx, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableTickets,
		Kind:       entity.ChangeInsert,
		BusinessID: ticket.BusinessID,
		EntityID:   ticket.ID,
		Row:        row,
	})
	if err != nil {
		return entity.Ticket{}, err
	}

	return ticket, nil
}

// Update stamps updated_at unconditionally; an empty patch still touches the
// row and still emits a change event.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch entity.TicketPatch) (ticket entity.Ticket, err error) {
	sets := []string{"updated_at = clock_timestamp()"}
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.CustomerID != nil {
		set("customer_id", *patch.CustomerID)
	}
	if patch.Subject != nil {
		set("subject", *patch.Subject)
	}
	if patch.Message != nil {
		set("message", *patch.Message)
	}
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.Priority != nil {
		set("priority", *patch.Priority)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return entity.Ticket{}, fmt.Errorf("could not begin transaction: %w", err)
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
	err = tx.GetContext(ctx, &ticket, fmt.Sprintf(`
		UPDATE tickets SET %s
		WHERE ticket_id = $%d
		RETURNING `+allColumns,
		strings.Join(sets, ", "), len(args),
	), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Ticket{}, entity.ErrNotFound
	}
	if err != nil {
		return entity.Ticket{}, fmt.Errorf("could not update ticket: %w", err)
	}

	partial := map[string]any{"updated_at": ticket.UpdatedAt.Format(time.RFC3339Nano)}
	if patch.CustomerID != nil {
		partial["customer_id"] = *patch.CustomerID
	}
	if patch.Subject != nil {
		partial["subject"] = *patch.Subject
	}
	if patch.Message != nil {
		partial["message"] = *patch.Message
	}
	if patch.Status != nil {
		partial["status"] = *patch.Status
	}
	if patch.Priority != nil {
		partial["priority"] = *patch.Priority
	}
	row, err := json.Marshal(partial)
	if err != nil {
		return entity.Ticket{}, fmt.Errorf("could not marshal ticket patch: %w", err)
	}

	err = outbox.PublishChange(ctx, tx, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableTickets,
		Kind:       entity.ChangeUpdate,
		BusinessID: ticket.BusinessID,
		EntityID:   ticket.ID,
		Row:        row,
	})
	if err != nil {
		return entity.Ticket{}, err
	}

	return ticket, nil
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
		DELETE FROM tickets
		WHERE ticket_id = $1
		RETURNING business_id
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("could not delete ticket: %w", err)
	}

	return outbox.PublishChange(ctx, tx, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableTickets,
		Kind:       entity.ChangeDelete,
		BusinessID: businessID,
		EntityID:   id,
	})
}
