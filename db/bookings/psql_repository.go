package bookings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"opsboard/entity"
	"opsboard/pubsub/outbox"
)

const allColumns = `booking_id, business_id, customer_name, service, status, notes, starts_at, ends_at, created_at`

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListByBusiness orders by start time ascending; the calendar views rely on
// this ordering.
func (r *PostgresRepository) ListByBusiness(ctx context.Context, businessID string) ([]entity.Booking, error) {
	var bookings []entity.Booking
	err := r.db.SelectContext(ctx, &bookings, `
		SELECT `+allColumns+`
		FROM bookings
		WHERE business_id = $1
		ORDER BY starts_at ASC
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("could not list bookings: %w", err)
	}
	return bookings, nil
}

// Create stores the booking and appends an insert change event in one
// transaction. Generated fields (id, created_at) come from the database.
func (r *PostgresRepository) Create(ctx context.Context, input entity.BookingInput) (booking entity.Booking, err error) {
	if input.Status == "" {
		input.Status = entity.BookingScheduled
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return entity.Booking{}, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackErr := tx.Rollback()
			err = errors.Join(err, rollbackErr)
			return
		}
		err = tx.Commit()
	}()

	err = tx.GetContext(ctx, &booking, `
		INSERT INTO bookings (business_id, customer_name, service, status, notes, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+allColumns,
		input.BusinessID, input.CustomerName, input.Service, input.Status,
		input.Notes, input.StartsAt, input.EndsAt,
	)
	if err != nil {
		return entity.Booking{}, fmt.Errorf("could not create booking: %w", err)
	}

	row, err := json.Marshal(booking)
	if err != nil {
		return entity.Booking{}, fmt.Errorf("could not marshal booking: %w", err)
	}

	err = outbox.PublishChange(ctx, tx, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableBookings,
		Kind:       entity.ChangeInsert,
		BusinessID: booking.BusinessID,
		EntityID:   booking.ID,
		Row:        row,
	})
	if err != nil {
		return entity.Booking{}, err
	}

	return booking, nil
}

// Update applies a partial patch; the emitted change event carries only the
// touched columns.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch entity.BookingPatch) (booking entity.Booking, err error) {
	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.CustomerName != nil {
		set("customer_name", *patch.CustomerName)
	}
	if patch.Service != nil {
		set("service", *patch.Service)
	}
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	if patch.StartsAt != nil {
		set("starts_at", *patch.StartsAt)
	}
	if patch.EndsAt != nil {
		set("ends_at", *patch.EndsAt)
	}

	if len(sets) == 0 {
		return r.get(ctx, id)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return entity.Booking{}, fmt.Errorf("could not begin transaction: %w", err)
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
	err = tx.GetContext(ctx, &booking, fmt.Sprintf(`
		UPDATE bookings SET %s
		WHERE booking_id = $%d
		RETURNING `+allColumns,
		strings.Join(sets, ", "), len(args),
	), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Booking{}, entity.ErrNotFound
	}
	if err != nil {
		return entity.Booking{}, fmt.Errorf("could not update booking: %w", err)
	}

	row, err := json.Marshal(patch)
	if err != nil {
		return entity.Booking{}, fmt.Errorf("could not marshal booking patch: %w", err)
	}

	err = outbox.PublishChange(ctx, tx, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableBookings,
		Kind:       entity.ChangeUpdate,
		BusinessID: booking.BusinessID,
		EntityID:   booking.ID,
		Row:        row,
	})
	if err != nil {
		return entity.Booking{}, err
	}

	return booking, nil
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
		DELETE FROM bookings
		WHERE booking_id = $1
		RETURNING business_id
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("could not delete booking: %w", err)
	}

	return outbox.PublishChange(ctx, tx, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableBookings,
		Kind:       entity.ChangeDelete,
		BusinessID: businessID,
		EntityID:   id,
	})
}

func (r *PostgresRepository) get(ctx context.Context, id string) (entity.Booking, error) {
	var booking entity.Booking
	err := r.db.GetContext(ctx, &booking, `
		SELECT `+allColumns+` FROM bookings WHERE booking_id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Booking{}, entity.ErrNotFound
	}
	if err != nil {
		return entity.Booking{}, fmt.Errorf("could not get booking: %w", err)
	}
	return booking, nil
}
