package customers

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

const allColumns = `customer_id, business_id, full_name, email, phone, notes, created_at`

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListByBusiness(ctx context.Context, businessID string) ([]entity.Customer, error) {
	var customers []entity.Customer
	err := r.db.SelectContext(ctx, &customers, `
		SELECT `+allColumns+`
		FROM customers
		WHERE business_id = $1
		ORDER BY full_name ASC
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("could not list customers: %w", err)
	}
	return customers, nil
}

func (r *PostgresRepository) Create(ctx context.Context, input entity.CustomerInput) (customer entity.Customer, err error) {
	if input.FullName == "" {
		return entity.Customer{}, fmt.Errorf("full name is required")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return entity.Customer{}, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackErr := tx.Rollback()
			err = errors.Join(err, rollbackErr)
			return
		}
		err = tx.Commit()
	}()

	err = tx.GetContext(ctx, &customer, `
		INSERT INTO customers (business_id, full_name, email, phone, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+allColumns,
		input.BusinessID, input.FullName, input.Email, input.Phone, input.Notes,
	)
	if err != nil {
		return entity.Customer{}, fmt.Errorf("could not create customer: %w", err)
	}

	row, err := json.Marshal(customer)
	if err != nil {
		return entity.Customer{}, fmt.Errorf("could not marshal customer: %w", err)
	}

	err = outbox.PublishChange(ctx, tx, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableCustomers,
		Kind:       entity.ChangeInsert,
		BusinessID: customer.BusinessID,
		EntityID:   customer.ID,
		Row:        row,
	})
	if err != nil {
		return entity.Customer{}, err
	}

	return customer, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, patch entity.CustomerPatch) (customer entity.Customer, err error) {
	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.FullName != nil {
		set("full_name", *patch.FullName)
	}
	if patch.Email != nil {
		set("email", *patch.Email)
	}
	if patch.Phone != nil {
		set("phone", *patch.Phone)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}

	if len(sets) == 0 {
		return r.get(ctx, id)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return entity.Customer{}, fmt.Errorf("could not begin transaction: %w", err)
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
	err = tx.GetContext(ctx, &customer, fmt.Sprintf(`
		UPDATE customers SET %s
		WHERE customer_id = $%d
		RETURNING `+allColumns,
		strings.Join(sets, ", "), len(args),
	), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Customer{}, entity.ErrNotFound
	}
	if err != nil {
		return entity.Customer{}, fmt.Errorf("could not update customer: %w", err)
	}

	row, err := json.Marshal(patch)
	if err != nil {
		return entity.Customer{}, fmt.Errorf("could not marshal customer patch: %w", err)
	}

	err = outbox.PublishChange(ctx, tx, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableCustomers,
		Kind:       entity.ChangeUpdate,
		BusinessID: customer.BusinessID,
		EntityID:   customer.ID,
		Row:        row,
	})
	if err != nil {
		return entity.Customer{}, err
	}

	return customer, nil
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
		DELETE FROM customers
		WHERE customer_id = $1
		RETURNING business_id
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("could not delete customer: %w", err)
	}

	return outbox.PublishChange(ctx, tx, entity.Change{
		Header:     entity.NewEventHeader(),
		Table:      entity.TableCustomers,
		Kind:       entity.ChangeDelete,
		BusinessID: businessID,
		EntityID:   id,
	})
}

func (r *PostgresRepository) get(ctx context.Context, id string) (entity.Customer, error) {
	var customer entity.Customer
	err := r.db.GetContext(ctx, &customer, `
		SELECT `+allColumns+` FROM customers WHERE customer_id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Customer{}, entity.ErrNotFound
	}
	if err != nil {
		return entity.Customer{}, fmt.Errorf("could not get customer: %w", err)
	}
	return customer, nil
}
