package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the persistence port of the customer workflow. The Postgres
// implementation below is used in production; tests substitute an in-memory
// fake.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
	List(ctx context.Context) ([]*Customer, error)
	Create(ctx context.Context, ownerID, name, email, imageURL string) (*Customer, error)
	Update(ctx context.Context, id, name, email string, imageURL *string) (*Customer, error)
	Delete(ctx context.Context, id string) error
	// EmailTaken reports whether any customer other than excludeID uses the
	// email. Pass excludeID="" on create.
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
}

var _ Repository = (*PostgresRepository)(nil)

// PostgresRepository handles all customer database operations.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgresRepository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const customerColumns = `id, owner_id, name, email, image_url, created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	c := &Customer{}
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Email, &c.ImageURL, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByID fetches a customer by its UUID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer by id: %w", err)
	}
	return c, nil
}

// List returns all customers, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]*Customer, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+customerColumns+` FROM customers ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var out []*Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Create inserts a new customer and returns the created record.
func (r *PostgresRepository) Create(ctx context.Context, ownerID, name, email, imageURL string) (*Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx,
		`INSERT INTO customers (owner_id, name, email, image_url)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+customerColumns,
		ownerID, name, email, imageURL,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}

// Update overwrites the mutable columns of a customer row.
func (r *PostgresRepository) Update(ctx context.Context, id, name, email string, imageURL *string) (*Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx,
		`UPDATE customers
		 SET name = $2, email = $3, image_url = $4, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+customerColumns,
		id, name, email, imageURL,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("update customer: %w", err)
	}
	return c, nil
}

// Delete removes a customer row.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// EmailTaken reports whether the email is used by a customer other than excludeID.
func (r *PostgresRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM customers WHERE email = $1)`
	args := []any{email}
	if excludeID != "" {
		query = `SELECT EXISTS(SELECT 1 FROM customers WHERE email = $1 AND id <> $2)`
		args = append(args, excludeID)
	}

	var taken bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&taken); err != nil {
		return false, fmt.Errorf("check email uniqueness: %w", err)
	}
	return taken, nil
}

// isUniqueViolation checks whether an error is a PostgreSQL unique_violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
