// Package users handles CRUD for the users table.
package users

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rationly/rationbot/internal/domain"
)

// Store handles CRUD for the users table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = `user_id, COALESCE(username,''), COALESCE(first_name,''),
	paid_main, paid_fmd, paid_bundle, paid_dry,
	payment_requested_main, payment_requested_fmd, payment_requested_bundle, payment_requested_dry,
	created_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.FirstName,
		&u.PaidMain, &u.PaidFMD, &u.PaidBundle, &u.PaidDry,
		&u.PaymentRequestedMain, &u.PaymentRequestedFMD, &u.PaymentRequestedBundle, &u.PaymentRequestedDry,
		&u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Upsert creates the user on first contact or refreshes the display fields.
// Paid flags are never touched here.
func (s *Store) Upsert(ctx context.Context, id int64, username, firstName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, username, first_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name`,
		id, username, firstName)
	return err
}

// Get returns the user, or nil if unknown.
func (s *Store) Get(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// paidColumn maps a product to its flag column. The switch keeps raw input
// out of the SQL text.
func paidColumn(p domain.Product) (string, error) {
	switch p {
	case domain.ProductMain:
		return "paid_main", nil
	case domain.ProductFMD:
		return "paid_fmd", nil
	case domain.ProductBundle:
		return "paid_bundle", nil
	case domain.ProductDry:
		return "paid_dry", nil
	}
	return "", fmt.Errorf("unknown product %q", p)
}

func requestedColumn(p domain.Product) (string, error) {
	col, err := paidColumn(p)
	if err != nil {
		return "", err
	}
	return "payment_requested_" + col[len("paid_"):], nil
}

// SetPaid flips the product's paid flag. Only the payment workflow calls this.
func (s *Store) SetPaid(ctx context.Context, id int64, product domain.Product, paid bool) error {
	col, err := paidColumn(product)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET `+col+` = $1 WHERE user_id = $2`, paid, id)
	return err
}

// HasPaid reports whether the user has paid for the product.
func (s *Store) HasPaid(ctx context.Context, id int64, product domain.Product) (bool, error) {
	col, err := paidColumn(product)
	if err != nil {
		return false, err
	}
	var paid bool
	err = s.db.QueryRowContext(ctx,
		`SELECT `+col+` FROM users WHERE user_id = $1`, id).Scan(&paid)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return paid, err
}

// MarkPaymentRequested stamps the product's payment-requested timestamp.
func (s *Store) MarkPaymentRequested(ctx context.Context, id int64, product domain.Product) error {
	col, err := requestedColumn(product)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET `+col+` = NOW() WHERE user_id = $1`, id)
	return err
}
