package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// RegisterCustomer creates an account. Email and phone must be unique;
// a clash returns ErrDuplicate. The password is stored as a bcrypt hash.
func (s *Store) RegisterCustomer(ctx context.Context, reg Registration) (*Customer, error) {
	reg.Email = strings.TrimSpace(reg.Email)
	reg.Phone = strings.TrimSpace(reg.Phone)
	if reg.Email == "" || reg.Phone == "" || reg.Password == "" {
		return nil, fmt.Errorf("register customer: email, phone and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	c := &Customer{
		Username:     reg.Username,
		PasswordHash: string(hash),
		Email:        reg.Email,
		Phone:        reg.Phone,
		Address:      reg.Address,
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if taken, err := s.customerExists(ctx, tx, "email", c.Email); err != nil {
			return err
		} else if taken {
			return fmt.Errorf("email %s: %w", c.Email, ErrDuplicate)
		}
		if taken, err := s.customerExists(ctx, tx, "phone", c.Phone); err != nil {
			return err
		} else if taken {
			return fmt.Errorf("phone number %s: %w", c.Phone, ErrDuplicate)
		}

		return tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO customers (username, password_hash, email, phone, address)
			VALUES (?, ?, ?, ?, ?)
			RETURNING customer_id`),
			c.Username, c.PasswordHash, c.Email, c.Phone, c.Address,
		).Scan(&c.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("register customer: %w", err)
	}

	s.logger.Info("customer registered", "customer_id", c.ID)
	return c, nil
}

// customerExists checks a unique column. column is never user input.
func (s *Store) customerExists(ctx context.Context, q queryer, column, value string) (bool, error) {
	var id int64
	err := q.QueryRowContext(ctx, s.rebind(
		`SELECT customer_id FROM customers WHERE `+column+` = ?`), value).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check %s: %w", column, err)
	}
	return true, nil
}

// Login returns the customer with the given email if password matches.
func (s *Store) Login(ctx context.Context, email, password string) (*Customer, error) {
	c, err := s.scanCustomer(s.db.QueryRowContext(ctx, s.rebind(`
		SELECT customer_id, username, password_hash, email, phone, address
		FROM customers WHERE email = ?`), strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("login %s: %w", email, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("login %s: %w", email, ErrBadCredentials)
	}
	return c, nil
}

// GetCustomer returns a customer by id.
func (s *Store) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	c, err := s.scanCustomer(s.db.QueryRowContext(ctx, s.rebind(`
		SELECT customer_id, username, password_hash, email, phone, address
		FROM customers WHERE customer_id = ?`), id))
	if err != nil {
		return nil, fmt.Errorf("customer %d: %w", id, err)
	}
	return c, nil
}

func (s *Store) scanCustomer(row *sql.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Username, &c.PasswordHash, &c.Email, &c.Phone, &c.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCustomer changes the non-empty fields of upd. A new phone number
// must not belong to another customer.
func (s *Store) UpdateCustomer(ctx context.Context, id int64, upd CustomerUpdate) error {
	var (
		sets []string
		args []any
	)
	if v := strings.TrimSpace(upd.FullName); v != "" {
		sets = append(sets, "username = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(upd.Address); v != "" {
		sets = append(sets, "address = ?")
		args = append(args, v)
	}
	phone := strings.TrimSpace(upd.Phone)
	if phone != "" {
		sets = append(sets, "phone = ?")
		args = append(args, phone)
	}
	if len(sets) == 0 {
		return ErrNothingToUpdate
	}
	args = append(args, id)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if phone != "" {
			var owner int64
			err := tx.QueryRowContext(ctx, s.rebind(
				`SELECT customer_id FROM customers WHERE phone = ?`), phone).Scan(&owner)
			switch {
			case err == nil && owner != id:
				return fmt.Errorf("phone number %s: %w", phone, ErrDuplicate)
			case err != nil && !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("check phone: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE customers SET `+strings.Join(sets, ", ")+` WHERE customer_id = ?`), args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update customer %d: %w", id, err)
	}
	return nil
}
