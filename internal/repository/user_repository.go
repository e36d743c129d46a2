package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/market-stall-booking/internal/model"
	"github.com/iliyamo/market-stall-booking/internal/utils"
)

// UserRepo reads and writes the `users` table.  The credit column is only
// changed through the *Tx methods so every balance change happens inside
// the caller's transaction.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// DB exposes the handle so services can begin transactions.
func (r *UserRepo) DB() *sql.DB { return r.db }

const userColumns = "id, username, password_hash, role, credit, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Credit, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrUserNotFound
	}
	return u, err
}

// Create hashes password and inserts a user with zero credit.
func (r *UserRepo) Create(ctx context.Context, username, password, role string, cost int) (uint64, error) {
	username = strings.TrimSpace(username)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, role, credit) VALUES (?, ?, ?, 0)",
		username, hash, role)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrUsernameExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByUsername fetches a user by exact username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ? LIMIT 1", strings.TrimSpace(username)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id))
}

// GetTx is GetByID inside tx.
func (r *UserRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.User, error) {
	return scanUser(tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id))
}

// balanceTx reads the current credit of a user inside tx.
func (r *UserRepo) balanceTx(ctx context.Context, tx *sql.Tx, id uint64) (int64, error) {
	var credit int64
	err := tx.QueryRowContext(ctx, "SELECT credit FROM users WHERE id = ?", id).Scan(&credit)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	return credit, err
}

// CreditTx adds amount to the user's balance and returns the new balance.
// amount must be non-negative.
func (r *UserRepo) CreditTx(ctx context.Context, tx *sql.Tx, id uint64, amount int64) (int64, error) {
	if amount < 0 {
		return 0, errors.New("credit amount must be non-negative")
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET credit = credit + ? WHERE id = ?", amount, id); err != nil {
		return 0, err
	}
	// MySQL reports zero affected rows for a zero amount, so existence is
	// checked by reading the balance back.
	return r.balanceTx(ctx, tx, id)
}

// DebitTx subtracts amount in a single conditional update so the balance
// can never go negative.  It returns ErrInsufficientFunds when the balance
// is smaller than amount, and the new balance otherwise.
func (r *UserRepo) DebitTx(ctx context.Context, tx *sql.Tx, id uint64, amount int64) (int64, error) {
	if amount < 0 {
		return 0, errors.New("debit amount must be non-negative")
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE users SET credit = credit - ? WHERE id = ? AND credit >= ?", amount, id, amount)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	balance, err := r.balanceTx(ctx, tx, id)
	if err != nil {
		return 0, err
	}
	if n == 0 && balance < amount {
		return balance, ErrInsufficientFunds
	}
	return balance, nil
}

// SetCreditTx overwrites the user's balance.  balance must be non-negative.
func (r *UserRepo) SetCreditTx(ctx context.Context, tx *sql.Tx, id uint64, balance int64) error {
	if balance < 0 {
		return errors.New("balance must be non-negative")
	}
	if _, err := tx.ExecContext(ctx, "UPDATE users SET credit = ? WHERE id = ?", balance, id); err != nil {
		return err
	}
	_, err := r.balanceTx(ctx, tx, id)
	return err
}

// Count returns the number of registered users.
func (r *UserRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}

// List returns all users ordered by id.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// isUniqueViolation recognises duplicate-key errors from MySQL (1062) and
// SQLite.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "1062") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "unique constraint failed")
}
