package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"library-backend/internal/platform/db"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
}

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
}

type Store struct{ db *sqlx.DB }

func NewStore(db *sqlx.DB) UserStore {
	return &Store{db: db}
}

// GetByEmail returns nil, nil when no user has the address.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	const q = `
SELECT id, name, email, password_hash, role, created_at
FROM users
WHERE email = ?
LIMIT 1
`
	var u User
	err := s.db.GetContext(ctx, &u, q, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) Create(ctx context.Context, u *User) error {
	const q = `
INSERT INTO users (id, name, email, password_hash, role, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`
	_, err := s.db.ExecContext(ctx, q, u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.CreatedAt)
	if db.IsDuplicateKey(err) {
		return ErrAlreadyExists
	}
	return err
}
