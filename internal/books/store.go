package books

import (
	"context"
	"database/sql"
	"errors"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/jmoiron/sqlx"

	"library-backend/internal/platform/db"
)

var dialect = goqu.Dialect("mysql")

const bookColumns = `id, title, author, genre, total_copies, available_copies, version, created_at, updated_at`

type Store struct{ db *sqlx.DB }

func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

func (s *Store) List(ctx context.Context) ([]Book, error) {
	q := `SELECT ` + bookColumns + ` FROM books ORDER BY created_at, id`
	out := []Book{}
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &out, q)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, b *Book) error {
	const q = `
INSERT INTO books (id, title, author, genre, total_copies, available_copies, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`
	_, err := s.db.ExecContext(ctx, q,
		b.ID, b.Title, b.Author, b.Genre, b.TotalCopies, b.AvailableCopies, b.Version, b.CreatedAt, b.UpdatedAt)
	return err
}

// Delete reports false when no row had the id.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindForUpdate reads a book and locks its row until the surrounding transaction
// ends. It returns nil, nil when the id is unknown.
func FindForUpdate(ctx context.Context, q db.DBTX, id string) (*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = ? FOR UPDATE`
	var b Book
	err := sqlx.GetContext(ctx, q, &b, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Save writes every mutable column if the stored version still equals b.Version,
// then bumps b.Version. false means another writer got there first.
func Save(ctx context.Context, q db.DBTX, b *Book) (bool, error) {
	var genre any
	if b.Genre != nil {
		genre = *b.Genre
	}
	query, args, err := dialect.Update("books").
		Prepared(true).
		Set(goqu.Record{
			"title":            b.Title,
			"author":           b.Author,
			"genre":            genre,
			"total_copies":     b.TotalCopies,
			"available_copies": b.AvailableCopies,
			"version":          b.Version + 1,
			"updated_at":       b.UpdatedAt,
		}).
		Where(goqu.Ex{"id": b.ID, "version": b.Version}).
		ToSQL()
	if err != nil {
		return false, err
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, nil
	}
	b.Version++
	return true, nil
}
