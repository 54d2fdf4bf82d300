package borrows

import (
	"context"
	"database/sql"
	"errors"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/jmoiron/sqlx"

	"library-backend/internal/books"
	"library-backend/internal/platform/db"
)

var dialect = goqu.Dialect("mysql")

const borrowColumns = `id, user_id, book_id, borrow_date, return_date, status, version, created_at, updated_at`

type Store struct{ db *sqlx.DB }

func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// ledger transactions read committed data on every statement; the row locks
// taken by FindBookByID and FindBorrowByID do the serializing.
var ledgerTxOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return db.RunInTx(ctx, s.db, ledgerTxOptions, func(ctx context.Context, tx *sqlx.Tx) error {
		return fn(ctx, &mysqlTx{q: tx})
	})
}

func (s *Store) GetBorrow(ctx context.Context, id string) (*Borrow, error) {
	return getBorrow(ctx, s.db, `SELECT `+borrowColumns+` FROM borrows WHERE id = ?`, id)
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]Detail, error) {
	ds := listDataset(false).Where(goqu.I("br.user_id").Eq(userID))
	return s.list(ctx, ds)
}

func (s *Store) ListAll(ctx context.Context) ([]Detail, error) {
	return s.list(ctx, listDataset(true))
}

// listRow is one joined row; the book and user columns are NULL when the
// referenced row is gone.
type listRow struct {
	Borrow
	BookTitle     sql.NullString `db:"book_title"`
	BookAuthor    sql.NullString `db:"book_author"`
	BookGenre     sql.NullString `db:"book_genre"`
	BookTotal     sql.NullInt64  `db:"book_total_copies"`
	BookAvailable sql.NullInt64  `db:"book_available_copies"`
	UserName      sql.NullString `db:"user_name"`
	UserEmail     sql.NullString `db:"user_email"`
}

func listDataset(withUser bool) *goqu.SelectDataset {
	cols := []any{
		goqu.I("br.id").As("id"),
		goqu.I("br.user_id").As("user_id"),
		goqu.I("br.book_id").As("book_id"),
		goqu.I("br.borrow_date").As("borrow_date"),
		goqu.I("br.return_date").As("return_date"),
		goqu.I("br.status").As("status"),
		goqu.I("br.version").As("version"),
		goqu.I("br.created_at").As("created_at"),
		goqu.I("br.updated_at").As("updated_at"),
		goqu.I("b.title").As("book_title"),
		goqu.I("b.author").As("book_author"),
		goqu.I("b.genre").As("book_genre"),
		goqu.I("b.total_copies").As("book_total_copies"),
		goqu.I("b.available_copies").As("book_available_copies"),
	}

	ds := dialect.From(goqu.T("borrows").As("br")).
		Prepared(true).
		LeftJoin(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("br.book_id"))))
	if withUser {
		ds = ds.LeftJoin(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("br.user_id"))))
		cols = append(cols, goqu.I("u.name").As("user_name"), goqu.I("u.email").As("user_email"))
	}
	return ds.Select(cols...).Order(goqu.I("br.borrow_date").Desc(), goqu.I("br.id").Desc())
}

func (s *Store) list(ctx context.Context, ds *goqu.SelectDataset) ([]Detail, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}

	var rows []listRow
	err = db.ReadOnly(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, query, args...)
	})
	if err != nil {
		return nil, err
	}

	out := make([]Detail, 0, len(rows))
	for _, r := range rows {
		d := Detail{Borrow: r.Borrow}
		if r.BookTitle.Valid {
			d.Book = &BookSummary{
				ID:              r.BookID,
				Title:           r.BookTitle.String,
				Author:          r.BookAuthor.String,
				TotalCopies:     int(r.BookTotal.Int64),
				AvailableCopies: int(r.BookAvailable.Int64),
			}
			if r.BookGenre.Valid {
				g := r.BookGenre.String
				d.Book.Genre = &g
			}
		}
		if r.UserName.Valid {
			d.User = &UserSummary{ID: r.UserID, Name: r.UserName.String, Email: r.UserEmail.String}
		}
		out = append(out, d)
	}
	return out, nil
}

func getBorrow(ctx context.Context, q db.DBTX, query string, args ...any) (*Borrow, error) {
	var b Borrow
	err := q.GetContext(ctx, &b, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

type mysqlTx struct{ q db.DBTX }

func (t *mysqlTx) FindBookByID(ctx context.Context, id string) (*books.Book, error) {
	return books.FindForUpdate(ctx, t.q, id)
}

func (t *mysqlTx) SaveBook(ctx context.Context, b *books.Book) error {
	ok, err := books.Save(ctx, t.q, b)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (t *mysqlTx) FindActiveBorrow(ctx context.Context, userID, bookID string) (*Borrow, error) {
	return getBorrow(ctx, t.q,
		`SELECT `+borrowColumns+` FROM borrows WHERE user_id = ? AND book_id = ? AND status = ? LIMIT 1`,
		userID, bookID, StatusBorrowed)
}

func (t *mysqlTx) CreateBorrow(ctx context.Context, b *Borrow) error {
	const q = `
INSERT INTO borrows (id, user_id, book_id, borrow_date, return_date, status, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`
	_, err := t.q.ExecContext(ctx, q,
		b.ID, b.UserID, b.BookID, b.BorrowDate, b.ReturnDate, b.Status, b.Version, b.CreatedAt, b.UpdatedAt)
	if db.IsDuplicateKey(err) {
		return errActiveBorrowExists
	}
	return err
}

func (t *mysqlTx) FindBorrowByID(ctx context.Context, id string) (*Borrow, error) {
	return getBorrow(ctx, t.q, `SELECT `+borrowColumns+` FROM borrows WHERE id = ? FOR UPDATE`, id)
}

func (t *mysqlTx) SaveBorrow(ctx context.Context, b *Borrow) error {
	const q = `
UPDATE borrows
SET status = ?, return_date = ?, version = version + 1, updated_at = ?
WHERE id = ? AND version = ?
`
	res, err := t.q.ExecContext(ctx, q, b.Status, b.ReturnDate, b.UpdatedAt, b.ID, b.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrConflict
	}
	b.Version++
	return nil
}
