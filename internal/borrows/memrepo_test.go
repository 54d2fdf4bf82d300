package borrows

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"library-backend/internal/books"
)

// memRepo is an optimistic in-memory Repository. Every transaction works on
// private copies and commit fails with ErrConflict if a row it wrote changed
// underneath it, the way a lost version check does in MySQL.
type memRepo struct {
	mu      sync.Mutex
	books   map[string]books.Book
	borrows map[string]Borrow
	users   map[string]UserSummary

	// conflictCommits makes the next n commits fail with ErrConflict.
	conflictCommits int
	// txErr is returned by InTx before fn runs.
	txErr error

	commits int
}

func newMemRepo() *memRepo {
	return &memRepo{
		books:   map[string]books.Book{},
		borrows: map[string]Borrow{},
		users:   map[string]UserSummary{},
	}
}

func (r *memRepo) putBook(b books.Book) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.books[b.ID] = b
}

func (r *memRepo) book(id string) books.Book {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.books[id]
}

func (r *memRepo) activeCount(userID, bookID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.borrows {
		if b.UserID == userID && b.BookID == bookID && b.Active() {
			n++
		}
	}
	return n
}

type staged[T any] struct {
	row  T
	base int64
}

type memTx struct {
	r       *memRepo
	books   map[string]staged[books.Book]
	borrows map[string]staged[Borrow]
	created []Borrow
}

func (r *memRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	txErr := r.txErr
	r.mu.Unlock()
	if txErr != nil {
		return txErr
	}

	tx := &memTx{
		r:       r,
		books:   map[string]staged[books.Book]{},
		borrows: map[string]staged[Borrow]{},
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return r.commit(tx)
}

func (r *memRepo) commit(tx *memTx) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conflictCommits > 0 {
		r.conflictCommits--
		return ErrConflict
	}
	for id, s := range tx.books {
		if cur, ok := r.books[id]; !ok || cur.Version != s.base {
			return ErrConflict
		}
		if s.row.AvailableCopies < 0 || s.row.AvailableCopies > s.row.TotalCopies {
			return fmt.Errorf("check constraint violated for book %s", id)
		}
	}
	for id, s := range tx.borrows {
		if cur, ok := r.borrows[id]; !ok || cur.Version != s.base {
			return ErrConflict
		}
	}
	for _, c := range tx.created {
		for _, b := range r.borrows {
			if b.UserID == c.UserID && b.BookID == c.BookID && b.Active() {
				return ErrConflict
			}
		}
	}

	for id, s := range tx.books {
		r.books[id] = s.row
	}
	for id, s := range tx.borrows {
		r.borrows[id] = s.row
	}
	for _, c := range tx.created {
		r.borrows[c.ID] = c
	}
	r.commits++
	return nil
}

func (t *memTx) FindBookByID(ctx context.Context, id string) (*books.Book, error) {
	if s, ok := t.books[id]; ok {
		b := s.row
		return &b, nil
	}
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	b, ok := t.r.books[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (t *memTx) SaveBook(ctx context.Context, b *books.Book) error {
	t.r.mu.Lock()
	cur, ok := t.r.books[b.ID]
	t.r.mu.Unlock()
	base := b.Version
	if s, already := t.books[b.ID]; already {
		base = s.base
	} else if !ok || cur.Version != b.Version {
		return ErrConflict
	}

	b.Version++
	t.books[b.ID] = staged[books.Book]{row: *b, base: base}
	return nil
}

func (t *memTx) FindActiveBorrow(ctx context.Context, userID, bookID string) (*Borrow, error) {
	for _, c := range t.created {
		if c.UserID == userID && c.BookID == bookID {
			cp := c
			return &cp, nil
		}
	}
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	for _, b := range t.r.borrows {
		if b.UserID == userID && b.BookID == bookID && b.Active() {
			return &b, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateBorrow(ctx context.Context, b *Borrow) error {
	if active, _ := t.FindActiveBorrow(ctx, b.UserID, b.BookID); active != nil {
		return errActiveBorrowExists
	}
	t.created = append(t.created, *b)
	return nil
}

func (t *memTx) FindBorrowByID(ctx context.Context, id string) (*Borrow, error) {
	if s, ok := t.borrows[id]; ok {
		b := s.row
		return &b, nil
	}
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	b, ok := t.r.borrows[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (t *memTx) SaveBorrow(ctx context.Context, b *Borrow) error {
	t.r.mu.Lock()
	cur, ok := t.r.borrows[b.ID]
	t.r.mu.Unlock()
	if !ok || cur.Version != b.Version {
		return ErrConflict
	}
	base := b.Version
	b.Version++
	t.borrows[b.ID] = staged[Borrow]{row: *b, base: base}
	return nil
}

func (r *memRepo) GetBorrow(ctx context.Context, id string) (*Borrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.txErr != nil {
		return nil, r.txErr
	}
	b, ok := r.borrows[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *memRepo) ListByUser(ctx context.Context, userID string) ([]Detail, error) {
	return r.list(func(b Borrow) bool { return b.UserID == userID }, false)
}

func (r *memRepo) ListAll(ctx context.Context) ([]Detail, error) {
	return r.list(func(Borrow) bool { return true }, true)
}

func (r *memRepo) list(keep func(Borrow) bool, withUser bool) ([]Detail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.txErr != nil {
		return nil, r.txErr
	}

	out := []Detail{}
	for _, b := range r.borrows {
		if !keep(b) {
			continue
		}
		d := Detail{Borrow: b}
		if bk, ok := r.books[b.BookID]; ok {
			d.Book = &BookSummary{
				ID: bk.ID, Title: bk.Title, Author: bk.Author, Genre: bk.Genre,
				TotalCopies: bk.TotalCopies, AvailableCopies: bk.AvailableCopies,
			}
		}
		if u, ok := r.users[b.UserID]; ok && withUser {
			d.User = &u
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BorrowDate.Equal(out[j].BorrowDate) {
			return out[i].BorrowDate.After(out[j].BorrowDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// tickClock advances one second per call so borrow dates are distinct.
type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

var errBoom = errors.New("boom")
