package borrows

import (
	"context"

	"library-backend/internal/books"
)

// Tx is the ledger's view of storage inside one transaction. Find* methods
// return nil, nil when the row does not exist.
type Tx interface {
	// FindBookByID locks the book row for the rest of the transaction.
	FindBookByID(ctx context.Context, id string) (*books.Book, error)
	// SaveBook returns ErrConflict if the stored version moved.
	SaveBook(ctx context.Context, b *books.Book) error
	FindActiveBorrow(ctx context.Context, userID, bookID string) (*Borrow, error)
	// CreateBorrow returns errActiveBorrowExists when the user already holds the book.
	CreateBorrow(ctx context.Context, b *Borrow) error
	// FindBorrowByID locks the borrow row for the rest of the transaction.
	FindBorrowByID(ctx context.Context, id string) (*Borrow, error)
	// SaveBorrow returns ErrConflict if the stored version moved.
	SaveBorrow(ctx context.Context, b *Borrow) error
}

type Repository interface {
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetBorrow(ctx context.Context, id string) (*Borrow, error)
	ListByUser(ctx context.Context, userID string) ([]Detail, error)
	ListAll(ctx context.Context) ([]Detail, error)
}
