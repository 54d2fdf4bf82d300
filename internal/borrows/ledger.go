package borrows

import (
	"context"
	"errors"
	"time"

	"library-backend/internal/platform/config"
	"library-backend/internal/platform/db"
	"library-backend/internal/platform/ids"
	"library-backend/internal/platform/logger"
	"library-backend/internal/platform/retry"
)

// Ledger owns the link between a book's availableCopies and its active borrows.
// Both operations run as one transaction that locks the book (borrow) or the
// borrow record (return) and writes conditionally on the row version. A lost
// race surfaces as ErrConflict or an InnoDB lock error and the whole
// transaction is re-run from a fresh read.
type Ledger struct {
	repo    Repository
	clock   ids.Clock
	id      ids.IDGen
	timeout time.Duration
	retry   []retry.Option
}

func NewLedger(repo Repository, idGen ids.IDGen, cfg config.LedgerConfig) *Ledger {
	l := &Ledger{
		repo:    repo,
		clock:   ids.SystemClock(),
		id:      idGen,
		timeout: cfg.OperationTimeout,
	}
	if cfg.MaxAttempts > 0 {
		l.retry = append(l.retry, retry.WithMaxAttempts(cfg.MaxAttempts))
	}
	if cfg.BaseDelay > 0 {
		l.retry = append(l.retry, retry.WithBaseDelay(cfg.BaseDelay))
	}
	return l
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || db.IsLockConflict(err)
}

// BorrowCopy takes one copy of bookID for userID and records the borrow.
// Checks run in the order: book exists, user has no active borrow of it,
// a copy is available.
func (l *Ledger) BorrowCopy(ctx context.Context, userID, bookID string) (*Borrow, error) {
	var out *Borrow
	err := l.run(ctx, "borrow", func(ctx context.Context) error {
		return l.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
			book, err := tx.FindBookByID(ctx, bookID)
			if err != nil {
				return err
			}
			if book == nil {
				return ErrNotFound("Book not found")
			}

			active, err := tx.FindActiveBorrow(ctx, userID, bookID)
			if err != nil {
				return err
			}
			if active != nil {
				return ErrDuplicateActiveBorrow()
			}
			if book.AvailableCopies <= 0 {
				return ErrNoCopiesAvailable()
			}

			now := l.clock.Now()
			book.AvailableCopies--
			book.UpdatedAt = now
			if err := tx.SaveBook(ctx, book); err != nil {
				return err
			}

			b := &Borrow{
				ID:         l.id.New(now),
				UserID:     userID,
				BookID:     bookID,
				BorrowDate: now,
				Status:     StatusBorrowed,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := tx.CreateBorrow(ctx, b); err != nil {
				if errors.Is(err, errActiveBorrowExists) {
					return ErrDuplicateActiveBorrow()
				}
				return err
			}
			out = b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReturnCopy closes an active borrow and gives the copy back. The counter is
// capped at totalCopies, and a book deleted since the borrow is skipped.
func (l *Ledger) ReturnCopy(ctx context.Context, borrowID string) (*Borrow, error) {
	var out *Borrow
	err := l.run(ctx, "return", func(ctx context.Context) error {
		return l.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
			b, err := tx.FindBorrowByID(ctx, borrowID)
			if err != nil {
				return err
			}
			if b == nil {
				return ErrNotFound("Borrow record not found")
			}
			if !b.Active() {
				return ErrAlreadyReturned()
			}

			now := l.clock.Now()
			b.Status = StatusReturned
			b.ReturnDate = &now
			b.UpdatedAt = now
			if err := tx.SaveBorrow(ctx, b); err != nil {
				return err
			}

			book, err := tx.FindBookByID(ctx, b.BookID)
			if err != nil {
				return err
			}
			if book != nil && book.AvailableCopies < book.TotalCopies {
				book.AvailableCopies++
				book.UpdatedAt = now
				if err := tx.SaveBook(ctx, book); err != nil {
					return err
				}
			}
			out = b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) run(ctx context.Context, op string, fn retry.Func) error {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	opts := append([]retry.Option{
		retry.OnRetry(func(attempt int, err error) {
			logger.DebugContext(ctx, "ledger write conflict, retrying", "op", op, "attempt", attempt, "error", err)
		}),
	}, l.retry...)

	err := retry.Do(ctx, isRetryable, fn, opts...)
	return l.classify(ctx, op, err)
}

// classify passes domain errors through and turns everything else into an
// opaque INTERNAL or UNAVAILABLE error after logging the cause.
func (l *Ledger) classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	var api *APIError
	if errors.As(err, &api) {
		logger.DebugContext(ctx, "ledger rejected operation", "op", op, "code", api.Code)
		return api
	}

	switch {
	case isRetryable(err):
		logger.ErrorContext(ctx, "ledger retries exhausted", "op", op, "error", err)
		return ErrInternal("the book is busy, please try again")
	case errors.Is(err, context.Canceled):
		logger.WarnContext(ctx, "ledger operation cancelled by caller", "op", op)
		return ErrUnavailable("request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		logger.ErrorContext(ctx, "ledger operation timed out", "op", op, "error", err)
		return ErrUnavailable("operation timed out")
	case db.IsUnavailable(err):
		logger.ErrorContext(ctx, "ledger storage unavailable", "op", op, "error", err)
		return ErrUnavailable("database unavailable")
	default:
		logger.ErrorContext(ctx, "ledger operation failed", "op", op, "error", err)
		return ErrInternal("internal error")
	}
}
