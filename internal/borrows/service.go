package borrows

import (
	"context"

	"library-backend/internal/platform/db"
	"library-backend/internal/platform/ids"
	"library-backend/internal/platform/logger"
)

// Caller is the authenticated user a request acts for.
type Caller struct {
	UserID  string
	IsAdmin bool
}

type Service struct {
	repo   Repository
	ledger *Ledger
}

func NewService(repo Repository, ledger *Ledger) *Service {
	return &Service{repo: repo, ledger: ledger}
}

func (s *Service) Borrow(ctx context.Context, caller Caller, bookID string) (*Borrow, error) {
	if !ids.Valid(bookID) {
		return nil, ErrNotFound("Book not found")
	}
	return s.ledger.BorrowCopy(ctx, caller.UserID, bookID)
}

// Return only lets a non-admin close their own borrows; someone else's record
// reads as not found.
func (s *Service) Return(ctx context.Context, caller Caller, borrowID string) (*Borrow, error) {
	if !ids.Valid(borrowID) {
		return nil, ErrNotFound("Borrow record not found")
	}
	if !caller.IsAdmin {
		b, err := s.repo.GetBorrow(ctx, borrowID)
		if err != nil {
			return nil, s.mapErr(ctx, "get borrow", err)
		}
		if b == nil || b.UserID != caller.UserID {
			return nil, ErrNotFound("Borrow record not found")
		}
	}
	return s.ledger.ReturnCopy(ctx, borrowID)
}

func (s *Service) ListMine(ctx context.Context, caller Caller) ([]Detail, error) {
	out, err := s.repo.ListByUser(ctx, caller.UserID)
	if err != nil {
		return nil, s.mapErr(ctx, "list my borrows", err)
	}
	return out, nil
}

func (s *Service) ListAll(ctx context.Context) ([]Detail, error) {
	out, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, s.mapErr(ctx, "list borrows", err)
	}
	return out, nil
}

func (s *Service) mapErr(ctx context.Context, op string, err error) error {
	if db.IsUnavailable(err) {
		logger.ErrorContext(ctx, op+" failed: database unavailable", "error", err)
		return ErrUnavailable("database unavailable")
	}
	logger.ErrorContext(ctx, op+" failed", "error", err)
	return ErrInternal("internal error")
}
