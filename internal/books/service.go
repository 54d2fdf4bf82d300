package books

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/text/unicode/norm"

	"library-backend/internal/platform/db"
	"library-backend/internal/platform/ids"
	"library-backend/internal/platform/logger"
)

type Service struct {
	db    *sqlx.DB
	store *Store
	clock ids.Clock
	id    ids.IDGen
}

func NewService(sqlDB *sqlx.DB, idGen ids.IDGen) *Service {
	return &Service{
		db:    sqlDB,
		store: NewStore(sqlDB),
		clock: ids.SystemClock(),
		id:    idGen,
	}
}

func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func cleanGenre(g *string) *string {
	if g == nil {
		return nil
	}
	v := cleanText(*g)
	if v == "" {
		return nil
	}
	return &v
}

func (s *Service) Create(ctx context.Context, req CreateBookRequest) (*Book, error) {
	title, author := cleanText(req.Title), cleanText(req.Author)
	if title == "" || author == "" {
		return nil, ErrInvalid("title and author are required")
	}
	if req.TotalCopies == nil || *req.TotalCopies < 0 {
		return nil, ErrInvalid("totalCopies must be zero or more")
	}

	now := s.clock.Now()
	b := &Book{
		ID:              s.id.New(now),
		Title:           title,
		Author:          author,
		Genre:           cleanGenre(req.Genre),
		TotalCopies:     *req.TotalCopies,
		AvailableCopies: *req.TotalCopies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Insert(ctx, b); err != nil {
		return nil, s.mapErr(ctx, "create book", err)
	}
	return b, nil
}

func (s *Service) List(ctx context.Context) ([]Book, error) {
	out, err := s.store.List(ctx)
	if err != nil {
		return nil, s.mapErr(ctx, "list books", err)
	}
	return out, nil
}

// Update applies a partial edit under the row lock. Changing totalCopies moves
// availableCopies by the same amount so copies currently lent stay accounted for.
func (s *Service) Update(ctx context.Context, id string, req UpdateBookRequest) (*Book, error) {
	if !ids.Valid(id) {
		return nil, ErrNotFound("book not found")
	}

	var out *Book
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		b, err := FindForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if b == nil {
			return ErrNotFound("book not found")
		}

		if req.Title != nil {
			if b.Title = cleanText(*req.Title); b.Title == "" {
				return ErrInvalid("title must not be empty")
			}
		}
		if req.Author != nil {
			if b.Author = cleanText(*req.Author); b.Author == "" {
				return ErrInvalid("author must not be empty")
			}
		}
		if req.Genre != nil {
			b.Genre = cleanGenre(req.Genre)
		}
		if req.TotalCopies != nil {
			lent := b.TotalCopies - b.AvailableCopies
			if *req.TotalCopies < lent {
				return ErrInvalid("totalCopies is lower than the number of copies currently borrowed")
			}
			b.AvailableCopies = *req.TotalCopies - lent
			b.TotalCopies = *req.TotalCopies
		}
		b.UpdatedAt = s.clock.Now()

		ok, err := Save(ctx, tx, b)
		if err != nil {
			return err
		}
		if !ok {
			return errBookChanged
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, s.mapErr(ctx, "update book", err)
	}
	return out, nil
}

// Delete removes the title only; borrow records keep pointing at the old id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !ids.Valid(id) {
		return ErrNotFound("book not found")
	}
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return s.mapErr(ctx, "delete book", err)
	}
	if !ok {
		return ErrNotFound("book not found")
	}
	return nil
}

func (s *Service) mapErr(ctx context.Context, op string, err error) error {
	var api *APIError
	if errors.As(err, &api) {
		return api
	}
	if db.IsUnavailable(err) {
		logger.ErrorContext(ctx, op+" failed: database unavailable", "error", err)
		return ErrUnavailable("database unavailable")
	}
	logger.ErrorContext(ctx, op+" failed", "error", err)
	return ErrInternal("internal error")
}
