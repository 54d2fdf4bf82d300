package borrows

import "time"

const (
	StatusBorrowed = "borrowed"
	StatusReturned = "returned"
)

// Borrow moves borrowed -> returned exactly once and is never deleted.
type Borrow struct {
	ID         string     `db:"id"`
	UserID     string     `db:"user_id"`
	BookID     string     `db:"book_id"`
	BorrowDate time.Time  `db:"borrow_date"`
	ReturnDate *time.Time `db:"return_date"`
	Status     string     `db:"status"`
	Version    int64      `db:"version"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

func (b *Borrow) Active() bool { return b.Status == StatusBorrowed }

type BookSummary struct {
	ID              string  `json:"_id"`
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	Genre           *string `json:"genre,omitempty"`
	TotalCopies     int     `json:"totalCopies"`
	AvailableCopies int     `json:"availableCopies"`
}

type UserSummary struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Detail is a borrow joined with its book and owner. Book or User is nil when
// the referenced row no longer exists or was not requested.
type Detail struct {
	Borrow
	Book *BookSummary
	User *UserSummary
}
