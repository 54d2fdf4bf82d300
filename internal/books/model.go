package books

import "time"

// Book is one catalog title. AvailableCopies is the only availability counter;
// it is changed by borrows, returns and admin edits of TotalCopies.
type Book struct {
	ID              string    `db:"id" json:"_id"`
	Title           string    `db:"title" json:"title"`
	Author          string    `db:"author" json:"author"`
	Genre           *string   `db:"genre" json:"genre,omitempty"`
	TotalCopies     int       `db:"total_copies" json:"totalCopies"`
	AvailableCopies int       `db:"available_copies" json:"availableCopies"`
	Version         int64     `db:"version" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}
