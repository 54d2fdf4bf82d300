package borrows

import "time"

type RecordResponse struct {
	ID         string     `json:"_id"`
	User       string     `json:"user"`
	Book       string     `json:"book"`
	BorrowDate time.Time  `json:"borrowDate"`
	ReturnDate *time.Time `json:"returnDate,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

type ActionResponse struct {
	Message      string         `json:"message"`
	BorrowRecord RecordResponse `json:"borrowRecord"`
}

// MyBorrowResponse is one entry of GET /borrow/my: the book is expanded, the
// owner is the caller and stays an id.
type MyBorrowResponse struct {
	ID         string       `json:"_id"`
	User       string       `json:"user"`
	Book       *BookSummary `json:"book"`
	BorrowDate time.Time    `json:"borrowDate"`
	ReturnDate *time.Time   `json:"returnDate,omitempty"`
	Status     string       `json:"status"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

type AdminBorrowResponse struct {
	ID         string       `json:"_id"`
	User       *UserSummary `json:"user"`
	Book       *BookSummary `json:"book"`
	BorrowDate time.Time    `json:"borrowDate"`
	ReturnDate *time.Time   `json:"returnDate,omitempty"`
	Status     string       `json:"status"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

func toRecord(b *Borrow) RecordResponse {
	return RecordResponse{
		ID:         b.ID,
		User:       b.UserID,
		Book:       b.BookID,
		BorrowDate: b.BorrowDate,
		ReturnDate: b.ReturnDate,
		Status:     b.Status,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

func toMine(ds []Detail) []MyBorrowResponse {
	out := make([]MyBorrowResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, MyBorrowResponse{
			ID:         d.ID,
			User:       d.UserID,
			Book:       d.Book,
			BorrowDate: d.BorrowDate,
			ReturnDate: d.ReturnDate,
			Status:     d.Status,
			CreatedAt:  d.CreatedAt,
			UpdatedAt:  d.UpdatedAt,
		})
	}
	return out
}

func toAdmin(ds []Detail) []AdminBorrowResponse {
	out := make([]AdminBorrowResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, AdminBorrowResponse{
			ID:         d.ID,
			User:       d.User,
			Book:       d.Book,
			BorrowDate: d.BorrowDate,
			ReturnDate: d.ReturnDate,
			Status:     d.Status,
			CreatedAt:  d.CreatedAt,
			UpdatedAt:  d.UpdatedAt,
		})
	}
	return out
}
