package books

type CreateBookRequest struct {
	Title       string  `json:"title" binding:"required,max=512"`
	Author      string  `json:"author" binding:"required,max=255"`
	Genre       *string `json:"genre" binding:"omitempty,max=128"`
	TotalCopies *int    `json:"totalCopies" binding:"required,gte=0"`
}

// UpdateBookRequest is a partial update; nil fields are left as they are.
// availableCopies is derived and cannot be set.
type UpdateBookRequest struct {
	Title       *string `json:"title" binding:"omitempty,min=1,max=512"`
	Author      *string `json:"author" binding:"omitempty,min=1,max=255"`
	Genre       *string `json:"genre" binding:"omitempty,max=128"`
	TotalCopies *int    `json:"totalCopies" binding:"omitempty,gte=0"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
