package borrows

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"library-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// RegisterRoutes expects r to sit behind auth.RequireAuth. Listing every borrow
// additionally needs the admin role.
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/borrow/:bookId", h.Borrow)
	r.POST("/return/:borrowId", h.Return)
	r.GET("/my", h.ListMine)
	r.GET("", auth.RequireRole(auth.RoleAdmin), h.ListAll)
}

func callerOf(c *gin.Context) Caller {
	return Caller{UserID: auth.UserID(c), IsAdmin: auth.IsAdmin(c)}
}

// POST /borrow/borrow/:bookId
func (h *Handler) Borrow(c *gin.Context) {
	b, err := h.svc.Borrow(c.Request.Context(), callerOf(c), c.Param("bookId"))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusCreated, ActionResponse{Message: "Book borrowed successfully!", BorrowRecord: toRecord(b)})
}

// POST /borrow/return/:borrowId
func (h *Handler) Return(c *gin.Context) {
	b, err := h.svc.Return(c.Request.Context(), callerOf(c), c.Param("borrowId"))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, ActionResponse{Message: "Book returned successfully", BorrowRecord: toRecord(b)})
}

// GET /borrow/my
func (h *Handler) ListMine(c *gin.Context) {
	res, err := h.svc.ListMine(c.Request.Context(), callerOf(c))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, toMine(res))
}

// GET /borrow
func (h *Handler) ListAll(c *gin.Context) {
	res, err := h.svc.ListAll(c.Request.Context())
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, toAdmin(res))
}
