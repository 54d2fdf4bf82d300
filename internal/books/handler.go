package books

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

// RegisterRoutes mounts the catalog. GET /books is public; the write routes run
// behind adminOnly.
func RegisterRoutes(r gin.IRoutes, svc *Service, adminOnly ...gin.HandlerFunc) {
	h := &Handler{svc: svc}

	r.GET("/books", h.List)
	r.POST("/books", chain(adminOnly, h.Create)...)
	r.PUT("/books/:id", chain(adminOnly, h.Update)...)
	r.DELETE("/books/:id", chain(adminOnly, h.Delete)...)
}

func chain(mw []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(mw)+1)
	out = append(out, mw...)
	return append(out, h)
}

// GET /books
func (h *Handler) List(c *gin.Context) {
	res, err := h.svc.List(c.Request.Context())
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /books
func (h *Handler) Create(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Location", "/api/books/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

// PUT /books/:id
func (h *Handler) Update(c *gin.Context) {
	var req UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}

	res, err := h.svc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// DELETE /books/:id
func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Book deleted"})
}
