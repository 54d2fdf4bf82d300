package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"library-backend/internal/platform/logger"
)

type AuthHandler struct{ svc AuthService }

func RegisterRoutes(r gin.IRoutes, svc AuthService) {
	h := &AuthHandler{svc: svc}
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UserResponse struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type SessionResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

func toSessionResponse(s *Session) SessionResponse {
	return SessionResponse{
		Token: s.Token,
		User: UserResponse{
			ID:        s.User.ID,
			Name:      s.User.Name,
			Email:     s.User.Email,
			Role:      s.User.Role,
			CreatedAt: s.User.CreatedAt,
		},
	}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request"})
		return
	}

	s, err := h.svc.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"message": "user already exists"})
			return
		}
		logger.ErrorContext(c.Request.Context(), "register failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "register failed"})
		return
	}

	c.JSON(http.StatusCreated, toSessionResponse(s))
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request"})
		return
	}

	s, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid email or password"})
			return
		}
		logger.ErrorContext(c.Request.Context(), "login failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "login failed"})
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(s))
}
