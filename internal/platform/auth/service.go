package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"library-backend/internal/platform/ids"
	"library-backend/internal/platform/logger"
)

var (
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type AuthService interface {
	Register(ctx context.Context, name, email, password string) (*Session, error)
	Login(ctx context.Context, email, password string) (*Session, error)
}

// Session is what register and login hand back to the client.
type Session struct {
	Token string
	User  *User
}

type Service struct {
	store  UserStore
	secret []byte
	ttl    time.Duration
	clock  ids.Clock
	id     ids.IDGen
}

func NewService(store UserStore, secret []byte, ttl time.Duration) *Service {
	return &Service{
		store:  store,
		secret: secret,
		ttl:    ttl,
		clock:  ids.SystemClock(),
		id:     ids.NewULIDGen(),
	}
}

// a Caser is stateful, so each call gets its own
func normalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, name, email, password string) (*Session, error) {
	u, err := s.create(ctx, name, email, password, RoleUser)
	if err != nil {
		return nil, err
	}
	return s.session(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(u)
}

// EnsureAdmin creates an admin account with the given credentials unless the
// email is already registered.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) error {
	existing, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Role != RoleAdmin {
			logger.Warn("bootstrap admin email belongs to a non-admin account", "email", existing.Email)
		}
		return nil
	}
	if name == "" {
		name = "Administrator"
	}
	if _, err := s.create(ctx, name, email, password, RoleAdmin); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil
		}
		return err
	}
	logger.Info("bootstrap admin created", "email", normalizeEmail(email))
	return nil
}

func (s *Service) create(ctx context.Context, name, email, password, role string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	u := &User{
		ID:           s.id.New(now),
		Name:         strings.TrimSpace(name),
		Email:        normalizeEmail(email),
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) session(u *User) (*Session, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  u.ID,
		"role": u.Role,
		"name": u.Name,
		"exp":  s.clock.Now().Add(s.ttl).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &Session{Token: signed, User: u}, nil
}
