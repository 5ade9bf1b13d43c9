// Package auth registers users, checks passwords and issues the bearer tokens
// that identify callers to the slot and swap commands.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"slotswap-backend/internal/apperr"
	"slotswap-backend/internal/model"
	"slotswap-backend/internal/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type registration struct {
	Name     string `validate:"min=2"`
	Email    string `validate:"required,email"`
	Password string `validate:"min=6"`
}

// registrationMessages maps a field and failed rule to the message returned
// in the validation details.
var registrationMessages = map[string]string{
	"Name.min":       "Name must be at least 2 characters",
	"Email.required": "Invalid email address",
	"Email.email":    "Invalid email address",
	"Password.min":   "Password must be at least 6 characters",
}

func validateRegistration(r registration) error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Internalf(err, "Failed to register user")
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		key := strings.ToLower(fe.Field())
		if _, ok := details[key]; ok {
			continue
		}
		msg, ok := registrationMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fe.Error()
		}
		details[key] = msg
	}
	return apperr.Validationf("Validation failed").WithDetails(details)
}

// Session is returned by Register and Login.
type Session struct {
	User  Identity `json:"user"`
	Token string   `json:"token"`
}

// Service implements registration and login.
type Service struct {
	store      store.Store
	issuer     *Issuer
	bcryptCost int
}

// NewService creates a Service.
func NewService(s store.Store, issuer *Issuer, bcryptCost int) *Service {
	return &Service{store: s, issuer: issuer, bcryptCost: bcryptCost}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func identityOf(u *model.User) Identity {
	return Identity{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Register creates an account and returns a session for it.
func (s *Service) Register(ctx context.Context, name, email, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if err := validateRegistration(registration{Name: name, Email: email, Password: password}); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to register user")
	}

	u := &model.User{Name: name, Email: email, PasswordHash: hash}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflictf("User with this email already exists")
		}
		return nil, apperr.Internalf(err, "Failed to register user")
	}
	return s.session(u)
}

// Login checks credentials and returns a new session.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.Unauthenticated, "Invalid email or password")
	}
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to log in")
	}
	if !VerifyPassword(u.PasswordHash, password) {
		return nil, apperr.New(apperr.Unauthenticated, "Invalid email or password")
	}
	return s.session(u)
}

// Me returns the current identity of an authenticated user.
func (s *Service) Me(ctx context.Context, userID int64) (Identity, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, apperr.NotFoundf("User not found")
	}
	if err != nil {
		return Identity{}, apperr.Internalf(err, "Failed to fetch user")
	}
	return identityOf(u), nil
}

func (s *Service) session(u *model.User) (*Session, error) {
	id := identityOf(u)
	token, err := s.issuer.Issue(id)
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to issue token")
	}
	return &Session{User: id, Token: token}, nil
}
