package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"comic-shelf/internal/domain"
	"comic-shelf/internal/repository"
)

const (
	minPasswordLength = 6
	// bcrypt ignores everything past 72 bytes, so longer passwords are refused.
	maxPasswordBytes = 72
)

var emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User  *domain.User
	Token string
}

// UserService describes account and session operations.
type UserService interface {
	Register(ctx context.Context, name, email, password string) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	// Authenticate resolves a bearer token to a live user.
	Authenticate(ctx context.Context, token string) (*domain.User, error)
	// Logout always succeeds: tokens are stateless and cannot be revoked server side.
	Logout(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// SeedAdmin creates the first account when the user table is empty.
	SeedAdmin(ctx context.Context, name, email, password string) (bool, error)
}

type userService struct {
	users      repository.UserRepository
	tokens     *TokenIssuer
	bcryptCost int
	logger     logrus.FieldLogger

	dummyOnce sync.Once
	dummyHash []byte
}

func NewUserService(users repository.UserRepository, tokens *TokenIssuer, bcryptCost int, logger logrus.FieldLogger) UserService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &userService{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

func (s *userService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	user, err := s.createUser(ctx, name, email, password)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "email": user.Email}).Info("user registered")
	return &AuthResult{User: sanitizeUser(user), Token: token}, nil
}

func (s *userService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if !emailRe.MatchString(email) {
		return nil, domain.Errorf(domain.ErrValidation, "Invalid input: Valid email is required")
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return nil, domain.Errorf(domain.ErrValidation, "Invalid input: Password must be at least %d characters", minPasswordLength)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// spend the same time as a real comparison
			_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
			s.logger.WithField("email", email).Warn("login for unknown email")
			return nil, invalidCredentials()
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.WithField("email", email).Warn("login with wrong password")
		return nil, invalidCredentials()
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "email": user.Email}).Info("user logged in")
	return &AuthResult{User: sanitizeUser(user), Token: token}, nil
}

func (s *userService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.WithField("user_id", claims.UserID).Warn("token for missing user")
			return nil, domain.Errorf(domain.ErrAuth, "User not found")
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return sanitizeUser(user), nil
}

func (s *userService) Logout(ctx context.Context, user *domain.User) error {
	if user != nil {
		s.logger.WithFields(logrus.Fields{"user_id": user.ID, "email": user.Email}).Info("user logged out")
	}
	return nil
}

func (s *userService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Errorf(domain.ErrNotFound, "User not found")
		}
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) SeedAdmin(ctx context.Context, name, email, password string) (bool, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return false, nil
	}
	if strings.TrimSpace(name) == "" {
		name = "Admin"
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	user, err := s.createUser(ctx, name, email, password)
	if err != nil {
		return false, err
	}
	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "email": user.Email}).Info("default admin user created")
	return true, nil
}

func (s *userService) createUser(ctx context.Context, name, email, password string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if name == "" {
		return nil, domain.Errorf(domain.ErrValidation, "Invalid input: Name is required")
	}
	if !emailRe.MatchString(email) {
		return nil, domain.Errorf(domain.ErrValidation, "Invalid input: Valid email is required")
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return nil, domain.Errorf(domain.ErrValidation, "Invalid input: Password must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return nil, domain.Errorf(domain.ErrValidation, "Invalid input: Password must be at most %d bytes", maxPasswordBytes)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, emailTaken()
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		AvatarURL:    domain.DefaultAvatarURL,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, emailTaken()
		}
		return nil, err
	}
	return user, nil
}

func (s *userService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("comic-shelf-dummy"), s.bcryptCost)
	})
	return s.dummyHash
}

func invalidCredentials() error {
	return domain.Errorf(domain.ErrAuth, "Invalid credentials")
}

func emailTaken() error {
	return domain.Errorf(domain.ErrConflict, "Email already registered")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		CreatedAt: user.CreatedAt,
	}
}
