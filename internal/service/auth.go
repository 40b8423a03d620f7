package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/calai-cam/backend/internal/apperr"
	"github.com/calai-cam/backend/internal/models"
)

// DemoUsername is the account returned by the parameterless auth lookup.
const DemoUsername = "demo-user"

// AuthService manages user rows and session tokens. Demo users exist by
// username only; email users carry bcrypt credentials.
type AuthService struct {
	db        *gorm.DB
	jwtSecret string
}

// NewAuthService creates an AuthService.
func NewAuthService(db *gorm.DB, jwtSecret string) *AuthService {
	return &AuthService{db: db, jwtSecret: jwtSecret}
}

// GetOrCreateUser returns the user with the given username, creating it on
// first sight.
func (s *AuthService) GetOrCreateUser(ctx context.Context, username, fullName string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if fullName == "" {
		fullName = username
	}
	user = models.User{
		ID:       uuid.New(),
		Username: username,
		FullName: fullName,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// SignUp registers an email account and returns the user with a session
// token.
func (s *AuthService) SignUp(ctx context.Context, email, password string) (*models.User, string, error) {
	var existing models.User
	err := s.db.WithContext(ctx).First(&existing, "email = ?", email).Error
	if err == nil {
		return nil, "", apperr.ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	hashStr := string(hash)
	user := models.User{
		ID:           uuid.New(),
		Username:     email,
		FullName:     email,
		Email:        &email,
		PasswordHash: &hashStr,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, "", err
	}

	token, err := s.GenerateToken(user.ID.String(), user.Username)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

// SignIn verifies email credentials and returns the user with a session
// token.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*models.User, string, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if user.PasswordHash == nil ||
		bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)) != nil {
		return nil, "", apperr.ErrInvalidCredentials
	}

	token, err := s.GenerateToken(user.ID.String(), user.Username)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

// Anonymous creates a throwaway user, mirroring the demo sign-in flow.
func (s *AuthService) Anonymous(ctx context.Context) (*models.User, error) {
	id := uuid.New()
	user := models.User{
		ID:       id,
		Username: fmt.Sprintf("guest-%s", id.String()[:8]),
		FullName: "게스트",
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GenerateToken issues a signed session token valid for 24 hours.
func (s *AuthService) GenerateToken(userID, username string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"exp":      now.Add(24 * time.Hour).Unix(),
		"iat":      now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// ValidateToken parses a session token and returns its user id and
// username.
func (s *AuthService) ValidateToken(tokenString string) (string, string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return "", "", apperr.ErrInvalidCredentials
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", apperr.ErrInvalidCredentials
	}
	userID, _ := claims["user_id"].(string)
	username, _ := claims["username"].(string)
	return userID, username, nil
}
