package service

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"salesbridge/internal/helper"
	"salesbridge/internal/model"
)

var (
	jwtSecret      []byte
	accessTokenTTL = 24 * time.Hour
)

// Claims carried by the access token. TenantID is the routing key for every
// session endpoint; handlers never accept it from the request body.
type Claims struct {
	UserID    int64  `json:"user_id"`
	TenantID  string `json:"tenant_id"`
	CompanyID string `json:"company_id,omitempty"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// InitAuthConfig loads the signing secret. Called once from main.
func InitAuthConfig(secret string) {
	if secret == "" {
		log.Fatal("✗ JWT secret is not set")
	}
	jwtSecret = []byte(secret)
	fmt.Println("✓ Auth config initialized")
}

// RegisterUser creates an account and mints its tenant id. One user maps to
// one tenant; the tenant id is generated here and never chosen by the caller.
func RegisterUser(req *model.CreateUserRequest) (*model.User, error) {
	hash, err := helper.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		TenantID:     uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         "user",
		IsActive:     true,
	}
	if req.FullName != "" {
		user.FullName = sql.NullString{String: req.FullName, Valid: true}
	}
	if req.CompanyID != "" {
		user.CompanyID = sql.NullString{String: req.CompanyID, Valid: true}
	}

	if err := model.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// AuthenticateUser verifies credentials and returns the account.
func AuthenticateUser(username, password string) (*model.User, error) {
	user, err := model.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, model.ErrInvalidCredentials
	}

	if err := helper.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, model.ErrInvalidCredentials
	}

	if err := model.UpdateLastLogin(user.ID); err != nil {
		log.Printf("⚠ Failed to update last login for user %s: %v", username, err)
	}

	return user, nil
}

// GenerateAccessToken signs a token for an authenticated user.
func GenerateAccessToken(user *model.User) (string, error) {
	now := time.Now()

	claims := &Claims{
		UserID:    user.ID,
		TenantID:  user.TenantID,
		CompanyID: user.CompanyID.String,
		Username:  user.Username,
		Role:      user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
			Subject:   user.TenantID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ValidateAccessToken parses and verifies a bearer token.
func ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
