package model

import (
	"database/sql"
	"errors"
	"time"

	"salesbridge/database"
)

// User is one tenant user account. TenantID is the opaque key every session
// and connection record hangs off; it is minted once at registration.
type User struct {
	ID           int64
	TenantID     string
	CompanyID    sql.NullString
	Username     string
	Email        string
	PasswordHash string
	FullName     sql.NullString
	Role         string // 'admin' or 'user'
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  sql.NullTime
}

// UserResponse is the JSON response format for user data (without sensitive fields)
type UserResponse struct {
	ID        int64     `json:"id"`
	TenantID  string    `json:"tenantId"`
	CompanyID string    `json:"companyId,omitempty"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName,omitempty"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateUserRequest is the request payload for creating a new user
type CreateUserRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FullName  string `json:"fullName,omitempty"`
	CompanyID string `json:"companyId,omitempty"`
	Role      string `json:"role,omitempty"` // Optional, defaults to 'user'
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:        u.ID,
		TenantID:  u.TenantID,
		CompanyID: u.CompanyID.String,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName.String,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// CreateUser inserts a new user into the database
func CreateUser(user *User) error {
	db := database.AppDB

	query := `
		INSERT INTO users (tenant_id, company_id, username, email, password_hash, full_name, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := db.QueryRow(
		query,
		user.TenantID,
		user.CompanyID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FullName,
		user.Role,
		user.IsActive,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if isDuplicateUserErr(err) {
			return ErrUserAlreadyExists
		}
		return err
	}
	return nil
}

func isDuplicateUserErr(err error) bool {
	msg := err.Error()
	return msg == `pq: duplicate key value violates unique constraint "users_username_key"` ||
		msg == `pq: duplicate key value violates unique constraint "users_email_key"`
}

// GetUserByUsername retrieves a user by username
func GetUserByUsername(username string) (*User, error) {
	db := database.AppDB

	query := `
		SELECT id, tenant_id, company_id, username, email, password_hash,
			full_name, role, is_active, created_at, updated_at, last_login_at
		FROM users
		WHERE username = $1
	`

	return scanUser(db.QueryRow(query, username))
}

func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID, &user.TenantID, &user.CompanyID, &user.Username, &user.Email,
		&user.PasswordHash, &user.FullName, &user.Role, &user.IsActive,
		&user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateLastLogin stamps the last successful login time.
func UpdateLastLogin(userID int64) error {
	db := database.AppDB

	_, err := db.Exec(`UPDATE users SET last_login_at = NOW() WHERE id = $1`, userID)
	return err
}
