package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"salesbridge/internal/model"
	"salesbridge/internal/service"
)

// Register membuat akun baru sekaligus mencetak tenant id untuk akun itu.
func Register(c echo.Context) error {
	req := new(model.CreateUserRequest)
	if err := c.Bind(req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_BODY", err.Error())
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if req.Username == "" || req.Email == "" || len(req.Password) < 8 {
		return ErrorResponse(c, http.StatusBadRequest,
			"username, email and a password of at least 8 characters are required",
			"INVALID_BODY", "")
	}

	user, err := service.RegisterUser(req)
	if err != nil {
		if errors.Is(err, model.ErrUserAlreadyExists) {
			return ErrorResponse(c, http.StatusConflict, "Username or email already registered", "USER_EXISTS", "")
		}
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to create user", "INTERNAL_ERROR", err.Error())
	}

	return SuccessResponse(c, http.StatusCreated, "User registered", user.ToResponse())
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login memverifikasi kredensial dan mengembalikan access token.
func Login(c echo.Context) error {
	req := new(loginRequest)
	if err := c.Bind(req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_BODY", err.Error())
	}

	user, err := service.AuthenticateUser(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			return ErrorResponse(c, http.StatusUnauthorized, "Invalid username or password", "INVALID_CREDENTIALS", "")
		}
		return ErrorResponse(c, http.StatusInternalServerError, "Login failed", "INTERNAL_ERROR", err.Error())
	}

	token, err := service.GenerateAccessToken(user)
	if err != nil {
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to generate token", "INTERNAL_ERROR", err.Error())
	}

	return SuccessResponse(c, http.StatusOK, "Login successful", map[string]interface{}{
		"accessToken": token,
		"user":        user.ToResponse(),
	})
}
