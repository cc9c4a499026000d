package handlers

import (
	"net/http"

	"github.com/go-playground/validator"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/api/dto"
	"github.com/spec-kit/issue-service/internal/service"
)

// UsersHandler exposes local identity and profile endpoints.
type UsersHandler struct {
	authService *service.AuthService
	validate    *validator.Validate
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService) *UsersHandler {
	return &UsersHandler{authService: authService, validate: validator.New()}
}

// Register handles POST /auth/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}

	user, token, exp, err := h.authService.Register(c.UserContext(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		PhotoURL: req.PhotoURL,
	})
	if err != nil {
		return err
	}

	return data(c, http.StatusCreated, fiber.Map{
		"user": dto.NewUserResponse(*user),
		"auth": dto.AuthResponse{Token: token, ExpiresAt: exp},
	})
}

// Login handles POST /auth/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.UserLoginRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}

	user, token, exp, err := h.authService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return data(c, http.StatusOK, fiber.Map{
		"user": dto.NewUserResponse(*user),
		"auth": dto.AuthResponse{Token: token, ExpiresAt: exp},
	})
}

// Me handles GET /users/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	user, err := h.authService.Profile(c.UserContext(), email)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewUserResponse(*user))
}

// UpdateMe handles PATCH /users/me.
func (h *UsersHandler) UpdateMe(c *fiber.Ctx) error {
	email, err := principalEmail(c)
	if err != nil {
		return err
	}
	var req dto.UpdateProfileRequest
	if err := bind(c, h.validate, &req); err != nil {
		return err
	}
	user, err := h.authService.UpdateProfile(c.UserContext(), email, req.ProfileUpdate())
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewUserResponse(*user))
}
