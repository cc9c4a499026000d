package handlers

import (
	"errors"
	"strings"

	"github.com/go-playground/validator"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/service"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// bind parses the JSON body into out and runs struct validation.
func bind(c *fiber.Ctx, validate *validator.Validate, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return apperrors.NewValidationError("invalid payload", validationDetails(verrs))
		}
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

func validationDetails(errs validator.ValidationErrors) map[string]any {
	details := make(map[string]any, len(errs))
	for _, err := range errs {
		field := lowerFirst(err.Field())
		switch err.ActualTag() {
		case "required":
			details[field] = "is required"
		case "email":
			details[field] = "must be a valid email"
		case "url":
			details[field] = "must be a valid url"
		case "oneof":
			details[field] = "must be one of " + err.Param()
		case "min":
			details[field] = "must be at least " + err.Param() + " characters"
		case "max":
			details[field] = "must be at most " + err.Param() + " characters"
		default:
			details[field] = "is not valid"
		}
	}
	return details
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// principalEmail returns the authenticated caller's email.
func principalEmail(c *fiber.Ctx) (string, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Email == "" {
		return "", apperrors.NewUnauthenticated("authentication required")
	}
	return principal.Email, nil
}

func pageFromQuery(c *fiber.Ctx) service.PageRequest {
	return service.PageRequest{
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("limit", 0),
	}
}

func issueQueryFromQuery(c *fiber.Ctx) service.IssueQuery {
	return service.IssueQuery{
		Search:   c.Query("search"),
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Priority: c.Query("priority"),
	}
}

func data(c *fiber.Ctx, status int, payload any) error {
	return c.Status(status).JSON(fiber.Map{"data": payload})
}
