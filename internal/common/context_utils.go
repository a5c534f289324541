package common

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	SubscriberIDKey contextKey = "subscriber_id"
	RequestIDKey    contextKey = "request_id"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// CreateErrorResponse creates a standardized error response
func CreateErrorResponse(code string, message string, details map[string]string) *ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Details = details
	return &resp
}

// SendValidationError sends a validation error response
func SendValidationError(c echo.Context, field, message string) error {
	details := map[string]string{
		field: message,
	}
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("VALIDATION_ERROR", "Validation failed", details))
}

// SendUnauthorizedError sends an unauthorized error response
func SendUnauthorizedError(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, CreateErrorResponse("UNAUTHORIZED", "Authentication required", nil))
}

// ValidateUUID parses a path or body identifier.
func ValidateUUID(idStr string, fieldName string) (uuid.UUID, error) {
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		return uuid.Nil, fmt.Errorf("%s is required", fieldName)
	}
	if len(idStr) != 36 {
		return uuid.Nil, fmt.Errorf("%s must be exactly 36 characters (including hyphens)", fieldName)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s contains invalid characters: %v", fieldName, err)
	}
	return id, nil
}

// ParsePage reads page and page_size query params, returning the 1-based page
// and the clamped page size.
func ParsePage(c echo.Context) (page, pageSize int, err error) {
	page, pageSize = 1, DefaultPageSize

	if raw := c.QueryParam("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
	}
	if raw := c.QueryParam("page_size"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize < 1 {
			return 0, 0, fmt.Errorf("page_size must be a positive integer")
		}
		if pageSize > MaxPageSize {
			pageSize = MaxPageSize
		}
	}
	return page, pageSize, nil
}

// WithSubscriberID stores the authenticated subscriber on ctx.
func WithSubscriberID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, SubscriberIDKey, id)
}

// GetSubscriberIDFromContext extracts the authenticated subscriber from the request context
func GetSubscriberIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(SubscriberIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
