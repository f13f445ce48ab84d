// Package validation provides input validation middleware for the Vigia API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxEntityIDLength bounds external entity identifiers
const MaxEntityIDLength = 255

var (
	// entityIDRegex validates entity identifiers: printable, no whitespace,
	// the character set MSISDNs, account numbers, and UUIDs share.
	entityIDRegex = regexp.MustCompile(`^[A-Za-z0-9._+:@-]{1,255}$`)
	// regionRegex validates ISO 3166-1 alpha-2 region codes
	regionRegex = regexp.MustCompile(`^[A-Z]{2}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidEntityID checks if a string is a usable entity identifier
func IsValidEntityID(id string) bool {
	return entityIDRegex.MatchString(id)
}

// IsValidRegionCode checks if a string is an ISO alpha-2 region code
func IsValidRegionCode(code string) bool {
	return regionRegex.MatchString(code)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	// Trim whitespace
	s = strings.TrimSpace(s)

	// Limit length
	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// NormalizeRegion uppercases and trims a region code
func NormalizeRegion(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidEntityID checks if a field is a usable entity identifier
func ValidEntityID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidEntityID(value) {
			return &ValidationError{Field: field, Message: "must be 1-255 characters of [A-Za-z0-9._+:@-]"}
		}
		return nil
	}
}

// ValidRegion checks if a field is an ISO alpha-2 region code
func ValidRegion(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidRegionCode(value) {
			return &ValidationError{Field: field, Message: "must be a two-letter region code"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// RegionParamMiddleware validates the :region URL parameter on routes that use it.
// Apply to route groups that include :region params to reject malformed codes early.
func RegionParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Param("region")
		if code != "" && !IsValidRegionCode(NormalizeRegion(code)) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_region",
				"message": "region must be a two-letter ISO code",
			})
			return
		}
		c.Next()
	}
}
