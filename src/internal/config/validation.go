package config

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	nftIdentifierRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// getValidationMessage returns a human-readable message for a validation error
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "field is required"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", e.Param())
	case "contains":
		return fmt.Sprintf("must contain %q", e.Param())
	case "nft_identifier":
		return "must be a valid nftables identifier [A-Za-z_][A-Za-z0-9_]*"
	case "hostname_rfc1123|ip":
		return "must be an IP address, a hostname or empty"
	case "url|eq=*":
		return `must be an origin URL or "*"`
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}

// ValidationError represents a single validation error with context
type ValidationError struct {
	ItemName  string // For outlet groups: the group title (e.g., "出口")
	FieldPath string // Dot-notation field path (e.g., "nftables.map", "outlet_groups.0.mask")
	Message   string // Human-readable error message
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("validation failed with %d error(s):\n", len(ve)))
	for i, err := range ve {
		if err.ItemName != "" {
			sb.WriteString(fmt.Sprintf("  %d. [%s] %s: %s\n", i+1, err.ItemName, err.FieldPath, err.Message))
		} else {
			sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.FieldPath, err.Message))
		}
	}
	return sb.String()
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("nft_identifier", validateNftIdentifier); err != nil {
		panic(err)
	}

	// Register function to get field name from "toml" tag
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func validateNftIdentifier(fl validator.FieldLevel) bool {
	return nftIdentifierRegexp.MatchString(fl.Field().String())
}
