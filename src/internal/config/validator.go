package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ValidateConfig validates the entire configuration and returns all validation errors
func (c *Config) ValidateConfig() error {
	var validationErrors ValidationErrors

	sections := []struct {
		name  string
		value interface{}
	}{
		{"general", &c.General},
		{"web", &c.Web},
		{"ssh", &c.SSH},
		{"metrics", &c.Metrics},
		{"nftables", &c.Nftables},
		{"labels", &c.Labels},
	}
	for _, section := range sections {
		if err := validate.Struct(section.value); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, section.name, "")...)
		}
	}

	if len(c.OutletGroups) == 0 {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "outlet_groups",
			Message:   "configuration must contain at least one outlet group",
		})
	} else {
		validationErrors = append(validationErrors, c.validateOutletGroups()...)
	}

	validationErrors = append(validationErrors, c.validateTimeLimits()...)

	if len(validationErrors) > 0 {
		return validationErrors
	}

	return nil
}

func (c *Config) validateOutletGroups() ValidationErrors {
	var validationErrors ValidationErrors

	seenTitles := make(map[string]bool)
	// owner of every bit already claimed by an earlier group
	var claimed uint32
	claimedBy := make(map[uint32]string)

	for i, group := range c.OutletGroups {
		itemName := fmt.Sprintf("outlet_groups[%d]", i)
		if group == nil {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fmt.Sprintf("outlet_groups.%d", i),
				Message:   "outlet group is empty",
			})
			continue
		}
		if group.Title != "" {
			itemName = group.Title
		}

		if err := validate.Struct(group); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, fmt.Sprintf("outlet_groups.%d", i), itemName)...)
		}

		if group.Title != "" {
			if seenTitles[group.Title] {
				validationErrors = append(validationErrors, ValidationError{
					ItemName:  itemName,
					FieldPath: fmt.Sprintf("outlet_groups.%d.title", i),
					Message:   fmt.Sprintf("duplicate group title: %s", group.Title),
				})
			}
			seenTitles[group.Title] = true
		}

		// Masks must be pairwise disjoint
		if overlap := claimed & group.Mask; overlap != 0 {
			for bit := uint32(1); bit != 0; bit <<= 1 {
				if overlap&bit != 0 {
					validationErrors = append(validationErrors, ValidationError{
						ItemName:  itemName,
						FieldPath: fmt.Sprintf("outlet_groups.%d.mask", i),
						Message:   fmt.Sprintf("mask %#x overlaps group %q (shared bits %#x)", group.Mask, claimedBy[bit], overlap),
					})
					break
				}
			}
		}
		for bit := uint32(1); bit != 0; bit <<= 1 {
			if group.Mask&bit != 0 && claimed&bit == 0 {
				claimedBy[bit] = itemName
			}
		}
		claimed |= group.Mask

		seenNames := make(map[string]bool)
		seenValues := make(map[uint32]string)
		for j, outlet := range group.Outlets {
			if outlet == nil {
				continue
			}
			fieldPrefix := fmt.Sprintf("outlet_groups.%d.outlets.%d", i, j)

			if group.Mask != 0 && outlet.Value&^group.Mask != 0 {
				validationErrors = append(validationErrors, ValidationError{
					ItemName:  itemName,
					FieldPath: fieldPrefix + ".value",
					Message:   fmt.Sprintf("value %#x of outlet %q does not fit mask %#x", outlet.Value, outlet.Name, group.Mask),
				})
			}

			if outlet.Name != "" {
				if seenNames[outlet.Name] {
					validationErrors = append(validationErrors, ValidationError{
						ItemName:  itemName,
						FieldPath: fieldPrefix + ".name",
						Message:   fmt.Sprintf("duplicate outlet name: %s", outlet.Name),
					})
				}
				seenNames[outlet.Name] = true
			}

			if other, ok := seenValues[outlet.Value]; ok {
				validationErrors = append(validationErrors, ValidationError{
					ItemName:  itemName,
					FieldPath: fieldPrefix + ".value",
					Message:   fmt.Sprintf("outlet %q reuses value %#x of outlet %q", outlet.Name, outlet.Value, other),
				})
			} else {
				seenValues[outlet.Value] = outlet.Name
			}
		}
	}

	return validationErrors
}

func (c *Config) validateTimeLimits() ValidationErrors {
	var validationErrors ValidationErrors

	if len(c.TimeLimits) == 0 {
		return append(validationErrors, ValidationError{
			FieldPath: "time_limits",
			Message:   "must contain at least one duration",
		})
	}

	seen := make(map[int]bool)
	for i, hours := range c.TimeLimits {
		fieldPath := fmt.Sprintf("time_limits.%d", i)
		if hours < 0 {
			validationErrors = append(validationErrors, ValidationError{
				FieldPath: fieldPath,
				Message:   fmt.Sprintf("duration must be >= 0, got %d", hours),
			})
			continue
		}
		if hours > MaxTimeLimit {
			validationErrors = append(validationErrors, ValidationError{
				FieldPath: fieldPath,
				Message:   fmt.Sprintf("duration must be <= %d, got %d", MaxTimeLimit, hours),
			})
			continue
		}
		if seen[hours] {
			message := fmt.Sprintf("duplicate duration: %d", hours)
			if hours == 0 {
				message = "only one permanent duration (0) is allowed"
			}
			validationErrors = append(validationErrors, ValidationError{
				FieldPath: fieldPath,
				Message:   message,
			})
		}
		seen[hours] = true
	}

	return validationErrors
}

// convertValidatorErrors converts go-playground/validator errors to our ValidationError format
func convertValidatorErrors(err error, fieldPrefix string, itemName string) ValidationErrors {
	var validationErrors ValidationErrors

	var validatorErrs validator.ValidationErrors
	if errors.As(err, &validatorErrs) {
		for _, e := range validatorErrs {
			fieldPath := fieldPrefix
			if e.Field() != "" {
				// e.Field() returns the TOML tag name because we registered TagNameFunc
				if fieldPrefix != "" {
					fieldPath = fieldPrefix + "." + e.Field()
				} else {
					fieldPath = e.Field()
				}
			}

			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPath,
				Message:   getValidationMessage(e),
			})
		}
	}

	return validationErrors
}
