package helpers

import (
	"net/mail"
	"sort"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Contact is the delivery snapshot captured on every order.
type Contact struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Phone   string `json:"phone" validate:"required,max=32"`
	Address string `json:"address" validate:"required,max=300"`
	City    string `json:"city" validate:"required,max=100"`
}

// ValidateContact checks required fields after the HTTP layer has sanitized them.
func ValidateContact(c Contact) error {
	missing := []string{}
	for field, value := range map[string]string{
		"name":    c.Name,
		"email":   c.Email,
		"phone":   c.Phone,
		"address": c.Address,
		"city":    c.City,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return pkgerrors.New(pkgerrors.CodeValidation, "contact details are incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(c.Email)); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "email is invalid")
	}
	return nil
}
