package cart

import (
	"strings"

	"github.com/google/uuid"

	internalcart "github.com/angelmondragon/storefront-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type addItemRequest struct {
	ProductID string  `json:"product_id" validate:"required"`
	VariantID *string `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

// toInput parses identifiers. Quantity bounds are enforced by the cart service.
func (r addItemRequest) toInput() (internalcart.AddItemInput, error) {
	productID, err := uuid.Parse(strings.TrimSpace(r.ProductID))
	if err != nil {
		return internalcart.AddItemInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id").
			WithDetails(map[string]any{"field": "product_id"})
	}
	input := internalcart.AddItemInput{ProductID: productID, Quantity: r.Quantity}
	if r.VariantID != nil && strings.TrimSpace(*r.VariantID) != "" {
		variantID, err := uuid.Parse(strings.TrimSpace(*r.VariantID))
		if err != nil {
			return internalcart.AddItemInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variant id").
				WithDetails(map[string]any{"field": "variant_id"})
		}
		input.VariantID = &variantID
	}
	return input, nil
}
