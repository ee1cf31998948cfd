package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// AddItemInput is a request to put quantity units of a product (or one of its variants) in the cart.
type AddItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

type LineDTO struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	VariantID   *uuid.UUID      `json:"variant_id,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// View is the cart as returned to the shopper.
type View struct {
	ID        uuid.UUID       `json:"id"`
	Items     []LineDTO       `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	ItemCount int             `json:"item_count"`
}

// Summary holds the derived cart figures.
type Summary struct {
	Subtotal  decimal.Decimal
	ItemCount int
}

// UnitPrice is the effective price of a line right now.
func UnitPrice(item models.CartItem) decimal.Decimal {
	base := decimal.Zero
	if item.Product != nil {
		base = item.Product.Price
	}
	return item.Variant.EffectivePrice(base)
}

// Totals recomputes subtotal and item count from the current lines.
func Totals(items []models.CartItem) Summary {
	sum := Summary{Subtotal: decimal.Zero}
	for _, item := range items {
		sum.Subtotal = sum.Subtotal.Add(UnitPrice(item).Mul(decimal.NewFromInt(int64(item.Quantity))))
		sum.ItemCount += item.Quantity
	}
	return sum
}

func buildView(cart *models.Cart, items []models.CartItem) *View {
	lines := make([]LineDTO, 0, len(items))
	for _, item := range items {
		price := UnitPrice(item)
		line := LineDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: price,
			LineTotal: price.Mul(decimal.NewFromInt(int64(item.Quantity))),
		}
		if item.Product != nil {
			line.ProductName = item.Product.Name
		}
		lines = append(lines, line)
	}
	totals := Totals(items)
	return &View{
		ID:        cart.ID,
		Items:     lines,
		Subtotal:  totals.Subtotal,
		ItemCount: totals.ItemCount,
	}
}
