package catalog

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

type ProductSummaryDTO struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Slug          string          `json:"slug"`
	Price         decimal.Decimal `json:"price"`
	InStock       bool            `json:"in_stock"`
	StockQuantity int             `json:"stock_quantity"`
	ImageURL      *string         `json:"image_url,omitempty"`
	CategoryID    uuid.UUID       `json:"category_id"`
	SubcategoryID *uuid.UUID      `json:"subcategory_id,omitempty"`
}

type VariantDTO struct {
	ID         uuid.UUID       `json:"id"`
	FabricType string          `json:"fabric_type"`
	Size       string          `json:"size"`
	Price      decimal.Decimal `json:"price"`
}

type ProductDetailDTO struct {
	ProductSummaryDTO
	Description *string      `json:"description,omitempty"`
	Variants    []VariantDTO `json:"variants"`
}

type ProductPageDTO struct {
	Items      []ProductSummaryDTO `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

type SubcategoryDTO struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

type CategoryDTO struct {
	ID            uuid.UUID        `json:"id"`
	Name          string           `json:"name"`
	Slug          string           `json:"slug"`
	Subcategories []SubcategoryDTO `json:"subcategories"`
}

// SummaryFromModel projects a product into its listing shape.
func SummaryFromModel(p models.Product) ProductSummaryDTO {
	return ProductSummaryDTO{
		ID:            p.ID,
		Name:          p.Name,
		Slug:          p.Slug,
		Price:         p.Price,
		InStock:       p.StockQuantity > 0,
		StockQuantity: p.StockQuantity,
		ImageURL:      p.ImageURL,
		CategoryID:    p.CategoryID,
		SubcategoryID: p.SubcategoryID,
	}
}

func detailFromModel(p models.Product) ProductDetailDTO {
	variants := make([]VariantDTO, 0, len(p.Variants))
	for i := range p.Variants {
		v := p.Variants[i]
		dto := VariantDTO{ID: v.ID, Price: v.EffectivePrice(p.Price)}
		if v.FabricType != nil {
			dto.FabricType = v.FabricType.Name
		}
		if v.Size != nil {
			dto.Size = v.Size.Name
		}
		variants = append(variants, dto)
	}
	return ProductDetailDTO{
		ProductSummaryDTO: SummaryFromModel(p),
		Description:       p.Description,
		Variants:          variants,
	}
}

func categoryFromModel(c models.Category) CategoryDTO {
	subs := make([]SubcategoryDTO, 0, len(c.Subcategories))
	for _, s := range c.Subcategories {
		subs = append(subs, SubcategoryDTO{ID: s.ID, Name: s.Name, Slug: s.Slug})
	}
	return CategoryDTO{ID: c.ID, Name: c.Name, Slug: c.Slug, Subcategories: subs}
}
