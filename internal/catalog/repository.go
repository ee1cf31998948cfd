package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// ProductFilter narrows the storefront listing.
type ProductFilter struct {
	CategorySlug    string
	SubcategorySlug string
	Search          string
}

// Repository reads catalog tables and owns the conditional stock updates.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// ListActiveProducts returns one page of active products, newest first.
func (r *Repository) ListActiveProducts(ctx context.Context, filter ProductFilter, params pagination.Params) ([]models.Product, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.DB(ctx).
		Model(&models.Product{}).
		Where("products.is_active = ?", true)

	if slug := strings.TrimSpace(filter.CategorySlug); slug != "" {
		query = query.Joins("JOIN categories ON categories.id = products.category_id").
			Where("categories.slug = ?", slug)
	}
	if slug := strings.TrimSpace(filter.SubcategorySlug); slug != "" {
		query = query.Joins("JOIN subcategories ON subcategories.id = products.subcategory_id").
			Where("subcategories.slug = ?", slug)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		query = query.Where("LOWER(products.name) LIKE ?", "%"+strings.ToLower(term)+"%")
	}

	var rows []models.Product
	if err := query.Scopes(pagination.Keyset("products", cursor, params.Limit)).Find(&rows).Error; err != nil {
		return nil, "", err
	}

	page, next := pagination.Page(rows, params.Limit, func(p models.Product) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return page, next, nil
}

// FindActiveBySlug loads an active product with its available variants.
func (r *Repository) FindActiveBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	err := r.DB(ctx).
		Preload("Variants", "is_available = ?", true).
		Preload("Variants.FabricType").
		Preload("Variants.Size").
		Where("slug = ? AND is_active = ?", strings.TrimSpace(slug), true).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListActiveCategories returns categories with their active subcategories.
func (r *Repository) ListActiveCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := r.DB(ctx).
		Preload("Subcategories", func(db *gorm.DB) *gorm.DB {
			return db.Where("is_active = ?", true).Order("name ASC")
		}).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&categories).Error
	return categories, err
}

// FindProduct loads a product by id regardless of status, using tx when given.
func (r *Repository) FindProduct(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.Conn(ctx, tx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindVariant loads a variant only when it belongs to productID.
func (r *Repository) FindVariant(ctx context.Context, tx *gorm.DB, productID, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.Conn(ctx, tx).
		Where("id = ? AND product_id = ?", variantID, productID).
		First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

// DecrementStock subtracts qty only if enough stock remains. It reports false
// when the guard rejected the update.
func (r *Repository) DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	res := r.Conn(ctx, tx).Exec(
		`UPDATE products SET stock_quantity = stock_quantity - ? WHERE id = ? AND stock_quantity >= ?`,
		qty, productID, qty,
	)
	if db.IsCheckViolation(res.Error) {
		return false, nil
	}
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementStock returns qty units to the product.
func (r *Repository) IncrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	return r.Conn(ctx, tx).Exec(
		`UPDATE products SET stock_quantity = stock_quantity + ? WHERE id = ?`,
		qty, productID,
	).Error
}
