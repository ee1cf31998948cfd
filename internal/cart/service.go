package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/internal/shopper"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type productLoader interface {
	FindProduct(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Product, error)
	FindVariant(ctx context.Context, tx *gorm.DB, productID, variantID uuid.UUID) (*models.ProductVariant, error)
}

// Service manages the shopper's cart. Every mutation is persisted immediately.
type Service interface {
	GetOrCreateCart(ctx context.Context, identity shopper.Identity) (*models.Cart, error)
	View(ctx context.Context, identity shopper.Identity) (*View, error)
	AddItem(ctx context.Context, identity shopper.Identity, input AddItemInput) (*View, error)
	UpdateQuantity(ctx context.Context, identity shopper.Identity, itemID uuid.UUID, quantity int) (*View, error)
	RemoveItem(ctx context.Context, identity shopper.Identity, itemID uuid.UUID) (*View, error)
}

type service struct {
	repo     *Repository
	products productLoader
}

func NewService(repo *Repository, products productLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{repo: repo, products: products}, nil
}

func (s *service) GetOrCreateCart(ctx context.Context, identity shopper.Identity) (*models.Cart, error) {
	if identity.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart session required")
	}
	cart, err := s.repo.FindByIdentity(ctx, nil, identity)
	if err == nil {
		return cart, nil
	}
	if !repo.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}

	cart = &models.Cart{UserID: identity.UserID, SessionKey: identity.SessionPtr()}
	if err := s.repo.Create(ctx, cart); err != nil {
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create cart")
		}
		// another request created it first
		existing, findErr := s.repo.FindByIdentity(ctx, nil, identity)
		if findErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "reload cart")
		}
		return existing, nil
	}
	return cart, nil
}

func (s *service) View(ctx context.Context, identity shopper.Identity) (*View, error) {
	cart, err := s.GetOrCreateCart(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

func (s *service) AddItem(ctx context.Context, identity shopper.Identity, input AddItemInput) (*View, error) {
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be at least 1")
	}
	product, err := s.loadSellable(ctx, input.ProductID, input.VariantID)
	if err != nil {
		return nil, err
	}
	cart, err := s.GetOrCreateCart(ctx, identity)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindLine(ctx, cart.ID, input.ProductID, input.VariantID)
	if err != nil && !repo.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart line")
	}
	current := 0
	if existing != nil {
		current = existing.Quantity
	}
	if current+input.Quantity > product.StockQuantity {
		return nil, outOfStock(product, product.StockQuantity-current)
	}

	if existing != nil {
		if err := s.repo.UpdateItemQuantity(ctx, existing.ID, current+input.Quantity); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update cart line")
		}
		return s.view(ctx, cart)
	}

	item := &models.CartItem{
		CartID:    cart.ID,
		ProductID: input.ProductID,
		VariantID: input.VariantID,
		Quantity:  input.Quantity,
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "cart changed concurrently, retry")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add cart line")
	}
	return s.view(ctx, cart)
}

func (s *service) UpdateQuantity(ctx context.Context, identity shopper.Identity, itemID uuid.UUID, quantity int) (*View, error) {
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be at least 1")
	}
	cart, err := s.GetOrCreateCart(ctx, identity)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindItem(ctx, cart.ID, itemID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart line")
	}
	product, err := s.loadSellable(ctx, item.ProductID, item.VariantID)
	if err != nil {
		return nil, err
	}
	if quantity > product.StockQuantity {
		return nil, outOfStock(product, product.StockQuantity)
	}
	if err := s.repo.UpdateItemQuantity(ctx, item.ID, quantity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update cart line")
	}
	return s.view(ctx, cart)
}

func (s *service) RemoveItem(ctx context.Context, identity shopper.Identity, itemID uuid.UUID) (*View, error) {
	cart, err := s.GetOrCreateCart(ctx, identity)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteItem(ctx, cart.ID, itemID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove cart line")
	}
	return s.view(ctx, cart)
}

// loadSellable returns the product when it is active and, if variantID is set,
// the variant is an available variant of it.
func (s *service) loadSellable(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*models.Product, error) {
	product, err := s.products.FindProduct(ctx, nil, productID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if variantID == nil {
		return product, nil
	}
	variant, err := s.products.FindVariant(ctx, nil, productID, *variantID)
	if err != nil && !repo.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant")
	}
	if variant == nil || !variant.IsAvailable {
		return nil, pkgerrors.New(pkgerrors.CodeVariantUnavailable, "selected variant is not available").
			WithDetails(map[string]any{"product_id": productID, "variant_id": *variantID})
	}
	return product, nil
}

func (s *service) view(ctx context.Context, cart *models.Cart) (*View, error) {
	items, err := s.repo.ListItems(ctx, nil, cart.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart lines")
	}
	return buildView(cart, items), nil
}

func outOfStock(product *models.Product, available int) error {
	if available < 0 {
		available = 0
	}
	return pkgerrors.New(pkgerrors.CodeOutOfStock, fmt.Sprintf("only %d of %s available", available, product.Name)).
		WithDetails(map[string]any{"product_id": product.ID, "available": available})
}
