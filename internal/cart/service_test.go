package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/shopper"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func newCartService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	svc, err := NewService(NewRepository(db), catalog.NewRepository(db))
	require.NoError(t, err)
	return svc, db
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code())
}

func TestGetOrCreateCartIsStablePerIdentity(t *testing.T) {
	svc, _ := newCartService(t)
	ctx := context.Background()

	guest := shopper.ForSession("sess-a")
	first, err := svc.GetOrCreateCart(ctx, guest)
	require.NoError(t, err)
	again, err := svc.GetOrCreateCart(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	user, err := svc.GetOrCreateCart(ctx, shopper.ForUser(uuid.New()))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, user.ID)

	_, err = svc.GetOrCreateCart(ctx, shopper.Identity{})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestAddItemMergesSameLineAndComputesTotals(t *testing.T) {
	svc, db := newCartService(t)
	ctx := context.Background()
	identity := shopper.ForSession("sess-totals")

	product := dbtest.SeedProduct(t, db, dbtest.ProductSeed{Name: "Linen Shirt", Price: "120.00", Stock: 5})
	variant := dbtest.SeedVariant(t, db, product.ID, "150.00", true)

	_, err := svc.AddItem(ctx, identity, AddItemInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, identity, AddItemInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)
	view, err := svc.AddItem(ctx, identity, AddItemInput{ProductID: product.ID, VariantID: &variant.ID, Quantity: 1})
	require.NoError(t, err)

	require.Len(t, view.Items, 2, "nil variant and concrete variant are distinct lines")
	assert.Equal(t, 3, view.ItemCount)
	assert.True(t, view.Subtotal.Equal(decimal.RequireFromString("390.00")), "got %s", view.Subtotal)
}

func TestAddItemValidation(t *testing.T) {
	svc, db := newCartService(t)
	ctx := context.Background()
	identity := shopper.ForSession("sess-validation")

	product := dbtest.SeedProduct(t, db, dbtest.ProductSeed{Stock: 2})
	inactive := dbtest.SeedProduct(t, db, dbtest.ProductSeed{Stock: 2, Inactive: true})
	unavailable := dbtest.SeedVariant(t, db, product.ID, "", false)
	foreign := dbtest.SeedVariant(t, db, inactive.ID, "", true)

	_, err := svc.AddItem(ctx, identity, AddItemInput{ProductID: product.ID, Quantity: 0})
	requireCode(t, err, pkgerrors.CodeInvalidQuantity)

	_, err = svc.AddItem(ctx, identity, AddItemInput{ProductID: uuid.New(), Quantity: 1})
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = svc.AddItem(ctx, identity, AddItemInput{ProductID: inactive.ID, Quantity: 1})
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = svc.AddItem(ctx, identity, AddItemInput{ProductID: product.ID, VariantID: &unavailable.ID, Quantity: 1})
	requireCode(t, err, pkgerrors.CodeVariantUnavailable)

	_, err = svc.AddItem(ctx, identity, AddItemInput{ProductID: product.ID, VariantID: &foreign.ID, Quantity: 1})
	requireCode(t, err, pkgerrors.CodeVariantUnavailable)

	_, err = svc.AddItem(ctx, identity, AddItemInput{ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, identity, AddItemInput{ProductID: product.ID, Quantity: 1})
	requireCode(t, err, pkgerrors.CodeOutOfStock)
}

func TestUpdateQuantityAndRemoveAreScopedToOwner(t *testing.T) {
	svc, db := newCartService(t)
	ctx := context.Background()
	owner := shopper.ForSession("sess-owner")
	stranger := shopper.ForSession("sess-stranger")

	product := dbtest.SeedProduct(t, db, dbtest.ProductSeed{Price: "10.00", Stock: 3})
	view, err := svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)
	itemID := view.Items[0].ID

	_, err = svc.UpdateQuantity(ctx, stranger, itemID, 2)
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = svc.UpdateQuantity(ctx, owner, itemID, 0)
	requireCode(t, err, pkgerrors.CodeInvalidQuantity)

	_, err = svc.UpdateQuantity(ctx, owner, itemID, 4)
	requireCode(t, err, pkgerrors.CodeOutOfStock)

	view, err = svc.UpdateQuantity(ctx, owner, itemID, 3)
	require.NoError(t, err)
	assert.True(t, view.Subtotal.Equal(decimal.RequireFromString("30")))

	_, err = svc.RemoveItem(ctx, stranger, itemID)
	require.NoError(t, err)
	view, err = svc.View(ctx, owner)
	require.NoError(t, err)
	require.Len(t, view.Items, 1, "stranger must not remove another cart's line")

	view, err = svc.RemoveItem(ctx, owner, itemID)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.True(t, view.Subtotal.IsZero())
}

func TestTotalsReflectCurrentPrices(t *testing.T) {
	svc, db := newCartService(t)
	ctx := context.Background()
	identity := shopper.ForSession("sess-price")

	product := dbtest.SeedProduct(t, db, dbtest.ProductSeed{Price: "50.00", Stock: 5})
	_, err := svc.AddItem(ctx, identity, AddItemInput{ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`UPDATE products SET price = ? WHERE id = ?`, "40.00", product.ID).Error)

	view, err := svc.View(ctx, identity)
	require.NoError(t, err)
	assert.True(t, view.Subtotal.Equal(decimal.RequireFromString("80")), "got %s", view.Subtotal)
}
