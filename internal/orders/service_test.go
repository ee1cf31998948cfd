package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/shopper"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

func newOrderService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		Tx:     db.Wrap(conn),
		Outbox: outbox.NewService(outbox.NewRepository(conn), nil),
		Stock:  catalog.NewRepository(conn),
	})
	require.NoError(t, err)
	return svc, conn
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code())
}

func TestTransitionIsCompareAndSet(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	order := dbtest.SeedOrder(t, conn, dbtest.OrderSeed{SessionKey: "s"})
	now := time.Now().UTC()

	won, err := repo.Transition(ctx, nil, order.ID, enums.OrderStatusPaid, now)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.Transition(ctx, nil, order.ID, enums.OrderStatusPaid, now)
	require.NoError(t, err)
	assert.False(t, won, "second transition must lose")

	won, err = repo.Transition(ctx, nil, order.ID, enums.OrderStatusCancelled, now)
	require.NoError(t, err)
	assert.False(t, won, "paid is terminal")

	_, err = repo.Transition(ctx, nil, order.ID, enums.OrderStatusPending, now)
	require.Error(t, err)

	stored, err := repo.FindByID(ctx, nil, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	assert.Nil(t, stored.CancelledAt)
}

func TestGetHidesOtherShoppersOrders(t *testing.T) {
	svc, conn := newOrderService(t)
	ctx := context.Background()
	owner := uuid.New()
	order := dbtest.SeedOrder(t, conn, dbtest.OrderSeed{UserID: &owner})

	got, err := svc.Get(ctx, shopper.ForUser(owner), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = svc.Get(ctx, shopper.ForUser(uuid.New()), order.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = svc.Get(ctx, shopper.ForSession("someone"), order.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = svc.Get(ctx, shopper.ForUser(owner), uuid.New())
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestCancelRestocksAndEmitsOnce(t *testing.T) {
	svc, conn := newOrderService(t)
	ctx := context.Background()
	product := dbtest.SeedProduct(t, conn, dbtest.ProductSeed{Stock: 1})
	identity := shopper.ForSession("guest-cancel")
	order := dbtest.SeedOrder(t, conn, dbtest.OrderSeed{
		SessionKey: "guest-cancel",
		Items:      []dbtest.OrderItemSeed{{ProductID: product.ID, Quantity: 2, Price: "50.00"}},
	})

	dto, err := svc.Cancel(ctx, identity, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, dto.Status)
	require.NotNil(t, dto.CancelledAt)
	assert.Equal(t, 3, dbtest.StockOf(t, conn, product.ID))
	assert.Equal(t, 1, dbtest.CountOutbox(t, conn, enums.EventOrderCancelled))

	_, err = svc.Cancel(ctx, identity, order.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.Equal(t, 3, dbtest.StockOf(t, conn, product.ID), "second cancel must not restock")
}

func TestCancelPendingLosesAfterPayment(t *testing.T) {
	svc, conn := newOrderService(t)
	ctx := context.Background()
	product := dbtest.SeedProduct(t, conn, dbtest.ProductSeed{Stock: 0})
	order := dbtest.SeedOrder(t, conn, dbtest.OrderSeed{
		SessionKey: "late",
		Items:      []dbtest.OrderItemSeed{{ProductID: product.ID, Quantity: 1, Price: "10.00"}},
	})
	_, err := NewRepository(conn).Transition(ctx, nil, order.ID, enums.OrderStatusPaid, time.Now().UTC())
	require.NoError(t, err)

	won, err := svc.CancelPending(ctx, order.ID, ReasonExpired, nil)
	require.NoError(t, err)
	assert.False(t, won)
	assert.Equal(t, 0, dbtest.StockOf(t, conn, product.ID))
	assert.Equal(t, 0, dbtest.CountOutbox(t, conn, enums.EventOrderCancelled))
}

func TestListRequiresUserAndPaginates(t *testing.T) {
	svc, conn := newOrderService(t)
	ctx := context.Background()
	user := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		dbtest.SeedOrder(t, conn, dbtest.OrderSeed{UserID: &user, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	other := uuid.New()
	dbtest.SeedOrder(t, conn, dbtest.OrderSeed{UserID: &other})

	_, err := svc.List(ctx, shopper.ForSession("guest"), pagination.Params{})
	requireCode(t, err, pkgerrors.CodeUnauthorized)

	first, err := svc.List(ctx, shopper.ForUser(user), pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	require.NotEmpty(t, first.NextCursor)
	assert.True(t, first.Orders[0].CreatedAt.After(first.Orders[1].CreatedAt))

	second, err := svc.List(ctx, shopper.ForUser(user), pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	assert.Empty(t, second.NextCursor)

	_, err = svc.List(ctx, shopper.ForUser(user), pagination.Params{Cursor: "%%%"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestListPendingBefore(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	now := time.Now().UTC()
	stale := dbtest.SeedOrder(t, conn, dbtest.OrderSeed{SessionKey: "a", CreatedAt: now.Add(-48 * time.Hour)})
	dbtest.SeedOrder(t, conn, dbtest.OrderSeed{SessionKey: "b", CreatedAt: now.Add(-time.Hour)})
	paid := dbtest.SeedOrder(t, conn, dbtest.OrderSeed{SessionKey: "c", CreatedAt: now.Add(-72 * time.Hour)})
	_, err := repo.Transition(context.Background(), nil, paid.ID, enums.OrderStatusPaid, now)
	require.NoError(t, err)

	rows, err := repo.ListPendingBefore(context.Background(), now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stale.ID, rows[0].ID)
}
