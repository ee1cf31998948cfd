package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/internal/shopper"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockReturner puts cancelled quantities back on the shelf.
type StockReturner interface {
	IncrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// Cancellation reasons recorded on order_cancelled.
const (
	ReasonShopper = "shopper_cancelled"
	ReasonExpired = "pending_expired"
)

// Service exposes order reads and the cancel path shared with the expiry job.
type Service interface {
	Get(ctx context.Context, identity shopper.Identity, orderID uuid.UUID) (*OrderDTO, error)
	List(ctx context.Context, identity shopper.Identity, params pagination.Params) (*OrderPage, error)
	Cancel(ctx context.Context, identity shopper.Identity, orderID uuid.UUID) (*OrderDTO, error)
	CancelPending(ctx context.Context, orderID uuid.UUID, reason string, actor *outbox.ActorRef) (bool, error)
}

type ServiceParams struct {
	Repo    *Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Stock   StockReturner
	Logger  *logger.Logger
	Metrics *metrics.CheckoutMetrics
	Now     func() time.Time
}

type service struct {
	repo    *Repository
	tx      txRunner
	outbox  outboxPublisher
	stock   StockReturner
	logg    *logger.Logger
	metrics *metrics.CheckoutMetrics
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock returner required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		stock:   params.Stock,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

func (s *service) Get(ctx context.Context, identity shopper.Identity, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.loadOwned(ctx, identity, orderID)
	if err != nil {
		return nil, err
	}
	dto := ToDTO(*order)
	return &dto, nil
}

func (s *service) List(ctx context.Context, identity shopper.Identity, params pagination.Params) (*OrderPage, error) {
	if !identity.IsUser() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to view order history")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListForUser(ctx, *identity.UserID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page := &OrderPage{Orders: make([]OrderDTO, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		page.Orders = append(page.Orders, ToDTO(row))
	}
	return page, nil
}

func (s *service) Cancel(ctx context.Context, identity shopper.Identity, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.loadOwned(ctx, identity, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be cancelled").
			WithDetails(map[string]any{"status": order.Status})
	}

	won, err := s.CancelPending(ctx, orderID, ReasonShopper, actorFor(identity))
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer pending")
	}
	return s.Get(ctx, identity, orderID)
}

// CancelPending moves a pending order to cancelled and returns its stock.
// Restock and the outbox event run only when this call won the transition.
func (s *service) CancelPending(ctx context.Context, orderID uuid.UUID, reason string, actor *outbox.ActorRef) (bool, error) {
	var won bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		at := s.now()
		ok, err := s.repo.Transition(ctx, tx, orderID, enums.OrderStatusCancelled, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !ok {
			return nil
		}
		won = true

		order, err := s.repo.FindByID(ctx, tx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		restocked, err := s.restock(ctx, tx, order.Items)
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			OccurredAt:    at,
			Data: payloads.OrderCancelledEvent{
				OrderID:      order.ID,
				Reason:       reason,
				RestockedQty: restocked,
				CancelledAt:  at,
			},
		})
	})
	if err != nil {
		won = false
		s.metrics.IncTransition(reason, "error")
		return false, err
	}
	if won {
		s.metrics.IncTransition(reason, "won")
		if s.logg != nil {
			s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "order cancelled")
		}
	} else {
		s.metrics.IncTransition(reason, "lost")
	}
	return won, nil
}

func (s *service) restock(ctx context.Context, tx *gorm.DB, items []models.OrderItem) (int, error) {
	total := 0
	for _, item := range items {
		if err := s.stock.IncrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock product").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		total += item.Quantity
	}
	return total, nil
}

// loadOwned hides orders that belong to someone else behind NOT_FOUND.
func (s *service) loadOwned(ctx context.Context, identity shopper.Identity, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, nil, orderID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !identity.Owns(order.UserID, order.SessionKey) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func actorFor(identity shopper.Identity) *outbox.ActorRef {
	if identity.IsUser() {
		return &outbox.ActorRef{Kind: outbox.ActorUser, ID: identity.UserID.String()}
	}
	return &outbox.ActorRef{Kind: outbox.ActorGuest}
}
