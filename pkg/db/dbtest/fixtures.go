package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ProductSeed describes a product row for tests. Zero values pick sensible defaults.
type ProductSeed struct {
	Name       string
	Price      string
	Stock      int
	Inactive   bool
	CategoryID uuid.UUID
	CreatedAt  time.Time
}

// SeedCategory inserts an active category.
func SeedCategory(t *testing.T, db *gorm.DB, slug string) models.Category {
	t.Helper()
	c := models.Category{Name: slug, Slug: slug, IsActive: true}
	mustCreate(t, db, &c)
	return c
}

// SeedProduct inserts a product, creating a category when none is given.
func SeedProduct(t *testing.T, db *gorm.DB, seed ProductSeed) models.Product {
	t.Helper()
	if seed.Name == "" {
		seed.Name = "Product " + uuid.NewString()[:6]
	}
	if seed.Price == "" {
		seed.Price = "100.00"
	}
	if seed.CategoryID == uuid.Nil {
		seed.CategoryID = SeedCategory(t, db, "cat-"+uuid.NewString()[:8]).ID
	}
	p := models.Product{
		CategoryID:    seed.CategoryID,
		Name:          seed.Name,
		Slug:          slugify(seed.Name) + "-" + uuid.NewString()[:6],
		Price:         decimal.RequireFromString(seed.Price),
		StockQuantity: seed.Stock,
		IsActive:      true,
		CreatedAt:     seed.CreatedAt,
	}
	mustCreate(t, db, &p)
	if seed.Inactive {
		if err := db.Model(&models.Product{}).Where("id = ?", p.ID).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate product: %v", err)
		}
		p.IsActive = false
	}
	return p
}

// SeedVariant inserts a variant with fresh fabric and size rows.
func SeedVariant(t *testing.T, db *gorm.DB, productID uuid.UUID, priceOverride string, available bool) models.ProductVariant {
	t.Helper()
	suffix := uuid.NewString()[:6]
	fabric := models.FabricType{Name: "Linen " + suffix}
	size := models.Size{Name: "M " + suffix}
	mustCreate(t, db, &fabric)
	mustCreate(t, db, &size)

	v := models.ProductVariant{
		ProductID:    productID,
		FabricTypeID: fabric.ID,
		SizeID:       size.ID,
		IsAvailable:  true,
	}
	if priceOverride != "" {
		d := decimal.RequireFromString(priceOverride)
		v.PriceOverride = &d
	}
	mustCreate(t, db, &v)
	if !available {
		if err := db.Model(&models.ProductVariant{}).Where("id = ?", v.ID).Update("is_available", false).Error; err != nil {
			t.Fatalf("disable variant: %v", err)
		}
		v.IsAvailable = false
	}
	return v
}

// CouponSeed describes a general coupon for tests.
type CouponSeed struct {
	Code     string
	Type     enums.DiscountType
	Value    string
	MinOrder string
	MaxUses  int
	Used     int
	Inactive bool
	From     time.Time
	Until    time.Time
}

// SeedCoupon inserts a coupon valid around now unless a window is supplied.
func SeedCoupon(t *testing.T, db *gorm.DB, seed CouponSeed) models.Coupon {
	t.Helper()
	now := time.Now().UTC()
	if seed.From.IsZero() {
		seed.From = now.Add(-24 * time.Hour)
	}
	if seed.Until.IsZero() {
		seed.Until = now.Add(24 * time.Hour)
	}
	if seed.MinOrder == "" {
		seed.MinOrder = "0"
	}
	c := models.Coupon{
		Code:               strings.ToUpper(seed.Code),
		DiscountType:       seed.Type,
		DiscountValue:      decimal.RequireFromString(seed.Value),
		MinimumOrderAmount: decimal.RequireFromString(seed.MinOrder),
		ValidFrom:          seed.From,
		ValidUntil:         seed.Until,
		MaxUses:            seed.MaxUses,
		TimesUsed:          seed.Used,
		IsActive:           true,
	}
	mustCreate(t, db, &c)
	if seed.Inactive {
		if err := db.Model(&models.Coupon{}).Where("id = ?", c.ID).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate coupon: %v", err)
		}
		c.IsActive = false
	}
	return c
}

// SeedNewsletter inserts an active, unused newsletter subscriber.
func SeedNewsletter(t *testing.T, db *gorm.DB, code, percent string) models.NewsletterSubscriber {
	t.Helper()
	n := models.NewsletterSubscriber{
		Email:            fmt.Sprintf("%s@example.com", strings.ToLower(code)),
		CouponCode:       strings.ToUpper(code),
		DiscountPercent:  decimal.RequireFromString(percent),
		IsActive:         true,
		UnsubscribeToken: uuid.NewString(),
	}
	mustCreate(t, db, &n)
	return n
}

// OrderSeed describes a pending order. Items reference existing products.
type OrderSeed struct {
	UserID     *uuid.UUID
	SessionKey string
	Items      []OrderItemSeed
	Shipping   string
	Discount   string
	CouponCode string
	PaymentRef string
	CreatedAt  time.Time
}

type OrderItemSeed struct {
	ProductID uuid.UUID
	Quantity  int
	Price     string
}

// SeedOrder inserts a pending order with totals derived from its items.
func SeedOrder(t *testing.T, db *gorm.DB, seed OrderSeed) models.Order {
	t.Helper()
	if seed.Shipping == "" {
		seed.Shipping = "0"
	}
	if seed.Discount == "" {
		seed.Discount = "0"
	}
	subtotal := decimal.Zero
	for _, item := range seed.Items {
		subtotal = subtotal.Add(decimal.RequireFromString(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	shipping := decimal.RequireFromString(seed.Shipping)
	discount := decimal.RequireFromString(seed.Discount)
	total := subtotal.Add(shipping).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	o := models.Order{
		UserID:         seed.UserID,
		GuestName:      "Dana Levi",
		GuestEmail:     "dana@example.com",
		GuestPhone:     "0501234567",
		GuestAddress:   "1 Herzl St",
		GuestCity:      "Tel Aviv",
		Subtotal:       subtotal,
		ShippingFee:    shipping,
		DiscountAmount: discount,
		TotalPrice:     total,
		Status:         enums.OrderStatusPending,
		CreatedAt:      seed.CreatedAt,
	}
	if seed.SessionKey != "" {
		key := seed.SessionKey
		o.SessionKey = &key
	}
	if seed.CouponCode != "" {
		code := strings.ToUpper(seed.CouponCode)
		o.CouponCode = &code
	}
	if seed.PaymentRef != "" {
		ref := seed.PaymentRef
		o.PaymentReference = &ref
	}
	mustCreate(t, db, &o)

	for _, item := range seed.Items {
		row := models.OrderItem{
			OrderID:     o.ID,
			ProductID:   item.ProductID,
			ProductName: "Seeded item",
			Quantity:    item.Quantity,
			Price:       decimal.RequireFromString(item.Price),
		}
		mustCreate(t, db, &row)
		o.Items = append(o.Items, row)
	}
	return o
}

// StatusOf reads the current status for orderID.
func StatusOf(t *testing.T, db *gorm.DB, orderID uuid.UUID) enums.OrderStatus {
	t.Helper()
	var o models.Order
	if err := db.First(&o, "id = ?", orderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	return o.Status
}

// CountOutbox counts outbox rows of eventType.
func CountOutbox(t *testing.T, db *gorm.DB, eventType enums.OutboxEventType) int {
	t.Helper()
	var n int64
	if err := db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	return int(n)
}

// StockOf reads the current stock for productID.
func StockOf(t *testing.T, db *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var p models.Product
	if err := db.First(&p, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return p.StockQuantity
}

func mustCreate(t *testing.T, db *gorm.DB, value any) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("seed %T: %v", value, err)
	}
}

func slugify(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), "-"))
}
