package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductVariant is a (fabric, size) configuration of a product.
type ProductVariant struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID         uuid.UUID        `gorm:"column:product_id;type:uuid;not null"`
	FabricTypeID      uuid.UUID        `gorm:"column:fabric_type_id;type:uuid;not null"`
	SizeID            uuid.UUID        `gorm:"column:size_id;type:uuid;not null"`
	IsAvailable       bool             `gorm:"column:is_available;not null"`
	WarehouseLocation *string          `gorm:"column:warehouse_location"`
	PriceOverride     *decimal.Decimal `gorm:"column:price_override;type:numeric(10,2)"`
	FabricType        *FabricType      `gorm:"foreignKey:FabricTypeID"`
	Size              *Size            `gorm:"foreignKey:SizeID"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}

// EffectivePrice returns the override when it is positive, otherwise base.
func (v *ProductVariant) EffectivePrice(base decimal.Decimal) decimal.Decimal {
	if v == nil || v.PriceOverride == nil || !v.PriceOverride.IsPositive() {
		return base
	}
	return *v.PriceOverride
}
