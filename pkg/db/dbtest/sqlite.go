// Package dbtest opens throwaway sqlite databases carrying the storefront schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// schema mirrors the goose migrations closely enough for repository tests.
// Money columns are TEXT so decimals round-trip exactly.
var schema = []string{
	`CREATE TABLE categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME
	)`,
	`CREATE TABLE subcategories (
		id TEXT PRIMARY KEY,
		category_id TEXT NOT NULL,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME
	)`,
	`CREATE TABLE fabric_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE sizes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		sort_order INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		category_id TEXT NOT NULL,
		subcategory_id TEXT,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		description TEXT,
		price TEXT NOT NULL,
		stock_quantity INTEGER NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
		is_active BOOLEAN NOT NULL DEFAULT 1,
		image_url TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE product_variants (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		fabric_type_id TEXT NOT NULL,
		size_id TEXT NOT NULL,
		is_available BOOLEAN NOT NULL DEFAULT 1,
		warehouse_location TEXT,
		price_override TEXT,
		created_at DATETIME,
		UNIQUE (product_id, fabric_type_id, size_id)
	)`,
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		phone TEXT,
		address TEXT,
		city TEXT,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		last_login_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE carts (
		id TEXT PRIMARY KEY,
		user_id TEXT UNIQUE,
		session_key TEXT UNIQUE,
		created_at DATETIME,
		updated_at DATETIME,
		CHECK ((user_id IS NULL) <> (session_key IS NULL))
	)`,
	`CREATE TABLE cart_items (
		id TEXT PRIMARY KEY,
		cart_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		variant_id TEXT,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX cart_items_cart_product_variant_key ON cart_items (cart_id, product_id, variant_id) WHERE variant_id IS NOT NULL`,
	`CREATE UNIQUE INDEX cart_items_cart_product_novariant_key ON cart_items (cart_id, product_id) WHERE variant_id IS NULL`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		session_key TEXT,
		guest_name TEXT NOT NULL,
		guest_email TEXT NOT NULL,
		guest_phone TEXT NOT NULL,
		guest_address TEXT NOT NULL,
		guest_city TEXT NOT NULL,
		notes TEXT,
		subtotal TEXT NOT NULL,
		shipping_fee TEXT NOT NULL,
		discount_amount TEXT NOT NULL DEFAULT '0',
		coupon_code TEXT,
		total_price TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		payment_reference TEXT UNIQUE,
		gateway_token TEXT,
		paid_at DATETIME,
		cancelled_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		variant_id TEXT,
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE coupons (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		discount_type TEXT NOT NULL,
		discount_value TEXT NOT NULL,
		minimum_order_amount TEXT NOT NULL DEFAULT '0',
		valid_from DATETIME NOT NULL,
		valid_until DATETIME NOT NULL,
		max_uses INTEGER NOT NULL DEFAULT 0,
		times_used INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME
	)`,
	`CREATE TABLE newsletter_subscribers (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		coupon_code TEXT NOT NULL UNIQUE,
		discount_percent TEXT NOT NULL,
		is_used BOOLEAN NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		unsubscribe_token TEXT NOT NULL UNIQUE,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX coupons_code_upper_key ON coupons (upper(code))`,
	`CREATE UNIQUE INDEX newsletter_subscribers_code_upper_key ON newsletter_subscribers (upper(coupon_code))`,
	`CREATE TABLE wishlist_items (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		created_at DATETIME,
		UNIQUE (user_id, product_id)
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME
	)`,
}

// Open returns an isolated in-memory database with the schema applied. A
// single connection backs the pool so concurrent transactions serialize.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
