package seed

import (
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/hilive/hilive/internal/config"
	giftdomain "github.com/hilive/hilive/internal/gift/domain"
	walletdomain "github.com/hilive/hilive/internal/wallet/domain"
	"gorm.io/gorm"
)

func setupSeedDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	stmts := []string{
		`CREATE TABLE gifts (
			id INTEGER PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			price_coins INTEGER NOT NULL,
			diamond_value INTEGER NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE accounts (
			user_id INTEGER PRIMARY KEY,
			coins INTEGER NOT NULL DEFAULT 0,
			diamonds INTEGER NOT NULL DEFAULT 0,
			points INTEGER NOT NULL DEFAULT 0,
			total_coins_spent INTEGER NOT NULL DEFAULT 0,
			total_diamonds_earned INTEGER NOT NULL DEFAULT 0,
			wealth_level INTEGER NOT NULL DEFAULT 0,
			live_level INTEGER NOT NULL DEFAULT 0,
			guarded_by_user_id INTEGER,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if err := gdb.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return gdb
}

func TestEnsureGiftCatalogUpsert(t *testing.T) {
	gdb := setupSeedDB(t)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	defs := config.DefaultGamificationConfig().Gifts
	if err := EnsureGiftCatalog(gdb, node, defs); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}

	var count int64
	if err := gdb.Model(&giftdomain.Gift{}).Count(&count).Error; err != nil {
		t.Fatalf("count gifts: %v", err)
	}
	if count != int64(len(defs)) {
		t.Fatalf("expected %d gifts, got %d", len(defs), count)
	}

	var rose giftdomain.Gift
	if err := gdb.Where("code = ?", "rose").First(&rose).Error; err != nil {
		t.Fatalf("load rose: %v", err)
	}
	originalID := rose.ID

	// Reseeding with a retuned price updates in place.
	retuned := []config.GiftDef{{Code: "rose", Name: "Rose", PriceCoins: 20, DiamondValue: 10}}
	if err := EnsureGiftCatalog(gdb, node, retuned); err != nil {
		t.Fatalf("reseed catalog: %v", err)
	}

	if err := gdb.Where("code = ?", "rose").First(&rose).Error; err != nil {
		t.Fatalf("reload rose: %v", err)
	}
	if rose.ID != originalID {
		t.Fatal("expected stable gift ID across reseeds")
	}
	if rose.PriceCoins != 20 || rose.DiamondValue != 10 {
		t.Fatalf("expected retuned price, got %d/%d", rose.PriceCoins, rose.DiamondValue)
	}

	if err := gdb.Model(&giftdomain.Gift{}).Count(&count).Error; err != nil {
		t.Fatalf("recount gifts: %v", err)
	}
	if count != int64(len(defs)) {
		t.Fatalf("expected no new rows, got %d", count)
	}
}

func TestEnsureDemoAccountsIdempotent(t *testing.T) {
	gdb := setupSeedDB(t)

	if err := EnsureDemoAccounts(gdb); err != nil {
		t.Fatalf("seed accounts: %v", err)
	}
	if err := EnsureDemoAccounts(gdb); err != nil {
		t.Fatalf("reseed accounts: %v", err)
	}

	var accounts []walletdomain.Account
	if err := gdb.Order("user_id asc").Find(&accounts).Error; err != nil {
		t.Fatalf("load accounts: %v", err)
	}
	if len(accounts) != len(demoUserIDs) {
		t.Fatalf("expected %d accounts, got %d", len(demoUserIDs), len(accounts))
	}
	for _, account := range accounts {
		if account.Coins != demoStartingCoins {
			t.Fatalf("expected %d coins, got %d", demoStartingCoins, account.Coins)
		}
	}
}
