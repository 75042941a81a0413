package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/hilive/hilive/internal/config"
	"github.com/hilive/hilive/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"

	auditdomain "github.com/hilive/hilive/internal/audit/domain"
	entitlementdomain "github.com/hilive/hilive/internal/entitlement/domain"
	giftdomain "github.com/hilive/hilive/internal/gift/domain"
	liveroomdomain "github.com/hilive/hilive/internal/liveroom/domain"
	paymentdomain "github.com/hilive/hilive/internal/payment/domain"
	walletdomain "github.com/hilive/hilive/internal/wallet/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, holder *config.GamificationConfigHolder) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql are development targets; gorm derives the
			// schema directly from the models there.
			if err := AutoMigrate(conn); err != nil {
				return err
			}
		}

		if err := seed.EnsureGiftCatalog(conn, node, holder.Get().Gifts); err != nil {
			return err
		}
		if cfg.SeedDemoData {
			return seed.EnsureDemoAccounts(conn)
		}
		return nil
	}),
)

// AutoMigrate creates the schema from the domain models.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&walletdomain.Account{},
		&walletdomain.Transaction{},
		&entitlementdomain.Entitlement{},
		&liveroomdomain.LiveSession{},
		&liveroomdomain.Seat{},
		&liveroomdomain.SessionMute{},
		&liveroomdomain.SessionRemoval{},
		&liveroomdomain.ViewerMembership{},
		&giftdomain.Gift{},
		&paymentdomain.EventRecord{},
		&auditdomain.AuditLog{},
	)
}
