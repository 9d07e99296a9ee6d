// Package migration keeps the database schema in step with the ledger models.
package migration

import (
	catalogdomain "github.com/creditrail/creditrail/internal/catalog/domain"
	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func Run(db *gorm.DB, log *zap.Logger) error {
	if err := db.AutoMigrate(
		&catalogdomain.ModelPrice{},
		&ledgerdomain.CreditAccount{},
		&ledgerdomain.Transaction{},
		&ledgerdomain.UsageRecord{},
		&ledgerdomain.RateWindow{},
	); err != nil {
		return err
	}
	log.Info("database schema migrated")
	return nil
}

var Module = fx.Module("migration",
	fx.Invoke(Run),
)
