package models

import (
	"log"

	"github.com/mmdatafocus/ledger_backend/config"
	"gorm.io/gorm"
)

func MigrateTable() {
	if err := AutoMigrate(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&Transaction{}, "Tags", &TransactionTag{}); err != nil {
		return err
	}
	return db.AutoMigrate(
		&Account{},
		&Category{}, &Tag{}, &Merchant{},
		&Transaction{}, &TransactionTag{},
		&Security{}, &SecurityPrice{}, &Holding{}, &Trade{},
		&Valuation{}, &Balance{},
		&Transfer{}, &ExchangeRate{},
		&Rule{}, &RuleCondition{}, &RuleAction{},
		&SyncJob{},
	)
}
