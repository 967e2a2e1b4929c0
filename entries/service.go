// Package entries is the write path for account entries. Every successful write ends with
// an Invalidator call so derived balances follow the change.
package entries

import (
	"context"
	"errors"

	"github.com/mmdatafocus/ledger_backend/ledger"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrUserRequired       = errors.New("user id is required")
	ErrInvestmentRequired = errors.New("trades and holdings need an investment account")
)

type Service struct {
	DB          *gorm.DB
	Invalidator *ledger.Invalidator
	Logger      *logrus.Logger
}

func NewService(db *gorm.DB, invalidator *ledger.Invalidator, logger *logrus.Logger) *Service {
	return &Service{DB: db, Invalidator: invalidator, Logger: logger}
}

// ownedAccount loads accountId if it belongs to the context user. Foreign accounts read as missing.
func ownedAccount(ctx context.Context, tx *gorm.DB, accountId int) (*models.Account, error) {
	userId, err := contextUser(ctx)
	if err != nil {
		return nil, err
	}
	account, err := models.GetAccount(ctx, tx, accountId)
	if err != nil {
		return nil, err
	}
	if account.UserId != userId {
		return nil, utils.ErrorRecordNotFound
	}
	return account, nil
}

func contextUser(ctx context.Context) (int, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return 0, ErrUserRequired
	}
	return userId, nil
}
