package ledger

import (
	"context"
	"errors"

	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("ledger")

var ErrNoEnqueuer = errors.New("async sync is not configured")

// CacheInvalidator drops aggregates derived from an account's balances (dashboard totals, net worth).
type CacheInvalidator interface {
	InvalidateAccount(ctx context.Context, account *models.Account) error
}

// SyncEnqueuer hands a sync to the background task mechanism.
type SyncEnqueuer interface {
	EnqueueSync(ctx context.Context, accountId int, strategy Strategy) error
}

// AccountSyncer is the single entry point for recalculating an account.
type AccountSyncer struct {
	DB           *gorm.DB
	Materializer *BalanceMaterializer
	Cache        CacheInvalidator
	Enqueuer     SyncEnqueuer
	Logger       *logrus.Logger
}

func NewAccountSyncer(db *gorm.DB, logger *logrus.Logger) *AccountSyncer {
	return &AccountSyncer{
		DB:           db,
		Materializer: NewBalanceMaterializer(db),
		Logger:       logger,
	}
}

// Sync rebuilds the account's balance history now. Re-running it on an unchanged
// account yields the same rows, so at-least-once callers are safe.
func (s *AccountSyncer) Sync(ctx context.Context, accountId int, strategy Strategy) error {
	if strategy == "" {
		strategy = StrategyForward
	}
	ctx, span := tracer.Start(ctx, "ledger.Sync")
	defer span.End()
	span.SetAttributes(attribute.Int("account_id", accountId))

	res, err := s.Materializer.MaterializeBalances(ctx, accountId, strategy)
	if err != nil {
		config.LogError(s.Logger, "ledger/syncer", "Sync", "MaterializeBalances", map[string]any{"account_id": accountId, "strategy": strategy}, err)
		return err
	}

	if s.Logger != nil {
		fields := logrus.Fields{"account_id": accountId, "strategy": strategy, "rows": res.Rows}
		if res.From != nil {
			fields["from"] = day(*res.From)
			fields["to"] = day(*res.To)
		}
		s.Logger.WithFields(fields).Info("account balances materialized")
	}

	if s.Cache != nil && res.Account != nil {
		if err := s.Cache.InvalidateAccount(ctx, res.Account); err != nil {
			config.LogError(s.Logger, "ledger/syncer", "Sync", "InvalidateAccount", map[string]any{"account_id": accountId}, err)
		}
	}
	return nil
}

// SyncLater queues the same work through the configured enqueuer.
func (s *AccountSyncer) SyncLater(ctx context.Context, accountId int, strategy Strategy) error {
	if s.Enqueuer == nil {
		return ErrNoEnqueuer
	}
	if strategy == "" {
		strategy = StrategyForward
	}
	return s.Enqueuer.EnqueueSync(ctx, accountId, strategy)
}

type SyncAllResult struct {
	Synced int            `json:"synced"`
	Failed int            `json:"failed"`
	Errors map[int]string `json:"errors,omitempty"`
}

// SyncAll syncs every active account of a user, continuing past failures.
func (s *AccountSyncer) SyncAll(ctx context.Context, userId int) (*SyncAllResult, error) {
	accounts, err := models.GetActiveAccounts(ctx, s.DB, userId)
	if err != nil {
		return nil, err
	}
	result := &SyncAllResult{Errors: map[int]string{}}
	for _, a := range accounts {
		if err := s.Sync(ctx, a.ID, StrategyForward); err != nil {
			result.Failed++
			result.Errors[a.ID] = err.Error()
			continue
		}
		result.Synced++
	}
	return result, nil
}
