package transfers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/ledger"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/money"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("transfers")

var errLegClaimed = errors.New("transaction is no longer a standard transaction")

// MatchResult reports one auto-match run.
type MatchResult struct {
	Inflows  int      `json:"inflows"`
	Outflows int      `json:"outflows"`
	Proposed int      `json:"proposed"`
	Created  int      `json:"created"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
	Pairs    []Pair   `json:"-"`
}

// Matcher links a user's own inflows and outflows into Transfers.
//
// Claimed ids live in memory for one run only. Two overlapping runs for the same user in
// different processes could propose the same pair; the per-user redis lock makes that
// unlikely and the conditional kind update plus the unique pair index stop a double link.
type Matcher struct {
	DB     *gorm.DB
	Pairer Pairer
	Logger *logrus.Logger
	// LockTTL bounds the per-user redis lock; zero disables locking.
	LockTTL time.Duration
	// Invalidator, when set, resyncs the accounts whose transactions were linked.
	Invalidator *ledger.Invalidator
}

func NewMatcher(db *gorm.DB, logger *logrus.Logger) *Matcher {
	return &Matcher{
		DB: db,
		Pairer: Pairer{
			WindowDays: config.TransferMatchWindowDays(),
			Tolerance:  config.TransferFxTolerance(),
			Converter:  money.NewConverter(money.GormRateStore{DB: db}),
		},
		Logger:  logger,
		LockTTL: 2 * time.Minute,
	}
}

func lockKey(userId int) string {
	return fmt.Sprintf("lock:transfers:%d", userId)
}

// AutoMatchTransfers creates a matched Transfer for every claimable pair and retypes both legs.
// A pair that fails to persist is logged and skipped; its legs stay available to later pairs.
func (m *Matcher) AutoMatchTransfers(ctx context.Context, userId int) (*MatchResult, error) {
	ctx, span := tracer.Start(ctx, "transfers.AutoMatchTransfers")
	defer span.End()
	span.SetAttributes(attribute.Int("user_id", userId))

	if m.LockTTL > 0 {
		release := config.TryLock(ctx, m.Logger, lockKey(userId), m.LockTTL)
		defer release()
	}

	result, err := m.Preview(ctx, userId)
	if err != nil {
		return nil, err
	}

	used := claimSet{}
	var created []Pair
	for _, pr := range result.Pairs {
		if !used.free(pr) {
			result.Skipped++
			continue
		}
		if err := m.createTransfer(ctx, pr); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("%d/%d: %s", pr.Inflow.TransactionId, pr.Outflow.TransactionId, err.Error()))
			config.LogError(m.Logger, "transfers", "AutoMatchTransfers", "createTransfer",
				map[string]any{"inflow_id": pr.Inflow.TransactionId, "outflow_id": pr.Outflow.TransactionId}, err)
			continue
		}
		used.take(pr)
		created = append(created, pr)
		result.Created++
	}
	result.Pairs = created

	if len(created) > 0 {
		touched := make([]int, 0, len(created)*2)
		for _, pr := range created {
			touched = append(touched, pr.Inflow.AccountId, pr.Outflow.AccountId)
		}
		m.Invalidator.AfterEntryChange(ctx, touched...)
	}

	if m.Logger != nil {
		m.Logger.WithFields(logrus.Fields{
			"user_id":  userId,
			"proposed": result.Proposed,
			"created":  result.Created,
			"skipped":  result.Skipped,
		}).Info("transfers auto-matched")
	}
	return result, nil
}

// Preview loads candidates and proposes pairs without writing anything.
func (m *Matcher) Preview(ctx context.Context, userId int) (*MatchResult, error) {
	db := m.DB.WithContext(ctx)
	accounts, err := models.GetActiveAccounts(ctx, db, userId)
	if err != nil {
		return nil, err
	}
	result := &MatchResult{}
	if len(accounts) == 0 {
		return result, nil
	}

	types := make(map[int]models.AccountableType, len(accounts))
	ids := make([]int, 0, len(accounts))
	for _, a := range accounts {
		types[a.ID] = a.AccountableType
		ids = append(ids, a.ID)
	}

	inflows, err := m.loadCandidates(db, ids, types, "amount < 0", "inflow_transaction_id")
	if err != nil {
		return nil, err
	}
	outflows, err := m.loadCandidates(db, ids, types, "amount > 0", "outflow_transaction_id")
	if err != nil {
		return nil, err
	}
	result.Inflows, result.Outflows = len(inflows), len(outflows)

	pairs, err := m.Pairer.Pair(ctx, inflows, outflows)
	if err != nil {
		return nil, err
	}
	result.Pairs = pairs
	result.Proposed = len(pairs)
	return result, nil
}

func (m *Matcher) loadCandidates(db *gorm.DB, accountIds []int, types map[int]models.AccountableType, sign, linkedColumn string) ([]Candidate, error) {
	var txns []models.Transaction
	err := db.Where("account_id IN ?", accountIds).
		Where(sign).
		Where("kind = ?", models.TransactionKindStandard).
		Where("id NOT IN (?)", db.Model(&models.Transfer{}).Select(linkedColumn)).
		Order("date, id").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(txns))
	for _, t := range txns {
		out = append(out, candidateFrom(t, types[t.AccountId]))
	}
	return out, nil
}

// createTransfer persists one pair. Both kind updates only apply to still-standard rows so
// a leg retyped since loading aborts the pair.
func (m *Matcher) createTransfer(ctx context.Context, pr Pair) error {
	return m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		transfer := models.Transfer{
			InflowTransactionId:  pr.Inflow.TransactionId,
			OutflowTransactionId: pr.Outflow.TransactionId,
			Status:               models.TransferStatusMatched,
		}
		if err := tx.Create(&transfer).Error; err != nil {
			if utils.IsDuplicateKeyError(err) {
				return errors.New("transfer already exists")
			}
			return err
		}
		if err := retype(tx, pr.Inflow.TransactionId, models.TransactionKindFundsMovement); err != nil {
			return err
		}
		return retype(tx, pr.Outflow.TransactionId, OutflowKind(pr.Outflow.AccountType))
	})
}

func retype(tx *gorm.DB, transactionId int, kind models.TransactionKind) error {
	res := tx.Model(&models.Transaction{}).
		Where("id = ? AND kind = ?", transactionId, models.TransactionKindStandard).
		Update("kind", kind)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errLegClaimed
	}
	return nil
}
