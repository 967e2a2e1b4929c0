// Package importer turns normalized import rows into transactions.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/entries"
	"github.com/mmdatafocus/ledger_backend/ledger"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("importer")

var ErrNoAccount = errors.New("user has no account to import into")

// Row is one parsed line of a bank statement. Tags is comma separated.
type Row struct {
	Date     *time.Time       `json:"date"`
	Amount   *decimal.Decimal `json:"amount"`
	Name     string           `json:"name"`
	Currency string           `json:"currency"`
	Category string           `json:"category"`
	Tags     string           `json:"tags"`
	Notes    string           `json:"notes"`
}

type RowError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type Result struct {
	AccountId int        `json:"account_id"`
	Imported  int        `json:"imported"`
	Errors    []RowError `json:"errors"`
	// TransactionIds lists the created transactions in row order.
	TransactionIds []int `json:"transaction_ids"`
}

type Importer struct {
	DB          *gorm.DB
	Entries     *entries.Service
	Invalidator *ledger.Invalidator
	Logger      *logrus.Logger
}

func NewImporter(db *gorm.DB, svc *entries.Service, invalidator *ledger.Invalidator, logger *logrus.Logger) *Importer {
	return &Importer{DB: db, Entries: svc, Invalidator: invalidator, Logger: logger}
}

// SplitTags returns the trimmed, non-empty names of a comma separated tag list.
func SplitTags(tags string) []string {
	var out []string
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return utils.UniqueSlice(out)
}

var errMissingData = errors.New("missing date or amount")

func checkRow(row Row) error {
	if row.Date == nil || row.Date.IsZero() || row.Amount == nil {
		return errMissingData
	}
	return nil
}

// Import creates one transaction per valid row in accountId, or in the user's first
// account when accountId is 0. Bad rows are reported and skipped. The account is
// synced once after the batch.
func (im *Importer) Import(ctx context.Context, accountId int, currency string, rows []Row) (*Result, error) {
	ctx, span := tracer.Start(ctx, "importer.Import")
	defer span.End()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, entries.ErrUserRequired
	}
	if accountId == 0 {
		var err error
		if accountId, err = im.defaultAccount(ctx, userId); err != nil {
			return nil, err
		}
	}
	span.SetAttributes(attribute.Int("account_id", accountId), attribute.Int("rows", len(rows)))

	res := &Result{AccountId: accountId}
	for i, row := range rows {
		txn, err := im.importRow(ctx, userId, accountId, currency, row)
		if err != nil {
			res.Errors = append(res.Errors, RowError{Index: i, Reason: err.Error()})
			if !errors.Is(err, errMissingData) {
				config.LogError(im.Logger, "importer", "Import", "row", map[string]any{"account_id": accountId, "index": i}, err)
			}
			continue
		}
		res.Imported++
		res.TransactionIds = append(res.TransactionIds, txn.ID)
	}

	if res.Imported > 0 {
		im.Invalidator.AfterEntryChange(ctx, accountId)
	}
	if im.Logger == nil {
		return res, nil
	}
	im.Logger.WithFields(logrus.Fields{
		"account_id": accountId,
		"user_id":    userId,
		"imported":   res.Imported,
		"errors":     len(res.Errors),
	}).Info("import finished")
	return res, nil
}

func (im *Importer) importRow(ctx context.Context, userId, accountId int, currency string, row Row) (*models.Transaction, error) {
	if err := checkRow(row); err != nil {
		return nil, err
	}
	input := &entries.NewTransaction{
		AccountId: accountId,
		Date:      *row.Date,
		Amount:    *row.Amount,
		Currency:  firstNonEmpty(row.Currency, currency),
		Name:      row.Name,
		Notes:     row.Notes,
		TagNames:  SplitTags(row.Tags),
	}
	if name := strings.TrimSpace(row.Category); name != "" {
		category, err := models.GetOrCreateCategory(ctx, im.DB, userId, name, models.CategoryClassificationExpense)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", name, err)
		}
		input.CategoryId = &category.ID
	}
	return im.Entries.CreateTransactionDeferred(ctx, input)
}

func (im *Importer) defaultAccount(ctx context.Context, userId int) (int, error) {
	var account models.Account
	err := im.DB.WithContext(ctx).Where("user_id = ?", userId).Order("id").Take(&account).Error
	if err != nil {
		if utils.IsNotFound(err) {
			return 0, ErrNoAccount
		}
		return 0, err
	}
	return account.ID, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
