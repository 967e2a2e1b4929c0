package importer_test

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/entries"
	"github.com/mmdatafocus/ledger_backend/importer"
	"github.com/mmdatafocus/ledger_backend/ledger"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/testenv"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

// countingRefresher records how often each account was synced.
type countingRefresher struct {
	syncs map[int]int
}

func (c *countingRefresher) Sync(ctx context.Context, accountId int, strategy ledger.Strategy) error {
	c.syncs[accountId]++
	return nil
}

func (c *countingRefresher) SyncLater(ctx context.Context, accountId int, strategy ledger.Strategy) error {
	return c.Sync(ctx, accountId, strategy)
}

func TestImportRows(t *testing.T) {
	testenv.Setup(t, false)
	ctx := utils.SetUserIdInContext(context.Background(), 1)
	db := config.GetDB()
	logger := config.GetLogger()

	account, err := models.CreateAccount(ctx, &models.NewAccount{Name: "Checking", AccountableType: models.AccountableTypeDepository})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	refresher := &countingRefresher{syncs: map[int]int{}}
	invalidator := &ledger.Invalidator{Syncer: refresher, Logger: logger}
	im := importer.NewImporter(db, entries.NewService(db, invalidator, logger), invalidator, logger)

	day := func(d int) *time.Time {
		v := time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
		return &v
	}
	amt := func(s string) *decimal.Decimal {
		v := decimal.RequireFromString(s)
		return &v
	}
	rows := []importer.Row{
		{Date: day(1), Amount: amt("35.90"), Name: "Padaria", Category: "Alimentação", Tags: "casa, mercado"},
		{Date: day(2), Name: "no amount"},
		{Date: day(3), Amount: amt("-3000"), Name: "Salário", Tags: "casa"},
		{Amount: amt("10"), Name: "no date"},
		{Date: day(4), Amount: amt("12"), Name: "Farmácia", Category: "alimentação"},
	}

	res, err := im.Import(ctx, 0, "", rows)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.AccountId != account.ID {
		t.Fatalf("expected the user's first account, got %d", res.AccountId)
	}
	if res.Imported != 3 || len(res.Errors) != 2 {
		t.Fatalf("expected 3 imported and 2 errors, got %d / %v", res.Imported, res.Errors)
	}
	if res.Errors[0].Index != 1 || res.Errors[1].Index != 3 {
		t.Fatalf("unexpected error rows %v", res.Errors)
	}
	if refresher.syncs[account.ID] != 1 {
		t.Fatalf("expected exactly one sync for the batch, got %d", refresher.syncs[account.ID])
	}

	var categories, tags int64
	db.Model(&models.Category{}).Where("user_id = ?", 1).Count(&categories)
	db.Model(&models.Tag{}).Where("user_id = ?", 1).Count(&tags)
	if categories != 1 || tags != 2 {
		t.Fatalf("expected 1 category and 2 tags, got %d and %d", categories, tags)
	}

	var first models.Transaction
	db.First(&first, res.TransactionIds[0])
	if first.Currency != account.Currency || first.CategoryId == nil {
		t.Fatalf("unexpected imported row %+v", first)
	}

	// no logger wired: the batch summary is skipped, not a panic
	quiet := importer.NewImporter(db, entries.NewService(db, invalidator, nil), invalidator, nil)
	res, err = quiet.Import(ctx, account.ID, "", rows[:1])
	if err != nil {
		t.Fatalf("Import without logger: %v", err)
	}
	if res.Imported != 1 || refresher.syncs[account.ID] != 2 {
		t.Fatalf("expected 1 imported and a second sync, got %d / %d", res.Imported, refresher.syncs[account.ID])
	}
}
