package reports_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/ledger"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/reports"
	"github.com/mmdatafocus/ledger_backend/testenv"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

func TestNetWorthIsCachedUntilSync(t *testing.T) {
	testenv.Setup(t, true)
	ctx := utils.SetUserIdInContext(context.Background(), 1)
	db := config.GetDB()
	logger := config.GetLogger()

	checking, err := models.CreateAccount(ctx, &models.NewAccount{Name: "Checking", AccountableType: models.AccountableTypeDepository, OpeningBalance: decimal.NewFromInt(1000)})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	card, err := models.CreateAccount(ctx, &models.NewAccount{Name: "Card", AccountableType: models.AccountableTypeCreditCard, OpeningBalance: decimal.NewFromInt(300)})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	svc := reports.NewNetWorthService(db, config.GetRedisDB(), logger)
	syncer := ledger.NewAccountSyncer(db, logger)
	syncer.Cache = svc
	for _, id := range []int{checking.ID, card.ID} {
		if err := syncer.Sync(ctx, id, ledger.StrategyForward); err != nil {
			t.Fatalf("Sync: %v", err)
		}
	}

	today := utils.Today()
	series, err := svc.NetWorth(ctx, 1, "BRL", today.AddDate(0, 0, -7), today)
	if err != nil {
		t.Fatalf("NetWorth: %v", err)
	}
	last := series.Points[len(series.Points)-1]
	if !last.Amount.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("expected 1000 - 300, got %s", last.Amount)
	}

	// a write that bypasses the syncer is invisible while the cache holds
	if err := db.Create(&models.Transaction{AccountId: checking.ID, Date: today, Amount: decimal.NewFromInt(100), Currency: "BRL", Kind: models.TransactionKindStandard}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	cached, _ := svc.NetWorth(ctx, 1, "BRL", today.AddDate(0, 0, -7), today)
	if !cached.Points[len(cached.Points)-1].Amount.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("expected the cached series")
	}

	if err := syncer.Sync(ctx, checking.ID, ledger.StrategyForward); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	fresh, err := svc.NetWorth(ctx, 1, "BRL", today.AddDate(0, 0, -7), today)
	if err != nil {
		t.Fatalf("NetWorth: %v", err)
	}
	if got := fresh.Points[len(fresh.Points)-1].Amount; !got.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("expected 600 after the sync invalidated the cache, got %s", got)
	}
}
