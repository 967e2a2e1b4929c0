package rules_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/rules"
	"github.com/mmdatafocus/ledger_backend/testenv"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

func TestApplyRespectsAttributeLock(t *testing.T) {
	testenv.Setup(t, false)

	ctx := utils.SetUserIdInContext(context.Background(), 1)
	db := config.GetDB()

	account, err := models.CreateAccount(ctx, &models.NewAccount{Name: "Checking", AccountableType: models.AccountableTypeDepository})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	groceries, err := models.GetOrCreateCategory(ctx, db, 1, "Groceries", models.CategoryClassificationExpense)
	if err != nil {
		t.Fatalf("category: %v", err)
	}
	transport, err := models.GetOrCreateCategory(ctx, db, 1, "Transporte", models.CategoryClassificationExpense)
	if err != nil {
		t.Fatalf("category: %v", err)
	}

	day := utils.Today().AddDate(0, 0, -3)
	uncategorized := models.Transaction{AccountId: account.ID, Date: day, Amount: decimal.NewFromInt(25), Currency: "BRL", Name: "UBER TRIP", Kind: models.TransactionKindStandard}
	categorized := models.Transaction{AccountId: account.ID, Date: day, Amount: decimal.NewFromInt(30), Currency: "BRL", Name: "Uber Eats", Kind: models.TransactionKindStandard, CategoryId: &groceries.ID}
	unrelated := models.Transaction{AccountId: account.ID, Date: day, Amount: decimal.NewFromInt(12), Currency: "BRL", Name: "Bakery", Kind: models.TransactionKindStandard}
	for _, txn := range []*models.Transaction{&uncategorized, &categorized, &unrelated} {
		if err := db.Create(txn).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	rule, err := rules.CreateRule(ctx, db, &rules.NewRule{
		Name:       "Uber",
		Conditions: []rules.NewRuleCondition{{ConditionType: models.ConditionTypeTransactionName, Operator: models.ConditionOperatorLike, Value: "uber"}},
		Actions:    []rules.NewRuleAction{{ActionType: models.ActionTypeSetTransactionCategory, Value: strconv.Itoa(transport.ID)}},
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	engine := rules.NewEngine(db, nil, config.GetLogger())
	n, err := engine.AffectedResourceCount(ctx, rule)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 matching transactions, got %d (%v)", n, err)
	}

	res, err := engine.ApplyById(ctx, rule.ID, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Matched != 2 || res.Affected[models.ActionTypeSetTransactionCategory] != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	categoryOf := func(id int) int {
		var txn models.Transaction
		if err := db.First(&txn, id).Error; err != nil {
			t.Fatalf("reload: %v", err)
		}
		if txn.CategoryId == nil {
			return 0
		}
		return *txn.CategoryId
	}
	if categoryOf(uncategorized.ID) != transport.ID {
		t.Fatalf("empty category should be set")
	}
	if categoryOf(categorized.ID) != groceries.ID {
		t.Fatalf("existing category must be kept without ignore_attribute_locks")
	}
	if categoryOf(unrelated.ID) != 0 {
		t.Fatalf("non-matching transaction must be untouched")
	}

	if _, err := engine.ApplyById(ctx, rule.ID, true); err != nil {
		t.Fatalf("Apply with ignore: %v", err)
	}
	if categoryOf(categorized.ID) != transport.ID {
		t.Fatalf("ignore_attribute_locks should overwrite the category")
	}
}

func TestRegistryMetadataOptions(t *testing.T) {
	testenv.Setup(t, false)

	ctx := utils.SetUserIdInContext(context.Background(), 3)
	db := config.GetDB()
	for _, name := range []string{"Mercado", "Aluguel"} {
		if _, err := models.GetOrCreateCategory(ctx, db, 3, name, models.CategoryClassificationExpense); err != nil {
			t.Fatalf("category: %v", err)
		}
	}
	if _, err := models.GetOrCreateCategory(ctx, db, 4, "Someone else", models.CategoryClassificationExpense); err != nil {
		t.Fatalf("category: %v", err)
	}

	reg, err := rules.RegistryFor(models.RuleResourceTypeTransaction)
	if err != nil {
		t.Fatalf("RegistryFor: %v", err)
	}
	md, err := reg.Metadata(ctx, db, 3)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if len(md.Filters) != 3 || len(md.Executors) != 4 {
		t.Fatalf("expected 3 filters and 4 executors, got %d and %d", len(md.Filters), len(md.Executors))
	}
	category := md.Executors[0]
	if category.Key != models.ActionTypeSetTransactionCategory {
		t.Fatalf("first executor = %s", category.Key)
	}
	if len(category.Options) != 2 || category.Options[0].Label != "Aluguel" || category.Options[1].Label != "Mercado" {
		t.Fatalf("unexpected category options %+v", category.Options)
	}
}
