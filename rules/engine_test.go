package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "ledger:ledger@tcp(127.0.0.1:3306)/ledger?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	return db
}

func renderScope(t *testing.T, q *gorm.DB) (string, []interface{}) {
	t.Helper()
	var txns []models.Transaction
	stmt := q.Find(&txns).Statement
	return stmt.SQL.String(), stmt.Vars
}

func hasVar(vars []interface{}, want string) bool {
	for _, v := range vars {
		if fmt.Sprint(v) == want {
			return true
		}
	}
	return false
}

func leaf(id int, ct models.ConditionType, op models.ConditionOperator, value string) *models.RuleCondition {
	return &models.RuleCondition{ID: id, ConditionType: ct, Operator: op, Value: value}
}

func TestScopeNameContains(t *testing.T) {
	e := &Engine{DB: dryRunDB(t)}
	rule := &models.Rule{ID: 1, UserId: 7, Conditions: []*models.RuleCondition{
		leaf(1, models.ConditionTypeTransactionName, models.ConditionOperatorLike, "Uber_"),
	}}

	q, err := e.MatchingResourcesScope(context.Background(), rule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sql, vars := renderScope(t, q)
	for _, want := range []string{
		"transactions.account_id IN (SELECT",
		"transactions.excluded =",
		"LOWER(transactions.name) LIKE ?",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("expected %q in %s", want, sql)
		}
	}
	if strings.Contains(sql, "transactions.date >=") {
		t.Fatalf("rule without effective date should not filter dates: %s", sql)
	}
	if !hasVar(vars, `%uber\_%`) {
		t.Fatalf("expected escaped lower-case pattern in %v", vars)
	}
	if !hasVar(vars, "7") {
		t.Fatalf("expected user scope in %v", vars)
	}
}

func TestScopeEffectiveDate(t *testing.T) {
	e := &Engine{DB: dryRunDB(t)}
	eff := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rule := &models.Rule{ID: 1, UserId: 7, EffectiveDate: &eff}

	q, err := e.MatchingResourcesScope(context.Background(), rule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sql, vars := renderScope(t, q)
	if !strings.Contains(sql, "transactions.date >= ?") || !hasVar(vars, "2024-05-01") {
		t.Fatalf("expected effective date filter, got %s %v", sql, vars)
	}
}

func TestScopeMerchantJoinsOnce(t *testing.T) {
	e := &Engine{DB: dryRunDB(t)}
	compound := &models.RuleCondition{ID: 1, ConditionType: models.ConditionTypeCompound, Operator: models.ConditionOperatorAnd}
	a := leaf(2, models.ConditionTypeTransactionMerchant, models.ConditionOperatorEqual, "3")
	b := leaf(3, models.ConditionTypeTransactionAmount, models.ConditionOperatorGt, "10")
	pid := 1
	a.ParentId, b.ParentId = &pid, &pid
	compound.SubConditions = []*models.RuleCondition{a, b}
	other := leaf(4, models.ConditionTypeTransactionMerchant, models.ConditionOperatorEqual, "3")
	rule := &models.Rule{ID: 1, UserId: 7, Conditions: []*models.RuleCondition{compound, other}}

	q, err := e.MatchingResourcesScope(context.Background(), rule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sql, _ := renderScope(t, q)
	if strings.Count(sql, "LEFT JOIN merchants") != 1 {
		t.Fatalf("expected a single merchants join, got %s", sql)
	}
	if !strings.Contains(sql, "merchants.id = ?") || !strings.Contains(sql, "transactions.amount > ?") {
		t.Fatalf("expected both AND children applied: %s", sql)
	}
}

func TestScopeOrUnionsSubScopes(t *testing.T) {
	e := &Engine{DB: dryRunDB(t)}
	pid := 1
	a := leaf(2, models.ConditionTypeTransactionName, models.ConditionOperatorEqual, "netflix")
	b := leaf(3, models.ConditionTypeTransactionMerchant, models.ConditionOperatorEqual, "9")
	a.ParentId, b.ParentId = &pid, &pid
	compound := &models.RuleCondition{ID: 1, ConditionType: models.ConditionTypeCompound, Operator: models.ConditionOperatorOr,
		SubConditions: []*models.RuleCondition{a, b}}
	rule := &models.Rule{ID: 1, UserId: 7, Conditions: []*models.RuleCondition{compound}}

	q, err := e.MatchingResourcesScope(context.Background(), rule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sql, _ := renderScope(t, q)
	if strings.Count(sql, "transactions.id IN (SELECT transactions.id FROM") != 2 {
		t.Fatalf("expected one id subquery per child: %s", sql)
	}
	if !strings.Contains(sql, " OR ") {
		t.Fatalf("expected children joined by OR: %s", sql)
	}
}

func TestUnsupportedConstructs(t *testing.T) {
	e := &Engine{DB: dryRunDB(t)}
	ctx := context.Background()

	rule := &models.Rule{ID: 1, UserId: 7, Conditions: []*models.RuleCondition{
		leaf(1, "transaction_category", models.ConditionOperatorEqual, "1"),
	}}
	_, err := e.MatchingResourcesScope(ctx, rule)
	var uerr *UnsupportedError
	if !errors.Is(err, ErrUnsupported) || !errors.As(err, &uerr) || uerr.Kind != "condition" {
		t.Fatalf("expected unsupported condition, got %v", err)
	}

	rule = &models.Rule{ID: 1, UserId: 7, Conditions: []*models.RuleCondition{
		leaf(1, models.ConditionTypeTransactionAmount, models.ConditionOperatorLike, "1"),
	}}
	if _, err := e.MatchingResourcesScope(ctx, rule); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported operator, got %v", err)
	}

	rule = &models.Rule{ID: 1, UserId: 7, Actions: []*models.RuleAction{{ActionType: "archive_transaction"}}}
	if _, err := e.Apply(ctx, rule, false); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported action, got %v", err)
	}

	rule = &models.Rule{ID: 1, UserId: 7, ResourceType: "account"}
	if _, err := e.MatchingResourcesScope(ctx, rule); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported resource type, got %v", err)
	}
}

func TestInvalidAmountValue(t *testing.T) {
	e := &Engine{DB: dryRunDB(t)}
	rule := &models.Rule{ID: 1, UserId: 7, Conditions: []*models.RuleCondition{
		leaf(1, models.ConditionTypeTransactionAmount, models.ConditionOperatorGt, "ten"),
	}}
	if _, err := e.MatchingResourcesScope(context.Background(), rule); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestPrimaryConditionTitle(t *testing.T) {
	e := &Engine{DB: dryRunDB(t)}
	ctx := context.Background()

	tests := []struct {
		name string
		rule *models.Rule
		want string
	}{
		{"none", &models.Rule{}, "No conditions"},
		{"leaf", &models.Rule{Conditions: []*models.RuleCondition{
			leaf(1, models.ConditionTypeTransactionName, models.ConditionOperatorLike, "uber"),
		}}, "If transaction name like uber"},
		{"compound", &models.Rule{Conditions: []*models.RuleCondition{{
			ID: 1, ConditionType: models.ConditionTypeCompound, Operator: models.ConditionOperatorOr,
			SubConditions: []*models.RuleCondition{leaf(2, models.ConditionTypeTransactionAmount, models.ConditionOperatorGte, "50")},
		}}}, "If transaction amount >= 50"},
		{"unknown", &models.Rule{Conditions: []*models.RuleCondition{
			leaf(1, "transaction_category", models.ConditionOperatorEqual, "1"),
		}}, "Invalid condition"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.PrimaryConditionTitle(ctx, tt.rule); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
