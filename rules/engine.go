package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/ledger"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("rules")

// Engine evaluates rules against storage.
type Engine struct {
	DB          *gorm.DB
	Invalidator *ledger.Invalidator
	Logger      *logrus.Logger
}

func NewEngine(db *gorm.DB, invalidator *ledger.Invalidator, logger *logrus.Logger) *Engine {
	return &Engine{DB: db, Invalidator: invalidator, Logger: logger}
}

// ApplyResult reports one rule application.
type ApplyResult struct {
	RuleId   int                         `json:"rule_id"`
	Matched  int                         `json:"matched"`
	Affected map[models.ActionType]int64 `json:"affected"`
	Accounts []int                       `json:"accounts"`
}

// MatchingResourcesScope returns the query selecting every resource the rule matches.
// Root conditions first prepare the scope, then narrow it in order.
func (e *Engine) MatchingResourcesScope(ctx context.Context, rule *models.Rule) (*gorm.DB, error) {
	s, err := e.buildScope(ctx, e.DB, rule)
	if err != nil {
		return nil, err
	}
	return s.db, nil
}

func (e *Engine) buildScope(ctx context.Context, db *gorm.DB, rule *models.Rule) (*scope, error) {
	reg, err := RegistryFor(rule.ResourceType)
	if err != nil {
		return nil, err
	}
	s := newScope(reg.base(db.WithContext(ctx), rule), rule.UserId)
	roots := rule.RootConditions()
	for _, c := range roots {
		if err := e.prepare(reg, s, c); err != nil {
			return nil, err
		}
	}
	for _, c := range roots {
		if err := e.narrow(reg, db.WithContext(ctx), s, c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (e *Engine) prepare(reg *Registry, s *scope, c *models.RuleCondition) error {
	if c.IsCompound() {
		for _, sub := range c.SubConditions {
			if err := e.prepare(reg, s, sub); err != nil {
				return err
			}
		}
		return nil
	}
	f, err := reg.Filter(c.ConditionType)
	if err != nil {
		return err
	}
	f.prepare(s)
	return nil
}

// narrow applies c to s. AND children narrow s in turn; OR children each select ids from
// their own sub-scope and s keeps rows in any of them.
func (e *Engine) narrow(reg *Registry, db *gorm.DB, s *scope, c *models.RuleCondition) error {
	if !c.IsCompound() {
		f, err := reg.Filter(c.ConditionType)
		if err != nil {
			return err
		}
		return f.apply(s, c.Operator, c.Value)
	}

	switch c.Operator {
	case models.ConditionOperatorAnd:
		for _, sub := range c.SubConditions {
			if err := e.narrow(reg, db, s, sub); err != nil {
				return err
			}
		}
		return nil
	case models.ConditionOperatorOr:
		if len(c.SubConditions) == 0 {
			return nil
		}
		fresh := db.Session(&gorm.Session{NewDB: true})
		var group *gorm.DB
		for _, sub := range c.SubConditions {
			child := newScope(fresh.Model(&models.Transaction{}).Select("transactions.id"), s.userId)
			if err := e.prepare(reg, child, sub); err != nil {
				return err
			}
			if err := e.narrow(reg, db, child, sub); err != nil {
				return err
			}
			if group == nil {
				group = fresh.Where("transactions.id IN (?)", child.db)
			} else {
				group = group.Or("transactions.id IN (?)", child.db)
			}
		}
		s.where(group)
		return nil
	}
	return unsupported("operator", string(c.Operator))
}

type matchedRow struct {
	ID        int
	AccountId int
}

func (e *Engine) matches(ctx context.Context, db *gorm.DB, rule *models.Rule) ([]matchedRow, error) {
	s, err := e.buildScope(ctx, db, rule)
	if err != nil {
		return nil, err
	}
	var rows []matchedRow
	if err := s.db.Select("transactions.id, transactions.account_id").Order("transactions.id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// AffectedResourceCount counts the resources the rule currently matches.
func (e *Engine) AffectedResourceCount(ctx context.Context, rule *models.Rule) (int64, error) {
	s, err := e.buildScope(ctx, e.DB, rule)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.db.Distinct("transactions.id").Count(&n).Error
	return n, err
}

// Apply runs every action of rule over its matching scope in one transaction.
// Unknown actions fail before anything is written.
func (e *Engine) Apply(ctx context.Context, rule *models.Rule, ignoreLocks bool) (*ApplyResult, error) {
	ctx, span := tracer.Start(ctx, "rules.Apply")
	defer span.End()
	span.SetAttributes(attribute.Int("rule_id", rule.ID), attribute.Bool("ignore_attribute_locks", ignoreLocks))

	reg, err := RegistryFor(rule.ResourceType)
	if err != nil {
		return nil, err
	}
	executors := make([]Executor, 0, len(rule.Actions))
	for _, a := range rule.Actions {
		ex, err := reg.Executor(a.ActionType)
		if err != nil {
			return nil, err
		}
		executors = append(executors, ex)
	}

	result := &ApplyResult{RuleId: rule.ID, Affected: map[models.ActionType]int64{}}
	err = e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := e.matches(ctx, tx, rule)
		if err != nil {
			return err
		}
		result.Matched = len(rows)
		if len(rows) == 0 {
			return nil
		}
		ids := make([]int, 0, len(rows))
		accounts := map[int]struct{}{}
		for _, r := range rows {
			ids = append(ids, r.ID)
			accounts[r.AccountId] = struct{}{}
		}
		var touched bool
		for i, ex := range executors {
			n, err := ex.Execute(ctx, tx, rule.UserId, ids, rule.Actions[i].Value, ignoreLocks)
			if err != nil {
				return fmt.Errorf("%s: %w", ex.Key(), err)
			}
			result.Affected[ex.Key()] += n
			touched = touched || n > 0
		}
		if touched {
			for id := range accounts {
				result.Accounts = append(result.Accounts, id)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		config.LogError(e.Logger, "rules", "Apply", "transaction", map[string]any{"rule_id": rule.ID}, err)
		return nil, err
	}

	e.Invalidator.AfterEntryChange(ctx, result.Accounts...)
	if e.Logger != nil {
		e.Logger.WithFields(logrus.Fields{
			"rule_id":  rule.ID,
			"matched":  result.Matched,
			"affected": result.Affected,
		}).Info("rule applied")
	}
	return result, nil
}

// ApplyById loads the rule and applies it.
func (e *Engine) ApplyById(ctx context.Context, ruleId int, ignoreLocks bool) (*ApplyResult, error) {
	rule, err := models.LoadRule(ctx, e.DB, ruleId)
	if err != nil {
		return nil, err
	}
	return e.Apply(ctx, rule, ignoreLocks)
}

// ApplyAll applies every rule of a user in name order, continuing past failures.
func (e *Engine) ApplyAll(ctx context.Context, userId int, ignoreLocks bool) ([]*ApplyResult, map[int]string, error) {
	ids, err := models.GetRuleIdsByUser(ctx, e.DB, userId)
	if err != nil {
		return nil, nil, err
	}
	var results []*ApplyResult
	failed := map[int]string{}
	for _, id := range ids {
		res, err := e.ApplyById(ctx, id, ignoreLocks)
		if err != nil {
			failed[id] = err.Error()
			continue
		}
		results = append(results, res)
	}
	return results, failed, nil
}

// PrimaryConditionTitle renders the first root condition, or the first child of a
// compound root, e.g. "If transaction merchant = Uber".
func (e *Engine) PrimaryConditionTitle(ctx context.Context, rule *models.Rule) string {
	roots := rule.RootConditions()
	if len(roots) == 0 {
		return "No conditions"
	}
	c := roots[0]
	if c.IsCompound() {
		if len(c.SubConditions) == 0 {
			return "No conditions"
		}
		c = c.SubConditions[0]
	}
	reg, err := RegistryFor(rule.ResourceType)
	if err != nil {
		return "Invalid condition"
	}
	f, err := reg.Filter(c.ConditionType)
	if err != nil {
		return "Invalid condition"
	}
	display := c.Value
	if f.Type() == FieldTypeSelect && c.Value != "" {
		opts, err := f.Options(ctx, e.DB, rule.UserId)
		if err != nil {
			return "Invalid condition"
		}
		for _, o := range opts {
			if o.Value == c.Value {
				display = o.Label
				break
			}
		}
	}
	return fmt.Sprintf("If %s %s %s", strings.ToLower(f.Label()), c.Operator, display)
}
