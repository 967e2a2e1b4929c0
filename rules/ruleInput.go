package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"gorm.io/gorm"
)

type NewRuleCondition struct {
	ConditionType models.ConditionType     `json:"condition_type" validate:"required"`
	Operator      models.ConditionOperator `json:"operator" validate:"required"`
	Value         string                   `json:"value"`
	SubConditions []NewRuleCondition       `json:"sub_conditions" validate:"dive"`
}

type NewRuleAction struct {
	ActionType models.ActionType `json:"action_type" validate:"required"`
	Value      string            `json:"value"`
}

type NewRule struct {
	Name          string                  `json:"name" validate:"max=255"`
	ResourceType  models.RuleResourceType `json:"resource_type"`
	EffectiveDate *time.Time              `json:"effective_date"`
	Conditions    []NewRuleCondition      `json:"conditions" validate:"dive"`
	Actions       []NewRuleAction         `json:"actions" validate:"required,min=1,dive"`
}

func (c NewRuleCondition) validate(reg *Registry, nested bool) error {
	if c.ConditionType == models.ConditionTypeCompound {
		if nested {
			return fmt.Errorf("%w: compound conditions cannot be nested", utils.ErrInvalidInput)
		}
		if c.Operator != models.ConditionOperatorAnd && c.Operator != models.ConditionOperatorOr {
			return unsupported("operator", string(c.Operator))
		}
		if len(c.SubConditions) == 0 {
			return fmt.Errorf("%w: compound condition needs sub conditions", utils.ErrInvalidInput)
		}
		for _, sub := range c.SubConditions {
			if err := sub.validate(reg, true); err != nil {
				return err
			}
		}
		return nil
	}
	if len(c.SubConditions) > 0 {
		return fmt.Errorf("%w: only compound conditions have sub conditions", utils.ErrInvalidInput)
	}
	f, err := reg.Filter(c.ConditionType)
	if err != nil {
		return err
	}
	return f.validate(c.Operator, c.Value)
}

func (input *NewRule) validate() (*Registry, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	reg, err := RegistryFor(input.ResourceType)
	if err != nil {
		return nil, err
	}
	for _, c := range input.Conditions {
		if err := c.validate(reg, false); err != nil {
			return nil, err
		}
	}
	for _, a := range input.Actions {
		if _, err := reg.Executor(a.ActionType); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// CreateRule stores a rule owned by the context user.
func CreateRule(ctx context.Context, db *gorm.DB, input *NewRule) (*models.Rule, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, errors.New("user id is required")
	}
	reg, err := input.validate()
	if err != nil {
		return nil, err
	}
	rule := &models.Rule{
		UserId:        userId,
		Name:          strings.TrimSpace(input.Name),
		ResourceType:  reg.ResourceType,
		EffectiveDate: input.EffectiveDate,
	}
	if rule.EffectiveDate != nil {
		d := utils.TruncateToDate(*rule.EffectiveDate)
		rule.EffectiveDate = &d
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Conditions", "Actions").Create(rule).Error; err != nil {
			return err
		}
		for _, c := range input.Conditions {
			if _, err := createCondition(tx, rule, nil, c); err != nil {
				return err
			}
		}
		for _, a := range input.Actions {
			action := &models.RuleAction{RuleId: rule.ID, ActionType: a.ActionType, Value: strings.TrimSpace(a.Value)}
			if err := tx.Create(action).Error; err != nil {
				return err
			}
			rule.Actions = append(rule.Actions, action)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func createCondition(tx *gorm.DB, rule *models.Rule, parent *models.RuleCondition, in NewRuleCondition) (*models.RuleCondition, error) {
	c := &models.RuleCondition{
		RuleId:        rule.ID,
		ConditionType: in.ConditionType,
		Operator:      in.Operator,
		Value:         strings.TrimSpace(in.Value),
	}
	if parent != nil {
		c.ParentId = &parent.ID
	}
	if err := tx.Omit("SubConditions").Create(c).Error; err != nil {
		return nil, err
	}
	if parent == nil {
		rule.Conditions = append(rule.Conditions, c)
	} else {
		parent.SubConditions = append(parent.SubConditions, c)
	}
	for _, sub := range in.SubConditions {
		if _, err := createCondition(tx, rule, c, sub); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DeleteRule removes a rule with its conditions and actions.
func DeleteRule(ctx context.Context, db *gorm.DB, ruleId int) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("rule_id = ?", ruleId).Delete(&models.RuleCondition{}).Error; err != nil {
			return err
		}
		if err := tx.Where("rule_id = ?", ruleId).Delete(&models.RuleAction{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Rule{}, ruleId)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.ErrorRecordNotFound
		}
		return nil
	})
}
