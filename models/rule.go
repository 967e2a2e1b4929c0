package models

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/mmdatafocus/ledger_backend/utils"
	"gorm.io/gorm"
)

type Rule struct {
	ID           int              `gorm:"primary_key" json:"id"`
	UserId       int              `gorm:"index:idx_rule_user_resource,priority:1;not null" json:"user_id"`
	Name         string           `gorm:"size:255" json:"name"`
	ResourceType RuleResourceType `gorm:"size:20;index:idx_rule_user_resource,priority:2;not null;default:'transaction'" json:"resource_type"`
	// EffectiveDate limits the rule to resources dated on or after it; nil means all dates.
	EffectiveDate *time.Time       `gorm:"type:date" json:"effective_date"`
	Conditions    []*RuleCondition `gorm:"foreignKey:RuleId" json:"conditions,omitempty"`
	Actions       []*RuleAction    `gorm:"foreignKey:RuleId" json:"actions,omitempty"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type RuleCondition struct {
	ID            int               `gorm:"primary_key" json:"id"`
	RuleId        int               `gorm:"index;not null" json:"rule_id"`
	ParentId      *int              `gorm:"index" json:"parent_id"`
	ConditionType ConditionType     `gorm:"size:50;not null" json:"condition_type"`
	Operator      ConditionOperator `gorm:"size:10;not null" json:"operator"`
	Value         string            `gorm:"type:text" json:"value"`
	SubConditions []*RuleCondition  `gorm:"foreignKey:ParentId" json:"sub_conditions,omitempty"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

func (c RuleCondition) IsCompound() bool {
	return c.ConditionType == ConditionTypeCompound
}

type RuleAction struct {
	ID         int        `gorm:"primary_key" json:"id"`
	RuleId     int        `gorm:"index;not null" json:"rule_id"`
	ActionType ActionType `gorm:"size:50;not null" json:"action_type"`
	Value      string     `gorm:"type:text" json:"value"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// RootConditions returns conditions without a parent, in creation order.
func (r Rule) RootConditions() []*RuleCondition {
	roots := make([]*RuleCondition, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		if c.ParentId == nil {
			roots = append(roots, c)
		}
	}
	return roots
}

// BuildConditionTree links a flat, id-ordered condition list into parent/child form
// and returns the roots.
func BuildConditionTree(flat []*RuleCondition) []*RuleCondition {
	sort.SliceStable(flat, func(i, j int) bool { return flat[i].ID < flat[j].ID })
	byId := make(map[int]*RuleCondition, len(flat))
	for _, c := range flat {
		c.SubConditions = nil
		byId[c.ID] = c
	}
	roots := make([]*RuleCondition, 0)
	for _, c := range flat {
		if c.ParentId == nil {
			roots = append(roots, c)
			continue
		}
		if parent, ok := byId[*c.ParentId]; ok {
			parent.SubConditions = append(parent.SubConditions, c)
		}
	}
	return roots
}

// LoadRule reads a rule with its full condition tree and actions.
func LoadRule(ctx context.Context, tx *gorm.DB, id int) (*Rule, error) {
	var rule Rule
	if err := tx.WithContext(ctx).Where("id = ?", id).Take(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	var flat []*RuleCondition
	if err := tx.WithContext(ctx).Where("rule_id = ?", id).Order("id").Find(&flat).Error; err != nil {
		return nil, err
	}
	roots := BuildConditionTree(flat)
	rule.Conditions = roots
	if err := tx.WithContext(ctx).Where("rule_id = ?", id).Order("id").Find(&rule.Actions).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func GetRuleIdsByUser(ctx context.Context, tx *gorm.DB, userId int) ([]int, error) {
	var ids []int
	err := tx.WithContext(ctx).Model(&Rule{}).Where("user_id = ?", userId).Order("name, created_at").Pluck("id", &ids).Error
	return ids, err
}
