package rules

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeSelect   FieldType = "select"
	FieldTypeFunction FieldType = "function"
)

// Option is a label/value pair offered to the UI.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

var operatorOptions = map[FieldType][]Option{
	FieldTypeText: {
		{Label: "Contains", Value: string(models.ConditionOperatorLike)},
		{Label: "Equal to", Value: string(models.ConditionOperatorEqual)},
	},
	FieldTypeNumber: {
		{Label: "Greater than", Value: string(models.ConditionOperatorGt)},
		{Label: "Greater or equal to", Value: string(models.ConditionOperatorGte)},
		{Label: "Less than", Value: string(models.ConditionOperatorLt)},
		{Label: "Less than or equal to", Value: string(models.ConditionOperatorLte)},
		{Label: "Is equal to", Value: string(models.ConditionOperatorEqual)},
	},
	FieldTypeSelect: {
		{Label: "Equal to", Value: string(models.ConditionOperatorEqual)},
	},
}

// Filter narrows a transaction scope for one condition type.
type Filter interface {
	Key() models.ConditionType
	Type() FieldType
	Label() string
	Options(ctx context.Context, db *gorm.DB, userId int) ([]Option, error)
	validate(op models.ConditionOperator, value string) error
	prepare(s *scope)
	apply(s *scope, op models.ConditionOperator, value string) error
}

type nameFilter struct{}

func (nameFilter) Key() models.ConditionType { return models.ConditionTypeTransactionName }
func (nameFilter) Type() FieldType           { return FieldTypeText }
func (nameFilter) Label() string             { return "Transaction Name" }

func (nameFilter) Options(context.Context, *gorm.DB, int) ([]Option, error) { return nil, nil }

func (nameFilter) prepare(*scope) {}

func (nameFilter) validate(op models.ConditionOperator, value string) error {
	switch op {
	case models.ConditionOperatorLike, models.ConditionOperatorEqual:
		return nil
	case models.ConditionOperatorRegex:
		if _, err := regexp.Compile(value); err != nil {
			return ErrInvalidValue
		}
		return nil
	}
	return unsupported("operator", string(op))
}

func (f nameFilter) apply(s *scope, op models.ConditionOperator, value string) error {
	if err := f.validate(op, value); err != nil {
		return err
	}
	switch op {
	case models.ConditionOperatorLike:
		s.where("LOWER(transactions.name) LIKE ?", "%"+escapeLike(strings.ToLower(value))+"%")
	case models.ConditionOperatorEqual:
		s.where("LOWER(transactions.name) = ?", strings.ToLower(value))
	case models.ConditionOperatorRegex:
		s.where("transactions.name REGEXP ?", value)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(v string) string {
	return likeEscaper.Replace(v)
}

// amountFilter compares the signed amount, so "> 100" only matches outflows.
type amountFilter struct{}

func (amountFilter) Key() models.ConditionType { return models.ConditionTypeTransactionAmount }
func (amountFilter) Type() FieldType           { return FieldTypeNumber }
func (amountFilter) Label() string             { return "Transaction Amount" }

func (amountFilter) Options(context.Context, *gorm.DB, int) ([]Option, error) { return nil, nil }

func (amountFilter) prepare(*scope) {}

func (amountFilter) validate(op models.ConditionOperator, value string) error {
	switch op {
	case models.ConditionOperatorGt, models.ConditionOperatorGte, models.ConditionOperatorLt,
		models.ConditionOperatorLte, models.ConditionOperatorEqual:
	default:
		return unsupported("operator", string(op))
	}
	if _, err := decimal.NewFromString(strings.TrimSpace(value)); err != nil {
		return ErrInvalidValue
	}
	return nil
}

func (f amountFilter) apply(s *scope, op models.ConditionOperator, value string) error {
	if err := f.validate(op, value); err != nil {
		return err
	}
	amount := decimal.RequireFromString(strings.TrimSpace(value))
	s.where("transactions.amount "+string(op)+" ?", amount)
	return nil
}

type merchantFilter struct{}

func (merchantFilter) Key() models.ConditionType { return models.ConditionTypeTransactionMerchant }
func (merchantFilter) Type() FieldType           { return FieldTypeSelect }
func (merchantFilter) Label() string             { return "Transaction Merchant" }

func (merchantFilter) Options(ctx context.Context, db *gorm.DB, userId int) ([]Option, error) {
	var merchants []models.Merchant
	if err := db.WithContext(ctx).Where("user_id = ?", userId).Order("name").Find(&merchants).Error; err != nil {
		return nil, err
	}
	out := make([]Option, 0, len(merchants))
	for _, m := range merchants {
		out = append(out, Option{Label: m.Name, Value: strconv.Itoa(m.ID)})
	}
	return out, nil
}

// prepare joins the user's merchants so a foreign merchant id never matches.
func (merchantFilter) prepare(s *scope) {
	s.join("merchants", "LEFT JOIN merchants ON merchants.id = transactions.merchant_id AND merchants.user_id = ?", s.userId)
}

func (merchantFilter) validate(op models.ConditionOperator, value string) error {
	if op != models.ConditionOperatorEqual {
		return unsupported("operator", string(op))
	}
	if _, err := strconv.Atoi(strings.TrimSpace(value)); err != nil {
		return ErrInvalidValue
	}
	return nil
}

func (f merchantFilter) apply(s *scope, op models.ConditionOperator, value string) error {
	if err := f.validate(op, value); err != nil {
		return err
	}
	id, _ := strconv.Atoi(strings.TrimSpace(value))
	s.where("merchants.id = ?", id)
	return nil
}
