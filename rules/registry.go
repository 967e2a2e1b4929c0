package rules

import (
	"context"

	"github.com/mmdatafocus/ledger_backend/models"
	"gorm.io/gorm"
)

// Registry is the filter and executor catalog of one resource type.
type Registry struct {
	ResourceType models.RuleResourceType
	filters      []Filter
	executors    []Executor
	base         func(db *gorm.DB, rule *models.Rule) *gorm.DB
}

var transactionRegistry = &Registry{
	ResourceType: models.RuleResourceTypeTransaction,
	filters:      []Filter{nameFilter{}, amountFilter{}, merchantFilter{}},
	executors: []Executor{
		setColumnExecutor{key: models.ActionTypeSetTransactionCategory, label: "Set Transaction Category", column: "category_id", model: &models.Category{}},
		setTagsExecutor{},
		setColumnExecutor{key: models.ActionTypeSetTransactionMerchant, label: "Set Transaction Merchant", column: "merchant_id", model: &models.Merchant{}},
		setNameExecutor{},
	},
	base: transactionBaseScope,
}

// transactionBaseScope is the user's non-excluded transactions on or after the effective date.
func transactionBaseScope(db *gorm.DB, rule *models.Rule) *gorm.DB {
	accounts := db.Session(&gorm.Session{NewDB: true}).Model(&models.Account{}).Select("id").Where("user_id = ?", rule.UserId)
	q := db.Model(&models.Transaction{}).
		Where("transactions.account_id IN (?)", accounts).
		Where("transactions.excluded = ?", false)
	if rule.EffectiveDate != nil {
		q = q.Where("transactions.date >= ?", rule.EffectiveDate.Format("2006-01-02"))
	}
	return q
}

// RegistryFor returns the catalog for resourceType.
func RegistryFor(resourceType models.RuleResourceType) (*Registry, error) {
	switch resourceType {
	case models.RuleResourceTypeTransaction, "":
		return transactionRegistry, nil
	}
	return nil, unsupported("resource_type", string(resourceType))
}

func (r *Registry) Filter(key models.ConditionType) (Filter, error) {
	for _, f := range r.filters {
		if f.Key() == key {
			return f, nil
		}
	}
	return nil, unsupported("condition", string(key))
}

func (r *Registry) Executor(key models.ActionType) (Executor, error) {
	for _, e := range r.executors {
		if e.Key() == key {
			return e, nil
		}
	}
	return nil, unsupported("action", string(key))
}

type FilterMetadata struct {
	Type      FieldType            `json:"type"`
	Key       models.ConditionType `json:"key"`
	Label     string               `json:"label"`
	Operators []Option             `json:"operators"`
	Options   []Option             `json:"options"`
}

type ExecutorMetadata struct {
	Type    FieldType         `json:"type"`
	Key     models.ActionType `json:"key"`
	Label   string            `json:"label"`
	Options []Option          `json:"options"`
}

type Metadata struct {
	ResourceType models.RuleResourceType `json:"resource_type"`
	Filters      []FilterMetadata        `json:"filters"`
	Executors    []ExecutorMetadata      `json:"executors"`
}

// Catalog describes the filters and executors without per-user options.
func (r *Registry) Catalog() *Metadata {
	md := &Metadata{ResourceType: r.ResourceType}
	for _, f := range r.filters {
		md.Filters = append(md.Filters, FilterMetadata{
			Type:      f.Type(),
			Key:       f.Key(),
			Label:     f.Label(),
			Operators: operatorOptions[f.Type()],
		})
	}
	for _, e := range r.executors {
		md.Executors = append(md.Executors, ExecutorMetadata{
			Type:  e.Type(),
			Key:   e.Key(),
			Label: e.Label(),
		})
	}
	return md
}

// Metadata describes the catalog for the UI, with select options loaded for userId.
func (r *Registry) Metadata(ctx context.Context, db *gorm.DB, userId int) (*Metadata, error) {
	md := r.Catalog()
	for i, f := range r.filters {
		opts, err := f.Options(ctx, db, userId)
		if err != nil {
			return nil, err
		}
		md.Filters[i].Options = opts
	}
	for i, e := range r.executors {
		opts, err := e.Options(ctx, db, userId)
		if err != nil {
			return nil, err
		}
		md.Executors[i].Options = opts
	}
	return md, nil
}
