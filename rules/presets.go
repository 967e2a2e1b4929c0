package rules

import (
	"context"
	"regexp"
	"strconv"

	"github.com/mmdatafocus/ledger_backend/models"
	"gorm.io/gorm"
)

// Preset is a ready-made categorization rule for a common Brazilian merchant.
type Preset struct {
	Name         string
	Pattern      string
	CategoryName string
	Description  string
}

var Presets = []Preset{
	{Name: "Uber - Transporte", Pattern: `.*UBER.*`, CategoryName: "Transporte", Description: "Categoriza corridas do Uber como Transporte"},
	{Name: "99 - Transporte", Pattern: `.*99.*`, CategoryName: "Transporte", Description: "Categoriza corridas do 99 como Transporte"},
	{Name: "iFood - Alimentação", Pattern: `.*IFOOD.*`, CategoryName: "Alimentação", Description: "Categoriza pedidos do iFood como Alimentação"},
	{Name: "Rappi - Alimentação", Pattern: `.*RAPPI.*`, CategoryName: "Alimentação", Description: "Categoriza pedidos do Rappi como Alimentação"},
	{Name: "Supermercado - Mercado", Pattern: `.*(CARREFOUR|ASSAI|ATACADAO|SUPERMERCADO|PAO DE ACUCAR).*`, CategoryName: "Mercado", Description: "Categoriza compras de supermercado"},
	{Name: "Posto - Combustível", Pattern: `.*(POSTO|SHELL|IPIRANGA|PETROBRAS).*`, CategoryName: "Combustível", Description: "Categoriza abastecimentos"},
	{Name: "Farmácia - Saúde", Pattern: `.*(DROGASIL|DROGARIA|RAIA|PAGUE MENOS).*`, CategoryName: "Saúde", Description: "Categoriza compras em farmácias"},
	{Name: "Nubank - Taxa", Pattern: `.*NUBANK.*TAXA.*`, CategoryName: "Taxas", Description: "Categoriza taxas do Nubank"},
	{Name: "Netflix - Entretenimento", Pattern: `.*NETFLIX.*`, CategoryName: "Entretenimento", Description: "Categoriza assinatura Netflix"},
	{Name: "Spotify - Entretenimento", Pattern: `.*SPOTIFY.*`, CategoryName: "Entretenimento", Description: "Categoriza assinatura Spotify"},
}

var presetPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(Presets))
	for i, p := range Presets {
		out[i] = regexp.MustCompile("(?i)^" + p.Pattern)
	}
	return out
}()

// SuggestCategory returns the category of the first preset whose pattern matches name.
func SuggestCategory(name string) (string, bool) {
	for i, re := range presetPatterns {
		if re.MatchString(name) {
			return Presets[i].CategoryName, true
		}
	}
	return "", false
}

// CreatePresetRules gives userId one regex rule per preset, creating missing categories.
// Presets whose rule name already exists for the user are skipped.
func CreatePresetRules(ctx context.Context, db *gorm.DB, userId int) ([]*models.Rule, error) {
	var created []*models.Rule
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range Presets {
			var existing int64
			if err := tx.Model(&models.Rule{}).Where("user_id = ? AND name = ?", userId, p.Name).Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				continue
			}
			category, err := models.GetOrCreateCategory(ctx, tx, userId, p.CategoryName, models.CategoryClassificationExpense)
			if err != nil {
				return err
			}
			rule := &models.Rule{
				UserId:       userId,
				Name:         p.Name,
				ResourceType: models.RuleResourceTypeTransaction,
				Conditions: []*models.RuleCondition{{
					ConditionType: models.ConditionTypeTransactionName,
					Operator:      models.ConditionOperatorRegex,
					Value:         p.Pattern,
				}},
				Actions: []*models.RuleAction{{
					ActionType: models.ActionTypeSetTransactionCategory,
					Value:      strconv.Itoa(category.ID),
				}},
			}
			if err := tx.Create(rule).Error; err != nil {
				return err
			}
			created = append(created, rule)
		}
		return nil
	})
	return created, err
}
