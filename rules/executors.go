package rules

import (
	"context"
	"strconv"
	"strings"

	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const updateChunkSize = 1000

// Executor writes one action's value into the matched transactions.
//
// Unless ignoreLocks is set an executor only fills empty attributes. An empty value or
// a value pointing at another user's record is a no-op.
type Executor interface {
	Key() models.ActionType
	Type() FieldType
	Label() string
	Options(ctx context.Context, db *gorm.DB, userId int) ([]Option, error)
	Execute(ctx context.Context, tx *gorm.DB, userId int, ids []int, value string, ignoreLocks bool) (int64, error)
}

func chunked(ids []int, fn func([]int) (int64, error)) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += updateChunkSize {
		end := start + updateChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		n, err := fn(ids[start:end])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// ownedId resolves value to the id of a row of model owned by userId; ok is false when absent.
func ownedId(ctx context.Context, tx *gorm.DB, model any, userId int, value string) (int, bool, error) {
	id, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, false, nil
	}
	var found []int
	if err := tx.WithContext(ctx).Model(model).Where("id = ? AND user_id = ?", id, userId).Limit(1).Pluck("id", &found).Error; err != nil {
		return 0, false, err
	}
	if len(found) == 0 {
		return 0, false, nil
	}
	return found[0], true, nil
}

func namedOptions(ctx context.Context, db *gorm.DB, model any, userId int) ([]Option, error) {
	type row struct {
		ID   int
		Name string
	}
	var rows []row
	if err := db.WithContext(ctx).Model(model).Select("id, name").Where("user_id = ?", userId).Order("name").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Option, 0, len(rows))
	for _, r := range rows {
		out = append(out, Option{Label: r.Name, Value: strconv.Itoa(r.ID)})
	}
	return out, nil
}

// setColumnExecutor fills a foreign key column (category or merchant).
type setColumnExecutor struct {
	key    models.ActionType
	label  string
	column string
	model  any
}

func (e setColumnExecutor) Key() models.ActionType { return e.key }
func (e setColumnExecutor) Type() FieldType        { return FieldTypeSelect }
func (e setColumnExecutor) Label() string          { return e.label }

func (e setColumnExecutor) Options(ctx context.Context, db *gorm.DB, userId int) ([]Option, error) {
	return namedOptions(ctx, db, e.model, userId)
}

func (e setColumnExecutor) Execute(ctx context.Context, tx *gorm.DB, userId int, ids []int, value string, ignoreLocks bool) (int64, error) {
	if value == "" || len(ids) == 0 {
		return 0, nil
	}
	target, ok, err := ownedId(ctx, tx, e.model, userId, value)
	if err != nil || !ok {
		return 0, err
	}
	return chunked(ids, func(part []int) (int64, error) {
		q := tx.WithContext(ctx).Model(&models.Transaction{}).Where("id IN ?", part)
		if !ignoreLocks {
			q = q.Where(e.column + " IS NULL")
		}
		res := q.Update(e.column, target)
		return res.RowsAffected, res.Error
	})
}

type setNameExecutor struct{}

func (setNameExecutor) Key() models.ActionType { return models.ActionTypeSetTransactionName }
func (setNameExecutor) Type() FieldType        { return FieldTypeText }
func (setNameExecutor) Label() string          { return "Set Transaction Name" }

func (setNameExecutor) Options(context.Context, *gorm.DB, int) ([]Option, error) { return nil, nil }

func (setNameExecutor) Execute(ctx context.Context, tx *gorm.DB, userId int, ids []int, value string, ignoreLocks bool) (int64, error) {
	if value == "" || len(ids) == 0 {
		return 0, nil
	}
	return chunked(ids, func(part []int) (int64, error) {
		q := tx.WithContext(ctx).Model(&models.Transaction{}).Where("id IN ?", part)
		if !ignoreLocks {
			q = q.Where("name IS NULL OR name = ''")
		}
		res := q.Update("name", value)
		return res.RowsAffected, res.Error
	})
}

// setTagsExecutor attaches one tag. The lock is the transaction's tag set:
// untagged transactions are tagged, already-tagged ones only with ignoreLocks.
type setTagsExecutor struct{}

func (setTagsExecutor) Key() models.ActionType { return models.ActionTypeSetTransactionTags }
func (setTagsExecutor) Type() FieldType        { return FieldTypeSelect }
func (setTagsExecutor) Label() string          { return "Set Transaction Tags" }

func (setTagsExecutor) Options(ctx context.Context, db *gorm.DB, userId int) ([]Option, error) {
	return namedOptions(ctx, db, &models.Tag{}, userId)
}

func (setTagsExecutor) Execute(ctx context.Context, tx *gorm.DB, userId int, ids []int, value string, ignoreLocks bool) (int64, error) {
	if value == "" || len(ids) == 0 {
		return 0, nil
	}
	tagId, ok, err := ownedId(ctx, tx, &models.Tag{}, userId, value)
	if err != nil || !ok {
		return 0, err
	}
	return chunked(ids, func(part []int) (int64, error) {
		targets := part
		if !ignoreLocks {
			var tagged []int
			if err := tx.WithContext(ctx).Model(&models.TransactionTag{}).
				Where("transaction_id IN ?", part).
				Distinct().Pluck("transaction_id", &tagged).Error; err != nil {
				return 0, err
			}
			targets = without(part, tagged)
		}
		if len(targets) == 0 {
			return 0, nil
		}
		rows := make([]models.TransactionTag, 0, len(targets))
		for _, id := range targets {
			rows = append(rows, models.TransactionTag{TransactionId: id, TagId: tagId})
		}
		res := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
		return res.RowsAffected, res.Error
	})
}

func without(ids, drop []int) []int {
	if len(drop) == 0 {
		return ids
	}
	skip := make(map[int]struct{}, len(drop))
	for _, id := range drop {
		skip[id] = struct{}{}
	}
	out := make([]int, 0, len(ids))
	for _, id := range utils.UniqueSlice(ids) {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
