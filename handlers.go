package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ledger_backend/entries"
	"github.com/mmdatafocus/ledger_backend/importer"
	"github.com/mmdatafocus/ledger_backend/installments"
	"github.com/mmdatafocus/ledger_backend/ledger"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/money"
	"github.com/mmdatafocus/ledger_backend/reports"
	"github.com/mmdatafocus/ledger_backend/rules"
	"github.com/mmdatafocus/ledger_backend/utils"
)

// respondError maps engine errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case utils.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, entries.ErrUserRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, rules.ErrUnsupported),
		errors.Is(err, rules.ErrInvalidValue),
		errors.Is(err, ledger.ErrUnsupportedStrategy),
		errors.Is(err, money.ErrConversion),
		errors.Is(err, entries.ErrInvestmentRequired),
		errors.Is(err, installments.ErrAlreadyGenerated),
		errors.Is(err, installments.ErrNotInstallment),
		errors.Is(err, installments.ErrInvalidCurrent),
		errors.Is(err, importer.ErrNoAccount):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return id, true
}

func queryBool(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(c.Query(name)))
	return v
}

func currentUser(c *gin.Context) int {
	userId, _ := utils.GetUserIdFromContext(c.Request.Context())
	return userId
}

// sameUser guards the /users/:id routes: callers only act on themselves.
func sameUser(c *gin.Context) (int, bool) {
	userId, ok := pathId(c, "id")
	if !ok {
		return 0, false
	}
	if userId != currentUser(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return 0, false
	}
	return userId, true
}

// ownAccount loads the path account and checks it belongs to the caller.
func (s *services) ownAccount(c *gin.Context) (*models.Account, bool) {
	accountId, ok := pathId(c, "id")
	if !ok {
		return nil, false
	}
	account, err := models.GetAccount(c.Request.Context(), s.DB, accountId)
	if err == nil && account.UserId != currentUser(c) {
		err = utils.ErrorRecordNotFound
	}
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return account, true
}

func (s *services) syncAccountHandler(c *gin.Context) {
	account, ok := s.ownAccount(c)
	if !ok {
		return
	}
	strategy, err := ledger.ParseStrategy(c.Query("strategy"))
	if err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	if queryBool(c, "async") {
		if err := s.Syncer.SyncLater(ctx, account.ID, strategy); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"account_id": account.ID, "queued": true})
		return
	}
	if err := s.Syncer.Sync(ctx, account.ID, strategy); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": account.ID, "synced": true})
}

func (s *services) syncAllHandler(c *gin.Context) {
	userId, ok := sameUser(c)
	if !ok {
		return
	}
	res, err := s.Syncer.SyncAll(c.Request.Context(), userId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type proposedPair struct {
	InflowTransactionId  int `json:"inflow_transaction_id"`
	OutflowTransactionId int `json:"outflow_transaction_id"`
	DateDiff             int `json:"date_diff"`
}

func (s *services) matchTransfersHandler(c *gin.Context) {
	userId, ok := sameUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if queryBool(c, "preview") {
		res, err := s.Matcher.Preview(ctx, userId)
		if err != nil {
			respondError(c, err)
			return
		}
		pairs := make([]proposedPair, 0, len(res.Pairs))
		for _, p := range res.Pairs {
			pairs = append(pairs, proposedPair{p.Inflow.TransactionId, p.Outflow.TransactionId, p.DateDiff})
		}
		c.JSON(http.StatusOK, gin.H{"result": res, "pairs": pairs})
		return
	}
	res, err := s.Matcher.AutoMatchTransfers(ctx, userId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *services) applyRuleHandler(c *gin.Context) {
	ruleId, ok := pathId(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	rule, err := models.LoadRule(ctx, s.DB, ruleId)
	if err == nil && rule.UserId != currentUser(c) {
		err = utils.ErrorRecordNotFound
	}
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := s.Rules.Apply(ctx, rule, queryBool(c, "ignore_attribute_locks"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *services) createRuleHandler(c *gin.Context) {
	var input rules.NewRule
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	rule, err := rules.CreateRule(c.Request.Context(), s.DB, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (s *services) rulesMetadataHandler(c *gin.Context) {
	userId, ok := sameUser(c)
	if !ok {
		return
	}
	reg, err := rules.RegistryFor(models.RuleResourceTypeTransaction)
	if err != nil {
		respondError(c, err)
		return
	}
	md, err := reg.Metadata(c.Request.Context(), s.DB, userId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, md)
}

func (s *services) presetRulesHandler(c *gin.Context) {
	userId, ok := sameUser(c)
	if !ok {
		return
	}
	created, err := rules.CreatePresetRules(c.Request.Context(), s.DB, userId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"created": len(created), "rules": created})
}

func parseDay(v string, def time.Time) (time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	return time.Parse("2006-01-02", v)
}

func (s *services) netWorthHandler(c *gin.Context) {
	userId, ok := sameUser(c)
	if !ok {
		return
	}
	today := utils.Today()
	from, err := parseDay(c.Query("from"), today.AddDate(0, 0, -30))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
		return
	}
	to, err := parseDay(c.Query("to"), today)
	if err != nil || to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
		return
	}
	series, err := s.NetWorth.NetWorth(c.Request.Context(), userId, strings.ToUpper(c.Query("currency")), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

func (s *services) exportBalancesHandler(c *gin.Context) {
	account, ok := s.ownAccount(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=balances-%d.xlsx", account.ID))
	if _, err := reports.ExportBalances(c.Request.Context(), s.DB, account.ID, c.Writer); err != nil {
		_ = c.Error(err)
		c.Status(http.StatusInternalServerError)
	}
}

func (s *services) createTransactionHandler(c *gin.Context) {
	var input entries.NewTransaction
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	txn, err := s.Entries.CreateTransaction(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

func (s *services) updateTransactionHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input entries.TransactionUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	txn, err := s.Entries.UpdateTransaction(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (s *services) deleteTransactionHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	if err := s.Entries.DeleteTransaction(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *services) generateInstallmentsHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var txn models.Transaction
	if err := s.DB.WithContext(ctx).Where("id = ?", id).Take(&txn).Error; err != nil {
		respondError(c, err)
		return
	}
	account, err := models.GetAccount(ctx, s.DB, txn.AccountId)
	if err == nil && account.UserId != currentUser(c) {
		err = utils.ErrorRecordNotFound
	}
	if err != nil {
		respondError(c, err)
		return
	}
	created, err := s.Installments.GenerateInstallments(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *services) upsertValuationHandler(c *gin.Context) {
	var input entries.NewValuation
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	v, err := s.Entries.UpsertValuation(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *services) createTradeHandler(c *gin.Context) {
	var input entries.NewTrade
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	trade, err := s.Entries.CreateTrade(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, trade)
}

type importRequest struct {
	AccountId int            `json:"account_id"`
	Currency  string         `json:"currency"`
	Rows      []importer.Row `json:"rows"`
}

func (s *services) importHandler(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	res, err := s.Importer.Import(c.Request.Context(), req.AccountId, req.Currency, req.Rows)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
