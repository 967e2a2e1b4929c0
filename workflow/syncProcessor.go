package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/ledger"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("workflow")

// AccountSyncer is the part of ledger.AccountSyncer the processor runs.
type AccountSyncer interface {
	Sync(ctx context.Context, accountId int, strategy ledger.Strategy) error
}

// SyncJobProcessor claims due SyncJob rows and runs them. Failed jobs are retried after
// a fixed delay until they reach MaxAttempts, then they are marked DEAD.
type SyncJobProcessor struct {
	DB         *gorm.DB
	Syncer     AccountSyncer
	Logger     *logrus.Logger
	WorkerId   string
	BatchSize  int
	Interval   time.Duration
	LockTTL    time.Duration
	RetryDelay time.Duration

	now func() time.Time
}

func NewSyncJobProcessor(db *gorm.DB, syncer AccountSyncer, logger *logrus.Logger) *SyncJobProcessor {
	return &SyncJobProcessor{
		DB:         db,
		Syncer:     syncer,
		Logger:     logger,
		WorkerId:   "sync-" + uuid.NewString(),
		BatchSize:  config.SyncBatchSize(),
		Interval:   config.SyncPollInterval(),
		LockTTL:    2 * time.Minute,
		RetryDelay: config.SyncRetryDelay(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (p *SyncJobProcessor) clock() time.Time {
	if p.now == nil {
		return time.Now().UTC()
	}
	return p.now()
}

// Run polls until ctx is done.
func (p *SyncJobProcessor) Run(ctx context.Context) {
	if p == nil || p.DB == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := p.ProcessOnce(ctx); err != nil {
			config.LogError(p.Logger, "workflow/syncProcessor", "Run", "ProcessOnce", nil, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

// ProcessOnce claims one batch of due jobs, runs them and returns how many it claimed.
// Jobs stuck in PROCESSING past LockTTL are reclaimed.
func (p *SyncJobProcessor) ProcessOnce(ctx context.Context) (int, error) {
	now := p.clock()
	staleBefore := now.Add(-p.LockTTL)

	var claimed []models.SyncJob
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("(status = ? AND next_attempt_at <= ?) OR (status = ? AND locked_at <= ?)",
				models.SyncJobStatusPending, now, models.SyncJobStatusProcessing, staleBefore).
			Order("next_attempt_at ASC, id ASC").
			Limit(p.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if err := tx.Model(&models.SyncJob{}).Where("id = ?", claimed[i].ID).
				Updates(p.claimChanges(now)).Error; err != nil {
				return err
			}
			claimed[i].Attempts++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for i := range claimed {
		p.execute(ctx, &claimed[i])
	}
	return len(claimed), nil
}

func (p *SyncJobProcessor) claimChanges(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":    models.SyncJobStatusProcessing,
		"locked_at": now,
		"locked_by": p.WorkerId,
		"attempts":  gorm.Expr("attempts + 1"),
	}
}

// RunJob claims and runs one job, as delivered by Pub/Sub. A job that is already done,
// dead, running elsewhere or not yet due is left alone and reported as handled.
func (p *SyncJobProcessor) RunJob(ctx context.Context, jobId int) error {
	now := p.clock()
	res := p.DB.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ? AND ((status = ? AND next_attempt_at <= ?) OR (status = ? AND locked_at <= ?))",
			jobId, models.SyncJobStatusPending, now, models.SyncJobStatusProcessing, now.Add(-p.LockTTL)).
		Updates(p.claimChanges(now))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	var job models.SyncJob
	if err := p.DB.WithContext(ctx).Where("id = ?", jobId).Take(&job).Error; err != nil {
		return err
	}
	return p.execute(ctx, &job)
}

// execute runs a claimed job and records the outcome. The returned error is the sync
// failure, already recorded on the row.
func (p *SyncJobProcessor) execute(ctx context.Context, job *models.SyncJob) error {
	ctx = utils.SystemContext(ctx, job.CorrelationId)
	ctx = utils.SetWorkerIdInContext(ctx, p.WorkerId)
	ctx, span := tracer.Start(ctx, "workflow.SyncJob")
	defer span.End()
	span.SetAttributes(attribute.Int("job_id", job.ID), attribute.Int("account_id", job.AccountId), attribute.Int("attempt", job.Attempts))

	release := config.TryLock(ctx, p.Logger, fmt.Sprintf("lock:sync:account:%d", job.AccountId), p.LockTTL)
	err := p.runSync(ctx, job)
	release()

	switch {
	case err == nil, utils.IsNotFound(err):
		// a deleted account has nothing left to derive
		p.markSucceeded(ctx, job)
		return nil
	case errors.Is(err, ledger.ErrUnsupportedStrategy):
		p.markFailed(ctx, job, err, true)
	default:
		p.markFailed(ctx, job, err, false)
	}
	return err
}

func (p *SyncJobProcessor) runSync(ctx context.Context, job *models.SyncJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	strategy, err := ledger.ParseStrategy(job.Strategy)
	if err != nil {
		return err
	}
	return p.Syncer.Sync(ctx, job.AccountId, strategy)
}

// nextAttempt decides what happens after a failed attempt: another try after delay,
// or DEAD once attempts reached maxAttempts.
func nextAttempt(attempts, maxAttempts int, now time.Time, delay time.Duration) (status string, next time.Time) {
	if maxAttempts <= 0 {
		maxAttempts = config.SyncMaxAttempts()
	}
	if attempts >= maxAttempts {
		return models.SyncJobStatusDead, now
	}
	return models.SyncJobStatusPending, now.Add(delay)
}

func (p *SyncJobProcessor) markSucceeded(ctx context.Context, job *models.SyncJob) {
	if err := p.DB.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":     models.SyncJobStatusSucceeded,
			"last_error": nil,
			"locked_at":  nil,
			"locked_by":  nil,
		}).Error; err != nil {
		config.LogError(p.Logger, "workflow/syncProcessor", "markSucceeded", "update sync job", map[string]any{"job_id": job.ID}, err)
	}
	if p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{
			"job_id":     job.ID,
			"account_id": job.AccountId,
			"attempt":    job.Attempts,
		}).Info("sync job succeeded")
	}
}

func (p *SyncJobProcessor) markFailed(ctx context.Context, job *models.SyncJob, err error, terminal bool) {
	status, next := nextAttempt(job.Attempts, job.MaxAttempts, p.clock(), p.RetryDelay)
	if terminal {
		status = models.SyncJobStatusDead
	}
	msg := err.Error()
	if uerr := p.DB.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":          status,
			"next_attempt_at": next,
			"last_error":      &msg,
			"locked_at":       nil,
			"locked_by":       nil,
		}).Error; uerr != nil {
		config.LogError(p.Logger, "workflow/syncProcessor", "markFailed", "update sync job", map[string]any{"job_id": job.ID, "status": status}, uerr)
	}

	fields := map[string]any{"job_id": job.ID, "account_id": job.AccountId, "attempt": job.Attempts, "status": status}
	if status == models.SyncJobStatusDead {
		config.LogError(p.Logger, "workflow/syncProcessor", "execute", "sync job moved to DEAD", fields, err)
		return
	}
	if p.Logger != nil {
		p.Logger.WithFields(logrus.Fields(fields)).Warn("sync job failed, retrying at " + next.Format(time.RFC3339) + ": " + msg)
	}
}
