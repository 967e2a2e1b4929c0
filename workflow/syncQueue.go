package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/ledger"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PublishFunc hands a queued job to Pub/Sub and returns the message id.
type PublishFunc func(ctx context.Context, msg config.SyncRequestMessage) (string, error)

// SyncJobQueue is the outbox side of SyncLater: it records a SyncJob row and, when
// Pub/Sub is configured, publishes the job id so a subscriber picks it up quickly.
// Rows that never get delivered are drained by SyncJobProcessor.
type SyncJobQueue struct {
	DB          *gorm.DB
	Logger      *logrus.Logger
	MaxAttempts int
	Publish     PublishFunc
}

func NewSyncJobQueue(db *gorm.DB, logger *logrus.Logger) *SyncJobQueue {
	q := &SyncJobQueue{DB: db, Logger: logger, MaxAttempts: config.SyncMaxAttempts()}
	if config.PubSubConfigured() {
		q.Publish = config.PublishSyncRequest
	}
	return q
}

// EnqueueSync implements ledger.SyncEnqueuer. A job still waiting for the same account
// and strategy absorbs the request, since one sync covers every earlier change.
func (q *SyncJobQueue) EnqueueSync(ctx context.Context, accountId int, strategy ledger.Strategy) error {
	correlationId, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || correlationId == "" {
		correlationId = uuid.NewString()
	}

	var job models.SyncJob
	created := false
	err := q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("account_id = ? AND strategy = ? AND status = ? AND locked_at IS NULL",
			accountId, string(strategy), models.SyncJobStatusPending).
			Order("id").Take(&job).Error
		if err == nil {
			return nil
		}
		if !utils.IsNotFound(err) {
			return err
		}
		job = models.SyncJob{
			AccountId:     accountId,
			Strategy:      string(strategy),
			Status:        models.SyncJobStatusPending,
			MaxAttempts:   q.MaxAttempts,
			NextAttemptAt: time.Now().UTC(),
			CorrelationId: correlationId,
		}
		created = true
		return tx.Create(&job).Error
	})
	if err != nil {
		return err
	}
	if !created || q.Publish == nil {
		return nil
	}

	msgId, err := q.Publish(ctx, config.SyncRequestMessage{
		JobId:         job.ID,
		AccountId:     accountId,
		Strategy:      string(strategy),
		CorrelationId: correlationId,
	})
	if err != nil {
		// the row stays PENDING for the polling processor
		config.LogError(q.Logger, "workflow/syncQueue", "EnqueueSync", "Publish", map[string]any{"job_id": job.ID, "account_id": accountId}, err)
		return nil
	}
	return q.DB.WithContext(ctx).Model(&models.SyncJob{}).Where("id = ?", job.ID).Update("published_id", msgId).Error
}
