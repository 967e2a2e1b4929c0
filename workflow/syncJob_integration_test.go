package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/ledger"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/testenv"
	"github.com/mmdatafocus/ledger_backend/workflow"
)

type flakySyncer struct {
	calls int
	err   error
}

func (f *flakySyncer) Sync(ctx context.Context, accountId int, strategy ledger.Strategy) error {
	f.calls++
	return f.err
}

func TestQueuedJobRetriesThenDies(t *testing.T) {
	testenv.Setup(t, false)
	ctx := context.Background()
	db := config.GetDB()
	logger := config.GetLogger()

	queue := &workflow.SyncJobQueue{DB: db, Logger: logger, MaxAttempts: 3}
	if err := queue.EnqueueSync(ctx, 7, ledger.StrategyForward); err != nil {
		t.Fatalf("EnqueueSync: %v", err)
	}
	if err := queue.EnqueueSync(ctx, 7, ledger.StrategyForward); err != nil {
		t.Fatalf("EnqueueSync again: %v", err)
	}
	var jobs []models.SyncJob
	db.Where("account_id = ?", 7).Find(&jobs)
	if len(jobs) != 1 {
		t.Fatalf("a pending job should absorb the second request, got %d jobs", len(jobs))
	}

	syncer := &flakySyncer{err: errors.New("deadlock")}
	p := workflow.NewSyncJobProcessor(db, syncer, logger)
	p.RetryDelay = 0

	for attempt := 1; attempt <= 3; attempt++ {
		if err := p.RunJob(ctx, jobs[0].ID); err == nil {
			t.Fatalf("attempt %d: expected the sync error", attempt)
		}
	}
	var job models.SyncJob
	db.First(&job, jobs[0].ID)
	if job.Status != models.SyncJobStatusDead || job.Attempts != 3 || syncer.calls != 3 {
		t.Fatalf("expected DEAD after 3 attempts, got %s after %d (%d calls)", job.Status, job.Attempts, syncer.calls)
	}
	if err := p.RunJob(ctx, job.ID); err != nil || syncer.calls != 3 {
		t.Fatalf("a dead job must not run again")
	}
}

func TestProcessOnceRunsDueJobs(t *testing.T) {
	testenv.Setup(t, false)
	ctx := context.Background()
	db := config.GetDB()
	logger := config.GetLogger()

	queue := &workflow.SyncJobQueue{DB: db, Logger: logger, MaxAttempts: 3}
	for _, id := range []int{1, 2} {
		if err := queue.EnqueueSync(ctx, id, ledger.StrategyForward); err != nil {
			t.Fatalf("EnqueueSync: %v", err)
		}
	}

	// account rows do not exist, so the real syncer reports not found which counts as done
	p := workflow.NewSyncJobProcessor(db, ledger.NewAccountSyncer(db, logger), logger)
	n, err := p.ProcessOnce(ctx)
	if err != nil || n != 2 {
		t.Fatalf("ProcessOnce = %d, %v", n, err)
	}
	var succeeded int64
	db.Model(&models.SyncJob{}).Where("status = ?", models.SyncJobStatusSucceeded).Count(&succeeded)
	if succeeded != 2 {
		t.Fatalf("expected both jobs to succeed, got %d", succeeded)
	}
}
