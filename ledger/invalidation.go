package ledger

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/sirupsen/logrus"
)

// AccountRefresher is what the write path needs from the syncer.
type AccountRefresher interface {
	Sync(ctx context.Context, accountId int, strategy Strategy) error
	SyncLater(ctx context.Context, accountId int, strategy Strategy) error
}

// Invalidator is called by every write path after an entry of an account changed.
// It never returns an error: derived-state failures must not fail the user's write.
type Invalidator struct {
	Syncer AccountRefresher
	// Async queues syncs instead of running them inline.
	Async  bool
	Logger *logrus.Logger
}

func NewInvalidator(syncer AccountRefresher, logger *logrus.Logger) *Invalidator {
	return &Invalidator{Syncer: syncer, Async: config.SyncAsyncOnWrite(), Logger: logger}
}

// AfterEntryChange resyncs each distinct account once.
func (i *Invalidator) AfterEntryChange(ctx context.Context, accountIds ...int) {
	if i == nil || i.Syncer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			config.LogError(i.Logger, "ledger/invalidation", "AfterEntryChange", "recover", map[string]any{"account_ids": accountIds}, fmt.Errorf("panic: %v", r))
		}
	}()
	for _, id := range utils.UniqueSlice(accountIds) {
		if id == 0 {
			continue
		}
		var err error
		if i.Async {
			err = i.Syncer.SyncLater(ctx, id, StrategyForward)
		} else {
			err = i.Syncer.Sync(ctx, id, StrategyForward)
		}
		if err != nil {
			config.LogError(i.Logger, "ledger/invalidation", "AfterEntryChange", "sync", map[string]any{"account_id": id, "async": i.Async}, err)
		}
	}
}
