package main

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/sirupsen/logrus"
)

var (
	accountMutexMap = make(map[int]*sync.Mutex)
	globalMutex     = &sync.Mutex{}
)

// accountMutex serializes deliveries for one account within this process.
func accountMutex(accountId int) *sync.Mutex {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	m, ok := accountMutexMap[accountId]
	if !ok {
		m = &sync.Mutex{}
		accountMutexMap[accountId] = m
	}
	return m
}

// handleSyncRequest runs the job named by a Pub/Sub payload. Retries are driven by the
// job row, so the message is acknowledged whatever the outcome.
func handleSyncRequest(ctx context.Context, svc *services, data []byte, messageId string) {
	var m config.SyncRequestMessage
	if err := json.Unmarshal(data, &m); err != nil {
		config.LogError(svc.Logger, "syncWorkflow.go", "handleSyncRequest", "Unmarshaling pubsub message", string(data), err)
		return
	}
	if m.JobId <= 0 {
		config.LogError(svc.Logger, "syncWorkflow.go", "handleSyncRequest", "Invalid pubsub message (missing job_id)", m, errMissingJobId)
		return
	}

	mu := accountMutex(m.AccountId)
	mu.Lock()
	defer mu.Unlock()

	if err := svc.Processor.RunJob(ctx, m.JobId); err != nil {
		svc.Logger.WithFields(logrus.Fields{
			"field":          "SyncWorkflow",
			"job_id":         m.JobId,
			"account_id":     m.AccountId,
			"message_id":     messageId,
			"correlation_id": m.CorrelationId,
		}).Error("sync job failed: " + err.Error())
	}
}

// RunSyncSubscription receives sync requests from PUBSUB_SYNC_SUBSCRIPTION until ctx is done.
func RunSyncSubscription(ctx context.Context, svc *services) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(ctx, client, os.Getenv("PUBSUB_SYNC_TOPIC"))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(ctx, client, os.Getenv("PUBSUB_SYNC_SUBSCRIPTION"), topic)
	if err != nil {
		return err
	}
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	go func() {
		err := sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
			handleSyncRequest(ctx, svc, msg.Data, msg.ID)
			msg.Ack()
		})
		if err != nil {
			config.LogError(svc.Logger, "syncWorkflow.go", "RunSyncSubscription", "Failed to receive messages", nil, err)
		}
	}()
	return nil
}
