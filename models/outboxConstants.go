package models

// Sync job statuses for SyncJob.Status.
// Stored as strings.
const (
	SyncJobStatusPending    = "PENDING"
	SyncJobStatusProcessing = "PROCESSING"
	SyncJobStatusSucceeded  = "SUCCEEDED"
	SyncJobStatusDead       = "DEAD"
)
