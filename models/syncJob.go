package models

import (
	"time"
)

// SyncJob is the outbox row behind an asynchronous account sync.
// Workers claim due rows, run the sync and either finish or reschedule them.
type SyncJob struct {
	ID            int        `gorm:"primary_key" json:"id"`
	AccountId     int        `gorm:"index;not null" json:"account_id"`
	Strategy      string     `gorm:"size:20;not null;default:'forward'" json:"strategy"`
	Status        string     `gorm:"size:20;not null;default:'PENDING';index:idx_sync_job_status_next,priority:1" json:"status"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts   int        `gorm:"not null;default:3" json:"max_attempts"`
	NextAttemptAt time.Time  `gorm:"index:idx_sync_job_status_next,priority:2" json:"next_attempt_at"`
	LockedAt      *time.Time `json:"locked_at"`
	LockedBy      *string    `gorm:"size:100" json:"locked_by"`
	LastError     *string    `gorm:"type:text" json:"last_error"`
	CorrelationId string     `gorm:"size:64" json:"correlation_id"`
	PublishedId   *string    `gorm:"size:100" json:"published_id"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
