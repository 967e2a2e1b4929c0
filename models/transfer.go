package models

import (
	"time"
)

// Transfer pairs the outflow and inflow legs of money moved between two of a user's accounts.
type Transfer struct {
	ID                   int            `gorm:"primary_key" json:"id"`
	InflowTransactionId  int            `gorm:"uniqueIndex:idx_transfer_pair,priority:1;not null" json:"inflow_transaction_id"`
	InflowTransaction    *Transaction   `gorm:"foreignKey:InflowTransactionId" json:"inflow_transaction,omitempty"`
	OutflowTransactionId int            `gorm:"uniqueIndex:idx_transfer_pair,priority:2;index;not null" json:"outflow_transaction_id"`
	OutflowTransaction   *Transaction   `gorm:"foreignKey:OutflowTransactionId" json:"outflow_transaction,omitempty"`
	Status               TransferStatus `gorm:"size:20;not null;default:'pending'" json:"status"`
	Notes                string         `gorm:"type:text" json:"notes"`
	CreatedAt            time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
