package ledger

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireAccountSyncLock serializes balance rebuilds per account across instances using MySQL advisory locks.
// GET_LOCK is connection-scoped, so call it on the same *gorm.DB that runs the rebuild transaction.
func AcquireAccountSyncLock(tx *gorm.DB, accountId int) error {
	lockName := accountLockName(accountId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire sync lock for account_id=%d", accountId)
	}
	return nil
}

func ReleaseAccountSyncLock(tx *gorm.DB, accountId int) {
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", accountLockName(accountId)).Scan(&_ok).Error
}

func accountLockName(accountId int) string {
	return fmt.Sprintf("balances:%d", accountId)
}
