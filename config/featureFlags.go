package config

import (
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SyncAsyncOnWrite makes the write path enqueue a sync job instead of recalculating inline.
//
// Set via env:
// - SYNC_ASYNC_ON_WRITE=true
func SyncAsyncOnWrite() bool {
	return boolFromEnv("SYNC_ASYNC_ON_WRITE", false)
}

// SyncMaxAttempts bounds retries of a queued sync job (default 3).
func SyncMaxAttempts() int {
	n := intFromEnv("SYNC_MAX_ATTEMPTS", 3)
	if n <= 0 {
		return 3
	}
	return n
}

// SyncRetryDelay is the fixed delay between attempts of a queued sync job (default 5m).
func SyncRetryDelay() time.Duration {
	return time.Duration(intFromEnv("SYNC_RETRY_DELAY_SECONDS", 300)) * time.Second
}

func SyncBatchSize() int {
	return intFromEnv("SYNC_BATCH_SIZE", 20)
}

func SyncPollInterval() time.Duration {
	return time.Duration(intFromEnv("SYNC_POLL_INTERVAL_MS", 2000)) * time.Millisecond
}

// SyncDirectProcessing runs the DB-polling sync job processor in this process.
// Defaults to true so queued jobs still drain when Pub/Sub delivery is misconfigured.
func SyncDirectProcessing() bool {
	return boolFromEnv("SYNC_DIRECT_PROCESSING", true)
}

// TransferMatchWindowDays is the +/- day window used when pairing transfers (default 4).
func TransferMatchWindowDays() int {
	n := intFromEnv("TRANSFER_MATCH_WINDOW_DAYS", 4)
	if n < 0 {
		return 4
	}
	return n
}

// TransferFxTolerance is the accepted relative deviation for cross-currency pairs (default 0.05).
func TransferFxTolerance() decimal.Decimal {
	v := strings.TrimSpace(os.Getenv("TRANSFER_FX_TOLERANCE"))
	if v == "" {
		return decimal.NewFromFloat(0.05)
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return decimal.NewFromFloat(0.05)
	}
	return d
}

func NetWorthCacheTTL() time.Duration {
	return time.Duration(intFromEnv("NET_WORTH_CACHE_TTL_SECONDS", 3600)) * time.Second
}

// DefaultCurrency is used for accounts and import rows without a currency (default BRL).
func DefaultCurrency() string {
	v := strings.ToUpper(strings.TrimSpace(os.Getenv("DEFAULT_CURRENCY")))
	if v == "" {
		return "BRL"
	}
	return v
}
