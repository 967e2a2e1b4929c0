package config

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)
var ctx = context.Background()

func GetRedisDB() *redis.Client {
	return rdb
}

// ConnectRedisWithRetry connects and sets the global Redis client + lock client.
// Call this from main() AFTER the HTTP server is listening.
func ConnectRedisWithRetry() {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
		log.Printf("REDIS_ADDRESS not set; defaulting to %s", redisAddr)
	}

	var attempt int
	for {
		attempt++
		rdb = redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       intFromEnv("REDIS_DB", 0),
			PoolSize: 100,
		})
		err := rdb.Ping(ctx).Err()
		if err == nil {
			locker = redislock.New(rdb)
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, redisAddr)
			return
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, redisAddr, err, sleep)
		time.Sleep(sleep)
	}
}

// TryLock obtains a redis lock if redis is up. It never fails: when the lock is unavailable
// the caller proceeds unlocked and the returned release is a no-op.
func TryLock(c context.Context, logger *logrus.Logger, key string, ttl time.Duration) (release func()) {
	noop := func() {}
	if locker == nil {
		if logger != nil {
			logger.WithField("lock_key", key).Warn("redis lock not ready; proceeding without redis lock")
		}
		return noop
	}
	lock, err := locker.Obtain(c, key, ttl, nil)
	if err != nil {
		if logger != nil {
			msg := "could not obtain redis lock; proceeding without redis lock"
			if !errors.Is(err, redislock.ErrNotObtained) {
				msg = "error obtaining redis lock; proceeding without redis lock: " + err.Error()
			}
			logger.WithField("lock_key", key).Warn(msg)
		}
		return noop
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) && logger != nil {
			logger.WithField("lock_key", key).Warn("failed to release redis lock: " + err.Error())
		}
	}
}
