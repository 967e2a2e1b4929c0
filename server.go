package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/middlewares"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

var errMissingJobId = errors.New("job_id required")

// PubSubMessage is the push subscription envelope.
type PubSubMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func syncPubSubHandler(svc *services) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(svc.Logger, "server.go", "syncPubSubHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}
		var msg PubSubMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			config.LogError(svc.Logger, "server.go", "syncPubSubHandler", "Unmarshal body", string(body), err)
			c.Status(http.StatusNoContent)
			return
		}
		ctx := utils.SystemContext(c.Request.Context(), msg.Message.ID)
		handleSyncRequest(ctx, svc, msg.Message.Data, msg.Message.ID)
		c.Status(http.StatusNoContent)
	}
}

// syncJobReplayHandler puts DEAD jobs back in the queue, e.g. after an outage.
func syncJobReplayHandler(svc *services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			AccountId int `json:"account_id"`
		}
		_ = c.ShouldBindJSON(&req)
		q := svc.DB.WithContext(c.Request.Context()).Model(&models.SyncJob{}).
			Where("status = ?", models.SyncJobStatusDead)
		if req.AccountId > 0 {
			q = q.Where("account_id = ?", req.AccountId)
		}
		res := q.Updates(map[string]interface{}{
			"status":          models.SyncJobStatusPending,
			"attempts":        0,
			"next_attempt_at": time.Now().UTC(),
			"last_error":      nil,
		})
		if res.Error != nil {
			respondError(c, res.Error)
			return
		}
		c.JSON(http.StatusOK, gin.H{"requeued": res.RowsAffected})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.WithFields(logrus.Fields{
				"field":  "http",
				"path":   c.FullPath(),
				"status": c.Writer.Status(),
			}).Error(c.Errors.String())
		}
	}
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		cfg.AllowOrigins = splitAndTrim(allowedOrigins)
		if cfg.AllowOrigins == nil {
			cfg.AllowOrigins = []string{}
		}
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AddAllowMethods("GET", "POST", "PATCH", "DELETE", "OPTIONS")
	cfg.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.UserHeader, middlewares.CorrelationHeader)
	cfg.AddExposeHeaders("Content-Length", "Content-Disposition", middlewares.CorrelationHeader)
	return cfg
}

func rateLimiter() *middlewares.RateLimiter {
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		return nil
	}
	limit := int64(600)
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	windowSec := int64(60)
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			windowSec = n
		}
	}
	return middlewares.NewRateLimiter(config.GetRedisDB(), limit, time.Duration(windowSec)*time.Second)
}

// registerRoutes mounts the API on r. svc is read through load so routes can be
// registered before the database is connected.
func registerRoutes(r *gin.Engine, load func() *services) {
	with := func(h func(*services, *gin.Context)) gin.HandlerFunc {
		return func(c *gin.Context) { h(load(), c) }
	}

	r.POST("/pubsub/sync", func(c *gin.Context) { syncPubSubHandler(load())(c) })
	r.POST("/internal/ops/sync-jobs/replay", func(c *gin.Context) { syncJobReplayHandler(load())(c) })

	api := r.Group("/", middlewares.RequireUser())
	api.POST("/accounts/:id/sync", with((*services).syncAccountHandler))
	api.GET("/accounts/:id/balances/export", with((*services).exportBalancesHandler))
	api.POST("/users/:id/sync", with((*services).syncAllHandler))
	api.POST("/users/:id/transfers/match", with((*services).matchTransfersHandler))
	api.GET("/users/:id/rules/metadata", with((*services).rulesMetadataHandler))
	api.POST("/users/:id/rules/presets", with((*services).presetRulesHandler))
	api.GET("/users/:id/net-worth", with((*services).netWorthHandler))
	api.POST("/rules", with((*services).createRuleHandler))
	api.POST("/rules/:id/apply", with((*services).applyRuleHandler))
	api.POST("/transactions", with((*services).createTransactionHandler))
	api.PATCH("/transactions/:id", with((*services).updateTransactionHandler))
	api.DELETE("/transactions/:id", with((*services).deleteTransactionHandler))
	api.POST("/transactions/:id/installments", with((*services).generateInstallmentsHandler))
	api.POST("/valuations", with((*services).upsertValuationHandler))
	api.POST("/trades", with((*services).createTradeHandler))
	api.POST("/imports", with((*services).importHandler))
}

func main() {
	port := os.Getenv("API_PORT_2")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// The listener starts before DB/Redis are ready; app routes answer 503 until then.
	var ready atomic.Pointer[services]
	var limiter atomic.Pointer[middlewares.RateLimiter]

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if ready.Load() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(cors.New(corsConfig()))
	r.Use(func(c *gin.Context) {
		// nil until redis is connected
		limiter.Load().Middleware()(c)
	})
	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	registerRoutes(r, ready.Load)
	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if rl := rateLimiter(); rl != nil {
		limiter.Store(rl)
	}

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	svc := newServices(db, logger)
	ready.Store(svc)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	if config.SyncDirectProcessing() {
		go svc.Processor.Run(workerCtx)
	}
	if config.PubSubConfigured() && os.Getenv("PUBSUB_SYNC_SUBSCRIPTION") != "" {
		if err := RunSyncSubscription(workerCtx, svc); err != nil {
			config.LogError(logger, "server.go", "main", "RunSyncSubscription", nil, err)
		}
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("ledger service listening on :", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
