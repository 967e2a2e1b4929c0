package main

import (
	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/entries"
	"github.com/mmdatafocus/ledger_backend/importer"
	"github.com/mmdatafocus/ledger_backend/installments"
	"github.com/mmdatafocus/ledger_backend/ledger"
	"github.com/mmdatafocus/ledger_backend/reports"
	"github.com/mmdatafocus/ledger_backend/rules"
	"github.com/mmdatafocus/ledger_backend/transfers"
	"github.com/mmdatafocus/ledger_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// services holds the process-wide engine components, wired once after the DB is up.
type services struct {
	Logger       *logrus.Logger
	DB           *gorm.DB
	Syncer       *ledger.AccountSyncer
	Invalidator  *ledger.Invalidator
	Queue        *workflow.SyncJobQueue
	Processor    *workflow.SyncJobProcessor
	Entries      *entries.Service
	Importer     *importer.Importer
	Installments *installments.Generator
	Matcher      *transfers.Matcher
	Rules        *rules.Engine
	NetWorth     *reports.NetWorthService
}

func newServices(db *gorm.DB, logger *logrus.Logger) *services {
	s := &services{Logger: logger, DB: db}

	s.Syncer = ledger.NewAccountSyncer(db, logger)
	s.Queue = workflow.NewSyncJobQueue(db, logger)
	s.Syncer.Enqueuer = s.Queue
	s.NetWorth = reports.NewNetWorthService(db, config.GetRedisDB(), logger)
	s.Syncer.Cache = s.NetWorth
	s.Processor = workflow.NewSyncJobProcessor(db, s.Syncer, logger)

	s.Invalidator = ledger.NewInvalidator(s.Syncer, logger)
	s.Entries = entries.NewService(db, s.Invalidator, logger)
	s.Importer = importer.NewImporter(db, s.Entries, s.Invalidator, logger)
	s.Installments = installments.NewGenerator(db, s.Invalidator, logger)
	s.Matcher = transfers.NewMatcher(db, logger)
	s.Matcher.Invalidator = s.Invalidator
	s.Rules = rules.NewEngine(db, s.Invalidator, logger)
	return s
}
