package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/ledger"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/reports"
	"github.com/mmdatafocus/ledger_backend/rules"
	"github.com/mmdatafocus/ledger_backend/transfers"
	"github.com/mmdatafocus/ledger_backend/utils"
	"github.com/mmdatafocus/ledger_backend/workflow"
	"gorm.io/gorm"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&migrateCmd{}, "schema")
	commander.Register(&syncCmd{}, "balances")
	commander.Register(&syncAllCmd{}, "balances")
	commander.Register(&exportCmd{}, "balances")
	commander.Register(&matchCmd{}, "transactions")
	commander.Register(&applyRulesCmd{}, "transactions")

	flag.Parse()
	ctx := utils.SystemContext(context.Background(), "ledgerctl")
	os.Exit(int(commander.Execute(ctx)))
}

// connect opens the database; config no longer connects in init().
func connect() (*gorm.DB, bool) {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		return nil, false
	}
	return db, true
}

// newSyncer wires the syncer like the server does. The net-worth cache is only
// invalidated when REDIS_ADDRESS is set.
func newSyncer(db *gorm.DB) *ledger.AccountSyncer {
	logger := config.GetLogger()
	syncer := ledger.NewAccountSyncer(db, logger)
	syncer.Enqueuer = workflow.NewSyncJobQueue(db, logger)
	if os.Getenv("REDIS_ADDRESS") != "" {
		config.ConnectRedisWithRetry()
		syncer.Cache = reports.NewNetWorthService(db, config.GetRedisDB(), logger)
	}
	return syncer
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// --- migrateCmd ---

type migrateCmd struct{}

func (*migrateCmd) Name() string             { return "migrate" }
func (*migrateCmd) Synopsis() string         { return "creates or updates the ledger tables" }
func (*migrateCmd) Usage() string            { return "migrate\n" }
func (*migrateCmd) SetFlags(_ *flag.FlagSet) {}

func (*migrateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if _, ok := connect(); !ok {
		return subcommands.ExitFailure
	}
	models.MigrateTable()
	fmt.Println("migrated")
	return subcommands.ExitSuccess
}

// --- syncCmd ---

type syncCmd struct {
	accountId int
	strategy  string
	later     bool
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "rebuilds the balance history of one account" }
func (*syncCmd) Usage() string {
	return `sync -account <id> [-strategy forward] [-later]

Recalculates every daily balance of the account. With -later a sync job is queued instead.
`
}
func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.accountId, "account", 0, "Account id to sync.")
	f.StringVar(&c.strategy, "strategy", string(ledger.StrategyForward), "Calculation strategy.")
	f.BoolVar(&c.later, "later", false, "Queue a sync job instead of syncing now.")
}

func (c *syncCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.accountId <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -account is required.")
		return subcommands.ExitUsageError
	}
	strategy, err := ledger.ParseStrategy(c.strategy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	db, ok := connect()
	if !ok {
		return subcommands.ExitFailure
	}
	syncer := newSyncer(db)
	if c.later {
		err = syncer.SyncLater(ctx, c.accountId, strategy)
	} else {
		err = syncer.Sync(ctx, c.accountId, strategy)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "account %d: sync failed: %v\n", c.accountId, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("account %d synced (strategy=%s later=%t)\n", c.accountId, strategy, c.later)
	return subcommands.ExitSuccess
}

// --- syncAllCmd ---

type syncAllCmd struct {
	userId int
}

func (*syncAllCmd) Name() string     { return "sync-all" }
func (*syncAllCmd) Synopsis() string { return "rebuilds every active account of a user" }
func (*syncAllCmd) Usage() string    { return "sync-all -user <id>\n" }
func (c *syncAllCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.userId, "user", 0, "User id whose accounts are synced.")
}

func (c *syncAllCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.userId <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -user is required.")
		return subcommands.ExitUsageError
	}
	db, ok := connect()
	if !ok {
		return subcommands.ExitFailure
	}
	res, err := newSyncer(db).SyncAll(ctx, c.userId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "user %d: %v\n", c.userId, err)
		return subcommands.ExitFailure
	}
	printJSON(res)
	if res.Failed > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// --- matchCmd ---

type matchCmd struct {
	userId  int
	preview bool
}

func (*matchCmd) Name() string     { return "match-transfers" }
func (*matchCmd) Synopsis() string { return "links a user's own inflows and outflows as transfers" }
func (*matchCmd) Usage() string    { return "match-transfers -user <id> [-preview]\n" }
func (c *matchCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.userId, "user", 0, "User id to match.")
	f.BoolVar(&c.preview, "preview", false, "List proposed pairs without creating transfers.")
}

func (c *matchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.userId <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -user is required.")
		return subcommands.ExitUsageError
	}
	db, ok := connect()
	if !ok {
		return subcommands.ExitFailure
	}
	matcher := transfers.NewMatcher(db, config.GetLogger())
	var (
		res *transfers.MatchResult
		err error
	)
	if c.preview {
		res, err = matcher.Preview(ctx, c.userId)
	} else {
		matcher.Invalidator = ledger.NewInvalidator(newSyncer(db), config.GetLogger())
		res, err = matcher.AutoMatchTransfers(ctx, c.userId)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "user %d: match failed: %v\n", c.userId, err)
		return subcommands.ExitFailure
	}
	for _, p := range res.Pairs {
		fmt.Printf("  inflow=%d outflow=%d\n", p.Inflow.TransactionId, p.Outflow.TransactionId)
	}
	printJSON(res)
	return subcommands.ExitSuccess
}

// --- applyRulesCmd ---

type applyRulesCmd struct {
	userId      int
	ruleId      int
	ignoreLocks bool
}

func (*applyRulesCmd) Name() string     { return "apply-rules" }
func (*applyRulesCmd) Synopsis() string { return "applies one rule or every active rule of a user" }
func (*applyRulesCmd) Usage() string {
	return "apply-rules (-rule <id> | -user <id>) [-ignore-locks]\n"
}
func (c *applyRulesCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.userId, "user", 0, "Apply every active rule of this user.")
	f.IntVar(&c.ruleId, "rule", 0, "Apply only this rule.")
	f.BoolVar(&c.ignoreLocks, "ignore-locks", false, "Overwrite attributes already set on transactions.")
}

func (c *applyRulesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if (c.userId <= 0) == (c.ruleId <= 0) {
		fmt.Fprintln(os.Stderr, "Error: exactly one of -user or -rule is required.")
		return subcommands.ExitUsageError
	}
	db, ok := connect()
	if !ok {
		return subcommands.ExitFailure
	}
	engine := rules.NewEngine(db, ledger.NewInvalidator(newSyncer(db), config.GetLogger()), config.GetLogger())
	if c.ruleId > 0 {
		res, err := engine.ApplyById(ctx, c.ruleId, c.ignoreLocks)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rule %d: %v\n", c.ruleId, err)
			return subcommands.ExitFailure
		}
		printJSON(res)
		return subcommands.ExitSuccess
	}
	results, failures, err := engine.ApplyAll(ctx, c.userId, c.ignoreLocks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "user %d: %v\n", c.userId, err)
		return subcommands.ExitFailure
	}
	printJSON(map[string]any{"results": results, "errors": failures})
	if len(failures) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// --- exportCmd ---

type exportCmd struct {
	accountId int
	out       string
}

func (*exportCmd) Name() string     { return "export-balances" }
func (*exportCmd) Synopsis() string { return "writes an account's balance history to an xlsx file" }
func (*exportCmd) Usage() string    { return "export-balances -account <id> -out <file.xlsx>\n" }
func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.accountId, "account", 0, "Account id to export.")
	f.StringVar(&c.out, "out", "", "Destination xlsx path.")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.accountId <= 0 || c.out == "" {
		fmt.Fprintln(os.Stderr, "Error: -account and -out are required.")
		return subcommands.ExitUsageError
	}
	db, ok := connect()
	if !ok {
		return subcommands.ExitFailure
	}
	f, err := os.Create(c.out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", c.out, err)
		return subcommands.ExitFailure
	}
	defer f.Close()
	n, err := reports.ExportBalances(ctx, db, c.accountId, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "account %d: export failed: %v\n", c.accountId, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("wrote %d balances to %s\n", n, c.out)
	return subcommands.ExitSuccess
}
