package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/google/subcommands"

	"github.com/simaogato/tradeflow-backend/internal/adapter/kafka"
	"github.com/simaogato/tradeflow-backend/internal/adapter/repository/sqlstore"
	"github.com/simaogato/tradeflow-backend/internal/domain"
)

// Commands lists every tradectl subcommand
var Commands = []subcommands.Command{
	&migrateCmd{},
	&pendingCmd{},
	&eventsCmd{},
}

// environment supplies flag defaults so tradectl works with the server's env file
type environment struct {
	DatabaseDriver string   `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string   `env:"DATABASE_URL"`
	KafkaBrokers   []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic     string   `env:"KAFKA_TOPIC" envDefault:"trade-events"`
}

func loadEnvironment() environment {
	var e environment
	if err := env.Parse(&e); err != nil {
		fmt.Fprintf(os.Stderr, "ignoring environment: %v\n", err)
	}
	return e
}

// dbFlags are shared by the commands that open the database
type dbFlags struct {
	driver string
	dsn    string
}

func (d *dbFlags) register(f *flag.FlagSet) {
	e := loadEnvironment()
	f.StringVar(&d.driver, "driver", e.DatabaseDriver, "Database driver (postgres, sqlite). Defaults to $DATABASE_DRIVER.")
	f.StringVar(&d.dsn, "dsn", e.DatabaseURL, "Database connection string. Defaults to $DATABASE_URL.")
}

func (d *dbFlags) open() (*sqlstore.DB, error) {
	if d.dsn == "" {
		return nil, errors.New("no database: set -dsn or DATABASE_URL")
	}
	dialect, err := sqlstore.ParseDialect(d.driver)
	if err != nil {
		return nil, err
	}
	return sqlstore.NewDB(dialect, d.dsn)
}

type migrateCmd struct {
	db dbFlags
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply pending schema migrations" }
func (*migrateCmd) Usage() string {
	return `tradectl migrate [-driver <driver>] [-dsn <dsn>]

  Applies every embedded migration not yet recorded in the database and
  prints the resulting schema version.
`
}

func (c *migrateCmd) SetFlags(f *flag.FlagSet) {
	c.db.register(f)
}

func (c *migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	db, err := c.db.open()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer db.Close()

	if err := runMigrate(ctx, db, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func runMigrate(ctx context.Context, db *sqlstore.DB, w io.Writer) error {
	applied, err := sqlstore.Migrate(ctx, db)
	if err != nil {
		return err
	}
	version, err := sqlstore.SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	if len(applied) == 0 {
		fmt.Fprintf(w, "schema up to date at version %d\n", version)
		return nil
	}
	fmt.Fprintf(w, "applied %d migration(s), schema at version %d\n", len(applied), version)
	return nil
}

type pendingCmd struct {
	db        dbFlags
	olderThan time.Duration
}

func (*pendingCmd) Name() string     { return "pending" }
func (*pendingCmd) Synopsis() string { return "list orders awaiting ledger reconciliation" }
func (*pendingCmd) Usage() string {
	return `tradectl pending [-older-than <duration>] [-driver <driver>] [-dsn <dsn>]

  Lists orders still PENDING after the given age. Such an order reached the
  venue (or was about to) but its ledger update never completed, so its
  venue state must be checked and the ledger corrected by hand.
`
}

func (c *pendingCmd) SetFlags(f *flag.FlagSet) {
	c.db.register(f)
	f.DurationVar(&c.olderThan, "older-than", 5*time.Minute, "Only list orders created before this age.")
}

func (c *pendingCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	db, err := c.db.open()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer db.Close()

	n, err := runPending(ctx, sqlstore.NewLedgerRepository(db), time.Now().Add(-c.olderThan), os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if n > 0 {
		// Non-zero so cron jobs can alert on it
		return subcommands.ExitStatus(3)
	}
	return subcommands.ExitSuccess
}

func runPending(ctx context.Context, ledger domain.LedgerStore, olderThan time.Time, w io.Writer) (int, error) {
	orders, err := ledger.ListPendingOrders(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if len(orders) == 0 {
		fmt.Fprintln(w, "no pending orders")
		return 0, nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tUSER\tSYMBOL\tSIDE\tQUANTITY\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ID, o.UserID, o.Symbol, o.Side, o.Quantity, o.CreatedAt.UTC().Format(time.RFC3339))
	}
	return len(orders), tw.Flush()
}

type eventsCmd struct {
	brokers string
	topic   string
	group   string
	limit   int
}

func (*eventsCmd) Name() string     { return "events" }
func (*eventsCmd) Synopsis() string { return "tail trade events from Kafka" }
func (*eventsCmd) Usage() string {
	return `tradectl events [-brokers <host:port,...>] [-topic <topic>] [-group <id>] [-n <count>]

  Prints trade events as JSON lines until interrupted or until -n events
  were read.
`
}

func (c *eventsCmd) SetFlags(f *flag.FlagSet) {
	e := loadEnvironment()
	f.StringVar(&c.brokers, "brokers", strings.Join(e.KafkaBrokers, ","), "Comma separated Kafka brokers. Defaults to $KAFKA_BROKERS.")
	f.StringVar(&c.topic, "topic", e.KafkaTopic, "Topic to read. Defaults to $KAFKA_TOPIC.")
	f.StringVar(&c.group, "group", "", "Consumer group. Without one, reading starts at the latest offset.")
	f.IntVar(&c.limit, "n", 0, "Stop after this many events (0 = unlimited).")
}

func (c *eventsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.brokers == "" {
		fmt.Fprintln(os.Stderr, "no brokers: set -brokers or KAFKA_BROKERS")
		return subcommands.ExitUsageError
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	reader := kafka.NewEventReader(strings.Split(c.brokers, ","), c.topic, c.group)
	defer reader.Close()

	if err := tailEvents(ctx, reader, c.limit, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// eventSource is satisfied by kafka.EventReader
type eventSource interface {
	Next(ctx context.Context) (domain.TradeEvent, error)
}

func tailEvents(ctx context.Context, src eventSource, limit int, w io.Writer) error {
	enc := json.NewEncoder(w)
	for n := 0; limit == 0 || n < limit; n++ {
		event, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := enc.Encode(event); err != nil {
			return err
		}
	}
	return nil
}
