package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/simaogato/dipledger-backend/internal/adapter/pricefeed"
	"github.com/simaogato/dipledger-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/dipledger-backend/internal/domain"
)

// DefaultTickers is the watch list fetched when -symbols is not given
var DefaultTickers = []string{
	"SPY", "SSO", "UPRO", "QQQ", "QLD", "TQQQ",
	"SOXX", "USD", "SOXL", "STRC", "BILL", "ICSH", "SGOV",
}

type fetchPricesCmd struct {
	symbols string
	dryRun  bool
}

func (*fetchPricesCmd) Name() string     { return "fetch-prices" }
func (*fetchPricesCmd) Synopsis() string { return "fetch quotes and store today's closes" }
func (*fetchPricesCmd) Usage() string {
	return `dipledger fetch-prices [-symbols QQQ,SPY] [-dry-run]

  Fetches quotes for the watch list and upserts one close per symbol, keyed by
  symbol and UTC trade date, into the stock_prices table. Running it twice on
  the same day overwrites the first close.
`
}

func (c *fetchPricesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbols, "symbols", strings.Join(DefaultTickers, ","), "Comma separated symbols.")
	f.BoolVar(&c.dryRun, "dry-run", false, "Print the closes without writing them.")
}

func (c *fetchPricesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	cfg, logger, err := loadConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}

	feed := pricefeed.NewClient(cfg.PriceFeed.BaseURL,
		pricefeed.WithAPIKey(cfg.PriceFeed.APIKey),
		pricefeed.WithRateLimit(cfg.PriceFeed.RateLimit),
		pricefeed.WithTimeout(cfg.PriceFeed.GetTimeout()),
		pricefeed.WithLogger(logger),
	)

	prices, err := feed.Fetch(ctx, strings.Split(c.symbols, ","))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	closes := pricefeed.Closes(prices, time.Now())
	fmt.Fprintf(stdout, "Prepared %d closes\n", len(closes))

	if c.dryRun || len(closes) == 0 {
		for _, cl := range closes {
			fmt.Fprintf(stdout, "%s\t%s\t%s\n", cl.Symbol, cl.TradeDate.Format("2006-01-02"), cl.Close)
		}
		return subcommands.ExitSuccess
	}

	db, err := postgres.NewDB(ctx, cfg.Database.ConnectionString(), postgres.PoolOptions{MaxOpenConns: 2})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	defer db.Close()

	if err := postgres.NewClosePriceRepository(db).Upsert(ctx, closes); err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	logger.Info().Int("closes", len(closes)).Msg("closes upserted")
	return subcommands.ExitSuccess
}

type backfillPricesCmd struct {
	symbols string
	days    int
	dryRun  bool
}

func (*backfillPricesCmd) Name() string     { return "backfill-prices" }
func (*backfillPricesCmd) Synopsis() string { return "load past daily closes into the close-price table" }
func (*backfillPricesCmd) Usage() string {
	return `dipledger backfill-prices [-days 240] [-symbols QQQ,SPY] [-dry-run]

  Fetches up to -days daily closes per symbol from the chart API and upserts
  them into stock_prices. Existing rows for the same symbol and trade date are
  overwritten, so the command can be re-run at any time. A symbol that fails to
  load is reported and skipped.
`
}

func (c *backfillPricesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbols, "symbols", strings.Join(DefaultTickers, ","), "Comma separated symbols.")
	f.IntVar(&c.days, "days", pricefeed.DefaultHistoryDays, "Number of days of history per symbol.")
	f.BoolVar(&c.dryRun, "dry-run", false, "Print the number of closes per symbol without writing them.")
}

func (c *backfillPricesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.days <= 0 {
		fmt.Fprintln(stderr, "-days must be positive")
		return subcommands.ExitUsageError
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}

	feed := pricefeed.NewClient(cfg.PriceFeed.BaseURL,
		pricefeed.WithAPIKey(cfg.PriceFeed.APIKey),
		pricefeed.WithRateLimit(cfg.PriceFeed.RateLimit),
		pricefeed.WithTimeout(cfg.PriceFeed.GetTimeout()),
		pricefeed.WithLogger(logger),
	)

	var closes []domain.ClosePrice
	for _, symbol := range strings.Split(c.symbols, ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		history, err := feed.History(ctx, symbol, c.days)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", symbol, err)
			continue
		}
		fmt.Fprintf(stdout, "%s\t%d closes\n", symbol, len(history))
		closes = append(closes, history...)
	}
	fmt.Fprintf(stdout, "Prepared %d closes\n", len(closes))

	if len(closes) == 0 {
		return subcommands.ExitFailure
	}
	if c.dryRun {
		return subcommands.ExitSuccess
	}

	db, err := postgres.NewDB(ctx, cfg.Database.ConnectionString(), postgres.PoolOptions{MaxOpenConns: 2})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	defer db.Close()

	if err := postgres.NewClosePriceRepository(db).Upsert(ctx, closes); err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	logger.Info().Int("closes", len(closes)).Int("days", c.days).Msg("history upserted")
	return subcommands.ExitSuccess
}
