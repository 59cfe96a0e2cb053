package cli

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/simaogato/dipledger-backend/internal/adapter/localstore"
	"github.com/simaogato/dipledger-backend/internal/adapter/pricefeed"
	"github.com/simaogato/dipledger-backend/internal/domain"
	"github.com/simaogato/dipledger-backend/internal/usecase/ledger"
	"github.com/simaogato/dipledger-backend/internal/usecase/settlement"
	"github.com/simaogato/dipledger-backend/internal/usecase/valuation"
)

type holdingsCmd struct {
	file    string
	offline bool
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "aggregate and value the open holdings of exported portfolios" }
func (*holdingsCmd) Usage() string {
	return `dipledger holdings -f <portfolios.json> [-offline]

  Sums the holdings of every open portfolio in the file and values them with
  today's price snapshot. The snapshot is cached in the local store so the
  price feed is hit at most once per business day.
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "f", "portfolios.json", "Exported portfolios (object or array, either key spelling).")
	f.BoolVar(&c.offline, "offline", false, "Skip valuation and only print quantities.")
}

func (c *holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	portfolios, err := readPortfolios(c.file)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}

	holdings, err := ledger.AggregateAcross(portfolios)
	if err != nil {
		fmt.Fprintf(stderr, "warning: %v\n", err)
	}

	var v domain.Valuation
	var prices domain.PriceMap
	if !c.offline {
		cfg, logger, err := loadConfig()
		if err != nil {
			fmt.Fprintln(stderr, err)
			return subcommands.ExitFailure
		}
		cal, err := loadCalendar(cfg)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return subcommands.ExitFailure
		}
		store, err := localstore.Open(cfg.Cache.Path, logger)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return subcommands.ExitFailure
		}
		defer store.Close()

		feed := pricefeed.NewClient(cfg.PriceFeed.BaseURL,
			pricefeed.WithAPIKey(cfg.PriceFeed.APIKey),
			pricefeed.WithRateLimit(cfg.PriceFeed.RateLimit),
			pricefeed.WithTimeout(cfg.PriceFeed.GetTimeout()),
			pricefeed.WithLogger(logger),
		)
		service := valuation.NewValuationService(feed, valuation.NewSnapshotCache(store, cal), cal, logger)
		service.FetchTimeout = cfg.PriceFeed.GetTimeout()

		v = service.Refresh(ctx, portfolios)
		prices = service.Prices(ctx, holdings.Symbols())
	}

	symbols := make([]string, 0, len(holdings))
	for symbol := range holdings {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SYMBOL\tQUANTITY\tPRICE\tVALUE\t")
	for _, symbol := range symbols {
		qty := holdings[symbol]
		price, value := "-", "-"
		if q, ok := prices[symbol]; ok {
			price = formatMoney(q.Current, Currency)
			value = formatMoney(q.Current.Mul(qty), Currency)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", symbol, qty.String(), price, value)
	}
	w.Flush()

	if !c.offline {
		stale := ""
		if v.Stale {
			stale = " (stale)"
		}
		fmt.Fprintf(stdout, "\nTotal %s, %s today (%s)%s, snapshot %s\n",
			formatMoney(v.Current, Currency), formatMoney(v.Delta, Currency), formatPct(v.ChangePct), stale, v.SnapshotDate)
	}
	return subcommands.ExitSuccess
}

type settlePreviewCmd struct {
	file          string
	id            string
	entries       string
	additionalFee string
}

func (*settlePreviewCmd) Name() string     { return "settle-preview" }
func (*settlePreviewCmd) Synopsis() string { return "compute a settlement without writing anything" }
func (*settlePreviewCmd) Usage() string {
	return `dipledger settle-preview -f <portfolio.json> [-id <portfolio id>] -e <SYMBOL:QTY:PRICE[:FEE],...> [-fee <additional fee>]

  Runs the settlement computation against an exported portfolio and prints the
  figures the final sale would record. When -e is omitted the draft rows (full
  quantity, zero price) are printed instead.
`
}

func (c *settlePreviewCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "f", "portfolio.json", "Exported portfolio (object or array).")
	f.StringVar(&c.id, "id", "", "Portfolio id when the file holds several.")
	f.StringVar(&c.entries, "e", "", "Final sale entries.")
	f.StringVar(&c.additionalFee, "fee", "0", "Portfolio-level additional fee.")
}

func (c *settlePreviewCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	portfolios, err := readPortfolios(c.file)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	p, err := pick(portfolios, c.id)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitUsageError
	}

	if c.entries == "" {
		drafts, err := settlement.DraftEntries(p, nil)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return subcommands.ExitFailure
		}
		for _, d := range drafts {
			fmt.Fprintf(stdout, "%s:%s:%s:%s\n", d.Instrument, d.Quantity, d.Price, d.Fee)
		}
		return subcommands.ExitSuccess
	}

	entries, err := parseEntries(c.entries)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitUsageError
	}
	fee, err := decimal.NewFromString(c.additionalFee)
	if err != nil {
		fmt.Fprintf(stderr, "Error parsing -fee: %v\n", err)
		return subcommands.ExitUsageError
	}

	result, _, err := settlement.Compute(p, domain.SettlementInput{Entries: entries, AdditionalFee: fee}, time.Now())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}

	fmt.Fprintf(stdout, "Portfolio:          %s\n", p.Name)
	fmt.Fprintf(stdout, "Total invested:     %s\n", formatMoney(result.TotalInvested, Currency))
	fmt.Fprintf(stdout, "Already realized:   %s\n", formatMoney(result.AlreadyRealized, Currency))
	fmt.Fprintf(stdout, "Final sale (net):   %s\n", formatMoney(result.FinalSellAmountNet, Currency))
	fmt.Fprintf(stdout, "Final sale (gross): %s\n", formatMoney(result.FinalSellAmountGross, Currency))
	fmt.Fprintf(stdout, "Total return:       %s\n", formatMoney(result.TotalReturn, Currency))
	fmt.Fprintf(stdout, "Profit:             %s\n", formatMoney(result.Profit, Currency))
	fmt.Fprintf(stdout, "Yield:              %s\n", formatPct(result.YieldRate))
	return subcommands.ExitSuccess
}

func pick(portfolios []*domain.Portfolio, id string) (*domain.Portfolio, error) {
	if id == "" {
		if len(portfolios) != 1 {
			return nil, fmt.Errorf("file holds %d portfolios, pass -id", len(portfolios))
		}
		return portfolios[0], nil
	}
	for _, p := range portfolios {
		if p.ID.String() == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("portfolio %s not in file", id)
}
