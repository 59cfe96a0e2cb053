package cli

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/simaogato/dipledger-backend/internal/usecase/calendar"
)

type holidaysCmd struct {
	year int
}

func (*holidaysCmd) Name() string     { return "holidays" }
func (*holidaysCmd) Synopsis() string { return "list the market holidays of a year" }
func (*holidaysCmd) Usage() string {
	return `dipledger holidays [-year <yyyy>]

  Prints the nine fixed market holidays with their observed dates. Saturday
  holidays are observed on Friday and Sunday holidays on Monday.
`
}

func (c *holidaysCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.year, "year", 0, "Calendar year (defaults to the current business-timezone year).")
}

func (c *holidaysCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	year := c.year
	if year == 0 {
		year = time.Now().In(calendar.BusinessTimezone).Year()
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OBSERVED\tACTUAL\tHOLIDAY")
	for _, h := range calendar.Holidays(year) {
		fmt.Fprintf(w, "%s\t%s\t%s\n", h.Observed.Format(calendar.DateFormat), h.Actual.Format(calendar.DateFormat), h.Name)
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type marketStatusCmd struct {
	at string
}

func (*marketStatusCmd) Name() string     { return "market-status" }
func (*marketStatusCmd) Synopsis() string { return "show whether the market is open and a fresh close is available" }
func (*marketStatusCmd) Usage() string {
	return `dipledger market-status [-at <RFC3339 time>]
`
}

func (c *marketStatusCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.at, "at", "", "Instant to evaluate (defaults to now).")
}

func (c *marketStatusCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	cal, err := loadCalendar(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}

	now := time.Now()
	if c.at != "" {
		if now, err = time.Parse(time.RFC3339, c.at); err != nil {
			fmt.Fprintf(stderr, "Error parsing -at: %v\n", err)
			return subcommands.ExitUsageError
		}
	}

	st := cal.Status(now)
	fmt.Fprintf(stdout, "date:          %s\n", st.Date)
	fmt.Fprintf(stdout, "open:          %t (%s)\n", st.Open, st.Reason)
	if st.Holiday != "" {
		fmt.Fprintf(stdout, "holiday:       %s\n", st.Holiday)
	}
	fmt.Fprintf(stdout, "fresh close:   %t\n", st.FreshCloseAvailable)
	return subcommands.ExitSuccess
}
