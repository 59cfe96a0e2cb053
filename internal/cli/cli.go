// Package cli implements the dipledger operator commands
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/simaogato/dipledger-backend/internal/adapter/repository/rowmap"
	"github.com/simaogato/dipledger-backend/internal/common"
	"github.com/simaogato/dipledger-backend/internal/domain"
	"github.com/simaogato/dipledger-backend/internal/usecase/calendar"
)

// Commands lists every subcommand in display order
var Commands = []subcommands.Command{
	&holidaysCmd{},
	&marketStatusCmd{},
	&holdingsCmd{},
	&settlePreviewCmd{},
	&fetchPricesCmd{},
	&backfillPricesCmd{},
	&remoteCmd{},
}

var (
	// ConfigPath is the TOML file shared by every command
	ConfigPath string

	// Currency formats amounts in command output
	Currency = money.USD

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func loadConfig() (*common.Config, *common.Logger, error) {
	cfg, err := common.LoadConfig(ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, common.NewLogger(cfg.Logging.Level), nil
}

func loadCalendar(cfg *common.Config) (*calendar.Calendar, error) {
	cutoff, err := calendar.ParseCutoff(cfg.Market.CloseCutoff)
	if err != nil {
		return nil, err
	}
	return calendar.New(calendar.BusinessTimezone, cutoff), nil
}

// formatMoney renders amount in the currency's minor units, rounding half away from zero
func formatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	factor := decimal.New(1, int32(cur.Fraction))
	minor := amount.Mul(factor).Round(0)
	return money.New(minor.IntPart(), currency).Display()
}

func formatPct(pct decimal.Decimal) string {
	return pct.StringFixed(2) + "%"
}

// readPortfolios decodes a JSON file holding either one portfolio object or
// an array of them. Keys may use either spelling.
func readPortfolios(path string) ([]*domain.Portfolio, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		row, err := rowmap.Parse(trimmed)
		if err != nil {
			return nil, err
		}
		p, err := rowmap.Portfolio(row)
		if err != nil {
			return nil, err
		}
		return []*domain.Portfolio{p}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	portfolios := make([]*domain.Portfolio, 0, len(items))
	for _, item := range items {
		p, err := rowmap.Portfolio(rowmap.Row(item))
		if err != nil {
			return nil, err
		}
		portfolios = append(portfolios, p)
	}
	return portfolios, nil
}

// parseEntries reads sale entries written as SYMBOL:QTY:PRICE[:FEE], comma separated
func parseEntries(s string) ([]domain.SaleEntry, error) {
	var entries []domain.SaleEntry
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) < 3 || len(fields) > 4 {
			return nil, fmt.Errorf("%w: entry %q must be SYMBOL:QTY:PRICE[:FEE]", domain.ErrInvalidInput, part)
		}

		entry := domain.SaleEntry{Instrument: strings.ToUpper(fields[0])}
		values := []*decimal.Decimal{&entry.Quantity, &entry.Price, &entry.Fee}
		for i, raw := range fields[1:] {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: entry %q: %v", domain.ErrInvalidInput, part, err)
			}
			*values[i] = d
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
