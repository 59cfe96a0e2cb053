// Package valuation decides when cached prices may be reused and values the
// open holdings of a user against them.
package valuation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/simaogato/dipledger-backend/internal/domain"
	"github.com/simaogato/dipledger-backend/internal/usecase/calendar"
)

// SnapshotKey is the local store key holding the active snapshot
const SnapshotKey = "valuation_snapshot"

// SnapshotCache keeps one date-keyed price snapshot in a local KeyValueStore.
// The clock and the "today" key function are injectable so day boundaries can
// be simulated.
type SnapshotCache struct {
	store    domain.KeyValueStore
	key      string
	Now      func() time.Time
	TodayKey func(time.Time) string
}

// NewSnapshotCache creates a cache whose day key is the business-timezone date
func NewSnapshotCache(store domain.KeyValueStore, cal *calendar.Calendar) *SnapshotCache {
	return &SnapshotCache{
		store:    store,
		key:      SnapshotKey,
		Now:      time.Now,
		TodayKey: cal.Today,
	}
}

// Today returns the current day key
func (c *SnapshotCache) Today() string {
	return c.TodayKey(c.Now())
}

// Load returns the stored snapshot, or nil when none exists
func (c *SnapshotCache) Load(ctx context.Context) (*domain.ValuationSnapshot, error) {
	raw, err := c.store.Get(ctx, c.key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read valuation snapshot: %w", err)
	}

	var snapshot domain.ValuationSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode valuation snapshot: %w", err)
	}
	return &snapshot, nil
}

// Save replaces the stored snapshot with prices stamped for today.
// requested is the set of symbols the prices were asked for.
func (c *SnapshotCache) Save(ctx context.Context, prices domain.PriceMap, requested []string) (*domain.ValuationSnapshot, error) {
	now := c.Now()
	snapshot := &domain.ValuationSnapshot{
		Date:          c.TodayKey(now),
		LastUpdatedAt: now.UTC(),
		Prices:        prices,
		Requested:     sortedUnique(requested),
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode valuation snapshot: %w", err)
	}
	if err := c.store.Set(ctx, c.key, string(raw)); err != nil {
		return snapshot, fmt.Errorf("failed to write valuation snapshot: %w", err)
	}
	return snapshot, nil
}

// IsCurrent reports whether snapshot was taken today
func (c *SnapshotCache) IsCurrent(snapshot *domain.ValuationSnapshot) bool {
	return snapshot != nil && snapshot.Date == c.Today()
}

// Missing returns the symbols snapshot was never asked for, in input order.
// A symbol the feed did not know on the day it was requested is not missing.
func (c *SnapshotCache) Missing(snapshot *domain.ValuationSnapshot, symbols []string) []string {
	if snapshot == nil {
		return symbols
	}
	known := make(map[string]bool, len(snapshot.Requested)+len(snapshot.Prices))
	for _, sym := range snapshot.Requested {
		known[sym] = true
	}
	for sym := range snapshot.Prices {
		known[sym] = true
	}

	var missing []string
	for _, sym := range symbols {
		if !known[sym] {
			missing = append(missing, sym)
		}
	}
	return missing
}

func sortedUnique(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	out := append([]string(nil), symbols...)
	slices.Sort(out)
	return slices.Compact(out)
}
