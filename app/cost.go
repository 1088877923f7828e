package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/pulse/domain/cost"
	"github.com/artpar/pulse/ports"
)

// Cost errors.
var (
	ErrInvalidScope = errors.New("invalid cost scope")
	ErrMissingUser  = errors.New("user id required")
)

// CostBucketTTL keeps daily cost buckets for roughly three months.
const CostBucketTTL = 90 * 24 * time.Hour

// MaxCostDays bounds summary periods.
const MaxCostDays = 90

// CostMonitor tracks LLM spend as integer cents in daily cache hashes.
type CostMonitor struct {
	cache  ports.Cache
	clock  ports.Clock
	logger zerolog.Logger
	prices atomic.Pointer[cost.PriceTable]
}

// NewCostMonitor creates a cost monitor.
func NewCostMonitor(cache ports.Cache, clock ports.Clock, logger zerolog.Logger, prices cost.PriceTable) *CostMonitor {
	m := &CostMonitor{
		cache:  cache,
		clock:  clock,
		logger: logger.With().Str("service", "cost").Logger(),
	}
	m.SetPrices(prices)
	return m
}

// SetPrices replaces the price table.
func (m *CostMonitor) SetPrices(t cost.PriceTable) {
	m.prices.Store(&t)
}

// TrackCost prices one call and adds it to the user, project (when given)
// and global buckets of the current day.
func (m *CostMonitor) TrackCost(ctx context.Context, userID, projectID, model string, inputTokens, outputTokens int64) (cost.Breakdown, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return cost.Breakdown{}, ErrMissingUser
	}
	b, err := cost.Calculate(*m.prices.Load(), model, inputTokens, outputTokens)
	if err != nil {
		return cost.Breakdown{}, err
	}

	day := m.clock.Now()
	inc := cost.Increments(b)

	keys := []string{cost.BucketKey(cost.ScopeUser, userID, day)}
	if projectID != "" {
		keys = append(keys, cost.BucketKey(cost.ScopeProject, projectID, day))
	}
	keys = append(keys, cost.BucketKey(cost.ScopeGlobal, cost.GlobalID, day))

	for _, k := range keys {
		if err := m.cache.HIncrBy(ctx, k, inc, CostBucketTTL); err != nil {
			return b, fmt.Errorf("track cost %s: %w", k, err)
		}
	}

	if !b.KnownModel {
		m.logger.Debug().Str("model", b.Model).Msg("unknown model priced at default rate")
	}
	return b, nil
}

// UserCosts summarises a user's last days.
func (m *CostMonitor) UserCosts(ctx context.Context, userID string, days int) cost.Summary {
	return m.Costs(ctx, cost.ScopeUser, userID, days)
}

// ProjectCosts summarises a project's last days.
func (m *CostMonitor) ProjectCosts(ctx context.Context, projectID string, days int) cost.Summary {
	return m.Costs(ctx, cost.ScopeProject, projectID, days)
}

// GlobalCosts summarises all spend over the last days.
func (m *CostMonitor) GlobalCosts(ctx context.Context, days int) cost.Summary {
	return m.Costs(ctx, cost.ScopeGlobal, cost.GlobalID, days)
}

// Costs summarises the last days of a scope. Unreadable days count as empty.
func (m *CostMonitor) Costs(ctx context.Context, scope cost.Scope, id string, days int) cost.Summary {
	if days < 1 {
		days = 1
	}
	if days > MaxCostDays {
		days = MaxCostDays
	}
	if scope == cost.ScopeGlobal {
		id = cost.GlobalID
	}
	return cost.Summarize(scope, id, m.daily(ctx, scope, id, cost.LastDays(m.clock.Now(), days)))
}

// CheckBudget compares month-to-date spend with thresholdUSD.
func (m *CostMonitor) CheckBudget(ctx context.Context, scope cost.Scope, id string, thresholdUSD float64) cost.BudgetStatus {
	if scope == cost.ScopeGlobal {
		id = cost.GlobalID
	}
	now := m.clock.Now()

	var spent int64
	for _, d := range m.daily(ctx, scope, id, cost.MonthDays(now)) {
		spent += d.TotalCents
	}

	st := cost.CheckBudget(scope, id, now, spent, thresholdUSD)
	if st.Exceeded {
		m.logger.Warn().Str("scope", string(scope)).Str("id", id).Float64("spent", st.Spent).Float64("threshold", thresholdUSD).Msg("cost budget exceeded")
	}
	return st
}

func (m *CostMonitor) daily(ctx context.Context, scope cost.Scope, id string, days []time.Time) []cost.Daily {
	out := make([]cost.Daily, 0, len(days))
	for _, day := range days {
		k := cost.BucketKey(scope, id, day)
		fields, err := m.cache.HGetAll(ctx, k)
		if err != nil {
			m.logger.Warn().Err(err).Str("key", k).Msg("cost bucket read failed")
			fields = nil
		}
		out = append(out, cost.ParseDaily(day, fields))
	}
	return out
}
