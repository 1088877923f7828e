// Package cost provides token pricing and the daily cost bucket arithmetic
// used by the cost monitor.
// All functions are pure - no side effects.
package cost

import (
	"errors"
	"math"
	"sort"
	"strings"
	"time"
)

// Price is the USD rate per million tokens (value type).
type Price struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

// PriceTable maps model names to prices, with a fallback for unknown models.
type PriceTable struct {
	Models  map[string]Price `yaml:"models" json:"models"`
	Default Price            `yaml:"default" json:"default"`
}

// DefaultPriceTable returns the built-in model prices.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		Models: map[string]Price{
			"gpt-4o":            {Input: 2.50, Output: 10.00},
			"gpt-4o-mini":       {Input: 0.15, Output: 0.60},
			"gpt-4-turbo":       {Input: 10.00, Output: 30.00},
			"gpt-3.5-turbo":     {Input: 0.50, Output: 1.50},
			"claude-3-5-sonnet": {Input: 3.00, Output: 15.00},
			"claude-3-5-haiku":  {Input: 0.80, Output: 4.00},
			"claude-3-opus":     {Input: 15.00, Output: 75.00},
			"gemini-1.5-pro":    {Input: 1.25, Output: 5.00},
			"gemini-1.5-flash":  {Input: 0.075, Output: 0.30},
		},
		Default: Price{Input: 1.00, Output: 3.00},
	}
}

// Lookup returns the price for model, falling back to the default.
// Model names are matched case-insensitively.
func (t PriceTable) Lookup(model string) (Price, bool) {
	if p, ok := t.Models[strings.ToLower(model)]; ok {
		return p, true
	}
	return t.Default, false
}

// Breakdown is the cost of one tracked call in USD.
type Breakdown struct {
	Model        string  `json:"model"`
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	InputCost    float64 `json:"inputCost"`
	OutputCost   float64 `json:"outputCost"`
	TotalCost    float64 `json:"totalCost"`
	KnownModel   bool    `json:"knownModel"`
}

// ErrNegativeTokens is returned for negative token counts.
var ErrNegativeTokens = errors.New("token counts must not be negative")

// Calculate prices a call: tokens/1e6 * rate for input and output.
// This is a PURE function.
func Calculate(t PriceTable, model string, inputTokens, outputTokens int64) (Breakdown, error) {
	if inputTokens < 0 || outputTokens < 0 {
		return Breakdown{}, ErrNegativeTokens
	}
	p, known := t.Lookup(model)
	in := float64(inputTokens) / 1e6 * p.Input
	out := float64(outputTokens) / 1e6 * p.Output
	return Breakdown{
		Model:        strings.ToLower(model),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		InputCost:    in,
		OutputCost:   out,
		TotalCost:    in + out,
		KnownModel:   known,
	}, nil
}

// Cents converts USD to whole cents, rounding half away from zero.
func Cents(usd float64) int64 {
	return int64(math.Round(usd * 100))
}

// Dollars converts cents to USD.
func Dollars(cents int64) float64 {
	return float64(cents) / 100
}

// Scope is the owner of a cost bucket.
type Scope string

const (
	ScopeUser    Scope = "user"
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)

// GlobalID is the identifier used for the global scope.
const GlobalID = "all"

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, bool) {
	switch sc := Scope(s); sc {
	case ScopeUser, ScopeProject, ScopeGlobal:
		return sc, true
	}
	return "", false
}

// Bucket hash fields.
const (
	FieldInput        = "input"
	FieldOutput       = "output"
	FieldTotal        = "total"
	FieldInputTokens  = "tokens_in"
	FieldOutputTokens = "tokens_out"
	FieldCalls        = "calls"
	modelPrefix       = "model:"
)

// ModelField returns the hash field holding a model's total cents.
func ModelField(model string) string {
	return modelPrefix + model
}

// DayLayout formats bucket days.
const DayLayout = "2006-01-02"

// BucketKey returns the cache key of a daily bucket.
// This is a PURE function.
func BucketKey(scope Scope, id string, day time.Time) string {
	return "cost:" + string(scope) + ":" + id + ":" + day.UTC().Format(DayLayout)
}

// Increments returns the hash field increments for one call.
// Input and output are rounded separately and the total is their sum, so the
// stored fields always add up.
// This is a PURE function.
func Increments(b Breakdown) map[string]int64 {
	in := Cents(b.InputCost)
	out := Cents(b.OutputCost)
	inc := map[string]int64{
		FieldInput:        in,
		FieldOutput:       out,
		FieldTotal:        in + out,
		FieldInputTokens:  b.InputTokens,
		FieldOutputTokens: b.OutputTokens,
		FieldCalls:        1,
	}
	inc[ModelField(b.Model)] = in + out
	return inc
}

// Daily is one day's accumulated bucket.
type Daily struct {
	Date         time.Time        `json:"date"`
	InputCents   int64            `json:"inputCents"`
	OutputCents  int64            `json:"outputCents"`
	TotalCents   int64            `json:"totalCents"`
	InputTokens  int64            `json:"inputTokens"`
	OutputTokens int64            `json:"outputTokens"`
	Calls        int64            `json:"calls"`
	ByModel      map[string]int64 `json:"byModel,omitempty"`
}

// HasData reports whether anything was tracked that day.
func (d Daily) HasData() bool {
	return d.Calls > 0 || d.TotalCents > 0
}

// ParseDaily rebuilds a Daily from stored hash fields.
// This is a PURE function.
func ParseDaily(day time.Time, fields map[string]int64) Daily {
	d := Daily{
		Date:         day,
		InputCents:   fields[FieldInput],
		OutputCents:  fields[FieldOutput],
		TotalCents:   fields[FieldTotal],
		InputTokens:  fields[FieldInputTokens],
		OutputTokens: fields[FieldOutputTokens],
		Calls:        fields[FieldCalls],
	}
	for k, v := range fields {
		if name, ok := strings.CutPrefix(k, modelPrefix); ok {
			if d.ByModel == nil {
				d.ByModel = make(map[string]int64)
			}
			d.ByModel[name] = v
		}
	}
	return d
}

// Summary aggregates daily buckets over a period. Costs are in USD.
type Summary struct {
	Scope           Scope              `json:"scope"`
	ID              string             `json:"id"`
	PeriodDays      int                `json:"periodDays"`
	TotalCost       float64            `json:"totalCost"`
	InputCost       float64            `json:"inputCost"`
	OutputCost      float64            `json:"outputCost"`
	InputTokens     int64              `json:"inputTokens"`
	OutputTokens    int64              `json:"outputTokens"`
	Calls           int64              `json:"calls"`
	ByModel         map[string]float64 `json:"byModel"`
	Daily           []Daily            `json:"daily"`
	DaysWithData    int                `json:"daysWithData"`
	MonthlyEstimate float64            `json:"monthlyEstimate"`
}

// Summarize sums daily buckets and projects a 30-day estimate as
// total / daysWithData * 30.
// This is a PURE function.
func Summarize(scope Scope, id string, days []Daily) Summary {
	s := Summary{Scope: scope, ID: id, PeriodDays: len(days), ByModel: map[string]float64{}, Daily: days}

	var total, in, out int64
	models := make(map[string]int64)
	for _, d := range days {
		total += d.TotalCents
		in += d.InputCents
		out += d.OutputCents
		s.InputTokens += d.InputTokens
		s.OutputTokens += d.OutputTokens
		s.Calls += d.Calls
		for m, c := range d.ByModel {
			models[m] += c
		}
		if d.HasData() {
			s.DaysWithData++
		}
	}
	sort.Slice(s.Daily, func(i, j int) bool { return s.Daily[i].Date.Before(s.Daily[j].Date) })

	s.TotalCost = Dollars(total)
	s.InputCost = Dollars(in)
	s.OutputCost = Dollars(out)
	for m, c := range models {
		s.ByModel[m] = Dollars(c)
	}
	if s.DaysWithData > 0 {
		s.MonthlyEstimate = math.Round(float64(total)/float64(s.DaysWithData)*30) / 100
	}
	return s
}

// WarningThreshold is the share of a budget at which a warning is raised.
const WarningThreshold = 0.8

// BudgetStatus compares month-to-date spend with a budget.
type BudgetStatus struct {
	Scope       Scope   `json:"scope"`
	ID          string  `json:"id"`
	Month       string  `json:"month"`
	Spent       float64 `json:"spent"`
	Threshold   float64 `json:"threshold"`
	PercentUsed float64 `json:"percentUsed"`
	Warning     bool    `json:"warning"`
	Exceeded    bool    `json:"exceeded"`
}

// CheckBudget evaluates spentCents against a USD threshold.
// This is a PURE function.
func CheckBudget(scope Scope, id string, month time.Time, spentCents int64, thresholdUSD float64) BudgetStatus {
	st := BudgetStatus{
		Scope:     scope,
		ID:        id,
		Month:     month.UTC().Format("2006-01"),
		Spent:     Dollars(spentCents),
		Threshold: thresholdUSD,
	}
	if thresholdUSD > 0 {
		st.PercentUsed = math.Round(st.Spent/thresholdUSD*10000) / 100
		st.Exceeded = st.Spent >= thresholdUSD
		st.Warning = st.Spent >= thresholdUSD*WarningThreshold
	}
	return st
}

// MonthDays returns the UTC days from the first of now's month through now.
func MonthDays(now time.Time) []time.Time {
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	var days []time.Time
	for d := first; !d.After(now); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// LastDays returns the n UTC days ending with now's day, oldest first.
func LastDays(now time.Time, n int) []time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := make([]time.Time, 0, n)
	for i := n - 1; i >= 0; i-- {
		days = append(days, today.AddDate(0, 0, -i))
	}
	return days
}
