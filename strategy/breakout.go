package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jyhan/lwtrader/shared"
)

const (
	// minDailyBars is the minimum bar history required to derive a breakout
	// threshold: the prior session range and the current session open.
	minDailyBars = 2

	// MaxK is the upper bound for the breakout multiplier.
	MaxK = 1.5
)

// ErrInsufficientHistory is returned when fewer daily bars are available
// than the breakout derivation requires.
var ErrInsufficientHistory = errors.New("insufficient daily bar history")

// Calculator derives and caches the volatility breakout threshold for a
// symbol. The cached value is scoped to a single trading day and multiplier,
// recomputation happens on a day change, a multiplier change or an explicit
// invalidation.
type Calculator struct {
	day     string
	k       float64
	price   int64
	refDate time.Time
}

// NewCalculator initializes a new breakout calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Cached returns the cached breakout price for the provided day and
// multiplier, if one is held.
func (c *Calculator) Cached(day string, k float64) (int64, bool) {
	if c.price > 0 && c.day == day && c.k == k {
		return c.price, true
	}

	return 0, false
}

// Compute derives the breakout price from the provided daily bars (ordered
// oldest to newest) and caches it for the provided day and multiplier.
//
// breakout = round(todayOpen + k * (priorHigh - priorLow))
func (c *Calculator) Compute(bars []shared.Candlestick, k float64, day string) (int64, error) {
	if k <= 0 || k > MaxK {
		return 0, fmt.Errorf("breakout multiplier %v out of range (0, %v]", k, MaxK)
	}

	if len(bars) < minDailyBars {
		return 0, fmt.Errorf("%w: have %d bars, need %d", ErrInsufficientHistory, len(bars), minDailyBars)
	}

	prior := bars[len(bars)-2]
	today := bars[len(bars)-1]

	priorRange := prior.High - prior.Low
	price := int64(math.Round(float64(today.Open) + k*float64(priorRange)))

	c.day = day
	c.k = k
	c.price = price
	c.refDate = today.Date

	return price, nil
}

// RefDate returns the date of the bar the cached breakout was derived from.
func (c *Calculator) RefDate() time.Time {
	return c.refDate
}

// Invalidate drops the cached breakout price, forcing recomputation on the
// next evaluation.
func (c *Calculator) Invalidate() {
	c.day = ""
	c.k = 0
	c.price = 0
	c.refDate = time.Time{}
}

// QuantityForBudget returns the order quantity affordable under the provided
// cash budget at the provided price.
func QuantityForBudget(price int64, budget int64) int64 {
	if price <= 0 {
		return 0
	}

	qty := budget / price
	if qty < 0 {
		return 0
	}

	return qty
}
