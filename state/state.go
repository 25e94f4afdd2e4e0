package state

import (
	"github.com/jyhan/lwtrader/shared"
)

// TradingDayState tracks the buy and sell intent lifecycle for a symbol.
// It is scoped to the current trading cycle rather than a single calendar
// day since the offsetting sell may be deferred across non-trading days.
type TradingDayState struct {
	Symbol        string  `json:"symbol"`
	BreakoutPrice int64   `json:"breakoutPrice,omitempty"`
	K             float64 `json:"k,omitempty"`
	BudgetAmount  int64   `json:"budgetAmount,omitempty"`

	BuyState         shared.LegState `json:"buyState"`
	BuySkipReason    string          `json:"buySkipReason,omitempty"`
	BuyOrderID       string          `json:"buyOrderId,omitempty"`
	BuySnapshotPrice int64           `json:"buySnapshotPrice,omitempty"`
	BuyFillPrice     int64           `json:"buyFillPrice,omitempty"`
	BuyQty           int64           `json:"buyQty,omitempty"`
	BuyDecisionDate  string          `json:"buyDecisionDate,omitempty"`
	BuySentAt        string          `json:"buySentAt,omitempty"`
	BuyPaper         bool            `json:"buyPaper,omitempty"`

	SellState      shared.LegState `json:"sellState"`
	SellSkipReason string          `json:"sellSkipReason,omitempty"`
	SellOrderID    string          `json:"sellOrderId,omitempty"`
	SellFillPrice  int64           `json:"sellFillPrice,omitempty"`
	SellQty        int64           `json:"sellQty,omitempty"`
	SellSentAt     string          `json:"sellSentAt,omitempty"`
	SellPaper      bool            `json:"sellPaper,omitempty"`

	PendingSellDate string `json:"pendingSellDate,omitempty"`
	SellRollReason  string `json:"sellRollReason,omitempty"`
}

// MarkBuySent records a sent buy order and begins a new trading cycle: the
// sell leg is re-armed and the offsetting sell is scheduled for the next
// calendar day. Holiday rolling advances it to a trading day later.
func (s *TradingDayState) MarkBuySent(orderID string, snapshotPrice int64, qty int64, decisionDate string, sentAt string, paper bool) {
	s.BuyState = shared.IntentSent
	s.BuySkipReason = ""
	s.BuyOrderID = orderID
	s.BuySnapshotPrice = snapshotPrice
	s.BuyFillPrice = 0
	s.BuyQty = qty
	s.BuyDecisionDate = decisionDate
	s.BuySentAt = sentAt
	s.BuyPaper = paper

	s.SellState = shared.None
	s.SellSkipReason = ""
	s.SellOrderID = ""
	s.SellFillPrice = 0
	s.SellQty = 0
	s.SellSentAt = ""
	s.SellPaper = false
	s.SellRollReason = ""
	s.PendingSellDate = shared.NextCalendarDayKey(decisionDate)
}

// MarkBuySkipped records a skipped buy decision for the provided day.
func (s *TradingDayState) MarkBuySkipped(reason string, decisionDate string) {
	s.BuyState = shared.Skipped
	s.BuySkipReason = reason
	s.BuyDecisionDate = decisionDate
}

// MarkBuyFilled promotes a sent buy order to filled.
func (s *TradingDayState) MarkBuyFilled(fillPrice int64) {
	s.BuyState = shared.Filled
	s.BuyFillPrice = fillPrice
}

// MarkSellSent records a sent sell order.
func (s *TradingDayState) MarkSellSent(orderID string, qty int64, sentAt string, paper bool) {
	s.SellState = shared.IntentSent
	s.SellSkipReason = ""
	s.SellOrderID = orderID
	s.SellQty = qty
	s.SellSentAt = sentAt
	s.SellPaper = paper
}

// MarkSellSkipped records a skipped sell decision and clears the pending
// sell schedule, ending the cycle.
func (s *TradingDayState) MarkSellSkipped(reason string) {
	s.SellState = shared.Skipped
	s.SellSkipReason = reason
	s.PendingSellDate = ""
	s.SellRollReason = ""
}

// MarkSellFilled promotes a sent sell order to filled and clears the pending
// sell schedule, ending the cycle.
func (s *TradingDayState) MarkSellFilled(fillPrice int64) {
	s.SellState = shared.Filled
	s.SellFillPrice = fillPrice
	s.PendingSellDate = ""
	s.SellRollReason = ""
}

// RollPendingSell advances the pending sell date. The date only moves
// forward, a roll to the current date or earlier is ignored.
func (s *TradingDayState) RollPendingSell(next string, reason string) bool {
	if s.PendingSellDate == "" || next <= s.PendingSellDate {
		return false
	}

	s.PendingSellDate = next
	s.SellRollReason = reason

	return true
}
