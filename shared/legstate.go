package shared

import (
	"encoding/json"
	"fmt"
)

// LegState represents the lifecycle state of a buy or sell leg for the
// current trading cycle.
type LegState int

const (
	None LegState = iota
	IntentSent
	Filled
	Skipped
)

// Skip reasons recorded alongside a Skipped leg state.
const (
	SkipAlreadyHolding = "already_holding"
	SkipNoPosition     = "no_position"
)

// Terminal checks whether the leg state is terminal for the current cycle.
func (s LegState) Terminal() bool {
	return s == Filled || s == Skipped
}

// String stringifies the provided leg state.
func (s LegState) String() string {
	switch s {
	case None:
		return "none"
	case IntentSent:
		return "intent_sent"
	case Filled:
		return "filled"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalJSON marshals the leg state as its string form so the persisted
// state document stays human readable.
func (s LegState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON unmarshals a leg state from its string form.
func (s *LegState) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}

	switch value {
	case "none", "":
		*s = None
	case "intent_sent":
		*s = IntentSent
	case "filled":
		*s = Filled
	case "skipped":
		*s = Skipped
	default:
		return fmt.Errorf("unknown leg state %q", value)
	}

	return nil
}
