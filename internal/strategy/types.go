package strategy

import "hl-aevo-arb/internal/venue"

type State string

type Event string

const (
	StateFlat       State = "FLAT"
	StateEvaluating State = "EVALUATING"
	StateEntering   State = "ENTERING"
	StateOpen       State = "OPEN"
	StateExiting    State = "EXITING"
	// StateHalted stops automated entries and exits until an operator
	// resumes after checking both venues by hand.
	StateHalted State = "HALTED"
)

const (
	EventUpdate      Event = "UPDATE"
	EventNoCandidate Event = "NO_CANDIDATE"
	EventEnter       Event = "ENTER"
	EventEntryFailed Event = "ENTRY_FAILED"
	EventFilled      Event = "FILLED"
	EventExit        Event = "EXIT"
	EventDone        Event = "DONE"
	EventAdopt       Event = "ADOPT"
	EventHalt        Event = "HALT"
	EventResume      Event = "RESUME"
)

// Candidate is one evaluated arbitrage opportunity. The long leg sits on the
// lower-rate venue so it receives funding from the short leg's side.
type Candidate struct {
	Symbol      string
	LongVenue   venue.ID
	ShortVenue  venue.ID
	LongPrice   float64
	ShortPrice  float64
	LongRate    float64
	ShortRate   float64
	Spread      float64
	PercentPnL  float64
	TotalPnL    float64
	HoursNeeded float64
}

// Side returns the side held on id for this candidate.
func (c Candidate) Side(id venue.ID) venue.Side {
	if id == c.LongVenue {
		return venue.Long
	}
	return venue.Short
}

type ExitReason string

const (
	ExitCriticalProximity ExitReason = "critical_liquidation_proximity"
	ExitWarningProfit     ExitReason = "liquidation_warning_in_profit"
	ExitReversalProfit    ExitReason = "funding_reversal_in_profit"
	ExitReversalCutoff    ExitReason = "funding_reversal_settlement_cutoff"
)

// ExitSignal explains why the risk monitor wants the position closed.
type ExitSignal struct {
	Reason    ExitReason
	Venue     venue.ID
	Proximity float64
	ExitPnL   float64
}
