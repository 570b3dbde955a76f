// Package execution runs advisor decisions through the pre-trade
// guard pipeline and places orders on the venue.
package execution

// Status is the guard pipeline outcome for one decision
type Status string

const (
	StatusExecuted    Status = "EXECUTED"
	StatusExecutedSim Status = "EXECUTED_SIM"
	StatusHold        Status = "HOLD"
	StatusHoldDup     Status = "HOLD_DUP"
	StatusSkipped     Status = "SKIPPED"
	StatusSkippedMin  Status = "SKIPPED_MIN"
	StatusSkippedFull Status = "SKIPPED_FULL"
	StatusStopped     Status = "STOPPED"
	StatusFailed      Status = "FAILED"
)

// Result is the tagged outcome plus a human readable summary
type Result struct {
	Status  Status
	Summary string
}

// Ok reports whether an order actually reached the venue or simulator
func (r Result) Ok() bool {
	return r.Status == StatusExecuted || r.Status == StatusExecutedSim
}

func hold(summary string) Result    { return Result{Status: StatusHold, Summary: summary} }
func skipped(summary string) Result { return Result{Status: StatusSkipped, Summary: summary} }
func failed(summary string) Result  { return Result{Status: StatusFailed, Summary: summary} }
