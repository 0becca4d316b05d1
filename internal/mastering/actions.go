package mastering

import "fmt"

// Action identifies the backend's current write phase.
type Action int

const (
	ActionIdle Action = iota
	ActionValidatingMedia
	ActionFormatting
	ActionInitializing
	ActionCalculating
	ActionWritingData
	ActionFinalizing
	ActionCompleted
	ActionVerifying
)

var actionLabels = map[Action]string{
	ActionIdle:            "idle",
	ActionValidatingMedia: "validating media",
	ActionFormatting:      "formatting",
	ActionInitializing:    "initializing",
	ActionCalculating:     "calculating",
	ActionWritingData:     "writing data",
	ActionFinalizing:      "finalizing",
	ActionCompleted:       "completed",
	ActionVerifying:       "verifying",
}

// String returns the human-readable phase label.
func (a Action) String() string {
	if label, ok := actionLabels[a]; ok {
		return label
	}
	return fmt.Sprintf("unknown(%d)", int(a))
}

// IsTransfer reports whether the phase moves payload data. Rate estimation
// only runs while a transfer phase is active.
func (a Action) IsTransfer() bool {
	return a == ActionWritingData
}
