package workflow

import "time"

type State int

const (
	ValidateInput State = iota
	SubmitMagnet
	AwaitCaching
	ResolveLinks
	DispatchDownloads
	MonitorDownloads
	Completed
	Failed
)

var stateNames = [...]string{
	ValidateInput:     "ValidateInput",
	SubmitMagnet:      "SubmitMagnet",
	AwaitCaching:      "AwaitCaching",
	ResolveLinks:      "ResolveLinks",
	DispatchDownloads: "DispatchDownloads",
	MonitorDownloads:  "MonitorDownloads",
	Completed:         "Completed",
	Failed:            "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type Transition struct {
	From State
	To   State
	At   time.Time
}
