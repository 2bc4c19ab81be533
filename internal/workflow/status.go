package workflow

// Status enumerates the lifecycle phases of a submission.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSelected  Status = "selected"
	StatusUploading Status = "uploading"
	StatusUploaded  Status = "uploaded"
	StatusAnalyzing Status = "analyzing"
	StatusAnalyzed  Status = "analyzed"
	StatusFailed    Status = "failed"
)

// Step identifies which network call a flight or failure belongs to.
type Step string

const (
	StepUpload  Step = "upload"
	StepAnalyze Step = "analyze"
)

// transitions lists every edge of the state machine except reset, which is
// legal from anywhere and always lands on idle.
var transitions = map[Status][]Status{
	StatusIdle:      {StatusSelected},
	StatusSelected:  {StatusSelected, StatusUploading},
	StatusUploading: {StatusUploaded, StatusFailed},
	StatusUploaded:  {StatusSelected, StatusAnalyzing},
	StatusAnalyzing: {StatusAnalyzed, StatusFailed},
	StatusAnalyzed:  {StatusSelected},
	StatusFailed:    {StatusSelected, StatusUploading, StatusAnalyzing},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// InFlight reports whether a network call is outstanding in this status.
func (s Status) InFlight() bool {
	return s == StatusUploading || s == StatusAnalyzing
}

// Label returns the text shown to users for the status.
func (s Status) Label() string {
	switch s {
	case StatusIdle:
		return "Choose a photo"
	case StatusSelected:
		return "Ready to upload"
	case StatusUploading:
		return "Uploading..."
	case StatusUploaded:
		return "Uploaded, ready to analyze"
	case StatusAnalyzing:
		return "Analyzing..."
	case StatusAnalyzed:
		return "Analysis complete"
	case StatusFailed:
		return "Something went wrong"
	default:
		return string(s)
	}
}

// CanTransition reports whether the machine may move from one status to
// another. Moving to idle is always allowed.
func CanTransition(from, to Status) bool {
	if to == StatusIdle {
		return from.IsValid()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
