package pitr

// Outcome is the terminal state of a cross-instance restore run.
type Outcome int

const (
	// OutcomeUnknown is the zero value, returned alongside an error when a
	// run dies on an unexpected platform failure. It is never a planned
	// ending.
	OutcomeUnknown Outcome = iota
	// OutcomeOnline: the restored database reported Online.
	OutcomeOnline
	// OutcomeTimedOut: the status budget elapsed without Online. The
	// restore may still be in flight; the run exits informationally.
	OutcomeTimedOut
	// OutcomeDeclined: the user declined deleting the existing database.
	OutcomeDeclined
	// OutcomeInsufficientStorage: the target lacks room for the source.
	OutcomeInsufficientStorage
	// OutcomeDeletionTimeout: the existing database did not disappear
	// within the deletion wait budget.
	OutcomeDeletionTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnknown:
		return "Unknown"
	case OutcomeOnline:
		return "Completed-Online"
	case OutcomeTimedOut:
		return "Completed-TimedOut-StatusUnknown"
	case OutcomeDeclined:
		return "Aborted-UserDeclined"
	case OutcomeInsufficientStorage:
		return "Aborted-InsufficientStorage"
	case OutcomeDeletionTimeout:
		return "Aborted-DeletionTimeout"
	default:
		return "Unknown"
	}
}

// ExitCode maps an outcome to the process exit code: aborts are failures,
// completion and an informational timeout are not.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeOnline, OutcomeTimedOut:
		return 0
	default:
		return 1
	}
}
