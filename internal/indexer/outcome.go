package indexer

// Outcome tags the result of one catch-up cycle. It is control flow, not an
// error: the engine dispatches on it and only genuine failures surface as
// errors.
type Outcome int

const (
	// outcomeNone is the zero value, returned alongside errors so a failed
	// cycle can never be mistaken for an advance.
	outcomeNone Outcome = iota

	// Advanced means one block was imported; re-run immediately.
	Advanced

	// Reorged means local state was rolled back; re-run immediately.
	Reorged

	// Completed means local and remote tips match; the catch-up run ends.
	Completed
)

func (o Outcome) String() string {
	switch o {
	case Advanced:
		return "advanced"
	case Reorged:
		return "reorged"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}
