package domain

// State is the lifecycle position of one identifier inside the manager.
type State string

const (
	StateUnparsed  State = "unparsed"  // No descriptor stored.
	StateParsed    State = "parsed"    // Descriptor stored, nothing running.
	StateAdded     State = "added"     // Engine accepted the torrent.
	StateServing   State = "serving"   // Stream server bound, reporter running.
	StateDestroyed State = "destroyed" // Torn down, descriptor retained.
)

var validTransitions = map[State][]State{
	StateUnparsed:  {StateParsed},
	StateParsed:    {StateAdded, StateDestroyed},
	StateAdded:     {StateServing, StateParsed, StateDestroyed},
	StateServing:   {StateDestroyed},
	StateDestroyed: {StateParsed, StateUnparsed},
}

// CanTransition reports whether a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
