package attendance

// allowed is the transition table. Lunch is optional so CheckOut is reachable
// from every state after CheckIn.
var allowed = map[State][]Action{
	StateNotStarted: {ActionCheckIn},
	StateCheckedIn:  {ActionLunchStart, ActionCheckOut},
	StateOnLunch:    {ActionLunchEnd, ActionCheckOut},
	StateLunchDone:  {ActionCheckOut},
	StateCompleted:  {},
}

// AllowedActions returns the actions permitted next, in cycle order.
func AllowedActions(s State) []Action {
	acts := allowed[s]
	out := make([]Action, len(acts))
	copy(out, acts)
	return out
}

// IsAllowed reports whether a may be performed from state s.
func IsAllowed(s State, a Action) bool {
	for _, candidate := range allowed[s] {
		if candidate == a {
			return true
		}
	}
	return false
}

// Reselect keeps current when it is still allowed, otherwise picks the first
// allowed action. It returns ActionNone once the day is completed.
func Reselect(s State, current Action) Action {
	if current != ActionNone && IsAllowed(s, current) {
		return current
	}
	acts := allowed[s]
	if len(acts) == 0 {
		if s == StateNotStarted {
			return ActionCheckIn
		}
		return ActionNone
	}
	return acts[0]
}
