package appointments

var transitions = map[Status][]Status{
	StatusScheduled:  {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from → to is a lifecycle edge. Same-status is not.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// leavesQueue reports whether entering s removes the appointment from its queue scope.
func leavesQueue(s Status) bool {
	return s == StatusInProgress || s == StatusCompleted || s == StatusCancelled
}
