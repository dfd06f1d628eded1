package progress

// taskTransitions lists the allowed task status changes.
var taskTransitions = map[Status][]Status{
	NotStarted: {InProgress},
	InProgress: {Completed, NotStarted},
	Completed:  {NotStarted},
}

// CanTransition reports whether a task may move from `from` to `to`.
// Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return from.IsValid()
	}
	for _, s := range taskTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
