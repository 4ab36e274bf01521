package retry

// Export returns a deep copy of every task's retry state keyed by task
// id, suitable for persisting next to a progress checkpoint.
func (e *Engine) Export() map[string]State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]State, len(e.states))
	for id, state := range e.states {
		copied := *state
		copied.ErrorHistory = append([]ErrorInfo(nil), state.ErrorHistory...)
		out[id] = copied
	}
	return out
}

// Restore replaces the engine's state with a previously exported
// snapshot. Entries with an empty task id are dropped.
func (e *Engine) Restore(states map[string]State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = make(map[string]*State, len(states))
	for id, state := range states {
		if id == "" {
			continue
		}
		copied := state
		copied.TaskID = id
		copied.ErrorHistory = append([]ErrorInfo(nil), state.ErrorHistory...)
		e.states[id] = &copied
	}
}
