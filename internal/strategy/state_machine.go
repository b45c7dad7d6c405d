package strategy

import "sync"

type StateMachine struct {
	mu    sync.Mutex
	state State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateFlat}
}

func (s *StateMachine) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Apply moves to the next state. Events that are not valid for the current
// state leave it unchanged.
func (s *StateMachine) Apply(event Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = nextState(s.state, event)
	return s.state
}

func nextState(current State, event Event) State {
	if event == EventHalt {
		return StateHalted
	}
	switch current {
	case StateFlat:
		switch event {
		case EventUpdate:
			return StateEvaluating
		case EventAdopt:
			return StateOpen
		}
	case StateEvaluating:
		switch event {
		case EventNoCandidate:
			return StateFlat
		case EventEnter:
			return StateEntering
		}
	case StateEntering:
		switch event {
		case EventFilled:
			return StateOpen
		case EventEntryFailed:
			return StateFlat
		}
	case StateOpen:
		if event == EventExit {
			return StateExiting
		}
	case StateExiting:
		if event == EventDone {
			return StateFlat
		}
	case StateHalted:
		switch event {
		case EventResume:
			return StateFlat
		case EventAdopt:
			return StateOpen
		}
	}
	return current
}
