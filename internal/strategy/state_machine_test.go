package strategy

import "testing"

func TestStateMachineLifecycle(t *testing.T) {
	sm := NewStateMachine()
	if sm.State() != StateFlat {
		t.Fatalf("expected %s, got %s", StateFlat, sm.State())
	}
	steps := []struct {
		event Event
		want  State
	}{
		{EventUpdate, StateEvaluating},
		{EventEnter, StateEntering},
		{EventFilled, StateOpen},
		{EventExit, StateExiting},
		{EventDone, StateFlat},
	}
	for _, step := range steps {
		if got := sm.Apply(step.event); got != step.want {
			t.Fatalf("after %s expected %s, got %s", step.event, step.want, got)
		}
	}
}

func TestStateMachineNoCandidateReturnsFlat(t *testing.T) {
	sm := NewStateMachine()
	sm.Apply(EventUpdate)
	if sm.Apply(EventNoCandidate) != StateFlat {
		t.Fatalf("expected %s, got %s", StateFlat, sm.State())
	}
}

func TestStateMachineEntryFailed(t *testing.T) {
	sm := NewStateMachine()
	sm.Apply(EventUpdate)
	sm.Apply(EventEnter)
	if sm.Apply(EventEntryFailed) != StateFlat {
		t.Fatalf("expected %s, got %s", StateFlat, sm.State())
	}
}

func TestStateMachineInvalidTransition(t *testing.T) {
	sm := NewStateMachine()
	if sm.Apply(EventExit) != StateFlat {
		t.Fatalf("invalid transition should not change state")
	}
	if sm.Apply(EventFilled) != StateFlat {
		t.Fatalf("invalid transition should not change state")
	}
}

func TestStateMachineHaltAndResume(t *testing.T) {
	sm := NewStateMachine()
	sm.Apply(EventUpdate)
	sm.Apply(EventEnter)
	if sm.Apply(EventHalt) != StateHalted {
		t.Fatalf("expected %s, got %s", StateHalted, sm.State())
	}
	if sm.Apply(EventUpdate) != StateHalted {
		t.Fatalf("updates must not leave %s", StateHalted)
	}
	if sm.Apply(EventResume) != StateFlat {
		t.Fatalf("expected %s, got %s", StateFlat, sm.State())
	}
}

func TestStateMachineAdopt(t *testing.T) {
	sm := NewStateMachine()
	if sm.Apply(EventAdopt) != StateOpen {
		t.Fatalf("expected %s, got %s", StateOpen, sm.State())
	}
	sm.Apply(EventHalt)
	if sm.Apply(EventAdopt) != StateOpen {
		t.Fatalf("expected adopt from halted to reach %s", StateOpen)
	}
}
