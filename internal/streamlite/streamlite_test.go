package streamlite

import (
	"testing"
)

func TestNewBaseConnector(t *testing.T) {
	name := "test-connector"
	connector := NewBaseConnector(name)

	if connector.Name() != name {
		t.Errorf("expected name %s, got %s", name, connector.Name())
	}
	if connector.Phase() != PhaseIdle {
		t.Errorf("expected idle phase, got %s", connector.Phase())
	}
}

func TestBaseConnectorStart(t *testing.T) {
	connector := NewBaseConnector("test")
	connector.Start()

	if connector.StartedAt().IsZero() {
		t.Error("startedAt should be set after Start()")
	}
}

func TestBaseConnectorStop(t *testing.T) {
	connector := NewBaseConnector("test")
	connector.Stop()

	if connector.Phase() != PhaseShutdown {
		t.Errorf("expected shutdown phase, got %s", connector.Phase())
	}

	// Shutdown is terminal.
	connector.SetPhase(PhaseExecuting)
	if connector.Phase() != PhaseShutdown {
		t.Errorf("expected phase to stay shutdown, got %s", connector.Phase())
	}
}

func TestPhaseString(t *testing.T) {
	tests := map[Phase]string{
		PhaseIdle:          "idle",
		PhaseBuilding:      "building",
		PhaseExecuting:     "executing",
		PhaseSerializing:   "serializing",
		PhaseEmitting:      "emitting",
		PhasePersisting:    "persisting",
		PhaseErrorRecovery: "error_recovery",
		PhaseShutdown:      "shutdown",
		Phase(99):          "unknown",
	}
	for phase, want := range tests {
		if got := phase.String(); got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	}
}
