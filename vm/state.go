package vm

import "fmt"

type stateKind uint8

const (
	stopped stateKind = iota
	running
	trapped
)

// State is the execution state of a CPU: Running, Stopped, or Trapped with
// the trap vector that suspended it. The zero State is Stopped.
type State struct {
	kind stateKind
	trap Word
}

func Running() State { return State{kind: running} }

func Stopped() State { return State{kind: stopped} }

// Trapped returns the state of a CPU suspended on the given trap vector.
// Only the low byte of trap is kept.
func Trapped(trap Word) State { return State{kind: trapped, trap: trap & 0xFF} }

func (s State) IsRunning() bool { return s.kind == running }

func (s State) IsStopped() bool { return s.kind == stopped }

func (s State) IsTrapped() bool { return s.kind == trapped }

// TrapNumber is the trap vector of a Trapped state, 0 otherwise.
func (s State) TrapNumber() Word {
	if s.kind != trapped {
		return 0
	}
	return s.trap
}

func (s State) String() string {
	switch s.kind {
	case running:
		return "running"
	case trapped:
		return fmt.Sprintf("trapped(0x%02x)", s.trap)
	default:
		return "stopped"
	}
}
