package vm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/exp/slices"
)

// KeyEscape moves console ownership to the next machine instead of being
// delivered.
const KeyEscape Word = 0x1B

// idle is how long Run sleeps when every live machine is blocked.
const idle = time.Millisecond

// KeySource is polled once per scheduling round. PollKey must not block.
type KeySource interface {
	PollKey() (key Word, ok bool)
}

// ImageLoader fills a fresh machine's memory.
type ImageLoader func(m *Machine) error

// Scheduler runs any number of isolated machines on one goroutine, round
// robin, sharing a single keyboard and output stream. Only the console
// owner receives keys and may finish output traps.
type Scheduler struct {
	keys     KeySource
	cfg      Config
	machines []*Machine
	owner    int
	running  int
}

func NewScheduler(keys KeySource, cfg Config) *Scheduler {
	return &Scheduler{keys: keys, cfg: cfg}
}

// AddMachine creates a machine, loads it with load and resets it. On a
// loader error the machine is discarded.
func (s *Scheduler) AddMachine(load ImageLoader) (*Machine, error) {
	m := NewMachine(len(s.machines), s.cfg)
	if load != nil {
		if err := load(m); err != nil {
			return nil, fmt.Errorf("vm %d: %w", m.ID, err)
		}
	}
	m.Reset()
	s.machines = append(s.machines, m)
	s.running++
	return m, nil
}

// Machines returns the scheduled machines in scheduling order.
func (s *Scheduler) Machines() []*Machine { return slices.Clone(s.machines) }

// Owner is the index of the machine that owns the console, or -1 when
// nothing is scheduled.
func (s *Scheduler) Owner() int {
	if len(s.machines) == 0 {
		return -1
	}
	return s.owner
}

// Running is the number of machines that have not stopped.
func (s *Scheduler) Running() int { return s.running }

// CycleOwner hands the console to the next machine. Blocked flags are left
// as they are.
func (s *Scheduler) CycleOwner() {
	if len(s.machines) == 0 {
		return
	}
	s.owner = (s.owner + 1) % len(s.machines)
	s.logf("console -> vm %d", s.owner)
}

// Step runs one scheduling round and reports whether any machine is still
// running.
func (s *Scheduler) Step() bool {
	if len(s.machines) == 0 {
		return false
	}

	if s.keys != nil {
		if key, ok := s.keys.PollKey(); ok {
			if key == KeyEscape {
				s.CycleOwner()
			} else {
				owner := s.machines[s.owner]
				owner.SetKey(key)
				owner.ClearBlocked(BlockedOnInput)
			}
		}
	}

	// the owner always has somewhere to write
	s.machines[s.owner].ClearBlocked(BlockedOnOutput)

	for _, m := range s.machines {
		if m.State().IsStopped() {
			continue
		}
		if !m.Tick() {
			s.running--
		}
	}
	return s.running > 0
}

// Run steps until every machine has stopped or ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !s.Step() {
			return nil
		}
		if s.stalled() {
			time.Sleep(idle)
		}
	}
}

// stalled reports whether no live machine can make progress until the host
// does something.
func (s *Scheduler) stalled() bool {
	return !slices.ContainsFunc(s.machines, func(m *Machine) bool {
		return !m.State().IsStopped() && !(m.State().IsTrapped() && m.IsBlocked())
	})
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.cfg.Trace != nil {
		s.cfg.Trace.Printf(format, args...)
	}
}
