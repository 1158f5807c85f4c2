package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
)

// DefaultQuota is how many instructions a machine may run per Tick before
// it yields to the next one.
const DefaultQuota = 1000

// Config is shared by every machine a Scheduler creates.
type Config struct {
	// Quota is the instruction budget of one Tick; <= 0 means DefaultQuota.
	Quota int
	// Output receives the characters written by console traps.
	Output io.Writer
	// Trace, when set, logs decoded instructions and scheduling events.
	Trace *log.Logger
}

func (cfg Config) quota() int {
	if cfg.Quota <= 0 {
		return DefaultQuota
	}
	return cfg.Quota
}

// BlockFlags records why a trapped machine cannot be serviced yet.
type BlockFlags uint32

const (
	BlockedOnInput BlockFlags = 1 << iota
	BlockedOnOutput
)

// Machine is one console VM plus the bookkeeping that lets it share the
// keyboard and screen with others: a trap that needs the console leaves it
// blocked until the scheduler hands it the resource.
type Machine struct {
	ID int

	console *Console
	blocked BlockFlags
	quota   int
	trace   *log.Logger
}

// NewMachine returns a stopped machine. Load a program and Reset it before
// ticking.
func NewMachine(id int, cfg Config) *Machine {
	console := NewConsole(cfg.Output)
	console.SetTrace(cfg.Trace)
	return &Machine{
		ID:      id,
		console: console,
		quota:   cfg.quota(),
		trace:   cfg.Trace,
	}
}

// Console gives access to the underlying VM.
func (m *Machine) Console() *Console { return m.console }

func (m *Machine) State() State { return m.console.State() }

// Reset restarts the program at the start of user space and clears any
// blocked condition. Memory is left untouched.
func (m *Machine) Reset() {
	m.console.Reset()
	m.blocked = 0
}

func (m *Machine) SetKey(key Word) { m.console.SetKey(key) }

func (m *Machine) IsBlocked() bool { return m.blocked != 0 }

func (m *Machine) Blocked() BlockFlags { return m.blocked }

func (m *Machine) SetBlocked(flags BlockFlags) { m.blocked |= flags }

func (m *Machine) ClearBlocked(flags BlockFlags) { m.blocked &^= flags }

// Tick advances the machine by one scheduling slice and reports whether it
// is still alive. A pending trap is serviced first unless the machine is
// blocked; then up to the quota of instructions run. If that ends in a trap
// needing a console resource it does not have yet, the machine blocks on
// it. A key already delivered counts as input available.
func (m *Machine) Tick() bool {
	state := m.console.State()
	if state.IsStopped() {
		return false
	}

	if state.IsTrapped() && !m.IsBlocked() {
		state = m.console.Trap(state.TrapNumber())
	}

	if state.IsRunning() {
		state = m.console.RunFor(m.quota)
		if state.IsTrapped() {
			need := needs(state.TrapNumber())
			if need == BlockedOnInput && m.console.HasKey() {
				need = 0
			}
			if need != 0 {
				m.SetBlocked(need)
				m.logf("vm %d: %s, blocked=%02b", m.ID, state, m.blocked)
			}
		}
	}

	if state.IsStopped() {
		m.logf("vm %d: stopped at 0x%04x", m.ID, m.console.PC())
	}
	return !state.IsStopped()
}

func (m *Machine) logf(format string, args ...any) {
	if m.trace != nil {
		m.trace.Printf(format, args...)
	}
}

// Load passes fill up to count words of memory starting at origin.
func (m *Machine) Load(origin Word, count int, fill func(dst []Word) int) int {
	return m.console.Load(origin, count, fill)
}

var ErrImageTooShort = errors.New("image too short")

// DecodeImage splits an LC-3 object image into its origin and payload.
// Both are stored big endian; a trailing odd byte is ignored. An image with
// only an origin has no payload.
func DecodeImage(image []byte) (Word, []Word, error) {
	if len(image) < 2 {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrImageTooShort, len(image))
	}

	/* origin tells us where in memory to place the image */
	origin := Word(binary.BigEndian.Uint16(image))

	words := make([]Word, (len(image)-2)/2)
	for i := range words {
		words[i] = Word(binary.BigEndian.Uint16(image[2+2*i:]))
	}
	return origin, words, nil
}

// LoadImage reads an object image from r into memory at its origin. Words
// past the end of memory are dropped.
func (m *Machine) LoadImage(r io.Reader) error {
	image, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	origin, words, err := DecodeImage(image)
	if err != nil {
		return err
	}
	n := m.Load(origin, MemorySize-int(origin), func(dst []Word) int {
		return copy(dst, words)
	})
	m.logf("vm %d: loaded %d words at 0x%04x (%0.2f KB)", m.ID, n, origin, float32(len(image))/1024)
	return nil
}
