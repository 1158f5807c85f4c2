package vm

import (
	"bufio"
	"io"
)

// keyboard status register: bit 15 set when KBDR holds a fresh key
const kbsrReady Word = 1 << 15

// Console is an LC-3 with memory, a one key keyboard latch and a character
// output stream. It is the Bus of its own CPU, so the keyboard registers
// are serviced without the CPU knowing about them.
type Console struct {
	*CPU

	memory Memory
	key    Word
	hasKey bool
	out    *bufio.Writer
	err    error
}

// NewConsole returns a stopped console writing trap output to out.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = io.Discard
	}
	c := &Console{out: bufio.NewWriter(out)}
	c.CPU = NewCPU(c)
	return c
}

// ReadWord implements Bus. Reading KBSR latches a pending key into KBDR and
// consumes it; with no key pending KBSR reads as zero.
func (c *Console) ReadWord(addr Word) Word {
	if addr == KBSR {
		if c.hasKey {
			c.memory[KBSR] = kbsrReady
			c.memory[KBDR] = c.getKey()
		} else {
			c.memory[KBSR] = 0
		}
	}
	return c.memory[addr]
}

// WriteWord implements Bus.
func (c *Console) WriteWord(addr, value Word) {
	c.memory[addr] = value
}

// SetKey makes key available to the program, replacing any key that has
// not been read yet.
func (c *Console) SetKey(key Word) {
	c.key = key
	c.hasKey = true
}

// HasKey reports whether a key is waiting to be consumed.
func (c *Console) HasKey() bool { return c.hasKey }

func (c *Console) getKey() Word {
	key := c.key
	c.key = 0
	c.hasKey = false
	return key
}

// Load passes fill up to count words of memory starting at origin.
func (c *Console) Load(origin Word, count int, fill func(dst []Word) int) int {
	return c.memory.Load(origin, count, fill)
}

// Memory exposes the raw address space, bypassing the keyboard registers.
func (c *Console) Memory() *Memory { return &c.memory }

func (c *Console) IsRunning() bool { return c.state.IsRunning() }

func (c *Console) IsStopped() bool { return c.state.IsStopped() }

func (c *Console) IsTrapped() bool { return c.state.IsTrapped() }

// TrapNumber is the vector of the pending trap, if any.
func (c *Console) TrapNumber() Word { return c.state.TrapNumber() }

// Err returns the first error hit while writing trap output.
func (c *Console) Err() error { return c.err }

func (c *Console) write(p []byte) {
	if c.err != nil {
		return
	}
	if _, err := c.out.Write(p); err != nil {
		c.err = err
	}
}

func (c *Console) writeByte(b byte) {
	if c.err != nil {
		return
	}
	if err := c.out.WriteByte(b); err != nil {
		c.err = err
	}
}

func (c *Console) flush() {
	if c.err != nil {
		return
	}
	if err := c.out.Flush(); err != nil {
		c.err = err
	}
}
