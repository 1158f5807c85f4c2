package vm

const (
	TRAP_GETC  Word = 0x20 /* get character from keyboard, not echoed onto the terminal */
	TRAP_OUT   Word = 0x21 /* output a character */
	TRAP_PUTS  Word = 0x22 /* output a word string */
	TRAP_IN    Word = 0x23 /* get character from keyboard, echoed onto the terminal */
	TRAP_PUTSP Word = 0x24 /* output a byte string */
	TRAP_HALT  Word = 0x25 /* halt the program */
)

const inPrompt = "Enter a character: "

// Trap services the trap the CPU is suspended on and returns the new
// state: Stopped after HALT, Running otherwise. Unknown vectors are
// ignored. Output producing traps flush before returning. A stopped
// console stays stopped.
func (c *Console) Trap(trap Word) State {
	if c.state.IsStopped() {
		return c.state
	}
	c.setState(Running())

	switch trap & 0xFF {
	case TRAP_GETC:
		c.regs[R0] = c.getKey() & 0xFF
		c.updateFlags(R0)

	case TRAP_OUT:
		c.writeByte(byte(c.regs[R0]))
		c.flush()

	case TRAP_PUTS:
		/* one char per word */
		for n, addr := 0, c.regs[R0]; n < MemorySize && c.memory[addr] != 0; n, addr = n+1, addr+1 {
			c.writeByte(byte(c.memory[addr]))
		}
		c.flush()

	case TRAP_IN:
		c.write([]byte(inPrompt))
		key := byte(c.getKey())
		c.writeByte(key)
		c.flush()

		c.regs[R0] = Word(key)
		c.updateFlags(R0)

	case TRAP_PUTSP:
		/* two chars per word, low byte first */
		for n, addr := 0, c.regs[R0]; n < MemorySize && c.memory[addr] != 0; n, addr = n+1, addr+1 {
			w := c.memory[addr]
			c.writeByte(byte(w))
			if w>>8 != 0 {
				c.writeByte(byte(w >> 8))
			}
		}
		c.flush()

	case TRAP_HALT:
		c.write([]byte("HALT\n"))
		c.flush()
		c.setState(Stopped())

	default:
		c.logf("0x%04x TRAP: unknown vector 0x%02x ignored", c.pc, trap&0xFF)
	}

	return c.state
}

// needs reports which console resource a trap waits on.
func needs(trap Word) BlockFlags {
	switch trap & 0xFF {
	case TRAP_GETC, TRAP_IN:
		return BlockedOnInput
	case TRAP_OUT, TRAP_PUTS, TRAP_PUTSP:
		return BlockedOnOutput
	}
	return 0
}
