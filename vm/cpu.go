package vm

import (
	"log"
)

// Flag is one of the mutually exclusive condition codes.
type Flag Word

// general purpose registers
const (
	R0 = 0b000
	R1 = 0b001
	R2 = 0b010
	R3 = 0b011
	R4 = 0b100
	R5 = 0b101
	R6 = 0b110
	R7 = 0b111
)

// flags
const (
	FlagPos  Flag = 0b001
	FlagZero Flag = 0b010
	FlagNeg  Flag = 0b100
)

// opcodes
const (
	OP_BR Word = iota
	OP_ADD
	OP_LD
	OP_ST
	OP_JSR
	OP_AND
	OP_LDR
	OP_STR
	OP_RTI
	OP_NOT
	OP_LDI
	OP_STI
	OP_JMP
	OP_RES
	OP_LEA
	OP_TRAP
)

// PCStart is where Reset points the program counter.
const PCStart = UserSpaceStart

// CPU is the LC-3 decode/execute engine. It knows nothing about devices:
// every memory access goes through bus.
type CPU struct {
	bus   Bus
	state State
	pc    Word
	cond  Flag
	regs  [8]Word
	trace *log.Logger
}

// NewCPU returns a stopped CPU executing against bus. Call Reset before
// running it.
func NewCPU(bus Bus) *CPU {
	return &CPU{bus: bus, pc: PCStart}
}

// SetTrace logs every decoded instruction to l. A nil l disables tracing.
func (cpu *CPU) SetTrace(l *log.Logger) {
	cpu.trace = l
}

// Reset is a warm reset: PC back to the start of user space, registers and
// flags cleared, state Running.
func (cpu *CPU) Reset() {
	cpu.pc = PCStart
	cpu.cond = 0
	cpu.regs = [8]Word{}
	cpu.state = Running()
}

func (cpu *CPU) State() State { return cpu.state }

func (cpu *CPU) setState(s State) { cpu.state = s }

func (cpu *CPU) PC() Word { return cpu.pc }

func (cpu *CPU) SetPC(pc Word) { cpu.pc = pc }

func (cpu *CPU) Cond() Flag { return cpu.cond }

func (cpu *CPU) Reg(r int) Word { return cpu.regs[r&0b111] }

func (cpu *CPU) SetReg(r int, value Word) { cpu.regs[r&0b111] = value }

// RunFor executes up to ticks instructions, or without limit when ticks is
// negative, for as long as the CPU is Running. One tick is one instruction.
func (cpu *CPU) RunFor(ticks int) State {
	for cpu.state.IsRunning() && ticks != 0 {
		if ticks > 0 {
			ticks--
		}
		instruction := cpu.bus.ReadWord(cpu.pc)
		cpu.pc++
		cpu.decodeAndExecuteInstruction(instruction)
	}
	return cpu.state
}

func (cpu *CPU) decodeAndExecuteInstruction(instruction Word) {
	op := instruction >> 12

	switch op {
	case OP_ADD:
		dr := regDR(instruction)
		sr1 := regBase(instruction)

		if isImmediate(instruction) {
			imm5 := instruction & 0x1F
			cpu.logf("0x%04x ADD: dr=%03b sr1=%03b imm5=0x%02x", cpu.pc, dr, sr1, imm5)
			cpu.regs[dr] = cpu.regs[sr1] + signExtend(imm5, 5)
		} else {
			sr2 := instruction & 0b111
			cpu.logf("0x%04x ADD: dr=%03b sr1=%03b sr2=%03b", cpu.pc, dr, sr1, sr2)
			cpu.regs[dr] = cpu.regs[sr1] + cpu.regs[sr2]
		}

		cpu.updateFlags(dr)

	case OP_AND:
		dr := regDR(instruction)
		sr1 := regBase(instruction)

		if isImmediate(instruction) {
			imm5 := instruction & 0x1F
			cpu.logf("0x%04x AND: dr=%03b sr1=%03b imm5=0x%02x", cpu.pc, dr, sr1, imm5)
			cpu.regs[dr] = cpu.regs[sr1] & signExtend(imm5, 5)
		} else {
			sr2 := instruction & 0b111
			cpu.logf("0x%04x AND: dr=%03b sr1=%03b sr2=%03b", cpu.pc, dr, sr1, sr2)
			cpu.regs[dr] = cpu.regs[sr1] & cpu.regs[sr2]
		}

		cpu.updateFlags(dr)

	case OP_NOT:
		dr := regDR(instruction)
		sr := regBase(instruction)

		cpu.logf("0x%04x NOT: dr=%03b sr=%03b", cpu.pc, dr, sr)

		cpu.regs[dr] = ^cpu.regs[sr]
		cpu.updateFlags(dr)

	case OP_BR:
		nzp := (instruction >> 9) & 0b111
		pcoffset9 := instruction & 0x1FF

		cpu.logf("0x%04x BR: nzp=%03b pcoffset9=0x%03x", cpu.pc, nzp, pcoffset9)

		// an empty condition field is an unconditional branch
		if nzp == 0 || nzp&Word(cpu.cond) != 0 {
			cpu.pc += signExtend(pcoffset9, 9)
		}

	case OP_JMP:
		br := regBase(instruction)

		cpu.logf("0x%04x JMP: br=%03b", cpu.pc, br)

		cpu.pc = cpu.regs[br]

	case OP_JSR:
		// R7 is written first, so JSRR R7 lands right after itself
		cpu.regs[R7] = cpu.pc

		if (instruction>>11)&0b1 == 1 {
			pcoffset11 := instruction & 0x7FF
			cpu.logf("0x%04x JSR: pcoffset11=0x%03x", cpu.pc, pcoffset11)
			cpu.pc += signExtend(pcoffset11, 11)
		} else {
			cpu.logf("0x%04x JSRR: br=%03b", cpu.pc, regBase(instruction))
			cpu.pc = cpu.regs[regBase(instruction)]
		}

	case OP_LD:
		dr := regDR(instruction)
		pcoffset9 := instruction & 0x1FF

		cpu.logf("0x%04x LD: dr=%03b pcoffset9=0x%03x", cpu.pc, dr, pcoffset9)

		cpu.regs[dr] = cpu.bus.ReadWord(cpu.pc + signExtend(pcoffset9, 9))
		cpu.updateFlags(dr)

	case OP_LDI:
		dr := regDR(instruction)
		pcoffset9 := instruction & 0x1FF

		cpu.logf("0x%04x LDI: dr=%03b pcoffset9=0x%03x", cpu.pc, dr, pcoffset9)

		cpu.regs[dr] = cpu.bus.ReadWord(cpu.bus.ReadWord(cpu.pc + signExtend(pcoffset9, 9)))
		cpu.updateFlags(dr)

	case OP_LDR:
		dr := regDR(instruction)
		br := regBase(instruction)
		offset6 := instruction & 0x3F

		cpu.logf("0x%04x LDR: dr=%03b br=%03b offset6=0x%02x", cpu.pc, dr, br, offset6)

		cpu.regs[dr] = cpu.bus.ReadWord(cpu.regs[br] + signExtend(offset6, 6))
		cpu.updateFlags(dr)

	case OP_LEA:
		dr := regDR(instruction)
		pcoffset9 := instruction & 0x1FF

		cpu.logf("0x%04x LEA: dr=%03b pcoffset9=0x%03x", cpu.pc, dr, pcoffset9)

		cpu.regs[dr] = cpu.pc + signExtend(pcoffset9, 9)
		cpu.updateFlags(dr)

	case OP_ST:
		sr := regDR(instruction)
		pcoffset9 := instruction & 0x1FF

		cpu.logf("0x%04x ST: sr=%03b pcoffset9=0x%03x", cpu.pc, sr, pcoffset9)

		cpu.bus.WriteWord(cpu.pc+signExtend(pcoffset9, 9), cpu.regs[sr])

	case OP_STI:
		sr := regDR(instruction)
		pcoffset9 := instruction & 0x1FF

		cpu.logf("0x%04x STI: sr=%03b pcoffset9=0x%03x", cpu.pc, sr, pcoffset9)

		cpu.bus.WriteWord(cpu.bus.ReadWord(cpu.pc+signExtend(pcoffset9, 9)), cpu.regs[sr])

	case OP_STR:
		sr := regDR(instruction)
		br := regBase(instruction)
		offset6 := instruction & 0x3F

		cpu.logf("0x%04x STR: sr=%03b br=%03b offset6=0x%02x", cpu.pc, sr, br, offset6)

		cpu.bus.WriteWord(cpu.regs[br]+signExtend(offset6, 6), cpu.regs[sr])

	case OP_TRAP:
		cpu.logf("0x%04x TRAP: 0x%02x", cpu.pc, instruction&0xFF)

		cpu.state = Trapped(instruction)

	default:
		// OP_RTI and OP_RES
		cpu.logf("0x%04x %s: stopping", cpu.pc, opName(op))

		cpu.state = Stopped()
	}
}

func (cpu *CPU) updateFlags(r Word) {
	if cpu.regs[r] == 0 {
		cpu.cond = FlagZero
	} else if cpu.regs[r]>>15 != 0 {
		cpu.cond = FlagNeg
	} else {
		cpu.cond = FlagPos
	}
}

func (cpu *CPU) logf(format string, args ...any) {
	if cpu.trace != nil {
		cpu.trace.Printf(format, args...)
	}
}

func regDR(instruction Word) Word { return (instruction >> 9) & 0b111 }

func regBase(instruction Word) Word { return (instruction >> 6) & 0b111 }

func isImmediate(instruction Word) bool { return (instruction>>5)&0b1 == 1 }

// sign extend
func signExtend(x Word, bitCount uint) Word {
	if (x>>(bitCount-1))&0b1 != 0 {
		x |= 0xFFFF << bitCount
	}
	return x
}

func opName(op Word) string {
	if op == OP_RTI {
		return "RTI"
	}
	return "RES"
}
