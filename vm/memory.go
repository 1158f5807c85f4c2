package vm

// Word is the 16-bit unit of LC-3 memory and registers.
type Word uint16

const MemorySize = 1 << 16

// memory map
const (
	TrapVectorTableStart       Word = 0x0000
	InterruptVectorTableStart  Word = 0x0100
	SystemSpaceStart           Word = 0x0200
	UserSpaceStart             Word = 0x3000
	MemoryMappedRegistersStart Word = 0xFE00
)

// memory mapped register addresses
const (
	KBSR = MemoryMappedRegistersStart          /* keyboard status register */
	KBDR = MemoryMappedRegistersStart + 0x0002 /* keyboard data register */
)

// Bus is the memory capability the CPU executes against. Implementations
// may intercept device addresses.
type Bus interface {
	ReadWord(addr Word) Word
	WriteWord(addr, value Word)
}

// Memory is the whole word-addressed LC-3 address space. Every Word is a
// valid index, so accesses never fail.
type Memory [MemorySize]Word

func (mem *Memory) ReadWord(addr Word) Word {
	return mem[addr]
}

func (mem *Memory) WriteWord(addr, value Word) {
	mem[addr] = value
}

// Load passes fill the range of at most count words starting at origin,
// clipped to the end of memory. fill returns how many words it wrote.
func (mem *Memory) Load(origin Word, count int, fill func(dst []Word) int) int {
	if count <= 0 || fill == nil {
		return 0
	}
	end := int(origin) + count
	if end > MemorySize {
		end = MemorySize
	}
	return fill(mem[origin:end])
}
