package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func program(words ...Word) ImageLoader {
	return func(m *Machine) error {
		m.Load(UserSpaceStart, len(words), func(dst []Word) int {
			return copy(dst, words)
		})
		return nil
	}
}

func newTestMachine(t *testing.T, words ...Word) (*Machine, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	m := NewMachine(0, Config{Output: &out})
	require.NoError(t, program(words...)(m))
	m.Reset()
	return m, &out
}

func TestDecodeImage(t *testing.T) {
	origin, words, err := DecodeImage([]byte{0x30, 0x00, 0xF0, 0x25, 0x12, 0x34, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, Word(0x3000), origin)
	assert.Equal(t, []Word{0xF025, 0x1234}, words)
}

func TestDecodeImageTooShort(t *testing.T) {
	for _, image := range [][]byte{nil, {0x30}} {
		_, _, err := DecodeImage(image)
		assert.ErrorIs(t, err, ErrImageTooShort, "%x", image)
	}
}

func TestDecodeImageOriginOnly(t *testing.T) {
	for _, image := range [][]byte{{0x40, 0x00}, {0x40, 0x00, 0xF0}} {
		origin, words, err := DecodeImage(image)
		require.NoError(t, err, "%x", image)
		assert.Equal(t, Word(0x4000), origin)
		assert.Empty(t, words)
	}
}

func TestLoadImageOriginOnly(t *testing.T) {
	m := NewMachine(0, Config{})
	require.NoError(t, m.LoadImage(bytes.NewReader([]byte{0x30, 0x00})))
	assert.Equal(t, Word(0), m.Console().Memory()[0x3000])
}

func TestLoadImageRunsToHalt(t *testing.T) {
	var out bytes.Buffer
	m := NewMachine(0, Config{Output: &out})
	require.NoError(t, m.LoadImage(bytes.NewReader([]byte{0x30, 0x00, 0xF0, 0x25})))

	m.Reset()
	state := m.Console().RunFor(1)
	assert.Equal(t, Trapped(0x25), state)

	state = m.Console().Trap(state.TrapNumber())
	assert.True(t, state.IsStopped())
	assert.Equal(t, "HALT\n", out.String())
}

func TestLoadImageClipsAtEndOfMemory(t *testing.T) {
	m := NewMachine(0, Config{})
	image := []byte{0xFF, 0xFE, 0x00, 0x01, 0x00, 0x02, 0x00, 0x03}
	require.NoError(t, m.LoadImage(bytes.NewReader(image)))

	mem := m.Console().Memory()
	assert.Equal(t, Word(1), mem[0xFFFE])
	assert.Equal(t, Word(2), mem[0xFFFF])
	assert.Equal(t, Word(0), mem[0x0000])
}

func TestLoadImageRejectsShortImage(t *testing.T) {
	m := NewMachine(0, Config{})
	err := m.LoadImage(strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrImageTooShort)
}

func TestLoadClipsCount(t *testing.T) {
	var mem Memory
	var got int
	n := mem.Load(0xFFF0, 100, func(dst []Word) int {
		got = len(dst)
		return len(dst)
	})
	assert.Equal(t, 16, got)
	assert.Equal(t, 16, n)

	called := false
	assert.Equal(t, 0, mem.Load(0x3000, 0, func([]Word) int { called = true; return 0 }))
	assert.False(t, called)
}

func TestTickBlocksOnInput(t *testing.T) {
	m, out := newTestMachine(t, 0xF020, 0xF025) // GETC; HALT

	assert.True(t, m.Tick())
	assert.Equal(t, Trapped(TRAP_GETC), m.State())
	assert.Equal(t, BlockedOnInput, m.Blocked())

	// nothing happens while blocked, even with a key waiting
	m.SetKey('a')
	assert.True(t, m.Tick())
	assert.Equal(t, Trapped(TRAP_GETC), m.State())
	assert.True(t, m.Console().HasKey())

	m.ClearBlocked(BlockedOnInput)
	assert.True(t, m.Tick())
	assert.Equal(t, Word('a'), m.Console().Reg(R0))
	assert.Equal(t, Trapped(TRAP_HALT), m.State())
	assert.False(t, m.IsBlocked(), "HALT needs no console resource")

	assert.False(t, m.Tick())
	assert.True(t, m.State().IsStopped())
	assert.Equal(t, "HALT\n", out.String())

	assert.False(t, m.Tick())
}

func TestTickBlocksOnOutput(t *testing.T) {
	for _, trap := range []Word{TRAP_OUT, TRAP_PUTS, TRAP_PUTSP} {
		m, out := newTestMachine(t, 0xF000|trap, 0xF025)
		m.Console().Memory()[0x4000] = 'A'
		m.Console().SetReg(R0, 0x4000)

		assert.True(t, m.Tick())
		assert.Equal(t, BlockedOnOutput, m.Blocked(), "trap %#02x", trap)
		assert.True(t, m.Tick())
		assert.Empty(t, out.String())

		m.ClearBlocked(BlockedOnOutput)
		assert.True(t, m.Tick())
		assert.Equal(t, Trapped(TRAP_HALT), m.State())
		assert.NotEmpty(t, out.String())
	}
}

func TestTickInBlocksOnInput(t *testing.T) {
	m, _ := newTestMachine(t, 0xF023)
	m.Tick()
	assert.Equal(t, BlockedOnInput, m.Blocked())
}

func TestTickUnknownTrapDoesNotBlock(t *testing.T) {
	m, _ := newTestMachine(t, 0xF0FF, 0xF025)

	assert.True(t, m.Tick())
	assert.Equal(t, Trapped(0xFF), m.State())
	assert.False(t, m.IsBlocked())

	assert.True(t, m.Tick())
	assert.Equal(t, Trapped(TRAP_HALT), m.State())
}

func TestTickQuota(t *testing.T) {
	var out bytes.Buffer
	m := NewMachine(0, Config{Output: &out, Quota: 3})
	require.NoError(t, program(0x1021, 0x0FFE)(m)) // loop: ADD R0,R0,#1; BR loop
	m.Reset()

	assert.True(t, m.Tick())
	assert.True(t, m.State().IsRunning())
	assert.Equal(t, Word(2), m.Console().Reg(R0))
	assert.Equal(t, Word(0x3001), m.Console().PC())
}

func TestTickStoppedOnReservedOpcode(t *testing.T) {
	m, _ := newTestMachine(t, 0xD000)
	assert.False(t, m.Tick())
	assert.True(t, m.State().IsStopped())
}

func TestResetClearsBlocked(t *testing.T) {
	m, _ := newTestMachine(t, 0xF020)
	m.Tick()
	require.True(t, m.IsBlocked())

	m.Reset()
	assert.False(t, m.IsBlocked())
	assert.True(t, m.State().IsRunning())
	assert.Equal(t, PCStart, m.Console().PC())
}

func TestBlockedFlagsAreIndependent(t *testing.T) {
	m, _ := newTestMachine(t)
	m.SetBlocked(BlockedOnInput | BlockedOnOutput)
	m.ClearBlocked(BlockedOnInput)
	assert.Equal(t, BlockedOnOutput, m.Blocked())
	m.ClearBlocked(BlockedOnOutput)
	assert.False(t, m.IsBlocked())
}
