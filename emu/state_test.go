package emu

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obelisc/obelisc/riscv"
)

func TestNewVMState(t *testing.T) {
	code := []byte{0x93, 0x0F, 0xA0, 0x02} // addi t6, zero, 42
	state, err := NewVMState(code)
	require.NoError(t, err)

	require.Equal(t, MemoryBase, state.PC)
	require.Equal(t, uint64(4), state.CodeSize)
	require.False(t, state.Exited)
	require.Zero(t, state.Step)
	require.Equal(t, MemoryBase+MemorySize-4, state.Registers[2], "sp starts one word below the top of memory")
	for i, v := range state.Registers {
		if i == 2 {
			continue
		}
		require.Zero(t, v, "x%d", i)
	}

	word, err := state.Memory.Load(MemoryBase, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(0x02A00F93), word)
	require.Equal(t, uint32(0x02A00F93), state.Instr())
}

func TestNewVMStateSizeLimit(t *testing.T) {
	_, err := NewVMState(make([]byte, MemorySize+1))
	require.Error(t, err)

	state, err := NewVMState(make([]byte, MemorySize))
	require.NoError(t, err)
	require.Equal(t, MemorySize, state.CodeSize)
}

// testState builds a state with every field populated, so round-trip tests
// cannot pass by accident.
func testState(t *testing.T) *VMState {
	t.Helper()
	state, err := NewVMState([]byte{0x93, 0x0F, 0xA0, 0x02})
	require.NoError(t, err)
	state.PC = MemoryBase + 4
	state.Step = 999
	state.Exited = true
	state.Registers[1] = 0xDEADBEEF
	state.Registers[31] = ^uint64(0)
	state.CSR.Store(riscv.Mstatus, 0x2A)
	state.CSR.Store(riscv.Mscratch, 0x123456789ABCDEF0)
	require.NoError(t, state.Memory.Store(MemoryBase+MemorySize-8, 8, 0x1122334455667788))
	return state
}

func TestStateJSONRoundTrip(t *testing.T) {
	state := testState(t)

	out, err := json.Marshal(state)
	require.NoError(t, err)

	var state2 VMState
	require.NoError(t, json.Unmarshal(out, &state2))
	require.Equal(t, state, &state2)
}

func TestSerializeStateRoundTrip(t *testing.T) {
	state := testState(t)

	var buf bytes.Buffer
	require.NoError(t, state.Serialize(&buf))

	var state2 VMState
	require.NoError(t, state2.Deserialize(&buf))
	require.Equal(t, state, &state2)
}

func TestStateFileRoundTrip(t *testing.T) {
	state := testState(t)
	for _, name := range []string{"state.json", "state.json.gz", "state.bin", "state.bin.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteVMState(path, state))
			state2, err := LoadVMStateFromFile(path)
			require.NoError(t, err)
			require.Equal(t, state, state2)
		})
	}
}

func TestLoadVMStateFromFileErrors(t *testing.T) {
	_, err := LoadVMStateFromFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "corrupt.json.gz")
	require.NoError(t, os.WriteFile(path, []byte("not gzip"), 0644))
	_, err = LoadVMStateFromFile(path)
	require.Error(t, err)

	path = filepath.Join(t.TempDir(), "truncated.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0644))
	_, err = LoadVMStateFromFile(path)
	require.Error(t, err)
}
