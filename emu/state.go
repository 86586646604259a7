package emu

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// VMState is the complete machine state: guest memory, program counter,
// register file and CSR bank, plus the bookkeeping the run loop needs.
type VMState struct {
	Memory *Memory `json:"memory"`

	PC uint64 `json:"pc"`

	// CodeSize is the byte length of the loaded image. Execution stops as
	// soon as PC leaves [MemoryBase, MemoryBase+CodeSize).
	CodeSize uint64 `json:"codeSize"`

	Exited bool `json:"exited"`

	Step uint64 `json:"step"`

	Registers [32]uint64 `json:"registers"`

	CSR *CSRFile `json:"csr"`
}

// NewVMState maps the code image at MemoryBase and prepares the initial
// machine: pc at the image start, sp one word below the top of guest RAM,
// everything else zero.
func NewVMState(code []byte) (*VMState, error) {
	if uint64(len(code)) > MemorySize {
		return nil, fmt.Errorf("code image of %d bytes exceeds %d bytes of guest memory", len(code), MemorySize)
	}
	state := &VMState{
		Memory:   NewMemory(),
		CSR:      NewCSRFile(),
		PC:       MemoryBase,
		CodeSize: uint64(len(code)),
	}
	if err := state.Memory.SetMemoryRange(MemoryBase, bytes.NewReader(code)); err != nil {
		return nil, err
	}
	state.Registers[2] = MemoryBase + MemorySize - 4 // sp
	return state, nil
}

func (s *VMState) loadRegister(reg uint32) uint64 {
	return s.Registers[reg]
}

// writeRegister drops writes to x0, which is hardwired to zero.
func (s *VMState) writeRegister(reg uint32, v uint64) {
	if reg == 0 {
		return
	}
	s.Registers[reg] = v
}

func (s *VMState) loadMem(addr uint64, size uint64, signed bool) (uint64, error) {
	v, err := s.Memory.Load(addr, size)
	if err != nil {
		return 0, err
	}
	if signed {
		v = signExtend64(v, uint(size*8-1))
	}
	return v, nil
}

func (s *VMState) storeMem(addr uint64, size uint64, v uint64) error {
	return s.Memory.Store(addr, size, v)
}

// Instr returns the instruction word under the current PC, for diagnostics.
// Out-of-range PCs read as zero.
func (s *VMState) Instr() uint32 {
	v, err := s.Memory.Load(s.PC, 4)
	if err != nil {
		return 0
	}
	return uint32(v)
}

// Serialize writes the state in a simple binary format which can be read
// again using Deserialize. Scalar fields are written big-endian, followed by
// the CSR bank and the memory in their own serialization formats.
func (s *VMState) Serialize(out io.Writer) error {
	for _, v := range []uint64{s.PC, s.CodeSize, s.Step} {
		if err := binary.Write(out, binary.BigEndian, v); err != nil {
			return err
		}
	}
	exited := byte(0)
	if s.Exited {
		exited = 1
	}
	if _, err := out.Write([]byte{exited}); err != nil {
		return err
	}
	for _, r := range s.Registers {
		if err := binary.Write(out, binary.BigEndian, r); err != nil {
			return err
		}
	}
	if err := s.CSR.Serialize(out); err != nil {
		return err
	}
	return s.Memory.Serialize(out)
}

func (s *VMState) Deserialize(in io.Reader) error {
	for _, v := range []*uint64{&s.PC, &s.CodeSize, &s.Step} {
		if err := binary.Read(in, binary.BigEndian, v); err != nil {
			return err
		}
	}
	var exited [1]byte
	if _, err := io.ReadFull(in, exited[:]); err != nil {
		return err
	}
	switch exited[0] {
	case 0:
		s.Exited = false
	case 1:
		s.Exited = true
	default:
		return fmt.Errorf("invalid exited flag: %d", exited[0])
	}
	for i := range s.Registers {
		if err := binary.Read(in, binary.BigEndian, &s.Registers[i]); err != nil {
			return err
		}
	}
	s.CSR = NewCSRFile()
	if err := s.CSR.Deserialize(in); err != nil {
		return err
	}
	s.Memory = NewMemory()
	return s.Memory.Deserialize(in)
}

func isBinaryStateFile(path string) bool {
	return strings.HasSuffix(path, ".bin") || strings.HasSuffix(path, ".bin.gz")
}

// LoadVMStateFromFile reads a snapshot written by WriteVMState. The format
// follows the file name: .bin and .bin.gz hold the binary serialization,
// anything else is JSON, with transparent gzip decompression for .gz.
func LoadVMStateFromFile(path string) (*VMState, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state file %q: %w", path, err)
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read gzipped state file %q: %w", path, err)
		}
		defer gr.Close()
		r = gr
	}
	state := new(VMState)
	if isBinaryStateFile(path) {
		if err := state.Deserialize(r); err != nil {
			return nil, fmt.Errorf("invalid binary state file %q: %w", path, err)
		}
	} else {
		if err := json.NewDecoder(r).Decode(state); err != nil {
			return nil, fmt.Errorf("invalid JSON state file %q: %w", path, err)
		}
	}
	return state, nil
}

// WriteVMState writes the state to path, picking the format from the file
// name the same way LoadVMStateFromFile does.
func WriteVMState(path string, state *VMState) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open state file %q for writing: %w", path, err)
	}
	var w io.Writer = f
	var gw *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gw = gzip.NewWriter(f)
		w = gw
	}
	if isBinaryStateFile(path) {
		err = state.Serialize(w)
	} else {
		err = json.NewEncoder(w).Encode(state)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to write state to %q: %w", path, err)
	}
	if gw != nil {
		if err := gw.Close(); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}
