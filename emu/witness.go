package emu

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// StateWitness is the canonical binary encoding of a VMState:
// keccak256(memory image), keccak256(csr image), then pc, code size, step,
// exited flag and the 32 registers, all big-endian.
type StateWitness []byte

const StateWitnessSize = 32 + 32 + 8 + 8 + 8 + 1 + 32*8

func (s *VMState) EncodeWitness() StateWitness {
	out := make([]byte, 0, StateWitnessSize)

	memRoot := crypto.Keccak256Hash(s.Memory.data)
	out = append(out, memRoot[:]...)

	csrImage := make([]byte, 0, len(s.CSR.regs)*8)
	for _, v := range s.CSR.regs {
		csrImage = binary.BigEndian.AppendUint64(csrImage, v)
	}
	csrRoot := crypto.Keccak256Hash(csrImage)
	out = append(out, csrRoot[:]...)

	out = binary.BigEndian.AppendUint64(out, s.PC)
	out = binary.BigEndian.AppendUint64(out, s.CodeSize)
	out = binary.BigEndian.AppendUint64(out, s.Step)
	if s.Exited {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	for _, r := range s.Registers {
		out = binary.BigEndian.AppendUint64(out, r)
	}
	return out
}

// StateHash condenses the witness into a single comparable digest.
func (sw StateWitness) StateHash() (common.Hash, error) {
	if len(sw) != StateWitnessSize {
		return common.Hash{}, fmt.Errorf("invalid witness length %d, expected %d", len(sw), StateWitnessSize)
	}
	return crypto.Keccak256Hash(sw), nil
}
