package emu

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/obelisc/obelisc/riscv"
)

// CSRFile is the 4096-entry control and status register bank. Three
// supervisor registers (sstatus, sie, sip) are aliases: they project a
// masked view of their machine-level backing register and own no storage of
// their own. Every other address is a plain 64-bit slot.
type CSRFile struct {
	regs [4096]uint64
}

func NewCSRFile() *CSRFile {
	return &CSRFile{}
}

// Load reads the CSR at addr. Only the low 12 bits of addr are significant.
func (c *CSRFile) Load(addr uint64) uint64 {
	addr &= 0xFFF
	switch addr {
	case riscv.Sstatus:
		return c.regs[riscv.Mstatus] & riscv.SstatusMask
	case riscv.Sie:
		return c.regs[riscv.Mie] & c.regs[riscv.Mideleg]
	case riscv.Sip:
		return c.regs[riscv.Mip] & c.regs[riscv.Mideleg]
	}
	return c.regs[addr]
}

// Store writes the CSR at addr. Writes through an alias only replace the
// masked bits of the backing register; the alias slot itself stays zero.
func (c *CSRFile) Store(addr uint64, v uint64) {
	addr &= 0xFFF
	switch addr {
	case riscv.Sstatus:
		c.regs[riscv.Mstatus] = c.regs[riscv.Mstatus]&^riscv.SstatusMask | v&riscv.SstatusMask
		return
	case riscv.Sie:
		mask := c.regs[riscv.Mideleg]
		c.regs[riscv.Mie] = c.regs[riscv.Mie]&^mask | v&mask
		return
	case riscv.Sip:
		mask := c.regs[riscv.Mideleg]
		c.regs[riscv.Mip] = c.regs[riscv.Mip]&^mask | v&mask
		return
	}
	c.regs[addr] = v
}

type csrEntry struct {
	Addr  uint64         `json:"addr"`
	Value hexutil.Uint64 `json:"value"`
}

// MarshalJSON encodes only the non-zero slots, in ascending address order.
func (c *CSRFile) MarshalJSON() ([]byte, error) {
	entries := make([]csrEntry, 0)
	for addr, v := range c.regs {
		if v != 0 {
			entries = append(entries, csrEntry{Addr: uint64(addr), Value: hexutil.Uint64(v)})
		}
	}
	return json.Marshal(entries)
}

func (c *CSRFile) UnmarshalJSON(data []byte) error {
	var entries []csrEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	c.regs = [4096]uint64{}
	for i, e := range entries {
		if e.Addr >= uint64(len(c.regs)) {
			return fmt.Errorf("csr entry %d out of range, addr %#x", i, e.Addr)
		}
		c.regs[e.Addr] = uint64(e.Value)
	}
	return nil
}

// Serialize writes the CSR bank in a simple binary format which can be read
// again using Deserialize. The format is a big-endian record count followed
// by (addr, value) records for each non-zero slot, in ascending address
// order.
func (c *CSRFile) Serialize(out io.Writer) error {
	count := uint64(0)
	for _, v := range c.regs {
		if v != 0 {
			count++
		}
	}
	if err := binary.Write(out, binary.BigEndian, count); err != nil {
		return err
	}
	for addr, v := range c.regs {
		if v == 0 {
			continue
		}
		if err := binary.Write(out, binary.BigEndian, uint64(addr)); err != nil {
			return err
		}
		if err := binary.Write(out, binary.BigEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func (c *CSRFile) Deserialize(in io.Reader) error {
	c.regs = [4096]uint64{}
	var count uint64
	if err := binary.Read(in, binary.BigEndian, &count); err != nil {
		return err
	}
	for i := uint64(0); i < count; i++ {
		var addr, v uint64
		if err := binary.Read(in, binary.BigEndian, &addr); err != nil {
			return err
		}
		if err := binary.Read(in, binary.BigEndian, &v); err != nil {
			return err
		}
		if addr >= uint64(len(c.regs)) {
			return fmt.Errorf("csr record %d out of range, addr %#x", i, addr)
		}
		c.regs[addr] = v
	}
	return nil
}
