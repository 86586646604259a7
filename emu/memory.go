package emu

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Guest RAM geometry. The image is mapped at MemoryBase and the machine owns
// MemorySize bytes from there; every access must fall entirely inside that
// window.
const (
	MemoryBase uint64 = 0x8000_0000
	MemorySize uint64 = 1 << 20

	// Pages only matter for serialization and diagnostics. Emulated
	// accesses are byte-granular and ignore page boundaries.
	PageAddrSize = 12
	PageSize     = 1 << PageAddrSize
	MaxPageCount = MemorySize / PageSize
)

var zeroPage [PageSize]byte

// Memory is the guest RAM: a flat little-endian byte buffer addressed from
// MemoryBase. The zero value is not usable, use NewMemory.
type Memory struct {
	data []byte
}

func NewMemory() *Memory {
	return &Memory{data: make([]byte, MemorySize)}
}

// inRange reports whether the span [addr, addr+size) lies inside guest RAM.
func (m *Memory) inRange(addr uint64, size uint64) bool {
	end := addr + size
	return addr >= MemoryBase && end <= MemoryBase+MemorySize && end >= addr
}

// Load reads a size-byte little-endian value at addr, zero-extended to 64
// bits. Size is in bytes and must be 1, 2, 4 or 8; addr may be unaligned.
func (m *Memory) Load(addr uint64, size uint64) (uint64, error) {
	if size != 1 && size != 2 && size != 4 && size != 8 {
		panic(fmt.Errorf("invalid load size: %d", size))
	}
	if !m.inRange(addr, size) {
		return 0, fmt.Errorf("%w: %d bytes at %#x", ErrLoadAccessFault, size, addr)
	}
	var buf [8]byte
	copy(buf[:], m.data[addr-MemoryBase:addr-MemoryBase+size])
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Store writes the low size bytes of v at addr, least significant byte
// first. Size is in bytes and must be 1, 2, 4 or 8; addr may be unaligned.
func (m *Memory) Store(addr uint64, size uint64, v uint64) error {
	if size != 1 && size != 2 && size != 4 && size != 8 {
		panic(fmt.Errorf("invalid store size: %d", size))
	}
	if !m.inRange(addr, size) {
		return fmt.Errorf("%w: %d bytes at %#x", ErrStoreAccessFault, size, addr)
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	copy(m.data[addr-MemoryBase:], buf[:size])
	return nil
}

// SetMemoryRange streams the reader's bytes into guest RAM starting at addr,
// faulting if the data runs past the end of the window.
func (m *Memory) SetMemoryRange(addr uint64, r io.Reader) error {
	if addr < MemoryBase || addr > MemoryBase+MemorySize {
		return fmt.Errorf("%w: range start %#x", ErrStoreAccessFault, addr)
	}
	offset := addr - MemoryBase
	for {
		if offset == MemorySize {
			var probe [1]byte
			n, err := r.Read(probe[:])
			if n > 0 {
				return fmt.Errorf("%w: data exceeds end of memory at %#x", ErrStoreAccessFault, MemoryBase+MemorySize)
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			continue
		}
		n, err := r.Read(m.data[offset:])
		offset += uint64(n)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

type memReader struct {
	m     *Memory
	addr  uint64
	count uint64
}

func (r *memReader) Read(dest []byte) (n int, err error) {
	if r.count == 0 {
		return 0, io.EOF
	}
	if uint64(len(dest)) > r.count {
		dest = dest[:r.count]
	}
	switch {
	case r.addr < MemoryBase:
		gap := MemoryBase - r.addr
		if uint64(len(dest)) > gap {
			dest = dest[:gap]
		}
		for i := range dest {
			dest[i] = 0
		}
		n = len(dest)
	case r.addr >= MemoryBase+MemorySize:
		for i := range dest {
			dest[i] = 0
		}
		n = len(dest)
	default:
		n = copy(dest, r.m.data[r.addr-MemoryBase:])
	}
	r.addr += uint64(n)
	r.count -= uint64(n)
	return n, nil
}

// ReadMemoryRange returns a reader over count bytes of memory starting at
// addr. Anything outside the mapped window reads as zeroes.
func (m *Memory) ReadMemoryRange(addr uint64, count uint64) io.Reader {
	return &memReader{m: m, addr: addr, count: count}
}

// PageCount counts the pages that hold at least one non-zero byte.
func (m *Memory) PageCount() uint64 {
	count := uint64(0)
	for i := uint64(0); i < MemorySize; i += PageSize {
		if !bytes.Equal(m.data[i:i+PageSize], zeroPage[:]) {
			count++
		}
	}
	return count
}

// Usage returns a human-readable amount of touched guest memory.
func (m *Memory) Usage() string {
	total := m.PageCount() * PageSize
	const unit = 1024
	if total < unit {
		return fmt.Sprintf("%d B", total)
	}
	div, exp := uint64(unit), 0
	for n := total / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	// KiB, MiB, GiB, TiB, ...
	return fmt.Sprintf("%.1f %ciB", float64(total)/float64(div), "KMGTPE"[exp])
}

type pageEntry struct {
	Index uint64        `json:"index"`
	Data  hexutil.Bytes `json:"data"`
}

// MarshalJSON encodes only the non-zero pages, in ascending page order.
func (m *Memory) MarshalJSON() ([]byte, error) {
	pages := make([]pageEntry, 0)
	for i := uint64(0); i < MemorySize; i += PageSize {
		page := m.data[i : i+PageSize]
		if bytes.Equal(page, zeroPage[:]) {
			continue
		}
		pages = append(pages, pageEntry{Index: i >> PageAddrSize, Data: bytes.Clone(page)})
	}
	return json.Marshal(pages)
}

func (m *Memory) UnmarshalJSON(data []byte) error {
	var pages []pageEntry
	if err := json.Unmarshal(data, &pages); err != nil {
		return err
	}
	m.data = make([]byte, MemorySize)
	for i, p := range pages {
		if p.Index >= MaxPageCount {
			return fmt.Errorf("page entry %d out of range, page index %d", i, p.Index)
		}
		if uint64(len(p.Data)) > PageSize {
			return fmt.Errorf("page entry %d too large: %d bytes", i, len(p.Data))
		}
		copy(m.data[p.Index<<PageAddrSize:], p.Data)
	}
	return nil
}

// Serialize writes the memory in a simple binary format which can be read
// again using Deserialize. The format is a big-endian page count followed by
// (page index, page data) records for each non-zero page, in ascending page
// order.
func (m *Memory) Serialize(out io.Writer) error {
	if err := binary.Write(out, binary.BigEndian, m.PageCount()); err != nil {
		return err
	}
	for i := uint64(0); i < MemorySize; i += PageSize {
		page := m.data[i : i+PageSize]
		if bytes.Equal(page, zeroPage[:]) {
			continue
		}
		if err := binary.Write(out, binary.BigEndian, i>>PageAddrSize); err != nil {
			return err
		}
		if _, err := out.Write(page); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Deserialize(in io.Reader) error {
	m.data = make([]byte, MemorySize)
	var pageCount uint64
	if err := binary.Read(in, binary.BigEndian, &pageCount); err != nil {
		return err
	}
	for i := uint64(0); i < pageCount; i++ {
		var pageIndex uint64
		if err := binary.Read(in, binary.BigEndian, &pageIndex); err != nil {
			return err
		}
		if pageIndex >= MaxPageCount {
			return fmt.Errorf("memory page %d out of range, page index %d", i, pageIndex)
		}
		dest := m.data[pageIndex<<PageAddrSize : (pageIndex+1)<<PageAddrSize]
		if _, err := io.ReadFull(in, dest); err != nil {
			return err
		}
	}
	return nil
}
