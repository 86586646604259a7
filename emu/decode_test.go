package emu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// The encode helpers build instruction words from fields, the inverse of
// Decode. They are kept in instruction-set bit order so they double as
// format documentation.

func encodeRType(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return opcode | rd<<7 | funct3<<12 | rs1<<15 | rs2<<20 | funct7<<25
}

func encodeIType(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return opcode | rd<<7 | funct3<<12 | rs1<<15 | (uint32(imm)&0xFFF)<<20
}

func encodeSType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	i := uint32(imm)
	return opcode | (i&0x1F)<<7 | funct3<<12 | rs1<<15 | rs2<<20 | (i>>5&0x7F)<<25
}

func encodeBType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	i := uint32(imm)
	return opcode | (i>>11&0x1)<<7 | (i>>1&0xF)<<8 | funct3<<12 | rs1<<15 | rs2<<20 |
		(i>>5&0x3F)<<25 | (i>>12&0x1)<<31
}

func encodeUType(opcode, rd, imm20 uint32) uint32 {
	return opcode | rd<<7 | (imm20&0xFFFFF)<<12
}

func encodeJType(opcode, rd uint32, imm int32) uint32 {
	i := uint32(imm)
	return opcode | rd<<7 | (i>>12&0xFF)<<12 | (i>>11&0x1)<<20 | (i>>1&0x3FF)<<21 |
		(i>>20&0x1)<<31
}

func TestDecode(t *testing.T) {
	t.Run("addi", func(t *testing.T) {
		// addi x1, x2, 48
		inst := Decode(0x03010093)
		require.Equal(t, FormatI, inst.Format)
		require.Equal(t, uint32(0x13), inst.Opcode)
		require.Equal(t, uint32(1), inst.Rd)
		require.Equal(t, uint32(0), inst.Funct3)
		require.Equal(t, uint32(2), inst.Rs1)
		require.Equal(t, uint64(0x30), inst.Imm)
	})

	t.Run("negative i-immediate", func(t *testing.T) {
		// addi x14, x0, -8
		inst := Decode(0xFF800713)
		require.Equal(t, FormatI, inst.Format)
		require.Equal(t, uint64(0xFFFF_FFFF_FFFF_FFF8), inst.Imm)
	})

	t.Run("store", func(t *testing.T) {
		// sw x6, 0(x28)
		inst := Decode(0x006E2023)
		require.Equal(t, FormatS, inst.Format)
		require.Equal(t, uint32(0x23), inst.Opcode)
		require.Equal(t, uint32(2), inst.Funct3)
		require.Equal(t, uint32(28), inst.Rs1)
		require.Equal(t, uint32(6), inst.Rs2)
		require.Equal(t, uint64(0), inst.Imm)
	})

	t.Run("branch", func(t *testing.T) {
		// beq x0, x0, +42
		inst := Decode(0x02000563)
		require.Equal(t, FormatB, inst.Format)
		require.Equal(t, uint32(0), inst.Funct3)
		require.Equal(t, uint64(42), inst.Imm)
	})

	t.Run("upper immediate", func(t *testing.T) {
		// lui x10, 0x80000: bits 31:12 become the immediate, sign-extended
		// from bit 31
		inst := Decode(0x80000537)
		require.Equal(t, FormatU, inst.Format)
		require.Equal(t, uint32(10), inst.Rd)
		require.Equal(t, uint64(0xFFFF_FFFF_8000_0000), inst.Imm)
	})

	t.Run("jump", func(t *testing.T) {
		// jal x10, +42
		inst := Decode(0x02A0056F)
		require.Equal(t, FormatJ, inst.Format)
		require.Equal(t, uint32(10), inst.Rd)
		require.Equal(t, uint64(42), inst.Imm)
	})

	t.Run("register op", func(t *testing.T) {
		// sra x15, x14, x13
		inst := Decode(0x40D757B3)
		require.Equal(t, FormatR, inst.Format)
		require.Equal(t, uint32(15), inst.Rd)
		require.Equal(t, uint32(5), inst.Funct3)
		require.Equal(t, uint32(14), inst.Rs1)
		require.Equal(t, uint32(13), inst.Rs2)
		require.Equal(t, uint32(0x20), inst.Funct7)
		require.Equal(t, uint64(0), inst.Imm)
	})

	t.Run("unknown opcode", func(t *testing.T) {
		inst := Decode(0x0000_0000)
		require.Equal(t, FormatUnknown, inst.Format)
		require.Equal(t, uint64(0), inst.Imm)
	})
}

func TestDecodeRoundTrip(t *testing.T) {
	t.Run("i-type", func(t *testing.T) {
		for _, imm := range []int32{0, 1, -1, 42, -2048, 2047} {
			inst := Decode(encodeIType(0x13, 3, 7, 21, imm))
			require.Equal(t, FormatI, inst.Format)
			require.Equal(t, uint32(3), inst.Rd)
			require.Equal(t, uint32(7), inst.Funct3)
			require.Equal(t, uint32(21), inst.Rs1)
			require.Equal(t, uint64(int64(imm)), inst.Imm, "imm %d", imm)
		}
	})

	t.Run("s-type", func(t *testing.T) {
		for _, imm := range []int32{0, 1, -1, 42, -2048, 2047} {
			inst := Decode(encodeSType(0x23, 3, 21, 9, imm))
			require.Equal(t, FormatS, inst.Format)
			require.Equal(t, uint32(3), inst.Funct3)
			require.Equal(t, uint32(21), inst.Rs1)
			require.Equal(t, uint32(9), inst.Rs2)
			require.Equal(t, uint64(int64(imm)), inst.Imm, "imm %d", imm)
		}
	})

	t.Run("b-type", func(t *testing.T) {
		for _, imm := range []int32{0, 2, -2, 42, -4096, 4094} {
			inst := Decode(encodeBType(0x63, 6, 21, 9, imm))
			require.Equal(t, FormatB, inst.Format)
			require.Equal(t, uint32(6), inst.Funct3)
			require.Equal(t, uint32(21), inst.Rs1)
			require.Equal(t, uint32(9), inst.Rs2)
			require.Equal(t, uint64(int64(imm)), inst.Imm, "imm %d", imm)
		}
	})

	t.Run("u-type", func(t *testing.T) {
		for _, imm20 := range []uint32{0, 1, 42, 0x80000, 0xFFFFF} {
			inst := Decode(encodeUType(0x37, 3, imm20))
			require.Equal(t, FormatU, inst.Format)
			require.Equal(t, uint32(3), inst.Rd)
			require.Equal(t, signExtend64(uint64(imm20)<<12, 31), inst.Imm, "imm20 %#x", imm20)
		}
	})

	t.Run("j-type", func(t *testing.T) {
		for _, imm := range []int32{0, 2, -2, 42, -1048576, 1048574} {
			inst := Decode(encodeJType(0x6F, 3, imm))
			require.Equal(t, FormatJ, inst.Format)
			require.Equal(t, uint32(3), inst.Rd)
			require.Equal(t, uint64(int64(imm)), inst.Imm, "imm %d", imm)
		}
	})

	t.Run("r-type", func(t *testing.T) {
		inst := Decode(encodeRType(0x33, 1, 5, 2, 3, 0x20))
		require.Equal(t, FormatR, inst.Format)
		require.Equal(t, uint32(1), inst.Rd)
		require.Equal(t, uint32(5), inst.Funct3)
		require.Equal(t, uint32(2), inst.Rs1)
		require.Equal(t, uint32(3), inst.Rs2)
		require.Equal(t, uint32(0x20), inst.Funct7)
	})
}

func TestFormatString(t *testing.T) {
	names := map[Format]string{
		FormatR:       "R",
		FormatI:       "I",
		FormatS:       "S",
		FormatB:       "B",
		FormatU:       "U",
		FormatJ:       "J",
		FormatUnknown: "unknown",
	}
	for f, name := range names {
		require.Equal(t, name, f.String())
	}
}
