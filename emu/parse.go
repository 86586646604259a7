package emu

// Instruction word field extraction. Bit layouts follow the six RISC-V base
// instruction formats; immediates come out fully sign-extended to 64 bits.

func parseOpcode(word uint32) uint32 { return word & 0x7F }

func parseRd(word uint32) uint32 { return (word >> 7) & 0x1F }

func parseFunct3(word uint32) uint32 { return (word >> 12) & 0x7 }

func parseRs1(word uint32) uint32 { return (word >> 15) & 0x1F }

func parseRs2(word uint32) uint32 { return (word >> 20) & 0x1F }

func parseFunct7(word uint32) uint32 { return word >> 25 }

// parseCSR returns the CSR address from the top 12 bits, zero-extended.
func parseCSR(word uint32) uint64 { return uint64(word >> 20) }

func parseImmTypeI(word uint32) uint64 {
	return signExtend64(uint64(word>>20), 11)
}

func parseImmTypeS(word uint32) uint64 {
	imm := uint64(word>>25)<<5 | uint64((word>>7)&0x1F)
	return signExtend64(imm, 11)
}

func parseImmTypeB(word uint32) uint64 {
	imm := uint64((word>>8)&0xF)<<1 |
		uint64((word>>25)&0x3F)<<5 |
		uint64((word>>7)&0x1)<<11 |
		uint64(word>>31)<<12
	return signExtend64(imm, 12)
}

func parseImmTypeU(word uint32) uint64 {
	return signExtend64(uint64(word&0xFFFF_F000), 31)
}

func parseImmTypeJ(word uint32) uint64 {
	imm := uint64((word>>21)&0x3FF)<<1 |
		uint64((word>>20)&0x1)<<11 |
		uint64((word>>12)&0xFF)<<12 |
		uint64(word>>31)<<20
	return signExtend64(imm, 20)
}

// signExtend64 turns v into a 64-bit two's complement value, treating the
// given bit index as the sign bit.
func signExtend64(v uint64, bit uint) uint64 {
	return uint64(int64(v<<(63-bit)) >> (63 - bit))
}

// mask32Signed64 truncates v to its low 32 bits and sign-extends the result.
func mask32Signed64(v uint64) uint64 {
	return signExtend64(v&0xFFFF_FFFF, 31)
}
