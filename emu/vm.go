package emu

import (
	"fmt"
)

func illegalInstruction(word uint32) error {
	return fmt.Errorf("%w: %08x", ErrIllegalInstruction, word)
}

func boolToU64(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// Step executes a single instruction: fetch at pc, decode, dispatch.
// Execution ends once pc leaves the code window, which flips Exited and
// makes further calls no-ops. Faults surface as wrapped sentinel errors and
// leave the state exactly as it was when the fault was raised.
func Step(s *VMState) error {
	if s.Exited {
		return nil
	}
	pc := s.PC
	if pc < MemoryBase || pc >= MemoryBase+s.CodeSize {
		s.Exited = true
		return nil
	}

	word, err := s.Memory.Load(pc, 4)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	w := uint32(word)
	inst := Decode(w)

	switch inst.Opcode {
	case 0x03: // 000_0011: memory loading
		// LB, LH, LW, LD, LBU, LHU, LWU
		if inst.Funct3 == 7 {
			return illegalInstruction(w)
		}
		signed := inst.Funct3&4 == 0
		size := uint64(1) << (inst.Funct3 & 3)
		addr := s.loadRegister(inst.Rs1) + inst.Imm
		v, err := s.loadMem(addr, size, signed)
		if err != nil {
			return err
		}
		s.writeRegister(inst.Rd, v)
		s.PC = pc + 4

	case 0x23: // 010_0011: memory storing
		// SB, SH, SW, SD
		if inst.Funct3 > 3 {
			return illegalInstruction(w)
		}
		size := uint64(1) << inst.Funct3
		addr := s.loadRegister(inst.Rs1) + inst.Imm
		if err := s.storeMem(addr, size, s.loadRegister(inst.Rs2)); err != nil {
			return err
		}
		s.PC = pc + 4

	case 0x63: // 110_0011: branching
		rs1Value := s.loadRegister(inst.Rs1)
		rs2Value := s.loadRegister(inst.Rs2)
		var branchHit bool
		switch inst.Funct3 {
		case 0: // 000 = BEQ
			branchHit = rs1Value == rs2Value
		case 1: // 001 = BNE
			branchHit = rs1Value != rs2Value
		case 4: // 100 = BLT
			branchHit = int64(rs1Value) < int64(rs2Value)
		case 5: // 101 = BGE
			branchHit = int64(rs1Value) >= int64(rs2Value)
		case 6: // 110 = BLTU
			branchHit = rs1Value < rs2Value
		case 7: // 111 = BGEU
			branchHit = rs1Value >= rs2Value
		default:
			return illegalInstruction(w)
		}
		if branchHit {
			s.PC = pc + inst.Imm
		} else {
			s.PC = pc + 4
		}

	case 0x13: // 001_0011: immediate arithmetic and logic
		rs1Value := s.loadRegister(inst.Rs1)
		imm := inst.Imm
		var rdValue uint64
		switch inst.Funct3 {
		case 0: // 000 = ADDI
			rdValue = rs1Value + imm
		case 1: // 001 = SLLI
			if imm>>6 != 0 {
				return illegalInstruction(w)
			}
			rdValue = rs1Value << (imm & 0x3F)
		case 2: // 010 = SLTI
			rdValue = boolToU64(int64(rs1Value) < int64(imm))
		case 3: // 011 = SLTIU
			rdValue = boolToU64(rs1Value < imm)
		case 4: // 100 = XORI
			rdValue = rs1Value ^ imm
		case 5: // 101 = SRLI/SRAI
			// the imm bits above the shift amount select the shift type
			switch imm >> 6 {
			case 0x00: // 0000000 = SRLI
				rdValue = rs1Value >> (imm & 0x3F)
			case 0x10: // 0100000 = SRAI
				rdValue = uint64(int64(rs1Value) >> (imm & 0x3F))
			default:
				return illegalInstruction(w)
			}
		case 6: // 110 = ORI
			rdValue = rs1Value | imm
		case 7: // 111 = ANDI
			rdValue = rs1Value & imm
		}
		s.writeRegister(inst.Rd, rdValue)
		s.PC = pc + 4

	case 0x1B: // 001_1011: immediate arithmetic and logic, 32-bit
		rs1Value := s.loadRegister(inst.Rs1)
		imm := inst.Imm
		var rdValue uint64
		switch inst.Funct3 {
		case 0: // 000 = ADDIW
			rdValue = mask32Signed64(rs1Value + imm)
		case 1: // 001 = SLLIW
			if imm>>5 != 0 {
				return illegalInstruction(w)
			}
			rdValue = mask32Signed64(rs1Value << (imm & 0x1F))
		case 5: // 101 = SRLIW/SRAIW
			shamt := imm & 0x1F
			switch imm >> 5 {
			case 0x00: // 0000000 = SRLIW
				rdValue = signExtend64(uint64(uint32(rs1Value))>>shamt, 31)
			case 0x20: // 0100000 = SRAIW
				rdValue = uint64(int64(int32(uint32(rs1Value))) >> shamt)
			default:
				return illegalInstruction(w)
			}
		default:
			return illegalInstruction(w)
		}
		s.writeRegister(inst.Rd, rdValue)
		s.PC = pc + 4

	case 0x33: // 011_0011: register arithmetic and logic
		rs1Value := s.loadRegister(inst.Rs1)
		rs2Value := s.loadRegister(inst.Rs2)
		var rdValue uint64
		switch inst.Funct7 {
		case 0x00:
			switch inst.Funct3 {
			case 0: // 000 = ADD
				rdValue = rs1Value + rs2Value
			case 1: // 001 = SLL, shift amount from the low 6 bits of rs2
				rdValue = rs1Value << (rs2Value & 0x3F)
			case 2: // 010 = SLT
				rdValue = boolToU64(int64(rs1Value) < int64(rs2Value))
			case 3: // 011 = SLTU
				rdValue = boolToU64(rs1Value < rs2Value)
			case 4: // 100 = XOR
				rdValue = rs1Value ^ rs2Value
			case 5: // 101 = SRL, logical: fill with zeroes
				rdValue = rs1Value >> (rs2Value & 0x3F)
			case 6: // 110 = OR
				rdValue = rs1Value | rs2Value
			case 7: // 111 = AND
				rdValue = rs1Value & rs2Value
			}
		case 0x20:
			switch inst.Funct3 {
			case 0: // 000 = SUB
				rdValue = rs1Value - rs2Value
			case 5: // 101 = SRA, arithmetic: the sign bit is extended
				rdValue = uint64(int64(rs1Value) >> (rs2Value & 0x3F))
			default:
				return illegalInstruction(w)
			}
		default:
			return illegalInstruction(w)
		}
		s.writeRegister(inst.Rd, rdValue)
		s.PC = pc + 4

	case 0x3B: // 011_1011: register arithmetic and logic, 32-bit
		rs1Value := s.loadRegister(inst.Rs1)
		rs2Value := s.loadRegister(inst.Rs2)
		var rdValue uint64
		switch inst.Funct7 {
		case 0x00:
			switch inst.Funct3 {
			case 0: // 000 = ADDW
				rdValue = mask32Signed64(rs1Value + rs2Value)
			case 1: // 001 = SLLW, shift amount from the low 5 bits of rs2
				rdValue = mask32Signed64(rs1Value << (rs2Value & 0x1F))
			case 5: // 101 = SRLW
				rdValue = signExtend64(uint64(uint32(rs1Value))>>(rs2Value&0x1F), 31)
			default:
				return illegalInstruction(w)
			}
		case 0x20:
			switch inst.Funct3 {
			case 0: // 000 = SUBW
				rdValue = mask32Signed64(rs1Value - rs2Value)
			case 5: // 101 = SRAW
				rdValue = uint64(int64(int32(uint32(rs1Value))) >> (rs2Value & 0x1F))
			default:
				return illegalInstruction(w)
			}
		default:
			return illegalInstruction(w)
		}
		s.writeRegister(inst.Rd, rdValue)
		s.PC = pc + 4

	case 0x37: // 011_0111: LUI
		s.writeRegister(inst.Rd, inst.Imm)
		s.PC = pc + 4

	case 0x17: // 001_0111: AUIPC
		s.writeRegister(inst.Rd, pc+inst.Imm)
		s.PC = pc + 4

	case 0x6F: // 110_1111: JAL
		s.writeRegister(inst.Rd, pc+4)
		s.PC = pc + inst.Imm

	case 0x67: // 110_0111: JALR
		if inst.Funct3 != 0 {
			return illegalInstruction(w)
		}
		target := (s.loadRegister(inst.Rs1) + inst.Imm) &^ 1 // the least significant bit is cleared
		s.writeRegister(inst.Rd, pc+4)
		s.PC = target

	case 0x0F: // 000_1111: fence
		// Single hart, no memory pipeline: FENCE and FENCE.I have nothing
		// to order.
		s.PC = pc + 4

	case 0x73: // 111_0011: system
		switch inst.Funct3 {
		case 0: // 000 = ECALL/EBREAK
			switch inst.Imm & 0xFFF {
			case 0: // ECALL: no environment to call into
			case 1: // EBREAK: no debugger attached
			default:
				return illegalInstruction(w)
			}
			s.PC = pc + 4
		case 4: // no CSR instruction uses 100
			return illegalInstruction(w)
		default: // CSR instructions
			addr := parseCSR(w)
			// the immediate variants take the rs1 field itself as a
			// zero-extended operand
			v := uint64(inst.Rs1)
			if inst.Funct3&4 == 0 {
				v = s.loadRegister(inst.Rs1)
			}
			out := s.CSR.Load(addr)
			switch inst.Funct3 & 3 {
			case 1: // ?01 = CSRRW(I)
			case 2: // ?10 = CSRRS(I)
				v = out | v
			case 3: // ?11 = CSRRC(I)
				v = out &^ v
			}
			s.CSR.Store(addr, v)
			s.writeRegister(inst.Rd, out)
			s.PC = pc + 4
		}

	default:
		return illegalInstruction(w)
	}

	s.Step++
	return nil
}
