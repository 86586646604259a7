package emu

// Format identifies which of the six base instruction formats an
// instruction word uses. It determines how the immediate is assembled.
type Format uint8

const (
	FormatR Format = iota
	FormatI
	FormatS
	FormatB
	FormatU
	FormatJ
	FormatUnknown
)

func (f Format) String() string {
	switch f {
	case FormatR:
		return "R"
	case FormatI:
		return "I"
	case FormatS:
		return "S"
	case FormatB:
		return "B"
	case FormatU:
		return "U"
	case FormatJ:
		return "J"
	default:
		return "unknown"
	}
}

// Instruction is a fully unpacked instruction word. All register and
// function fields are extracted regardless of format; Imm holds the
// format-specific immediate, sign-extended to 64 bits.
type Instruction struct {
	Opcode uint32
	Rd     uint32
	Funct3 uint32
	Rs1    uint32
	Rs2    uint32
	Funct7 uint32
	Imm    uint64
	Format Format
}

// Decode unpacks a 32-bit instruction word. It is total: words with an
// unrecognized opcode decode to FormatUnknown and are rejected at dispatch,
// never here.
func Decode(word uint32) Instruction {
	inst := Instruction{
		Opcode: parseOpcode(word),
		Rd:     parseRd(word),
		Funct3: parseFunct3(word),
		Rs1:    parseRs1(word),
		Rs2:    parseRs2(word),
		Funct7: parseFunct7(word),
		Format: formatFor(parseOpcode(word)),
	}
	switch inst.Format {
	case FormatI:
		inst.Imm = parseImmTypeI(word)
	case FormatS:
		inst.Imm = parseImmTypeS(word)
	case FormatB:
		inst.Imm = parseImmTypeB(word)
	case FormatU:
		inst.Imm = parseImmTypeU(word)
	case FormatJ:
		inst.Imm = parseImmTypeJ(word)
	}
	return inst
}

func formatFor(opcode uint32) Format {
	switch opcode {
	case 0x37, 0x17: // LUI, AUIPC
		return FormatU
	case 0x6F: // JAL
		return FormatJ
	case 0x67, 0x03, 0x13, 0x1B, 0x0F, 0x73: // JALR, loads, OP-IMM, OP-IMM-32, FENCE, SYSTEM
		return FormatI
	case 0x63: // branches
		return FormatB
	case 0x23: // stores
		return FormatS
	case 0x33, 0x3B: // OP, OP-32
		return FormatR
	default:
		return FormatUnknown
	}
}
