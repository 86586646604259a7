package riscv

// Control and status register addresses (12-bit space).
const (
	// supervisor level
	Sstatus    = 0x100
	Sie        = 0x104
	Stvec      = 0x105
	Scounteren = 0x106
	Sscratch   = 0x140
	Sepc       = 0x141
	Scause     = 0x142
	Stval      = 0x143
	Sip        = 0x144
	Satp       = 0x180

	// machine level
	Mstatus    = 0x300
	Misa       = 0x301
	Medeleg    = 0x302
	Mideleg    = 0x303
	Mie        = 0x304
	Mtvec      = 0x305
	Mcounteren = 0x306
	Mscratch   = 0x340
	Mepc       = 0x341
	Mcause     = 0x342
	Mtval      = 0x343
	Mip        = 0x344

	Mhartid = 0xf14
)

// mstatus fields. SstatusMask selects the fields that are visible through
// the sstatus alias.
const (
	MstatusSIE  uint64 = 1 << 1
	MstatusSPIE uint64 = 1 << 5
	MstatusUBE  uint64 = 1 << 6
	MstatusSPP  uint64 = 1 << 8
	MstatusFS   uint64 = 3 << 13
	MstatusXS   uint64 = 3 << 15
	MstatusSUM  uint64 = 1 << 18
	MstatusMXR  uint64 = 1 << 19
	MstatusUXL  uint64 = 3 << 32
	MstatusSD   uint64 = 1 << 63

	SstatusMask = MstatusSIE | MstatusSPIE | MstatusUBE | MstatusSPP |
		MstatusFS | MstatusXS | MstatusSUM | MstatusMXR | MstatusUXL | MstatusSD
)

// RegNames maps register indices to their standard ABI names.
var RegNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}
