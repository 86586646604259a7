package emu

import "errors"

// Faults that stop execution. Step wraps them with the failing address or
// encoding; the driver is expected to add step and pc context on top.
var (
	ErrLoadAccessFault    = errors.New("load access fault")
	ErrStoreAccessFault   = errors.New("store access fault")
	ErrIllegalInstruction = errors.New("illegal instruction")
)
