package vm

import "errors"

// Runtime errors. Any of these aborts the execution loop immediately and
// unwinds to the caller; there is no automatic recovery, and guest code
// cannot observe them.
var (
	// ErrInvalidRegister means a register window access fell outside the
	// register stack.
	ErrInvalidRegister = errors.New("register access out of range")

	// ErrInvalidPc means the fetch loop ran past the end of a procedure's
	// bytecode.
	ErrInvalidPc = errors.New("program counter past end of bytecode")

	// ErrEmptyCallStack means an operation required an active frame when
	// none existed.
	ErrEmptyCallStack = errors.New("no active call frame")

	// ErrMissingFunction means a function name lookup failed, either in a
	// procedure's key table or in the machine's function table.
	ErrMissingFunction = errors.New("function not found")

	// ErrMissingConstant means a constant key fell outside the
	// procedure's constant table.
	ErrMissingConstant = errors.New("constant key out of bounds")

	// ErrUnimplemented means execution reached a reserved part of the
	// ISA: a global operand, an interrupt, a reserved jump special, one
	// of the pow/root/log arithmetic sub-ops, a reserved comparison
	// sub-op, or an index on a non-container.
	ErrUnimplemented = errors.New("reserved instruction or operand class")
)
