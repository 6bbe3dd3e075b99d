package bytecode

import "fmt"

// DestClass is the wildcard class of a destination operand (1 bit).
type DestClass uint8

// Destination operand classes.
const (
	DestRegister DestClass = 0b0
	DestGlobal   DestClass = 0b1
)

// SourceClass is the wildcard class of a source operand (2 bits).
type SourceClass uint8

// Source operand classes. The non-wild source of a binary operation is
// always a register.
const (
	SourceRegister  SourceClass = 0b00
	SourceGlobal    SourceClass = 0b01
	SourceImmediate SourceClass = 0b10
	SourceConstant  SourceClass = 0b11
)

// Destination is an operand that can occupy the destination byte of an
// instruction. The compiler's deferred temporaries implement this too,
// encoding a zero byte and patching the real register number in later.
type Destination interface {
	DestClass() DestClass
	EncodeDestination() Instruction
}

// Source is an operand that can occupy either source byte.
type Source interface {
	SourceClass() SourceClass
	EncodeFirst() Instruction
	EncodeSecond() Instruction
}

// RawRegister is a register with a known index into the current frame's
// register window. Register 0 is always the frame's return slot.
type RawRegister uint8

func (r RawRegister) DestClass() DestClass     { return DestRegister }
func (r RawRegister) SourceClass() SourceClass { return SourceRegister }

func (r RawRegister) EncodeDestination() Instruction {
	return Instruction(r) << DestinationOffset
}

func (r RawRegister) EncodeFirst() Instruction {
	return Instruction(r) << FirstSourceOffset
}

func (r RawRegister) EncodeSecond() Instruction {
	return Instruction(r) << SecondSourceOffset
}

func (r RawRegister) String() string { return fmt.Sprintf("R%d", uint8(r)) }

// Global is an 8-bit key into a global table. The operand class is
// reserved throughout the ISA; the virtual machine rejects it at run time.
type Global uint8

func (g Global) DestClass() DestClass     { return DestGlobal }
func (g Global) SourceClass() SourceClass { return SourceGlobal }

func (g Global) EncodeDestination() Instruction {
	return Instruction(g) << DestinationOffset
}

func (g Global) EncodeFirst() Instruction {
	return Instruction(g) << FirstSourceOffset
}

func (g Global) EncodeSecond() Instruction {
	return Instruction(g) << SecondSourceOffset
}

func (g Global) String() string { return fmt.Sprintf("G%d", uint8(g)) }

// Immediate is a literal integer small enough to fit in a single operand
// byte. It must be in -128..=127; larger integers and all other literal
// types go through the constant table via ConstantKey.
type Immediate int8

func (imm Immediate) SourceClass() SourceClass { return SourceImmediate }

func (imm Immediate) EncodeFirst() Instruction {
	return Instruction(uint8(imm)) << FirstSourceOffset
}

func (imm Immediate) EncodeSecond() Instruction {
	return Instruction(uint8(imm)) << SecondSourceOffset
}

func (imm Immediate) String() string { return fmt.Sprintf("#%d", int8(imm)) }

// ConstantKey is an index into the current procedure's constant table.
type ConstantKey uint8

func (k ConstantKey) SourceClass() SourceClass { return SourceConstant }

func (k ConstantKey) EncodeFirst() Instruction {
	return Instruction(k) << FirstSourceOffset
}

func (k ConstantKey) EncodeSecond() Instruction {
	return Instruction(k) << SecondSourceOffset
}

func (k ConstantKey) String() string { return fmt.Sprintf("&%d", uint8(k)) }

// InstructionPointer is an absolute index into a procedure's bytecode.
// By convention it addresses the instruction before the one that should
// run next: the fetch loop pre-increments the program counter, so a jump
// to ip n lands on bytecode[n+1].
type InstructionPointer uint16

// EncodeBoth places the pointer across both source bytes.
func (ip InstructionPointer) EncodeBoth() Instruction {
	return Instruction(ip) << InstructionPointerOffset
}

// InstructionPointerOf extracts the 16-bit jump target from a word.
func InstructionPointerOf(i Instruction) InstructionPointer {
	return InstructionPointer(i.field(InstructionPointerOffset, 0xffff))
}

func (ip InstructionPointer) String() string { return fmt.Sprintf("ip %d", uint16(ip)) }

// FunctionKey is an index into the current procedure's table of referenced
// function names. The call instruction resolves it to a name, then to a
// procedure in the VM's function table (late binding).
type FunctionKey uint8

func (k FunctionKey) EncodeFirst() Instruction {
	return Instruction(k) << FirstSourceOffset
}

// FunctionKeyOf extracts a function key from the first source byte.
func FunctionKeyOf(i Instruction) FunctionKey {
	return FunctionKey(i.field(FirstSourceOffset, 0xff))
}

func (k FunctionKey) String() string { return fmt.Sprintf("F%d", uint8(k)) }

// destinationByte reads the raw destination byte.
func destinationByte(i Instruction) uint8 {
	return uint8(i.field(DestinationOffset, 0xff))
}

// firstSourceByte reads the raw first source byte.
func firstSourceByte(i Instruction) uint8 {
	return uint8(i.field(FirstSourceOffset, 0xff))
}

// secondSourceByte reads the raw second source byte.
func secondSourceByte(i Instruction) uint8 {
	return uint8(i.field(SecondSourceOffset, 0xff))
}
