package bytecode

// Instruction builders. Each composes a word by OR-ing pre-shifted bit
// fields, which is what lets the compiler leave a temporary's operand byte
// zero and OR the resolved register number in afterwards.

func miscBase(sub MiscSubcode) Instruction {
	return Instruction(SuperMisc) | Instruction(sub)<<miscSubcodeOffset
}

func jumpBase(reason JumpReason) Instruction {
	return miscBase(MiscJump) | Instruction(reason)<<jumpReasonOffset
}

// Nop builds the no-operation instruction. Its encoding is the all-zero
// word, which is why index 0 of every procedure can hold it as the
// pre-increment sentinel.
func Nop() Instruction {
	return jumpBase(ReasonSpecial) | Instruction(SpecialNoOp)<<jumpSpecialOffset
}

// Ret builds a function return.
func Ret() Instruction {
	return jumpBase(ReasonSpecial) | Instruction(SpecialReturn)<<jumpSpecialOffset
}

// Jmp builds an unconditional jump to ip.
func Jmp(ip InstructionPointer) Instruction {
	return jumpBase(ReasonAlways) | ip.EncodeBoth()
}

// JmpIfTrue builds a jump taken when the condition operand holds
// Boolean(true).
func JmpIfTrue(condition Destination, ip InstructionPointer) Instruction {
	return jumpBase(ReasonIfTrue) |
		Instruction(condition.DestClass())<<conditionClassOffset |
		condition.EncodeDestination() | ip.EncodeBoth()
}

// JmpIfFalse builds a jump taken when the condition operand holds
// Boolean(false).
func JmpIfFalse(condition Destination, ip InstructionPointer) Instruction {
	return jumpBase(ReasonIfFalse) |
		Instruction(condition.DestClass())<<conditionClassOffset |
		condition.EncodeDestination() | ip.EncodeBoth()
}

// Mov builds dest = source.
func Mov(dest Destination, source Source) Instruction {
	return miscBase(MiscMove) |
		Instruction(dest.DestClass())<<moveDestClassOffset |
		Instruction(source.SourceClass())<<moveSourceClassOffset |
		dest.EncodeDestination() | source.EncodeFirst()
}

// Call builds a call of the function named by key. The return value is
// written to dest; arguments are read from the contiguous register range
// starting at argStart in the caller's frame. argStart must be a
// register-class source.
func Call(argCount uint8, dest Destination, key FunctionKey, argStart Source) Instruction {
	return miscBase(MiscCall) |
		Instruction(argCount&callArgCountMask)<<callArgCountOffset |
		dest.EncodeDestination() | key.EncodeFirst() | argStart.EncodeSecond()
}

// Index builds either dest = source[index] (OnSource) or
// dest[index] = source (OnDestination).
func Index(on IndexOn, dest Destination, source, index Source) Instruction {
	return Instruction(SuperIndex) |
		Instruction(on)<<indexOnOffset |
		Instruction(dest.DestClass())<<indexDestClassOffset |
		Instruction(source.SourceClass())<<indexSourceClassOffset |
		Instruction(index.SourceClass())<<indexIndexClassOffset |
		dest.EncodeDestination() | source.EncodeFirst() | index.EncodeSecond()
}

func binary(super SuperCode, subcode uint8, wildIsSecond bool, wildClass SourceClass,
	dest Destination, first, second Source) Instruction {
	word := Instruction(super) |
		Instruction(subcode)<<binarySubcodeOffset |
		Instruction(wildClass)<<binaryWildClassOffset |
		dest.EncodeDestination() | first.EncodeFirst() | second.EncodeSecond()
	if wildIsSecond {
		word |= 1 << whichWildOffset
	}
	return word
}

// CmpWR builds dest = first <op> second with a wildcard first source and
// a register second source.
func CmpWR(subcode CompareSubcode, dest Destination, first, second Source) Instruction {
	return binary(SuperComparison, uint8(subcode), false, first.SourceClass(), dest, first, second)
}

// CmpRW builds dest = first <op> second with a register first source and
// a wildcard second source.
func CmpRW(subcode CompareSubcode, dest Destination, first, second Source) Instruction {
	return binary(SuperComparison, uint8(subcode), true, second.SourceClass(), dest, first, second)
}

// MathWR builds dest = first <op> second with a wildcard first source and
// a register second source.
func MathWR(subcode ArithSubcode, dest Destination, first, second Source) Instruction {
	return binary(SuperArithmetic, uint8(subcode), false, first.SourceClass(), dest, first, second)
}

// MathRW builds dest = first <op> second with a register first source and
// a wildcard second source.
func MathRW(subcode ArithSubcode, dest Destination, first, second Source) Instruction {
	return binary(SuperArithmetic, uint8(subcode), true, second.SourceClass(), dest, first, second)
}
