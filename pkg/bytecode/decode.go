package bytecode

// Decoded instruction views. The decoders split a word into class tags
// and raw operand bytes; resolving those bytes against a frame's register
// window or a procedure's tables is the virtual machine's job.

// Wild is a source operand byte together with its class.
type Wild struct {
	Class SourceClass
	Raw   uint8
}

func (w Wild) String() string {
	switch w.Class {
	case SourceRegister:
		return RawRegister(w.Raw).String()
	case SourceGlobal:
		return Global(w.Raw).String()
	case SourceImmediate:
		return Immediate(w.Raw).String()
	}
	return ConstantKey(w.Raw).String()
}

// DecodedJump is a jump-family instruction.
type DecodedJump struct {
	Reason    JumpReason
	Special   JumpSpecial // valid when Reason == ReasonSpecial
	CondClass DestClass   // valid for IfFalse/IfTrue
	Cond      uint8       // condition operand byte
	Target    InstructionPointer
}

// DecodeJump splits a misc/jump word.
func DecodeJump(i Instruction) DecodedJump {
	return DecodedJump{
		Reason:    JumpReasonOf(i),
		Special:   JumpSpecialOf(i),
		CondClass: DestClass(i.field(conditionClassOffset, 0b1)),
		Cond:      destinationByte(i),
		Target:    InstructionPointerOf(i),
	}
}

// DecodedMove is a misc/move instruction.
type DecodedMove struct {
	DestClass DestClass
	Dest      uint8
	Source    Wild
}

// DecodeMove splits a misc/move word.
func DecodeMove(i Instruction) DecodedMove {
	return DecodedMove{
		DestClass: DestClass(i.field(moveDestClassOffset, 0b1)),
		Dest:      destinationByte(i),
		Source: Wild{
			Class: SourceClass(i.field(moveSourceClassOffset, 0b11)),
			Raw:   firstSourceByte(i),
		},
	}
}

// DecodedCall is a misc/call instruction.
type DecodedCall struct {
	ArgCount uint8
	Dest     uint8 // return register in the caller's frame
	Function FunctionKey
	ArgStart uint8 // first argument register in the caller's frame
}

// DecodeCall splits a misc/call word.
func DecodeCall(i Instruction) DecodedCall {
	return DecodedCall{
		ArgCount: CallArgCountOf(i),
		Dest:     destinationByte(i),
		Function: FunctionKeyOf(i),
		ArgStart: secondSourceByte(i),
	}
}

// DecodedIndex is an index-family instruction.
type DecodedIndex struct {
	On        IndexOn
	DestClass DestClass
	Dest      uint8
	Source    Wild
	Index     Wild
}

// DecodeIndex splits an index word.
func DecodeIndex(i Instruction) DecodedIndex {
	return DecodedIndex{
		On:        IndexOn(i.field(indexOnOffset, indexOnMask)),
		DestClass: DestClass(i.field(indexDestClassOffset, 0b1)),
		Dest:      destinationByte(i),
		Source: Wild{
			Class: SourceClass(i.field(indexSourceClassOffset, 0b11)),
			Raw:   firstSourceByte(i),
		},
		Index: Wild{
			Class: SourceClass(i.field(indexIndexClassOffset, 0b11)),
			Raw:   secondSourceByte(i),
		},
	}
}

// decodeBinarySources splits the shared comparison/arithmetic source
// layout. The non-wild operand always decodes with register class.
func decodeBinarySources(i Instruction) (first, second Wild) {
	wildClass := SourceClass(i.field(binaryWildClassOffset, 0b11))
	if firstIsWild(i) {
		first = Wild{Class: wildClass, Raw: firstSourceByte(i)}
		second = Wild{Class: SourceRegister, Raw: secondSourceByte(i)}
	} else {
		first = Wild{Class: SourceRegister, Raw: firstSourceByte(i)}
		second = Wild{Class: wildClass, Raw: secondSourceByte(i)}
	}
	return first, second
}

// DecodedCompare is a comparison-family instruction.
type DecodedCompare struct {
	Subcode CompareSubcode
	Dest    uint8
	First   Wild
	Second  Wild
}

// DecodeCompare splits a comparison word.
func DecodeCompare(i Instruction) DecodedCompare {
	first, second := decodeBinarySources(i)
	return DecodedCompare{
		Subcode: CompareSubcode(i.field(binarySubcodeOffset, binarySubcodeMask)),
		Dest:    destinationByte(i),
		First:   first,
		Second:  second,
	}
}

// DecodedArithmetic is an arithmetic-family instruction.
type DecodedArithmetic struct {
	Subcode ArithSubcode
	Dest    uint8
	First   Wild
	Second  Wild
}

// DecodeArithmetic splits an arithmetic word.
func DecodeArithmetic(i Instruction) DecodedArithmetic {
	first, second := decodeBinarySources(i)
	return DecodedArithmetic{
		Subcode: ArithSubcode(i.field(binarySubcodeOffset, binarySubcodeMask)),
		Dest:    destinationByte(i),
		First:   first,
		Second:  second,
	}
}
