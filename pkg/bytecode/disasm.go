package bytecode

import "fmt"

// Disassemble renders one instruction in its human-readable single-line
// form. Registers print as R<n>, globals as G<n>, constants as &<k>,
// immediates as #<i>, instruction pointers as `ip <n>`, and function keys
// as F<k>.
func Disassemble(i Instruction) string {
	switch SuperCodeOf(i) {
	case SuperMisc:
		return disassembleMisc(i)
	case SuperIndex:
		d := DecodeIndex(i)
		dest := destString(d.DestClass, d.Dest)
		if d.On == OnDestination {
			return fmt.Sprintf("idx   %s[%s] = %s", dest, d.Index, d.Source)
		}
		return fmt.Sprintf("idx   %s = %s[%s]", dest, d.Source, d.Index)
	case SuperComparison:
		d := DecodeCompare(i)
		return fmt.Sprintf("%-4s  %s = %s %s %s",
			d.Subcode.Name(), RawRegister(d.Dest), d.First, d.Subcode.OpText(), d.Second)
	}
	d := DecodeArithmetic(i)
	return fmt.Sprintf("%-4s  %s = %s %s %s",
		d.Subcode.Name(), RawRegister(d.Dest), d.First, d.Subcode.OpText(), d.Second)
}

func disassembleMisc(i Instruction) string {
	switch MiscSubcodeOf(i) {
	case MiscJump:
		return disassembleJump(i)
	case MiscMove:
		d := DecodeMove(i)
		return fmt.Sprintf("mov   %s = %s", destString(d.DestClass, d.Dest), d.Source)
	case MiscCall:
		d := DecodeCall(i)
		dest := RawRegister(d.Dest)
		start := RawRegister(d.ArgStart)
		switch d.ArgCount {
		case 0:
			return fmt.Sprintf("call  %s = %s()", dest, d.Function)
		case 1:
			return fmt.Sprintf("call  %s = %s(%s)", dest, d.Function, start)
		default:
			last := RawRegister(d.ArgStart + d.ArgCount - 1)
			return fmt.Sprintf("call  %s = %s(%s...%s)", dest, d.Function, start, last)
		}
	}
	return "int"
}

func disassembleJump(i Instruction) string {
	d := DecodeJump(i)
	switch d.Reason {
	case ReasonSpecial:
		switch d.Special {
		case SpecialNoOp:
			return "nop"
		case SpecialReturn:
			return "ret"
		case SpecialXa:
			return "xa"
		}
		return "xb"
	case ReasonAlways:
		return fmt.Sprintf("jmp   %-8s", d.Target)
	case ReasonIfFalse:
		return fmt.Sprintf("jmp   %-8s  if !%s", d.Target, destString(d.CondClass, d.Cond))
	}
	return fmt.Sprintf("jmp   %-8s  if %s", d.Target, destString(d.CondClass, d.Cond))
}

func destString(class DestClass, raw uint8) string {
	if class == DestGlobal {
		return Global(raw).String()
	}
	return RawRegister(raw).String()
}
