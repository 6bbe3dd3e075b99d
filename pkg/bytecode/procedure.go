package bytecode

import (
	"fmt"
	"strings"
)

// Procedure is one compiled function. Procedures are immutable once the
// compiler finishes them and may be shared between a virtual machine and
// external holders.
//
// Bytecode[0] always holds the no-op sentinel so the fetch loop can
// pre-increment the program counter; the first real instruction is at
// index 1.
type Procedure struct {
	Bytecode []Instruction

	// RegisterCount is the total number of register-stack slots one
	// activation needs: return slot + parameters + locals + temporaries.
	RegisterCount int

	// MaxArgs is the number of declared parameters.
	MaxArgs int

	// Constants is the interned literal table, addressed by ConstantKey.
	Constants []ConstantValue

	// Functions is the table of referenced function names, addressed by
	// FunctionKey. Names are resolved against the VM's function table at
	// call time.
	Functions []string
}

// String renders the full procedure listing: header, constant table,
// function table, and numbered bytecode.
func (p *Procedure) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "registers: %d\n", p.RegisterCount)
	fmt.Fprintf(&b, "arg count: %d\n", p.MaxArgs)
	if len(p.Constants) == 0 {
		b.WriteString("constant table: (empty)\n")
	} else {
		b.WriteString("constant table:\n")
		for key, value := range p.Constants {
			fmt.Fprintf(&b, "%4s: %s\n", ConstantKey(key), value)
		}
	}
	if len(p.Functions) == 0 {
		b.WriteString("function table: (empty)\n")
	} else {
		b.WriteString("function table:\n")
		for key, name := range p.Functions {
			fmt.Fprintf(&b, "%4s: %q\n", FunctionKey(key), name)
		}
	}
	b.WriteString("bytecode:\n")
	for ip, instruction := range p.Bytecode {
		fmt.Fprintf(&b, "  %4d  %s\n", ip, instruction)
	}
	return b.String()
}
