package vm

import (
	"github.com/lualite-lang/lualite/pkg/bytecode"
)

// stackFrame is one activation on the call stack.
type stackFrame struct {
	procedure *bytecode.Procedure

	// pc indexes the procedure's bytecode. It starts at 0 (the no-op
	// sentinel) and is pre-incremented before each fetch.
	pc int

	// registerStart is the base offset of this frame's register window in
	// the shared register stack.
	registerStart int

	// returnIndex is the absolute register-stack index that receives this
	// frame's register 0 when it returns.
	returnIndex int
}

// VirtualMachine executes compiled procedures. Attach functions with
// InsertFunction or build the machine with WithFunctions, then begin
// execution with Run, or use InitializeWithValues and ExecutionLoop for
// finer control over how many instructions may run.
//
// A machine is single-threaded and cooperative: a bounded ExecutionLoop
// is the only yield point, and all state belongs to the one instance.
type VirtualMachine struct {
	functions     map[string]*bytecode.Procedure
	callStack     []stackFrame
	registerStack []Value
}

// New returns an empty machine. The bottom register-stack slot (index 0)
// is reserved as the result register.
func New() *VirtualMachine {
	return &VirtualMachine{
		functions:     make(map[string]*bytecode.Procedure),
		registerStack: []Value{Nil()},
	}
}

// WithFunctions returns a machine preloaded with the given name→procedure
// table.
func WithFunctions(functions map[string]*bytecode.Procedure) *VirtualMachine {
	m := New()
	for name, procedure := range functions {
		m.functions[name] = procedure
	}
	return m
}

// InsertFunction adds or replaces a named procedure.
func (m *VirtualMachine) InsertFunction(name string, procedure *bytecode.Procedure) {
	m.functions[name] = procedure
}

// RemoveFunction deletes a named procedure, returning it if present.
func (m *VirtualMachine) RemoveFunction(name string) *bytecode.Procedure {
	procedure := m.functions[name]
	delete(m.functions, name)
	return procedure
}

// GetFunction looks up a named procedure.
func (m *VirtualMachine) GetFunction(name string) (*bytecode.Procedure, bool) {
	procedure, ok := m.functions[name]
	return procedure, ok
}

// InstructionCount bounds an ExecutionLoop call.
type InstructionCount struct {
	limited bool
	n       int
}

// Unlimited places no bound on the loop.
func Unlimited() InstructionCount { return InstructionCount{} }

// Limited bounds the loop to at most n instructions.
func Limited(n int) InstructionCount { return InstructionCount{limited: true, n: n} }

// ExecutionStatus is the outcome of an ExecutionLoop call.
type ExecutionStatus uint8

// Loop outcomes.
const (
	// Finished means the call stack emptied; the result is in Result.
	Finished ExecutionStatus = iota
	// Unfinished means the instruction limit was reached first.
	Unfinished
)

// Run executes the named function with the given arguments until it
// finishes and returns its result. It errors if the name is unknown.
//
// Run places no bound on the instruction count, so a guest infinite loop
// never returns; use InitializeWithValues and ExecutionLoop with a limit
// when that matters.
func (m *VirtualMachine) Run(name string, args ...Value) (Value, error) {
	procedure, ok := m.functions[name]
	if !ok {
		return Nil(), ErrMissingFunction
	}
	if err := m.InitializeWithValues(procedure, args...); err != nil {
		return Nil(), err
	}
	if _, err := m.ExecutionLoop(Unlimited()); err != nil {
		return Nil(), err
	}
	return m.Result(), nil
}

// Result returns the entry function's return value: the value at
// register-stack index 0. On a new machine it is nil until the entry
// function finishes; starting another run does not reset it, so until
// that run finishes it still holds the previous run's result.
func (m *VirtualMachine) Result() Value {
	if len(m.registerStack) == 0 {
		return Nil()
	}
	return m.registerStack[0]
}

// InitializeWithValues sets up a frame for the entry procedure with args
// placed in registers 1..len(args). It does not begin execution; the
// entry frame's return value lands in register-stack slot 0.
func (m *VirtualMachine) InitializeWithValues(procedure *bytecode.Procedure, args ...Value) error {
	frameBase := len(m.registerStack)
	m.growRegisterStack(procedure.RegisterCount)
	for i, arg := range args {
		slot := frameBase + 1 + i
		if slot >= len(m.registerStack) {
			return ErrInvalidRegister
		}
		m.registerStack[slot] = arg
	}
	m.callStack = append(m.callStack, stackFrame{
		procedure:     procedure,
		pc:            0,
		registerStart: frameBase,
		returnIndex:   0,
	})
	return nil
}

// ExecutionLoop executes instructions until the call stack empties or the
// limit is reached, whichever comes first.
func (m *VirtualMachine) ExecutionLoop(limit InstructionCount) (ExecutionStatus, error) {
	for steps := 0; !limit.limited || steps < limit.n; steps++ {
		if len(m.callStack) == 0 {
			return Finished, nil
		}
		top := &m.callStack[len(m.callStack)-1]
		top.pc++
		if top.pc >= len(top.procedure.Bytecode) {
			return Unfinished, ErrInvalidPc
		}
		if err := m.execute(top.procedure.Bytecode[top.pc]); err != nil {
			return Unfinished, err
		}
	}
	if len(m.callStack) == 0 {
		return Finished, nil
	}
	return Unfinished, nil
}

func (m *VirtualMachine) growRegisterStack(count int) {
	for i := 0; i < count; i++ {
		m.registerStack = append(m.registerStack, Nil())
	}
}

func (m *VirtualMachine) top() (*stackFrame, error) {
	if len(m.callStack) == 0 {
		return nil, ErrEmptyCallStack
	}
	return &m.callStack[len(m.callStack)-1], nil
}

// register reads a register from the current frame's window.
func (m *VirtualMachine) register(r uint8) (Value, error) {
	top, err := m.top()
	if err != nil {
		return Nil(), err
	}
	slot := top.registerStart + int(r)
	if slot >= len(m.registerStack) {
		return Nil(), ErrInvalidRegister
	}
	return m.registerStack[slot], nil
}

// setRegister writes a register in the current frame's window.
func (m *VirtualMachine) setRegister(r uint8, v Value) error {
	top, err := m.top()
	if err != nil {
		return err
	}
	slot := top.registerStart + int(r)
	if slot >= len(m.registerStack) {
		return ErrInvalidRegister
	}
	m.registerStack[slot] = v
	return nil
}

// constant materializes an entry of the current procedure's constant
// table as a runtime value.
func (m *VirtualMachine) constant(key uint8) (Value, error) {
	top, err := m.top()
	if err != nil {
		return Nil(), err
	}
	if int(key) >= len(top.procedure.Constants) {
		return Nil(), ErrMissingConstant
	}
	c := top.procedure.Constants[key]
	switch c.Kind() {
	case bytecode.ConstInteger:
		return Int(c.Int()), nil
	case bytecode.ConstFloat:
		return Float(c.Float()), nil
	case bytecode.ConstBoolean:
		return Bool(c.Bool()), nil
	}
	return Str(c.Str()), nil
}

// wildValue resolves a wildcard source operand. Immediates produce
// integers; globals are a reserved operand class and error.
func (m *VirtualMachine) wildValue(w bytecode.Wild) (Value, error) {
	switch w.Class {
	case bytecode.SourceRegister:
		return m.register(w.Raw)
	case bytecode.SourceImmediate:
		return Int(int64(int8(w.Raw))), nil
	case bytecode.SourceConstant:
		return m.constant(w.Raw)
	}
	return Nil(), ErrUnimplemented
}

func (m *VirtualMachine) setPc(target bytecode.InstructionPointer) error {
	top, err := m.top()
	if err != nil {
		return err
	}
	top.pc = int(target)
	return nil
}

// execute dispatches one instruction on its SuperCode.
func (m *VirtualMachine) execute(i bytecode.Instruction) error {
	switch bytecode.SuperCodeOf(i) {
	case bytecode.SuperMisc:
		return m.executeMisc(i)
	case bytecode.SuperIndex:
		return m.executeIndex(i)
	case bytecode.SuperComparison:
		return m.executeComparison(i)
	}
	return m.executeArithmetic(i)
}

func (m *VirtualMachine) executeMisc(i bytecode.Instruction) error {
	switch bytecode.MiscSubcodeOf(i) {
	case bytecode.MiscJump:
		return m.executeJump(i)
	case bytecode.MiscMove:
		return m.executeMove(i)
	case bytecode.MiscCall:
		return m.executeCall(i)
	}
	return ErrUnimplemented // interrupt
}

func (m *VirtualMachine) executeJump(i bytecode.Instruction) error {
	d := bytecode.DecodeJump(i)
	switch d.Reason {
	case bytecode.ReasonSpecial:
		switch d.Special {
		case bytecode.SpecialNoOp:
			return nil
		case bytecode.SpecialReturn:
			return m.executeReturn()
		}
		return ErrUnimplemented
	case bytecode.ReasonAlways:
		return m.setPc(d.Target)
	}
	if d.CondClass != bytecode.DestRegister {
		return ErrUnimplemented
	}
	flag, err := m.register(d.Cond)
	if err != nil {
		return err
	}
	// Only the boolean values trigger a conditional jump: a non-boolean
	// condition matches neither sense.
	if (d.Reason == bytecode.ReasonIfFalse && flag.Equal(Bool(false))) ||
		(d.Reason == bytecode.ReasonIfTrue && flag.Equal(Bool(true))) {
		return m.setPc(d.Target)
	}
	return nil
}

func (m *VirtualMachine) executeReturn() error {
	if len(m.callStack) == 0 {
		return ErrEmptyCallStack
	}
	frame := m.callStack[len(m.callStack)-1]
	m.callStack = m.callStack[:len(m.callStack)-1]
	m.registerStack[frame.returnIndex] = m.registerStack[frame.registerStart]
	m.registerStack = m.registerStack[:frame.registerStart]
	return nil
}

func (m *VirtualMachine) executeMove(i bytecode.Instruction) error {
	d := bytecode.DecodeMove(i)
	source, err := m.wildValue(d.Source)
	if err != nil {
		return err
	}
	if d.DestClass != bytecode.DestRegister {
		return ErrUnimplemented
	}
	return m.setRegister(d.Dest, source)
}

func (m *VirtualMachine) executeCall(i bytecode.Instruction) error {
	d := bytecode.DecodeCall(i)
	caller, err := m.top()
	if err != nil {
		return err
	}
	if int(d.Function) >= len(caller.procedure.Functions) {
		return ErrMissingFunction
	}
	name := caller.procedure.Functions[d.Function]
	procedure, ok := m.functions[name]
	if !ok {
		return ErrMissingFunction
	}
	callerStart := caller.registerStart
	frameBase := len(m.registerStack)
	m.growRegisterStack(procedure.RegisterCount)
	for k := uint8(0); k < d.ArgCount; k++ {
		arg, err := m.register(d.ArgStart + k)
		if err != nil {
			return err
		}
		m.registerStack[frameBase+1+int(k)] = arg
	}
	m.callStack = append(m.callStack, stackFrame{
		procedure:     procedure,
		pc:            0,
		registerStart: frameBase,
		returnIndex:   callerStart + int(d.Dest),
	})
	return nil
}

func (m *VirtualMachine) executeIndex(i bytecode.Instruction) error {
	d := bytecode.DecodeIndex(i)
	if d.DestClass != bytecode.DestRegister {
		return ErrUnimplemented
	}
	source, err := m.wildValue(d.Source)
	if err != nil {
		return err
	}
	index, err := m.wildValue(d.Index)
	if err != nil {
		return err
	}
	if d.On == bytecode.OnSource {
		array, ok := source.Array()
		if !ok {
			return ErrUnimplemented
		}
		key, ok := index.Int()
		if !ok {
			return ErrUnimplemented
		}
		return m.setRegister(d.Dest, array.Get(key))
	}
	destination, err := m.register(d.Dest)
	if err != nil {
		return err
	}
	array, ok := destination.Array()
	if !ok {
		return ErrUnimplemented
	}
	key, ok := index.Int()
	if !ok {
		return ErrUnimplemented
	}
	array.Set(key, source)
	return nil
}

func (m *VirtualMachine) binarySources(first, second bytecode.Wild) (Value, Value, error) {
	firstValue, err := m.wildValue(first)
	if err != nil {
		return Nil(), Nil(), err
	}
	secondValue, err := m.wildValue(second)
	if err != nil {
		return Nil(), Nil(), err
	}
	return firstValue, secondValue, nil
}

func (m *VirtualMachine) executeComparison(i bytecode.Instruction) error {
	d := bytecode.DecodeCompare(i)
	first, second, err := m.binarySources(d.First, d.Second)
	if err != nil {
		return err
	}
	var result bool
	switch d.Subcode {
	case bytecode.CmpEq:
		result = first.Equal(second)
	case bytecode.CmpNe:
		result = !first.Equal(second)
	case bytecode.CmpLt:
		ord, ok := first.Compare(second)
		result = ok && ord < 0
	case bytecode.CmpGt:
		ord, ok := first.Compare(second)
		result = ok && ord > 0
	case bytecode.CmpLe:
		ord, ok := first.Compare(second)
		result = ok && ord <= 0
	case bytecode.CmpGe:
		ord, ok := first.Compare(second)
		result = ok && ord >= 0
	default:
		return ErrUnimplemented
	}
	return m.setRegister(d.Dest, Bool(result))
}

func (m *VirtualMachine) executeArithmetic(i bytecode.Instruction) error {
	d := bytecode.DecodeArithmetic(i)
	first, second, err := m.binarySources(d.First, d.Second)
	if err != nil {
		return err
	}
	var result Value
	switch d.Subcode {
	case bytecode.ArithAdd:
		result = first.Add(second)
	case bytecode.ArithSub:
		result = first.Sub(second)
	case bytecode.ArithMul:
		result = first.Mul(second)
	case bytecode.ArithDiv:
		result = first.Div(second)
	case bytecode.ArithRem:
		result = first.Rem(second)
	default:
		return ErrUnimplemented
	}
	return m.setRegister(d.Dest, result)
}
