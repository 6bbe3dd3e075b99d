// Package compiler lowers the syntax tree into bit-packed bytecode
// procedures. One Procedure is emitted per function declaration; the
// compiler maps identifiers to registers, interns literals and referenced
// function names into per-procedure tables, allocates temporaries with
// deferred register numbering, and back-patches control-flow targets.
package compiler

import (
	"fmt"

	"github.com/lualite-lang/lualite/pkg/ast"
	"github.com/lualite-lang/lualite/pkg/bytecode"
)

// Per-procedure table limits imposed by the 8-bit operand encodings and
// the 4-bit call argument count.
const (
	maxRegisters    = 256
	maxConstants    = 256
	maxFunctionKeys = 256
	maxCallArgs     = 15
	maxBytecodeLen  = 1 << 16
)

// Compiled pairs a function's name with its procedure, in declaration
// order.
type Compiled struct {
	Name      string
	Procedure *bytecode.Procedure
}

// CompileDeclarations compiles every function declaration in order.
// Static declarations are parsed but not lowered; they are skipped here.
func CompileDeclarations(declarations []ast.Declaration) ([]Compiled, error) {
	var functions []Compiled
	for _, declaration := range declarations {
		fn, ok := declaration.(*ast.FunctionDecl)
		if !ok {
			continue
		}
		procedure, err := CompileFunction(fn)
		if err != nil {
			return nil, fmt.Errorf("function %q: %w", fn.Name, err)
		}
		functions = append(functions, Compiled{Name: fn.Name, Procedure: procedure})
	}
	return functions, nil
}

// FunctionMap converts a compiled slice into the name→procedure table a
// virtual machine is built from.
func FunctionMap(functions []Compiled) map[string]*bytecode.Procedure {
	table := make(map[string]*bytecode.Procedure, len(functions))
	for _, fn := range functions {
		table[fn.Name] = fn.Procedure
	}
	return table
}

// CompileFunction compiles one function declaration into a procedure.
func CompileFunction(fn *ast.FunctionDecl) (*bytecode.Procedure, error) {
	fc := newFunctionCompiler(fn.Params)
	for _, statement := range fn.Body {
		fc.compileStatement(statement)
	}
	// Add the implicit return if the body does not end with one; the
	// return slot then holds its default nil.
	if n := len(fn.Body); n == 0 || !isReturn(fn.Body[n-1]) {
		fc.compileStatement(&ast.ReturnStatement{})
	}
	return fc.finish()
}

func isReturn(statement ast.Statement) bool {
	_, ok := statement.(*ast.ReturnStatement)
	return ok
}

// registerOperand is an operand with register class, usable on either
// side of an instruction: a RawRegister or a deferred Temporary.
type registerOperand interface {
	bytecode.Source
	bytecode.Destination
}

// functionCompiler holds the per-function compilation state.
type functionCompiler struct {
	// code is the append-only bytecode buffer. Index 0 holds the no-op
	// sentinel so the fetch loop's pre-increment lands on the first real
	// instruction.
	code []bytecode.Instruction

	// identMap assigns registers to identifiers. Register 0 is the
	// return slot, registers 1..N the parameters in declaration order;
	// any further identifier takes the next free register on first
	// occurrence.
	identMap     map[string]bytecode.RawRegister
	nextRegister int
	paramCount   int

	temps        *tempAllocator
	constants    []bytecode.ConstantValue
	functionKeys []string

	// err is the first structural failure (table overflow, unsupported
	// form). Once set, compilation keeps no further state.
	err error
}

func newFunctionCompiler(params []string) *functionCompiler {
	fc := &functionCompiler{
		code:         []bytecode.Instruction{bytecode.Nop()},
		identMap:     make(map[string]bytecode.RawRegister, len(params)),
		nextRegister: 1 + len(params),
		paramCount:   len(params),
		temps:        newTempAllocator(1),
	}
	for i, param := range params {
		fc.identMap[param] = bytecode.RawRegister(1 + i)
	}
	return fc
}

func (fc *functionCompiler) fail(format string, args ...any) {
	if fc.err == nil {
		fc.err = fmt.Errorf(format, args...)
	}
}

func (fc *functionCompiler) finish() (*bytecode.Procedure, error) {
	if fc.err != nil {
		return nil, fc.err
	}
	registerCount := 1 + len(fc.identMap) + fc.temps.count()
	if registerCount > maxRegisters {
		return nil, fmt.Errorf("needs %d registers, limit is %d", registerCount, maxRegisters)
	}
	fc.temps.reconcile(uint8(1+len(fc.identMap)), fc.code)
	return &bytecode.Procedure{
		Bytecode:      fc.code,
		RegisterCount: registerCount,
		MaxArgs:       fc.paramCount,
		Constants:     fc.constants,
		Functions:     fc.functionKeys,
	}, nil
}

// push appends an instruction and tells the temp allocator where the next
// one will land.
func (fc *functionCompiler) push(instruction bytecode.Instruction) {
	if len(fc.code) >= maxBytecodeLen {
		fc.fail("bytecode exceeds %d instructions", maxBytecodeLen)
		return
	}
	fc.code = append(fc.code, instruction)
	fc.temps.setNextInstructionOffset(len(fc.code))
}

// nextInstructionPointer is the jump target that makes the pre-increment
// fetch land on the next instruction to be pushed.
func (fc *functionCompiler) nextInstructionPointer() bytecode.InstructionPointer {
	return bytecode.InstructionPointer(len(fc.code) - 1)
}

// patchJump ORs the now-known target into a placeholder jump word.
func (fc *functionCompiler) patchJump(offset int, target bytecode.InstructionPointer) {
	fc.code[offset] |= target.EncodeBoth()
}

func (fc *functionCompiler) registerForReturn() bytecode.RawRegister {
	return bytecode.RawRegister(0)
}

func (fc *functionCompiler) registerFor(ident string) bytecode.RawRegister {
	if register, ok := fc.identMap[ident]; ok {
		return register
	}
	if fc.nextRegister >= maxRegisters {
		fc.fail("too many locals, limit is %d registers", maxRegisters)
		return 0
	}
	register := bytecode.RawRegister(fc.nextRegister)
	fc.identMap[ident] = register
	fc.nextRegister++
	return register
}

// immediateOrConstantFor lowers an integer literal: values in -128..=127
// become immediates, anything else is interned as a constant.
func (fc *functionCompiler) immediateOrConstantFor(value int64) bytecode.Source {
	if value >= -128 && value <= 127 {
		return bytecode.Immediate(value)
	}
	return fc.constantFor(bytecode.IntegerConstant(value))
}

// constantFor interns a constant, reusing any structurally equal entry.
func (fc *functionCompiler) constantFor(value bytecode.ConstantValue) bytecode.ConstantKey {
	for key, existing := range fc.constants {
		if existing.Equal(value) {
			return bytecode.ConstantKey(key)
		}
	}
	if len(fc.constants) >= maxConstants {
		fc.fail("too many constants, limit is %d", maxConstants)
		return 0
	}
	fc.constants = append(fc.constants, value)
	return bytecode.ConstantKey(len(fc.constants) - 1)
}

// functionKeyFor interns a referenced function name.
func (fc *functionCompiler) functionKeyFor(name string) bytecode.FunctionKey {
	for key, existing := range fc.functionKeys {
		if existing == name {
			return bytecode.FunctionKey(key)
		}
	}
	if len(fc.functionKeys) >= maxFunctionKeys {
		fc.fail("too many referenced functions, limit is %d", maxFunctionKeys)
		return 0
	}
	fc.functionKeys = append(fc.functionKeys, name)
	return bytecode.FunctionKey(len(fc.functionKeys) - 1)
}

// release drops a temporary operand; raw registers pass through untouched.
func release(operand bytecode.Source) {
	if temp, ok := operand.(*Temporary); ok {
		temp.Release()
	}
}

func (fc *functionCompiler) compileStatement(statement ast.Statement) {
	if fc.err != nil {
		return
	}
	switch s := statement.(type) {
	case *ast.ExprStatement:
		fc.compileExpression(fc.registerForReturn(), s.Expr)
	case *ast.AssignStatement:
		fc.compileExpression(fc.registerFor(s.Name), s.Expr)
	case *ast.IndexAssignStatement:
		dest := fc.compileIntoRegister(s.Table)
		index := fc.compileIntoWildcard(s.Index)
		value := fc.compileIntoWildcard(s.Value)
		fc.push(bytecode.Index(bytecode.OnDestination, dest, value, index))
		release(dest)
		release(index)
		release(value)
	case *ast.ReturnStatement:
		if s.Expr != nil {
			fc.compileExpression(fc.registerForReturn(), s.Expr)
		}
		fc.push(bytecode.Ret())
	case *ast.WhileStatement:
		fc.compileWhile(s)
	case *ast.IfStatement:
		fc.compileIf(s)
	default:
		fc.fail("unsupported statement %T", statement)
	}
}

// compileCondition materializes a branch condition into a register: an
// identifier's register directly, anything else into a temporary.
func (fc *functionCompiler) compileCondition(condition ast.Expression) registerOperand {
	if ident, ok := condition.(*ast.Identifier); ok {
		return fc.registerFor(ident.Name)
	}
	temp := fc.temps.take()
	fc.compileExpression(temp, condition)
	return temp
}

func (fc *functionCompiler) compileWhile(s *ast.WhileStatement) {
	beginIP := fc.nextInstructionPointer()
	condition := fc.compileCondition(s.Condition)
	jumpOffset := len(fc.code)
	fc.push(bytecode.JmpIfFalse(condition, 0))
	for _, statement := range s.Body {
		fc.compileStatement(statement)
	}
	fc.push(bytecode.Jmp(beginIP))
	if fc.err == nil {
		fc.patchJump(jumpOffset, fc.nextInstructionPointer())
	}
	release(condition)
}

func (fc *functionCompiler) compileIf(s *ast.IfStatement) {
	condition := fc.compileCondition(s.Condition)
	ifFalseOffset := len(fc.code)
	fc.push(bytecode.JmpIfFalse(condition, 0))
	for _, statement := range s.Body {
		fc.compileStatement(statement)
	}
	if fc.err != nil {
		release(condition)
		return
	}
	if s.Else == nil {
		fc.patchJump(ifFalseOffset, fc.nextInstructionPointer())
	} else {
		jumpOverElseOffset := len(fc.code)
		fc.push(bytecode.Jmp(0))
		elseIP := fc.nextInstructionPointer()
		for _, statement := range s.Else {
			fc.compileStatement(statement)
		}
		if fc.err == nil {
			fc.patchJump(ifFalseOffset, elseIP)
			fc.patchJump(jumpOverElseOffset, fc.nextInstructionPointer())
		}
	}
	release(condition)
}

// arithmeticSubcode maps an operator to its arithmetic sub-op, if it has
// one.
func arithmeticSubcode(op ast.BinaryOp) (bytecode.ArithSubcode, bool) {
	switch op {
	case ast.Add:
		return bytecode.ArithAdd, true
	case ast.Sub:
		return bytecode.ArithSub, true
	case ast.Mul:
		return bytecode.ArithMul, true
	case ast.Div:
		return bytecode.ArithDiv, true
	case ast.Rem:
		return bytecode.ArithRem, true
	case ast.Pow:
		return bytecode.ArithPow, true
	}
	return 0, false
}

// comparisonSubcode maps an operator to its comparison sub-op, if it has
// one.
func comparisonSubcode(op ast.BinaryOp) (bytecode.CompareSubcode, bool) {
	switch op {
	case ast.Eq:
		return bytecode.CmpEq, true
	case ast.Ne:
		return bytecode.CmpNe, true
	case ast.Lt:
		return bytecode.CmpLt, true
	case ast.Gt:
		return bytecode.CmpGt, true
	case ast.Le:
		return bytecode.CmpLe, true
	case ast.Ge:
		return bytecode.CmpGe, true
	}
	return 0, false
}

// compileExpression compiles an expression so its result lands in dest.
func (fc *functionCompiler) compileExpression(dest registerOperand, expression ast.Expression) {
	if fc.err != nil {
		return
	}
	switch e := expression.(type) {
	case *ast.Identifier:
		fc.push(bytecode.Mov(dest, fc.registerFor(e.Name)))
	case *ast.IntegerLiteral:
		fc.push(bytecode.Mov(dest, fc.immediateOrConstantFor(e.Value)))
	case *ast.FloatLiteral:
		fc.push(bytecode.Mov(dest, fc.constantFor(bytecode.FloatConstant(e.Value))))
	case *ast.StringLiteral:
		fc.push(bytecode.Mov(dest, fc.constantFor(bytecode.StringConstant(e.Value))))
	case *ast.BooleanLiteral:
		fc.push(bytecode.Mov(dest, fc.constantFor(bytecode.BooleanConstant(e.Value))))
	case *ast.UnaryExpr:
		fc.compileUnary(dest, e)
	case *ast.BinaryExpr:
		fc.compileBinary(dest, e)
	case *ast.CallExpr:
		fc.compileCall(dest, e)
	case *ast.IndexExpr:
		source := fc.compileIntoWildcard(e.Left)
		index := fc.compileIntoWildcard(e.Index)
		fc.push(bytecode.Index(bytecode.OnSource, dest, source, index))
		release(source)
		release(index)
	default:
		fc.fail("unsupported expression %T", expression)
	}
}

// compileUnary lowers prefix negation. Literal operands fold into negated
// literals; anything else lowers as 0 - x, which negates integers and
// yields nil for other operand types per the arithmetic typing rules.
func (fc *functionCompiler) compileUnary(dest registerOperand, e *ast.UnaryExpr) {
	if e.Op != ast.Neg {
		fc.fail("unsupported unary operator %d", e.Op)
		return
	}
	switch right := e.Right.(type) {
	case *ast.IntegerLiteral:
		fc.push(bytecode.Mov(dest, fc.immediateOrConstantFor(-right.Value)))
	case *ast.FloatLiteral:
		fc.push(bytecode.Mov(dest, fc.constantFor(bytecode.FloatConstant(-right.Value))))
	default:
		operand := fc.compileIntoRegister(e.Right)
		fc.push(bytecode.MathWR(bytecode.ArithSub, dest, bytecode.Immediate(0), operand))
		release(operand)
	}
}

func (fc *functionCompiler) compileBinary(dest registerOperand, e *ast.BinaryExpr) {
	arith, isArith := arithmeticSubcode(e.Op)
	compare, isCompare := comparisonSubcode(e.Op)
	if !isArith && !isCompare {
		fc.fail("unsupported binary operator %s", e.Op)
		return
	}
	// At most one operand may be a wildcard; the other must be a
	// register. A literal left side takes the wildcard slot, otherwise
	// the right side does.
	if fc.needsWildcard(e.Left) {
		first := fc.compileIntoWildcard(e.Left)
		second := fc.compileIntoRegister(e.Right)
		if isArith {
			fc.push(bytecode.MathWR(arith, dest, first, second))
		} else {
			fc.push(bytecode.CmpWR(compare, dest, first, second))
		}
		release(first)
		release(second)
		return
	}
	first := fc.compileIntoRegister(e.Left)
	second := fc.compileIntoWildcard(e.Right)
	if isArith {
		fc.push(bytecode.MathRW(arith, dest, first, second))
	} else {
		fc.push(bytecode.CmpRW(compare, dest, first, second))
	}
	release(first)
	release(second)
}

// compileCall lowers a call-by-name. Arguments are evaluated into a
// contiguous range of temporaries so the call instruction can name them
// as a single register range.
func (fc *functionCompiler) compileCall(dest registerOperand, e *ast.CallExpr) {
	callee, ok := e.Callee.(*ast.Identifier)
	if !ok {
		fc.fail("only named functions can be called")
		return
	}
	if len(e.Args) > maxCallArgs {
		fc.fail("call to %q has %d arguments, limit is %d", callee.Name, len(e.Args), maxCallArgs)
		return
	}
	argTemps := fc.temps.takeRange(len(e.Args))
	for i, arg := range e.Args {
		fc.compileExpression(argTemps[i], arg)
	}
	var argStart bytecode.Source = bytecode.RawRegister(0)
	if len(argTemps) > 0 {
		argStart = argTemps[0].Retain()
	}
	key := fc.functionKeyFor(callee.Name)
	fc.push(bytecode.Call(uint8(len(e.Args)), dest, key, argStart))
	release(argStart)
	for _, temp := range argTemps {
		temp.Release()
	}
}

// needsWildcard reports whether a leaf expression should be fed to a
// binary op as its wildcard operand: literals qualify, identifiers are
// already registers, and nested expressions are materialized first.
func (fc *functionCompiler) needsWildcard(expression ast.Expression) bool {
	switch expression.(type) {
	case *ast.IntegerLiteral, *ast.FloatLiteral, *ast.StringLiteral, *ast.BooleanLiteral:
		return true
	}
	return false
}

// compileIntoRegister yields a register-class operand holding the
// expression's value: an identifier's own register, or a fresh temporary
// the expression is compiled into.
func (fc *functionCompiler) compileIntoRegister(expression ast.Expression) registerOperand {
	if ident, ok := expression.(*ast.Identifier); ok {
		return fc.registerFor(ident.Name)
	}
	temp := fc.temps.take()
	fc.compileExpression(temp, expression)
	return temp
}

// compileIntoWildcard yields a source operand for the expression:
// literals become immediates or constant keys directly, identifiers their
// registers, and nested expressions a temporary.
func (fc *functionCompiler) compileIntoWildcard(expression ast.Expression) bytecode.Source {
	switch e := expression.(type) {
	case *ast.Identifier:
		return fc.registerFor(e.Name)
	case *ast.IntegerLiteral:
		return fc.immediateOrConstantFor(e.Value)
	case *ast.FloatLiteral:
		return fc.constantFor(bytecode.FloatConstant(e.Value))
	case *ast.StringLiteral:
		return fc.constantFor(bytecode.StringConstant(e.Value))
	case *ast.BooleanLiteral:
		return fc.constantFor(bytecode.BooleanConstant(e.Value))
	}
	temp := fc.temps.take()
	fc.compileExpression(temp, expression)
	return temp
}
