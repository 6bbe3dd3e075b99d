package compiler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lualite-lang/lualite/pkg/bytecode"
	"github.com/lualite-lang/lualite/pkg/parser"
)

func compileSource(t *testing.T, src string) *bytecode.Procedure {
	t.Helper()
	fn, err := parser.ParseFunction(src)
	require.NoError(t, err)
	procedure, err := CompileFunction(fn)
	require.NoError(t, err)
	return procedure
}

// checkProcedure verifies the structural invariants every compiled
// procedure must satisfy: register operands stay inside the register
// window, constant keys inside the constant table, and function keys
// inside the function table.
func checkProcedure(t *testing.T, p *bytecode.Procedure) {
	t.Helper()
	require.LessOrEqual(t, p.RegisterCount, 256)

	checkRegister := func(ip int, r uint8) {
		assert.Less(t, int(r), p.RegisterCount,
			"instruction %d references register R%d, window is %d", ip, r, p.RegisterCount)
	}
	checkWild := func(ip int, w bytecode.Wild) {
		switch w.Class {
		case bytecode.SourceRegister:
			checkRegister(ip, w.Raw)
		case bytecode.SourceConstant:
			assert.Less(t, int(w.Raw), len(p.Constants),
				"instruction %d references constant &%d, table has %d", ip, w.Raw, len(p.Constants))
		}
	}

	for ip, word := range p.Bytecode {
		switch bytecode.SuperCodeOf(word) {
		case bytecode.SuperMisc:
			switch bytecode.MiscSubcodeOf(word) {
			case bytecode.MiscJump:
				d := bytecode.DecodeJump(word)
				if d.Reason == bytecode.ReasonIfFalse || d.Reason == bytecode.ReasonIfTrue {
					checkRegister(ip, d.Cond)
					assert.Less(t, int(d.Target), len(p.Bytecode),
						"instruction %d jumps to %d, bytecode has %d", ip, d.Target, len(p.Bytecode))
				}
			case bytecode.MiscMove:
				d := bytecode.DecodeMove(word)
				checkRegister(ip, d.Dest)
				checkWild(ip, d.Source)
			case bytecode.MiscCall:
				d := bytecode.DecodeCall(word)
				checkRegister(ip, d.Dest)
				assert.Less(t, int(d.Function), len(p.Functions))
				if d.ArgCount > 0 {
					checkRegister(ip, d.ArgStart+d.ArgCount-1)
				}
			}
		case bytecode.SuperIndex:
			d := bytecode.DecodeIndex(word)
			checkRegister(ip, d.Dest)
			checkWild(ip, d.Source)
			checkWild(ip, d.Index)
		case bytecode.SuperComparison:
			d := bytecode.DecodeCompare(word)
			checkRegister(ip, d.Dest)
			checkWild(ip, d.First)
			checkWild(ip, d.Second)
		case bytecode.SuperArithmetic:
			d := bytecode.DecodeArithmetic(word)
			checkRegister(ip, d.Dest)
			checkWild(ip, d.First)
			checkWild(ip, d.Second)
		}
	}
}

func TestImmediateVersusConstantBoundary(t *testing.T) {
	tests := []struct {
		literal   string
		wantClass bytecode.SourceClass
	}{
		{"0", bytecode.SourceImmediate},
		{"127", bytecode.SourceImmediate},
		{"-128", bytecode.SourceImmediate},
		{"128", bytecode.SourceConstant},
		{"-129", bytecode.SourceConstant},
		{"25000", bytecode.SourceConstant},
	}
	for _, tc := range tests {
		p := compileSource(t, fmt.Sprintf("function f() return %s end", tc.literal))
		d := bytecode.DecodeMove(p.Bytecode[1])
		assert.Equal(t, tc.wantClass, d.Source.Class, "literal %s", tc.literal)
	}
}

func TestSentinelNopAtIndexZero(t *testing.T) {
	p := compileSource(t, "function f() return 1 end")
	assert.Equal(t, bytecode.Nop(), p.Bytecode[0])
}

func TestConstantInterning(t *testing.T) {
	p := compileSource(t, `
function f()
  x = 1000
  y = 1000
  z = "hi there not short"
  w = "hi there not short"
  return x
end
`)
	require.Len(t, p.Constants, 2)
	assert.True(t, p.Constants[0].Equal(bytecode.IntegerConstant(1000)))
	assert.True(t, p.Constants[1].Equal(bytecode.StringConstant("hi there not short")))
}

func TestIntegerAndFloatConstantsStayDistinct(t *testing.T) {
	p := compileSource(t, `
function f()
  a = 300
  b = 300.0
  return a
end
`)
	assert.Len(t, p.Constants, 2)
}

func TestImplicitReturn(t *testing.T) {
	p := compileSource(t, "function f(a) x = a + 1 end")
	last := p.Bytecode[len(p.Bytecode)-1]
	d := bytecode.DecodeJump(last)
	assert.Equal(t, bytecode.SuperMisc, bytecode.SuperCodeOf(last))
	assert.Equal(t, bytecode.ReasonSpecial, d.Reason)
	assert.Equal(t, bytecode.SpecialReturn, d.Special)
}

func TestExplicitReturnGetsNoDuplicate(t *testing.T) {
	p := compileSource(t, "function f() return 1 end")
	// nop, mov, ret: no second ret appended.
	require.Len(t, p.Bytecode, 3)
}

func TestParametersClaimLowRegisters(t *testing.T) {
	p := compileSource(t, "function f(a, b, c) return b end")
	assert.Equal(t, 3, p.MaxArgs)
	d := bytecode.DecodeMove(p.Bytecode[1])
	assert.Equal(t, uint8(0), d.Dest)
	assert.Equal(t, bytecode.SourceRegister, d.Source.Class)
	assert.Equal(t, uint8(2), d.Source.Raw)
}

// TestGcdListing pins the exact lowering of the gcd function: condition
// temporaries numbered after the locals, back-patched branch targets
// using the pre-increment convention, and the loop jump back to ip 0.
func TestGcdListing(t *testing.T) {
	p := compileSource(t, `
function gcd(a, b)
  while a != b do
    if a > b then
      a = a - b
    else
      b = b - a
    end
  end
  return a
end
`)
	want := []string{
		"nop",
		"ne    R3 = R1 != R2",
		"jmp   ip 8      if !R3",
		"gt    R4 = R1 > R2",
		"jmp   ip 6      if !R4",
		"sub   R1 = R1 - R2",
		"jmp   ip 7    ",
		"sub   R2 = R2 - R1",
		"jmp   ip 0    ",
		"mov   R0 = R1",
		"ret",
	}
	require.Len(t, p.Bytecode, len(want))
	for ip, line := range want {
		assert.Equal(t, line, p.Bytecode[ip].String(), "instruction %d", ip)
	}
	assert.Equal(t, 5, p.RegisterCount)
	checkProcedure(t, p)
}

func TestTemporariesReuseSlots(t *testing.T) {
	p := compileSource(t, `
function f(a, b)
  x = (a + 1) * (b + 2)
  y = (a + 3) * (b + 4)
  return x + y
end
`)
	// return slot + a, b, x, y + two temporaries reused across both
	// assignments.
	assert.Equal(t, 7, p.RegisterCount)
	checkProcedure(t, p)
}

func TestCallArgumentsAreContiguous(t *testing.T) {
	p := compileSource(t, "function f(a) return g(a + 1, a + 2, a + 3) end")
	var call bytecode.DecodedCall
	found := false
	for _, word := range p.Bytecode {
		if bytecode.SuperCodeOf(word) == bytecode.SuperMisc &&
			bytecode.MiscSubcodeOf(word) == bytecode.MiscCall {
			call = bytecode.DecodeCall(word)
			found = true
		}
	}
	require.True(t, found, "no call instruction emitted")
	assert.Equal(t, uint8(3), call.ArgCount)
	assert.Equal(t, uint8(0), call.Dest)
	// One named local (a), so temporaries start at register 2.
	assert.Equal(t, uint8(2), call.ArgStart)
	assert.Equal(t, []string{"g"}, p.Functions)
	assert.Equal(t, 5, p.RegisterCount)
	checkProcedure(t, p)
}

func TestZeroArgumentCallUsesRegisterZeroStart(t *testing.T) {
	p := compileSource(t, "function f() return g() end")
	d := bytecode.DecodeCall(p.Bytecode[1])
	assert.Equal(t, uint8(0), d.ArgCount)
	assert.Equal(t, uint8(0), d.ArgStart)
}

func TestFunctionKeysIntern(t *testing.T) {
	p := compileSource(t, `
function f(a)
  x = g(a)
  y = g(x)
  z = h(y)
  return z
end
`)
	assert.Equal(t, []string{"g", "h"}, p.Functions)
}

func TestInvariantsAcrossPrograms(t *testing.T) {
	sources := []string{
		`function binary_search(array, length, needle)
  first = 0
  last = length - 1
  while first <= last do
    mid = (first + last) / 2
    if needle < array[mid] then
      last = mid - 1
    elseif needle > array[mid] then
      first = mid + 1
    else
      return mid
    end
  end
  return false
end`,
		`function nilakantha_series_sum(n)
  sum = 3.0
  x = 3.0
  add = true
  while n >= 0 do
    temp = (4.0 / ((x - 1.0) * x * (x + 1.0)))
    if add then
      sum = sum + temp
      add = false
    else
      sum = sum - temp
      add = true
    end
    x = x + 2.0
    n = n - 1
  end
  return sum
end`,
		`function main() return "hello world" end`,
	}
	for _, src := range sources {
		checkProcedure(t, compileSource(t, src))
	}
}

func TestTooManyCallArgumentsFails(t *testing.T) {
	args := make([]string, 16)
	for i := range args {
		args[i] = fmt.Sprintf("%d", i)
	}
	src := fmt.Sprintf("function f() return g(%s) end", strings.Join(args, ", "))
	fn, err := parser.ParseFunction(src)
	require.NoError(t, err)
	_, err = CompileFunction(fn)
	assert.Error(t, err)
}

func TestTooManyLocalsFails(t *testing.T) {
	var b strings.Builder
	b.WriteString("function f()\n")
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&b, "  v%d = %d\n", i, i%100)
	}
	b.WriteString("  return 0\nend")
	fn, err := parser.ParseFunction(b.String())
	require.NoError(t, err)
	_, err = CompileFunction(fn)
	assert.Error(t, err)
}

func TestStaticDeclarationsAreSkipped(t *testing.T) {
	declarations, err := parser.ParseFile(`
static SIZE = 512
function f() return 1 end
`)
	require.NoError(t, err)
	functions, err := CompileDeclarations(declarations)
	require.NoError(t, err)
	require.Len(t, functions, 1)
	assert.Equal(t, "f", functions[0].Name)
}

func TestTakeRangeFindsContiguousSlots(t *testing.T) {
	a := newTempAllocator(1)
	t0 := a.take()
	t1 := a.take()
	t2 := a.take()
	t1.Release()
	// Slot 1 is free but a range of two cannot use it alone: the range
	// extends past the end instead, reusing nothing in the middle.
	pair := a.takeRange(2)
	assert.Equal(t, 3, pair[0].slot)
	assert.Equal(t, 4, pair[1].slot)
	t0.Release()
	t2.Release()
	for _, temp := range pair {
		temp.Release()
	}
	// Everything free again: a range of three starts at slot 0.
	triple := a.takeRange(3)
	assert.Equal(t, 0, triple[0].slot)
	assert.Equal(t, 2, triple[2].slot)
	assert.Equal(t, 5, a.count())
}

func TestDeferredWritesResolveAfterLocalCount(t *testing.T) {
	// The temporary for (a + 1) is encoded before the compiler knows how
	// many locals the function has; its register number must still land
	// after all of them.
	p := compileSource(t, `
function f(a)
  y = (a + 1) * 2
  return y
end
`)
	// Locals: a, y -> R1, R2; the (a + 1) temporary must be R3.
	d := bytecode.DecodeArithmetic(p.Bytecode[1])
	assert.Equal(t, bytecode.ArithAdd, d.Subcode)
	assert.Equal(t, uint8(3), d.Dest)
	checkProcedure(t, p)
}
