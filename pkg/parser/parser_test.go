package parser

import (
	"reflect"
	"testing"

	"github.com/lualite-lang/lualite/pkg/ast"
)

func parseOneFunction(t *testing.T, src string) *ast.FunctionDecl {
	t.Helper()
	fn, err := ParseFunction(src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return fn
}

func parseOneExpression(t *testing.T, src string) ast.Expression {
	t.Helper()
	fn := parseOneFunction(t, "function f() return "+src+" end")
	ret, ok := fn.Body[0].(*ast.ReturnStatement)
	if !ok || ret.Expr == nil {
		t.Fatalf("expected a return expression, got %#v", fn.Body[0])
	}
	return ret.Expr
}

func TestFunctionDecl(t *testing.T) {
	fn := parseOneFunction(t, `
function f(a, b)
  return (a + 1) * b
end
`)
	if fn.Name != "f" {
		t.Errorf("name = %q, want f", fn.Name)
	}
	if !reflect.DeepEqual(fn.Params, []string{"a", "b"}) {
		t.Errorf("params = %v", fn.Params)
	}
	want := &ast.ReturnStatement{
		Expr: &ast.BinaryExpr{
			Left: &ast.BinaryExpr{
				Left:  &ast.Identifier{Name: "a"},
				Op:    ast.Add,
				Right: &ast.IntegerLiteral{Value: 1},
			},
			Op:    ast.Mul,
			Right: &ast.Identifier{Name: "b"},
		},
	}
	if !reflect.DeepEqual(fn.Body, []ast.Statement{ast.Statement(want)}) {
		t.Errorf("body = %#v", fn.Body[0])
	}
}

func TestStaticDecl(t *testing.T) {
	declarations, err := ParseFile("static SIZE = 512\n")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	static, ok := declarations[0].(*ast.StaticDecl)
	if !ok {
		t.Fatalf("expected static declaration, got %#v", declarations[0])
	}
	if static.Name != "SIZE" {
		t.Errorf("name = %q", static.Name)
	}
	if !reflect.DeepEqual(static.Value, ast.Expression(&ast.IntegerLiteral{Value: 512})) {
		t.Errorf("value = %#v", static.Value)
	}
}

func TestMultiplicationBindsTighterThanAddition(t *testing.T) {
	got := parseOneExpression(t, "x + 1.0 * y")
	want := &ast.BinaryExpr{
		Left: &ast.Identifier{Name: "x"},
		Op:   ast.Add,
		Right: &ast.BinaryExpr{
			Left:  &ast.FloatLiteral{Value: 1.0},
			Op:    ast.Mul,
			Right: &ast.Identifier{Name: "y"},
		},
	}
	if !reflect.DeepEqual(got, ast.Expression(want)) {
		t.Errorf("got %#v", got)
	}
}

func TestParenthesesOverridePrecedence(t *testing.T) {
	got := parseOneExpression(t, "(x + 1.0) * y")
	want := &ast.BinaryExpr{
		Left: &ast.BinaryExpr{
			Left:  &ast.Identifier{Name: "x"},
			Op:    ast.Add,
			Right: &ast.FloatLiteral{Value: 1.0},
		},
		Op:    ast.Mul,
		Right: &ast.Identifier{Name: "y"},
	}
	if !reflect.DeepEqual(got, ast.Expression(want)) {
		t.Errorf("got %#v", got)
	}
}

func TestComparisonHasLowestPrecedence(t *testing.T) {
	got := parseOneExpression(t, "a + 1 <= b * 2")
	binary, ok := got.(*ast.BinaryExpr)
	if !ok || binary.Op != ast.Le {
		t.Fatalf("got %#v", got)
	}
	if _, ok := binary.Left.(*ast.BinaryExpr); !ok {
		t.Errorf("left = %#v", binary.Left)
	}
	if _, ok := binary.Right.(*ast.BinaryExpr); !ok {
		t.Errorf("right = %#v", binary.Right)
	}
}

func TestPowerBindsTighterThanUnary(t *testing.T) {
	// 2 * -x ^ 2 parses the power first: 2 * -(x ^ 2).
	got := parseOneExpression(t, "2 * -x ^ 2")
	binary, ok := got.(*ast.BinaryExpr)
	if !ok || binary.Op != ast.Mul {
		t.Fatalf("got %#v", got)
	}
	unary, ok := binary.Right.(*ast.UnaryExpr)
	if !ok || unary.Op != ast.Neg {
		t.Fatalf("right = %#v", binary.Right)
	}
	power, ok := unary.Right.(*ast.BinaryExpr)
	if !ok || power.Op != ast.Pow {
		t.Fatalf("inner = %#v", unary.Right)
	}
}

func TestNegativeLiterals(t *testing.T) {
	if got := parseOneExpression(t, "-11"); !reflect.DeepEqual(got, ast.Expression(&ast.IntegerLiteral{Value: -11})) {
		t.Errorf("-11 parsed as %#v", got)
	}
	if got := parseOneExpression(t, "-2.5"); !reflect.DeepEqual(got, ast.Expression(&ast.FloatLiteral{Value: -2.5})) {
		t.Errorf("-2.5 parsed as %#v", got)
	}
}

func TestCallAndIndexPostfix(t *testing.T) {
	call, ok := parseOneExpression(t, "f(x + 1, true)").(*ast.CallExpr)
	if !ok {
		t.Fatal("expected a call")
	}
	if !reflect.DeepEqual(call.Callee, ast.Expression(&ast.Identifier{Name: "f"})) {
		t.Errorf("callee = %#v", call.Callee)
	}
	if len(call.Args) != 2 {
		t.Fatalf("args = %#v", call.Args)
	}
	if !reflect.DeepEqual(call.Args[1], ast.Expression(&ast.BooleanLiteral{Value: true})) {
		t.Errorf("arg 1 = %#v", call.Args[1])
	}

	index, ok := parseOneExpression(t, "array[i - 1]").(*ast.IndexExpr)
	if !ok {
		t.Fatal("expected an index")
	}
	if !reflect.DeepEqual(index.Left, ast.Expression(&ast.Identifier{Name: "array"})) {
		t.Errorf("left = %#v", index.Left)
	}
}

func TestStatements(t *testing.T) {
	fn := parseOneFunction(t, `
function f(y, x)
  while y > 5 do
    f(y)
    y = y - g(x, y)
  end
  items[x] = y
  return
end
`)
	if len(fn.Body) != 3 {
		t.Fatalf("body has %d statements", len(fn.Body))
	}
	loop, ok := fn.Body[0].(*ast.WhileStatement)
	if !ok {
		t.Fatalf("statement 0 = %#v", fn.Body[0])
	}
	if len(loop.Body) != 2 {
		t.Fatalf("loop body has %d statements", len(loop.Body))
	}
	if _, ok := loop.Body[0].(*ast.ExprStatement); !ok {
		t.Errorf("loop statement 0 = %#v", loop.Body[0])
	}
	if _, ok := loop.Body[1].(*ast.AssignStatement); !ok {
		t.Errorf("loop statement 1 = %#v", loop.Body[1])
	}
	if _, ok := fn.Body[1].(*ast.IndexAssignStatement); !ok {
		t.Errorf("statement 1 = %#v", fn.Body[1])
	}
	ret, ok := fn.Body[2].(*ast.ReturnStatement)
	if !ok || ret.Expr != nil {
		t.Errorf("statement 2 = %#v", fn.Body[2])
	}
}

func TestElseifDesugarsToNestedIf(t *testing.T) {
	fn := parseOneFunction(t, `
function f(x)
  if x == 9 then
    return 1
  elseif x == 7 then
    return 2
  elseif x <= 0 then
    return 3
  else
    return 4
  end
end
`)
	outer, ok := fn.Body[0].(*ast.IfStatement)
	if !ok {
		t.Fatalf("statement = %#v", fn.Body[0])
	}
	middle, ok := outer.Else[0].(*ast.IfStatement)
	if !ok || len(outer.Else) != 1 {
		t.Fatalf("first elseif = %#v", outer.Else)
	}
	inner, ok := middle.Else[0].(*ast.IfStatement)
	if !ok || len(middle.Else) != 1 {
		t.Fatalf("second elseif = %#v", middle.Else)
	}
	if len(inner.Else) != 1 {
		t.Fatalf("else body = %#v", inner.Else)
	}
	if _, ok := inner.Else[0].(*ast.ReturnStatement); !ok {
		t.Errorf("else statement = %#v", inner.Else[0])
	}
}

func TestIfWithoutElse(t *testing.T) {
	fn := parseOneFunction(t, `
function f(x)
  if x >= 5 then
    f(x)
  end
end
`)
	cond, ok := fn.Body[0].(*ast.IfStatement)
	if !ok {
		t.Fatalf("statement = %#v", fn.Body[0])
	}
	if cond.Else != nil {
		t.Errorf("else = %#v", cond.Else)
	}
}

func TestCommentsAndWhitespace(t *testing.T) {
	fn := parseOneFunction(t, `
# leading comment
function f()   # trailing comment
  # comment between statements
  return 1  # and after expressions
end
`)
	if len(fn.Body) != 1 {
		t.Fatalf("body = %#v", fn.Body)
	}
}

func TestStringLiteral(t *testing.T) {
	got := parseOneExpression(t, `"hello world"`)
	if !reflect.DeepEqual(got, ast.Expression(&ast.StringLiteral{Value: "hello world"})) {
		t.Errorf("got %#v", got)
	}
}

func TestKeywordsAreNotIdentifiers(t *testing.T) {
	if _, err := ParseFile("function while() end"); err == nil {
		t.Error("keyword as function name parsed")
	}
	if _, err := ParseFile("function f(end) end"); err == nil {
		t.Error("keyword as parameter parsed")
	}
}

func TestParseErrorsCarryPosition(t *testing.T) {
	_, err := ParseFile("function f(\n  return 1\nend")
	if err == nil {
		t.Fatal("expected a parse error")
	}
	parseErr, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("error type = %T", err)
	}
	if parseErr.Line < 1 || parseErr.Col < 1 {
		t.Errorf("position = %d:%d", parseErr.Line, parseErr.Col)
	}
}

func TestUnterminatedStringFails(t *testing.T) {
	if _, err := ParseFile("function f() return \"oops end"); err == nil {
		t.Error("unterminated string parsed")
	}
}

func TestFloatRequiresDot(t *testing.T) {
	if got := parseOneExpression(t, "537"); !reflect.DeepEqual(got, ast.Expression(&ast.IntegerLiteral{Value: 537})) {
		t.Errorf("537 parsed as %#v", got)
	}
	if got := parseOneExpression(t, "537.0"); !reflect.DeepEqual(got, ast.Expression(&ast.FloatLiteral{Value: 537.0})) {
		t.Errorf("537.0 parsed as %#v", got)
	}
}
