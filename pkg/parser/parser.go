package parser

import (
	"github.com/lualite-lang/lualite/pkg/ast"
)

// ParseFile parses a whole source file into its top-level declarations.
func ParseFile(src string) ([]ast.Declaration, error) {
	toks, err := scan(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var declarations []ast.Declaration
	for !p.atEOF() {
		declaration, err := p.parseDeclaration()
		if err != nil {
			return nil, err
		}
		declarations = append(declarations, declaration)
	}
	return declarations, nil
}

// ParseFunction parses a single function declaration, which is convenient
// for embedding and tests.
func ParseFunction(src string) (*ast.FunctionDecl, error) {
	toks, err := scan(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	fn, err := p.parseFunctionDecl()
	if err != nil {
		return nil, err
	}
	if !p.atEOF() {
		t := p.cur()
		return nil, errorAt(t.line, t.col, "unexpected %s after function", t.describe())
	}
	return fn, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) atEOF() bool { return p.cur().kind == tokEOF }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// save and restore give the statement parser its lookahead: try one
// shape, roll back, try another.
func (p *parser) save() int        { return p.pos }
func (p *parser) restore(mark int) { p.pos = mark }

func (p *parser) atKeyword(kw string) bool {
	t := p.cur()
	return t.kind == tokKeyword && t.text == kw
}

func (p *parser) atOp(op string) bool {
	t := p.cur()
	return t.kind == tokOp && t.text == op
}

func (p *parser) acceptKeyword(kw string) bool {
	if p.atKeyword(kw) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) acceptOp(op string) bool {
	if p.atOp(op) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectKeyword(kw string) error {
	if !p.acceptKeyword(kw) {
		t := p.cur()
		return errorAt(t.line, t.col, "expected %q, found %s", kw, t.describe())
	}
	return nil
}

func (p *parser) expectOp(op string) error {
	if !p.acceptOp(op) {
		t := p.cur()
		return errorAt(t.line, t.col, "expected %q, found %s", op, t.describe())
	}
	return nil
}

func (p *parser) expectIdent() (string, error) {
	t := p.cur()
	if t.kind != tokIdent {
		return "", errorAt(t.line, t.col, "expected identifier, found %s", t.describe())
	}
	p.advance()
	return t.text, nil
}

// Declarations

func (p *parser) parseDeclaration() (ast.Declaration, error) {
	switch {
	case p.atKeyword("function"):
		return p.parseFunctionDecl()
	case p.atKeyword("static"):
		return p.parseStaticDecl()
	}
	t := p.cur()
	return nil, errorAt(t.line, t.col, "expected declaration, found %s", t.describe())
}

func (p *parser) parseFunctionDecl() (*ast.FunctionDecl, error) {
	if err := p.expectKeyword("function"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	var params []string
	if !p.atOp(")") {
		for {
			param, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			params = append(params, param)
			if !p.acceptOp(",") {
				break
			}
		}
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return &ast.FunctionDecl{Name: name, Params: params, Body: body}, nil
}

func (p *parser) parseStaticDecl() (*ast.StaticDecl, error) {
	if err := p.expectKeyword("static"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp("="); err != nil {
		return nil, err
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ast.StaticDecl{Name: name, Value: value}, nil
}

// Statements

// parseBlock parses statements until a block terminator keyword (end,
// elseif, else) or end of input. The caller consumes the terminator.
func (p *parser) parseBlock() ([]ast.Statement, error) {
	var body []ast.Statement
	for {
		if p.atEOF() || p.atKeyword("end") || p.atKeyword("elseif") || p.atKeyword("else") {
			return body, nil
		}
		statement, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, statement)
	}
}

func (p *parser) parseStatement() (ast.Statement, error) {
	switch {
	case p.atKeyword("if"):
		p.advance()
		return p.parseIfClause()
	case p.atKeyword("while"):
		return p.parseWhile()
	case p.atKeyword("return"):
		return p.parseReturn()
	}
	if p.cur().kind == tokIdent {
		if statement, ok := p.tryAssignment(); ok {
			return statement, nil
		}
	}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ast.ExprStatement{Expr: expr}, nil
}

// tryAssignment attempts `ident = expr` and `ident[index] = expr`,
// rolling back when the statement turns out to be a plain expression
// (e.g. a call, or an index used as a value).
func (p *parser) tryAssignment() (ast.Statement, bool) {
	mark := p.save()
	name, _ := p.expectIdent()
	if p.acceptOp("=") {
		expr, err := p.parseExpression()
		if err == nil {
			return &ast.AssignStatement{Name: name, Expr: expr}, true
		}
		p.restore(mark)
		return nil, false
	}
	if p.acceptOp("[") {
		index, err := p.parseExpression()
		if err == nil && p.acceptOp("]") && p.acceptOp("=") {
			value, err := p.parseExpression()
			if err == nil {
				return &ast.IndexAssignStatement{
					Table: &ast.Identifier{Name: name},
					Index: index,
					Value: value,
				}, true
			}
		}
	}
	p.restore(mark)
	return nil, false
}

func (p *parser) parseReturn() (ast.Statement, error) {
	if err := p.expectKeyword("return"); err != nil {
		return nil, err
	}
	if !p.startsExpression() {
		return &ast.ReturnStatement{}, nil
	}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ast.ReturnStatement{Expr: expr}, nil
}

// startsExpression reports whether the current token can begin an
// expression, which decides whether `return` carries a value.
func (p *parser) startsExpression() bool {
	t := p.cur()
	switch t.kind {
	case tokIdent, tokInt, tokFloat, tokString:
		return true
	case tokKeyword:
		return t.text == "true" || t.text == "false"
	case tokOp:
		return t.text == "(" || t.text == "-"
	}
	return false
}

func (p *parser) parseWhile() (ast.Statement, error) {
	if err := p.expectKeyword("while"); err != nil {
		return nil, err
	}
	condition, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("do"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return &ast.WhileStatement{Condition: condition, Body: body}, nil
}

// parseIfClause parses the remainder of an if or elseif clause: the
// condition, then-body, and whatever follows. An elseif chain desugars
// into a nested IfStatement as the sole else statement, with the whole
// chain sharing one closing `end`.
func (p *parser) parseIfClause() (ast.Statement, error) {
	condition, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("then"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	switch {
	case p.acceptKeyword("elseif"):
		nested, err := p.parseIfClause()
		if err != nil {
			return nil, err
		}
		return &ast.IfStatement{
			Condition: condition,
			Body:      body,
			Else:      []ast.Statement{nested},
		}, nil
	case p.acceptKeyword("else"):
		elseBody, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("end"); err != nil {
			return nil, err
		}
		return &ast.IfStatement{Condition: condition, Body: body, Else: elseBody}, nil
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return &ast.IfStatement{Condition: condition, Body: body}, nil
}

// Expressions, lowest precedence first.

func (p *parser) parseExpression() (ast.Expression, error) {
	return p.parseComparison()
}

// parseComparison allows at most one comparison operator; comparisons do
// not chain.
func (p *parser) parseComparison() (ast.Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	ops := map[string]ast.BinaryOp{
		"==": ast.Eq, "!=": ast.Ne, "<=": ast.Le,
		">=": ast.Ge, "<": ast.Lt, ">": ast.Gt,
	}
	if t := p.cur(); t.kind == tokOp {
		if op, ok := ops[t.text]; ok {
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return &ast.BinaryExpr{Left: left, Op: op, Right: right}, nil
		}
	}
	return left, nil
}

func (p *parser) parseAdditive() (ast.Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinaryOp
		switch {
		case p.atOp("+"):
			op = ast.Add
		case p.atOp("-"):
			op = ast.Sub
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Left: left, Op: op, Right: right}
	}
}

func (p *parser) parseMultiplicative() (ast.Expression, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinaryOp
		switch {
		case p.atOp("*"):
			op = ast.Mul
		case p.atOp("/"):
			op = ast.Div
		case p.atOp("%"):
			op = ast.Rem
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Left: left, Op: op, Right: right}
	}
}

// parseUnary parses a right-associative chain of prefix minuses. Unary
// binds tighter than multiplication but looser than power.
func (p *parser) parseUnary() (ast.Expression, error) {
	count := 0
	for p.acceptOp("-") {
		count++
	}
	expr, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for ; count > 0; count-- {
		expr = &ast.UnaryExpr{Op: ast.Neg, Right: expr}
	}
	return expr, nil
}

// parsePower parses base ^ exponent. The exponent is a leaf, which makes
// power bind tighter than unary minus.
func (p *parser) parsePower() (ast.Expression, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.acceptOp("^") {
		exponent, err := p.parseLeaf()
		if err != nil {
			return nil, err
		}
		return &ast.BinaryExpr{Left: base, Op: ast.Pow, Right: exponent}, nil
	}
	return base, nil
}

// parsePostfix parses a leaf optionally followed by one call argument
// list or one index.
func (p *parser) parsePostfix() (ast.Expression, error) {
	left, err := p.parseLeaf()
	if err != nil {
		return nil, err
	}
	switch {
	case p.acceptOp("("):
		var args []ast.Expression
		if !p.atOp(")") {
			for {
				arg, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if !p.acceptOp(",") {
					break
				}
			}
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return &ast.CallExpr{Callee: left, Args: args}, nil
	case p.acceptOp("["):
		index, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp("]"); err != nil {
			return nil, err
		}
		return &ast.IndexExpr{Left: left, Index: index}, nil
	}
	return left, nil
}

func (p *parser) parseLeaf() (ast.Expression, error) {
	t := p.cur()
	switch t.kind {
	case tokIdent:
		p.advance()
		return &ast.Identifier{Name: t.text}, nil
	case tokInt:
		p.advance()
		return &ast.IntegerLiteral{Value: t.i}, nil
	case tokFloat:
		p.advance()
		return &ast.FloatLiteral{Value: t.f}, nil
	case tokString:
		p.advance()
		return &ast.StringLiteral{Value: t.text}, nil
	case tokKeyword:
		switch t.text {
		case "true":
			p.advance()
			return &ast.BooleanLiteral{Value: true}, nil
		case "false":
			p.advance()
			return &ast.BooleanLiteral{Value: false}, nil
		}
	case tokOp:
		switch t.text {
		case "(":
			p.advance()
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return expr, nil
		case "-":
			// A signed numeric literal in leaf position, e.g. `x = -1`
			// or `return -2.5`.
			next := p.toks[p.pos+1]
			if next.kind == tokInt {
				p.advance()
				p.advance()
				return &ast.IntegerLiteral{Value: -next.i}, nil
			}
			if next.kind == tokFloat {
				p.advance()
				p.advance()
				return &ast.FloatLiteral{Value: -next.f}, nil
			}
		}
	}
	return nil, errorAt(t.line, t.col, "expected expression, found %s", t.describe())
}
