package ast

import (
	"fmt"
	"strconv"

	"thirdlang/types"
)

// Parse parses source text into a program:
// an ordered sequence of class definitions and top-level statements.
// All expression types are types.Unknown until checked.
func Parse(src string) ([]TopLevel, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var prog []TopLevel
	for !p.at(tokEOF) {
		switch {
		case p.is("class"):
			c, err := p.classDef()
			if err != nil {
				return nil, err
			}
			prog = append(prog, c)
		case p.is("def"):
			f, err := p.funcDef()
			if err != nil {
				return nil, err
			}
			prog = append(prog, f)
		default:
			s, err := p.stmt()
			if err != nil {
				return nil, err
			}
			prog = append(prog, &StmtTopLevel{Stmt: s})
		}
	}
	return prog, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) tok() token  { return p.toks[p.pos] }
func (p *parser) peek() token { return p.toks[min(p.pos+1, len(p.toks)-1)] }

func (p *parser) at(k tokKind) bool { return p.tok().kind == k }

// is reports whether the current token is the given keyword or punctuation.
func (p *parser) is(text string) bool {
	t := p.tok()
	return (t.kind == tokKeyword || t.kind == tokPunct) && t.text == text
}

// got consumes the current token if it is the given keyword or punctuation.
func (p *parser) got(text string) bool {
	if p.is(text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) want(text string) error {
	if !p.got(text) {
		return p.errf("expected %q, got %q", text, p.tok().text)
	}
	return nil
}

func (p *parser) ident() (string, error) {
	if !p.at(tokIdent) {
		return "", p.errf("expected identifier, got %q", p.tok().text)
	}
	name := p.tok().text
	p.pos++
	return name, nil
}

func (p *parser) errf(format string, args ...interface{}) error {
	return fmt.Errorf("line %d: %s", p.tok().line, fmt.Sprintf(format, args...))
}

// sameLine reports whether the current token is on the same line as
// the previously consumed token. An expression continues onto a new
// line only through an open ( or {; otherwise a fresh line begins a
// new statement, so x = 7 followed by -x on the next line is two
// statements, not one subtraction.
func (p *parser) sameLine() bool {
	return p.tok().line == p.toks[p.pos-1].line
}

func (p *parser) classDef() (*ClassDef, error) {
	line := p.tok().line
	p.got("class")
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.want("{"); err != nil {
		return nil, err
	}
	c := &ClassDef{Name: name, Line: line}
	for !p.got("}") {
		switch {
		case p.is("def"):
			m, err := p.methodDef()
			if err != nil {
				return nil, err
			}
			c.Methods = append(c.Methods, m)
		case p.at(tokIdent):
			fname, err := p.ident()
			if err != nil {
				return nil, err
			}
			if err := p.want(":"); err != nil {
				return nil, err
			}
			typ, err := p.typ()
			if err != nil {
				return nil, err
			}
			c.Fields = append(c.Fields, FieldDef{Name: fname, Type: typ})
		default:
			return nil, p.errf("expected field or method, got %q", p.tok().text)
		}
	}
	return c, nil
}

func (p *parser) methodDef() (*MethodDef, error) {
	line := p.tok().line
	p.got("def")
	name := p.tok().text
	if !p.at(tokIdent) {
		return nil, p.errf("expected method name, got %q", name)
	}
	p.pos++
	if err := p.want("("); err != nil {
		return nil, err
	}
	if err := p.want("self"); err != nil {
		return nil, err
	}
	var parms []Parm
	for p.got(",") {
		parm, err := p.parm()
		if err != nil {
			return nil, err
		}
		parms = append(parms, parm)
	}
	if err := p.want(")"); err != nil {
		return nil, err
	}
	ret, err := p.retType()
	if err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	return &MethodDef{Name: name, Parms: parms, Ret: ret, Body: body, Line: line}, nil
}

func (p *parser) funcDef() (*FuncDef, error) {
	line := p.tok().line
	p.got("def")
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.want("("); err != nil {
		return nil, err
	}
	var parms []Parm
	if !p.is(")") {
		for {
			parm, err := p.parm()
			if err != nil {
				return nil, err
			}
			parms = append(parms, parm)
			if !p.got(",") {
				break
			}
		}
	}
	if err := p.want(")"); err != nil {
		return nil, err
	}
	ret, err := p.retType()
	if err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	return &FuncDef{Name: name, Parms: parms, Ret: ret, Body: body, Line: line}, nil
}

func (p *parser) parm() (Parm, error) {
	name, err := p.ident()
	if err != nil {
		return Parm{}, err
	}
	if err := p.want(":"); err != nil {
		return Parm{}, err
	}
	typ, err := p.typ()
	if err != nil {
		return Parm{}, err
	}
	return Parm{Name: name, Type: typ}, nil
}

func (p *parser) retType() (*types.Type, error) {
	if !p.got("->") {
		return types.Unit, nil
	}
	return p.typ()
}

func (p *parser) typ() (*types.Type, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	switch name {
	case "int":
		return types.Int, nil
	case "bool":
		return types.Bool, nil
	}
	return types.Class(name), nil
}

func (p *parser) block() ([]Stmt, error) {
	if err := p.want("{"); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for !p.got("}") {
		if p.at(tokEOF) {
			return nil, p.errf("unexpected end of input in block")
		}
		s, err := p.stmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func (p *parser) stmt() (Stmt, error) {
	switch {
	case p.is("def"):
		return nil, p.errf("function definitions are only allowed at the top level")
	case p.got("return"):
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		return &Ret{Expr: e}, nil
	case p.got("delete"):
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		return &Delete{Expr: e}, nil
	case p.at(tokIdent) && p.peek().text == ":" && p.peek().kind == tokPunct:
		// Annotated assignment: x: int = e.
		name, _ := p.ident()
		p.got(":")
		ann, err := p.typ()
		if err != nil {
			return nil, err
		}
		if err := p.want("="); err != nil {
			return nil, err
		}
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		return &Assign{Target: &VarTarget{Name: name}, Ann: ann, Expr: e}, nil
	}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.got("=") {
		target, err := asTarget(e)
		if err != nil {
			return nil, err
		}
		rhs, err := p.expr()
		if err != nil {
			return nil, err
		}
		return &Assign{Target: target, Expr: rhs}, nil
	}
	return &ExprStmt{Expr: e}, nil
}

// asTarget converts an already-parsed expression
// into an assignment target if it has the right shape.
func asTarget(e Expr) (Target, error) {
	switch e := e.(type) {
	case *Ident:
		return &VarTarget{Name: e.Name}, nil
	case *FieldAccess:
		return &FieldTarget{Obj: e.Obj, Field: e.Field}, nil
	}
	return nil, fmt.Errorf("cannot assign to %s", exprString(e))
}

var binPrec = map[string]int{
	"<": 1, ">": 1, "<=": 1, ">=": 1, "==": 1, "!=": 1,
	"+": 2, "-": 2,
	"*": 3, "/": 3, "%": 3,
}

var binOps = map[string]Op{
	"<": Lt, ">": Gt, "<=": Le, ">=": Ge, "==": Eq, "!=": Ne,
	"+": Add, "-": Sub, "*": Mul, "/": Div, "%": Mod,
}

func (p *parser) expr() (Expr, error) { return p.binExpr(1) }

func (p *parser) binExpr(prec int) (Expr, error) {
	if prec > 3 {
		return p.unary()
	}
	left, err := p.binExpr(prec + 1)
	if err != nil {
		return nil, err
	}
	for p.tok().kind == tokPunct && binPrec[p.tok().text] == prec && p.sameLine() {
		op := binOps[p.tok().text]
		p.pos++
		right, err := p.binExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) unary() (Expr, error) {
	switch {
	case p.got("-"):
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &UnOp{Op: Neg, X: x}, nil
	case p.got("!"):
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &UnOp{Op: Not, X: x}, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (Expr, error) {
	e, err := p.primary()
	if err != nil {
		return nil, err
	}
	for p.is(".") && p.sameLine() {
		p.pos++
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		if p.is("(") && p.sameLine() {
			args, err := p.args()
			if err != nil {
				return nil, err
			}
			e = &MethodCall{Obj: e, Method: name, Args: args}
		} else {
			e = &FieldAccess{Obj: e, Field: name}
		}
	}
	return e, nil
}

func (p *parser) primary() (Expr, error) {
	switch {
	case p.at(tokInt):
		v, err := strconv.ParseInt(p.tok().text, 10, 64)
		if err != nil {
			return nil, p.errf("bad integer literal %q", p.tok().text)
		}
		p.pos++
		return &IntLit{Val: v}, nil
	case p.got("true"):
		return &BoolLit{Val: true}, nil
	case p.got("false"):
		return &BoolLit{Val: false}, nil
	case p.got("self"):
		return &Self{}, nil
	case p.got("new"):
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		args, err := p.args()
		if err != nil {
			return nil, err
		}
		return &New{Class: name, Args: args}, nil
	case p.got("if"):
		cond, err := p.expr()
		if err != nil {
			return nil, err
		}
		then, err := p.block()
		if err != nil {
			return nil, err
		}
		var els []Stmt
		if p.got("else") {
			if els, err = p.block(); err != nil {
				return nil, err
			}
		}
		return &If{Cond: cond, Then: then, Else: els}, nil
	case p.got("while"):
		cond, err := p.expr()
		if err != nil {
			return nil, err
		}
		body, err := p.block()
		if err != nil {
			return nil, err
		}
		return &While{Cond: cond, Body: body}, nil
	case p.is("{"):
		stmts, err := p.block()
		if err != nil {
			return nil, err
		}
		return &Block{Stmts: stmts}, nil
	case p.got("("):
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.want(")"); err != nil {
			return nil, err
		}
		return e, nil
	case p.at(tokIdent):
		name, _ := p.ident()
		if p.is("(") && p.sameLine() {
			args, err := p.args()
			if err != nil {
				return nil, err
			}
			return &Call{Name: name, Args: args}, nil
		}
		return &Ident{Name: name}, nil
	}
	return nil, p.errf("expected expression, got %q", p.tok().text)
}

func (p *parser) args() ([]Expr, error) {
	if err := p.want("("); err != nil {
		return nil, err
	}
	var args []Expr
	if !p.is(")") {
		for {
			a, err := p.expr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if !p.got(",") {
				break
			}
		}
	}
	if err := p.want(")"); err != nil {
		return nil, err
	}
	return args, nil
}
