// Package ast has the Thirdlang abstract syntax tree
// and a handwritten lexer and recursive-descent parser producing it.
//
// Every expression node carries a type that begins as types.Unknown;
// the typeck package resolves them in place.
package ast

import "thirdlang/types"

// A TopLevel is a top-level item of a program:
// either a class definition or a statement.
type TopLevel interface{ topLevel() }

// A ClassDef is a class definition: ordered fields and methods.
type ClassDef struct {
	Name    string
	Fields  []FieldDef
	Methods []*MethodDef
	Line    int
}

func (*ClassDef) topLevel() {}

// A FieldDef is a field declaration inside a class.
type FieldDef struct {
	Name string
	Type *types.Type
}

// A MethodDef is a method definition.
// The receiver is implicit and not listed in Parms.
// Ret is types.Unit for methods declared without a return type.
type MethodDef struct {
	Name  string
	Parms []Parm
	Ret   *types.Type
	Body  []Stmt
	Line  int
}

// A Parm is a declared parameter with its type annotation.
type Parm struct {
	Name string
	Type *types.Type
}

// A Stmt is a statement.
type Stmt interface{ stmt() }

// A FuncDef is a free function definition.
// It only appears at the top level.
type FuncDef struct {
	Name  string
	Parms []Parm
	Ret   *types.Type
	Body  []Stmt
	Line  int
}

func (*FuncDef) stmt()     {}
func (*FuncDef) topLevel() {}

// A Ret is a return statement.
type Ret struct {
	Expr Expr
}

func (*Ret) stmt() {}

// An Assign assigns to a variable or to a field.
// Ann is the optional declared type annotation, nil if absent.
type Assign struct {
	Target Target
	Ann    *types.Type
	Expr   Expr
}

func (*Assign) stmt() {}

// A Target is the left-hand side of an assignment.
type Target interface{ target() }

// A VarTarget assigns a plain variable.
type VarTarget struct {
	Name string
}

func (*VarTarget) target() {}

// A FieldTarget assigns a field of an object: self.x = e or obj.x = e.
type FieldTarget struct {
	Obj   Expr
	Field string
}

func (*FieldTarget) target() {}

// A Delete destroys a heap object:
// the destructor runs (if declared), then the memory is released.
type Delete struct {
	Expr Expr
}

func (*Delete) stmt() {}

// An ExprStmt evaluates an expression for its value or effect.
type ExprStmt struct {
	Expr Expr
}

func (*ExprStmt) stmt()     {}
func (*ExprStmt) topLevel() {}

// A StmtTopLevel wraps a non-function statement appearing at the top level.
type StmtTopLevel struct {
	Stmt Stmt
}

func (*StmtTopLevel) topLevel() {}

// An Expr is an expression node with an attached type.
// The type is types.Unknown until the checker resolves it.
type Expr interface {
	Type() *types.Type
	SetType(*types.Type)
	isExpr()
}

// expr is embedded by every expression node to carry its type.
type expr struct {
	typ *types.Type
}

func (e *expr) Type() *types.Type {
	if e.typ == nil {
		return types.Unknown
	}
	return e.typ
}

func (e *expr) SetType(t *types.Type) { e.typ = t }
func (*expr) isExpr()                 {}

// An IntLit is an integer literal.
type IntLit struct {
	expr
	Val int64
}

// A BoolLit is a boolean literal.
type BoolLit struct {
	expr
	Val bool
}

// An Ident is a variable reference.
type Ident struct {
	expr
	Name string
}

// A Self is a reference to the method receiver.
// Valid only inside a method body.
type Self struct {
	expr
}

// An Op names a unary or binary operator.
type Op int

const (
	Add Op = iota + 1
	Sub
	Mul
	Div
	Mod
	Lt
	Gt
	Le
	Ge
	Eq
	Ne
	Neg
	Not
)

func (op Op) String() string {
	switch op {
	case Add:
		return "+"
	case Sub, Neg:
		return "-"
	case Mul:
		return "*"
	case Div:
		return "/"
	case Mod:
		return "%"
	case Lt:
		return "<"
	case Gt:
		return ">"
	case Le:
		return "<="
	case Ge:
		return ">="
	case Eq:
		return "=="
	case Ne:
		return "!="
	case Not:
		return "!"
	}
	return "?"
}

// A UnOp is a unary operation.
type UnOp struct {
	expr
	Op Op
	X  Expr
}

// A BinOp is a binary operation.
type BinOp struct {
	expr
	Op    Op
	Left  Expr
	Right Expr
}

// A Call is a free-function call.
type Call struct {
	expr
	Name string
	Args []Expr
}

// A MethodCall is obj.method(args).
// The method resolves statically by the receiver's declared type.
type MethodCall struct {
	expr
	Obj    Expr
	Method string
	Args   []Expr
}

// A FieldAccess is obj.field.
type FieldAccess struct {
	expr
	Obj   Expr
	Field string
}

// A New is object construction: new ClassName(args).
// Its value is a pointer to a freshly heap-allocated instance.
type New struct {
	expr
	Class string
	Args  []Expr
}

// An If is a conditional. It may be used as an expression;
// its value is the last statement value of the taken branch.
type If struct {
	expr
	Cond Expr
	Then []Stmt
	Else []Stmt
}

// A While is a loop. Its value is always unit.
type While struct {
	expr
	Cond Expr
	Body []Stmt
}

// A Block is a brace-delimited statement sequence used as an expression;
// its value is the last statement value.
type Block struct {
	expr
	Stmts []Stmt
}

var (
	_ Expr = (*IntLit)(nil)
	_ Expr = (*BoolLit)(nil)
	_ Expr = (*Ident)(nil)
	_ Expr = (*Self)(nil)
	_ Expr = (*UnOp)(nil)
	_ Expr = (*BinOp)(nil)
	_ Expr = (*Call)(nil)
	_ Expr = (*MethodCall)(nil)
	_ Expr = (*FieldAccess)(nil)
	_ Expr = (*New)(nil)
	_ Expr = (*If)(nil)
	_ Expr = (*While)(nil)
	_ Expr = (*Block)(nil)
)
