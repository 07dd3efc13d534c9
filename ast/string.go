package ast

import (
	"fmt"
	"strings"

	"thirdlang/types"
)

// String returns a source-like rendering of a program.
func String(prog []TopLevel) string {
	var s strings.Builder
	for _, item := range prog {
		switch item := item.(type) {
		case *ClassDef:
			item.buildString(&s)
		case *FuncDef:
			buildFuncString(&s, item.Name, item.Parms, item.Ret, item.Body, "")
		case *StmtTopLevel:
			buildStmtString(&s, item.Stmt, "")
		}
	}
	return s.String()
}

func (c *ClassDef) buildString(s *strings.Builder) {
	fmt.Fprintf(s, "class %s {\n", c.Name)
	for _, f := range c.Fields {
		fmt.Fprintf(s, "\t%s: %s\n", f.Name, f.Type)
	}
	for _, m := range c.Methods {
		s.WriteString("\tdef ")
		s.WriteString(m.Name)
		s.WriteString("(self")
		for _, p := range m.Parms {
			fmt.Fprintf(s, ", %s: %s", p.Name, p.Type)
		}
		s.WriteString(")")
		if m.Ret.Kind != types.UnitKind {
			fmt.Fprintf(s, " -> %s", m.Ret)
		}
		s.WriteString(" {\n")
		for _, st := range m.Body {
			buildStmtString(s, st, "\t\t")
		}
		s.WriteString("\t}\n")
	}
	s.WriteString("}\n")
}

func buildFuncString(s *strings.Builder, name string, parms []Parm, ret *types.Type, body []Stmt, indent string) {
	fmt.Fprintf(s, "%sdef %s(", indent, name)
	for i, p := range parms {
		if i > 0 {
			s.WriteString(", ")
		}
		fmt.Fprintf(s, "%s: %s", p.Name, p.Type)
	}
	s.WriteString(")")
	if ret.Kind != types.UnitKind {
		fmt.Fprintf(s, " -> %s", ret)
	}
	s.WriteString(" {\n")
	for _, st := range body {
		buildStmtString(s, st, indent+"\t")
	}
	fmt.Fprintf(s, "%s}\n", indent)
}

func buildStmtString(s *strings.Builder, stmt Stmt, indent string) {
	switch stmt := stmt.(type) {
	case *FuncDef:
		buildFuncString(s, stmt.Name, stmt.Parms, stmt.Ret, stmt.Body, indent)
	case *Ret:
		fmt.Fprintf(s, "%sreturn %s\n", indent, exprString(stmt.Expr))
	case *Delete:
		fmt.Fprintf(s, "%sdelete %s\n", indent, exprString(stmt.Expr))
	case *Assign:
		switch t := stmt.Target.(type) {
		case *VarTarget:
			if stmt.Ann != nil {
				fmt.Fprintf(s, "%s%s: %s = %s\n", indent, t.Name, stmt.Ann, exprString(stmt.Expr))
			} else {
				fmt.Fprintf(s, "%s%s = %s\n", indent, t.Name, exprString(stmt.Expr))
			}
		case *FieldTarget:
			fmt.Fprintf(s, "%s%s.%s = %s\n", indent, exprString(t.Obj), t.Field, exprString(stmt.Expr))
		}
	case *ExprStmt:
		fmt.Fprintf(s, "%s%s\n", indent, exprString(stmt.Expr))
	default:
		panic(fmt.Sprintf("impossible type %T", stmt))
	}
}

func exprString(e Expr) string {
	var s strings.Builder
	buildExprString(&s, e)
	return s.String()
}

func buildExprString(s *strings.Builder, e Expr) {
	switch e := e.(type) {
	case *IntLit:
		fmt.Fprintf(s, "%d", e.Val)
	case *BoolLit:
		fmt.Fprintf(s, "%v", e.Val)
	case *Ident:
		s.WriteString(e.Name)
	case *Self:
		s.WriteString("self")
	case *UnOp:
		fmt.Fprintf(s, "(%s%s)", e.Op, exprString(e.X))
	case *BinOp:
		fmt.Fprintf(s, "(%s %s %s)", exprString(e.Left), e.Op, exprString(e.Right))
	case *Call:
		s.WriteString(e.Name)
		buildArgsString(s, e.Args)
	case *MethodCall:
		fmt.Fprintf(s, "%s.%s", exprString(e.Obj), e.Method)
		buildArgsString(s, e.Args)
	case *FieldAccess:
		fmt.Fprintf(s, "%s.%s", exprString(e.Obj), e.Field)
	case *New:
		fmt.Fprintf(s, "new %s", e.Class)
		buildArgsString(s, e.Args)
	case *If:
		fmt.Fprintf(s, "if %s ", exprString(e.Cond))
		buildInlineBlock(s, e.Then)
		if e.Else != nil {
			s.WriteString(" else ")
			buildInlineBlock(s, e.Else)
		}
	case *While:
		fmt.Fprintf(s, "while %s ", exprString(e.Cond))
		buildInlineBlock(s, e.Body)
	case *Block:
		buildInlineBlock(s, e.Stmts)
	default:
		panic(fmt.Sprintf("impossible type %T", e))
	}
}

// buildInlineBlock prints a nested statement list on one line.
// Statements need no separator; whitespace suffices to reparse them.
func buildInlineBlock(s *strings.Builder, stmts []Stmt) {
	if len(stmts) == 0 {
		s.WriteString("{ }")
		return
	}
	s.WriteString("{")
	for _, st := range stmts {
		s.WriteString(" ")
		buildInlineStmt(s, st)
	}
	s.WriteString(" }")
}

func buildInlineStmt(s *strings.Builder, stmt Stmt) {
	switch stmt := stmt.(type) {
	case *Ret:
		fmt.Fprintf(s, "return %s", exprString(stmt.Expr))
	case *Delete:
		fmt.Fprintf(s, "delete %s", exprString(stmt.Expr))
	case *Assign:
		switch t := stmt.Target.(type) {
		case *VarTarget:
			if stmt.Ann != nil {
				fmt.Fprintf(s, "%s: %s = %s", t.Name, stmt.Ann, exprString(stmt.Expr))
			} else {
				fmt.Fprintf(s, "%s = %s", t.Name, exprString(stmt.Expr))
			}
		case *FieldTarget:
			fmt.Fprintf(s, "%s.%s = %s", exprString(t.Obj), t.Field, exprString(stmt.Expr))
		}
	case *ExprStmt:
		buildExprString(s, stmt.Expr)
	default:
		panic(fmt.Sprintf("impossible type %T", stmt))
	}
}

func buildArgsString(s *strings.Builder, args []Expr) {
	s.WriteRune('(')
	for i, a := range args {
		if i > 0 {
			s.WriteString(", ")
		}
		buildExprString(s, a)
	}
	s.WriteRune(')')
}
