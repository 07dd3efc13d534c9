// Package typeck resolves the Unknown placeholder types of a parsed
// program and validates every construct against the Thirdlang typing
// rules: class registration, two-pass signature collection, then
// per-body local inference.
//
// Checking is not error-recovering: the first error (in program order)
// aborts and is returned; no partial typed tree is produced.
package typeck

import (
	"maps"

	"thirdlang/ast"
	"thirdlang/types"
)

// Info is the read-only result of a successful check:
// the class registry and the free-function signature table.
// Both are fully populated before any body is checked,
// which is what permits mutual recursion between functions
// and between methods of different classes.
type Info struct {
	Classes types.Registry
	Funcs   map[string]*types.FuncInfo
}

// Check type-checks a program, resolving every expression's type in place.
// On success no types.Unknown remains anywhere in the tree.
func Check(prog []ast.TopLevel) (*Info, error) {
	c := &checker{info: &Info{
		Classes: make(types.Registry),
		Funcs:   make(map[string]*types.FuncInfo),
	}}

	// Registration: class names first so that fields and signatures
	// may refer to classes declared later in the file.
	for _, item := range prog {
		cd, ok := item.(*ast.ClassDef)
		if !ok {
			continue
		}
		if _, ok := c.info.Classes[cd.Name]; ok {
			return nil, errf(Redef, "class %s redefined", cd.Name)
		}
		c.info.Classes[cd.Name] = types.NewClassInfo(cd.Name)
	}
	for _, item := range prog {
		if cd, ok := item.(*ast.ClassDef); ok {
			if err := c.registerClass(cd); err != nil {
				return nil, err
			}
		}
	}
	for _, item := range prog {
		fd, ok := item.(*ast.FuncDef)
		if !ok {
			continue
		}
		if _, ok := c.info.Funcs[fd.Name]; ok {
			return nil, errf(Redef, "function %s redefined", fd.Name)
		}
		fn := &types.FuncInfo{Name: fd.Name, Ret: fd.Ret}
		for _, p := range fd.Parms {
			if err := c.validType(p.Type); err != nil {
				return nil, err
			}
			fn.Parms = append(fn.Parms, types.Parm{Name: p.Name, Type: p.Type})
		}
		if err := c.validType(fd.Ret); err != nil {
			return nil, err
		}
		c.info.Funcs[fd.Name] = fn
	}

	// Body checking, in program order for deterministic diagnostics.
	for _, item := range prog {
		if cd, ok := item.(*ast.ClassDef); ok {
			if err := c.checkClass(cd); err != nil {
				return nil, err
			}
		}
	}
	for _, item := range prog {
		if fd, ok := item.(*ast.FuncDef); ok {
			if err := c.checkFunc(fd); err != nil {
				return nil, err
			}
		}
	}
	// Top-level statements share one persistent environment.
	top := make(env)
	for _, item := range prog {
		if st, ok := item.(*ast.StmtTopLevel); ok {
			if _, err := c.checkStmt(top, st.Stmt); err != nil {
				return nil, err
			}
		}
	}
	return c.info, nil
}

type checker struct {
	info  *Info
	class *types.ClassInfo // class being checked, nil outside methods
	ret   *types.Type      // declared return type of the enclosing body
}

// env maps local variable names to their inferred types.
type env map[string]*types.Type

func (c *checker) registerClass(cd *ast.ClassDef) error {
	ci := c.info.Classes[cd.Name]
	for _, f := range cd.Fields {
		if err := c.validType(f.Type); err != nil {
			return err
		}
		if _, _, ok := ci.Field(f.Name); ok {
			return errf(Redef, "field %s redefined on class %s", f.Name, cd.Name)
		}
		ci.AddField(f.Name, f.Type)
	}
	for _, m := range cd.Methods {
		if ci.Method(m.Name) != nil {
			return errf(Redef, "method %s redefined on class %s", m.Name, cd.Name)
		}
		mi := &types.MethodInfo{Class: cd.Name, Name: m.Name, Ret: m.Ret}
		for _, p := range m.Parms {
			if err := c.validType(p.Type); err != nil {
				return err
			}
			mi.Parms = append(mi.Parms, types.Parm{Name: p.Name, Type: p.Type})
		}
		if err := c.validType(m.Ret); err != nil {
			return err
		}
		ci.AddMethod(mi)
	}
	return nil
}

// validType rejects class-type annotations naming unregistered classes.
func (c *checker) validType(t *types.Type) error {
	if t.IsClass() {
		if _, ok := c.info.Classes[t.Name]; !ok {
			return errf(UndefClass, "undefined class: %s", t.Name)
		}
	}
	return nil
}

func (c *checker) checkClass(cd *ast.ClassDef) error {
	c.class = c.info.Classes[cd.Name]
	defer func() { c.class = nil }()
	for _, m := range cd.Methods {
		locals := make(env)
		locals["self"] = types.Class(cd.Name)
		for _, p := range m.Parms {
			locals[p.Name] = p.Type
		}
		c.ret = m.Ret
		for _, st := range m.Body {
			if _, err := c.checkStmt(locals, st); err != nil {
				c.ret = nil
				return err
			}
		}
		c.ret = nil
	}
	return nil
}

func (c *checker) checkFunc(fd *ast.FuncDef) error {
	locals := make(env)
	for _, p := range fd.Parms {
		locals[p.Name] = p.Type
	}
	c.ret = fd.Ret
	defer func() { c.ret = nil }()
	for _, st := range fd.Body {
		if _, err := c.checkStmt(locals, st); err != nil {
			return err
		}
	}
	return nil
}

// checkStmt checks one statement and returns its value type
// (the type an if-expression branch ending in this statement would have).
func (c *checker) checkStmt(vars env, stmt ast.Stmt) (*types.Type, error) {
	switch stmt := stmt.(type) {
	case *ast.Ret:
		if err := c.checkExpr(vars, stmt.Expr); err != nil {
			return nil, err
		}
		// A unit-returning body may return any value; it is discarded.
		if c.ret != nil && c.ret.Kind != types.UnitKind && !c.ret.Eq(stmt.Expr.Type()) {
			return nil, errf(Mismatch, "return type mismatch: expected %s, got %s",
				c.ret, stmt.Expr.Type())
		}
		return stmt.Expr.Type(), nil

	case *ast.Assign:
		if err := c.checkExpr(vars, stmt.Expr); err != nil {
			return nil, err
		}
		switch target := stmt.Target.(type) {
		case *ast.VarTarget:
			var bound *types.Type
			switch {
			case stmt.Ann != nil:
				if err := c.validType(stmt.Ann); err != nil {
					return nil, err
				}
				if _, err := types.Unify(stmt.Ann, stmt.Expr.Type()); err != nil {
					return nil, errf(Mismatch, "%s", err)
				}
				bound = stmt.Ann
			case vars[target.Name] != nil:
				// Re-binding must keep the type; there is no narrowing.
				if _, err := types.Unify(vars[target.Name], stmt.Expr.Type()); err != nil {
					return nil, errf(Mismatch, "cannot assign %s to %s %s",
						stmt.Expr.Type(), vars[target.Name], target.Name)
				}
				bound = vars[target.Name]
			default:
				bound = stmt.Expr.Type()
			}
			vars[target.Name] = bound
			return bound, nil

		case *ast.FieldTarget:
			field, _, err := c.fieldOf(vars, target.Obj, target.Field)
			if err != nil {
				return nil, err
			}
			if !field.Type.Eq(stmt.Expr.Type()) {
				return nil, errf(Mismatch, "cannot assign %s to field %s of type %s",
					stmt.Expr.Type(), target.Field, field.Type)
			}
			return field.Type, nil
		}

	case *ast.Delete:
		if err := c.checkExpr(vars, stmt.Expr); err != nil {
			return nil, err
		}
		if !stmt.Expr.Type().IsClass() {
			return nil, errf(Misuse, "cannot delete non-class type %s", stmt.Expr.Type())
		}
		return types.Unit, nil

	case *ast.ExprStmt:
		if err := c.checkExpr(vars, stmt.Expr); err != nil {
			return nil, err
		}
		return stmt.Expr.Type(), nil

	case *ast.FuncDef:
		// The parser only produces these at the top level.
		return types.Unit, c.checkFunc(stmt)
	}
	panic("impossible statement")
}

func (c *checker) checkExpr(vars env, e ast.Expr) error {
	switch e := e.(type) {
	case *ast.IntLit:
		e.SetType(types.Int)

	case *ast.BoolLit:
		e.SetType(types.Bool)

	case *ast.Ident:
		t, ok := vars[e.Name]
		if !ok {
			return errf(UndefVar, "undefined variable: %s", e.Name)
		}
		e.SetType(t)

	case *ast.Self:
		if c.class == nil {
			return errf(Misuse, "self used outside of a method")
		}
		e.SetType(types.Class(c.class.Name))

	case *ast.UnOp:
		if err := c.checkExpr(vars, e.X); err != nil {
			return err
		}
		switch e.Op {
		case ast.Neg:
			if !e.X.Type().Eq(types.Int) {
				return errf(Mismatch, "cannot negate non-integer type %s", e.X.Type())
			}
			e.SetType(types.Int)
		case ast.Not:
			if !e.X.Type().Eq(types.Bool) {
				return errf(Mismatch, "cannot negate non-boolean type %s", e.X.Type())
			}
			e.SetType(types.Bool)
		}

	case *ast.BinOp:
		if err := c.checkExpr(vars, e.Left); err != nil {
			return err
		}
		if err := c.checkExpr(vars, e.Right); err != nil {
			return err
		}
		l, r := e.Left.Type(), e.Right.Type()
		switch e.Op {
		case ast.Add, ast.Sub, ast.Mul, ast.Div, ast.Mod:
			if !l.Eq(types.Int) || !r.Eq(types.Int) {
				return errf(Mismatch, "arithmetic operation requires int operands, got %s and %s", l, r)
			}
			e.SetType(types.Int)
		default:
			if !l.Eq(types.Int) || !r.Eq(types.Int) {
				return errf(Mismatch, "comparison requires int operands, got %s and %s", l, r)
			}
			e.SetType(types.Bool)
		}

	case *ast.Call:
		fn, ok := c.info.Funcs[e.Name]
		if !ok {
			return errf(UndefFunc, "undefined function: %s", e.Name)
		}
		if err := c.checkArgs(vars, "function "+e.Name, fn.Parms, e.Args); err != nil {
			return err
		}
		e.SetType(fn.Ret)

	case *ast.MethodCall:
		if err := c.checkExpr(vars, e.Obj); err != nil {
			return err
		}
		if !e.Obj.Type().IsClass() {
			return errf(Misuse, "cannot call method on non-class type %s", e.Obj.Type())
		}
		ci, ok := c.info.Classes[e.Obj.Type().Name]
		if !ok {
			return errf(UndefClass, "undefined class: %s", e.Obj.Type().Name)
		}
		m := ci.Method(e.Method)
		if m == nil {
			return errf(UndefMethod, "undefined method %s on class %s", e.Method, ci.Name)
		}
		if err := c.checkArgs(vars, "method "+ci.Name+"."+e.Method, m.Parms, e.Args); err != nil {
			return err
		}
		e.SetType(m.Ret)

	case *ast.FieldAccess:
		field, _, err := c.fieldOf(vars, e.Obj, e.Field)
		if err != nil {
			return err
		}
		e.SetType(field.Type)

	case *ast.New:
		ci, ok := c.info.Classes[e.Class]
		if !ok {
			return errf(UndefClass, "undefined class: %s", e.Class)
		}
		if ctor := ci.Ctor(); ctor != nil {
			if err := c.checkArgs(vars, "constructor for "+ci.Name, ctor.Parms, e.Args); err != nil {
				return err
			}
		} else if len(e.Args) > 0 {
			return errf(Arity, "class %s has no constructor but %d arguments were given",
				ci.Name, len(e.Args))
		}
		// A new expression has the class type no matter what the
		// constructor declares; constructors return nothing meaningful.
		e.SetType(types.Class(e.Class))

	case *ast.If:
		if err := c.checkExpr(vars, e.Cond); err != nil {
			return err
		}
		if !e.Cond.Type().Eq(types.Bool) {
			return errf(Mismatch, "if condition must be bool, got %s", e.Cond.Type())
		}
		thenType, err := c.checkBranch(vars, e.Then)
		if err != nil {
			return err
		}
		elseType, err := c.checkBranch(vars, e.Else)
		if err != nil {
			return err
		}
		// Branches must agree exactly; Unknown unification does not
		// apply across branches.
		if !thenType.Eq(elseType) {
			return errf(Mismatch, "if branches have mismatched types: %s and %s",
				thenType, elseType)
		}
		e.SetType(thenType)

	case *ast.While:
		if err := c.checkExpr(vars, e.Cond); err != nil {
			return err
		}
		if !e.Cond.Type().Eq(types.Bool) {
			return errf(Mismatch, "while condition must be bool, got %s", e.Cond.Type())
		}
		if _, err := c.checkBranch(vars, e.Body); err != nil {
			return err
		}
		e.SetType(types.Unit)

	case *ast.Block:
		t, err := c.checkBranch(vars, e.Stmts)
		if err != nil {
			return err
		}
		e.SetType(t)

	default:
		panic("impossible expression")
	}
	return nil
}

// checkBranch checks a nested statement list in a copy of the
// environment; bindings made inside do not escape.
// The branch's type is its last statement's type, unit if empty.
func (c *checker) checkBranch(vars env, stmts []ast.Stmt) (*types.Type, error) {
	inner := maps.Clone(vars)
	t := types.Unit
	for _, st := range stmts {
		var err error
		if t, err = c.checkStmt(inner, st); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// fieldOf checks obj, requires it to have a class type,
// and resolves the named field, returning it and its layout index.
func (c *checker) fieldOf(vars env, obj ast.Expr, name string) (types.Field, int, error) {
	if err := c.checkExpr(vars, obj); err != nil {
		return types.Field{}, -1, err
	}
	if !obj.Type().IsClass() {
		return types.Field{}, -1, errf(Misuse, "cannot access field on non-class type %s", obj.Type())
	}
	ci, ok := c.info.Classes[obj.Type().Name]
	if !ok {
		return types.Field{}, -1, errf(UndefClass, "undefined class: %s", obj.Type().Name)
	}
	field, i, ok := ci.Field(name)
	if !ok {
		return types.Field{}, -1, errf(UndefField, "undefined field %s on class %s", name, ci.Name)
	}
	return field, i, nil
}

func (c *checker) checkArgs(vars env, what string, parms []types.Parm, args []ast.Expr) error {
	if len(args) != len(parms) {
		return errf(Arity, "%s expects %d arguments, got %d", what, len(parms), len(args))
	}
	for i, a := range args {
		if err := c.checkExpr(vars, a); err != nil {
			return err
		}
		if !a.Type().Eq(parms[i].Type) {
			return errf(Mismatch, "argument %d of %s: expected %s, got %s",
				i+1, what, parms[i].Type, a.Type())
		}
	}
	return nil
}
