package basic

import (
	"fmt"

	"thirdlang/ast"
	"thirdlang/typeck"
	"thirdlang/types"
)

// Build lowers a checked program to a Mod.
// Every class method and free function becomes a Fun, and the
// top-level statements become the synthesized entry point __main.
// The result is verified; a verification failure is a lowering bug
// and panics.
func Build(prog []ast.TopLevel, info *typeck.Info) *Mod {
	mod := &Mod{funs: make(map[string]*Fun)}
	bld := &builder{mod: mod, info: info}

	// Declare every function before lowering any body so that calls
	// and mutual recursion resolve to their Funs.
	for _, top := range prog {
		switch top := top.(type) {
		case *ast.ClassDef:
			ci := info.Classes[top.Name]
			mod.Classes = append(mod.Classes, ci)
			for _, m := range top.Methods {
				mi := ci.Method(m.Name)
				// The receiver is parameter 0 of every method.
				parms := append([]types.Parm{{Name: "self", Type: types.Class(ci.Name)}}, mi.Parms...)
				f := newFun(mod, mi.Sym(), parms, mi.Ret)
				f.Class = ci
			}
		case *ast.FuncDef:
			fi := info.Funcs[top.Name]
			newFun(mod, top.Name, fi.Parms, fi.Ret)
		}
	}
	main := newFun(mod, MainFun, nil, types.Int)

	var topStmts []ast.Stmt
	for _, top := range prog {
		switch top := top.(type) {
		case *ast.ClassDef:
			ci := info.Classes[top.Name]
			for _, m := range top.Methods {
				f := mod.Fun(ci.Method(m.Name).Sym())
				bld.buildBody(f, m.Body)
			}
		case *ast.FuncDef:
			bld.buildBody(mod.Fun(top.Name), top.Body)
		case *ast.StmtTopLevel:
			topStmts = append(topStmts, top.Stmt)
		}
	}
	bld.buildBody(main, topStmts)

	for _, f := range mod.Funs {
		renumber(f)
	}
	if err := Verify(mod); err != nil {
		panic("lowering produced bad code: " + err.Error())
	}
	return mod
}

type builder struct {
	mod  *Mod
	info *typeck.Info
	fun  *Fun
	// vars maps in-scope variable names to their stack slots.
	vars map[string]*Alloc
	// class is the receiver's class inside a method body.
	class *types.ClassInfo
}

func newFun(mod *Mod, name string, parms []types.Parm, ret *types.Type) *Fun {
	f := &Fun{N: len(mod.Funs), Mod: mod, Name: name, Ret: ret}
	for i := range parms {
		f.Parms = append(f.Parms, &Parm{N: i, Name: parms[i].Name, Type: parms[i].Type})
	}
	mod.Funs = append(mod.Funs, f)
	mod.funs[name] = f
	return f
}

// buildBody lowers the statements of a function body.
// Block 0 holds a stack slot for every parameter and local, with the
// incoming arguments stored to their slots; the body starts in block 1.
func (bld *builder) buildBody(f *Fun, stmts []ast.Stmt) {
	bld.fun = f
	bld.class = f.Class
	bld.vars = make(map[string]*Alloc)

	b0 := newBBlk(f)
	for _, p := range f.Parms {
		a := addAlloc(f, b0, p.Name, p.Type)
		bld.vars[p.Name] = a
	}
	for _, l := range localVars(stmts) {
		if _, ok := bld.vars[l.name]; ok {
			continue
		}
		bld.vars[l.name] = addAlloc(f, b0, l.name, l.typ)
	}
	for _, p := range f.Parms {
		addStore(b0, bld.vars[p.Name], addArg(f, b0, p))
	}
	b1 := newBBlk(f)
	addJmp(b0, b1)

	b := b1
	var last Val
	for i, stmt := range stmts {
		var v Val
		v, b = bld.buildStmt(b, stmt)
		if v != nil {
			last = v
		}
		if i < len(stmts)-1 && isTerm(b) {
			// Dead code after a return collects in a fresh block.
			b = newBBlk(f)
			last = nil
		}
	}
	if !isTerm(b) {
		// A body that does not return yields its last value,
		// or zero if there is none.
		if last == nil {
			last = addIntLit(f, b, 0, types.Int)
		}
		addRet(b, last)
	}
}

type local struct {
	name string
	typ  *types.Type
}

// localVars collects the variables assigned anywhere in the statement
// list, in first-assignment order. The slot type is the type of the
// first assignment; later shadowing in a sibling branch reuses the
// slot, which is sound because every slot is one word.
func localVars(stmts []ast.Stmt) []local {
	var ls []local
	seen := make(map[string]bool)
	var walkStmts func([]ast.Stmt)
	var walkExpr func(ast.Expr)
	walkStmt := func(s ast.Stmt) {
		switch s := s.(type) {
		case *ast.Assign:
			switch t := s.Target.(type) {
			case *ast.VarTarget:
				if !seen[t.Name] {
					seen[t.Name] = true
					typ := s.Expr.Type()
					if s.Ann != nil {
						typ = s.Ann
					}
					ls = append(ls, local{name: t.Name, typ: typ})
				}
			case *ast.FieldTarget:
				// The target's object expression can assign too,
				// as in { p = new P() p }.x = 5.
				walkExpr(t.Obj)
			}
			walkExpr(s.Expr)
		case *ast.Ret:
			walkExpr(s.Expr)
		case *ast.Delete:
			walkExpr(s.Expr)
		case *ast.ExprStmt:
			walkExpr(s.Expr)
		}
	}
	walkStmts = func(ss []ast.Stmt) {
		for _, s := range ss {
			walkStmt(s)
		}
	}
	walkExpr = func(e ast.Expr) {
		switch e := e.(type) {
		case *ast.UnOp:
			walkExpr(e.X)
		case *ast.BinOp:
			walkExpr(e.Left)
			walkExpr(e.Right)
		case *ast.Call:
			for _, a := range e.Args {
				walkExpr(a)
			}
		case *ast.MethodCall:
			walkExpr(e.Obj)
			for _, a := range e.Args {
				walkExpr(a)
			}
		case *ast.FieldAccess:
			walkExpr(e.Obj)
		case *ast.New:
			for _, a := range e.Args {
				walkExpr(a)
			}
		case *ast.If:
			walkExpr(e.Cond)
			walkStmts(e.Then)
			walkStmts(e.Else)
		case *ast.While:
			walkExpr(e.Cond)
			walkStmts(e.Body)
		case *ast.Block:
			walkStmts(e.Stmts)
		}
	}
	walkStmts(stmts)
	return ls
}

func newBBlk(f *Fun) *BBlk {
	b := &BBlk{N: len(f.BBlks)}
	f.BBlks = append(f.BBlks, b)
	return b
}

func isTerm(b *BBlk) bool {
	n := len(b.Stmts)
	if n == 0 {
		return false
	}
	_, ok := b.Stmts[n-1].(Term)
	return ok
}

// buildStmt lowers one statement, returning its value, if any,
// and the block where control continues.
func (bld *builder) buildStmt(b *BBlk, stmt ast.Stmt) (Val, *BBlk) {
	f := bld.fun
	switch stmt := stmt.(type) {
	case *ast.Ret:
		var v Val
		v, b = bld.buildExpr(b, stmt.Expr)
		addRet(b, v)
		return v, b
	case *ast.Assign:
		var v Val
		v, b = bld.buildExpr(b, stmt.Expr)
		switch t := stmt.Target.(type) {
		case *ast.VarTarget:
			addStore(b, bld.vars[t.Name], v)
		case *ast.FieldTarget:
			var obj Val
			obj, b = bld.buildExpr(b, t.Obj)
			ci := bld.info.Classes[obj.Type().Name]
			fld, i, _ := ci.Field(t.Field)
			addStore(b, addField(f, b, obj, ci, i, fld.Type), v)
		}
		return v, b
	case *ast.Delete:
		var v Val
		v, b = bld.buildExpr(b, stmt.Expr)
		ci := bld.info.Classes[v.Type().Name]
		if dtor := ci.Dtor(); dtor != nil {
			addCall(f, b, bld.mod.Fun(dtor.Sym()), []Val{v}, types.Unit)
		}
		addFree(b, v)
		return nil, b
	case *ast.ExprStmt:
		return bld.buildExpr(b, stmt.Expr)
	}
	panic(fmt.Sprintf("impossible statement: %T", stmt))
}

// buildExpr lowers one expression, returning its value
// and the block where control continues.
func (bld *builder) buildExpr(b *BBlk, expr ast.Expr) (Val, *BBlk) {
	f := bld.fun
	switch expr := expr.(type) {
	case *ast.IntLit:
		return addIntLit(f, b, expr.Val, types.Int), b
	case *ast.BoolLit:
		var v int64
		if expr.Val {
			v = 1
		}
		return addIntLit(f, b, v, types.Bool), b
	case *ast.Ident:
		return addLoad(f, b, bld.vars[expr.Name]), b
	case *ast.Self:
		return addLoad(f, b, bld.vars["self"]), b
	case *ast.UnOp:
		var x Val
		x, b = bld.buildExpr(b, expr.X)
		code := NegOp
		if expr.Op == ast.Not {
			code = NotOp
		}
		return addOp(f, b, expr.Type(), code, x), b
	case *ast.BinOp:
		var l, r Val
		l, b = bld.buildExpr(b, expr.Left)
		r, b = bld.buildExpr(b, expr.Right)
		return addOp(f, b, expr.Type(), binOpCode(expr.Op), l, r), b
	case *ast.Call:
		var args []Val
		args, b = bld.buildExprs(b, expr.Args)
		return addCall(f, b, bld.mod.Fun(expr.Name), args, expr.Type()), b
	case *ast.MethodCall:
		var obj Val
		obj, b = bld.buildExpr(b, expr.Obj)
		ci := bld.info.Classes[obj.Type().Name]
		var args []Val
		args, b = bld.buildExprs(b, expr.Args)
		callee := bld.mod.Fun(ci.Method(expr.Method).Sym())
		return addCall(f, b, callee, append([]Val{obj}, args...), expr.Type()), b
	case *ast.FieldAccess:
		var obj Val
		obj, b = bld.buildExpr(b, expr.Obj)
		ci := bld.info.Classes[obj.Type().Name]
		fld, i, _ := ci.Field(expr.Field)
		return addLoad(f, b, addField(f, b, obj, ci, i, fld.Type)), b
	case *ast.New:
		return bld.buildNew(b, expr)
	case *ast.If:
		return bld.buildIf(b, expr)
	case *ast.While:
		return bld.buildWhile(b, expr)
	case *ast.Block:
		var last Val
		for i, s := range expr.Stmts {
			var v Val
			v, b = bld.buildStmt(b, s)
			if v != nil {
				last = v
			}
			if i < len(expr.Stmts)-1 && isTerm(b) {
				b = newBBlk(f)
				last = nil
			}
		}
		if last == nil {
			last = addIntLit(f, b, 0, types.Int)
		}
		return last, b
	}
	panic(fmt.Sprintf("impossible expression: %T", expr))
}

func (bld *builder) buildExprs(b *BBlk, exprs []ast.Expr) ([]Val, *BBlk) {
	vals := make([]Val, len(exprs))
	for i, e := range exprs {
		vals[i], b = bld.buildExpr(b, e)
	}
	return vals, b
}

// buildNew allocates an object, zeroes every field,
// and then runs the constructor, if declared.
// The object pointer is the expression's value.
func (bld *builder) buildNew(b *BBlk, expr *ast.New) (Val, *BBlk) {
	f := bld.fun
	ci := bld.info.Classes[expr.Class]
	obj := addMalloc(f, b, ci)
	if len(ci.Fields) > 0 {
		zero := addIntLit(f, b, 0, types.Int)
		for i, fld := range ci.Fields {
			addStore(b, addField(f, b, obj, ci, i, fld.Type), zero)
		}
	}
	if ctor := ci.Ctor(); ctor != nil {
		var args []Val
		args, b = bld.buildExprs(b, expr.Args)
		addCall(f, b, bld.mod.Fun(ctor.Sym()), append([]Val{obj}, args...), types.Unit)
	}
	return obj, b
}

// buildIf lowers a conditional expression.
// When both branches fall through to the join block their values merge
// with a phi; a branch that returns contributes no value. If neither
// branch falls through, the join block is unreachable dead code.
func (bld *builder) buildIf(b *BBlk, expr *ast.If) (Val, *BBlk) {
	f := bld.fun
	var cond Val
	cond, b = bld.buildExpr(b, expr.Cond)
	yes := newBBlk(f)
	no := newBBlk(f)
	addBr(b, cond, yes, no)

	thenVal, thenEnd := bld.buildBranch(yes, expr.Then)
	elseVal, elseEnd := bld.buildBranch(no, expr.Else)
	thenFalls := !isTerm(thenEnd)
	elseFalls := !isTerm(elseEnd)

	if !thenFalls && !elseFalls {
		dead := newBBlk(f)
		return addIntLit(f, dead, 0, types.Int), dead
	}
	join := newBBlk(f)
	if thenFalls {
		addJmp(thenEnd, join)
	}
	if elseFalls {
		addJmp(elseEnd, join)
	}
	switch {
	case thenFalls && elseFalls:
		phi := addPhi(f, join, thenVal.Type())
		phiIn(phi, thenVal, thenEnd)
		phiIn(phi, elseVal, elseEnd)
		return phi, join
	case thenFalls:
		return thenVal, join
	default:
		return elseVal, join
	}
}

// buildBranch lowers one arm of a conditional into the given block.
// An arm with no value, such as an empty else, yields zero.
func (bld *builder) buildBranch(b *BBlk, stmts []ast.Stmt) (Val, *BBlk) {
	f := bld.fun
	var last Val
	for i, s := range stmts {
		var v Val
		v, b = bld.buildStmt(b, s)
		if v != nil {
			last = v
		}
		if i < len(stmts)-1 && isTerm(b) {
			b = newBBlk(f)
			last = nil
		}
	}
	if !isTerm(b) && last == nil {
		last = addIntLit(f, b, 0, types.Int)
	}
	return last, b
}

// buildWhile lowers a loop. The condition re-evaluates in its own
// header block on every iteration. A while expression's value is
// always zero.
func (bld *builder) buildWhile(b *BBlk, expr *ast.While) (Val, *BBlk) {
	f := bld.fun
	head := newBBlk(f)
	addJmp(b, head)
	cond, condEnd := bld.buildExpr(head, expr.Cond)
	body := newBBlk(f)
	done := newBBlk(f)
	addBr(condEnd, cond, body, done)
	_, bodyEnd := bld.buildBranch(body, expr.Body)
	if !isTerm(bodyEnd) {
		addJmp(bodyEnd, head)
	}
	return addIntLit(f, done, 0, types.Int), done
}

func binOpCode(op ast.Op) OpCode {
	switch op {
	case ast.Add:
		return AddOp
	case ast.Sub:
		return SubOp
	case ast.Mul:
		return MulOp
	case ast.Div:
		return DivOp
	case ast.Mod:
		return ModOp
	case ast.Lt:
		return LtOp
	case ast.Gt:
		return GtOp
	case ast.Le:
		return LeOp
	case ast.Ge:
		return GeOp
	case ast.Eq:
		return EqOp
	case ast.Ne:
		return NeOp
	}
	panic(fmt.Sprintf("impossible binary op: %v", op))
}

func addStmt(b *BBlk, s Stmt) {
	if n := len(b.Stmts); n > 0 {
		if t, ok := b.Stmts[n-1].(Term); ok && !t.deleted() {
			panic("impossible")
		}
	}
	b.Stmts = append(b.Stmts, s)
	for _, v := range s.Uses() {
		v.value().addUser(s)
	}
	if term, ok := s.(Term); ok {
		for _, o := range term.Out() {
			o.addIn(b)
		}
	}
}

func addStore(b *BBlk, dst, val Val) *Store {
	s := &Store{Dst: dst, Val: val}
	addStmt(b, s)
	return s
}

func addFree(b *BBlk, ptr Val) *Free {
	s := &Free{Ptr: ptr}
	addStmt(b, s)
	return s
}

func addRet(b *BBlk, v Val) *Ret {
	r := &Ret{Val: v}
	addStmt(b, r)
	return r
}

func addJmp(b, dst *BBlk) { addStmt(b, &Jmp{Dst: dst}) }

func addBr(b *BBlk, cond Val, yes, no *BBlk) {
	addStmt(b, &Br{Cond: cond, Yes: yes, No: no})
}

func addIntLit(f *Fun, b *BBlk, v int64, typ *types.Type) *IntLit {
	i := &IntLit{val: newVal(f, typ), Val: v}
	addStmt(b, i)
	return i
}

func addArg(f *Fun, b *BBlk, p *Parm) *Arg {
	a := &Arg{val: newVal(f, p.Type), Parm: p}
	addStmt(b, a)
	return a
}

func addAlloc(f *Fun, b *BBlk, name string, typ *types.Type) *Alloc {
	a := &Alloc{val: newVal(f, typ), Name: name}
	addStmt(b, a)
	return a
}

func addLoad(f *Fun, b *BBlk, src Val) *Load {
	l := &Load{val: newVal(f, src.Type()), Src: src}
	addStmt(b, l)
	return l
}

func addOp(f *Fun, b *BBlk, typ *types.Type, code OpCode, args ...Val) *Op {
	o := &Op{val: newVal(f, typ), Code: code, Args: args}
	addStmt(b, o)
	return o
}

func addField(f *Fun, b *BBlk, obj Val, ci *types.ClassInfo, index int, typ *types.Type) *Field {
	fl := &Field{val: newVal(f, typ), Obj: obj, Class: ci, Index: index}
	addStmt(b, fl)
	return fl
}

func addMalloc(f *Fun, b *BBlk, ci *types.ClassInfo) *Malloc {
	m := &Malloc{val: newVal(f, types.Class(ci.Name)), Class: ci}
	addStmt(b, m)
	return m
}

func addCall(f *Fun, b *BBlk, callee *Fun, args []Val, typ *types.Type) *Call {
	c := &Call{val: newVal(f, typ), Fun: callee, Args: args}
	addStmt(b, c)
	return c
}

func addPhi(f *Fun, b *BBlk, typ *types.Type) *Phi {
	p := &Phi{val: newVal(f, typ)}
	addStmt(b, p)
	return p
}

func phiIn(p *Phi, v Val, src *BBlk) {
	p.Ins = append(p.Ins, PhiIn{Val: v, Src: src})
	v.value().addUser(p)
}

// renumber reassigns block and value numbers in layout order.
func renumber(f *Fun) {
	f.NVals = 0
	for i, b := range f.BBlks {
		b.N = i
		for _, s := range b.Stmts {
			if v, ok := s.(Val); ok {
				v.value().n = f.NVals
				f.NVals++
			}
		}
	}
}
