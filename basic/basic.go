// Package basic has the low-level intermediate representation
// between the type-checked tree and the execution target.
//
// Function bodies are a naive SSA form that uses explicit allocations,
// loads, and stores for every local variable, including parameters and
// the method receiver. Lowering never reasons about dominance or phi
// placement for locals; the mem2reg optimization pass lifts scalar
// slots to register values afterwards.
//
// Each class lowers to a struct whose fields appear in declaration
// order, one word per field. Field addresses are computed by struct
// member index, never by raw byte offset, so the declared layout is
// the single source of truth shared with the type checker.
//
// Objects live on the heap: new lowers to a call to the external
// allocator followed by the constructor, delete to the destructor
// (when declared) followed by the external deallocator. Nothing tracks
// the pointer afterwards; use after delete is undefined by design.
package basic

import (
	"strings"

	"thirdlang/types"
)

// A Mod is one lowered compilation unit.
type Mod struct {
	// Classes are the lowered struct layouts, in declaration order.
	Classes []*types.ClassInfo
	Funs    []*Fun

	funs map[string]*Fun
}

// MainFun is the symbol of the synthesized entry point holding the
// top-level statements. Its return value is the program result.
const MainFun = "__main"

// Fun returns the function with the given symbol, or nil.
func (m *Mod) Fun(name string) *Fun { return m.funs[name] }

// A Fun is a lowered function or method.
// Methods are ordinary functions whose first parameter is the
// receiver pointer; there is no dynamic dispatch of any kind.
type Fun struct {
	N     int
	Mod   *Mod
	Name  string
	NVals int
	Parms []*Parm
	Ret   *types.Type
	BBlks []*BBlk

	// Class is the owning class for methods, nil for free functions
	// and the entry point.
	Class *types.ClassInfo
}

// A Parm is a function parameter.
type Parm struct {
	// N is the index into the Fun's Parms.
	N    int
	Name string
	Type *types.Type
}

// A BBlk is a basic block.
type BBlk struct {
	// N is unique within the containing Fun.
	N     int
	Stmts []Stmt
	In    []*BBlk
}

// Out returns the successor blocks, determined by the terminator.
func (b *BBlk) Out() []*BBlk {
	if len(b.Stmts) == 0 {
		return nil
	}
	term, ok := b.Stmts[len(b.Stmts)-1].(Term)
	if !ok {
		return nil
	}
	return term.Out()
}

func (b *BBlk) addIn(in *BBlk) {
	for _, i := range b.In {
		if i == in {
			return
		}
	}
	b.In = append(b.In, in)
}

func (b *BBlk) rmIn(in *BBlk) {
	var i int
	for _, x := range b.In {
		if x != in {
			b.In[i] = x
			i++
		}
	}
	b.In = b.In[:i]
}

// A Stmt is an instruction.
type Stmt interface {
	Uses() []Val
	buildString(*strings.Builder) *strings.Builder

	// sub substitutes values of the statement
	// that are keys of the map for their values.
	sub(valMap)

	delete()
	deleted() bool
}

// stmt is embedded by every instruction.
type stmt struct {
	del bool
}

func (s *stmt) delete()       { s.del = true }
func (s *stmt) deleted() bool { return s.del }

// Store writes a value to a location given by address.
// The address is either a stack slot or a field address.
type Store struct {
	stmt
	Dst Val
	Val Val
}

func (n *Store) Uses() []Val { return []Val{n.Dst, n.Val} }

// Free releases a heap object.
// It is never removed by optimization and performs no checking;
// freeing twice or using the object afterwards is undefined.
type Free struct {
	stmt
	Ptr Val
}

func (n *Free) Uses() []Val { return []Val{n.Ptr} }

// A Term is a terminal statement, the last of its block.
type Term interface {
	Stmt
	Out() []*BBlk
}

// Ret returns from the current Fun.
type Ret struct {
	stmt
	Val Val
}

func (n *Ret) Uses() []Val {
	if n.Val == nil {
		return nil
	}
	return []Val{n.Val}
}
func (*Ret) Out() []*BBlk { return nil }

// Jmp transfers control to another BBlk.
type Jmp struct {
	stmt
	Dst *BBlk
}

func (*Jmp) Uses() []Val    { return nil }
func (n *Jmp) Out() []*BBlk { return []*BBlk{n.Dst} }

// Br transfers control to Yes if the condition value is non-zero,
// otherwise to No. Targets narrow the condition to one bit.
type Br struct {
	stmt
	Cond Val
	Yes  *BBlk
	No   *BBlk
}

func (n *Br) Uses() []Val  { return []Val{n.Cond} }
func (n *Br) Out() []*BBlk { return []*BBlk{n.Yes, n.No} }

// A Val is a value-producing instruction.
type Val interface {
	Stmt
	// Num is the Val's unique number within its Fun.
	Num() int
	// Type returns the Val's type.
	Type() *types.Type
	// Users returns the Stmts that use this Val.
	Users() []Stmt

	value() *val
}

type val struct {
	stmt
	n     int
	typ   *types.Type
	users []Stmt
}

func newVal(f *Fun, typ *types.Type) val {
	v := val{n: f.NVals, typ: typ}
	f.NVals++
	return v
}

func (v *val) Num() int          { return v.n }
func (v *val) Type() *types.Type { return v.typ }
func (v *val) Users() []Stmt     { return v.users }
func (v *val) value() *val       { return v }

func (v *val) addUser(s Stmt) {
	for _, u := range v.users {
		if u == s {
			return
		}
	}
	v.users = append(v.users, s)
}

func (v *val) rmUser(s Stmt) {
	var i int
	for _, u := range v.users {
		if u != s {
			v.users[i] = u
			i++
		}
	}
	v.users = v.users[:i]
}

// IntLit is an integer constant.
// Booleans are the constants 0 and 1 with a bool type.
type IntLit struct {
	val
	Val int64
}

func (*IntLit) Uses() []Val { return nil }

// Arg is an incoming argument of the current function.
type Arg struct {
	val
	Parm *Parm
}

func (*Arg) Uses() []Val { return nil }

// Alloc is the address of a stack slot allocated at function entry.
// Every local, parameter, and the receiver gets one; mem2reg removes
// the slots whose entire lifetime is scalar.
type Alloc struct {
	val
	// Name is the source variable, for readable dumps.
	Name string
}

func (*Alloc) Uses() []Val { return nil }

// Load reads the value at an address.
type Load struct {
	val
	Src Val
}

func (n *Load) Uses() []Val { return []Val{n.Src} }

// OpCode names the built-in operations.
type OpCode int

const (
	NegOp OpCode = iota + 1
	NotOp
	AddOp
	SubOp
	MulOp
	DivOp
	ModOp
	LtOp
	GtOp
	LeOp
	GeOp
	EqOp
	NeOp
)

func (c OpCode) String() string {
	switch c {
	case NegOp:
		return "neg"
	case NotOp:
		return "not"
	case AddOp:
		return "add"
	case SubOp:
		return "sub"
	case MulOp:
		return "mul"
	case DivOp:
		return "div"
	case ModOp:
		return "mod"
	case LtOp:
		return "lt"
	case GtOp:
		return "gt"
	case LeOp:
		return "le"
	case GeOp:
		return "ge"
	case EqOp:
		return "eq"
	case NeOp:
		return "ne"
	}
	return "?"
}

// Op is the result of a built-in arithmetic or comparison operation.
type Op struct {
	val
	Code OpCode
	Args []Val
}

func (n *Op) Uses() []Val { return n.Args }

// Field is the address of a struct field of a heap object.
// The index is the field's position in the class's declared order.
type Field struct {
	val
	Obj   Val
	Class *types.ClassInfo
	Index int
}

func (n *Field) Uses() []Val { return []Val{n.Obj} }

// Malloc is a call to the external allocator for one instance of a
// class. Its value is the raw object pointer. It is never removed by
// optimization even if unused.
type Malloc struct {
	val
	Class *types.ClassInfo
}

func (*Malloc) Uses() []Val { return nil }

// Call is a static call. Methods are called through their mangled
// symbol with the receiver as the first argument.
type Call struct {
	val
	Fun  *Fun
	Args []Val
}

func (n *Call) Uses() []Val { return n.Args }

// Phi merges values flowing in from predecessor blocks.
// Phis appear only at the head of a block.
type Phi struct {
	val
	Ins []PhiIn
}

// A PhiIn is one incoming value of a Phi and the block it flows from.
type PhiIn struct {
	Val Val
	Src *BBlk
}

func (n *Phi) Uses() []Val {
	uses := make([]Val, len(n.Ins))
	for i := range n.Ins {
		uses[i] = n.Ins[i].Val
	}
	return uses
}

// hasEffect reports whether a statement has an observable side effect
// and so must survive dead code elimination even when its value is
// unused. Calls, stores, and the allocator and deallocator calls
// always count; loads, address computations, and pure arithmetic
// never do.
func hasEffect(s Stmt) bool {
	switch s.(type) {
	case *Store, *Free, *Call, *Malloc, Term:
		return true
	}
	return false
}
