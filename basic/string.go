package basic

import (
	"fmt"
	"strings"
)

func (n *Mod) String() string {
	return n.buildString(&strings.Builder{}).String()
}

func (n *Mod) buildString(s *strings.Builder) *strings.Builder {
	for _, c := range n.Classes {
		if s.Len() > 0 {
			s.WriteRune('\n')
		}
		fmt.Fprintf(s, "class %s [%d bytes]", c.Name, c.Size())
		for _, f := range c.Fields {
			fmt.Fprintf(s, "\n\t%s %s", f.Name, f.Type)
		}
	}
	for _, fun := range n.Funs {
		if s.Len() > 0 {
			s.WriteRune('\n')
		}
		fun.buildString(s)
	}
	return s
}

func (n *Fun) String() string {
	return n.buildString(&strings.Builder{}).String()
}

func (n *Fun) buildString(s *strings.Builder) *strings.Builder {
	s.WriteString(n.Name)
	s.WriteRune('(')
	for i, p := range n.Parms {
		if i > 0 {
			s.WriteString(", ")
		}
		fmt.Fprintf(s, "%s %s", p.Name, p.Type)
	}
	fmt.Fprintf(s, ") %s", n.Ret)
	for _, b := range n.BBlks {
		s.WriteRune('\n')
		b.buildString(s)
	}
	return s
}

func (n *BBlk) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "\t%d:\n\t\t[in:", n.N)
	for _, in := range n.In {
		fmt.Fprintf(s, " %d", in.N)
	}
	s.WriteString("] [out:")
	for _, out := range n.Out() {
		fmt.Fprintf(s, " %d", out.N)
	}
	s.WriteRune(']')
	for _, t := range n.Stmts {
		s.WriteString("\n\t\t")
		if t.deleted() {
			s.WriteString("ⓧ ")
		}
		if v, ok := t.(Val); ok {
			fmt.Fprintf(s, "$%d := ", v.Num())
		}
		t.buildString(s)
	}
	return s
}

func (n *Store) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "store($%d, $%d)", n.Dst.Num(), n.Val.Num())
	return s
}

func (n *Free) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "free($%d)", n.Ptr.Num())
	return s
}

func (n *Ret) buildString(s *strings.Builder) *strings.Builder {
	if n.Val == nil {
		s.WriteString("ret()")
		return s
	}
	fmt.Fprintf(s, "ret($%d)", n.Val.Num())
	return s
}

func (n *Jmp) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "jmp(%d)", n.Dst.N)
	return s
}

func (n *Br) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "br($%d, %d, %d)", n.Cond.Num(), n.Yes.N, n.No.N)
	return s
}

func (n *IntLit) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "%d (%s)", n.Val, n.Type())
	return s
}

func (n *Arg) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "arg(%d)", n.Parm.N)
	return s
}

func (n *Alloc) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "alloc(%s %s)", n.Name, n.Type())
	return s
}

func (n *Load) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "load($%d)", n.Src.Num())
	return s
}

func (n *Op) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "%s(", n.Code)
	for i, a := range n.Args {
		if i > 0 {
			s.WriteString(", ")
		}
		fmt.Fprintf(s, "$%d", a.Num())
	}
	s.WriteRune(')')
	return s
}

func (n *Field) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "field($%d, %s.%s)", n.Obj.Num(), n.Class.Name, n.Class.Fields[n.Index].Name)
	return s
}

func (n *Malloc) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "malloc(%s)", n.Class.Name)
	return s
}

func (n *Call) buildString(s *strings.Builder) *strings.Builder {
	fmt.Fprintf(s, "call %s(", n.Fun.Name)
	for i, a := range n.Args {
		if i > 0 {
			s.WriteString(", ")
		}
		fmt.Fprintf(s, "$%d", a.Num())
	}
	s.WriteRune(')')
	return s
}

func (n *Phi) buildString(s *strings.Builder) *strings.Builder {
	s.WriteString("phi(")
	for i, in := range n.Ins {
		if i > 0 {
			s.WriteString(", ")
		}
		fmt.Fprintf(s, "%d: $%d", in.Src.N, in.Val.Num())
	}
	s.WriteRune(')')
	return s
}
