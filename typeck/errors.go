package typeck

import "fmt"

// Kind classifies a type error.
// Tests assert on kinds and key names rather than exact message text.
type Kind int

const (
	UndefVar Kind = iota + 1
	UndefFunc
	UndefMethod
	UndefField
	UndefClass
	Redef
	Mismatch
	Arity
	Misuse
)

func (k Kind) String() string {
	switch k {
	case UndefVar:
		return "undefined variable"
	case UndefFunc:
		return "undefined function"
	case UndefMethod:
		return "undefined method"
	case UndefField:
		return "undefined field"
	case UndefClass:
		return "undefined class"
	case Redef:
		return "redefinition"
	case Mismatch:
		return "type mismatch"
	case Arity:
		return "wrong argument count"
	case Misuse:
		return "misuse"
	}
	return "unknown"
}

// An Error is a single type-checking diagnostic.
// The checker halts at the first error; there is no recovery.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func errf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}
