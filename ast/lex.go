package ast

import "fmt"

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokInt
	tokPunct   // single- or multi-rune operator or delimiter
	tokKeyword // class, def, return, delete, new, if, else, while, self, true, false
)

type token struct {
	kind tokKind
	text string
	line int
}

var keywords = map[string]bool{
	"class": true, "def": true, "return": true, "delete": true,
	"new": true, "if": true, "else": true, "while": true,
	"self": true, "true": true, "false": true,
}

// lex scans the entire source into tokens.
// Newlines are insignificant; # starts a line comment.
// Only ASCII source is accepted.
func lex(src string) ([]token, error) {
	var toks []token
	line := 1
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case isDigit(c):
			j := i
			for j < len(src) && isDigit(src[j]) {
				j++
			}
			toks = append(toks, token{tokInt, src[i:j], line})
			i = j
		case isAlpha(c):
			j := i
			for j < len(src) && (isAlpha(src[j]) || isDigit(src[j])) {
				j++
			}
			word := src[i:j]
			kind := tokIdent
			if keywords[word] {
				kind = tokKeyword
			}
			toks = append(toks, token{kind, word, line})
			i = j
		default:
			// Two-rune operators first.
			if i+1 < len(src) {
				switch src[i : i+2] {
				case "->", "<=", ">=", "==", "!=":
					toks = append(toks, token{tokPunct, src[i : i+2], line})
					i += 2
					continue
				}
			}
			switch c {
			case '(', ')', '{', '}', ',', ':', '.', '=',
				'+', '-', '*', '/', '%', '<', '>', '!':
				toks = append(toks, token{tokPunct, string(c), line})
				i++
			default:
				return nil, fmt.Errorf("%d: unexpected character %q", line, c)
			}
		}
	}
	toks = append(toks, token{tokEOF, "", line})
	return toks, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}
