package basic

import (
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// DefaultPasses is the standard optimization pipeline, in order.
var DefaultPasses = []string{"mem2reg", "instcombine", "dce", "simplifycfg"}

var passes = map[string]func(*Fun) bool{
	"mem2reg":     mem2reg,
	"instcombine": instCombine,
	"dce":         dce,
	"simplifycfg": simplifyCFG,
}

// Optimize runs the named passes over every function of the module,
// in the order given. The name "default" expands to DefaultPasses.
// An unknown pass name is an error. The module is re-verified after
// the last pass; a verification failure is an optimizer bug.
func Optimize(m *Mod, names []string) error {
	var expanded []string
	for _, name := range names {
		if name == "default" {
			expanded = append(expanded, DefaultPasses...)
			continue
		}
		if passes[name] == nil {
			return fmt.Errorf("unknown pass: %s (have %s)", name, strings.Join(passNames(), ", "))
		}
		expanded = append(expanded, name)
	}
	for _, name := range expanded {
		pass := passes[name]
		for _, f := range m.Funs {
			if pass(f) {
				rmDeleted(f)
				renumber(f)
			}
		}
	}
	if err := Verify(m); err != nil {
		return fmt.Errorf("optimization produced bad code: %w", err)
	}
	return nil
}

func passNames() []string {
	names := maps.Keys(passes)
	slices.Sort(names)
	return names
}
