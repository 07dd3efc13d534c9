// Command thirdlang compiles and runs a source file,
// printing the program's result value.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"thirdlang/ast"
	"thirdlang/basic"
	"thirdlang/exec"
	"thirdlang/genllvm"
	"thirdlang/typeck"
)

var (
	printAST  = flag.Bool("ast", false, "print the parse tree and exit")
	checkOnly = flag.Bool("check", false, "type check and exit")
	printIR   = flag.Bool("ir", false, "print LLVM IR and exit")
	printBIR  = flag.Bool("bir", false, "print the lowered representation and exit")
	optimize  = flag.Bool("O", false, "run the standard optimization pipeline")
	passList  = flag.String("passes", "", "comma-separated optimization passes to run")
)

func main() {
	flag.Usage = usage
	flag.Parse()
	if len(flag.Args()) != 1 {
		usage()
		os.Exit(1)
	}
	src, err := os.ReadFile(flag.Args()[0])
	if err != nil {
		die("failed to read source file", err)
	}
	prog, err := ast.Parse(string(src))
	if err != nil {
		die("", err)
	}
	if *printAST {
		fmt.Println(ast.String(prog))
		return
	}
	info, err := typeck.Check(prog)
	if err != nil {
		die("", err)
	}
	if *checkOnly {
		return
	}
	mod := basic.Build(prog, info)
	if names := passNames(); len(names) > 0 {
		if err := basic.Optimize(mod, names); err != nil {
			die("", err)
		}
	}
	if *printBIR {
		fmt.Println(mod)
		return
	}
	if *printIR {
		m, err := genllvm.Emit(mod)
		if err != nil {
			die("failed to emit LLVM IR", err)
		}
		fmt.Print(m)
		return
	}
	v, err := exec.Run(context.Background(), mod)
	if err != nil {
		die("", err)
	}
	fmt.Println(v)
}

func passNames() []string {
	if *passList != "" {
		return strings.Split(*passList, ",")
	}
	if *optimize {
		return []string{"default"}
	}
	return nil
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "usage: thirdlang [flags] <source file>")
	flag.PrintDefaults()
}

func die(msg string, err error) {
	if msg == "" {
		fmt.Fprintln(os.Stderr, err)
	} else {
		fmt.Fprintf(os.Stderr, "%s: %s\n", msg, err)
	}
	os.Exit(1)
}
