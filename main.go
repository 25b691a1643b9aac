// SPDX-License-Identifier: Apache-2.0

// lcc reads testfile.txt from the working directory, compiles it, and
// writes every diagnostic (one "<lineno> <code>" line each, ascending
// by line) to error.txt. On success it writes the generated MIPS
// assembly to standard output and exits 0; if the front end reported
// any fatal error it writes nothing to stdout and exits 1.
//
// Grounded on original_source/main.cpp's fixed-path, redirect-stderr-
// to-error.txt harness, adapted to Go's os.WriteFile instead of a
// streambuf swap.
package main

import (
	"fmt"
	"os"

	"lcc/internal/compiler"
	"lcc/internal/ir"
)

const (
	inputPath = "testfile.txt"
	errorPath = "error.txt"
)

func main() {
	os.Exit(run())
}

// run recovers an ir.Fault -- a structural invariant violation inside
// the middle/back end, never a source error -- at this single point,
// logs it, and reports failure rather than letting it escape as a
// crash with no error.txt written. Any other panic is not ours to
// interpret and is allowed to propagate.
func run() (code int) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(ir.Fault); ok {
				fmt.Fprintf(os.Stderr, "lcc: internal error: %v\n", r)
				code = 1
				return
			}
			panic(r)
		}
	}()

	source, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lcc: cannot open %s: %s\n", inputPath, err)
		return 1
	}

	result := compiler.Compile(inputPath, string(source))

	if err := os.WriteFile(errorPath, []byte(result.Reporter.WireFormat()), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "lcc: cannot write %s: %s\n", errorPath, err)
		return 1
	}

	if result.Reporter.HasErrors() {
		return 1
	}

	fmt.Print(result.Asm)
	return 0
}
