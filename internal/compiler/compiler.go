// Package compiler wires the front end, middle end, and back end into
// the single entry point the CLI surfaces use: source text in, a
// diagnostics reporter and (on success) MIPS assembly text out.
//
// Grounded on the teacher's layered-package style (grammar -> parser ->
// semantic -> ir), generalized from "parse and print" to the full
// parse -> check -> lower -> optimize -> emit pipeline spec.md §2
// describes.
package compiler

import (
	"lcc/internal/ast"
	"lcc/internal/cfg"
	"lcc/internal/codegen"
	"lcc/internal/diag"
	"lcc/internal/irgen"
	"lcc/internal/passmgr"
	"lcc/internal/semantic"
)

// Result is everything a caller (CLI or LSP) needs after one
// compilation attempt. Asm is empty whenever Reporter has diagnostics:
// the back end never runs over a unit with source errors.
type Result struct {
	Reporter *diag.Reporter
	Asm      string
}

// Compile runs the whole pipeline over source. filename only labels
// diagnostics; it need not exist on disk.
func Compile(filename, source string) *Result {
	rep := diag.New(filename, source)

	unit, err := ast.ParseSource(filename, source)
	if err != nil {
		reportSyntaxError(rep, err)
		return &Result{Reporter: rep}
	}

	sem := semantic.New(rep).Analyze(unit)
	if rep.HasErrors() {
		return &Result{Reporter: rep}
	}

	mod := irgen.Build(unit, sem)
	for _, fn := range mod.Functions {
		cfg.Build(fn)
	}

	pipeline := passmgr.NewStandardPipeline()
	passmgr.RunInterprocedural(mod, pipeline)

	return &Result{Reporter: rep, Asm: codegen.Generate(mod)}
}

// reportSyntaxError classifies a participle parse failure into the
// fixed diagnostic codes spec.md §6 reserves for punctuation errors,
// falling back to the miscellaneous code for anything else -- the same
// specific-vs-generic split the original parser's exception hierarchy
// made between ExpectedTokenException subclasses and a bare ParseError.
func reportSyntaxError(rep *diag.Reporter, err error) {
	line := ast.ParseErrorPosition(err)
	switch {
	case ast.IsMissingRightParen(err):
		rep.Report(line, diag.MissingRightParen, err.Error())
	case ast.IsMissingSemicolon(err):
		rep.Report(line, diag.MissingSemicolon, err.Error())
	default:
		rep.Report(line, diag.Reserved, err.Error())
	}
}
