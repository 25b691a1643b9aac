// Package diag collects and renders compiler diagnostics: the fixed
// wire format required of error.txt ("<line> <code>" per diagnostic,
// sorted and deduplicated), and a Rust-style colorized human form for
// interactive use.
//
// Grounded on kanso/internal/errors/{codes,reporter}.go: the same
// severity-colored header/marker rendering built on fatih/color, with
// the error taxonomy replaced by the fixed single-letter codes this
// compiler's diagnostics are pinned to.
package diag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Code identifies one diagnostic kind. The letters are fixed by the
// wire format every consumer of error.txt expects; do not renumber.
type Code byte

const (
	RedefinedName      Code = 'b'
	UndefinedName      Code = 'c'
	ArgCountMismatch   Code = 'd'
	ArgTypeMismatch    Code = 'e'
	ReturnTypeMismatch Code = 'f'
	MissingReturn      Code = 'g'
	ConstAssignment    Code = 'h'
	MissingSemicolon   Code = 'i'
	MissingRightParen  Code = 'j'
	PrintfArgMismatch  Code = 'k'
	LoopControlMisuse  Code = 'l'
	Reserved           Code = 'm'
)

var descriptions = map[Code]string{
	RedefinedName:      "name redefined in this scope",
	UndefinedName:      "use of undefined name",
	ArgCountMismatch:    "function called with the wrong number of arguments",
	ArgTypeMismatch:    "function argument type mismatch",
	ReturnTypeMismatch: "return value type does not match function's return type",
	MissingReturn:      "non-void function missing a return statement",
	ConstAssignment:    "assignment to a constant",
	MissingSemicolon:   "missing semicolon",
	MissingRightParen:  "missing closing parenthesis",
	PrintfArgMismatch:  "printf format/argument count mismatch",
	LoopControlMisuse:  "break or continue outside a loop",
	Reserved:           "miscellaneous error",
}

// Describe returns a human-readable one-line description of code.
func Describe(code Code) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return "unknown error"
}

// Diagnostic is one reported error, pinned to a source line.
type Diagnostic struct {
	Line    int
	Code    Code
	Message string // optional, used only by the human-readable renderer
}

// Reporter accumulates diagnostics for one compilation unit and
// renders them either as the required wire format or, for interactive
// use, as colorized Rust-style output.
type Reporter struct {
	filename    string
	sourceLines []string
	diags       []Diagnostic
}

// New creates a Reporter for filename/source. source may be empty if
// only the wire format will be produced.
func New(filename, source string) *Reporter {
	return &Reporter{filename: filename, sourceLines: strings.Split(source, "\n")}
}

// Report records one diagnostic.
func (r *Reporter) Report(line int, code Code, message string) {
	r.diags = append(r.diags, Diagnostic{Line: line, Code: code, Message: message})
}

// HasErrors reports whether any diagnostic was recorded.
func (r *Reporter) HasErrors() bool { return len(r.diags) > 0 }

// Diagnostics returns the recorded diagnostics sorted by line, then
// code, with exact duplicates removed -- the order error.txt is
// required to present them in.
func (r *Reporter) Diagnostics() []Diagnostic {
	sorted := append([]Diagnostic{}, r.diags...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Line != sorted[j].Line {
			return sorted[i].Line < sorted[j].Line
		}
		return sorted[i].Code < sorted[j].Code
	})

	var out []Diagnostic
	for i, d := range sorted {
		if i > 0 && d.Line == out[len(out)-1].Line && d.Code == out[len(out)-1].Code {
			continue
		}
		out = append(out, d)
	}
	return out
}

// WireFormat renders the fixed "<line> <code>" lines error.txt
// requires, one per diagnostic, in sorted/deduplicated order.
func (r *Reporter) WireFormat() string {
	var sb strings.Builder
	for _, d := range r.Diagnostics() {
		fmt.Fprintf(&sb, "%d %c\n", d.Line, d.Code)
	}
	return sb.String()
}

// FormatHuman renders one diagnostic in a colorized, source-context
// form for interactive (non-testfile.txt) use.
func (r *Reporter) FormatHuman(d Diagnostic) string {
	var out strings.Builder

	levelColor := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	msg := d.Message
	if msg == "" {
		msg = Describe(d.Code)
	}
	fmt.Fprintf(&out, "%s[%c]: %s\n", levelColor("error"), d.Code, msg)

	width := lineNumberWidth(d.Line)
	indent := strings.Repeat(" ", width)
	fmt.Fprintf(&out, "%s %s %s:%d\n", indent, dim("-->"), r.filename, d.Line)
	fmt.Fprintf(&out, "%s %s\n", indent, dim("│"))

	if d.Line >= 1 && d.Line <= len(r.sourceLines) {
		fmt.Fprintf(&out, "%s %s %s\n",
			bold(fmt.Sprintf("%*d", width, d.Line)), dim("│"), r.sourceLines[d.Line-1])
	}
	out.WriteString("\n")
	return out.String()
}

// FormatAllHuman renders every recorded diagnostic, in Diagnostics
// order.
func (r *Reporter) FormatAllHuman() string {
	var sb strings.Builder
	for _, d := range r.Diagnostics() {
		sb.WriteString(r.FormatHuman(d))
	}
	return sb.String()
}

func lineNumberWidth(line int) int {
	width := len(fmt.Sprintf("%d", line))
	if width < 3 {
		width = 3
	}
	return width
}
