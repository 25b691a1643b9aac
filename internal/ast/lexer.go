// Package ast defines the C-subset surface grammar (lexer rules and
// participle struct-tag grammar) and the parse tree it produces.
//
// Grounded on kanso/grammar/lexer.go: the same participle/v2 stateful
// lexer shape, generalized from Kanso's token set to this language's
// keywords/operators/punctuation.
package ast

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Lexer tokenizes source text into the token kinds Grammar's struct
// tags reference.
var Lexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `//[^\n]*`, nil},
		{"BlockComment", `/\*([^*]|\*[^/])*\*/`, nil},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"Integer", `0x[0-9a-fA-F]+|[0-9]+`, nil},
		{"String", `"(\\.|[^"\\])*"`, nil},
		{"Operator", `(\|\||&&|==|!=|<=|>=|[-+*/%=<>!])`, nil},
		{"Punctuation", `[{}\[\](),;]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
