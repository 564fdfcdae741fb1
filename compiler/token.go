package compiler

import (
	"fmt"

	"github.com/objectir/objectir/vm"
)

// ---------------------------------------------------------------------------
// Token types for ObjectIR text format
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger // 42, -7
	TokenFloat   // 3.14, -1.5e10
	TokenString  // "hello"
	TokenChar    // 'a', '\n'

	// Identifiers. Dotted names are one token: ldc.i4,
	// System.Console.WriteLine.
	TokenIdentifier

	// Delimiters and operators
	TokenLBrace // {
	TokenRBrace // }
	TokenLParen // (
	TokenRParen // )
	TokenColon  // :
	TokenComma  // ,
	TokenArrow  // ->

	// Comparison operators (condition headers only)
	TokenEq // ==
	TokenNe // !=
	TokenLt // <
	TokenLe // <=
	TokenGt // >
	TokenGe // >=

	// Keywords
	TokenModule
	TokenClass
	TokenMethod
	TokenStatic
	TokenVirtual
	TokenOverride
	TokenLocal
	TokenIf
	TokenElse
	TokenWhile
	TokenBreak
	TokenContinue
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenInteger:    "INTEGER",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenChar:       "CHAR",
	TokenIdentifier: "IDENTIFIER",
	TokenLBrace:     "{",
	TokenRBrace:     "}",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenColon:      ":",
	TokenComma:      ",",
	TokenArrow:      "->",
	TokenEq:         "==",
	TokenNe:         "!=",
	TokenLt:         "<",
	TokenLe:         "<=",
	TokenGt:         ">",
	TokenGe:         ">=",
	TokenModule:     "module",
	TokenClass:      "class",
	TokenMethod:     "method",
	TokenStatic:     "static",
	TokenVirtual:    "virtual",
	TokenOverride:   "override",
	TokenLocal:      "local",
	TokenIf:         "if",
	TokenElse:       "else",
	TokenWhile:      "while",
	TokenBreak:      "break",
	TokenContinue:   "continue",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string      // the raw text
	Pos     vm.Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types. Mnemonics and type names
// stay plain identifiers; only structural words are reserved.
var reservedWords = map[string]TokenType{
	"module":   TokenModule,
	"class":    TokenClass,
	"method":   TokenMethod,
	"static":   TokenStatic,
	"virtual":  TokenVirtual,
	"override": TokenOverride,
	"local":    TokenLocal,
	"if":       TokenIf,
	"else":     TokenElse,
	"while":    TokenWhile,
	"break":    TokenBreak,
	"continue": TokenContinue,
}
