package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/objectir/objectir/vm"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent parser for the ObjectIR text format
// ---------------------------------------------------------------------------

// Parser parses ObjectIR source text into modules.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	errors    []string
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
	if p.curToken.Type == TokenError {
		p.errorf("%s", p.curToken.Literal)
	}
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.curToken.Type)
	return false
}

// errorf records a parse error.
func (p *Parser) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf("line %d: %s", p.curToken.Pos.Line, fmt.Sprintf(format, args...))
	p.errors = append(p.errors, msg)
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []string {
	return p.errors
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// Parse parses every module declaration in the input.
func (p *Parser) Parse() []*Module {
	var modules []*Module
	for !p.curTokenIs(TokenEOF) {
		if !p.curTokenIs(TokenModule) {
			p.errorf("expected module, got %s", p.curToken.Type)
			return modules
		}
		m := p.parseModule()
		if m != nil {
			modules = append(modules, m)
		}
		if len(p.errors) > 0 {
			return modules
		}
	}
	return modules
}

// parseModule parses `module Name { class* }`.
func (p *Parser) parseModule() *Module {
	m := &Module{Pos: p.curToken.Pos}
	p.nextToken() // consume module

	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected module name, got %s", p.curToken.Type)
		return nil
	}
	m.Name = p.curToken.Literal
	p.nextToken()

	if !p.expect(TokenLBrace) {
		return nil
	}
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		c := p.parseClass()
		if c == nil {
			return m
		}
		m.Classes = append(m.Classes, c)
	}
	p.expect(TokenRBrace)
	return m
}

// parseClass parses `class Name [: Super] { method* }`.
func (p *Parser) parseClass() *ClassDecl {
	if !p.curTokenIs(TokenClass) {
		p.errorf("expected class, got %s", p.curToken.Type)
		return nil
	}
	c := &ClassDecl{Pos: p.curToken.Pos}
	p.nextToken() // consume class

	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected class name, got %s", p.curToken.Type)
		return nil
	}
	c.Name = p.curToken.Literal
	p.nextToken()

	if p.curTokenIs(TokenColon) {
		p.nextToken()
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected superclass name, got %s", p.curToken.Type)
			return nil
		}
		c.Super = p.curToken.Literal
		p.nextToken()
	}

	if !p.expect(TokenLBrace) {
		return nil
	}
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		m := p.parseMethod()
		if m == nil {
			return c
		}
		c.Methods = append(c.Methods, m)
	}
	p.expect(TokenRBrace)
	return c
}

// parseMethod parses `[static|virtual|override] method Name(params) ->
// Type { body }`. A method without a modifier is static.
func (p *Parser) parseMethod() *MethodDecl {
	m := &MethodDecl{Modifier: vm.ModStatic, Pos: p.curToken.Pos}

	switch p.curToken.Type {
	case TokenStatic:
		p.nextToken()
	case TokenVirtual:
		m.Modifier = vm.ModVirtual
		p.nextToken()
	case TokenOverride:
		m.Modifier = vm.ModOverride
		p.nextToken()
	}

	if !p.expect(TokenMethod) {
		return nil
	}
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected method name, got %s", p.curToken.Type)
		return nil
	}
	m.Name = p.curToken.Literal
	p.nextToken()

	if !p.expect(TokenLParen) {
		return nil
	}
	for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
		param, ok := p.parseParam()
		if !ok {
			return nil
		}
		m.Params = append(m.Params, param)
		if p.curTokenIs(TokenComma) {
			p.nextToken()
		}
	}
	if !p.expect(TokenRParen) {
		return nil
	}
	if !p.expect(TokenArrow) {
		return nil
	}
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected return type, got %s", p.curToken.Type)
		return nil
	}
	m.Return = p.curToken.Literal
	p.nextToken()

	if !p.expect(TokenLBrace) {
		return nil
	}
	m.Body = p.parseBlock(m)
	p.expect(TokenRBrace)
	return m
}

// parseParam parses one `name: type` declaration.
func (p *Parser) parseParam() (ParamDecl, bool) {
	d := ParamDecl{Pos: p.curToken.Pos}
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected parameter name, got %s", p.curToken.Type)
		return d, false
	}
	d.Name = p.curToken.Literal
	p.nextToken()
	if !p.expect(TokenColon) {
		return d, false
	}
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected type name, got %s", p.curToken.Type)
		return d, false
	}
	d.Type = p.curToken.Literal
	p.nextToken()
	return d, true
}

// ---------------------------------------------------------------------------
// Method bodies
// ---------------------------------------------------------------------------

// parseBlock parses statements until the closing brace. Local
// declarations are hoisted onto the method; everything else becomes a
// structured node.
func (p *Parser) parseBlock(m *MethodDecl) []vm.Node {
	var nodes []vm.Node
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		switch p.curToken.Type {
		case TokenLocal:
			p.nextToken()
			d, ok := p.parseParam()
			if !ok {
				return nodes
			}
			m.Locals = append(m.Locals, d)

		case TokenIf:
			n := p.parseIf(m)
			if n == nil {
				return nodes
			}
			nodes = append(nodes, n)

		case TokenWhile:
			n := p.parseWhile(m)
			if n == nil {
				return nodes
			}
			nodes = append(nodes, n)

		case TokenBreak:
			nodes = append(nodes, &vm.BreakNode{Pos: p.curToken.Pos})
			p.nextToken()

		case TokenContinue:
			nodes = append(nodes, &vm.ContinueNode{Pos: p.curToken.Pos})
			p.nextToken()

		case TokenIdentifier:
			n := p.parseInstruction()
			if n == nil {
				return nodes
			}
			nodes = append(nodes, n)

		default:
			p.errorf("unexpected %s in method body", p.curToken.Type)
			return nodes
		}
	}
	return nodes
}

// parseIf parses `if (cond) { ... } [else { ... }]`. The bare form
// `if (stack)` consumes a boolean already on the evaluation stack.
func (p *Parser) parseIf(m *MethodDecl) vm.Node {
	n := &vm.IfNode{Pos: p.curToken.Pos}
	p.nextToken() // consume if

	cond, ok := p.parseCondHeader("stack")
	if !ok {
		return nil
	}
	n.Cond = cond

	if !p.expect(TokenLBrace) {
		return nil
	}
	n.Then = p.parseBlock(m)
	if !p.expect(TokenRBrace) {
		return nil
	}

	if p.curTokenIs(TokenElse) {
		p.nextToken()
		if !p.expect(TokenLBrace) {
			return nil
		}
		n.Else = p.parseBlock(m)
		if n.Else == nil {
			n.Else = []vm.Node{}
		}
		if !p.expect(TokenRBrace) {
			return nil
		}
	}
	return n
}

// parseWhile parses `while (cond) { ... }`. `while (true)` is the
// unconditional loop.
func (p *Parser) parseWhile(m *MethodDecl) vm.Node {
	n := &vm.WhileNode{Pos: p.curToken.Pos}
	p.nextToken() // consume while

	cond, ok := p.parseCondHeader("true")
	if !ok {
		return nil
	}
	n.Cond = cond

	if !p.expect(TokenLBrace) {
		return nil
	}
	n.Body = p.parseBlock(m)
	if !p.expect(TokenRBrace) {
		return nil
	}
	return n
}

// parseCondHeader parses `( ... )`. The bare word (stack or true,
// depending on the construct) yields a nil condition; otherwise the
// header is `operand cmp operand`.
func (p *Parser) parseCondHeader(bare string) (*vm.Cond, bool) {
	if !p.expect(TokenLParen) {
		return nil, false
	}

	if p.curTokenIs(TokenIdentifier) && p.curToken.Literal == bare && p.peekTokenIs(TokenRParen) {
		p.nextToken() // consume the bare word
		p.nextToken() // consume )
		return nil, true
	}

	c := &vm.Cond{Pos: p.curToken.Pos}
	left, ok := p.parseOperand()
	if !ok {
		return nil, false
	}
	c.Left = left

	switch p.curToken.Type {
	case TokenEq:
		c.Compare = vm.OpCeq
	case TokenNe:
		c.Compare = vm.OpCne
	case TokenLt:
		c.Compare = vm.OpClt
	case TokenLe:
		c.Compare = vm.OpCle
	case TokenGt:
		c.Compare = vm.OpCgt
	case TokenGe:
		c.Compare = vm.OpCge
	default:
		p.errorf("expected comparison operator, got %s", p.curToken.Type)
		return nil, false
	}
	p.nextToken()

	right, ok := p.parseOperand()
	if !ok {
		return nil, false
	}
	c.Right = right

	if !p.expect(TokenRParen) {
		return nil, false
	}
	return c, true
}

// parseOperand parses one side of a condition header: a local/argument
// name or a literal.
func (p *Parser) parseOperand() (vm.Operand, bool) {
	o := vm.Operand{Pos: p.curToken.Pos}
	switch p.curToken.Type {
	case TokenIdentifier:
		switch p.curToken.Literal {
		case "true":
			o.Lit = &vm.Instruction{Op: vm.OpLdcB1}
		case "false":
			o.Lit = &vm.Instruction{Op: vm.OpLdcB0}
		case "null":
			o.Lit = &vm.Instruction{Op: vm.OpLdnull}
		default:
			o.Name = p.curToken.Literal
		}
	case TokenInteger:
		n, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
		if err != nil {
			p.errorf("bad integer literal %q", p.curToken.Literal)
			return o, false
		}
		o.Lit = &vm.Instruction{Op: vm.OpLdcI4, Int: n}
	case TokenFloat:
		f, err := strconv.ParseFloat(p.curToken.Literal, 64)
		if err != nil {
			p.errorf("bad float literal %q", p.curToken.Literal)
			return o, false
		}
		o.Lit = &vm.Instruction{Op: vm.OpLdcR8, Float: f}
	case TokenString:
		o.Lit = &vm.Instruction{Op: vm.OpLdstr, Str: p.curToken.Literal}
	case TokenChar:
		o.Lit = &vm.Instruction{Op: vm.OpLdcC, Ch: []rune(p.curToken.Literal)[0]}
	default:
		p.errorf("expected operand, got %s", p.curToken.Type)
		return o, false
	}
	p.nextToken()
	return o, true
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// mnemonicOps maps source mnemonics to opcodes. Jump opcodes are
// deliberately absent; they exist only in lowered bodies.
var mnemonicOps = map[string]vm.Opcode{
	"nop": vm.OpNop,
	"pop": vm.OpPop,
	"dup": vm.OpDup,

	"ldc.i4":  vm.OpLdcI4,
	"ldc.i8":  vm.OpLdcI8,
	"ldc.r4":  vm.OpLdcR4,
	"ldc.r8":  vm.OpLdcR8,
	"ldc.b.0": vm.OpLdcB0,
	"ldc.b.1": vm.OpLdcB1,
	"ldc.c":   vm.OpLdcC,
	"ldstr":   vm.OpLdstr,
	"ldnull":  vm.OpLdnull,

	"ldloc": vm.OpLdloc,
	"stloc": vm.OpStloc,
	"ldarg": vm.OpLdarg,
	"starg": vm.OpStarg,

	"add":  vm.OpAdd,
	"sub":  vm.OpSub,
	"mul":  vm.OpMul,
	"div":  vm.OpDiv,
	"rem":  vm.OpRem,
	"neg":  vm.OpNeg,
	"conv": vm.OpConv,

	"ceq": vm.OpCeq,
	"cne": vm.OpCne,
	"cgt": vm.OpCgt,
	"cge": vm.OpCge,
	"clt": vm.OpClt,
	"cle": vm.OpCle,

	"call":     vm.OpCall,
	"callvirt": vm.OpCallvirt,
	"newobj":   vm.OpNewobj,

	"ret":   vm.OpRet,
	"throw": vm.OpThrow,
}

// parseInstruction parses one mnemonic line into an InstrNode.
func (p *Parser) parseInstruction() vm.Node {
	mnemonic := p.curToken.Literal
	if mnemonic == "ldcon" {
		return p.parseLdcon()
	}
	op, ok := mnemonicOps[mnemonic]
	if !ok {
		p.errorf("unknown mnemonic %q", mnemonic)
		return nil
	}
	in := vm.Instruction{Op: op, Pos: p.curToken.Pos}
	p.nextToken()

	switch op {
	case vm.OpLdcI4, vm.OpLdcI8:
		if !p.curTokenIs(TokenInteger) {
			p.errorf("%s: expected integer literal, got %s", mnemonic, p.curToken.Type)
			return nil
		}
		n, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
		if err != nil {
			p.errorf("%s: bad integer literal %q", mnemonic, p.curToken.Literal)
			return nil
		}
		in.Int = n
		p.nextToken()

	case vm.OpLdcR4, vm.OpLdcR8:
		if !p.curTokenIs(TokenFloat) && !p.curTokenIs(TokenInteger) {
			p.errorf("%s: expected numeric literal, got %s", mnemonic, p.curToken.Type)
			return nil
		}
		f, err := strconv.ParseFloat(p.curToken.Literal, 64)
		if err != nil {
			p.errorf("%s: bad float literal %q", mnemonic, p.curToken.Literal)
			return nil
		}
		in.Float = f
		p.nextToken()

	case vm.OpLdcC:
		if !p.curTokenIs(TokenChar) {
			p.errorf("ldc.c: expected character literal, got %s", p.curToken.Type)
			return nil
		}
		in.Ch = []rune(p.curToken.Literal)[0]
		p.nextToken()

	case vm.OpLdstr:
		if !p.curTokenIs(TokenString) {
			p.errorf("ldstr: expected string literal, got %s", p.curToken.Type)
			return nil
		}
		in.Str = p.curToken.Literal
		p.nextToken()

	case vm.OpLdloc, vm.OpStloc, vm.OpLdarg, vm.OpStarg:
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("%s: expected name, got %s", mnemonic, p.curToken.Type)
			return nil
		}
		in.Sym = p.curToken.Literal
		p.nextToken()

	case vm.OpConv, vm.OpNewobj:
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("%s: expected type name, got %s", mnemonic, p.curToken.Type)
			return nil
		}
		in.Type = p.curToken.Literal
		p.nextToken()

	case vm.OpCall, vm.OpCallvirt:
		sig, ok := p.parseCallSignature(mnemonic)
		if !ok {
			return nil
		}
		in.Sig = sig
	}

	return &vm.InstrNode{Instr: in}
}

// parseLdcon parses the generic constant load. The literal's kind is
// fixed here, from its syntax; it lowers as the corresponding typed
// constant load.
func (p *Parser) parseLdcon() vm.Node {
	in := vm.Instruction{Pos: p.curToken.Pos}
	p.nextToken() // consume ldcon

	switch p.curToken.Type {
	case TokenInteger:
		n, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
		if err != nil {
			p.errorf("ldcon: bad integer literal %q", p.curToken.Literal)
			return nil
		}
		in.Op = vm.OpLdcI4
		in.Int = n
	case TokenFloat:
		f, err := strconv.ParseFloat(p.curToken.Literal, 64)
		if err != nil {
			p.errorf("ldcon: bad float literal %q", p.curToken.Literal)
			return nil
		}
		in.Op = vm.OpLdcR8
		in.Float = f
	case TokenString:
		in.Op = vm.OpLdstr
		in.Str = p.curToken.Literal
	case TokenChar:
		in.Op = vm.OpLdcC
		in.Ch = []rune(p.curToken.Literal)[0]
	case TokenIdentifier:
		switch p.curToken.Literal {
		case "true":
			in.Op = vm.OpLdcB1
		case "false":
			in.Op = vm.OpLdcB0
		case "null":
			in.Op = vm.OpLdnull
		default:
			p.errorf("ldcon: expected a literal, got %q", p.curToken.Literal)
			return nil
		}
	default:
		p.errorf("ldcon: expected a literal, got %s", p.curToken.Type)
		return nil
	}
	p.nextToken()
	return &vm.InstrNode{Instr: in}
}

// parseCallSignature parses `Declaring.Name(type, ...) -> type`. The
// qualified name splits at its last dot into declaring type and method
// name.
func (p *Parser) parseCallSignature(mnemonic string) (*vm.Signature, bool) {
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("%s: expected qualified method name, got %s", mnemonic, p.curToken.Type)
		return nil, false
	}
	qualified := p.curToken.Literal
	dot := strings.LastIndex(qualified, ".")
	if dot <= 0 || dot == len(qualified)-1 {
		p.errorf("%s: %q is not a qualified method name", mnemonic, qualified)
		return nil, false
	}
	declaring, name := qualified[:dot], qualified[dot+1:]
	p.nextToken()

	if !p.expect(TokenLParen) {
		return nil, false
	}
	var params []string
	for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("%s: expected parameter type, got %s", mnemonic, p.curToken.Type)
			return nil, false
		}
		params = append(params, p.curToken.Literal)
		p.nextToken()
		if p.curTokenIs(TokenComma) {
			p.nextToken()
		}
	}
	if !p.expect(TokenRParen) {
		return nil, false
	}
	if !p.expect(TokenArrow) {
		return nil, false
	}
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("%s: expected return type, got %s", mnemonic, p.curToken.Type)
		return nil, false
	}
	ret := p.curToken.Literal
	p.nextToken()

	sig := vm.MakeSignature(declaring, name, params, ret)
	return &sig, true
}
