// Package reader implements the minimal s-expression reader the CLI needs
// to turn Scheme-like source text into the ast.Expr trees every other
// component consumes. A full parser with macro-aware reader extensions is
// explicitly an external collaborator's surface (spec section 6); this
// reader covers exactly the surface syntax spec.md's ExprKind set names,
// tokenized the way the teacher's internal/lexer walks a rune stream.
package reader

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/schemecore/schemecore/internal/ast"
	schemeerr "github.com/schemecore/schemecore/internal/errors"
)

type tokenKind int

const (
	tokLParen tokenKind = iota
	tokRParen
	tokQuote
	tokAtom
	tokString
	tokEOF
)

type token struct {
	kind   tokenKind
	text   string
	line   int
	column int
}

type lexer struct {
	input        string
	path         string
	position     int
	readPosition int
	ch           rune
	line         int
	column       int
}

func newLexer(input, path string) *lexer {
	l := &lexer{input: input, path: path, line: 1}
	l.readChar()
	return l
}

func (l *lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = l.readPosition
		return
	}
	var size int
	l.ch, size = utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.position = l.readPosition
	l.readPosition += size
	l.column++
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
}

func (l *lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	ch, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return ch
}

func (l *lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n' {
			l.readChar()
		}
		if l.ch == ';' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		return
	}
}

func isDelimiter(ch rune) bool {
	return ch == 0 || ch == '(' || ch == ')' || ch == '"' || ch == '\'' || unicode.IsSpace(ch) || ch == ';'
}

func (l *lexer) next() token {
	l.skipWhitespaceAndComments()
	line, col := l.line, l.column

	switch l.ch {
	case 0:
		return token{kind: tokEOF, line: line, column: col}
	case '(':
		l.readChar()
		return token{kind: tokLParen, text: "(", line: line, column: col}
	case ')':
		l.readChar()
		return token{kind: tokRParen, text: ")", line: line, column: col}
	case '\'':
		l.readChar()
		return token{kind: tokQuote, text: "'", line: line, column: col}
	case '"':
		return l.readString(line, col)
	default:
		return l.readAtom(line, col)
	}
}

func (l *lexer) readString(line, col int) token {
	var sb strings.Builder
	l.readChar() // consume opening quote
	for l.ch != '"' && l.ch != 0 {
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '"':
				sb.WriteRune('"')
			case '\\':
				sb.WriteRune('\\')
			default:
				sb.WriteRune(l.ch)
			}
		} else {
			sb.WriteRune(l.ch)
		}
		l.readChar()
	}
	l.readChar() // consume closing quote
	return token{kind: tokString, text: sb.String(), line: line, column: col}
}

func (l *lexer) readAtom(line, col int) token {
	start := l.position
	for !isDelimiter(l.ch) {
		l.readChar()
	}
	return token{kind: tokAtom, text: l.input[start:l.position], line: line, column: col}
}

// Reader turns source text into ast.Expr forms, classifying each
// parenthesized form's head keyword into the specific ExprKind spec.md
// names; anything with an unrecognized head stays a generic *ast.List for
// the macro expander to later rewrite.
type Reader struct {
	sourceID int
}

// New creates a Reader. sourceID ties every produced Span back to a single
// entry in an internal/sources.Sources registry.
func New(sourceID int) *Reader {
	return &Reader{sourceID: sourceID}
}

// ReadFile parses the entirety of text (from path, for diagnostics) into a
// File of top-level expressions.
func (r *Reader) ReadFile(text, path string) (*ast.File, error) {
	lx := newLexer(text, path)
	var exprs []ast.Expr
	for {
		tok := lx.peekNonEOF()
		if tok.kind == tokEOF {
			break
		}
		e, err := r.readExpr(lx)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return &ast.File{Path: path, Exprs: exprs, Pos: ast.Pos{File: path, Line: 1}}, nil
}

// peekNonEOF returns the next token without consuming it, by saving and
// restoring the lexer's whole state around one read. Callers use it to test
// for end-of-input and for a closing paren before reading further.
func (l *lexer) peekNonEOF() token {
	save := *l
	tok := l.next()
	*l = save
	return tok
}

func (r *Reader) readExpr(lx *lexer) (ast.Expr, error) {
	tok := lx.next()
	switch tok.kind {
	case tokEOF:
		return nil, r.err("unexpected end of input", tok)
	case tokQuote:
		datum, err := r.readExpr(lx)
		if err != nil {
			return nil, err
		}
		return &ast.Quote{Datum: datum, Syn: r.syn(ast.TokQuoteTok, tok, "'")}, nil
	case tokString:
		return &ast.Atom{Syn: r.strSyn(tok)}, nil
	case tokLParen:
		return r.readList(lx, tok)
	case tokRParen:
		return nil, r.err("unexpected ')'", tok)
	case tokAtom:
		return &ast.Atom{Syn: r.atomSyn(tok)}, nil
	}
	return nil, r.err("unreachable token kind", tok)
}

func (r *Reader) readList(lx *lexer, open token) (ast.Expr, error) {
	var elems []ast.Expr
	for {
		peek := lx.peekNonEOF()
		if peek.kind == tokEOF {
			return nil, r.err("unterminated list", open)
		}
		if peek.kind == tokRParen {
			lx.next()
			break
		}
		e, err := r.readExpr(lx)
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	return r.classify(elems, open)
}

// classify turns a raw parenthesized form into the specific ExprKind its
// head keyword names, defaulting to a generic List (a macro use, or a
// procedure call) otherwise.
func (r *Reader) classify(elems []ast.Expr, open token) (ast.Expr, error) {
	span := r.spanFor(open)
	if len(elems) == 0 {
		return &ast.List{Elements: elems, Syn: &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Span: span}}, nil
	}
	head, ok := elems[0].(*ast.Atom)
	if !ok || !head.IsIdentifier() {
		return &ast.List{Elements: elems, Syn: &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Span: span}}, nil
	}

	syn := func() *ast.SyntaxObject { return &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Span: span} }

	switch head.Syn.Raw {
	case "if":
		if len(elems) < 3 || len(elems) > 4 {
			return nil, r.errf(open, "if expects 2 or 3 operands, got %d", len(elems)-1)
		}
		n := &ast.If{Test: elems[1], Then: elems[2], Syn: syn()}
		if len(elems) == 4 {
			n.Else = elems[3]
		}
		return n, nil

	case "define":
		return r.classifyDefine(elems, syn)

	case "define-syntax":
		if len(elems) != 3 {
			return nil, r.errf(open, "define-syntax expects a name and a syntax-rules form")
		}
		name, ok := elems[1].(*ast.Atom)
		if !ok {
			return nil, r.errf(open, "define-syntax name must be an identifier")
		}
		rules, ok := elems[2].(*ast.SyntaxRules)
		if !ok {
			return nil, r.errf(open, "define-syntax body must be a syntax-rules form")
		}
		return &ast.Macro{Name: name, Rules: rules, Syn: syn()}, nil

	case "syntax-rules":
		return r.classifySyntaxRules(elems, syn)

	case "lambda":
		return r.classifyLambda(elems, syn)

	case "begin":
		return &ast.Begin{Body: elems[1:], Syn: syn()}, nil

	case "set!":
		if len(elems) != 3 {
			return nil, r.errf(open, "set! expects a name and a value")
		}
		name, ok := elems[1].(*ast.Atom)
		if !ok {
			return nil, r.errf(open, "set! target must be an identifier")
		}
		return &ast.Set{Name: name, Value: elems[2], Syn: syn()}, nil

	case "require":
		return r.classifyRequire(elems, syn)

	case "let":
		return r.classifyLet(elems, syn)

	case "quote":
		if len(elems) != 2 {
			return nil, r.errf(open, "quote expects exactly one datum")
		}
		return &ast.Quote{Datum: elems[1], Syn: syn()}, nil

	default:
		return &ast.List{Elements: elems, Syn: syn()}, nil
	}
}

func (r *Reader) classifyDefine(elems []ast.Expr, syn func() *ast.SyntaxObject) (ast.Expr, error) {
	if len(elems) < 2 {
		return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "define expects a name", nil))
	}
	// (define (name args...) body...) sugar for (define name (lambda (args...) body...))
	if sig, ok := elems[1].(*ast.List); ok {
		if len(sig.Elements) == 0 {
			return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "define function form needs a name", nil))
		}
		name, ok := sig.Elements[0].(*ast.Atom)
		if !ok {
			return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "define function name must be an identifier", nil))
		}
		params := make([]*ast.Param, 0, len(sig.Elements)-1)
		for _, p := range sig.Elements[1:] {
			pa, ok := p.(*ast.Atom)
			if !ok {
				return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "parameter must be an identifier", nil))
			}
			params = append(params, &ast.Param{Name: pa})
		}
		lambda := &ast.LambdaFunction{Params: params, Body: elems[2:], Syn: syn()}
		return &ast.Define{Name: name, Value: lambda, Syn: syn()}, nil
	}
	name, ok := elems[1].(*ast.Atom)
	if !ok {
		return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "define name must be an identifier", nil))
	}
	var value ast.Expr = &ast.Atom{Syn: &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Kind: ast.TokVoid}}
	if len(elems) >= 3 {
		value = elems[2]
	}
	return &ast.Define{Name: name, Value: value, Syn: syn()}, nil
}

func (r *Reader) classifyLambda(elems []ast.Expr, syn func() *ast.SyntaxObject) (ast.Expr, error) {
	if len(elems) < 2 {
		return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "lambda expects a parameter list", nil))
	}
	sig, ok := elems[1].(*ast.List)
	if !ok {
		if a, ok := elems[1].(*ast.Atom); ok {
			return &ast.LambdaFunction{Rest: &ast.Param{Name: a}, Body: elems[2:], Syn: syn()}, nil
		}
		return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "lambda parameter list must be a list or a rest identifier", nil))
	}
	params := make([]*ast.Param, 0, len(sig.Elements))
	for _, p := range sig.Elements {
		pa, ok := p.(*ast.Atom)
		if !ok {
			return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "parameter must be an identifier", nil))
		}
		params = append(params, &ast.Param{Name: pa})
	}
	return &ast.LambdaFunction{Params: params, Body: elems[2:], Syn: syn()}, nil
}

func (r *Reader) classifyRequire(elems []ast.Expr, syn func() *ast.SyntaxObject) (ast.Expr, error) {
	if len(elems) < 2 {
		return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "require expects a module path", nil))
	}
	pathAtom, ok := elems[1].(*ast.Atom)
	if !ok {
		return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "require path must be an identifier or string", nil))
	}
	req := &ast.Require{Path: pathAtom.Syn.StrVal, Syn: syn()}
	if req.Path == "" {
		req.Path = pathAtom.Syn.Raw
	}
	if len(elems) >= 3 {
		symList, ok := elems[2].(*ast.List)
		if !ok {
			return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "require symbol list must be a list", nil))
		}
		for _, s := range symList.Elements {
			sa, ok := s.(*ast.Atom)
			if !ok {
				return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "require symbol must be an identifier", nil))
			}
			req.Symbols = append(req.Symbols, sa.Syn.Raw)
		}
	}
	return req, nil
}

func (r *Reader) classifyLet(elems []ast.Expr, syn func() *ast.SyntaxObject) (ast.Expr, error) {
	if len(elems) < 2 {
		return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "let expects a binding list", nil))
	}
	bindList, ok := elems[1].(*ast.List)
	if !ok {
		return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "let bindings must be a list", nil))
	}
	bindings := make([]ast.LetBinding, 0, len(bindList.Elements))
	for _, b := range bindList.Elements {
		pair, ok := b.(*ast.List)
		if !ok || len(pair.Elements) != 2 {
			return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "let binding must be (name init)", nil))
		}
		name, ok := pair.Elements[0].(*ast.Atom)
		if !ok {
			return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "let binding name must be an identifier", nil))
		}
		bindings = append(bindings, ast.LetBinding{Name: name, Init: pair.Elements[1]})
	}
	return &ast.Let{Bindings: bindings, Body: elems[2:], Syn: syn()}, nil
}

func (r *Reader) classifySyntaxRules(elems []ast.Expr, syn func() *ast.SyntaxObject) (ast.Expr, error) {
	if len(elems) < 2 {
		return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "syntax-rules expects a literal list", nil))
	}
	litList, ok := elems[1].(*ast.List)
	if !ok {
		return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "syntax-rules literal set must be a list", nil))
	}
	literals := make([]string, 0, len(litList.Elements))
	for _, l := range litList.Elements {
		la, ok := l.(*ast.Atom)
		if !ok {
			return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "syntax-rules literal must be an identifier", nil))
		}
		literals = append(literals, la.Syn.Raw)
	}
	rules := make([]ast.SyntaxRulePattern, 0, len(elems)-2)
	for _, re := range elems[2:] {
		pair, ok := re.(*ast.List)
		if !ok || len(pair.Elements) != 2 {
			return nil, schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, "syntax-rules rule must be (pattern template)", nil))
		}
		rules = append(rules, ast.SyntaxRulePattern{Pattern: pair.Elements[0], Template: pair.Elements[1]})
	}
	return &ast.SyntaxRules{Literals: literals, Rules: rules, Syn: syn()}, nil
}

func (r *Reader) spanFor(tok token) ast.Span {
	pos := ast.Pos{Line: tok.line, Column: tok.column}
	return ast.Span{Start: pos, End: pos, SourceID: r.sourceID}
}

func (r *Reader) syn(kind ast.TokenKind, tok token, raw string) *ast.SyntaxObject {
	return &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Kind: kind, Span: r.spanFor(tok), Raw: raw}
}

func (r *Reader) strSyn(tok token) *ast.SyntaxObject {
	return &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Kind: ast.TokString, Span: r.spanFor(tok), StrVal: tok.text}
}

func (r *Reader) atomSyn(tok token) *ast.SyntaxObject {
	span := r.spanFor(tok)
	if n, err := strconv.ParseInt(tok.text, 10, 64); err == nil {
		return &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Kind: ast.TokInt, Span: span, Raw: tok.text, IntVal: n}
	}
	if f, err := strconv.ParseFloat(tok.text, 64); err == nil && strings.ContainsAny(tok.text, ".eE") {
		return &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Kind: ast.TokReal, Span: span, Raw: tok.text, RealVal: f}
	}
	if tok.text == "#t" || tok.text == "#f" {
		return &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Kind: ast.TokBool, Span: span, Raw: tok.text, BoolVal: tok.text == "#t"}
	}
	if strings.HasPrefix(tok.text, "#\\") {
		r := []rune(strings.TrimPrefix(tok.text, "#\\"))
		var ch rune
		if len(r) > 0 {
			ch = r[0]
		}
		return &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Kind: ast.TokChar, Span: span, Raw: tok.text, CharVal: ch}
	}
	return &ast.SyntaxObject{Id: ast.NextSyntaxObjectId(), Kind: ast.TokIdentifier, Span: span, Raw: tok.text}
}

func (r *Reader) err(msg string, tok token) error {
	span := r.spanFor(tok)
	return schemeerr.WrapReport(schemeerr.New(schemeerr.PAR001, msg, &span))
}

func (r *Reader) errf(tok token, format string, args ...any) error {
	return r.err(fmt.Sprintf(format, args...), tok)
}
