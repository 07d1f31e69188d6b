package interp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quillscript/quill/vm"
)

type TokenKind int

const (
	ValueToken TokenKind = iota
	OpToken
	DeclToken
)

// Token is one element of a tokenized expression. Literals, variables,
// parenthesized groups and host calls are evaluated while tokenizing, so
// only operators remain for the evaluator to fold.
type Token struct {
	Kind  TokenKind
	Value vm.Value
	Op    string
	Decl  *vm.DeclArgs
}

func (t Token) String() string {
	switch t.Kind {
	case ValueToken:
		return FormatValue(t.Value)
	case OpToken:
		return t.Op
	case DeclToken:
		return "decl(" + t.Decl.String() + ")"
	}
	return "?"
}

// Resolver supplies the names an expression may refer to.
type Resolver interface {
	Lookup(name string) (vm.Value, error)
	CallHost(class, method string, args []vm.Value, line int) (vm.Value, error)
	Field(class, name string, line int) (vm.Value, error)
}

// operators are matched longest first.
var operators = []string{
	"++", "--", "==", "!=", ">=", "<=", "&&", "||",
	"*", "/", "%", "+", "-", ">", "<",
}

// Tokenize splits expr into tokens. An expression written entirely as a
// declaration ("var x = 1", "(int) x = 1") yields a single DeclToken whose
// initializer is left unevaluated.
func Tokenize(expr string, line int, r Resolver) ([]Token, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, vm.Errorf(vm.SyntaxError, line, "empty expression")
	}
	decl, ok, err := vm.ParseDeclaration(expr, line)
	if err != nil {
		return nil, err
	}
	if ok {
		return []Token{{Kind: DeclToken, Decl: &decl}}, nil
	}
	t := &tokenizer{src: expr, line: line, r: r}
	if err := t.run(); err != nil {
		return nil, err
	}
	return t.out, nil
}

type tokenizer struct {
	src    string
	pos    int
	line   int
	r      Resolver
	out    []Token
	negate bool
}

func (t *tokenizer) run() error {
	for t.pos < len(t.src) {
		c := t.src[t.pos]
		var err error
		switch {
		case c == ' ' || c == '\t':
			t.pos++
		case c == '"':
			err = t.readString()
		case isDigit(c):
			err = t.readNumber()
		case c == '(':
			err = t.readGroup()
		case c == ')':
			err = vm.Errorf(vm.SyntaxError, t.line, "mismatched parentheses in %q", t.src)
		case isIdentStart(c):
			err = t.readName()
		default:
			err = t.readOperator()
		}
		if err != nil {
			return err
		}
	}
	if t.negate {
		return vm.Errorf(vm.SyntaxError, t.line, "unary minus without an operand in %q", t.src)
	}
	return nil
}

func (t *tokenizer) lastIsValue() bool {
	return len(t.out) > 0 && t.out[len(t.out)-1].Kind == ValueToken
}

func (t *tokenizer) pushValue(v vm.Value) error {
	if t.negate {
		t.negate = false
		n, err := negate(v, t.line)
		if err != nil {
			return err
		}
		v = n
	}
	t.out = append(t.out, Token{Kind: ValueToken, Value: v})
	return nil
}

func (t *tokenizer) readString() error {
	var b strings.Builder
	i := t.pos + 1
	for i < len(t.src) {
		c := t.src[i]
		switch c {
		case '"':
			t.pos = i + 1
			return t.pushValue(vm.StrValue(b.String()))
		case '\\':
			if i+1 >= len(t.src) {
				return vm.Errorf(vm.SyntaxError, t.line, "unterminated escape sequence in %q", t.src)
			}
			switch e := t.src[i+1]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"', '\\':
				b.WriteByte(e)
			default:
				return vm.Errorf(vm.SyntaxError, t.line, "unknown escape sequence \\%c", e)
			}
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return vm.Errorf(vm.SyntaxError, t.line, "unterminated string literal in %q", t.src)
}

func (t *tokenizer) readNumber() error {
	start := t.pos
	i := t.pos
	for i < len(t.src) && isDigit(t.src[i]) {
		i++
	}
	isFloat := false
	if i+1 < len(t.src) && t.src[i] == '.' && isDigit(t.src[i+1]) {
		isFloat = true
		i++
		for i < len(t.src) && isDigit(t.src[i]) {
			i++
		}
	}
	if i < len(t.src) && (isIdentStart(t.src[i]) || t.src[i] == '.') {
		return vm.Errorf(vm.SyntaxError, t.line, "malformed number in %q", t.src)
	}
	lit := t.src[start:i]
	t.pos = i
	if isFloat {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return vm.Errorf(vm.SyntaxError, t.line, "malformed number %q", lit)
		}
		return t.pushValue(vm.DoubleValue(f))
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return vm.Errorf(vm.MathError, t.line, "integer literal %s overflows long", lit)
	}
	return t.pushValue(vm.IntOrLong(n))
}

func (t *tokenizer) readGroup() error {
	inner, end, ok := vm.ScanGroup(t.src, t.pos)
	if !ok {
		return vm.Errorf(vm.SyntaxError, t.line, "mismatched parentheses in %q", t.src)
	}
	v, err := Evaluate(inner, t.line, t.r)
	if err != nil {
		return err
	}
	t.pos = end + 1
	return t.pushValue(v)
}

func (t *tokenizer) ident() string {
	start := t.pos
	for t.pos < len(t.src) && isIdentChar(t.src[t.pos]) {
		t.pos++
	}
	return t.src[start:t.pos]
}

func (t *tokenizer) skipSpaces() {
	for t.pos < len(t.src) && t.src[t.pos] == ' ' {
		t.pos++
	}
}

func (t *tokenizer) readName() error {
	name := t.ident()
	if t.pos+1 < len(t.src) && t.src[t.pos] == '.' && isIdentStart(t.src[t.pos+1]) {
		t.pos++
		member := t.ident()
		t.skipSpaces()
		if t.pos < len(t.src) && t.src[t.pos] == '(' {
			return t.readCall(name, member)
		}
		v, err := t.r.Field(name, member, t.line)
		if err != nil {
			return err
		}
		return t.pushValue(v)
	}
	switch name {
	case "true":
		return t.pushValue(vm.BoolTrue)
	case "false":
		return t.pushValue(vm.BoolFalse)
	case "null":
		return t.pushValue(vm.Null)
	}
	if vm.IsReserved(name) {
		return vm.Errorf(vm.SyntaxError, t.line, "unexpected keyword %q in expression", name)
	}
	v, err := t.r.Lookup(name)
	if err != nil {
		return err
	}
	return t.pushValue(v)
}

func (t *tokenizer) readCall(class, method string) error {
	inner, end, ok := vm.ScanGroup(t.src, t.pos)
	if !ok {
		return vm.Errorf(vm.SyntaxError, t.line, "mismatched parentheses in call to %s.%s", class, method)
	}
	t.pos = end + 1
	args, err := EvaluateArgs(vm.SplitTopLevel(inner, ','), t.line, t.r)
	if err != nil {
		return err
	}
	v, err := t.r.CallHost(class, method, args, t.line)
	if err != nil {
		return err
	}
	return t.pushValue(v)
}

func (t *tokenizer) readOperator() error {
	for _, op := range operators {
		if !strings.HasPrefix(t.src[t.pos:], op) {
			continue
		}
		t.pos += len(op)
		if op == "-" && !t.lastIsValue() {
			t.negate = !t.negate
			return nil
		}
		if t.negate {
			return vm.Errorf(vm.SyntaxError, t.line, "unary minus must precede a value in %q", t.src)
		}
		t.out = append(t.out, Token{Kind: OpToken, Op: op})
		return nil
	}
	return vm.Errorf(vm.SyntaxError, t.line, "unexpected character %q in %q", t.src[t.pos], t.src)
}

// EvaluateArgs evaluates a comma-separated argument list.
func EvaluateArgs(args []string, line int, r Resolver) ([]vm.Value, error) {
	out := make([]vm.Value, 0, len(args))
	for _, a := range args {
		if a == "" {
			return nil, vm.Errorf(vm.SyntaxError, line, "empty argument")
		}
		v, err := Evaluate(a, line, r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

// FormatValue renders a value the way it would be written in a script.
func FormatValue(v vm.Value) string {
	switch n := v.(type) {
	case nil:
		return "null"
	case vm.StrValue:
		return strconv.Quote(string(n))
	case vm.RepeatedValue:
		return fmt.Sprintf("%s * %d", strconv.Quote(n.Base), n.Count)
	}
	return v.String()
}
