package vm

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Expander rewrites a line that starts with a user-defined keyword into one
// or more replacement lines.
type Expander interface {
	ExpandIfCustom(line string) ([]string, bool)
}

type CompileOption func(*compileContext)

func WithExpander(e Expander) CompileOption {
	return func(cc *compileContext) {
		cc.expander = e
	}
}

type block struct {
	indent     int
	body       int // indentation of the block's statements, -1 until seen
	line       int
	startLabel string
	endLabel   string
}

type compileContext struct {
	ops      []Instruction
	blocks   []*block
	root     block
	expander Expander
}

func newCompileContext(opts []CompileOption) *compileContext {
	cc := &compileContext{root: block{indent: -1, body: -1}}
	for _, o := range opts {
		o(cc)
	}
	return cc
}

func (cc *compileContext) emit(inst Instruction) {
	cc.ops = append(cc.ops, inst)
}

func (cc *compileContext) newLabel() string {
	return uuid.NewString()
}

func (cc *compileContext) emitLabel(s string) {
	cc.ops = append(cc.ops, Instruction{Op: LABEL, Text: s})
}

func CompilePath(path string, opts ...CompileOption) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadFile(filepath.Base(path), f, opts...)
}

func LoadFile(name string, r io.Reader, opts ...CompileOption) (*Program, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return Compile(name, lines, opts...)
}

func CompileLiteral(code string, opts ...CompileOption) (*Program, error) {
	return Compile("<literal>", strings.Split(code, "\n"), opts...)
}

// Compile turns source lines into a flat instruction list. Indentation
// closes blocks: a line indented no deeper than an open loop ends it, and
// one line may end several nested loops at once.
func Compile(name string, lines []string, opts ...CompileOption) (*Program, error) {
	cc := newCompileContext(opts)
	source := make([]string, len(lines))
	for i, l := range lines {
		source[i] = strings.TrimRight(l, "\r")
	}
	inComment := false
	for i, raw := range source {
		lineNo := i + 1
		trimmed := strings.TrimSpace(raw)
		if inComment {
			if strings.Contains(trimmed, "##") {
				inComment = false
			}
			continue
		}
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "##") {
			if !strings.Contains(trimmed[2:], "##") {
				inComment = true
			}
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		indent, err := measureIndent(raw, lineNo)
		if err != nil {
			return nil, err
		}
		stmts := []string{trimmed}
		if cc.expander != nil {
			if expanded, ok := cc.expander.ExpandIfCustom(trimmed); ok {
				log.Debug().Int("line", lineNo).Strs("expansion", expanded).Msg("custom syntax expanded")
				stmts = expanded
			}
		}
		for _, s := range stmts {
			extra := len(s) - len(strings.TrimLeft(s, " "))
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if err := cc.line(s, indent+extra, lineNo); err != nil {
				return nil, err
			}
		}
	}
	if inComment {
		return nil, Errorf(SyntaxError, len(source), "unterminated block comment")
	}
	for len(cc.blocks) > 0 {
		cc.closeBlock(len(source))
	}
	p, err := cc.intoProgram(name)
	if err != nil {
		return nil, err
	}
	p.Source = source
	return p, nil
}

func measureIndent(raw string, line int) (int, error) {
	n := 0
	for _, c := range raw {
		switch c {
		case ' ':
			n++
		case '\t':
			return 0, Errorf(SyntaxError, line, "tabs are not allowed in indentation")
		default:
			return n, nil
		}
	}
	return n, nil
}

func (cc *compileContext) current() *block {
	if len(cc.blocks) == 0 {
		return &cc.root
	}
	return cc.blocks[len(cc.blocks)-1]
}

func (cc *compileContext) line(s string, indent, lineNo int) error {
	for len(cc.blocks) > 0 && indent <= cc.current().indent {
		cc.closeBlock(lineNo)
	}
	cur := cc.current()
	switch {
	case cur.body == -1:
		cur.body = indent
	case indent > cur.body:
		return Errorf(SyntaxError, lineNo, "unexpected indent")
	case indent < cur.body:
		return Errorf(SyntaxError, lineNo, "unindent does not match any outer indentation level")
	}
	inst, err := classify(s, lineNo)
	if err != nil {
		return err
	}
	inst.Indent = indent
	if inst.Op == LOOP_START {
		b := &block{
			indent:     indent,
			body:       -1,
			line:       lineNo,
			startLabel: cc.newLabel(),
			endLabel:   cc.newLabel(),
		}
		args := inst.Payload.(LoopArgs)
		args.endLabel = b.endLabel
		inst.Payload = args
		cc.emitLabel(b.startLabel)
		cc.blocks = append(cc.blocks, b)
		log.Debug().Int("line", lineNo).Int("depth", len(cc.blocks)).Msg("block opened")
	}
	cc.emit(inst)
	return nil
}

func (cc *compileContext) closeBlock(lineNo int) {
	b := cc.blocks[len(cc.blocks)-1]
	cc.blocks = cc.blocks[:len(cc.blocks)-1]
	cc.emitLabel(b.endLabel)
	cc.emit(Instruction{
		Op:      END_BLOCK,
		Line:    lineNo,
		Indent:  b.indent,
		Payload: EndArgs{startLabel: b.startLabel},
	})
	log.Debug().Int("line", lineNo).Int("opened", b.line).Msg("block closed")
}

// intoProgram strips labels and resolves them to instruction indices.
func (cc *compileContext) intoProgram(name string) (*Program, error) {
	p := &Program{Name: name}
	offsetmap := make(map[string]int)
	for _, inst := range cc.ops {
		if inst.Op == LABEL {
			offsetmap[inst.Text] = len(p.Code)
			continue
		}
		p.Code = append(p.Code, inst)
	}
	for i, inst := range p.Code {
		switch args := inst.Payload.(type) {
		case LoopArgs:
			end, ok := offsetmap[args.endLabel]
			if !ok {
				return nil, Errorf(SyntaxError, inst.Line, "loop has no end")
			}
			args.End = end
			inst.Payload = args
		case EndArgs:
			start, ok := offsetmap[args.startLabel]
			if !ok {
				return nil, Errorf(SyntaxError, inst.Line, "block end without a start")
			}
			args.Start = start
			inst.Payload = args
		}
		p.Code[i] = inst // Replace after changes
	}
	return p, nil
}

// keyword reports whether s starts with kw followed by a space, or by an
// opening parenthesis when paren is set, so that identifiers like "double"
// or "loops" are not mistaken for statements.
func keyword(s, kw string, paren bool) (string, bool) {
	if !strings.HasPrefix(s, kw) || len(s) == len(kw) {
		return "", false
	}
	rest := s[len(kw):]
	trimmed := strings.TrimLeft(rest, " ")
	if trimmed == "" {
		return "", false
	}
	if paren {
		return trimmed, trimmed[0] == '('
	}
	return trimmed, rest[0] == ' '
}

func classify(s string, line int) (Instruction, error) {
	inst := Instruction{Text: s, Line: line}
	if rest, ok := keyword(s, "imp", false); ok {
		return compileImport(inst, rest)
	}
	if rest, ok := keyword(s, "var", false); ok {
		return compileDecl(inst, rest)
	}
	if rest, ok := keyword(s, "loop", true); ok {
		return compileLoop(inst, rest)
	}
	if rest, ok := keyword(s, "give", true); ok {
		return compileGive(inst, rest)
	}
	if rest, ok := keyword(s, "do", true); ok {
		return compileDo(inst, rest)
	}
	if rest, ok := keyword(s, "change", false); ok {
		return compileChange(inst, rest)
	}
	if typed, ok, err := compileTypedDecl(inst, s); ok || err != nil {
		return typed, err
	}
	if eq := FindAssign(s); eq >= 0 && !hasParens(s) {
		return compileAssign(inst, s, eq)
	}
	return compileCall(inst, s)
}

func compileImport(inst Instruction, rest string) (Instruction, error) {
	inst.Op = IMPORT
	var names []string
	for _, n := range strings.Split(rest, ",") {
		n = strings.TrimSpace(n)
		if n == "" {
			return inst, Errorf(SyntaxError, inst.Line, "empty library name in import")
		}
		for _, part := range strings.Split(n, ".") {
			if !IsIdentifier(part) {
				return inst, Errorf(SyntaxError, inst.Line, "invalid library name %q", n)
			}
		}
		names = append(names, n)
	}
	inst.Payload = ImportArgs{Names: names}
	return inst, nil
}

func compileDecl(inst Instruction, rest string) (Instruction, error) {
	inst.Op = VAR_DECL
	args := DeclArgs{}
	if strings.HasPrefix(rest, "(") {
		inner, end, ok := ScanGroup(rest, 0)
		if !ok {
			return inst, Errorf(SyntaxError, inst.Line, "unmatched parenthesis in declaration")
		}
		t, ok := NormalizeTypeName(inner)
		if !ok || !t.Bindable() {
			return inst, Errorf(SyntaxError, inst.Line, "bad type annotation %q", inner)
		}
		args.Type = t
		rest = strings.TrimSpace(rest[end+1:])
	}
	return finishDecl(inst, args, rest)
}

// compileTypedDecl handles the "(type) name [= expr]" form.
func compileTypedDecl(inst Instruction, s string) (Instruction, bool, error) {
	if !strings.HasPrefix(s, "(") {
		return inst, false, nil
	}
	inner, end, ok := ScanGroup(s, 0)
	if !ok {
		return inst, false, nil
	}
	inner = strings.TrimSpace(inner)
	if !IsIdentifier(inner) {
		return inst, false, nil
	}
	rest := strings.TrimSpace(s[end+1:])
	name := rest
	if eq := FindAssign(rest); eq >= 0 {
		name = strings.TrimSpace(rest[:eq])
	}
	if !IsIdentifier(name) {
		return inst, false, nil
	}
	t, ok := NormalizeTypeName(inner)
	if !ok || !t.Bindable() {
		return inst, true, Errorf(SyntaxError, inst.Line, "bad type annotation %q", inner)
	}
	inst.Op = VAR_DECL
	inst, err := finishDecl(inst, DeclArgs{Type: t}, rest)
	return inst, true, err
}

// ParseDeclaration recognizes a declaration marker used as a whole argument
// of give or do, such as "var x = 1" or "(int) x = 1". ok is false when s is
// not written as a declaration.
func ParseDeclaration(s string, line int) (DeclArgs, bool, error) {
	s = strings.TrimSpace(s)
	inst := Instruction{Text: s, Line: line}
	if rest, ok := keyword(s, "var", false); ok {
		inst, err := compileDecl(inst, rest)
		if err != nil {
			return DeclArgs{}, true, err
		}
		return inst.Payload.(DeclArgs), true, nil
	}
	inst, ok, err := compileTypedDecl(inst, s)
	if !ok || err != nil {
		return DeclArgs{}, ok, err
	}
	return inst.Payload.(DeclArgs), true, nil
}

func finishDecl(inst Instruction, args DeclArgs, rest string) (Instruction, error) {
	name := rest
	if eq := FindAssign(rest); eq >= 0 {
		name = strings.TrimSpace(rest[:eq])
		args.Expr = strings.TrimSpace(rest[eq+1:])
		args.HasInit = true
		if args.Expr == "" {
			return inst, Errorf(SyntaxError, inst.Line, "missing initializer for %q", name)
		}
		if err := checkExpr(args.Expr, inst.Line); err != nil {
			return inst, err
		}
	}
	if !IsIdentifier(name) || IsReserved(name) {
		return inst, Errorf(SyntaxError, inst.Line, "malformed declaration: %q is not a valid name", name)
	}
	args.Name = name
	inst.Payload = args
	return inst, nil
}

func compileAssign(inst Instruction, s string, eq int) (Instruction, error) {
	inst.Op = VAR_ASSIGN
	name := strings.TrimSpace(s[:eq])
	expr := strings.TrimSpace(s[eq+1:])
	if !IsIdentifier(name) || IsReserved(name) {
		return inst, Errorf(SyntaxError, inst.Line, "cannot assign to %q", name)
	}
	if expr == "" {
		return inst, Errorf(SyntaxError, inst.Line, "missing value in assignment to %q", name)
	}
	if err := checkExpr(expr, inst.Line); err != nil {
		return inst, err
	}
	inst.Payload = AssignArgs{Name: name, Expr: expr}
	return inst, nil
}

func compileLoop(inst Instruction, rest string) (Instruction, error) {
	inst.Op = LOOP_START
	groups, tail, ok := scanGroups(rest, 1)
	if !ok {
		return inst, Errorf(SyntaxError, inst.Line, "loop requires a parenthesized expression")
	}
	if tail != "" && tail != ":" {
		return inst, Errorf(SyntaxError, inst.Line, "unexpected text after loop: %q", tail)
	}
	if groups[0] == "" {
		return inst, Errorf(SyntaxError, inst.Line, "empty loop expression")
	}
	if err := checkExpr(groups[0], inst.Line); err != nil {
		return inst, err
	}
	inst.Payload = LoopArgs{Expr: groups[0]}
	return inst, nil
}

func compileGive(inst Instruction, rest string) (Instruction, error) {
	inst.Op = GIVE
	groups, tail, ok := scanGroups(rest, 2)
	if !ok {
		return inst, Errorf(SyntaxError, inst.Line, "give requires (target)(variables)")
	}
	if tail != "" {
		return inst, Errorf(SyntaxError, inst.Line, "unexpected text after give: %q", tail)
	}
	if !IsIdentifier(groups[0]) {
		return inst, Errorf(SyntaxError, inst.Line, "invalid give target %q", groups[0])
	}
	args := SplitTopLevel(groups[1], ',')
	if err := checkArgs(args, inst.Line); err != nil {
		return inst, err
	}
	inst.Payload = GiveArgs{Target: groups[0], Args: args}
	return inst, nil
}

func compileDo(inst Instruction, rest string) (Instruction, error) {
	inst.Op = DO
	groups, tail, ok := scanGroups(rest, 3)
	if !ok {
		return inst, Errorf(SyntaxError, inst.Line, "do requires (class)(method)(arguments)")
	}
	if tail != "" {
		return inst, Errorf(SyntaxError, inst.Line, "unexpected text after do: %q", tail)
	}
	class, method := groups[0], groups[1]
	if class != "" && !IsIdentifier(class) {
		return inst, Errorf(SyntaxError, inst.Line, "invalid class name %q", class)
	}
	if method != "" && !IsIdentifier(method) {
		return inst, Errorf(SyntaxError, inst.Line, "invalid method name %q", method)
	}
	if class == "" && method == "" {
		return inst, Errorf(SyntaxError, inst.Line, "do needs a class or a program name")
	}
	args := SplitTopLevel(groups[2], ',')
	if err := checkArgs(args, inst.Line); err != nil {
		return inst, err
	}
	if class != "" && method == "" && len(args) != 1 {
		return inst, Errorf(SyntaxError, inst.Line, "field access takes exactly one field expression")
	}
	inst.Payload = DoArgs{Class: class, Method: method, Args: args}
	return inst, nil
}

// splitTyped splits "a::b" into a name and a type. The type may be written on
// either side of the separator.
func splitTyped(s string, line int) (string, Type, error) {
	idx := findTopLevel(s, "::")
	if idx < 0 {
		return strings.TrimSpace(s), TypeNone, nil
	}
	left := strings.TrimSpace(s[:idx])
	right := strings.TrimSpace(s[idx+2:])
	if t, ok := NormalizeTypeName(right); ok && left != "" {
		return left, t, nil
	}
	if t, ok := NormalizeTypeName(left); ok && right != "" {
		return right, t, nil
	}
	return "", TypeNone, Errorf(SyntaxError, line, "bad type annotation in %q", s)
}

func compileChange(inst Instruction, rest string) (Instruction, error) {
	inst.Op = CHANGE
	eq := FindAssign(rest)
	if eq < 0 {
		return inst, Errorf(SyntaxError, inst.Line, "change requires target = source")
	}
	target, tt, err := splitTyped(rest[:eq], inst.Line)
	if err != nil {
		return inst, err
	}
	if !IsIdentifier(target) || IsReserved(target) {
		return inst, Errorf(SyntaxError, inst.Line, "invalid change target %q", target)
	}
	source, st, err := splitTyped(rest[eq+1:], inst.Line)
	if err != nil {
		return inst, err
	}
	if source == "" {
		return inst, Errorf(SyntaxError, inst.Line, "change is missing a source")
	}
	if tt == TypeObject || st == TypeObject {
		return inst, Errorf(SyntaxError, inst.Line, "object is not a conversion type")
	}
	inst.Payload = ChangeArgs{Target: target, TargetType: tt, Source: source, SourceType: st}
	return inst, nil
}

func compileCall(inst Instruction, s string) (Instruction, error) {
	inst.Op = CALL
	args := CallArgs{Expr: s}
	if eq := FindAssign(s); eq >= 0 {
		target := strings.TrimSpace(s[:eq])
		if !IsIdentifier(target) || IsReserved(target) {
			return inst, Errorf(SyntaxError, inst.Line, "cannot assign to %q", target)
		}
		args.Target = target
		args.Expr = strings.TrimSpace(s[eq+1:])
		if args.Expr == "" {
			return inst, Errorf(SyntaxError, inst.Line, "missing value in assignment to %q", target)
		}
	}
	if class, method, callArgs, ok := ParseCallShape(args.Expr); ok {
		if err := checkArgs(callArgs, inst.Line); err != nil {
			return inst, err
		}
		args.Class, args.Method, args.Args = class, method, callArgs
	} else if err := checkExpr(args.Expr, inst.Line); err != nil {
		return inst, err
	}
	inst.Payload = args
	return inst, nil
}

func checkArgs(args []string, line int) error {
	for _, a := range args {
		if a == "" {
			return Errorf(SyntaxError, line, "empty argument")
		}
		if err := checkExpr(a, line); err != nil {
			return err
		}
	}
	return nil
}
