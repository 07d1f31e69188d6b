package vm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Instruction is one compiled statement. Instructions are not modified once
// a Program has been built.
type Instruction struct {
	Op      Opcode
	Text    string
	Line    int
	Indent  int
	Payload Payload
}

func (i Instruction) String() string {
	if i.Payload == nil {
		return fmt.Sprintf("%-10s L%-4d %s", i.Op, i.Line, i.Text)
	}
	return fmt.Sprintf("%-10s L%-4d %v", i.Op, i.Line, i.Payload)
}

// Payload is the statement-specific data parsed out of the line at compile time.
type Payload interface {
	isPayload()
}

type ImportArgs struct {
	Names []string
}

type DeclArgs struct {
	Name    string
	Type    Type
	Expr    string
	HasInit bool
}

type AssignArgs struct {
	Name string
	Expr string
}

type LoopArgs struct {
	Expr     string
	End      int // index of the matching END_BLOCK
	endLabel string
}

type EndArgs struct {
	Start      int // index of the matching LOOP_START
	startLabel string
}

// CallArgs describes an expression statement. When the expression is exactly
// a Class.method(args) call, Class, Method and Args are filled in.
type CallArgs struct {
	Target string
	Expr   string
	Class  string
	Method string
	Args   []string
}

type GiveArgs struct {
	Target string
	Args   []string
}

type DoArgs struct {
	Class  string
	Method string
	Args   []string
}

type ChangeArgs struct {
	Target     string
	TargetType Type
	Source     string
	SourceType Type
}

func (ImportArgs) isPayload() {}
func (DeclArgs) isPayload()   {}
func (AssignArgs) isPayload() {}
func (LoopArgs) isPayload()   {}
func (EndArgs) isPayload()    {}
func (CallArgs) isPayload()   {}
func (GiveArgs) isPayload()   {}
func (DoArgs) isPayload()     {}
func (ChangeArgs) isPayload() {}

func (a ImportArgs) String() string { return strings.Join(a.Names, ", ") }

func (a DeclArgs) String() string {
	s := a.Name
	if a.Type != TypeNone {
		s = fmt.Sprintf("(%s) %s", a.Type, a.Name)
	}
	if a.HasInit {
		s += " = " + a.Expr
	}
	return s
}

func (a AssignArgs) String() string { return a.Name + " = " + a.Expr }
func (a LoopArgs) String() string   { return fmt.Sprintf("(%s) end=%d", a.Expr, a.End) }
func (a EndArgs) String() string    { return fmt.Sprintf("start=%d", a.Start) }

func (a CallArgs) String() string {
	if a.Target != "" {
		return a.Target + " = " + a.Expr
	}
	return a.Expr
}

func (a GiveArgs) String() string {
	return fmt.Sprintf("(%s)(%s)", a.Target, strings.Join(a.Args, ", "))
}

func (a DoArgs) String() string {
	return fmt.Sprintf("(%s)(%s)(%s)", a.Class, a.Method, strings.Join(a.Args, ", "))
}

func (a ChangeArgs) String() string {
	return fmt.Sprintf("%s::%s = %s::%s", a.Target, a.TargetType, a.Source, a.SourceType)
}

// Program is a compiled script.
type Program struct {
	Name   string
	Source []string
	Code   []Instruction
}

var ErrEndOfCode = errors.New("End of code block")

func (p *Program) GetInstruction(pc int) (Instruction, error) {
	if pc < 0 || pc >= len(p.Code) {
		return Instruction{}, ErrEndOfCode
	}
	return p.Code[pc], nil
}

func (p *Program) Len() int {
	return len(p.Code)
}

func (p *Program) DebugPrint() {
	p.Disassemble(os.Stdout)
}

func (p *Program) Disassemble(w io.Writer) {
	fmt.Fprintf(w, "*** %s (%d instructions)\n", p.Name, len(p.Code))
	for i, inst := range p.Code {
		fmt.Fprintf(w, "  %03d: %s%s\n", i, strings.Repeat("  ", inst.Indent/2), inst)
	}
}
