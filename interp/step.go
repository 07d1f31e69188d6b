package interp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/quillscript/quill/host"
	"github.com/quillscript/quill/vm"
	"github.com/rs/zerolog/log"
)

// Step executes the instruction at the program counter.
func (m *Machine) Step() (StepResult, error) {
	if m.prog == nil {
		return ErrorStep, errors.New("no program loaded")
	}
	inst, err := m.prog.GetInstruction(m.pc)
	if err != nil {
		if errors.Is(err, vm.ErrEndOfCode) {
			log.Trace().Int("pc", m.pc).Msg("Step: end of code")
			return EndStep, nil
		}
		return ErrorStep, err
	}

	log.Trace().
		Str("opcode", inst.Op.String()).
		Int("pc", m.pc).
		Int("line", inst.Line).
		Int("loop_depth", len(m.loops)).
		Msg("Step: executing instruction")

	m.next = m.pc + 1
	switch inst.Op {
	case vm.NOP:
	case vm.IMPORT:
		err = m.execImport(inst)
	case vm.VAR_DECL:
		err = m.execDecl(inst)
	case vm.VAR_ASSIGN:
		err = m.execAssign(inst)
	case vm.LOOP_START:
		err = m.execLoopStart(inst)
	case vm.END_BLOCK:
		err = m.execEndBlock(inst)
	case vm.CALL:
		err = m.execCall(inst)
	case vm.GIVE:
		err = m.execGive(inst)
	case vm.DO:
		err = m.execDo(inst)
	case vm.CHANGE:
		err = m.execChange(inst)
	default:
		err = vm.Errorf(vm.SyntaxError, inst.Line, "unhandled opcode %s", inst.Op)
	}
	if err != nil {
		err = vm.Wrap(err, inst.Line, fmt.Sprintf("executing %q", inst.Text))
		log.Trace().Err(err).Int("pc", m.pc).Msg("Step: error")
		return ErrorStep, err
	}
	m.pc = m.next
	return ContinueStep, nil
}

func (m *Machine) execImport(inst vm.Instruction) error {
	args := inst.Payload.(vm.ImportArgs)
	for _, name := range args.Names {
		c, err := m.Env.Import(name)
		if err != nil {
			return err
		}
		m.imported[name] = c
		m.imported[c.Name] = c
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			m.imported[name[i+1:]] = c
		}
		log.Trace().Str("library", name).Msg("  IMPORT")
	}
	return nil
}

// checkType validates v against the static type t under the machine's
// policy, returning the value to store.
func (m *Machine) checkType(name string, t vm.Type, v vm.Value, line int) (vm.Value, error) {
	if t == vm.TypeNone || v.Type() == t {
		return v, nil
	}
	if m.Policy == WideningTypes && vm.Widens(v.Type(), t) {
		return vm.Convert(v, t)
	}
	return nil, vm.Errorf(vm.TypeMismatchError, line, "cannot assign %s value to %s variable %q", v.Type(), t, name)
}

// declare performs a declaration, binding the static type when one is given.
func (m *Machine) declare(d vm.DeclArgs, line int) (vm.Value, error) {
	var v vm.Value = vm.Uninit
	if d.HasInit {
		ev, err := m.evaluate(d.Expr, line)
		if err != nil {
			return nil, err
		}
		if v, err = m.checkType(d.Name, d.Type, ev, line); err != nil {
			return nil, err
		}
	}
	m.Store.StoreVar(d.Name, v)
	if d.Type != vm.TypeNone {
		m.Store.Bind(d.Name, d.Type)
	} else {
		m.Store.Unbind(d.Name)
	}
	log.Trace().Str("variable", d.Name).Str("type", d.Type.String()).Str("value", FormatValue(v)).Msg("  VAR_DECL")
	return v, nil
}

func (m *Machine) execDecl(inst vm.Instruction) error {
	_, err := m.declare(inst.Payload.(vm.DeclArgs), inst.Line)
	return err
}

// assign stores v into name, honouring any static binding. Assigning to a
// name that was never declared creates a free-typed variable.
func (m *Machine) assign(name string, v vm.Value, line int) error {
	v, err := m.checkType(name, m.Store.TypeOf(name), v, line)
	if err != nil {
		return err
	}
	m.Store.StoreVar(name, v)
	log.Trace().Str("variable", name).Str("value", FormatValue(v)).Msg("  ASSIGN")
	return nil
}

func (m *Machine) execAssign(inst vm.Instruction) error {
	args := inst.Payload.(vm.AssignArgs)
	v, err := m.evaluate(args.Expr, inst.Line)
	if err != nil {
		return err
	}
	return m.assign(args.Name, v, inst.Line)
}

func (m *Machine) execLoopStart(inst vm.Instruction) error {
	args := inst.Payload.(vm.LoopArgs)
	v, err := m.evaluate(args.Expr, inst.Line)
	if err != nil {
		return err
	}
	ctx := LoopContext{Start: m.pc, End: args.End}
	switch n := v.(type) {
	case vm.BoolValue:
		ctx.Infinite = bool(n)
	case vm.IntValue, vm.LongValue:
		ctx.Remaining, _ = vm.AsInt64(n)
	case vm.DoubleValue:
		f := float64(n)
		if f >= 1 {
			ctx.Remaining = int64(min(f, 1<<62))
		}
	default:
		if _, err := materialize(v, inst.Line); err != nil {
			return err
		}
		ctx.Infinite = vm.Truthy(v)
	}
	if !ctx.Infinite && ctx.Remaining <= 0 {
		log.Trace().Str("value", FormatValue(v)).Int("jump", args.End+1).Msg("  LOOP_START: skipping body")
		m.next = args.End + 1
		return nil
	}
	m.loops = append(m.loops, ctx)
	log.Trace().Str("loop", ctx.String()).Msg("  LOOP_START")
	return nil
}

func (m *Machine) execEndBlock(inst vm.Instruction) error {
	args := inst.Payload.(vm.EndArgs)
	if len(m.loops) == 0 || m.loops[len(m.loops)-1].Start != args.Start {
		return vm.Errorf(vm.SyntaxError, inst.Line, "end of block at %d does not match an open loop", m.pc)
	}
	top := &m.loops[len(m.loops)-1]
	if !top.Infinite {
		top.Remaining--
		if top.Remaining <= 0 {
			m.loops = m.loops[:len(m.loops)-1]
			log.Trace().Int("pc", m.pc).Msg("  END_BLOCK: loop finished")
			return nil
		}
	}
	if m.OnBackEdge != nil {
		if err := m.OnBackEdge(m.pc); err != nil {
			return err
		}
	}
	m.next = top.Start + 1
	log.Trace().Str("loop", top.String()).Msg("  END_BLOCK: back edge")
	return nil
}

func (m *Machine) execCall(inst vm.Instruction) error {
	args := inst.Payload.(vm.CallArgs)
	var (
		v   vm.Value
		err error
	)
	if args.Class != "" {
		var vals []vm.Value
		if vals, err = EvaluateArgs(args.Args, inst.Line, m); err != nil {
			return err
		}
		v, err = m.CallHost(args.Class, args.Method, vals, inst.Line)
	} else {
		v, err = m.evaluate(args.Expr, inst.Line)
	}
	if err != nil {
		return err
	}
	m.last = v
	log.Trace().Str("result", FormatValue(v)).Msg("  CALL")
	if args.Target != "" {
		return m.assign(args.Target, v, inst.Line)
	}
	return nil
}

// reference resolves a give or do argument that must name a variable. A
// declaration marker is executed first and names the declared variable.
func (m *Machine) reference(arg string, line int) (string, vm.Value, error) {
	toks, err := Tokenize(arg, line, shapeOnly{})
	if err != nil {
		return "", nil, err
	}
	if len(toks) == 1 && toks[0].Kind == DeclToken {
		v, err := m.declare(*toks[0].Decl, line)
		return toks[0].Decl.Name, v, err
	}
	if !vm.IsIdentifier(arg) || vm.IsReserved(arg) {
		return "", nil, vm.Errorf(vm.ParameterError, line, "expected a variable reference, got %q", arg)
	}
	v, err := m.Lookup(arg)
	return arg, v, err
}

// shapeOnly lets an argument be tokenized without reading variables or
// calling into the host.
type shapeOnly struct{}

func (shapeOnly) Lookup(string) (vm.Value, error) { return vm.IntValue(0), nil }
func (shapeOnly) CallHost(string, string, []vm.Value, int) (vm.Value, error) {
	return vm.IntValue(0), nil
}
func (shapeOnly) Field(string, string, int) (vm.Value, error) { return vm.IntValue(0), nil }

func (m *Machine) execGive(inst vm.Instruction) error {
	args := inst.Payload.(vm.GiveArgs)
	pkg := host.NewPackage(args.Target, inst.Line)
	for _, a := range args.Args {
		name, v, err := m.reference(a, inst.Line)
		if err != nil {
			return err
		}
		t := m.Store.TypeOf(name)
		if t == vm.TypeNone {
			t = v.Type()
		}
		pkg.Add(name, t, v)
	}
	m.given = append(m.given, pkg)
	log.Trace().Stringer("package", pkg).Msg("  GIVE")
	if m.Env.Receiver != nil {
		if err := m.Env.Receiver.Receive(m.ctx, pkg); err != nil {
			return vm.Wrap(err, inst.Line, "delivering give package to "+args.Target)
		}
	}
	return nil
}

func (m *Machine) execDo(inst vm.Instruction) error {
	args := inst.Payload.(vm.DoArgs)
	switch {
	case args.Class == "":
		return m.doExternal(args.Method, args.Args, inst.Line)
	case args.Method == "":
		return m.doField(args.Class, args.Args[0], inst.Line)
	}
	vals, err := EvaluateArgs(args.Args, inst.Line, m)
	if err != nil {
		return err
	}
	v, err := m.CallHost(args.Class, args.Method, vals, inst.Line)
	if err != nil {
		return err
	}
	m.last = v
	return nil
}

func (m *Machine) doExternal(program string, argExprs []string, line int) error {
	if m.Env.External == nil {
		return vm.Errorf(vm.UnresolvedReferenceError, line, "no external program handler for %q", program)
	}
	vals, err := EvaluateArgs(argExprs, line, m)
	if err != nil {
		return err
	}
	for i, a := range vals {
		if vals[i], err = materialize(a, line); err != nil {
			return err
		}
	}
	v, err := m.Env.External.Run(m.ctx, program, vals)
	if err != nil {
		return vm.Wrap(err, line, "external program "+program)
	}
	if v == nil {
		v = vm.Null
	}
	m.last = v
	log.Trace().Str("program", program).Str("result", FormatValue(v)).Msg("  DO external")
	return nil
}

// doField reads or writes a class field. "name" reads, "name = e" writes and
// a declaration writes too, but under a decorated name (name_1, name_2, ...)
// when the field already exists.
func (m *Machine) doField(class, expr string, line int) error {
	c, err := m.classFor(class, line)
	if err != nil {
		return err
	}
	if d, ok, err := vm.ParseDeclaration(expr, line); ok || err != nil {
		if err != nil {
			return err
		}
		var v vm.Value = vm.Null
		if d.HasInit {
			if v, err = m.evaluate(d.Expr, line); err != nil {
				return err
			}
		}
		if d.Type != vm.TypeNone {
			if v, err = vm.Convert(v, d.Type); err != nil {
				return err
			}
		}
		name := d.Name
		for i := 1; m.hasField(c, name); i++ {
			name = d.Name + "_" + strconv.Itoa(i)
		}
		if name != d.Name {
			log.Debug().Str("class", c.Name).Str("field", d.Name).Str("stored_as", name).Msg("field exists, declaring under a new name")
		}
		m.setField(c, name, v)
		m.last = v
		return nil
	}
	if eq := vm.FindAssign(expr); eq >= 0 {
		name := strings.TrimSpace(expr[:eq])
		if !vm.IsIdentifier(name) {
			return vm.Errorf(vm.SyntaxError, line, "invalid field name %q", name)
		}
		v, err := m.evaluate(expr[eq+1:], line)
		if err != nil {
			return err
		}
		m.setField(c, name, v)
		m.last = v
		return nil
	}
	if !vm.IsIdentifier(expr) {
		return vm.Errorf(vm.SyntaxError, line, "invalid field name %q", expr)
	}
	v, err := m.Field(c.Name, expr, line)
	if err != nil {
		return err
	}
	m.last = v
	return nil
}

func (m *Machine) execChange(inst vm.Instruction) error {
	args := inst.Payload.(vm.ChangeArgs)
	v, err := m.evaluate(args.Source, inst.Line)
	if err != nil {
		return err
	}
	if args.SourceType != vm.TypeNone {
		if v, err = vm.Convert(v, args.SourceType); err != nil {
			return err
		}
	}
	t := args.TargetType
	if t == vm.TypeNone {
		t = args.SourceType
	}
	switch t {
	case vm.TypeNone:
		m.warn(inst.Line, fmt.Sprintf("line %d: change of %s names no type; value copied unchanged", inst.Line, args.Target))
		return m.assign(args.Target, v, inst.Line)
	case vm.TypeNull:
		m.Store.StoreVar(args.Target, vm.Null)
		m.Store.Unbind(args.Target)
		return nil
	}
	cv, err := vm.Convert(v, t)
	if err != nil {
		return err
	}
	m.Store.StoreVar(args.Target, cv)
	m.Store.Bind(args.Target, t)
	log.Trace().Str("variable", args.Target).Str("type", t.String()).Str("value", FormatValue(cv)).Msg("  CHANGE")
	return nil
}
