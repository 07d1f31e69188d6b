package vm

type Opcode uint32

const (
	NOP Opcode = iota
	IMPORT     // imp A, B        | makes classes A and B callable
	VAR_DECL   // var x [= e]      | declares x, optionally typed and initialized
	VAR_ASSIGN // x = e            | stores e into an existing or free variable
	LOOP_START // loop(e)          | pushes a loop context or skips to END_BLOCK+1
	END_BLOCK  //                  | jumps back to the loop body or pops the context
	CALL       // [x =] C.m(args)  | evaluates an expression statement
	GIVE       // give(T)(a, b)    | hands variable values to the host
	DO         // do(C)(m)(args)   | host method, field or external program
	CHANGE     // change x::t = y  | converts and rebinds a static type

	LABEL
	OpcodeMax
)

func (o Opcode) String() string {
	switch o {
	case NOP:
		return "NOP"
	case IMPORT:
		return "IMPORT"
	case VAR_DECL:
		return "VAR_DECL"
	case VAR_ASSIGN:
		return "VAR_ASSIGN"
	case LOOP_START:
		return "LOOP_START"
	case END_BLOCK:
		return "END_BLOCK"
	case CALL:
		return "CALL"
	case GIVE:
		return "GIVE"
	case DO:
		return "DO"
	case CHANGE:
		return "CHANGE"
	case LABEL:
		return "LABEL"
	}
	panic("Unnamed opcode")
}
