package interp

import (
	"slices"

	"github.com/quillscript/quill/vm"
	"github.com/rs/zerolog/log"
)

// tiers lists the binary operator groups in folding order. Each tier is
// reduced completely, leftmost operator first, before the next one runs.
var tiers = [][]string{
	{"*", "/", "%"},
	{"+", "-"},
	{">", "<", ">=", "<="},
	{"==", "!="},
	{"&&", "||"},
}

// Evaluate tokenizes and folds expr into a single value.
func Evaluate(expr string, line int, r Resolver) (vm.Value, error) {
	toks, err := Tokenize(expr, line, r)
	if err != nil {
		return nil, err
	}
	return Fold(toks, line)
}

// Fold reduces a token list to one value. Digit concatenation and
// increment/decrement bind first, then the binary tiers in order.
func Fold(toks []Token, line int) (vm.Value, error) {
	toks = slices.Clone(toks)
	for _, t := range toks {
		if t.Kind == DeclToken {
			return nil, vm.Errorf(vm.SyntaxError, line, "declaration %q is only allowed as a give or do argument", t.Decl.String())
		}
	}
	toks, err := foldSteps(toks, line)
	if err != nil {
		return nil, err
	}
	for _, ops := range tiers {
		toks, err = foldTier(toks, ops, line)
		if err != nil {
			return nil, err
		}
	}
	if len(toks) != 1 || toks[0].Kind != ValueToken {
		return nil, vm.Errorf(vm.SyntaxError, line, "malformed expression: %s", tokenText(toks))
	}
	log.Trace().Int("line", line).Str("value", FormatValue(toks[0].Value)).Msg("expression folded")
	return toks[0].Value, nil
}

func isValueAt(toks []Token, i int) bool {
	return i >= 0 && i < len(toks) && toks[i].Kind == ValueToken
}

// foldSteps handles "++" and "--". With a value on both sides "++"
// concatenates digits; with only one neighbour the operator increments or
// decrements it.
func foldSteps(toks []Token, line int) ([]Token, error) {
	for {
		i := slices.IndexFunc(toks, func(t Token) bool {
			return t.Kind == OpToken && (t.Op == "++" || t.Op == "--")
		})
		if i < 0 {
			return toks, nil
		}
		op := toks[i].Op
		left, right := isValueAt(toks, i-1), isValueAt(toks, i+1)
		var (
			v        vm.Value
			err      error
			from, to int
		)
		switch {
		case left && right:
			if op == "--" {
				return nil, vm.Errorf(vm.SyntaxError, line, "operator -- takes a single operand")
			}
			v, err = concatDigits(toks[i-1].Value, toks[i+1].Value, line)
			from, to = i-1, i+2
		case left:
			v, err = stepBy(toks[i-1].Value, op, line)
			from, to = i-1, i+1
		case right:
			v, err = stepBy(toks[i+1].Value, op, line)
			from, to = i, i+2
		default:
			return nil, vm.Errorf(vm.SyntaxError, line, "operator %s has no operand", op)
		}
		if err != nil {
			return nil, err
		}
		toks = slices.Replace(toks, from, to, Token{Kind: ValueToken, Value: v})
	}
}

func foldTier(toks []Token, ops []string, line int) ([]Token, error) {
	for {
		i := slices.IndexFunc(toks, func(t Token) bool {
			return t.Kind == OpToken && slices.Contains(ops, t.Op)
		})
		if i < 0 {
			return toks, nil
		}
		op := toks[i].Op
		if !isValueAt(toks, i-1) || !isValueAt(toks, i+1) {
			return nil, vm.Errorf(vm.SyntaxError, line, "operator %s is missing an operand", op)
		}
		v, err := applyBinary(op, toks[i-1].Value, toks[i+1].Value, line)
		if err != nil {
			return nil, err
		}
		toks = slices.Replace(toks, i-1, i+2, Token{Kind: ValueToken, Value: v})
	}
}

func tokenText(toks []Token) string {
	if len(toks) == 0 {
		return "nothing"
	}
	s := ""
	for i, t := range toks {
		if i > 0 {
			s += " "
		}
		s += t.String()
	}
	return s
}
