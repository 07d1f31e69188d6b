package vm

import (
	"strings"
)

// ScanGroup finds the parenthesis that closes the one at s[open]. Nesting
// depth, quoted strings and backslash escapes are tracked so that
// parentheses inside literals or sub-expressions are handled. It returns the
// text between the parentheses and the index of the closing one.
func ScanGroup(s string, open int) (string, int, bool) {
	if open >= len(s) || s[open] != '(' {
		return "", -1, false
	}
	depth := 0
	inQuote := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inQuote {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[open+1 : i], i, true
			}
		}
	}
	return "", -1, false
}

// scanGroups reads n consecutive parenthesis groups from s, allowing spaces
// between them. Anything left over after the last group is returned as rest.
func scanGroups(s string, n int) ([]string, string, bool) {
	var out []string
	pos := 0
	for range n {
		for pos < len(s) && s[pos] == ' ' {
			pos++
		}
		inner, end, ok := ScanGroup(s, pos)
		if !ok {
			return nil, "", false
		}
		out = append(out, strings.TrimSpace(inner))
		pos = end + 1
	}
	return out, strings.TrimSpace(s[pos:]), true
}

// SplitTopLevel splits s on sep wherever sep is outside quotes and
// parentheses. Parts are trimmed; an all-blank input yields nil.
func SplitTopLevel(s string, sep byte) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	depth := 0
	inQuote := false
	escaped := false
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[last:i]))
				last = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[last:]))
}

// FindAssign returns the index of the first top-level '=' that is not part
// of ==, !=, <= or >=, or -1.
func FindAssign(s string) int {
	depth := 0
	inQuote := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case '(':
			depth++
		case ')':
			depth--
		case '=':
			if depth != 0 {
				continue
			}
			if i > 0 && strings.IndexByte("=!<>", s[i-1]) >= 0 {
				continue
			}
			if i+1 < len(s) && s[i+1] == '=' {
				i++
				continue
			}
			return i
		}
	}
	return -1
}

// findTopLevel returns the index of the last top-level occurrence of sub
// outside quotes and parentheses, or -1.
func findTopLevel(s, sub string) int {
	found := -1
	depth := 0
	inQuote := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case '(':
			depth++
		case ')':
			depth--
		default:
			if depth == 0 && strings.HasPrefix(s[i:], sub) {
				found = i
			}
		}
	}
	return found
}

func hasParens(s string) bool {
	inQuote := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case '(', ')':
			return true
		}
	}
	return false
}

func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// IsReserved reports whether name is a literal keyword that cannot be a variable.
func IsReserved(name string) bool {
	switch name {
	case "true", "false", "null", "var", "imp", "loop", "give", "do", "change":
		return true
	}
	return false
}

// ParseCallShape recognizes an expression that is exactly Class.method(args).
func ParseCallShape(expr string) (class, method string, args []string, ok bool) {
	expr = strings.TrimSpace(expr)
	open := strings.IndexByte(expr, '(')
	if open <= 0 {
		return "", "", nil, false
	}
	head := strings.TrimSpace(expr[:open])
	dot := strings.IndexByte(head, '.')
	if dot <= 0 {
		return "", "", nil, false
	}
	class, method = head[:dot], head[dot+1:]
	if !IsIdentifier(class) || !IsIdentifier(method) {
		return "", "", nil, false
	}
	inner, end, found := ScanGroup(expr, open)
	if !found || end != len(expr)-1 {
		return "", "", nil, false
	}
	return class, method, SplitTopLevel(inner, ','), true
}

// checkExpr rejects expressions with unbalanced parentheses or an
// unterminated string literal or escape.
func checkExpr(expr string, line int) error {
	depth := 0
	inQuote := false
	escaped := false
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if inQuote {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inQuote = false
			}
			continue
		}
		switch c {
		case '"':
			inQuote = true
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return Errorf(SyntaxError, line, "mismatched parentheses in %q", expr)
			}
		}
	}
	switch {
	case escaped:
		return Errorf(SyntaxError, line, "unterminated escape sequence in %q", expr)
	case inQuote:
		return Errorf(SyntaxError, line, "unterminated string literal in %q", expr)
	case depth != 0:
		return Errorf(SyntaxError, line, "mismatched parentheses in %q", expr)
	}
	return nil
}
