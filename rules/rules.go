// Package rules loads user-defined statement keywords. A rule maps a leading
// keyword onto replacement lines that the compiler reads in place of the
// original line.
//
//	rules:
//	  - keyword: twice
//	    expand:
//	      - "loop(2)"
//	      - "  {args}"
//	  - keyword: swap
//	    params: [a, b]
//	    expand:
//	      - "var _swap = {a}"
//	      - "{a} = {b}"
//	      - "{b} = _swap"
//
// {args} is the text after the keyword. {0}, {1}, ... and named params are
// the comma-separated arguments; a rule with params only matches lines with
// exactly that many arguments. Leading spaces in a replacement line indent
// it relative to the original.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/quillscript/quill/vm"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Rule struct {
	Keyword string   `yaml:"keyword"`
	Params  []string `yaml:"params,omitempty"`
	Expand  []string `yaml:"expand"`
}

// Set is a validated collection of rules. It implements vm.Expander.
type Set struct {
	Rules []Rule `yaml:"rules"`

	byKeyword map[string]*Rule
}

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*|[0-9]+)\}`)

var statementKeywords = []string{"imp", "var", "loop", "give", "do", "change"}

func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes rules from YAML. path is only used in error messages.
func Parse(data []byte, path string) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := s.index(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

func (s *Set) index() error {
	s.byKeyword = make(map[string]*Rule, len(s.Rules))
	for i := range s.Rules {
		r := &s.Rules[i]
		if err := r.validate(); err != nil {
			return err
		}
		if _, dup := s.byKeyword[r.Keyword]; dup {
			return fmt.Errorf("keyword %q defined twice", r.Keyword)
		}
		s.byKeyword[r.Keyword] = r
	}
	return nil
}

func (r *Rule) validate() error {
	if !vm.IsIdentifier(r.Keyword) || vm.IsReserved(r.Keyword) {
		return fmt.Errorf("invalid keyword %q", r.Keyword)
	}
	for _, kw := range statementKeywords {
		if r.Keyword == kw {
			return fmt.Errorf("keyword %q shadows a statement", r.Keyword)
		}
	}
	if len(r.Expand) == 0 {
		return fmt.Errorf("rule %q has no expansion", r.Keyword)
	}
	for _, p := range r.Params {
		if !vm.IsIdentifier(p) || p == "args" {
			return fmt.Errorf("rule %q: invalid parameter name %q", r.Keyword, p)
		}
	}
	for _, line := range r.Expand {
		for _, m := range placeholder.FindAllStringSubmatch(line, -1) {
			if !r.knows(m[1]) {
				return fmt.Errorf("rule %q: unknown placeholder %s", r.Keyword, m[0])
			}
		}
	}
	return nil
}

func (r *Rule) knows(name string) bool {
	if name == "args" {
		return true
	}
	if n, err := strconv.Atoi(name); err == nil {
		return len(r.Params) == 0 || n < len(r.Params)
	}
	for _, p := range r.Params {
		if p == name {
			return true
		}
	}
	return false
}

// ExpandIfCustom rewrites line when it starts with a known keyword.
func (s *Set) ExpandIfCustom(line string) ([]string, bool) {
	if s == nil {
		return nil, false
	}
	kw, rest, _ := strings.Cut(line, " ")
	r, ok := s.byKeyword[kw]
	if !ok {
		return nil, false
	}
	rest = strings.TrimSpace(rest)
	args := vm.SplitTopLevel(rest, ',')
	if len(r.Params) > 0 && len(args) != len(r.Params) {
		log.Debug().Str("keyword", kw).Int("want", len(r.Params)).Int("got", len(args)).Msg("rule arity mismatch")
		return nil, false
	}
	out := make([]string, len(r.Expand))
	for i, tmpl := range r.Expand {
		out[i] = placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
			return r.lookup(m[1:len(m)-1], rest, args)
		})
	}
	return out, true
}

func (r *Rule) lookup(name, rest string, args []string) string {
	if name == "args" {
		return rest
	}
	if n, err := strconv.Atoi(name); err == nil {
		if n < len(args) {
			return args[n]
		}
		return ""
	}
	for i, p := range r.Params {
		if p == name {
			return args[i]
		}
	}
	return ""
}

// Keywords lists the rule keywords in file order.
func (s *Set) Keywords() []string {
	out := make([]string, len(s.Rules))
	for i, r := range s.Rules {
		out[i] = r.Keyword
	}
	return out
}
