package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/quillscript/quill/host"
	"github.com/quillscript/quill/rules"
	"github.com/quillscript/quill/vm"
)

// Spec is a run configuration, usually read from a TOML file next to the
// script it runs. Relative paths are resolved against the spec's directory.
type Spec struct {
	Script   ScriptSpec   `toml:"script"`
	Types    TypesSpec    `toml:"types"`
	Limits   LimitsSpec   `toml:"limits"`
	Plugins  PluginsSpec  `toml:"plugins"`
	Give     GiveSpec     `toml:"give"`
	External ExternalSpec `toml:"external"`

	path string
}

type ScriptSpec struct {
	File  string `toml:"file,omitempty"`
	Rules string `toml:"rules,omitempty"`
}

type TypesSpec struct {
	Widening bool `toml:"widening"`
}

type LimitsSpec struct {
	Timeout       time.Duration `toml:"timeout,omitempty"`
	MaxIterations int64         `toml:"max_iterations,omitempty"`
}

type PluginsSpec struct {
	Paths []string `toml:"paths,omitempty"`
}

type GiveSpec struct {
	Encoding string `toml:"encoding,omitempty"`
	Database string `toml:"database,omitempty"`
}

type ExternalSpec struct {
	AllowExec bool     `toml:"allow_exec"`
	Allow     []string `toml:"allow,omitempty"`
}

func parseSpec(f io.Reader) (*Spec, error) {
	var out Spec
	_, err := toml.NewDecoder(f).Decode(&out)
	return &out, err
}

func LoadSpecFromFile(path string) (*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	s, err := parseSpec(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if s.Script.File == "" {
		s.Script.File = strings.TrimSuffix(fi.Name(), filepath.Ext(fi.Name())) + ".quill"
	}
	s.path = path
	s.resolve(filepath.Dir(path))
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// SpecForScript returns the default configuration for running a script
// without a spec file. Plugins are searched for next to the script.
func SpecForScript(path string) *Spec {
	s := &Spec{Script: ScriptSpec{File: filepath.Base(path)}}
	s.Plugins.Paths = []string{"."}
	s.resolve(filepath.Dir(path))
	return s
}

// Load reads a spec file, or builds a default spec when path is a script.
func Load(path string) (*Spec, error) {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return LoadSpecFromFile(path)
	}
	return SpecForScript(path), nil
}

func (s *Spec) resolve(dir string) {
	join := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Clean(filepath.Join(dir, p))
	}
	s.Script.File = join(s.Script.File)
	s.Script.Rules = join(s.Script.Rules)
	s.Give.Database = join(s.Give.Database)
	for i, p := range s.Plugins.Paths {
		s.Plugins.Paths[i] = join(p)
	}
}

func (s *Spec) Validate() error {
	if _, err := host.ParseEncoding(s.Give.Encoding); err != nil {
		return err
	}
	if s.Limits.MaxIterations < 0 {
		return fmt.Errorf("limits.max_iterations must not be negative")
	}
	if s.Limits.Timeout < 0 {
		return fmt.Errorf("limits.timeout must not be negative")
	}
	if len(s.External.Allow) > 0 && !s.External.AllowExec {
		return fmt.Errorf("external.allow is set but external.allow_exec is false")
	}
	return nil
}

// WatchedFiles lists the files whose change should trigger a re-run.
func (s *Spec) WatchedFiles() []string {
	out := []string{s.Script.File}
	if s.path != "" {
		out = append(out, s.path)
	}
	if s.Script.Rules != "" {
		out = append(out, s.Script.Rules)
	}
	return out
}

func (s *Spec) BuildExecutor() (*Executor, error) {
	var opts []vm.CompileOption
	var set *rules.Set
	if s.Script.Rules != "" {
		var err error
		set, err = rules.Load(s.Script.Rules)
		if err != nil {
			return nil, err
		}
		opts = append(opts, vm.WithExpander(set))
	}
	p, err := vm.CompilePath(s.Script.File, opts...)
	if err != nil {
		return nil, err
	}
	exec := &Executor{
		Program: p,
		Spec:    s,
		Rules:   set,
	}
	return exec, nil
}
