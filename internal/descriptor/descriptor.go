// Package descriptor defines the invocation request consumed from the
// workflow framework: the logical tool image, the argument tokens, and the
// declared output templates.
package descriptor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Invocation describes one tool run. It is immutable for the duration of
// the run.
type Invocation struct {
	Tool    string                 `yaml:"tool"`
	Image   string                 `yaml:"image"`
	Args    []Arg                  `yaml:"args"`
	WorkDir string                 `yaml:"workdir,omitempty"`
	Params  map[string]interface{} `yaml:"params,omitempty"`
	Outputs []Output               `yaml:"outputs,omitempty"`
}

// Arg is one argument token. A plain scalar is passed through verbatim; a
// token with File set names a host path that must be mounted and rewritten;
// a token with OutputRef set is replaced by the container path of the
// referenced output template.
type Arg struct {
	Value     string
	File      bool
	OutputRef string
}

// UnmarshalYAML accepts either a bare scalar or a one-key mapping of the
// form {file: <host path>} or {output: <output id>}.
func (a *Arg) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&a.Value)
	case yaml.MappingNode:
		var form struct {
			File   string `yaml:"file"`
			Output string `yaml:"output"`
			Value  string `yaml:"value"`
		}
		if err := node.Decode(&form); err != nil {
			return err
		}
		switch {
		case form.File != "":
			a.Value = form.File
			a.File = true
		case form.Output != "":
			a.OutputRef = form.Output
		default:
			a.Value = form.Value
		}
		return nil
	}
	return fmt.Errorf("descriptor: argument must be a scalar or mapping (line %d)", node.Line)
}

// Output declares one expected output path template, relative to the
// invocation's scratch directory. Path may embed $(...) or ${...}
// expressions evaluated against the descriptor params.
type Output struct {
	ID       string `yaml:"id"`
	Path     string `yaml:"path"`
	Optional bool   `yaml:"optional,omitempty"`
}

// Parse decodes a descriptor from YAML (or JSON, which YAML subsumes).
func Parse(data []byte) (*Invocation, error) {
	var inv Invocation
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("descriptor: %w", err)
	}
	return &inv, nil
}

// Load reads and parses a descriptor file.
func Load(path string) (*Invocation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Validate checks the descriptor for structural problems before execution.
func (inv *Invocation) Validate() error {
	if inv.Image == "" {
		return fmt.Errorf("descriptor: image is required")
	}
	if len(inv.Args) == 0 {
		return fmt.Errorf("descriptor: empty argument list")
	}
	ids := make(map[string]bool, len(inv.Outputs))
	for _, out := range inv.Outputs {
		if out.ID == "" {
			return fmt.Errorf("descriptor: output without id")
		}
		if ids[out.ID] {
			return fmt.Errorf("descriptor: duplicate output id %q", out.ID)
		}
		ids[out.ID] = true
		if out.Path == "" {
			return fmt.Errorf("descriptor: output %q without path", out.ID)
		}
		if filepath.IsAbs(out.Path) {
			return fmt.Errorf("descriptor: output %q path must be relative", out.ID)
		}
	}
	for _, a := range inv.Args {
		if a.OutputRef != "" && !ids[a.OutputRef] {
			return fmt.Errorf("descriptor: argument references undeclared output %q", a.OutputRef)
		}
		if a.File && strings.TrimSpace(a.Value) == "" {
			return fmt.Errorf("descriptor: file argument without path")
		}
	}
	return nil
}
