package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/n0madic/go-llmbridge/internal/errs"
	"github.com/n0madic/go-llmbridge/internal/render"
)

// Step is one chain entry. In YAML it is either a bare name or a mapping
// with name and options.
type Step struct {
	Name    string         `yaml:"name" json:"name"`
	Options map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
}

// UnmarshalYAML accepts "codex" as well as {name: codex, options: {...}}.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		s.Name = strings.TrimSpace(node.Value)
		return nil
	case yaml.MappingNode:
		type plain Step
		var p plain
		if err := node.Decode(&p); err != nil {
			return err
		}
		*s = Step(p)
		s.Name = strings.TrimSpace(s.Name)
		return nil
	}
	return fmt.Errorf("line %d: transformer step must be a name or a mapping", node.Line)
}

// Chain is an ordered list of steps. The first step names the protocol pair.
type Chain []Step

// UnmarshalYAML accepts a single step as shorthand for a one-step chain.
func (c *Chain) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var steps []Step
		if err := node.Decode(&steps); err != nil {
			return err
		}
		*c = steps
		return nil
	}
	var s Step
	if err := node.Decode(&s); err != nil {
		return err
	}
	*c = Chain{s}
	return nil
}

// Name returns the protocol pair name, "" for an empty chain.
func (c Chain) Name() string {
	if len(c) == 0 {
		return ""
	}
	return c[0].Name
}

// StepNames lists step names in order.
func (c Chain) StepNames() []string {
	out := make([]string, len(c))
	for i, s := range c {
		out[i] = s.Name
	}
	return out
}

// TransformerConfig picks a chain per request model.
type TransformerConfig struct {
	Default Chain            `yaml:"default"`
	Models  map[string]Chain `yaml:"models,omitempty"`
}

// OAuth configures client-credentials tokens for a supplier. A token
// obtained this way replaces APIKey as the Authorization credential.
type OAuth struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
	// AuthStyle is "header", "params" or empty to auto-detect.
	AuthStyle string `yaml:"auth_style,omitempty"`
}

// Supplier is one upstream provider.
type Supplier struct {
	Name         string            `yaml:"name"`
	BaseURL      string            `yaml:"base_url"`
	APIKey       string            `yaml:"api_key,omitempty"`
	OAuth        *OAuth            `yaml:"oauth,omitempty"`
	PathPrefixes []string          `yaml:"path_prefixes,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty"`
	// DropHeaderPrefixes replaces the default inbound header drop list when set.
	DropHeaderPrefixes []string `yaml:"drop_header_prefixes,omitempty"`
	// CustomToolCallStrategy is "wrap_object" (default) or "error".
	CustomToolCallStrategy string `yaml:"custom_tool_call_strategy,omitempty"`

	Transformer *TransformerConfig `yaml:"transformer,omitempty"`
	Render      render.Config      `yaml:",inline"`
}

// Suppliers is the parsed supplier file.
type Suppliers struct {
	Default   string     `yaml:"default"`
	Suppliers []Supplier `yaml:"suppliers"`
}

// LoadSuppliers reads, expands and parses a supplier file. known reports
// whether a chain name has a protocol; nil skips chain validation.
func LoadSuppliers(path string, known func(string) bool) (*Suppliers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ConfigurationError{Message: "read supplier file", Err: err}
	}
	return ParseSuppliers(data, known)
}

// ParseSuppliers expands ${VAR} and ${VAR:-default} references and decodes
// the YAML document.
func ParseSuppliers(data []byte, known func(string) bool) (*Suppliers, error) {
	var s Suppliers
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &s); err != nil {
		return nil, &errs.ConfigurationError{Message: "parse supplier file", Err: err}
	}
	if err := s.Validate(known); err != nil {
		return nil, err
	}
	return &s, nil
}

// ExpandEnv replaces ${VAR} and ${VAR:-default}. The default applies when the
// variable is unset or empty.
func ExpandEnv(s string) string {
	return os.Expand(s, func(ref string) string {
		name, def, hasDef := strings.Cut(ref, ":-")
		if v := os.Getenv(name); v != "" || !hasDef {
			return v
		}
		return def
	})
}

// Validate rejects unnamed or duplicate suppliers, a default that names no
// supplier and chains unknown to known.
func (s *Suppliers) Validate(known func(string) bool) error {
	seen := make(map[string]bool, len(s.Suppliers))
	for _, sup := range s.Suppliers {
		if sup.Name == "" {
			return &errs.ConfigurationError{Message: "supplier without name"}
		}
		if seen[sup.Name] {
			return &errs.ConfigurationError{Supplier: sup.Name, Message: "duplicate supplier name"}
		}
		seen[sup.Name] = true
		if o := sup.OAuth; o != nil && (o.TokenURL == "" || o.ClientID == "") {
			return &errs.ConfigurationError{Supplier: sup.Name, Message: "oauth requires token_url and client_id"}
		}
		if sup.Transformer == nil || known == nil {
			continue
		}
		chains := []Chain{sup.Transformer.Default}
		for _, c := range sup.Transformer.Models {
			chains = append(chains, c)
		}
		for _, c := range chains {
			if name := c.Name(); name != "" && !known(name) {
				return &errs.ConfigurationError{Supplier: sup.Name, Chain: name, Err: errs.ErrUnknownChain}
			}
		}
	}
	if s.Default != "" && !seen[s.Default] {
		return &errs.ConfigurationError{Supplier: s.Default, Message: "default supplier is not defined"}
	}
	return nil
}

// Get returns the supplier with the given name.
func (s *Suppliers) Get(name string) (*Supplier, bool) {
	for i := range s.Suppliers {
		if s.Suppliers[i].Name == name {
			return &s.Suppliers[i], true
		}
	}
	return nil, false
}

// Select picks the first supplier whose path prefix matches path, else the
// default supplier, else the first one.
func (s *Suppliers) Select(path string) (*Supplier, bool) {
	for i := range s.Suppliers {
		for _, p := range s.Suppliers[i].PathPrefixes {
			if p != "" && strings.HasPrefix(path, p) {
				return &s.Suppliers[i], true
			}
		}
	}
	if s.Default != "" {
		return s.Get(s.Default)
	}
	if len(s.Suppliers) > 0 {
		return &s.Suppliers[0], true
	}
	return nil, false
}

// ChainFor returns the chain for model and whether it came from a model override.
// ok is false when the supplier has no transformer configured.
func (sup *Supplier) ChainFor(model string) (chain Chain, override bool, ok bool) {
	if sup == nil || sup.Transformer == nil {
		return nil, false, false
	}
	if c, found := sup.Transformer.Models[model]; found && len(c) > 0 {
		return c, true, true
	}
	if len(sup.Transformer.Default) == 0 {
		return nil, false, false
	}
	return sup.Transformer.Default, false, true
}
