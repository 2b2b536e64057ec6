// Package audit records field provenance for a single transformation: which
// inbound paths were read, which upstream paths were written, which values were
// defaulted and why, and free-form flags raised along the way.
package audit

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// Default sources.
const (
	SourceLiteral            = "literal"
	SourceTemplate           = "template"
	SourceInferred           = "inferred"
	SourceSpecialHandling    = "special_handling"
	SourceSpecialInstruction = "special_instruction"
)

// Diff operations.
const (
	OpAdd     = "add"
	OpRemove  = "remove"
	OpReplace = "replace"
)

// MaxPreviewLen bounds ValuePreview and OldValue renderings in diffs.
const MaxPreviewLen = 200

// Defaulted explains a target field whose value did not come from the source.
type Defaulted struct {
	Path   string `json:"path"`
	Source string `json:"source"`
	Reason string `json:"reason"`
	Value  any    `json:"value,omitempty"`
}

// Diff is a JSON Patch style note about a value that changed shape on the way through.
type Diff struct {
	Op           string `json:"op"`
	Path         string `json:"path"`
	ValuePreview string `json:"valuePreview,omitempty"`
	OldValue     string `json:"oldValue,omitempty"`
}

// FieldAudit is the immutable snapshot handed back to callers.
type FieldAudit struct {
	SourcePaths                []string       `json:"sourcePaths"`
	TargetPaths                []string       `json:"targetPaths"`
	ExtraTargetPaths           []string       `json:"extraTargetPaths"`
	MissingRequiredTargetPaths []string       `json:"missingRequiredTargetPaths"`
	UnmappedSourcePaths        []string       `json:"unmappedSourcePaths"`
	Defaulted                  []Defaulted    `json:"defaulted"`
	Diffs                      []Diff         `json:"diffs"`
	Metadata                   map[string]any `json:"metadata"`
}

// Collector accumulates audit evidence for one call. The zero value is not
// usable; create one with New.
type Collector struct {
	mu sync.Mutex

	source          pathSet
	target          pathSet
	extra           pathSet
	missingRequired pathSet
	unmapped        []string
	defaulted       []Defaulted
	diffs           []Diff
	metadata        map[string]any
}

// New creates an empty collector.
func New() *Collector {
	return &Collector{
		source:          newPathSet(),
		target:          newPathSet(),
		extra:           newPathSet(),
		missingRequired: newPathSet(),
		metadata:        map[string]any{},
	}
}

// AddSourcePaths records paths read from the inbound body.
func (c *Collector) AddSourcePaths(paths ...string) {
	c.mu.Lock()
	c.source.add(paths...)
	c.mu.Unlock()
}

// AddTargetPaths records paths written into the upstream body.
func (c *Collector) AddTargetPaths(paths ...string) {
	c.mu.Lock()
	c.target.add(paths...)
	c.mu.Unlock()
}

// AddExtraTargetPaths records target paths that have no source counterpart.
func (c *Collector) AddExtraTargetPaths(paths ...string) {
	c.mu.Lock()
	c.extra.add(paths...)
	c.mu.Unlock()
}

// AddMissingRequiredTargetPaths records required upstream fields that ended up absent.
func (c *Collector) AddMissingRequiredTargetPaths(paths ...string) {
	c.mu.Lock()
	c.missingRequired.add(paths...)
	c.mu.Unlock()
}

// AddDefaulted records a target field filled by template, inference or special handling.
func (c *Collector) AddDefaulted(d Defaulted) {
	c.mu.Lock()
	c.defaulted = append(c.defaulted, d)
	c.mu.Unlock()
}

// AddDiff records a change. Values are rendered as truncated previews.
func (c *Collector) AddDiff(op, path string, value, oldValue any) {
	d := Diff{Op: op, Path: path, ValuePreview: Preview(value)}
	if oldValue != nil {
		d.OldValue = Preview(oldValue)
	}
	c.mu.Lock()
	c.diffs = append(c.diffs, d)
	c.mu.Unlock()
}

// SetMetadata sets a free-form flag.
func (c *Collector) SetMetadata(key string, value any) {
	c.mu.Lock()
	c.metadata[key] = value
	c.mu.Unlock()
}

// Metadata returns a flag and whether it was set.
func (c *Collector) Metadata(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.metadata[key]
	return v, ok
}

// HasMissingRequired reports whether any required target path is missing.
func (c *Collector) HasMissingRequired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.missingRequired.order) > 0
}

// Finalize computes UnmappedSourcePaths: source paths that are not a suffix
// of any target path. It may be called more than once.
func (c *Collector) Finalize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unmapped = c.unmapped[:0]
	for _, p := range c.source.order {
		mapped := false
		for _, t := range c.target.order {
			if strings.HasSuffix(t, p) {
				mapped = true
				break
			}
		}
		if !mapped {
			c.unmapped = append(c.unmapped, p)
		}
	}
	sort.Strings(c.unmapped)
}

// Audit returns a snapshot of everything collected so far.
func (c *Collector) Audit() FieldAudit {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		meta[k] = v
	}
	return FieldAudit{
		SourcePaths:                c.source.list(),
		TargetPaths:                c.target.list(),
		ExtraTargetPaths:           c.extra.list(),
		MissingRequiredTargetPaths: c.missingRequired.list(),
		UnmappedSourcePaths:        append([]string{}, c.unmapped...),
		Defaulted:                  append([]Defaulted{}, c.defaulted...),
		Diffs:                      append([]Diff{}, c.diffs...),
		Metadata:                   meta,
	}
}

// Preview renders v as a compact string capped at MaxPreviewLen runes.
func Preview(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		s = string(b)
	}
	r := []rune(s)
	if len(r) <= MaxPreviewLen {
		return s
	}
	return string(r[:MaxPreviewLen]) + "..."
}

type pathSet struct {
	seen  map[string]struct{}
	order []string
}

func newPathSet() pathSet {
	return pathSet{seen: map[string]struct{}{}}
}

func (s *pathSet) add(paths ...string) {
	for _, p := range paths {
		if _, ok := s.seen[p]; ok {
			continue
		}
		s.seen[p] = struct{}{}
		s.order = append(s.order, p)
	}
}

func (s *pathSet) list() []string {
	return append([]string{}, s.order...)
}
