package stormconf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format identifies the syntax of a configuration document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatHCL  Format = "hcl"
)

// ErrEmptyDocument is returned for a document with no content. An empty
// document is rejected the same way as a missing one.
var ErrEmptyDocument = errors.New("configuration document is empty")

// FormatError reports a configuration document that is not well-formed or
// whose top level is not a mapping.
type FormatError struct {
	Format Format
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed %s configuration: %v", e.Format, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// FormatFor picks the format from a resource name's extension. JSON is parsed
// as YAML, and unknown extensions default to YAML.
func FormatFor(name string) Format {
	switch strings.ToLower(path.Ext(name)) {
	case ".toml":
		return FormatTOML
	case ".hcl":
		return FormatHCL
	default:
		return FormatYAML
	}
}

// Load parses one configuration document from r.
func Load(r io.Reader, format Format) (*Map, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s configuration: %w", format, err)
	}
	if len(bytes.TrimSpace(src)) == 0 {
		return nil, &FormatError{Format: format, Err: ErrEmptyDocument}
	}

	var m *Map
	switch format {
	case FormatYAML:
		m, err = loadYAML(src)
	case FormatTOML:
		m, err = loadTOML(src)
	case FormatHCL:
		m, err = loadHCL(src)
	default:
		return nil, fmt.Errorf("unsupported configuration format %q", format)
	}
	if err != nil {
		return nil, &FormatError{Format: format, Err: err}
	}
	return m, nil
}

func loadYAML(src []byte) (*Map, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, ErrEmptyDocument
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return nil, ErrEmptyDocument
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: top level must be a mapping", root.Line)
	}

	m := NewMap()
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: mapping keys must be scalars", keyNode.Line)
		}
		var v any
		if err := valNode.Decode(&v); err != nil {
			return nil, fmt.Errorf("key %q: %w", keyNode.Value, err)
		}
		m.Set(keyNode.Value, v)
	}
	return m, nil
}

func loadTOML(src []byte) (*Map, error) {
	var raw map[string]any
	md, err := toml.NewDecoder(bytes.NewReader(src)).Decode(&raw)
	if err != nil {
		return nil, err
	}
	var order []string
	for _, k := range md.Keys() {
		if len(k) == 1 {
			order = append(order, k[0])
		}
	}
	return FromMap(raw, order...), nil
}
