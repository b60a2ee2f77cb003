package conf

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// YAML tags recognized on load. They only exist in source documents and
// never survive a merge.
const (
	tagOverride = "!Override"
	tagDelete   = "!Del"
	tagMerge    = "!!merge"
)

// Format is a configuration file encoding.
type Format int

const (
	FormatYAML Format = iota
	FormatTOML
)

var extensions = map[string]Format{
	".yml":  FormatYAML,
	".yaml": FormatYAML,
	".toml": FormatTOML,
}

// FormatOf returns the format implied by the extension of path.
func FormatOf(path string) (Format, bool) {
	f, ok := extensions[filepath.Ext(path)]
	return f, ok
}

// Decode parses a document of the given format. The top level must be a
// mapping (or an !Override mapping); an empty document is an empty mapping.
func Decode(format Format, data []byte) (Value, error) {
	if format == FormatTOML {
		return DecodeTOML(data)
	}
	return DecodeYAML(data)
}

// Encode serializes v, which must not contain deletion markers.
func Encode(format Format, v Value) ([]byte, error) {
	if format == FormatTOML {
		return EncodeTOML(v)
	}
	return EncodeYAML(v)
}

// DecodeYAML parses a YAML document into a mapping value.
func DecodeYAML(data []byte) (Value, error) {
	v, err := DecodeYAMLValue(data)
	if err != nil {
		return Value{}, err
	}
	switch {
	case v.IsMapping():
		return v, nil
	case v.kind == KindScalar && v.scalar == nil:
		return Map(nil), nil
	default:
		return Value{}, fmt.Errorf("%w: top level is a %s", ErrInvalidDocument, v.kind)
	}
}

// DecodeYAMLValue parses a YAML document of any shape, for example a single
// scalar given on the command line.
func DecodeYAMLValue(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Value{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(doc.Content) == 0 {
		return Null(), nil
	}
	return newDecoder().node(doc.Content[0])
}

const (
	aliasRatioRangeLow  = 400000
	aliasRatioRangeHigh = 4000000
	aliasRatioRange     = float64(aliasRatioRangeHigh - aliasRatioRangeLow)
)

// allowedAliasRatio returns the largest share of decoded nodes that may come
// from alias expansion. Small documents may consist almost entirely of
// aliases; large ones may not.
func allowedAliasRatio(decodeCount int) float64 {
	switch {
	case decodeCount <= aliasRatioRangeLow:
		return 0.99
	case decodeCount >= aliasRatioRangeHigh:
		return 0.10
	default:
		return 0.99 - 0.89*(float64(decodeCount-aliasRatioRangeLow)/aliasRatioRange)
	}
}

// decoder walks a yaml.Node tree. It tracks the aliases being expanded so
// that self-referencing anchors and exponential alias expansion fail
// instead of recursing forever.
type decoder struct {
	aliases     map[*yaml.Node]bool
	decodeCount int
	aliasCount  int
	aliasDepth  int
}

func newDecoder() *decoder {
	return &decoder{aliases: make(map[*yaml.Node]bool)}
}

func (d *decoder) node(n *yaml.Node) (Value, error) {
	d.decodeCount++
	if d.aliasDepth > 0 {
		d.aliasCount++
	}
	if d.aliasCount > 100 && d.decodeCount > 1000 && float64(d.aliasCount)/float64(d.decodeCount) > allowedAliasRatio(d.decodeCount) {
		return Value{}, fmt.Errorf("%w: document contains excessive aliasing", ErrInvalidDocument)
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return d.node(n.Content[0])
	case yaml.AliasNode:
		return d.alias(n)
	case yaml.MappingNode:
		if err := checkTag(n, tagOverride); err != nil {
			return Value{}, err
		}
		m, err := d.mapping(n)
		if err != nil {
			return Value{}, err
		}
		if n.Tag == tagOverride {
			return Override(m), nil
		}
		return Map(m), nil
	case yaml.SequenceNode:
		if err := checkTag(n); err != nil {
			return Value{}, err
		}
		items := make([]Value, 0, len(n.Content))
		for _, child := range n.Content {
			item, err := d.node(child)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Seq(items...), nil
	case yaml.ScalarNode:
		if n.Tag == tagDelete {
			if n.Value != "" {
				return Value{}, fmt.Errorf("%w: line %d: !Del takes no value, got %q", ErrMalformedMarker, n.Line, n.Value)
			}
			return Delete(), nil
		}
		if err := checkTag(n); err != nil {
			return Value{}, err
		}
		var x any
		if err := n.Decode(&x); err != nil {
			return Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Scalar(x), nil
	default:
		return Value{}, fmt.Errorf("line %d: unexpected YAML node kind %d", n.Line, n.Kind)
	}
}

func (d *decoder) alias(n *yaml.Node) (Value, error) {
	if d.aliases[n] {
		return Value{}, fmt.Errorf("%w: line %d: anchor %q value contains itself", ErrInvalidDocument, n.Line, n.Value)
	}
	d.aliases[n] = true
	d.aliasDepth++
	v, err := d.node(n.Alias)
	d.aliasDepth--
	delete(d.aliases, n)
	return v, err
}

// checkTag rejects local tags on n other than those in allowed.
func checkTag(n *yaml.Node, allowed ...string) error {
	if !strings.HasPrefix(n.Tag, "!") || strings.HasPrefix(n.Tag, "!!") {
		return nil
	}
	for _, tag := range allowed {
		if n.Tag == tag {
			return nil
		}
	}
	if n.Tag == tagOverride || n.Tag == tagDelete {
		return fmt.Errorf("%w: line %d: %s is not allowed here", ErrMalformedMarker, n.Line, n.Tag)
	}
	return fmt.Errorf("%w: line %d: %s", ErrUnsupportedTag, n.Line, n.Tag)
}

// mapping builds a mapping from n. Keys pulled in through the << merge
// key come first; keys written in n itself take precedence over them.
func (d *decoder) mapping(n *yaml.Node) (*Mapping, error) {
	merged := NewMapping()
	own := NewMapping()
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valueNode := n.Content[i], n.Content[i+1]
		if keyNode.Kind == yaml.AliasNode {
			keyNode = keyNode.Alias
		}
		if keyNode.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: line %d: mapping keys must be scalars", ErrInvalidDocument, keyNode.Line)
		}
		if keyNode.ShortTag() == tagMerge {
			if err := d.mergeKeys(merged, valueNode); err != nil {
				return nil, err
			}
			continue
		}
		value, err := d.node(valueNode)
		if err != nil {
			return nil, err
		}
		own.Set(keyNode.Value, value)
	}
	for _, k := range own.keys {
		merged.Set(k, own.values[k])
	}
	return merged, nil
}

// mergeKeys copies keys of the mapping(s) referenced by a << value into dst.
// Earlier sources win over later ones.
func (d *decoder) mergeKeys(dst *Mapping, n *yaml.Node) error {
	sources := []*yaml.Node{n}
	if n.Kind == yaml.SequenceNode {
		sources = n.Content
	}
	for _, src := range sources {
		v, err := d.node(src)
		if err != nil {
			return err
		}
		if !v.IsMapping() {
			return fmt.Errorf("%w: line %d: << expects a mapping", ErrInvalidDocument, src.Line)
		}
		for _, k := range v.m.keys {
			if _, ok := dst.Get(k); !ok {
				dst.Set(k, v.m.values[k])
			}
		}
	}
	return nil
}

// EncodeYAML serializes v as YAML, keeping mapping key order.
func EncodeYAML(v Value) ([]byte, error) {
	node, err := encodeNode(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeNode(v Value) (*yaml.Node, error) {
	switch v.kind {
	case KindMapping, KindOverride:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range v.m.keys {
			child, err := encodeNode(v.m.values[k])
			if err != nil {
				return nil, err
			}
			key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
			n.Content = append(n.Content, key, child)
		}
		return n, nil
	case KindSequence:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.items {
			child, err := encodeNode(item)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
		return n, nil
	case KindDelete:
		return nil, fmt.Errorf("%w: unresolved deletion marker", ErrMalformedMarker)
	default:
		n := &yaml.Node{}
		if err := n.Encode(v.scalar); err != nil {
			return nil, fmt.Errorf("failed to encode %v: %w", v.scalar, err)
		}
		return n, nil
	}
}

// DecodeTOML parses a TOML document. TOML has no tags, so the only deletion
// trigger available is LegacyDeleteSentinel. Table keys are sorted.
func DecodeTOML(data []byte) (Value, error) {
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return Value{}, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return ValueOf(raw), nil
}

// EncodeTOML serializes a mapping value as TOML. TOML cannot express null,
// so null values are left out.
func EncodeTOML(v Value) ([]byte, error) {
	if !v.IsMapping() {
		return nil, fmt.Errorf("%w: top level is a %s", ErrInvalidDocument, v.kind)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(withoutNulls(Resolve(v)).Interface()); err != nil {
		return nil, fmt.Errorf("failed to encode TOML: %w", err)
	}
	return buf.Bytes(), nil
}

func withoutNulls(v Value) Value {
	isNull := func(v Value) bool { return v.kind == KindScalar && v.scalar == nil }
	switch v.kind {
	case KindMapping:
		out := NewMapping()
		for _, k := range v.m.keys {
			if child := v.m.values[k]; !isNull(child) {
				out.Set(k, withoutNulls(child))
			}
		}
		return Map(out)
	case KindSequence:
		items := make([]Value, 0, len(v.items))
		for _, item := range v.items {
			if !isNull(item) {
				items = append(items, withoutNulls(item))
			}
		}
		return Seq(items...)
	default:
		return v
	}
}
