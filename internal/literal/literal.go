// Package literal parses dictionary and value literals typed on the command
// line or stored in local files.
//
// Input is read as YAML, which covers JSON, YAML flow and block mappings and
// the common Python literal spelling: single-quoted strings, True/False, and
// a plain None, which becomes nil. Python tuples are rejected; write lists
// instead.
package literal

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Error variables for literal parsing.
var (
	ErrEmpty      = errors.New("empty literal")
	ErrNotMapping = errors.New("literal is not a dictionary")
	ErrSyntax     = errors.New("invalid literal")
)

const pythonNone = "None"

// ParseMap parses src as a dictionary. Keys are taken as text.
func ParseMap(src string) (map[string]any, error) {
	node, err := parseNode(src)
	if err != nil {
		return nil, err
	}

	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: got %s", ErrNotMapping, kindName(node.Kind))
	}

	v, err := convert(node, 0, false)
	if err != nil {
		return nil, err
	}

	return v.(map[string]any), nil
}

// ParseValue parses src as any literal: scalar, list or dictionary.
func ParseValue(src string) (any, error) {
	node, err := parseNode(src)
	if err != nil {
		return nil, err
	}

	return convert(node, 0, true)
}

func parseNode(src string) (*yaml.Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, ErrEmpty
	}

	var doc yaml.Node

	err := yaml.Unmarshal([]byte(src), &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, ErrEmpty
	}

	return doc.Content[0], nil
}

// maxDepth bounds alias expansion.
const maxDepth = 64

// tupleLike reports a plain scalar that is a piece of a parenthesized tuple.
// YAML splits "(1, 2)" at the comma inside flow collections, leaving "(1" and
// "2)".
func tupleLike(node *yaml.Node) bool {
	if node.Kind != yaml.ScalarNode || node.Style != 0 {
		return false
	}

	return strings.HasPrefix(node.Value, "(") || strings.HasSuffix(node.Value, ")")
}

// convert turns node into plain Go values. inFlow is set for nodes inside a
// flow collection or at the top of a value literal, where tuple syntax would
// otherwise be taken as text.
func convert(node *yaml.Node, depth int, inFlow bool) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrSyntax, maxDepth)
	}

	switch node.Kind {
	case yaml.AliasNode:
		return convert(node.Alias, depth+1, inFlow)

	case yaml.MappingNode:
		flow := node.Style&yaml.FlowStyle != 0
		out := make(map[string]any, len(node.Content)/2)

		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			if key.Kind == yaml.AliasNode {
				key = key.Alias
			}

			if key.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%w: line %d: dictionary keys must be scalars", ErrSyntax, key.Line)
			}

			if flow && tupleLike(key) {
				return nil, fmt.Errorf("%w: line %d: tuples are not supported, use a list", ErrSyntax, key.Line)
			}

			v, err := convert(node.Content[i+1], depth+1, flow)
			if err != nil {
				return nil, err
			}

			out[key.Value] = v
		}

		return out, nil

	case yaml.SequenceNode:
		flow := node.Style&yaml.FlowStyle != 0
		out := make([]any, 0, len(node.Content))

		for _, item := range node.Content {
			v, err := convert(item, depth+1, flow)
			if err != nil {
				return nil, err
			}

			out = append(out, v)
		}

		return out, nil

	case yaml.ScalarNode:
		if node.Style == 0 && node.Value == pythonNone {
			return nil, nil
		}

		if inFlow && tupleLike(node) {
			return nil, fmt.Errorf("%w: line %d: tuples are not supported, use a list", ErrSyntax, node.Line)
		}

		var v any

		err := node.Decode(&v)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrSyntax, node.Line, err)
		}

		return v, nil

	default:
		return nil, fmt.Errorf("%w: unexpected %s", ErrSyntax, kindName(node.Kind))
	}
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "list"
	case yaml.MappingNode:
		return "dictionary"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
