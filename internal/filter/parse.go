// Package filter implements the search predicate AST: parsing an untrusted
// payload into a validated tree, and translating that tree into backend
// query dialects (an OData-style query string, or parameterized SQL).
package filter

import (
	"fmt"

	"github.com/connectorhost/connectorhost/internal/spi"
	cherrors "github.com/connectorhost/connectorhost/pkg/errors"
)

const (
	maxPathSegments  = 8
	maxPathSegLen    = 128
	maxInValues      = 100
	maxBooleanNodes  = 50
	maxTreeDepth     = 50
)

// Raw is the loosely-typed shape a Filter AST arrives in over the wire,
// mirroring encoding/json's default decoding of an arbitrary payload.
type Raw struct {
	Type  string        `json:"type"`
	Op    string        `json:"op,omitempty"`
	Path  []string      `json:"path,omitempty"`
	Value interface{}   `json:"value,omitempty"`
	Nodes []*Raw        `json:"nodes,omitempty"`
	Node  *Raw          `json:"node,omitempty"`
}

// Parse validates raw against the filter grammar and returns the AST, or a
// ValidationFailed error naming the first violation found.
func Parse(raw *Raw) (*spi.FilterNode, error) {
	if raw == nil {
		return nil, cherrors.New(cherrors.ErrorTypeValidationFailed, "filter is required")
	}
	return parseNode(raw, 0)
}

func parseNode(raw *Raw, depth int) (*spi.FilterNode, error) {
	if depth > maxTreeDepth {
		return nil, cherrors.New(cherrors.ErrorTypeValidationFailed, "filter tree exceeds maximum depth")
	}

	switch spi.FilterNodeType(raw.Type) {
	case spi.FilterNodeCmp:
		return parseCmp(raw)
	case spi.FilterNodeAnd, spi.FilterNodeOr:
		return parseBoolean(raw, depth)
	case spi.FilterNodeNot:
		return parseNot(raw, depth)
	default:
		return nil, cherrors.Newf(cherrors.ErrorTypeValidationFailed, "unknown filter node type %q", raw.Type)
	}
}

func parseCmp(raw *Raw) (*spi.FilterNode, error) {
	op := spi.FilterOp(raw.Op)
	switch op {
	case spi.FilterEQ, spi.FilterContains, spi.FilterStartsWith, spi.FilterEndsWith,
		spi.FilterGT, spi.FilterGTE, spi.FilterLT, spi.FilterLTE, spi.FilterIN, spi.FilterExists:
	default:
		return nil, cherrors.Newf(cherrors.ErrorTypeValidationFailed, "unknown comparison operator %q", raw.Op)
	}

	if err := validatePath(raw.Path); err != nil {
		return nil, err
	}

	if op == spi.FilterExists {
		if raw.Value != nil {
			return nil, cherrors.New(cherrors.ErrorTypeValidationFailed, "EXISTS must not carry a value")
		}
	} else if op == spi.FilterIN {
		values, ok := raw.Value.([]interface{})
		if !ok {
			return nil, cherrors.New(cherrors.ErrorTypeValidationFailed, "IN requires an array value")
		}
		if len(values) < 1 || len(values) > maxInValues {
			return nil, cherrors.Newf(cherrors.ErrorTypeValidationFailed, "IN array must have 1..%d values", maxInValues)
		}
		for _, v := range values {
			if !isPrimitive(v) {
				return nil, cherrors.New(cherrors.ErrorTypeValidationFailed, "IN array must contain only primitives")
			}
		}
	} else {
		if raw.Value == nil {
			return nil, cherrors.Newf(cherrors.ErrorTypeValidationFailed, "%s requires a value", op)
		}
		if !isPrimitive(raw.Value) {
			return nil, cherrors.Newf(cherrors.ErrorTypeValidationFailed, "%s value must be a primitive", op)
		}
	}

	return &spi.FilterNode{Type: spi.FilterNodeCmp, Op: op, Path: raw.Path, Value: raw.Value}, nil
}

func parseBoolean(raw *Raw, depth int) (*spi.FilterNode, error) {
	if len(raw.Nodes) < 1 || len(raw.Nodes) > maxBooleanNodes {
		return nil, cherrors.Newf(cherrors.ErrorTypeValidationFailed, "%s requires 1..%d child nodes", raw.Type, maxBooleanNodes)
	}

	children := make([]*spi.FilterNode, 0, len(raw.Nodes))
	for _, child := range raw.Nodes {
		parsed, err := parseNode(child, depth+1)
		if err != nil {
			return nil, err
		}
		children = append(children, parsed)
	}

	return &spi.FilterNode{Type: spi.FilterNodeType(raw.Type), Nodes: children}, nil
}

func parseNot(raw *Raw, depth int) (*spi.FilterNode, error) {
	if raw.Node == nil {
		return nil, cherrors.New(cherrors.ErrorTypeValidationFailed, "NOT requires a node")
	}
	child, err := parseNode(raw.Node, depth+1)
	if err != nil {
		return nil, err
	}
	return &spi.FilterNode{Type: spi.FilterNodeNot, Node: child}, nil
}

func validatePath(path []string) error {
	if len(path) < 1 || len(path) > maxPathSegments {
		return cherrors.Newf(cherrors.ErrorTypeValidationFailed, "path must have 1..%d segments", maxPathSegments)
	}
	for _, seg := range path {
		if seg == "" || len(seg) > maxPathSegLen {
			return cherrors.New(cherrors.ErrorTypeValidationFailed, "path segment must be 1.."+fmt.Sprint(maxPathSegLen)+" chars")
		}
	}
	return nil
}

func isPrimitive(v interface{}) bool {
	switch v.(type) {
	case string, bool, nil, float64, int, int64:
		return true
	default:
		return false
	}
}
