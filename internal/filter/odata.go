package filter

import (
	"fmt"
	"strings"

	"github.com/connectorhost/connectorhost/internal/spi"
	cherrors "github.com/connectorhost/connectorhost/pkg/errors"
)

var odataOps = map[spi.FilterOp]string{
	spi.FilterEQ:  "eq",
	spi.FilterGT:  "gt",
	spi.FilterGTE: "ge",
	spi.FilterLT:  "lt",
	spi.FilterLTE: "le",
}

var odataFuncs = map[spi.FilterOp]string{
	spi.FilterContains:   "contains",
	spi.FilterStartsWith: "startswith",
	spi.FilterEndsWith:   "endswith",
}

// ToODataString translates a validated Filter AST into an OData-style
// query string, restricted to the given allow-list of paths. Only
// single-segment paths are translated; a nested path fails. A nil
// allow-list permits every single-segment path.
func ToODataString(node *spi.FilterNode, allowedPaths map[string]struct{}) (string, error) {
	if node == nil {
		return "", cherrors.New(cherrors.ErrorTypeValidationFailed, "filter is required")
	}
	return translateOData(node, allowedPaths)
}

func translateOData(node *spi.FilterNode, allowed map[string]struct{}) (string, error) {
	switch node.Type {
	case spi.FilterNodeCmp:
		return translateODataCmp(node, allowed)
	case spi.FilterNodeAnd:
		return translateODataBoolean(node.Nodes, "and", allowed)
	case spi.FilterNodeOr:
		return translateODataBoolean(node.Nodes, "or", allowed)
	case spi.FilterNodeNot:
		inner, err := translateOData(node.Node, allowed)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(not %s)", inner), nil
	default:
		return "", cherrors.Newf(cherrors.ErrorTypeValidationFailed, "unsupported node type %q", node.Type)
	}
}

func translateODataBoolean(nodes []*spi.FilterNode, joiner string, allowed map[string]struct{}) (string, error) {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		part, err := translateOData(n, allowed)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return "(" + strings.Join(parts, " "+joiner+" ") + ")", nil
}

func translateODataCmp(node *spi.FilterNode, allowed map[string]struct{}) (string, error) {
	field := strings.Join(node.Path, ".")
	if len(node.Path) > 1 {
		return "", cherrors.Newf(cherrors.ErrorTypeValidationFailed, "nested path %q not supported by query-string translator", field)
	}
	if allowed != nil {
		if _, ok := allowed[field]; !ok {
			return "", cherrors.Newf(cherrors.ErrorTypeValidationFailed, "path %q is not allow-listed", field)
		}
	}

	if fn, ok := odataFuncs[node.Op]; ok {
		return fmt.Sprintf("%s(%s, %s)", fn, field, odataLiteral(node.Value)), nil
	}

	if node.Op == spi.FilterExists {
		return fmt.Sprintf("(%s ne null)", field), nil
	}

	if node.Op == spi.FilterIN {
		values, _ := node.Value.([]interface{})
		parts := make([]string, 0, len(values))
		for _, v := range values {
			parts = append(parts, fmt.Sprintf("%s eq %s", field, odataLiteral(v)))
		}
		return "(" + strings.Join(parts, " or ") + ")", nil
	}

	op, ok := odataOps[node.Op]
	if !ok {
		return "", cherrors.Newf(cherrors.ErrorTypeValidationFailed, "operator %q has no OData equivalent", node.Op)
	}
	return fmt.Sprintf("%s %s %s", field, op, odataLiteral(node.Value)), nil
}

// odataLiteral renders a primitive value as an OData literal. Strings are
// single-quoted with embedded single quotes doubled, per OData escaping
// rules; this is the only place user-supplied string data enters the
// output.
func odataLiteral(v interface{}) string {
	switch val := v.(type) {
	case string:
		escaped := strings.ReplaceAll(val, "'", "''")
		return "'" + escaped + "'"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case nil:
		return "null"
	case float64:
		return trimFloat(val)
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
