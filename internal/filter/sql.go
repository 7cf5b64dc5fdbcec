package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/connectorhost/connectorhost/internal/spi"
	cherrors "github.com/connectorhost/connectorhost/pkg/errors"
)

var sqlColumnPattern = regexp.MustCompile(`^"[A-Za-z0-9_]+"$`)

var sqlOps = map[spi.FilterOp]string{
	spi.FilterEQ:  "=",
	spi.FilterGT:  ">",
	spi.FilterGTE: ">=",
	spi.FilterLT:  "<",
	spi.FilterLTE: "<=",
}

var sqlLikeOps = map[spi.FilterOp]struct {
	prefix string
	suffix string
}{
	spi.FilterContains:   {prefix: "%", suffix: "%"},
	spi.FilterStartsWith: {prefix: "", suffix: "%"},
	spi.FilterEndsWith:   {prefix: "%", suffix: ""},
}

// SQLResult is the output of the SQL translator: the fragment, its
// positional parameters in order, and the next free placeholder index for
// a caller chaining multiple translations into one statement.
type SQLResult struct {
	SQL        string
	Params     []interface{}
	NextIndex  int
}

// ToSQL translates a validated Filter AST into a parameterized SQL
// fragment. columns maps a dotted path to a quoted column identifier
// matching /^"[A-Za-z0-9_]+"$/; startIndex is the first placeholder number
// to use ($N, 1-based as is PostgreSQL convention).
func ToSQL(node *spi.FilterNode, columns map[string]string, startIndex int) (*SQLResult, error) {
	if node == nil {
		return nil, cherrors.New(cherrors.ErrorTypeValidationFailed, "filter is required")
	}
	tr := &sqlTranslator{columns: columns, index: startIndex}
	sql, err := tr.translate(node)
	if err != nil {
		return nil, err
	}
	return &SQLResult{SQL: sql, Params: tr.params, NextIndex: tr.index}, nil
}

type sqlTranslator struct {
	columns map[string]string
	index   int
	params  []interface{}
}

func (t *sqlTranslator) nextPlaceholder(v interface{}) string {
	ph := fmt.Sprintf("$%d", t.index)
	t.index++
	t.params = append(t.params, v)
	return ph
}

func (t *sqlTranslator) translate(node *spi.FilterNode) (string, error) {
	switch node.Type {
	case spi.FilterNodeCmp:
		return t.translateCmp(node)
	case spi.FilterNodeAnd:
		return t.translateBoolean(node.Nodes, "AND")
	case spi.FilterNodeOr:
		return t.translateBoolean(node.Nodes, "OR")
	case spi.FilterNodeNot:
		inner, err := t.translate(node.Node)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(NOT %s)", inner), nil
	default:
		return "", cherrors.Newf(cherrors.ErrorTypeValidationFailed, "unsupported node type %q", node.Type)
	}
}

func (t *sqlTranslator) translateBoolean(nodes []*spi.FilterNode, joiner string) (string, error) {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		part, err := t.translate(n)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return "(" + strings.Join(parts, " "+joiner+" ") + ")", nil
}

func (t *sqlTranslator) translateCmp(node *spi.FilterNode) (string, error) {
	path := strings.Join(node.Path, ".")
	column, ok := t.columns[path]
	if !ok {
		return "", cherrors.Newf(cherrors.ErrorTypeValidationFailed, "path %q is not allow-listed", path)
	}
	if !sqlColumnPattern.MatchString(column) {
		return "", cherrors.Newf(cherrors.ErrorTypeValidationFailed, "column %q for path %q fails the identifier safety check", column, path)
	}

	if node.Op == spi.FilterExists {
		return fmt.Sprintf("%s IS NOT NULL", column), nil
	}

	if like, ok := sqlLikeOps[node.Op]; ok {
		s, _ := node.Value.(string)
		ph := t.nextPlaceholder(like.prefix + s + like.suffix)
		return fmt.Sprintf("%s LIKE %s", column, ph), nil
	}

	if node.Op == spi.FilterIN {
		values, _ := node.Value.([]interface{})
		ph := t.nextPlaceholder(values)
		return fmt.Sprintf("%s = ANY(array[%s])", column, ph), nil
	}

	op, ok := sqlOps[node.Op]
	if !ok {
		return "", cherrors.Newf(cherrors.ErrorTypeValidationFailed, "operator %q has no SQL equivalent", node.Op)
	}
	ph := t.nextPlaceholder(node.Value)
	return fmt.Sprintf("%s %s %s", column, op, ph), nil
}
