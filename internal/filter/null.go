package filter

import "github.com/connectorhost/connectorhost/internal/spi"

// ToRaw converts a parsed AST back into its wire shape, the identity
// translator used by tests to assert a filter round-trips through Parse
// losslessly instead of exercising a real backend dialect.
func ToRaw(node *spi.FilterNode) *Raw {
	if node == nil {
		return nil
	}

	raw := &Raw{Type: string(node.Type)}

	switch node.Type {
	case spi.FilterNodeCmp:
		raw.Op = string(node.Op)
		raw.Path = node.Path
		raw.Value = node.Value
	case spi.FilterNodeAnd, spi.FilterNodeOr:
		raw.Nodes = make([]*Raw, len(node.Nodes))
		for i, child := range node.Nodes {
			raw.Nodes[i] = ToRaw(child)
		}
	case spi.FilterNodeNot:
		raw.Node = ToRaw(node.Node)
	}

	return raw
}
