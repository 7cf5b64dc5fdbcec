package spi

// FilterOp enumerates the comparison operators a CMP node may carry.
type FilterOp string

const (
	FilterEQ         FilterOp = "EQ"
	FilterContains   FilterOp = "CONTAINS"
	FilterStartsWith FilterOp = "STARTS_WITH"
	FilterEndsWith   FilterOp = "ENDS_WITH"
	FilterGT         FilterOp = "GT"
	FilterGTE        FilterOp = "GTE"
	FilterLT         FilterOp = "LT"
	FilterLTE        FilterOp = "LTE"
	FilterIN         FilterOp = "IN"
	FilterExists     FilterOp = "EXISTS"
)

// FilterNodeType tags the variant a FilterNode holds.
type FilterNodeType string

const (
	FilterNodeCmp FilterNodeType = "CMP"
	FilterNodeAnd FilterNodeType = "AND"
	FilterNodeOr  FilterNodeType = "OR"
	FilterNodeNot FilterNodeType = "NOT"
)

// FilterNode is a node in the validated filter AST. Exactly one of the
// variant-specific fields is populated according to Type: Op/Path/Value
// for CMP, Nodes for AND/OR, Node for NOT.
type FilterNode struct {
	Type  FilterNodeType
	Op    FilterOp
	Path  []string
	Value interface{}
	Nodes []*FilterNode
	Node  *FilterNode
}
