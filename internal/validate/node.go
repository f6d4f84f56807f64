package validate

// Node is one value of a parsed JSON payload. The set of implementations is
// closed: ObjectNode, ArrayNode, StringNode, NumberNode, BoolNode, NullNode.
type Node interface {
	Accept(v Visitor) Node
}

// Visitor rebuilds or inspects a tree one node kind at a time. Returning the
// argument unchanged is the identity transform.
type Visitor interface {
	VisitObject(*ObjectNode) Node
	VisitArray(*ArrayNode) Node
	VisitString(StringNode) Node
	VisitNumber(NumberNode) Node
	VisitBool(BoolNode) Node
	VisitNull(NullNode) Node
}

// Member is one key of an object, in document order.
type Member struct {
	Key   string
	Value Node
}

type ObjectNode struct {
	Members []Member
}

type ArrayNode struct {
	Items []Node
}

// NumberNode keeps the literal as it arrived so re-encoding never changes
// it. Raw is empty for numbers built in code.
type NumberNode struct {
	Value float64
	Raw   string
}

type (
	StringNode string
	BoolNode   bool
	NullNode   struct{}
)

func (n *ObjectNode) Accept(v Visitor) Node { return v.VisitObject(n) }
func (n *ArrayNode) Accept(v Visitor) Node  { return v.VisitArray(n) }
func (n StringNode) Accept(v Visitor) Node  { return v.VisitString(n) }
func (n NumberNode) Accept(v Visitor) Node  { return v.VisitNumber(n) }
func (n BoolNode) Accept(v Visitor) Node    { return v.VisitBool(n) }
func (n NullNode) Accept(v Visitor) Node    { return v.VisitNull(n) }

// Get returns the value stored under key.
func (n *ObjectNode) Get(key string) (Node, bool) {
	for _, m := range n.Members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// set keeps the first position of a repeated key and the last value.
func (n *ObjectNode) set(key string, v Node) {
	for i := range n.Members {
		if n.Members[i].Key == key {
			n.Members[i].Value = v
			return
		}
	}
	n.Members = append(n.Members, Member{Key: key, Value: v})
}

// kindName is used in type mismatch messages.
func kindName(n Node) string {
	switch n.(type) {
	case *ObjectNode:
		return "object"
	case *ArrayNode:
		return "array"
	case StringNode:
		return "string"
	case NumberNode:
		return "number"
	case BoolNode:
		return "boolean"
	case NullNode:
		return "null"
	default:
		return "unknown"
	}
}
