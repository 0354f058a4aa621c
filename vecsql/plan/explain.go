package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Node is one entry of the order-preserving structure Explain renders a plan
// into. A node is either a scalar (Value set), or composite (Items set);
// composite nodes whose children all have empty keys serialize as sequences,
// otherwise as objects with keys in declaration order.
type Node struct {
	Key   string
	Value any
	Items []*Node
}

func scalar(key string, v any) *Node { return &Node{Key: key, Value: v} }

func composite(key string, items ...*Node) *Node { return &Node{Key: key, Items: items} }

// IsSequence reports whether the node's children form a sequence.
func (n *Node) IsSequence() bool {
	if len(n.Items) == 0 {
		return false
	}
	for _, it := range n.Items {
		if it.Key != "" {
			return false
		}
	}
	return true
}

// MarshalJSON serializes the node preserving declaration order.
func (n *Node) MarshalJSON() ([]byte, error) {
	if n.Items == nil {
		return json.Marshal(n.Value)
	}
	var buf bytes.Buffer
	if n.IsSequence() {
		buf.WriteByte('[')
		for i, it := range n.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := it.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	}
	buf.WriteByte('{')
	for i, it := range n.Items {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(it.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		b, err := it.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the direct child with the given key.
func (n *Node) Get(key string) (*Node, bool) {
	for _, it := range n.Items {
		if it.Key == key {
			return it, true
		}
	}
	return nil, false
}

// Explain renders a plan into a nested, order-preserving key/value structure
// suitable for display and golden-file testing. It is a pure function and
// loses no projection, predicate, order, or limit information.
func Explain(p *QueryPlan) *Node {
	root := &Node{Key: "plan"}

	proj := &Node{Key: "projection"}
	for _, item := range p.Projection {
		entry := composite("", scalar("kind", item.Kind.String()))
		if item.Kind == ProjField {
			entry.Items = append(entry.Items, scalar("field", item.Field))
		}
		entry.Items = append(entry.Items, scalar("alias", item.Alias))
		proj.Items = append(proj.Items, entry)
	}
	root.Items = append(root.Items, proj)

	if p.Predicate != nil {
		root.Items = append(root.Items, explainPredicate("predicate", p.Predicate))
	}

	if p.Similarity != nil {
		vec := &Node{Key: "vector"}
		for _, v := range p.Similarity.Vector {
			vec.Items = append(vec.Items, scalar("", v))
		}
		root.Items = append(root.Items, composite("similarity",
			vec,
			scalar("top_k", p.Similarity.TopK),
		))
	}

	if p.Order != nil {
		direction := "asc"
		if p.Order.Descending {
			direction = "desc"
		}
		order := composite("order_by")
		if p.Order.Key == OrderBySimilarity {
			order.Items = append(order.Items, scalar("key", "similarity"))
		} else {
			order.Items = append(order.Items, scalar("key", "field"), scalar("field", p.Order.Field))
		}
		order.Items = append(order.Items, scalar("direction", direction))
		root.Items = append(root.Items, order)
	}

	if p.HasLimit() {
		root.Items = append(root.Items, scalar("limit", p.Limit))
	}
	if p.Offset > 0 {
		root.Items = append(root.Items, scalar("offset", p.Offset))
	}

	if len(p.Targets) > 0 {
		targets := &Node{Key: "targets"}
		for _, t := range p.Targets {
			targets.Items = append(targets.Items, scalar("", t))
		}
		root.Items = append(root.Items, targets)
	} else if p.Namespace != "" {
		root.Items = append(root.Items, scalar("namespace", p.Namespace))
	}

	return root
}

func explainPredicate(key string, pred Predicate) *Node {
	switch p := pred.(type) {
	case And:
		operands := &Node{Key: "operands"}
		for _, child := range p.Children {
			operands.Items = append(operands.Items, explainPredicate("", child))
		}
		return composite(key, scalar("op", "and"), operands)
	case Or:
		operands := &Node{Key: "operands"}
		for _, child := range p.Children {
			operands.Items = append(operands.Items, explainPredicate("", child))
		}
		return composite(key, scalar("op", "or"), operands)
	case Not:
		return composite(key, scalar("op", "not"), explainPredicate("operand", p.Inner))
	case Compare:
		return composite(key,
			scalar("op", p.Op.String()),
			scalar("field", p.Field),
			scalar("value", p.Value),
		)
	case In:
		values := &Node{Key: "values"}
		for _, v := range p.Values {
			values.Items = append(values.Items, scalar("", v))
		}
		return composite(key, scalar("op", "in"), scalar("field", p.Field), values)
	default:
		return scalar(key, fmt.Sprintf("unknown predicate %T", pred))
	}
}
