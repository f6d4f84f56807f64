package validate

import (
	"math"

	"github.com/valyala/fastjson"

	"github.com/keithlinneman/storefront-api/internal/xerrors"
)

var parsers fastjson.ParserPool

// Parse decodes raw JSON into a Node tree. Object key order is preserved.
func Parse(raw []byte) (Node, error) {
	p := parsers.Get()
	defer parsers.Put(p)

	v, err := p.ParseBytes(raw)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse json")
	}
	// v is only valid until p is reused, so convert before returning.
	return fromValue(v)
}

func fromValue(v *fastjson.Value) (Node, error) {
	switch v.Type() {
	case fastjson.TypeObject:
		o, err := v.Object()
		if err != nil {
			return nil, err
		}
		out := &ObjectNode{Members: make([]Member, 0, o.Len())}
		var verr error
		o.Visit(func(key []byte, child *fastjson.Value) {
			if verr != nil {
				return
			}
			n, err := fromValue(child)
			if err != nil {
				verr = err
				return
			}
			out.set(string(key), n)
		})
		if verr != nil {
			return nil, verr
		}
		return out, nil
	case fastjson.TypeArray:
		items, err := v.Array()
		if err != nil {
			return nil, err
		}
		out := &ArrayNode{Items: make([]Node, 0, len(items))}
		for _, it := range items {
			n, err := fromValue(it)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, n)
		}
		return out, nil
	case fastjson.TypeString:
		b, err := v.StringBytes()
		if err != nil {
			return nil, err
		}
		return StringNode(b), nil
	case fastjson.TypeNumber:
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, xerrors.Newf("parse json: number %s out of range", v.String())
		}
		return NumberNode{Value: f, Raw: v.String()}, nil
	case fastjson.TypeTrue:
		return BoolNode(true), nil
	case fastjson.TypeFalse:
		return BoolNode(false), nil
	case fastjson.TypeNull:
		return NullNode{}, nil
	default:
		return nil, xerrors.Newf("parse json: unexpected value type %s", v.Type())
	}
}

// Marshal encodes n as JSON, keeping object key order.
func Marshal(n Node) []byte {
	var a fastjson.Arena
	return toValue(&a, n).MarshalTo(nil)
}

func toValue(a *fastjson.Arena, n Node) *fastjson.Value {
	switch t := n.(type) {
	case *ObjectNode:
		o := a.NewObject()
		for _, m := range t.Members {
			o.Set(m.Key, toValue(a, m.Value))
		}
		return o
	case *ArrayNode:
		arr := a.NewArray()
		for i, it := range t.Items {
			arr.SetArrayItem(i, toValue(a, it))
		}
		return arr
	case StringNode:
		return a.NewString(string(t))
	case NumberNode:
		if t.Raw != "" {
			return a.NewNumberString(t.Raw)
		}
		f := t.Value
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return a.NewNumberInt(int(f))
		}
		return a.NewNumberFloat64(f)
	case BoolNode:
		if t {
			return a.NewTrue()
		}
		return a.NewFalse()
	default:
		return a.NewNull()
	}
}

// Interface converts n to the plain Go values encoding/json would produce:
// map[string]any, []any, string, float64, bool and nil.
func Interface(n Node) any {
	switch t := n.(type) {
	case *ObjectNode:
		m := make(map[string]any, len(t.Members))
		for _, mem := range t.Members {
			m[mem.Key] = Interface(mem.Value)
		}
		return m
	case *ArrayNode:
		s := make([]any, len(t.Items))
		for i, it := range t.Items {
			s[i] = Interface(it)
		}
		return s
	case StringNode:
		return string(t)
	case NumberNode:
		return t.Value
	case BoolNode:
		return bool(t)
	default:
		return nil
	}
}
