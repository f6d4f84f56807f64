package validate

import "strings"

// Sanitize returns a copy of n with every free-text string HTML-escaped.
// Absolute http(s) URLs are kept as is. Keys, key order, array lengths and
// non-string values are untouched, and Sanitize(Sanitize(n)) equals
// Sanitize(n).
func Sanitize(n Node) Node {
	if n == nil {
		return nil
	}
	return n.Accept(sanitizer{})
}

type sanitizer struct{}

func (s sanitizer) VisitObject(o *ObjectNode) Node {
	out := &ObjectNode{Members: make([]Member, len(o.Members))}
	for i, m := range o.Members {
		out.Members[i] = Member{Key: m.Key, Value: m.Value.Accept(s)}
	}
	return out
}

func (s sanitizer) VisitArray(a *ArrayNode) Node {
	out := &ArrayNode{Items: make([]Node, len(a.Items))}
	for i, it := range a.Items {
		out.Items[i] = it.Accept(s)
	}
	return out
}

func (sanitizer) VisitString(v StringNode) Node {
	if isAbsoluteURL(string(v)) {
		return v
	}
	return StringNode(EscapeText(string(v)))
}

func (sanitizer) VisitNumber(v NumberNode) Node { return v }
func (sanitizer) VisitBool(v BoolNode) Node     { return v }
func (sanitizer) VisitNull(v NullNode) Node     { return v }

// EscapeText escapes < > & " ' for HTML. An ampersand that already starts a
// character reference (&amp; &#39; &#x27; ...) is left alone, so escaping
// twice gives the same result as escaping once.
func EscapeText(s string) string {
	if !strings.ContainsAny(s, `<>&"'`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#39;")
		case '&':
			if n := entityLen(s[i:]); n > 0 {
				b.WriteString(s[i : i+n])
				i += n - 1
			} else {
				b.WriteString("&amp;")
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// entityLen returns the length of the character reference at the start of s
// (which begins with '&'), or 0 if there is none.
func entityLen(s string) int {
	const maxRef = 32
	end := strings.IndexByte(s, ';')
	if end < 2 || end > maxRef {
		return 0
	}
	body := s[1:end]
	if body[0] == '#' {
		digits := body[1:]
		hex := false
		if len(digits) > 0 && (digits[0] == 'x' || digits[0] == 'X') {
			digits, hex = digits[1:], true
		}
		if digits == "" {
			return 0
		}
		for i := 0; i < len(digits); i++ {
			if !isDigit(digits[i]) && !(hex && isHexLetter(digits[i])) {
				return 0
			}
		}
		return end + 1
	}
	if !isLetter(body[0]) {
		return 0
	}
	for i := 1; i < len(body); i++ {
		if !isLetter(body[i]) && !isDigit(body[i]) {
			return 0
		}
	}
	return end + 1
}

func isDigit(c byte) bool     { return c >= '0' && c <= '9' }
func isLetter(c byte) bool    { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isHexLetter(c byte) bool { return (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') }
