package validate

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/storefront-api/internal/apierror"
)

var orderSchema = Object(
	Field("items", Array(Object(
		Field("productId", String(MinLen(1)), Required()),
		Field("quantity", Number(Integer(), Min(1), Max(99)), Required()),
	), MinItems(1)), Required()),
	Field("shippingAddress", String(MinLen(5), MaxLen(200)), Required()),
	Field("note", Nullable(String(MaxLen(10)))),
)

func mustParse(t *testing.T, s string) Node {
	t.Helper()
	n, err := Parse([]byte(s))
	require.NoError(t, err)
	return n
}

func fields(errs []apierror.FieldError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Field
	}
	return out
}

func TestValidate_Valid(t *testing.T) {
	n := mustParse(t, `{"items":[{"productId":"p1","quantity":2}],"shippingAddress":"1 Main St","note":null}`)
	assert.Empty(t, Validate(orderSchema, n))
}

func TestValidate_MissingRequiredField(t *testing.T) {
	n := mustParse(t, `{"items":[{"productId":"p1","quantity":1}]}`)
	errs := Validate(orderSchema, n)
	require.Len(t, errs, 1)
	assert.Equal(t, apierror.FieldError{Field: "shippingAddress", Message: "is required"}, errs[0])
}

func TestValidate_CollectsAllViolationsWithDottedPaths(t *testing.T) {
	n := mustParse(t, `{"items":[{"productId":"p1","quantity":0},{"quantity":1.5}],"shippingAddress":"x","note":"far too long a note"}`)
	errs := Validate(orderSchema, n)
	assert.Equal(t, []string{
		"items.0.quantity",
		"items.1.productId",
		"items.1.quantity",
		"shippingAddress",
		"note",
	}, fields(errs))
	assert.Equal(t, "must be at least 1", errs[0].Message)
	assert.Equal(t, "must be an integer", errs[2].Message)
}

func TestValidate_TypeMismatch(t *testing.T) {
	n := mustParse(t, `{"items":"nope","shippingAddress":12345}`)
	errs := Validate(orderSchema, n)
	require.Len(t, errs, 2)
	assert.Equal(t, "must be an array", errs[0].Message)
	assert.Equal(t, "must be a string", errs[1].Message)
}

func TestValidate_RootNotObject(t *testing.T) {
	errs := Validate(orderSchema, mustParse(t, `[1,2]`))
	require.Len(t, errs, 1)
	assert.Equal(t, "body", errs[0].Field)
}

func TestValidate_Strict(t *testing.T) {
	s := Object(Field("name", String())).Strict()
	errs := Validate(s, mustParse(t, `{"name":"a","isAdmin":true}`))
	require.Len(t, errs, 1)
	assert.Equal(t, apierror.FieldError{Field: "isAdmin", Message: "is not allowed"}, errs[0])
}

func TestStringRules(t *testing.T) {
	phone := regexp.MustCompile(`^\+?[0-9 ()-]{7,20}$`)
	tests := []struct {
		name string
		rule StringRule
		in   string
		ok   bool
	}{
		{"min ok", MinLen(3), "abc", true},
		{"min runes", MinLen(3), "héé", true},
		{"min short", MinLen(3), "ab", false},
		{"max", MaxLen(2), "abc", false},
		{"pattern ok", Pattern(phone, "must be a valid phone number"), "+1 (555) 010-0000", true},
		{"pattern bad", Pattern(phone, "must be a valid phone number"), "call me", false},
		{"oneof ok", OneOf("pending", "shipped"), "shipped", true},
		{"oneof bad", OneOf("pending", "shipped"), "lost", false},
		{"email ok", Email(), "ada@example.com", true},
		{"email display name", Email(), "Ada <ada@example.com>", false},
		{"email no tld", Email(), "ada@localhost", false},
		{"url ok", URL(), "https://cdn.example.com/a.png?x=1&y=2", true},
		{"url relative", URL(), "/a.png", false},
		{"url javascript", URL(), "javascript:alert(1)", false},
		{"url quote", URL(), `https://x.com/"onload="`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.rule(tt.in) == "")
		})
	}
}

func TestOneOf_Message(t *testing.T) {
	assert.Equal(t, "must be one of: a, b", OneOf("a", "b")("c"))
}

func TestBool(t *testing.T) {
	s := Object(Field("flag", Bool(), Required()))
	assert.Empty(t, Validate(s, mustParse(t, `{"flag":false}`)))
	assert.Len(t, Validate(s, mustParse(t, `{"flag":"false"}`)), 1)
}
