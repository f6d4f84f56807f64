package validate

import (
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/keithlinneman/storefront-api/internal/apierror"
)

// Schema checks one node. Violations are appended to errs in document order.
type Schema interface {
	check(path string, n Node, errs *[]apierror.FieldError)
}

func addErr(errs *[]apierror.FieldError, path, msg string) {
	if path == "" {
		path = rootPath
	}
	*errs = append(*errs, apierror.FieldError{Field: path, Message: msg})
}

const rootPath = "body"

func joinPath(base, elem string) string {
	if base == "" {
		return elem
	}
	return base + "." + elem
}

// Object

type FieldSpec struct {
	name     string
	schema   Schema
	required bool
	verbatim bool
}

type FieldOption func(*FieldSpec)

// Required makes a missing key a violation. Fields are optional otherwise.
func Required() FieldOption {
	return func(f *FieldSpec) { f.required = true }
}

// Verbatim keeps the field out of sanitization. It is meant for secrets that
// are compared and never rendered, such as passwords.
func Verbatim() FieldOption {
	return func(f *FieldSpec) { f.verbatim = true }
}

func Field(name string, s Schema, opts ...FieldOption) FieldSpec {
	f := FieldSpec{name: name, schema: s}
	for _, o := range opts {
		o(&f)
	}
	return f
}

type ObjectSchema struct {
	fields []FieldSpec
	strict bool
}

func Object(fields ...FieldSpec) *ObjectSchema {
	return &ObjectSchema{fields: fields}
}

// Strict rejects keys that are not declared.
func (s *ObjectSchema) Strict() *ObjectSchema {
	s.strict = true
	return s
}

func (s *ObjectSchema) check(path string, n Node, errs *[]apierror.FieldError) {
	obj, ok := n.(*ObjectNode)
	if !ok {
		addErr(errs, path, "must be an object")
		return
	}
	for _, f := range s.fields {
		fp := joinPath(path, f.name)
		v, present := obj.Get(f.name)
		if !present {
			if f.required {
				addErr(errs, fp, "is required")
			}
			continue
		}
		f.schema.check(fp, v, errs)
	}
	if s.strict {
		for _, m := range obj.Members {
			if !s.declared(m.Key) {
				addErr(errs, joinPath(path, m.Key), "is not allowed")
			}
		}
	}
}

func (s *ObjectSchema) declared(key string) bool {
	for _, f := range s.fields {
		if f.name == key {
			return true
		}
	}
	return false
}

// Nullable

type nullable struct{ inner Schema }

// Nullable accepts JSON null in addition to whatever s accepts.
func Nullable(s Schema) Schema { return nullable{inner: s} }

func (s nullable) check(path string, n Node, errs *[]apierror.FieldError) {
	if _, ok := n.(NullNode); ok {
		return
	}
	s.inner.check(path, n, errs)
}

// String

// StringRule reports a message when v breaks the rule, or "".
type StringRule func(v string) string

type stringSchema struct{ rules []StringRule }

func String(rules ...StringRule) Schema { return stringSchema{rules: rules} }

func (s stringSchema) check(path string, n Node, errs *[]apierror.FieldError) {
	str, ok := n.(StringNode)
	if !ok {
		addErr(errs, path, "must be a string")
		return
	}
	for _, r := range s.rules {
		if msg := r(string(str)); msg != "" {
			addErr(errs, path, msg)
		}
	}
}

func MinLen(n int) StringRule {
	return func(v string) string {
		if utf8.RuneCountInString(v) < n {
			if n == 1 {
				return "must not be empty"
			}
			return fmt.Sprintf("must be at least %d characters", n)
		}
		return ""
	}
}

func MaxLen(n int) StringRule {
	return func(v string) string {
		if utf8.RuneCountInString(v) > n {
			return fmt.Sprintf("must be at most %d characters", n)
		}
		return ""
	}
}

// Pattern reports msg when v does not match re.
func Pattern(re *regexp.Regexp, msg string) StringRule {
	return func(v string) string {
		if !re.MatchString(v) {
			return msg
		}
		return ""
	}
}

func OneOf(values ...string) StringRule {
	return func(v string) string {
		for _, allowed := range values {
			if v == allowed {
				return ""
			}
		}
		return "must be one of: " + strings.Join(values, ", ")
	}
}

// Email accepts a bare address; display names such as "Ada <a@b.c>" are
// rejected.
func Email() StringRule {
	return func(v string) string {
		a, err := mail.ParseAddress(v)
		if err != nil || a.Address != v || !strings.Contains(a.Address[strings.LastIndexByte(a.Address, '@')+1:], ".") {
			return "must be a valid email address"
		}
		return ""
	}
}

func URL() StringRule {
	return func(v string) string {
		if !isAbsoluteURL(v) {
			return "must be a valid URL"
		}
		return ""
	}
}

// isAbsoluteURL is true for http(s) URLs with a host and no characters that
// would need escaping inside HTML attributes. This is stricter than "any
// scheme plus host": ftp:, data: and similar URLs, and URLs carrying quotes
// or angle brackets, are treated as text and escaped.
func isAbsoluteURL(v string) bool {
	if v == "" || strings.ContainsAny(v, " \t\r\n<>\"'`") {
		return false
	}
	u, err := url.Parse(v)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Number

type NumberRule func(v float64) string

type numberSchema struct{ rules []NumberRule }

func Number(rules ...NumberRule) Schema { return numberSchema{rules: rules} }

func (s numberSchema) check(path string, n Node, errs *[]apierror.FieldError) {
	num, ok := n.(NumberNode)
	if !ok {
		addErr(errs, path, "must be a number")
		return
	}
	f := num.Value
	if math.IsNaN(f) || math.IsInf(f, 0) {
		addErr(errs, path, "must be a finite number")
		return
	}
	for _, r := range s.rules {
		if msg := r(f); msg != "" {
			addErr(errs, path, msg)
		}
	}
}

func Min(min float64) NumberRule {
	return func(v float64) string {
		if v < min {
			return "must be at least " + formatNum(min)
		}
		return ""
	}
}

func Max(max float64) NumberRule {
	return func(v float64) string {
		if v > max {
			return "must be at most " + formatNum(max)
		}
		return ""
	}
}

func Integer() NumberRule {
	return func(v float64) string {
		if v != math.Trunc(v) {
			return "must be an integer"
		}
		return ""
	}
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Bool

type boolSchema struct{}

func Bool() Schema { return boolSchema{} }

func (boolSchema) check(path string, n Node, errs *[]apierror.FieldError) {
	if _, ok := n.(BoolNode); !ok {
		addErr(errs, path, "must be a boolean")
	}
}

// Array

type ArrayRule func(n int) string

type arraySchema struct {
	items Schema
	rules []ArrayRule
}

// Array checks every element against items. Element paths are the parent
// path plus the index: items.0.quantity.
func Array(items Schema, rules ...ArrayRule) Schema {
	return arraySchema{items: items, rules: rules}
}

func (s arraySchema) check(path string, n Node, errs *[]apierror.FieldError) {
	arr, ok := n.(*ArrayNode)
	if !ok {
		addErr(errs, path, "must be an array")
		return
	}
	for _, r := range s.rules {
		if msg := r(len(arr.Items)); msg != "" {
			addErr(errs, path, msg)
		}
	}
	for i, it := range arr.Items {
		s.items.check(joinPath(path, strconv.Itoa(i)), it, errs)
	}
}

func MinItems(n int) ArrayRule {
	return func(l int) string {
		if l < n {
			return fmt.Sprintf("must contain at least %d items", n)
		}
		return ""
	}
}

func MaxItems(n int) ArrayRule {
	return func(l int) string {
		if l > n {
			return fmt.Sprintf("must contain at most %d items", n)
		}
		return ""
	}
}

// Validate returns every violation of s in n, in document order. An empty
// result means n conforms.
func Validate(s Schema, n Node) []apierror.FieldError {
	var errs []apierror.FieldError
	s.check("", n, &errs)
	return errs
}
