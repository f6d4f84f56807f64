package validate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/storefront-api/internal/apierror"
	"github.com/keithlinneman/storefront-api/internal/httpmw"
)

var profileSchema = Object(
	Field("firstName", String(MinLen(1), MaxLen(50)), Required()),
	Field("avatarUrl", Nullable(String(URL()))),
	Field("age", Number(Integer(), Min(0))),
)

type profileInput struct {
	FirstName string  `json:"firstName"`
	AvatarURL *string `json:"avatarUrl"`
	Age       int     `json:"age"`
}

type errBody struct {
	Success bool                  `json:"success"`
	Error   string                `json:"error"`
	Details []apierror.FieldError `json:"details"`
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) errBody {
	t.Helper()
	var b errBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	return b
}

func TestProcess(t *testing.T) {
	t.Run("bad json", func(t *testing.T) {
		_, err := Process(profileSchema, []byte(`{"firstName":`))
		assert.Equal(t, apierror.KindBadRequest, apierror.KindOf(err))
	})
	t.Run("empty", func(t *testing.T) {
		_, err := Process(profileSchema, []byte("  "))
		assert.Equal(t, apierror.KindBadRequest, apierror.KindOf(err))
	})
	t.Run("invalid", func(t *testing.T) {
		_, err := Process(profileSchema, []byte(`{}`))
		e, ok := apierror.As(err)
		require.True(t, ok)
		assert.Equal(t, apierror.KindValidationFailed, e.Kind)
		assert.Equal(t, []apierror.FieldError{{Field: "firstName", Message: "is required"}}, e.Details)
	})
	t.Run("sanitized", func(t *testing.T) {
		n, err := Process(profileSchema, []byte(`{"firstName":"<b>Ada</b>","avatarUrl":"https://cdn.example.com/a.png?s=1&t=2"}`))
		require.NoError(t, err)
		assert.JSONEq(t,
			`{"firstName":"&lt;b&gt;Ada&lt;/b&gt;","avatarUrl":"https://cdn.example.com/a.png?s=1&t=2"}`,
			string(Marshal(n)))
	})
}

func TestProcess_VerbatimField(t *testing.T) {
	s := Object(
		Field("username", String(), Required()),
		Field("password", String(), Required(), Verbatim()),
	)
	n, err := Process(s, []byte(`{"username":"a<b","password":"p&ss<w>rd"}`))
	require.NoError(t, err)
	obj := n.(*ObjectNode)
	u, _ := obj.Get("username")
	p, _ := obj.Get("password")
	assert.Equal(t, StringNode("a&lt;b"), u)
	assert.Equal(t, StringNode("p&ss<w>rd"), p)
	assert.Equal(t, "username", obj.Members[0].Key)
}

func TestProcess_NumbersKeepLiteralText(t *testing.T) {
	raw := `{"id":12345678901234567890,"price":19.90,"exp":1E3,"n":-0}`
	n, err := Process(Object(), []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, string(Marshal(n)))

	id, _ := n.(*ObjectNode).Get("id")
	assert.Equal(t, 1.2345678901234567e19, id.(NumberNode).Value)
}

func TestProcess_OutOfRangeNumberRejected(t *testing.T) {
	for _, raw := range []string{`{"f":1e400}`, `{"items":[{"q":-1e999}]}`} {
		_, err := Process(Object(), []byte(raw))
		require.Error(t, err, raw)
		assert.Equal(t, apierror.KindBadRequest, apierror.KindOf(err), raw)
	}
}

func TestMarshal_CodeBuiltNumber(t *testing.T) {
	n := &ObjectNode{Members: []Member{
		{Key: "a", Value: NumberNode{Value: 3}},
		{Key: "b", Value: NumberNode{Value: 2.5}},
	}}
	assert.Equal(t, `{"a":3,"b":2.5}`, string(Marshal(n)))
}

func newRouter(h http.HandlerFunc, opts ...BodyOption) http.Handler {
	r := chi.NewRouter()
	r.Use(httpmw.MaxBody(64))
	r.With(Body(profileSchema, opts...)).Put("/api/profile", h)
	return r
}

func TestBody_BindsSanitizedPayload(t *testing.T) {
	var got profileInput
	var rawSeen string
	h := newRouter(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, Bind(r.Context(), &got))
		b, _ := io.ReadAll(r.Body)
		rawSeen = string(b)
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(`{"firstName":"<i>x</i>","age":41}`))
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "&lt;i&gt;x&lt;/i&gt;", got.FirstName)
	assert.Equal(t, 41, got.Age)
	assert.Nil(t, got.AvatarURL)
	assert.NotContains(t, rawSeen, "<i>", "handler must not see the raw body")
}

func TestBody_ValidationFailure(t *testing.T) {
	var routes []string
	called := false
	h := newRouter(func(w http.ResponseWriter, r *http.Request) { called = true },
		OnInvalid(func(route string) { routes = append(routes, route) }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(`{"age":-1}`)))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	b := decodeErr(t, rec)
	assert.False(t, b.Success)
	assert.Equal(t, apierror.MsgValidation, b.Error)
	assert.Equal(t, []apierror.FieldError{
		{Field: "firstName", Message: "is required"},
		{Field: "age", Message: "must be at least 0"},
	}, b.Details)
	assert.Equal(t, []string{"/api/profile"}, routes)
}

func TestBody_MalformedJSON(t *testing.T) {
	h := newRouter(func(w http.ResponseWriter, r *http.Request) { t.Fatal("handler ran") })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(`{"firstName":"a"`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgInvalidJSON, decodeErr(t, rec).Error)
}

func TestBody_TooLarge(t *testing.T) {
	h := newRouter(func(w http.ResponseWriter, r *http.Request) { t.Fatal("handler ran") })

	big := `{"firstName":"` + strings.Repeat("a", 200) + `"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(big)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, apierror.MsgTooLarge, decodeErr(t, rec).Error)
}

func TestBody_MissingBody(t *testing.T) {
	h := newRouter(func(w http.ResponseWriter, r *http.Request) { t.Fatal("handler ran") })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/profile", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBind_NoPayload(t *testing.T) {
	var dst profileInput
	assert.Error(t, Bind(context.Background(), &dst))
}

func TestPayloadFromContext(t *testing.T) {
	assert.Nil(t, PayloadFromContext(context.Background()))
	ctx := WithPayload(context.Background(), StringNode("x"))
	assert.Equal(t, StringNode("x"), PayloadFromContext(ctx))
}
