package validate

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/mitchellh/mapstructure"

	"github.com/keithlinneman/storefront-api/internal/apierror"
	"github.com/keithlinneman/storefront-api/internal/httpmw"
	"github.com/keithlinneman/storefront-api/internal/log"
	"github.com/keithlinneman/storefront-api/internal/xerrors"
)

const MsgInvalidJSON = "Request body must be valid JSON"

// Process parses raw, validates it against s and returns the sanitized tree.
// Malformed JSON is a BadRequest; schema violations are one ValidationFailed
// listing all of them.
func Process(s Schema, raw []byte) (Node, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, apierror.BadRequest(MsgInvalidJSON, errors.New("empty body"))
	}
	n, err := Parse(raw)
	if err != nil {
		return nil, apierror.BadRequest(MsgInvalidJSON, err)
	}
	if details := Validate(s, n); len(details) > 0 {
		return nil, apierror.ValidationFailed(details)
	}
	clean := Sanitize(n)
	if os, ok := s.(*ObjectSchema); ok {
		restoreVerbatim(os, n.(*ObjectNode), clean.(*ObjectNode))
	}
	return clean, nil
}

// restoreVerbatim copies Verbatim fields from the parsed tree back over their
// sanitized values.
func restoreVerbatim(s *ObjectSchema, orig, clean *ObjectNode) {
	for _, f := range s.fields {
		if !f.verbatim {
			continue
		}
		if v, ok := orig.Get(f.name); ok {
			clean.set(f.name, v)
		}
	}
}

type bodyConfig struct {
	onInvalid func(route string)
}

type BodyOption func(*bodyConfig)

// OnInvalid is called with the route pattern whenever Body rejects a request.
func OnInvalid(fn func(route string)) BodyOption {
	return func(c *bodyConfig) { c.onInvalid = fn }
}

// Body is the validation guard. On success the sanitized payload is stored in
// the request context and the request body is replaced by its JSON encoding,
// so the raw bytes never reach the handler.
func Body(s Schema, opts ...BodyOption) httpmw.Middleware {
	cfg := bodyConfig{onInvalid: func(string) {}}
	for _, o := range opts {
		o(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := readBody(r)
			if err != nil {
				apierror.Write(w, r, err)
				return
			}

			payload, err := Process(s, raw)
			if err != nil {
				cfg.onInvalid(httpmw.RoutePattern(r))
				if e, ok := apierror.As(err); ok && e.Kind == apierror.KindValidationFailed {
					log.FromContext(r.Context()).Debug(r.Context(), "request body failed validation",
						"violations", len(e.Details),
					)
				}
				apierror.Write(w, r, err)
				return
			}

			clean := Marshal(payload)
			r2 := r.WithContext(WithPayload(r.Context(), payload))
			r2.Body = io.NopCloser(bytes.NewReader(clean))
			r2.ContentLength = int64(len(clean))
			r2.Header.Set("Content-Length", strconv.Itoa(len(clean)))
			next.ServeHTTP(w, r2)
		})
	}
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer r.Body.Close()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, apierror.PayloadTooLarge(err)
		}
		return nil, apierror.BadRequest("Could not read request body", err)
	}
	return raw, nil
}

type ctxKey struct{}

func WithPayload(ctx context.Context, n Node) context.Context {
	return context.WithValue(ctx, ctxKey{}, n)
}

// PayloadFromContext returns the sanitized payload stored by Body, or nil.
func PayloadFromContext(ctx context.Context) Node {
	n, _ := ctx.Value(ctxKey{}).(Node)
	return n
}

// Bind decodes the sanitized payload in ctx into dst using the json struct
// tags of dst.
func Bind(ctx context.Context, dst any) error {
	n := PayloadFromContext(ctx)
	if n == nil {
		return xerrors.New("validate: no payload in context")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  dst,
	})
	if err != nil {
		return xerrors.Wrap(err, "validate: build decoder")
	}
	if err := dec.Decode(Interface(n)); err != nil {
		return xerrors.Wrap(err, "validate: bind payload")
	}
	return nil
}
