package client

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Response is one completed HTTP exchange. Any status code is a valid
// Response; interpreting it is up to the caller.
type Response struct {
	Endpoint   string
	Method     string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("unmarshal response: %w (body: %s)", err, string(r.Body))
	}
	return nil
}

// IsJSON reports whether the body parses as JSON.
func (r *Response) IsJSON() bool {
	return json.Valid(bytes.TrimSpace(r.Body))
}

// Pretty returns the body as two-space indented JSON, or verbatim when it
// is not JSON.
func (r *Response) Pretty() string {
	trimmed := bytes.TrimSpace(r.Body)
	if len(trimmed) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return string(r.Body)
	}
	return buf.String()
}

// Field walks a path of object keys and returns the value found there.
func (r *Response) Field(path ...string) (any, bool) {
	var cur any
	if err := json.Unmarshal(r.Body, &cur); err != nil {
		return nil, false
	}
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// StringField is Field for string leaves. Missing or non-string values yield "".
func (r *Response) StringField(path ...string) string {
	v, ok := r.Field(path...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
