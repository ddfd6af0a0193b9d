package enginetypes

import "fmt"

// DecodeError reports a malformed JSON-RPC envelope or field. Malformed
// numeric and hash strings are rejected here rather than coerced.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode: %s", e.Reason)
	}
	return fmt.Sprintf("decode: field %s: %s", e.Field, e.Reason)
}

// UnsupportedMethodError reports a JSON-RPC method outside the known
// Engine API set.
type UnsupportedMethodError struct {
	Method string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported method %q", e.Method)
}
