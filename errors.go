package guardedengineproxy

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/Rocket-Rescue-Node/guarded-engine-proxy/enginetypes"
)

// ErrNoLegitimateState is returned when a forkchoiceUpdated call needed the
// cached fallback pair but no pair has ever been accepted. The caller gets
// this explicit error, never a synthesized default response.
var ErrNoLegitimateState = errors.New("no legitimate forkchoice state available")

// JSON-RPC 2.0 error codes used on replies the proxy itself originates.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// rpcErrorFor maps the proxy's error taxonomy onto a JSON-RPC error object
// for the reply envelope.
func rpcErrorFor(err error) *enginetypes.RPCError {
	var decodeErr *enginetypes.DecodeError
	var unsupportedErr *enginetypes.UnsupportedMethodError
	var unreachableErr *NodeUnreachableError
	var rpcErr *enginetypes.RPCError

	switch {
	case errors.As(err, &rpcErr):
		// A node's own JSON-RPC error is surfaced untouched.
		return rpcErr
	case errors.As(err, &unsupportedErr):
		return &enginetypes.RPCError{Code: codeMethodNotFound, Message: unsupportedErr.Error()}
	case errors.As(err, &decodeErr):
		if decodeErr.Field == "" {
			return &enginetypes.RPCError{Code: codeParseError, Message: decodeErr.Error()}
		}
		return &enginetypes.RPCError{Code: codeInvalidParams, Message: decodeErr.Error()}
	case errors.As(err, &unreachableErr):
		return &enginetypes.RPCError{Code: codeServerError, Message: unreachableErr.Error()}
	case errors.Is(err, ErrNoLegitimateState):
		return &enginetypes.RPCError{Code: codeServerError, Message: ErrNoLegitimateState.Error()}
	default:
		return &enginetypes.RPCError{Code: codeServerError, Message: err.Error()}
	}
}

// authHTTPStatus maps an authentication failure to the HTTP status used to
// reject the call before it reaches a node.
func authHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTokenSignature), errors.Is(err, ErrTokenIssuedAt):
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}
