package enginetypes

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Request is the generic JSON-RPC 2.0 request envelope, decoded before the
// method-specific payload is looked at.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// DecodeRequest parses an inbound JSON-RPC request body. When the body is
// not valid JSON the request is nil; envelope validation failures return
// the partial request alongside the error so callers can still echo the
// identifier.
func DecodeRequest(body []byte) (*Request, error) {
	var req Request
	if err := decodeJSON(body, &req); err != nil {
		return nil, err
	}
	if req.JSONRPC != "2.0" {
		return &req, &DecodeError{Field: "jsonrpc", Reason: fmt.Sprintf("unsupported version %q", req.JSONRPC)}
	}
	if req.Method == "" {
		return &req, &DecodeError{Field: "method", Reason: "missing"}
	}
	return &req, nil
}

// Response is the generic JSON-RPC 2.0 response envelope, used for
// passthrough methods whose result the proxy does not interpret.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// DecodeResponse parses a node's JSON-RPC response body.
func DecodeResponse(body []byte) (*Response, error) {
	var resp Response
	if err := decodeJSON(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

var jsonNull = []byte("null")

// ForkchoiceUpdatedRequest is a decoded engine_forkchoiceUpdatedV1/V2 call.
// Params on the wire are the tuple [state, attributes], the second element
// null or absent when no payload build is requested.
type ForkchoiceUpdatedRequest struct {
	JSONRPC    string
	ID         uint64
	Method     Method
	State      ForkchoiceStateV1
	Attributes *PayloadAttributesV2
}

type fcuEnvelope struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      uint64         `json:"id"`
	Method  Method         `json:"method"`
	Params  [2]interface{} `json:"params"`
}

// MarshalJSON renders the request with the attributes slot explicitly null
// when absent, so canonical output has a fixed shape.
func (r ForkchoiceUpdatedRequest) MarshalJSON() ([]byte, error) {
	var attrs interface{}
	if r.Attributes != nil {
		attrs = r.Attributes
	}
	return json.Marshal(fcuEnvelope{
		JSONRPC: r.JSONRPC,
		ID:      r.ID,
		Method:  r.Method,
		Params:  [2]interface{}{r.State, attrs},
	})
}

// UnmarshalJSON strictly decodes a forkchoiceUpdated request, validating
// every hash and quantity field.
func (r *ForkchoiceUpdatedRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      uint64            `json:"id"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params"`
	}
	if err := decodeJSON(data, &raw); err != nil {
		return err
	}
	method, err := ParseMethod(raw.Method)
	if err != nil {
		return err
	}
	if !method.IsForkchoiceUpdated() {
		return &DecodeError{Field: "method", Reason: fmt.Sprintf("%s is not a forkchoiceUpdated variant", method)}
	}
	if len(raw.Params) < 1 || len(raw.Params) > 2 {
		return &DecodeError{Field: "params", Reason: fmt.Sprintf("expected 1 or 2 elements, got %d", len(raw.Params))}
	}
	var state ForkchoiceStateV1
	if err := decodeJSON(raw.Params[0], &state); err != nil {
		return err
	}
	if err := state.validate(); err != nil {
		return err
	}
	var attrs *PayloadAttributesV2
	if len(raw.Params) == 2 && !bytes.Equal(bytes.TrimSpace(raw.Params[1]), jsonNull) {
		attrs = new(PayloadAttributesV2)
		if err := decodeJSON(raw.Params[1], attrs); err != nil {
			return err
		}
		if err := attrs.validate(); err != nil {
			return err
		}
	}
	r.JSONRPC = raw.JSONRPC
	r.ID = raw.ID
	r.Method = method
	r.State = state
	r.Attributes = attrs
	return nil
}

// DecodeForkchoiceUpdated parses and validates a forkchoiceUpdated request body.
func DecodeForkchoiceUpdated(body []byte) (*ForkchoiceUpdatedRequest, error) {
	var req ForkchoiceUpdatedRequest
	if err := req.UnmarshalJSON(body); err != nil {
		return nil, err
	}
	if req.JSONRPC != "2.0" {
		return nil, &DecodeError{Field: "jsonrpc", Reason: fmt.Sprintf("unsupported version %q", req.JSONRPC)}
	}
	return &req, nil
}

// ForkchoiceUpdatedResponse is a decoded forkchoiceUpdated reply. The same
// shape serves V1 and V2.
type ForkchoiceUpdatedResponse struct {
	JSONRPC string                   `json:"jsonrpc"`
	ID      uint64                   `json:"id"`
	Result  *ForkchoiceUpdatedResult `json:"result,omitempty"`
	Error   *RPCError                `json:"error,omitempty"`
}

// DecodeForkchoiceUpdatedResponse parses and validates a node's reply to a
// forkchoiceUpdated call.
func DecodeForkchoiceUpdatedResponse(body []byte) (*ForkchoiceUpdatedResponse, error) {
	var resp ForkchoiceUpdatedResponse
	if err := decodeJSON(body, &resp); err != nil {
		return nil, err
	}
	if resp.Result != nil {
		if err := resp.Result.PayloadStatus.validate(); err != nil {
			return nil, err
		}
	}
	return &resp, nil
}

// ForkchoiceCall is one forkchoiceUpdated request paired with the response
// it received. The pair is cached and persisted as a single unit.
type ForkchoiceCall struct {
	Request  ForkchoiceUpdatedRequest
	Response ForkchoiceUpdatedResponse
}

// NewPayloadRequest is a decoded engine_newPayloadV1/V2 call. Params on the
// wire are [payload].
type NewPayloadRequest struct {
	JSONRPC string
	ID      uint64
	Method  Method
	Payload ExecutionPayloadV2
}

type newPayloadEnvelope struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      uint64                `json:"id"`
	Method  Method                `json:"method"`
	Params  [1]ExecutionPayloadV2 `json:"params"`
}

func (r NewPayloadRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(newPayloadEnvelope{
		JSONRPC: r.JSONRPC,
		ID:      r.ID,
		Method:  r.Method,
		Params:  [1]ExecutionPayloadV2{r.Payload},
	})
}

func (r *NewPayloadRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      uint64            `json:"id"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params"`
	}
	if err := decodeJSON(data, &raw); err != nil {
		return err
	}
	method, err := ParseMethod(raw.Method)
	if err != nil {
		return err
	}
	if method != NewPayloadV1 && method != NewPayloadV2 {
		return &DecodeError{Field: "method", Reason: fmt.Sprintf("%s is not a newPayload variant", method)}
	}
	if len(raw.Params) != 1 {
		return &DecodeError{Field: "params", Reason: fmt.Sprintf("expected 1 element, got %d", len(raw.Params))}
	}
	var payload ExecutionPayloadV2
	if err := decodeJSON(raw.Params[0], &payload); err != nil {
		return err
	}
	if err := payload.validate(); err != nil {
		return err
	}
	r.JSONRPC = raw.JSONRPC
	r.ID = raw.ID
	r.Method = method
	r.Payload = payload
	return nil
}

// DecodeNewPayload parses and validates a newPayload request body.
func DecodeNewPayload(body []byte) (*NewPayloadRequest, error) {
	var req NewPayloadRequest
	if err := req.UnmarshalJSON(body); err != nil {
		return nil, err
	}
	return &req, nil
}

// PayloadStatusResponse is a decoded newPayload reply.
type PayloadStatusResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      uint64           `json:"id"`
	Result  *PayloadStatusV1 `json:"result,omitempty"`
	Error   *RPCError        `json:"error,omitempty"`
}

// DecodePayloadStatusResponse parses and validates a node's reply to a
// newPayload call.
func DecodePayloadStatusResponse(body []byte) (*PayloadStatusResponse, error) {
	var resp PayloadStatusResponse
	if err := decodeJSON(body, &resp); err != nil {
		return nil, err
	}
	if resp.Result != nil {
		if err := resp.Result.validate(); err != nil {
			return nil, err
		}
	}
	return &resp, nil
}

// TransitionConfigurationResponse is a decoded
// engine_exchangeTransitionConfigurationV1 reply.
type TransitionConfigurationResponse struct {
	JSONRPC string                     `json:"jsonrpc"`
	ID      uint64                     `json:"id"`
	Result  *TransitionConfigurationV1 `json:"result,omitempty"`
	Error   *RPCError                  `json:"error,omitempty"`
}

// DecodeTransitionConfigurationResponse parses a node's reply to a
// transition configuration exchange.
func DecodeTransitionConfigurationResponse(body []byte) (*TransitionConfigurationResponse, error) {
	var resp TransitionConfigurationResponse
	if err := decodeJSON(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
