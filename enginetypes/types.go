// Package enginetypes contains the in-memory representations of the Engine
// API messages the proxy relays, along with their strict decoding rules and
// the canonical (storage) vs. live (reply) renderings.
package enginetypes

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Method identifies one of the Engine API calls the proxy understands.
type Method string

const (
	ForkchoiceUpdatedV1               Method = "engine_forkchoiceUpdatedV1"
	ForkchoiceUpdatedV2               Method = "engine_forkchoiceUpdatedV2"
	NewPayloadV1                      Method = "engine_newPayloadV1"
	NewPayloadV2                      Method = "engine_newPayloadV2"
	GetPayloadV1                      Method = "engine_getPayloadV1"
	GetPayloadV2                      Method = "engine_getPayloadV2"
	GetPayloadBodiesByHashV1          Method = "engine_getPayloadBodiesByHashV1"
	GetPayloadBodiesByRangeV1         Method = "engine_getPayloadBodiesByRangeV1"
	ExchangeCapabilities              Method = "engine_exchangeCapabilities"
	ExchangeTransitionConfigurationV1 Method = "engine_exchangeTransitionConfigurationV1"
)

// ParseMethod matches a JSON-RPC method string against the known set.
// Unknown strings are an error, never silently forwarded.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case ForkchoiceUpdatedV1, ForkchoiceUpdatedV2,
		NewPayloadV1, NewPayloadV2,
		GetPayloadV1, GetPayloadV2,
		GetPayloadBodiesByHashV1, GetPayloadBodiesByRangeV1,
		ExchangeCapabilities, ExchangeTransitionConfigurationV1:
		return m, nil
	}
	return "", &UnsupportedMethodError{Method: s}
}

// IsForkchoiceUpdated reports whether the method is a forkchoiceUpdated variant.
func (m Method) IsForkchoiceUpdated() bool {
	return m == ForkchoiceUpdatedV1 || m == ForkchoiceUpdatedV2
}

// PayloadStatus is an execution node's verdict on a payload or forkchoice.
type PayloadStatus string

const (
	StatusValid            PayloadStatus = "VALID"
	StatusInvalid          PayloadStatus = "INVALID"
	StatusSyncing          PayloadStatus = "SYNCING"
	StatusAccepted         PayloadStatus = "ACCEPTED"
	StatusInvalidBlockHash PayloadStatus = "INVALID_BLOCK_HASH"
)

func (s PayloadStatus) valid() bool {
	switch s {
	case StatusValid, StatusInvalid, StatusSyncing, StatusAccepted, StatusInvalidBlockHash:
		return true
	}
	return false
}

// WithdrawalV1 is a single validator withdrawal entry.
type WithdrawalV1 struct {
	Index          string `json:"index"`
	ValidatorIndex string `json:"validatorIndex"`
	Address        string `json:"address"`
	Amount         string `json:"amount"`
}

func (w *WithdrawalV1) validate() error {
	if err := checkQuantity("index", w.Index); err != nil {
		return err
	}
	if err := checkQuantity("validatorIndex", w.ValidatorIndex); err != nil {
		return err
	}
	if err := checkAddress("address", w.Address); err != nil {
		return err
	}
	return checkQuantity("amount", w.Amount)
}

// ForkchoiceStateV1 names the head, safe and finalized blocks designated by
// the consensus client. Immutable once decoded.
type ForkchoiceStateV1 struct {
	HeadBlockHash      string `json:"headBlockHash"`
	SafeBlockHash      string `json:"safeBlockHash"`
	FinalizedBlockHash string `json:"finalizedBlockHash"`
}

func (s *ForkchoiceStateV1) validate() error {
	if err := checkHash("headBlockHash", s.HeadBlockHash); err != nil {
		return err
	}
	if err := checkHash("safeBlockHash", s.SafeBlockHash); err != nil {
		return err
	}
	return checkHash("finalizedBlockHash", s.FinalizedBlockHash)
}

// PayloadAttributesV2 carries the block-building parameters optionally
// attached to a forkchoiceUpdated call.
type PayloadAttributesV2 struct {
	Timestamp             string          `json:"timestamp"`
	PrevRandao            string          `json:"prevRandao"`
	SuggestedFeeRecipient string          `json:"suggestedFeeRecipient"`
	Withdrawals           []*WithdrawalV1 `json:"withdrawals"`
}

func (a *PayloadAttributesV2) validate() error {
	if err := checkQuantity("timestamp", a.Timestamp); err != nil {
		return err
	}
	if err := checkHash("prevRandao", a.PrevRandao); err != nil {
		return err
	}
	if err := checkAddress("suggestedFeeRecipient", a.SuggestedFeeRecipient); err != nil {
		return err
	}
	for _, w := range a.Withdrawals {
		if err := w.validate(); err != nil {
			return err
		}
	}
	return nil
}

// ExecutionPayloadV2 is a built or submitted block body. The transaction
// list keeps transmission order.
type ExecutionPayloadV2 struct {
	ParentHash    string          `json:"parentHash"`
	FeeRecipient  string          `json:"feeRecipient"`
	StateRoot     string          `json:"stateRoot"`
	ReceiptsRoot  string          `json:"receiptsRoot"`
	LogsBloom     string          `json:"logsBloom"`
	PrevRandao    string          `json:"prevRandao"`
	BlockNumber   string          `json:"blockNumber"`
	GasLimit      string          `json:"gasLimit"`
	GasUsed       string          `json:"gasUsed"`
	Timestamp     string          `json:"timestamp"`
	ExtraData     string          `json:"extraData"`
	BaseFeePerGas string          `json:"baseFeePerGas"`
	BlockHash     string          `json:"blockHash"`
	Transactions  []string        `json:"transactions"`
	Withdrawals   []*WithdrawalV1 `json:"withdrawals"`
}

func (p *ExecutionPayloadV2) validate() error {
	if err := checkHash("parentHash", p.ParentHash); err != nil {
		return err
	}
	if err := checkHash("blockHash", p.BlockHash); err != nil {
		return err
	}
	if err := checkQuantity("blockNumber", p.BlockNumber); err != nil {
		return err
	}
	if err := checkQuantity("timestamp", p.Timestamp); err != nil {
		return err
	}
	for _, w := range p.Withdrawals {
		if err := w.validate(); err != nil {
			return err
		}
	}
	return nil
}

// PayloadStatusV1 is the verdict attached to newPayload and
// forkchoiceUpdated responses. latestValidHash is only present for VALID
// and INVALID verdicts.
type PayloadStatusV1 struct {
	Status          PayloadStatus `json:"status"`
	LatestValidHash *string       `json:"latestValidHash"`
	ValidationError *string       `json:"validationError"`
}

func (s *PayloadStatusV1) validate() error {
	if !s.Status.valid() {
		return &DecodeError{Field: "status", Reason: fmt.Sprintf("unknown payload status %q", s.Status)}
	}
	if s.LatestValidHash != nil {
		if s.Status != StatusValid && s.Status != StatusInvalid {
			return &DecodeError{Field: "latestValidHash", Reason: fmt.Sprintf("present with status %s", s.Status)}
		}
		return checkHash("latestValidHash", *s.LatestValidHash)
	}
	return nil
}

// TransitionConfigurationV1 mirrors the engine_exchangeTransitionConfigurationV1
// parameter and result object.
type TransitionConfigurationV1 struct {
	TerminalTotalDifficulty string `json:"terminalTotalDifficulty"`
	TerminalBlockHash       string `json:"terminalBlockHash"`
	TerminalBlockNumber     string `json:"terminalBlockNumber"`
}

// RPCError is the error member of a JSON-RPC 2.0 response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ForkchoiceUpdatedResult is the result member of a forkchoiceUpdated
// response. The same shape serves V1 and V2.
type ForkchoiceUpdatedResult struct {
	PayloadStatus PayloadStatusV1 `json:"payloadStatus"`
	PayloadID     *string         `json:"payloadId"`
}

// checkHash validates a 0x-prefixed 32-byte hash string.
func checkHash(field, s string) error {
	b, err := hexutil.Decode(s)
	if err != nil {
		return &DecodeError{Field: field, Reason: err.Error()}
	}
	if len(b) != 32 {
		return &DecodeError{Field: field, Reason: fmt.Sprintf("expected 32 bytes, got %d", len(b))}
	}
	return nil
}

// checkAddress validates a 0x-prefixed 20-byte address string.
func checkAddress(field, s string) error {
	b, err := hexutil.Decode(s)
	if err != nil {
		return &DecodeError{Field: field, Reason: err.Error()}
	}
	if len(b) != 20 {
		return &DecodeError{Field: field, Reason: fmt.Sprintf("expected 20 bytes, got %d", len(b))}
	}
	return nil
}

// checkQuantity validates a 0x-prefixed quantity string.
func checkQuantity(field, s string) error {
	if _, err := hexutil.DecodeUint64(s); err != nil {
		return &DecodeError{Field: field, Reason: err.Error()}
	}
	return nil
}

func decodeJSON(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &DecodeError{Reason: err.Error()}
	}
	return nil
}
