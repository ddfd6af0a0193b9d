package guardedengineproxy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Rocket-Rescue-Node/guarded-engine-proxy/enginetypes"
)

// ForkchoiceFallback is invoked when the authenticated node is unreachable
// for a forkchoiceUpdated call and a previously accepted pair is cached.
// It receives the cached pair and the inbound caller's request identifier,
// and decides whether to substitute a reply. Returning a nil response (or
// an error) lets the transport error reach the caller instead.
//
// The proxy never substitutes the cached pair on its own: silently lying
// to the consensus client about the true validation outcome would itself
// be unsafe.
type ForkchoiceFallback func(pair enginetypes.ForkchoiceCall, id uint64) (*enginetypes.ForkchoiceUpdatedResponse, error)

// relay orchestrates one inbound Engine API call: decode, authenticate the
// outbound leg, dispatch, apply the legitimacy policy, persist, reply.
type relay struct {
	authNode   *Node
	unauthNode *Node // nil when no advisory node is configured
	auth       *Authenticator
	cache      *LegitimacyCache
	store      RecordStore
	log        logrus.FieldLogger
	timeout    time.Duration
	fallback   ForkchoiceFallback
}

// callRecord is the canonical unit handed to the RecordStore.
type callRecord struct {
	Request  json.RawMessage `json:"request"`
	Response json.RawMessage `json:"response"`
}

type advisoryResult struct {
	status enginetypes.PayloadStatus
	err    error
}

// handle runs the full state machine for one inbound request body and
// returns the reply body. Every failure becomes a structured JSON-RPC
// error reply; the HTTP layer always answers 200 once the body is read.
func (r *relay) handle(ctx context.Context, body []byte) []byte {
	req, err := enginetypes.DecodeRequest(body)
	if err != nil {
		if req == nil {
			return errorReplyNullID(err)
		}
		return errorReply(req.ID, err)
	}
	method, err := enginetypes.ParseMethod(req.Method)
	if err != nil {
		r.log.WithField("method", req.Method).Warn("Rejected unsupported method")
		return errorReply(req.ID, err)
	}

	// Nodes receive the request with the identifier normalized; the
	// caller's identifier is restored on the reply. Params pass through
	// byte-for-byte.
	dispatch, err := json.Marshal(enginetypes.Request{
		JSONRPC: "2.0",
		ID:      enginetypes.CanonicalID,
		Method:  req.Method,
		Params:  req.Params,
	})
	if err != nil {
		return errorReply(req.ID, err)
	}

	switch {
	case method.IsForkchoiceUpdated():
		return r.forkchoiceUpdated(ctx, body, dispatch, req.ID, method)
	case method == enginetypes.NewPayloadV1 || method == enginetypes.NewPayloadV2:
		return r.newPayload(ctx, body, dispatch, req.ID, method)
	case method == enginetypes.ExchangeTransitionConfigurationV1:
		return r.transitionConfiguration(ctx, dispatch, req.ID, method)
	default:
		return r.passthrough(ctx, dispatch, req.ID, method)
	}
}

// forkchoiceUpdated dispatches a forkchoiceUpdated call to both node roles,
// treats the authenticated node's answer as authoritative, and updates the
// legitimacy cache when that answer is VALID.
func (r *relay) forkchoiceUpdated(ctx context.Context, body, dispatch []byte, id uint64, method enginetypes.Method) []byte {
	arrived := time.Now()

	fcuReq, err := enginetypes.DecodeForkchoiceUpdated(body)
	if err != nil {
		return errorReply(id, err)
	}

	token, err := r.auth.IssueToken()
	if err != nil {
		return errorReply(id, err)
	}

	// The advisory leg runs concurrently on a detached context: neither
	// the authoritative call's outcome nor the caller going away cancels
	// it, and its failure is logged, never surfaced.
	var advisory chan advisoryResult
	if r.unauthNode != nil {
		advisory = make(chan advisoryResult, 1)
		go r.adviseForkchoice(dispatch, advisory)
	}

	respBody, err := r.authNode.callWithTimeout(ctx, dispatch, token, r.timeout)
	if err != nil {
		return r.forkchoiceFallback(id, err)
	}

	resp, err := enginetypes.DecodeForkchoiceUpdatedResponse(respBody)
	if err != nil {
		return errorReply(id, err)
	}
	if resp.Error != nil {
		// The node's own error is the authoritative outcome.
		r.log.WithField("code", resp.Error.Code).Warn("Authenticated node rejected forkchoiceUpdated")
		return mustMarshal(resp.WithID(id))
	}
	if resp.Result == nil {
		return errorReply(id, &enginetypes.DecodeError{Field: "result", Reason: "missing"})
	}

	status := resp.Result.PayloadStatus.Status
	if advisory != nil {
		go r.compareAdvisory(advisory, status)
	}

	if status == enginetypes.StatusValid {
		r.cache.Replace(enginetypes.ForkchoiceCall{Request: *fcuReq, Response: *resp})
		r.persistForkchoice(ctx, method, arrived, *fcuReq, *resp)
	} else {
		r.log.WithFields(logrus.Fields{
			"status": status,
			"head":   fcuReq.State.HeadBlockHash,
		}).Warn("Forkchoice not accepted, cache unchanged")
	}

	return mustMarshal(resp.WithID(id))
}

// forkchoiceFallback handles an unreachable authenticated node. With no
// cached pair there is nothing legitimate to offer and the caller gets an
// explicit error. With a cached pair, the recovery collaborator (if any)
// decides whether to substitute it; otherwise the transport error stands.
func (r *relay) forkchoiceFallback(id uint64, cause error) []byte {
	pair, ok := r.cache.Read()
	if !ok {
		r.log.WithError(cause).Error("Authenticated node unreachable and cache empty")
		return errorReply(id, ErrNoLegitimateState)
	}
	if r.fallback == nil {
		r.log.WithError(cause).Error("Authenticated node unreachable, no recovery collaborator configured")
		return errorReply(id, cause)
	}
	resp, err := r.fallback(pair, id)
	if err != nil {
		r.log.WithError(err).Error("Recovery collaborator declined fallback")
		return errorReply(id, cause)
	}
	if resp == nil {
		return errorReply(id, cause)
	}
	r.log.WithField("head", pair.Request.State.HeadBlockHash).Warn("Substituted cached forkchoice response")
	return mustMarshal(resp.WithID(id))
}

// adviseForkchoice sends the call to the unauthenticated node. Detached
// from the inbound request's lifetime; bounded by its own timeout.
func (r *relay) adviseForkchoice(dispatch []byte, out chan<- advisoryResult) {
	respBody, err := r.unauthNode.callWithTimeout(context.Background(), dispatch, "", r.timeout)
	if err != nil {
		out <- advisoryResult{err: err}
		return
	}
	resp, err := enginetypes.DecodeForkchoiceUpdatedResponse(respBody)
	if err != nil {
		out <- advisoryResult{err: err}
		return
	}
	if resp.Error != nil {
		out <- advisoryResult{err: resp.Error}
		return
	}
	if resp.Result == nil {
		out <- advisoryResult{err: &enginetypes.DecodeError{Field: "result", Reason: "missing"}}
		return
	}
	out <- advisoryResult{status: resp.Result.PayloadStatus.Status}
}

// compareAdvisory logs the advisory node's verdict against the
// authoritative one. Runs off the reply path.
func (r *relay) compareAdvisory(advisory <-chan advisoryResult, authoritative enginetypes.PayloadStatus) {
	res := <-advisory
	if res.err != nil {
		r.log.WithError(res.err).Debug("Advisory node unavailable for forkchoiceUpdated")
		return
	}
	if res.status != authoritative {
		r.log.WithFields(logrus.Fields{
			"authoritative": authoritative,
			"advisory":      res.status,
		}).Warn("Advisory node disagrees on forkchoice verdict")
		return
	}
	r.log.WithField("status", res.status).Debug("Advisory node agrees on forkchoice verdict")
}

func (r *relay) persistForkchoice(ctx context.Context, method enginetypes.Method, arrived time.Time, req enginetypes.ForkchoiceUpdatedRequest, resp enginetypes.ForkchoiceUpdatedResponse) {
	creq, err := req.Canonical()
	if err != nil {
		r.log.WithError(err).Error("Could not canonicalize forkchoice request")
		return
	}
	cresp, err := resp.Canonical()
	if err != nil {
		r.log.WithError(err).Error("Could not canonicalize forkchoice response")
		return
	}
	r.saveRecord(ctx, method, arrived, creq, cresp)
}

// saveRecord hands a canonical request/response pair to the persistence
// collaborator. Best effort: failures are logged and never change the
// reply already prepared.
func (r *relay) saveRecord(ctx context.Context, method enginetypes.Method, arrived time.Time, creq, cresp []byte) {
	record, err := json.Marshal(callRecord{Request: creq, Response: cresp})
	if err != nil {
		r.log.WithError(err).Error("Could not encode call record")
		return
	}
	if err := r.store.SaveRecord(ctx, string(method), arrived, record); err != nil {
		r.log.WithError(err).WithField("method", method).Error("Could not persist call record")
	}
}

// newPayload forwards a newPayload call to the authenticated node only and
// persists the canonical pair best-effort.
func (r *relay) newPayload(ctx context.Context, body, dispatch []byte, id uint64, method enginetypes.Method) []byte {
	arrived := time.Now()

	npReq, err := enginetypes.DecodeNewPayload(body)
	if err != nil {
		return errorReply(id, err)
	}

	token, err := r.auth.IssueToken()
	if err != nil {
		return errorReply(id, err)
	}
	respBody, err := r.authNode.callWithTimeout(ctx, dispatch, token, r.timeout)
	if err != nil {
		return errorReply(id, err)
	}
	resp, err := enginetypes.DecodePayloadStatusResponse(respBody)
	if err != nil {
		return errorReply(id, err)
	}

	if resp.Error == nil {
		creq, cerr := npReq.Canonical()
		cresp, rerr := resp.Canonical()
		if cerr == nil && rerr == nil {
			r.saveRecord(ctx, method, arrived, creq, cresp)
		}
	}

	return mustMarshal(resp.WithID(id))
}

// transitionConfiguration forwards the exchange to the authenticated node
// and persists the canonical response best-effort.
func (r *relay) transitionConfiguration(ctx context.Context, dispatch []byte, id uint64, method enginetypes.Method) []byte {
	arrived := time.Now()

	token, err := r.auth.IssueToken()
	if err != nil {
		return errorReply(id, err)
	}
	respBody, err := r.authNode.callWithTimeout(ctx, dispatch, token, r.timeout)
	if err != nil {
		return errorReply(id, err)
	}
	resp, err := enginetypes.DecodeTransitionConfigurationResponse(respBody)
	if err != nil {
		return errorReply(id, err)
	}

	if resp.Error == nil {
		if cresp, cerr := resp.Canonical(); cerr == nil {
			r.saveRecord(ctx, method, arrived, dispatch, cresp)
		}
	}

	out := enginetypes.Response{JSONRPC: resp.JSONRPC, ID: id, Error: resp.Error}
	if resp.Result != nil {
		raw, err := json.Marshal(resp.Result)
		if err != nil {
			return errorReply(id, err)
		}
		out.Result = raw
	}
	return mustMarshal(out)
}

// passthrough forwards any other engine method to the authenticated node
// untouched apart from identifier normalization. The unauthenticated node
// does not process payload or transition calls.
func (r *relay) passthrough(ctx context.Context, dispatch []byte, id uint64, method enginetypes.Method) []byte {
	token, err := r.auth.IssueToken()
	if err != nil {
		return errorReply(id, err)
	}
	respBody, err := r.authNode.callWithTimeout(ctx, dispatch, token, r.timeout)
	if err != nil {
		r.log.WithError(err).WithField("method", method).Error("Authenticated node unreachable")
		return errorReply(id, err)
	}
	resp, err := enginetypes.DecodeResponse(respBody)
	if err != nil {
		return errorReply(id, err)
	}
	return mustMarshal(resp.WithID(id))
}

// lastLegitimate exposes the current legitimacy-cache content for the
// recovery/replay collaborator: the most recently accepted pair, or false
// when nothing has been accepted. The proxy never triggers replay itself.
func (r *relay) lastLegitimate() (enginetypes.ForkchoiceCall, bool) {
	return r.cache.Read()
}

func errorReply(id uint64, err error) []byte {
	return mustMarshal(enginetypes.Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   rpcErrorFor(err),
	})
}

// errorReplyNullID answers bodies whose identifier could not be read.
// JSON-RPC 2.0 prescribes a null id in that case.
func errorReplyNullID(err error) []byte {
	return mustMarshal(struct {
		JSONRPC string                `json:"jsonrpc"`
		ID      interface{}           `json:"id"`
		Error   *enginetypes.RPCError `json:"error"`
	}{JSONRPC: "2.0", Error: rpcErrorFor(err)})
}

func mustMarshal(v interface{}) []byte {
	out, err := json.Marshal(v)
	if err != nil {
		// All reply shapes are marshalable by construction.
		panic(err)
	}
	return out
}
