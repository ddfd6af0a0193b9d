package guardedengineproxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// NodeUnreachableError reports a transport failure or timeout talking to
// one execution node. The node's result never arrived; nothing was retried.
type NodeUnreachableError struct {
	URL string
	Err error
}

func (e *NodeUnreachableError) Error() string {
	return "node " + e.URL + " unreachable: " + e.Err.Error()
}

func (e *NodeUnreachableError) Unwrap() error { return e.Err }

// Node is a forwarding handle to one execution node: a base URL and a
// reusable HTTP client. Immutable after construction; safe for concurrent
// use by many calls.
type Node struct {
	URL    string
	Client *http.Client
}

// NewNode returns a handle to the execution node at url.
func NewNode(url string) *Node {
	return &Node{
		URL:    url,
		Client: &http.Client{},
	}
}

// do performs exactly one JSON-RPC round trip: POST body, read response.
// A non-empty token is attached as a bearer Authorization header. The
// context bounds the round trip; expiry or any transport failure yields a
// NodeUnreachableError. There are no retries.
func (n *Node) do(ctx context.Context, body []byte, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "could not build node request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := n.Client.Do(req)
	if err != nil {
		return nil, &NodeUnreachableError{URL: n.URL, Err: err}
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NodeUnreachableError{URL: n.URL, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &NodeUnreachableError{URL: n.URL, Err: errors.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return out, nil
}

// callWithTimeout wraps do with a per-call deadline. The deadline cancels
// only this round trip, never the caller's request.
func (n *Node) callWithTimeout(ctx context.Context, body []byte, token string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return n.do(ctx, body, token)
}
