// Package guardedengineproxy implements a safety relay between a consensus
// client and one or two execution nodes speaking the Engine JSON-RPC API.
//
// The proxy forwards consensus-driven commands while remembering the last
// forkchoiceUpdated request/response pair the authenticated node judged
// VALID, so that a known-good head is always available for comparison or
// operator-driven replay if the node later misbehaves or disappears.
package guardedengineproxy

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Rocket-Rescue-Node/guarded-engine-proxy/enginetypes"
)

const defaultNodeTimeout = 8 * time.Second

// GuardedEngineProxy relays Engine API traffic to an authenticated
// execution node, optionally cross-checking forkchoiceUpdated calls
// against a second, unauthenticated node.
//
// Fields should be set prior to calling ListenAndServe or Serve.
type GuardedEngineProxy struct {
	// URL of the authenticated execution node. Required.
	AuthNodeURL *url.URL
	// Optional URL of the unauthenticated companion node, consulted for
	// advisory cross-checks on forkchoiceUpdated calls only.
	UnauthNodeURL *url.URL

	// Shared HS256 secret for tokens on authenticated-node calls. Required.
	JWTSecret []byte
	// When set, inbound callers must present a bearer token signed with
	// the same secret.
	AuthenticateInbound bool

	// Address to listen for requests on.
	Addr string
	// Pass-through HTTP server settings.
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Budget for one outbound node round trip. Defaults to 8s.
	NodeTimeout time.Duration

	// Logger for relay events. Defaults to the logrus standard logger.
	Logger logrus.FieldLogger

	// Store receives canonical renderings of accepted calls. Defaults to
	// a discard store.
	Store RecordStore

	// Optional recovery collaborator, consulted when the authenticated
	// node is unreachable for a forkchoiceUpdated call and a legitimate
	// pair is cached.
	ForkchoiceFallback ForkchoiceFallback

	server http.Server
	relay  *relay
}

// LastLegitimate returns the most recently accepted forkchoiceUpdated
// pair, or false when nothing has been accepted yet. This is the replay
// collaborator's view of the legitimacy cache; the proxy never replays
// on its own.
func (gep *GuardedEngineProxy) LastLegitimate() (enginetypes.ForkchoiceCall, bool) {
	if gep.relay == nil {
		return enginetypes.ForkchoiceCall{}, false
	}
	return gep.relay.lastLegitimate()
}

func (gep *GuardedEngineProxy) init() error {
	if gep.AuthNodeURL == nil {
		return errors.New("AuthNodeURL is required")
	}
	if len(gep.JWTSecret) == 0 {
		return errors.New("JWTSecret is required")
	}

	logger := gep.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	store := gep.Store
	if store == nil {
		store = discardStore{}
	}
	timeout := gep.NodeTimeout
	if timeout == 0 {
		timeout = defaultNodeTimeout
	}

	var unauthNode *Node
	if gep.UnauthNodeURL != nil {
		unauthNode = NewNode(gep.UnauthNodeURL.String())
	}

	gep.relay = &relay{
		authNode:   NewNode(gep.AuthNodeURL.String()),
		unauthNode: unauthNode,
		auth:       NewAuthenticator(gep.JWTSecret),
		cache:      &LegitimacyCache{},
		store:      store,
		log:        logger,
		timeout:    timeout,
		fallback:   gep.ForkchoiceFallback,
	}

	gep.server.Addr = gep.Addr
	gep.server.ReadTimeout = gep.ReadTimeout
	gep.server.ReadHeaderTimeout = gep.ReadHeaderTimeout
	gep.server.WriteTimeout = gep.WriteTimeout
	gep.server.IdleTimeout = gep.IdleTimeout
	gep.server.MaxHeaderBytes = gep.MaxHeaderBytes

	router := mux.NewRouter()
	router.Path("/").Methods(http.MethodPost).HandlerFunc(gep.engineCall)
	if gep.AuthenticateInbound {
		router.Use(gep.authenticationMiddleware)
	}
	gep.server.Handler = router
	return nil
}

// ListenAndServe binds the proxy to its address and relays traffic until
// Stop is called or an error is encountered.
func (gep *GuardedEngineProxy) ListenAndServe() error {
	if err := gep.init(); err != nil {
		return err
	}
	err := gep.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Serve relays traffic on the provided listener until Stop is called or
// an error is encountered.
func (gep *GuardedEngineProxy) Serve(l net.Listener) error {
	if err := gep.init(); err != nil {
		return err
	}
	err := gep.server.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the proxy down, closing it outright once the
// context expires.
func (gep *GuardedEngineProxy) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			gep.server.Close()
		case <-done:
		}
	}()
	_ = gep.server.Shutdown(ctx)
	close(done)
}
