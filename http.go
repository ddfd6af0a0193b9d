package guardedengineproxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// engineCall reads one JSON-RPC request body and writes the relay's reply.
// Relay-level failures are JSON-RPC error objects on a 200 response; only
// transport-level problems surface as HTTP errors.
func (gep *GuardedEngineProxy) engineCall(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		gep.httpError(w, http.StatusBadRequest, err)
		return
	}

	reply := gep.relay.handle(r.Context(), body)
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(reply); err != nil {
		gep.relay.log.WithError(err).Error("Could not write reply")
	}
}

// authenticationMiddleware rejects inbound calls that do not carry a valid
// bearer token signed with the shared secret. Rejected calls are never
// forwarded to a node.
func (gep *GuardedEngineProxy) authenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if err := gep.relay.auth.VerifyToken(token); err != nil {
			gep.relay.log.WithError(err).Warn("Rejected inbound call")
			gep.httpError(w, authHTTPStatus(err), err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

func (gep *GuardedEngineProxy) httpError(w http.ResponseWriter, code int, err error) {
	w.WriteHeader(code)
	if err != nil {
		escaped, _ := json.Marshal(err.Error())
		fmt.Fprintf(w, "{\"error\":%s}\n", escaped)
	}
}
