// Package bridge exposes backend operations to the desktop shell, both as
// plain HTTP endpoints and over a single WebSocket carrying request/response
// frames.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/zhouzirui/gemdesk/backend/internal/handler/apierr"
	"github.com/zhouzirui/gemdesk/backend/pkg/utils"
)

// Op is one request/response operation. payload may be empty.
type Op func(ctx context.Context, payload json.RawMessage) (any, error)

// Registry names the operations reachable over the bridge.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Op
}

func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Op)}
}

// Register adds op under name, replacing any previous entry.
func (r *Registry) Register(name string, op Op) {
	r.mu.Lock()
	r.ops[name] = op
	r.mu.Unlock()
}

// Lookup returns the op registered under name.
func (r *Registry) Lookup(name string) (Op, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Names lists registered ops in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decode unmarshals payload into T. An empty payload yields the zero value.
func Decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(payload)) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("%w: %v", apierr.ErrInvalidPayload, err)
	}
	return v, nil
}

// HTTP adapts op to a JSON-in, envelope-out handler. The op runs on a context
// detached from the request, so a client that disconnects mid-call does not
// cancel work that is already being recorded.
func HTTP(op Op, successStatus int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		data, err := op(context.WithoutCancel(r.Context()), body)
		if err != nil {
			apierr.Respond(w, err)
			return
		}
		utils.RespondOK(w, successStatus, data)
	}
}
