package livereload

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	ws "nhooyr.io/websocket"
)

const defaultWriteTimeout = 2 * time.Second

// conn is the part of *ws.Conn a broadcast needs.
type conn interface {
	Write(ctx context.Context, typ ws.MessageType, p []byte) error
}

// Registry keeps every connected browser tab, keyed by connection id.
type Registry struct {
	// WriteTimeout bounds each write so one stalled tab cannot hold up a broadcast.
	WriteTimeout time.Duration

	mu    sync.Mutex
	conns map[string]conn
}

func NewRegistry() *Registry {
	return &Registry{WriteTimeout: defaultWriteTimeout, conns: make(map[string]conn)}
}

func (r *Registry) Add(id string, c conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = c
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Broadcast writes v as JSON to every connection in parallel and returns how
// many writes succeeded. Connections that fail or time out are dropped.
func (r *Registry) Broadcast(ctx context.Context, v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	r.mu.Lock()
	snapshot := make(map[string]conn, len(r.conns))
	for id, c := range r.conns {
		snapshot[id] = c
	}
	r.mu.Unlock()

	var sent atomic.Int64
	var g errgroup.Group
	for id, c := range snapshot {
		g.Go(func() error {
			wctx, cancel := context.WithTimeout(ctx, r.WriteTimeout)
			defer cancel()
			if err := c.Write(wctx, ws.MessageText, b); err != nil {
				r.Remove(id)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(sent.Load())
}
