package signaling

import (
	"context"
	"log/slog"
	"sync"
)

// HandlerFunc handles one relay message.
type HandlerFunc func(*Message)

// Router dispatches incoming relay messages by type. Each type has at most
// one handler; registering again replaces the previous one.
type Router struct {
	mu       sync.RWMutex
	handlers map[MessageType]HandlerFunc
	onClose  func()
	logger   *slog.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers: make(map[MessageType]HandlerFunc),
		logger:   logger,
	}
}

// On sets the handler for t, replacing any existing one.
func (r *Router) On(t MessageType, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		delete(r.handlers, t)
		return
	}
	r.handlers[t] = fn
}

// Off removes the handler for t.
func (r *Router) Off(t MessageType) {
	r.On(t, nil)
}

// OnClose sets the function called once the incoming stream ends.
func (r *Router) OnClose(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClose = fn
}

// Handlers returns the number of registered handlers.
func (r *Router) Handlers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Dispatch hands msg to its handler. Messages without one are dropped.
func (r *Router) Dispatch(msg *Message) {
	r.mu.RLock()
	fn := r.handlers[msg.Type]
	r.mu.RUnlock()

	if fn == nil {
		r.logger.Debug("No handler for relay message", "type", msg.Type, "room", msg.RoomID)
		return
	}
	fn(msg)
}

// Run dispatches messages from incoming until it is closed or ctx ends.
// The close handler runs only when the stream itself ends.
func (r *Router) Run(ctx context.Context, incoming <-chan *Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-incoming:
			if !ok {
				r.mu.RLock()
				fn := r.onClose
				r.mu.RUnlock()
				if fn != nil {
					fn()
				}
				return
			}
			r.Dispatch(msg)
		}
	}
}
