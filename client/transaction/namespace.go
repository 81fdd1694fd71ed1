package transaction

import (
	"context"
	"sync"
)

// Namespace scopes commands and events to a name. Frames sent through a
// namespace carry its name, and received frames with that name are handled
// by its handlers instead of the global ones.
type Namespace struct {
	name    string
	manager *Manager

	mu        sync.Mutex
	onCommand CommandHandler
	onEvent   EventHandler
	closed    bool
}

var _ Commander = &Namespace{}

func (n *Namespace) Name() string {
	return n.name
}

func (n *Namespace) Cmd(ctx context.Context, name string, data interface{}) (*Transaction, error) {
	return n.manager.cmd(ctx, name, n.name, data)
}

func (n *Namespace) Event(ctx context.Context, name string, data interface{}) error {
	return n.manager.event(ctx, name, n.name, data)
}

func (n *Namespace) Forget(t *Transaction) {
	n.manager.Forget(t)
}

func (n *Namespace) OnCommand(handler CommandHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.onCommand = handler
}

func (n *Namespace) OnEvent(handler EventHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.onEvent = handler
}

func (n *Namespace) handlers() (CommandHandler, EventHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.onCommand, n.onEvent
}

func (n *Namespace) close() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return false
	}

	n.closed = true

	return true
}

// Close unregisters the namespace. Frames for it are handled by the global
// handlers afterwards. Close is idempotent.
func (n *Namespace) Close() {
	if n.close() {
		n.manager.removeNamespace(n)
	}
}
