// Package transaction implements request/response commands and
// fire-and-forget events over a duplex text transport, optionally scoped to
// namespaces.
package transaction

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/juju/errors"
	"github.com/oxtoacart/bpool"
	"github.com/peer-calls/mediaclient/client/logger"
	"github.com/peer-calls/mediaclient/client/message"
)

const defaultBufferPoolSize = 32

// Transport carries text frames. Subscribe registers a callback for every
// received frame and returns a func that removes it.
type Transport interface {
	Send(ctx context.Context, frame string) error
	Subscribe(fn func(frame string)) (unsubscribe func())
}

type Params struct {
	Log       logger.Logger
	Transport Transport
}

type Manager struct {
	params  *Params
	log     logger.Logger
	bufPool *bpool.BufferPool

	unsubscribe func()

	mu           sync.Mutex
	nextID       message.TransactionID
	transactions map[message.TransactionID]*Transaction
	namespaces   map[string]*Namespace
	onCommand    CommandHandler
	onEvent      EventHandler
	closed       bool
}

var _ Commander = &Manager{}

func New(params Params) *Manager {
	m := &Manager{
		params:       &params,
		log:          params.Log.WithNamespaceAppended("transaction"),
		bufPool:      bpool.NewBufferPool(defaultBufferPoolSize),
		transactions: map[message.TransactionID]*Transaction{},
		namespaces:   map[string]*Namespace{},
	}

	m.unsubscribe = params.Transport.Subscribe(m.handleFrame)

	return m
}

// Cmd sends a command and registers a Transaction for its answer.
func (m *Manager) Cmd(ctx context.Context, name string, data interface{}) (*Transaction, error) {
	return m.cmd(ctx, name, "", data)
}

// Event sends an event.
func (m *Manager) Event(ctx context.Context, name string, data interface{}) error {
	return m.event(ctx, name, "", data)
}

// Forget removes a pending transaction. A late answer for it is dropped.
func (m *Manager) Forget(t *Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.transactions[t.ID] == t {
		delete(m.transactions, t.ID)
		prometheusTransactionsActive.Dec()
	}
}

// Pending returns the number of transactions waiting for an answer.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.transactions)
}

// OnCommand sets the handler for commands which are not handled by a
// namespace. It replaces any previous handler.
func (m *Manager) OnCommand(handler CommandHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onCommand = handler
}

// OnEvent sets the handler for events which are not handled by a
// namespace. It replaces any previous handler.
func (m *Manager) OnEvent(handler EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onEvent = handler
}

// Namespace returns the namespace with name, creating it when it does not
// exist.
func (m *Manager) Namespace(name string) *Namespace {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ns, ok := m.namespaces[name]; ok {
		return ns
	}

	ns := &Namespace{
		name:    name,
		manager: m,
	}

	m.namespaces[name] = ns

	return ns
}

func (m *Manager) removeNamespace(ns *Namespace) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.namespaces[ns.name] == ns {
		delete(m.namespaces, ns.name)
	}
}

func (m *Manager) cmd(ctx context.Context, name, namespace string, data interface{}) (*Transaction, error) {
	if name == "" {
		return nil, errors.Trace(ErrBadCommandName)
	}

	raw, err := message.EncodeData(data)
	if err != nil {
		return nil, errors.Trace(err)
	}

	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return nil, newSendError(ErrClosed)
	}

	t := newTransaction(m.nextID, name, namespace, raw)

	m.nextID++
	m.transactions[t.ID] = t

	m.mu.Unlock()

	prometheusTransactionsActive.Inc()

	if err := m.send(ctx, message.NewCommand(t.ID, name, namespace, raw)); err != nil {
		m.Forget(t)

		return nil, errors.Trace(err)
	}

	return t, nil
}

func (m *Manager) event(ctx context.Context, name, namespace string, data interface{}) error {
	if name == "" {
		return errors.Trace(ErrBadEventName)
	}

	raw, err := message.EncodeData(data)
	if err != nil {
		return errors.Trace(err)
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return newSendError(ErrClosed)
	}

	return errors.Trace(m.send(ctx, message.NewEvent(name, namespace, raw)))
}

func (m *Manager) encode(frame message.Frame) (string, error) {
	buf := m.bufPool.Get()
	defer m.bufPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(frame); err != nil {
		return "", errors.Annotatef(err, "encode %s frame", frame.Type)
	}

	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

func (m *Manager) send(ctx context.Context, frame message.Frame) error {
	text, err := m.encode(frame)
	if err != nil {
		return errors.Trace(err)
	}

	m.log.Trace("Send", logger.Ctx{
		"frame": text,
	})

	if err := m.params.Transport.Send(ctx, text); err != nil {
		return newSendError(err)
	}

	prometheusFramesSent.WithLabelValues(string(frame.Type)).Inc()

	return nil
}

func (m *Manager) handleFrame(text string) {
	frame, err := message.Parse(text)
	if err != nil {
		prometheusFramesDropped.Inc()

		m.log.Warn("Dropping frame", logger.Ctx{
			"error": err.Error(),
		})

		return
	}

	prometheusFramesReceived.WithLabelValues(string(frame.Type)).Inc()

	m.log.Trace("Recv", logger.Ctx{
		"frame": text,
	})

	switch frame.Type {
	case message.TypeResponse, message.TypeError:
		m.handleAnswer(frame)
	case message.TypeCommand:
		m.handleCommand(frame)
	case message.TypeEvent:
		m.handleEvent(frame)
	}
}

func (m *Manager) handleAnswer(frame message.Frame) {
	m.mu.Lock()

	t, ok := m.transactions[frame.TransactionID]
	if ok {
		delete(m.transactions, frame.TransactionID)
	}

	m.mu.Unlock()

	if !ok {
		prometheusFramesDropped.Inc()

		m.log.Warn("Dropping answer", logger.Ctx{
			"error":    ErrUnknownTransaction.Error(),
			"trans_id": frame.TransactionID,
		})

		return
	}

	prometheusTransactionsActive.Dec()

	if frame.Type == message.TypeError {
		prometheusTransactionsRejected.Inc()
		t.promise.Reject(&RemoteError{Data: frame.Data})

		return
	}

	t.promise.Resolve(frame.Data)
}

// handlers returns the handlers for frames in namespace. A registered
// namespace takes precedence over the global handlers.
func (m *Manager) handlers(namespace string) (CommandHandler, EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if namespace != "" {
		if ns, ok := m.namespaces[namespace]; ok {
			return ns.handlers()
		}
	}

	return m.onCommand, m.onEvent
}

var unhandledCommand = map[string]string{"error": "unhandled command"}

func (m *Manager) handleCommand(frame message.Frame) {
	cmd := &Command{
		ID:        frame.TransactionID,
		Name:      frame.Name,
		Namespace: frame.Namespace,
		Data:      frame.Data,
		manager:   m,
	}

	onCommand, _ := m.handlers(frame.Namespace)
	if onCommand != nil {
		onCommand(cmd)

		return
	}

	log := m.log.WithCtx(logger.Ctx{
		"name":      cmd.Name,
		"namespace": cmd.Namespace,
	})

	log.Warn("Rejecting unhandled command", nil)

	if err := cmd.Reject(context.Background(), unhandledCommand); err != nil {
		log.Error("Reject unhandled command", errors.Trace(err), nil)
	}
}

func (m *Manager) handleEvent(frame message.Frame) {
	_, onEvent := m.handlers(frame.Namespace)
	if onEvent == nil {
		m.log.Debug("Dropping unhandled event", logger.Ctx{
			"name":      frame.Name,
			"namespace": frame.Namespace,
		})

		return
	}

	onEvent(Event{
		Name:      frame.Name,
		Namespace: frame.Namespace,
		Data:      frame.Data,
	})
}

// Close closes all namespaces, stops receiving frames and rejects every
// pending transaction with ErrClosed. The transport is left open.
func (m *Manager) Close() {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return
	}

	m.closed = true

	transactions := m.transactions
	m.transactions = map[message.TransactionID]*Transaction{}

	namespaces := m.namespaces
	m.namespaces = map[string]*Namespace{}

	m.mu.Unlock()

	m.unsubscribe()

	for _, ns := range namespaces {
		ns.close()
	}

	for _, t := range transactions {
		prometheusTransactionsActive.Dec()
		t.promise.Reject(errors.Trace(ErrClosed))
	}
}
