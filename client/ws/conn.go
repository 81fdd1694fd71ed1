// Package ws carries signalling frames over a websocket connection.
package ws

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/logger"
	"nhooyr.io/websocket"
)

// DefaultSubprotocol is the subprotocol the media server expects.
const DefaultSubprotocol = "rtsp"

var ErrClosed = errors.New("connection closed")

type WSWriter interface {
	Write(ctx context.Context, typ websocket.MessageType, msg []byte) error
}

type WSReader interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
}

type WSReadWriteCloser interface {
	WSReader
	WSWriter
	Close(code websocket.StatusCode, reason string) error
}

type Params struct {
	Log  logger.Logger
	Conn WSReadWriteCloser
}

// Conn fans received text messages out to its subscribers and writes frames
// as text messages. It implements transaction.Transport.
type Conn struct {
	log  logger.Logger
	conn WSReadWriteCloser

	cancel   context.CancelFunc
	torndown chan struct{}

	mu          sync.Mutex
	subscribers map[int]func(string)
	nextSubID   int
	err         error
	closeOnce   sync.Once
}

// New starts reading from params.Conn until it fails or Close is called.
func New(params Params) *Conn {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Conn{
		log:         params.Log.WithNamespaceAppended("ws"),
		conn:        params.Conn,
		cancel:      cancel,
		torndown:    make(chan struct{}),
		subscribers: map[int]func(string){},
	}

	go c.read(ctx)

	return c
}

type DialParams struct {
	URL          string
	Token        string
	Subprotocols []string

	// Insecure skips TLS certificate verification.
	Insecure bool
}

// DialURL returns the websocket URL with the access token as a query
// parameter.
func DialURL(params DialParams) (string, error) {
	u, err := url.Parse(params.URL)
	if err != nil {
		return "", errors.Annotatef(err, "parse url: %q", params.URL)
	}

	if params.Token != "" {
		q := u.Query()
		q.Set("token", params.Token)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// Dial connects to the media server.
func Dial(ctx context.Context, log logger.Logger, params DialParams) (*Conn, error) {
	u, err := DialURL(params)
	if err != nil {
		return nil, errors.Trace(err)
	}

	subprotocols := params.Subprotocols
	if len(subprotocols) == 0 {
		subprotocols = []string{DefaultSubprotocol}
	}

	opts := &websocket.DialOptions{
		Subprotocols: subprotocols,
	}

	if params.Insecure {
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				// nolint:gosec
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}

	log.Info("Dial", logger.Ctx{
		"url": params.URL,
	})

	wsConn, _, err := websocket.Dial(ctx, u, opts)
	if err != nil {
		return nil, errors.Annotatef(err, "dial %s", params.URL)
	}

	wsConn.SetReadLimit(1 << 20)

	return New(Params{
		Log:  log,
		Conn: wsConn,
	}), nil
}

func (c *Conn) read(ctx context.Context) {
	defer close(c.torndown)

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			c.setErr(err)

			return
		}

		if typ != websocket.MessageText {
			c.log.Warn("Ignoring binary message", nil)

			continue
		}

		c.mu.Lock()

		subscribers := make([]func(string), 0, len(c.subscribers))
		for _, fn := range c.subscribers {
			subscribers = append(subscribers, fn)
		}

		c.mu.Unlock()

		frame := string(data)

		for _, fn := range subscribers {
			fn(frame)
		}
	}
}

func (c *Conn) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return
	}

	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		c.log.Info("Connection closed", nil)
	} else {
		c.log.Error("Read", errors.Trace(err), nil)
	}

	c.err = err
}

// Send writes frame as a text message.
func (c *Conn) Send(ctx context.Context, frame string) error {
	select {
	case <-c.torndown:
		return errors.Trace(ErrClosed)
	default:
	}

	err := c.conn.Write(ctx, websocket.MessageText, []byte(frame))

	return errors.Annotate(err, "write")
}

// Subscribe registers fn for every received text message. Subscribers are
// called from the read loop in no particular order.
func (c *Conn) Subscribe(fn func(frame string)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++

	c.subscribers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		delete(c.subscribers, id)
	}
}

// Done is closed when the read loop exits.
func (c *Conn) Done() <-chan struct{} {
	return c.torndown
}

// Err returns the error that stopped the read loop.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.err
}

// Close closes the websocket and waits for the read loop to exit.
func (c *Conn) Close() error {
	var err error

	c.closeOnce.Do(func() {
		err = c.conn.Close(websocket.StatusNormalClosure, "")
		c.cancel()
		<-c.torndown
	})

	return errors.Annotate(err, "close")
}
