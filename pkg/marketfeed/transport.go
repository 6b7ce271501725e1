package marketfeed

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
)

// Transport is the live connection serving a feed. Its capabilities are
// expressed by the concrete variant (*SocketTransport, *SessionTransport) or,
// for connector-defined transports, by the optional interfaces below.
type Transport interface {
	Kind() ConnectionKind
}

// ListenerRemover is implemented by transports that dispatch their own
// events and must drop their listeners when torn down.
type ListenerRemover interface {
	RemoveAllListeners()
}

// Connector opens the transport of a feed type. The given context bounds
// the connection establishment only, the returned transport must outlive it.
// Connectors push inbound data through Feed.Touch and Feed.Emit and report
// unexpected drops with Feed.Disconnected.
type Connector interface {
	Kind() ConnectionKind
	Connect(ctx context.Context, feed *Feed) (Transport, error)
}

// SessionCloser is implemented by APISession connectors that must log out
// at protocol level before the transport is closed.
type SessionCloser interface {
	CloseAPISession(t Transport) error
}

// Cleaner is implemented by connectors owning resources to release after
// every teardown. Cleanup returns false on failure.
type Cleaner interface {
	Cleanup() bool
}

type MessageHandler func(data []byte)

type CloseHandler func(err error)

// SocketTransport wraps a websocket connection and dispatches inbound frames
// to the registered handlers.
type SocketTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeLock    sync.Mutex

	lock      sync.RWMutex
	onMessage []MessageHandler
	onClose   []CloseHandler
	closed    bool

	listenOnce sync.Once
	quitOnce   sync.Once
	quit       chan struct{}
}

func NewSocketTransport(conn *websocket.Conn) *SocketTransport {
	return &SocketTransport{
		conn:         conn,
		writeTimeout: 5 * time.Second,
		quit:         make(chan struct{}),
	}
}

func (t *SocketTransport) Kind() ConnectionKind {
	return RawSocket
}

func (t *SocketTransport) OnMessage(handler MessageHandler) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.onMessage = append(t.onMessage, handler)
}

// OnClose registers a handler invoked once if the read loop stops because of
// an error rather than because of CloseSocket.
func (t *SocketTransport) OnClose(handler CloseHandler) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.onClose = append(t.onClose, handler)
}

// Listen starts the read loop. Calling it more than once has no effect.
func (t *SocketTransport) Listen() {
	t.listenOnce.Do(func() {
		go t.readLoop()
	})
}

// Done is closed once the socket is closed or the read loop exits.
func (t *SocketTransport) Done() <-chan struct{} {
	return t.quit
}

func (t *SocketTransport) WriteMessage(data []byte) error {
	t.writeLock.Lock()
	defer t.writeLock.Unlock()

	//nolint
	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *SocketTransport) WriteJSON(v interface{}) error {
	t.writeLock.Lock()
	defer t.writeLock.Unlock()

	//nolint
	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteJSON(v)
}

// CloseSocket sends a close frame and closes the underlying connection.
// Subsequent calls are no-ops.
func (t *SocketTransport) CloseSocket() error {
	t.lock.Lock()
	if t.closed {
		t.lock.Unlock()
		return nil
	}
	t.closed = true
	t.lock.Unlock()

	defer t.stop()

	//nolint
	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return t.conn.Close()
}

func (t *SocketTransport) RemoveAllListeners() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.onMessage = nil
	t.onClose = nil
}

func (t *SocketTransport) readLoop() {
	defer t.stop()

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.lock.RLock()
			closed := t.closed
			handlers := append([]CloseHandler(nil), t.onClose...)
			t.lock.RUnlock()

			if closed {
				return
			}
			for _, handler := range handlers {
				handler(err)
			}
			return
		}

		t.lock.RLock()
		handlers := append([]MessageHandler(nil), t.onMessage...)
		t.lock.RUnlock()

		for _, handler := range handlers {
			handler(data)
		}
	}
}

func (t *SocketTransport) stop() {
	t.quitOnce.Do(func() { close(t.quit) })
}

// SessionTransport wraps the gRPC client connection of an API session
// together with the cancel func of its streaming context.
type SessionTransport struct {
	id     string
	conn   *grpc.ClientConn
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func NewSessionTransport(
	id string, conn *grpc.ClientConn, cancel context.CancelFunc,
) *SessionTransport {
	return &SessionTransport{
		id:     id,
		conn:   conn,
		cancel: cancel,
	}
}

func (t *SessionTransport) Kind() ConnectionKind {
	return APISession
}

func (t *SessionTransport) ID() string {
	return t.id
}

func (t *SessionTransport) Conn() *grpc.ClientConn {
	return t.conn
}

// Close cancels the streaming context and closes the client connection.
func (t *SessionTransport) Close() error {
	t.closeOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
