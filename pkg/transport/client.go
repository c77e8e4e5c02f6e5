package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// Client-side constants.
const (
	// DialTimeout bounds the TCP connect plus hello exchange.
	DialTimeout = 10 * time.Second

	// PingInterval is how often the client pings the device.
	PingInterval = 15 * time.Second
)

// Client errors.
var (
	ErrHelloRejected = errors.New("hello rejected by device")
	ErrClientClosed  = errors.New("client closed")
)

// Client is the remote side of the attribute channel: it receives notify
// payloads and writes fire-and-forget commands.
type Client struct {
	conn   net.Conn
	framer *Framer

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	onNotify func(payload []byte)
	onClosed func(err error)

	wg sync.WaitGroup
}

// Dial connects to a device and runs the hello exchange with the given
// session key. The returned client is not receiving yet: set callbacks,
// then call Start.
func Dial(addr string, sessionKey []byte) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	framer := NewFramer(conn)

	conn.SetDeadline(time.Now().Add(DialTimeout))
	if err := framer.Write(OpHello, sessionKey); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send hello: %w", err)
	}
	op, _, err := framer.Read()
	if err != nil || op != OpHelloAck {
		conn.Close()
		if err == nil {
			err = fmt.Errorf("unexpected reply %s", op)
		}
		return nil, fmt.Errorf("%w: %v", ErrHelloRejected, err)
	}
	conn.SetDeadline(time.Time{})

	return &Client{conn: conn, framer: framer, done: make(chan struct{})}, nil
}

// OnNotify sets the handler for received frame payloads.
// Must be set before Start.
func (c *Client) OnNotify(fn func(payload []byte)) {
	c.onNotify = fn
}

// OnClosed sets a callback invoked once when the connection dies,
// with the terminal read error.
func (c *Client) OnClosed(fn func(err error)) {
	c.onClosed = fn
}

// Start launches the read and ping loops.
func (c *Client) Start() {
	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()
}

// WriteCommand sends one command payload. Fire-and-forget: a nil error
// means the bytes were handed to the transport, nothing more.
func (c *Client) WriteCommand(payload []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.mu.Unlock()

	return c.framer.Write(OpCommand, payload)
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.conn.Close()
	c.wg.Wait()
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	var terminal error
	for {
		op, payload, err := c.framer.Read()
		if err != nil {
			terminal = err
			break
		}
		switch op {
		case OpNotify:
			if c.onNotify != nil {
				c.onNotify(payload)
			}
		case OpPong:
			// Liveness only; the application heartbeat over frames
			// is the staleness authority.
		}
	}

	c.mu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	if !alreadyClosed {
		close(c.done)
	}
	c.mu.Unlock()
	c.conn.Close()

	if !alreadyClosed && c.onClosed != nil {
		c.onClosed(terminal)
	}
}

func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.framer.Write(OpPing, nil); err != nil {
				return
			}
		}
	}
}
