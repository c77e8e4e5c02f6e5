package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitchlink/hitchlink-go/pkg/connection"
	"github.com/hitchlink/hitchlink-go/pkg/store"
	"github.com/hitchlink/hitchlink-go/pkg/transport"
	"github.com/hitchlink/hitchlink-go/pkg/wire"
)

// link ties one device connection together: the transport client, the
// reconnection manager and the device store. The manager owns the retry
// schedule; the store owns the mirrored state.
type link struct {
	deviceID string
	addr     string
	key      []byte

	store *store.Store
	mgr   *connection.Manager

	mu     sync.Mutex
	client *transport.Client
}

// linkConfig carries the timeouts and the callbacks the console hooks
// into the link.
type linkConfig struct {
	ackTimeout       time.Duration
	heartbeatTimeout time.Duration

	onError func(relayID string, err error)
	onStale func()
	onFrame func(f *wire.Frame)
	onRetry func(attempt int, delay time.Duration)
	onState func(from, to connection.State)
}

// newLink builds a link. Call connect to bring it up.
func newLink(deviceID, addr string, key []byte, cfg linkConfig) *link {
	l := &link{
		deviceID: deviceID,
		addr:     addr,
		key:      key,
	}

	l.store = store.New(store.Config{
		AckTimeout:       cfg.ackTimeout,
		HeartbeatTimeout: cfg.heartbeatTimeout,
		Send:             l.send,
		OnError:          cfg.onError,
		OnStale: func() {
			if cfg.onStale != nil {
				cfg.onStale()
			}
			// Staleness is link failure: the transport may still look
			// healthy while frames have stopped. Drop it and let the
			// manager redial; refresh-on-connect resyncs the mirror.
			l.dropClient()
			l.mgr.LinkLost()
		},
		OnFrame: cfg.onFrame,
	})

	l.mgr = connection.NewManager(l.dial)
	l.mgr.OnConnected(func() {
		// Refresh-on-connect: the mirror resyncs from the device on the
		// initial connect and on every reconnect.
		_ = l.store.Connected()
	})
	if cfg.onRetry != nil {
		l.mgr.OnRetry(cfg.onRetry)
	}
	if cfg.onState != nil {
		l.mgr.OnStateChange(cfg.onState)
	}
	l.mgr.Start()

	return l
}

// connect performs the initial caller-driven connection attempt.
func (l *link) connect(ctx context.Context) error {
	return l.mgr.Connect(ctx)
}

// close tears the link down: manager first so link loss does not trigger
// a retry, then the client and the store.
func (l *link) close() {
	l.mgr.Close()
	l.dropClient()
	l.store.Stop()
}

// dropClient closes the current transport client, if any.
func (l *link) dropClient() {
	l.mu.Lock()
	client := l.client
	l.client = nil
	l.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

// dial is the manager's DialFunc: TCP connect plus hello exchange.
func (l *link) dial(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := transport.Dial(l.addr, l.key)
	if err != nil {
		return err
	}

	client.OnNotify(func(payload []byte) {
		f, err := wire.DecodeFrameTransport(payload)
		if err != nil {
			// Malformed frames are dropped; the next one resyncs.
			return
		}
		l.store.ApplyFrame(f)
	})
	client.OnClosed(func(err error) {
		l.mgr.LinkLost()
	})
	client.Start()

	l.mu.Lock()
	old := l.client
	l.client = client
	l.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// send is the store's SendFunc.
func (l *link) send(cmd *wire.Command) error {
	l.mu.Lock()
	client := l.client
	l.mu.Unlock()
	if client == nil {
		return fmt.Errorf("not connected")
	}

	payload, err := wire.EncodeCommandTransport(cmd)
	if err != nil {
		return err
	}
	return client.WriteCommand(payload)
}

// refresh asks the device for an immediate frame.
func (l *link) refresh() error {
	return l.send(wire.NewRefreshCommand())
}
