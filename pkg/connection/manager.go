package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

// connectTimeout bounds a single reconnection attempt.
const connectTimeout = 30 * time.Second

// Link errors.
var (
	ErrManagerClosed    = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// State is the link state as seen by the remote client.
type State uint8

const (
	// StateDisconnected indicates no link and no retry in progress.
	StateDisconnected State = iota

	// StateConnecting indicates a caller-driven connect in progress.
	StateConnecting

	// StateConnected indicates an established link.
	StateConnected

	// StateReconnecting indicates the backoff loop is retrying.
	StateReconnecting

	// StateClosed indicates the manager has been shut down.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DialFunc establishes the link: TCP dial plus hello exchange.
// A nil return means the link is up and frames will start arriving.
type DialFunc func(ctx context.Context) error

// Manager tracks the link state and drives automatic reconnection
// with backoff. The caller reports link loss via LinkLost; the manager
// owns the retry schedule.
//
// Callbacks are invoked without internal locks held, so they may call
// back into the manager.
type Manager struct {
	mu sync.RWMutex

	state   State
	backoff *Backoff
	dial    DialFunc

	autoReconnect bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	retryCh chan struct{}

	onStateChange  func(from, to State)
	onConnected    func()
	onDisconnected func()
	onRetry        func(attempt int, delay time.Duration)
}

// NewManager creates a manager around a dial function.
// Auto-reconnect is on by default.
func NewManager(dial DialFunc) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		state:         StateDisconnected,
		backoff:       NewBackoff(),
		dial:          dial,
		autoReconnect: true,
		ctx:           ctx,
		cancel:        cancel,
		retryCh:       make(chan struct{}, 1),
	}
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether the link is up.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// SetAutoReconnect enables or disables the retry loop.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// OnStateChange sets a callback for state transitions.
func (m *Manager) OnStateChange(fn func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnConnected sets a callback fired whenever the link comes up,
// for the initial connect and every reconnect.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnDisconnected sets a callback fired when the link goes down.
func (m *Manager) OnDisconnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnected = fn
}

// OnRetry sets a callback fired before each backoff wait.
func (m *Manager) OnRetry(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRetry = fn
}

// Connect performs a caller-driven connection attempt.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case StateClosed:
		m.mu.Unlock()
		return ErrManagerClosed
	}
	from := m.state
	m.state = StateConnecting
	stateChange := m.onStateChange
	m.mu.Unlock()

	if stateChange != nil {
		stateChange(from, StateConnecting)
	}

	if err := m.dial(ctx); err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		if stateChange != nil {
			stateChange(StateConnecting, StateDisconnected)
		}
		return err
	}

	m.markConnected(StateConnecting)
	return nil
}

// LinkLost reports that the established link has dropped. When
// auto-reconnect is on the retry loop takes over; otherwise the state
// goes back to disconnected.
func (m *Manager) LinkLost() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	auto := m.autoReconnect
	to := StateDisconnected
	if auto {
		to = StateReconnecting
	}
	m.state = to
	stateChange := m.onStateChange
	disconnected := m.onDisconnected
	m.mu.Unlock()

	if stateChange != nil {
		stateChange(StateConnected, to)
	}
	if disconnected != nil {
		disconnected()
	}
	if auto {
		select {
		case m.retryCh <- struct{}{}:
		default:
		}
	}
}

// Start launches the background retry loop. Must be called once
// before LinkLost can trigger reconnection.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.retryLoop()
}

// Close shuts the manager down and stops any pending retry.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	from := m.state
	m.state = StateClosed
	stateChange := m.onStateChange
	m.mu.Unlock()

	if stateChange != nil {
		stateChange(from, StateClosed)
	}

	m.cancel()
	m.wg.Wait()
}

// BackoffAttempts returns the retry count since the last successful
// connection, for diagnostics.
func (m *Manager) BackoffAttempts() int {
	return m.backoff.Attempts()
}

// markConnected records a successful dial and fires the callbacks.
func (m *Manager) markConnected(from State) {
	m.mu.Lock()
	m.state = StateConnected
	m.backoff.Reset()
	stateChange := m.onStateChange
	connected := m.onConnected
	m.mu.Unlock()

	if stateChange != nil {
		stateChange(from, StateConnected)
	}
	if connected != nil {
		connected()
	}
}

func (m *Manager) retryLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.retryCh:
			m.retryUntilConnected()
		}
	}
}

func (m *Manager) retryUntilConnected() {
	for {
		m.mu.RLock()
		state := m.state
		onRetry := m.onRetry
		m.mu.RUnlock()
		if state == StateClosed || state == StateConnected {
			return
		}

		delay := m.backoff.Next()
		if onRetry != nil {
			onRetry(m.backoff.Attempts(), delay)
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(m.ctx, connectTimeout)
		err := m.dial(ctx)
		cancel()
		if err != nil {
			continue
		}

		m.markConnected(StateReconnecting)
		return
	}
}
