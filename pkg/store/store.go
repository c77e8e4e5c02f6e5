// Package store keeps the remote client's mirror of the device's relay
// state and reconciles it against published frames.
//
// Writes are speculative: a toggle flips the mirror immediately and
// records a pending command. The device never acknowledges commands
// directly; acknowledgment is inferred from the next frame showing the
// requested state. A pending command that no frame confirms within the
// ack timeout is rolled back. Frames are always authoritative: whatever
// they carry overwrites the mirror, pending or not.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitchlink/hitchlink-go/pkg/relay"
	"github.com/hitchlink/hitchlink-go/pkg/wire"
)

// Default timeouts.
const (
	// DefaultAckTimeout is how long a sent toggle may stay unconfirmed
	// before it is rolled back. Three publish cadences.
	DefaultAckTimeout = 3 * time.Second

	// DefaultHeartbeatTimeout is how long without a frame before the
	// mirror counts as stale. Five publish cadences.
	DefaultHeartbeatTimeout = 5 * time.Second
)

// Store errors.
var (
	ErrAckTimeout   = errors.New("command not confirmed in time")
	ErrSuperseded   = errors.New("superseded by a newer command")
	ErrStoreStopped = errors.New("store stopped")
	ErrUnknownRelay = errors.New("unknown relay id")
)

// SendFunc delivers one command to the device.
type SendFunc func(cmd *wire.Command) error

// Config configures a Store.
type Config struct {
	// AckTimeout overrides DefaultAckTimeout.
	AckTimeout time.Duration

	// HeartbeatTimeout overrides DefaultHeartbeatTimeout.
	HeartbeatTimeout time.Duration

	// Send delivers commands to the device. Required.
	Send SendFunc

	// OnError is called once per rejected command with the relay id
	// and ErrAckTimeout, ErrSuperseded or ErrStoreStopped.
	OnError func(relayID string, err error)

	// OnStale is called once when frames stop arriving, and again
	// after each recovery-then-loss cycle.
	OnStale func()

	// OnFrame is called after each frame has been folded into the
	// mirror, for display layers.
	OnFrame func(f *wire.Frame)
}

// pendingCommand is one unconfirmed speculative write.
type pendingCommand struct {
	id      string
	relayID string
	desired bool
	prev    bool
	sentAt  time.Time
	timer   *time.Timer
}

// Store is the remote-side relay mirror. Safe for concurrent use.
type Store struct {
	cfg Config

	mu        sync.Mutex
	relays    map[string]bool
	pending   map[string]*pendingCommand // keyed by relay id
	lastFrame *wire.Frame
	frameAt   time.Time
	heartbeat *time.Timer
	stale     bool
	stopped   bool
}

// New creates a store. The mirror starts all-off and is corrected by
// the first frame.
func New(cfg Config) *Store {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}

	s := &Store{
		cfg:     cfg,
		relays:  make(map[string]bool, relay.ChannelCount),
		pending: make(map[string]*pendingCommand),
	}
	for _, id := range relay.ChannelIDs() {
		s.relays[id] = false
	}
	return s
}

// Connected tells the store the link is up. It requests an immediate
// frame so the mirror converges without waiting for the cadence, and
// arms the heartbeat watchdog.
func (s *Store) Connected() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStoreStopped
	}
	s.armHeartbeatLocked()
	s.mu.Unlock()

	return s.cfg.Send(wire.NewRefreshCommand())
}

// Set requests one relay be driven to the given state. The mirror
// flips immediately; confirmation or rollback follows asynchronously.
// A second Set on the same relay before confirmation supersedes the
// first: the old record rejects with ErrSuperseded and the new
// speculative state applies from the pre-write baseline.
func (s *Store) Set(relayID string, on bool) error {
	if _, ok := relay.ChannelByID(relayID); !ok {
		return ErrUnknownRelay
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStoreStopped
	}

	// Supersession: reject the old record and restore its baseline
	// before the new speculative flip.
	superseded := false
	if old, ok := s.pending[relayID]; ok {
		old.timer.Stop()
		delete(s.pending, relayID)
		s.relays[relayID] = old.prev
		superseded = true
	}

	p := &pendingCommand{
		id:      uuid.New().String(),
		relayID: relayID,
		desired: on,
		prev:    s.relays[relayID],
		sentAt:  time.Now(),
	}
	s.relays[relayID] = on
	s.pending[relayID] = p
	p.timer = time.AfterFunc(s.cfg.AckTimeout, func() { s.ackTimeout(p.id, relayID) })
	onError := s.cfg.OnError
	s.mu.Unlock()

	if superseded && onError != nil {
		onError(relayID, ErrSuperseded)
	}

	if err := s.cfg.Send(wire.NewRelayCommand(relayID, on)); err != nil {
		s.mu.Lock()
		if cur, ok := s.pending[relayID]; ok && cur.id == p.id {
			cur.timer.Stop()
			delete(s.pending, relayID)
			s.relays[relayID] = cur.prev
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Toggle flips one relay relative to the current mirror state.
func (s *Store) Toggle(relayID string) error {
	s.mu.Lock()
	current, ok := s.relays[relayID]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownRelay
	}
	return s.Set(relayID, !current)
}

// ApplyFrame folds one published frame into the mirror. The frame is
// authoritative: every relay state is overwritten, and any pending
// command whose desired state the frame shows counts as confirmed.
func (s *Store) ApplyFrame(f *wire.Frame) {
	states := wire.UnpackRelayMask(f.RelayMask)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}

	for ch := relay.Channel(0); ch < relay.ChannelCount; ch++ {
		id := ch.ID()
		authoritative := states[ch]

		if p, ok := s.pending[id]; ok && p.desired == authoritative {
			p.timer.Stop()
			delete(s.pending, id)
		}
		s.relays[id] = authoritative
	}

	s.lastFrame = f
	s.frameAt = time.Now()
	s.stale = false
	s.armHeartbeatLocked()
	onFrame := s.cfg.OnFrame
	s.mu.Unlock()

	if onFrame != nil {
		onFrame(f)
	}
}

// Relay returns the mirrored state of one relay.
func (s *Store) Relay(relayID string) (on bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	on, ok = s.relays[relayID]
	return on, ok
}

// Relays returns a copy of the mirror.
func (s *Store) Relays() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.relays))
	for id, on := range s.relays {
		out[id] = on
	}
	return out
}

// LastFrame returns the most recent frame and its arrival time,
// or nil before the first frame.
func (s *Store) LastFrame() (*wire.Frame, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFrame, s.frameAt
}

// Stale reports whether the heartbeat watchdog has fired since the
// last frame.
func (s *Store) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// PendingCount returns the number of unconfirmed writes.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop rejects every unconfirmed write, rolls the mirror back, and
// stops the watchdog. The store cannot be restarted.
func (s *Store) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true

	var rejected []string
	for id, p := range s.pending {
		p.timer.Stop()
		s.relays[id] = p.prev
		rejected = append(rejected, id)
		delete(s.pending, id)
	}
	if s.heartbeat != nil {
		s.heartbeat.Stop()
	}
	onError := s.cfg.OnError
	s.mu.Unlock()

	if onError != nil {
		for _, id := range rejected {
			onError(id, ErrStoreStopped)
		}
	}
}

// ackTimeout rolls back one pending command. The uuid guards against
// racing a supersession that already replaced the record.
func (s *Store) ackTimeout(pendingID, relayID string) {
	s.mu.Lock()
	p, ok := s.pending[relayID]
	if !ok || p.id != pendingID {
		s.mu.Unlock()
		return
	}
	delete(s.pending, relayID)
	s.relays[relayID] = p.prev
	onError := s.cfg.OnError
	s.mu.Unlock()

	if onError != nil {
		onError(relayID, ErrAckTimeout)
	}
}

// armHeartbeatLocked resets the watchdog. Caller holds s.mu.
func (s *Store) armHeartbeatLocked() {
	if s.heartbeat != nil {
		s.heartbeat.Stop()
	}
	s.heartbeat = time.AfterFunc(s.cfg.HeartbeatTimeout, s.heartbeatExpired)
}

func (s *Store) heartbeatExpired() {
	s.mu.Lock()
	if s.stopped || s.stale {
		s.mu.Unlock()
		return
	}
	s.stale = true
	onStale := s.cfg.OnStale
	s.mu.Unlock()

	if onStale != nil {
		onStale()
	}
}
