package device

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitchlink/hitchlink-go/pkg/log"
	"github.com/hitchlink/hitchlink-go/pkg/protection"
	"github.com/hitchlink/hitchlink-go/pkg/relay"
	"github.com/hitchlink/hitchlink-go/pkg/telemetry"
	"github.com/hitchlink/hitchlink-go/pkg/wire"
)

// Loop timing defaults.
const (
	// DefaultTickInterval is the control loop cadence.
	DefaultTickInterval = time.Millisecond

	// DefaultPublishInterval is the frame cadence.
	DefaultPublishInterval = time.Second

	// commandMailboxSize bounds staged wireless commands. Commands
	// arriving with a full mailbox are dropped; the remote's store
	// rolls the write back on its ack timeout.
	commandMailboxSize = 16
)

// Publisher delivers encoded frames to connected remotes.
// *transport.Server satisfies it.
type Publisher interface {
	Publish(payload []byte)
}

// Config configures the device service.
type Config struct {
	// Protection holds the boot thresholds. Clamped by the engine.
	Protection protection.Config

	// Profile is the relay profile at boot.
	Profile relay.Profile

	// SelectorAtBoot is the selector position observed at boot. A
	// non-neutral boot position sets the startup guard.
	SelectorAtBoot relay.Position

	// Sampler provides per-tick telemetry. Required.
	Sampler telemetry.Sampler

	// Publisher receives encoded frames. Nil disables publishing.
	Publisher Publisher

	// Logger receives control loop events. Nil disables.
	Logger log.Logger

	// TickInterval overrides DefaultTickInterval.
	TickInterval time.Duration

	// PublishInterval overrides DefaultPublishInterval.
	PublishInterval time.Duration
}

// Stats are the service's diagnostic counters.
type Stats struct {
	Ticks            uint64
	FramesPublished  uint64
	CommandsAccepted uint64
	CommandsDropped  uint64
	SelectorChanges  uint64
}

// Service is the device-side control loop.
type Service struct {
	cfg    Config
	logger log.Logger

	engine  *protection.Engine
	arbiter *relay.Arbiter

	// selector is the staged selector position, written by the input
	// path and consumed at the next tick.
	selector atomic.Uint32

	// forcePublish requests an out-of-cadence frame.
	forcePublish atomic.Bool

	// commands stages wireless commands for the next tick.
	commands chan *wire.Command

	// remoteMu guards the staged remote-signal states.
	remoteMu      sync.Mutex
	remoteStates  map[relay.Channel]bool
	remoteChanged map[relay.Channel]bool

	ticks            atomic.Uint64
	framesPublished  atomic.Uint64
	commandsAccepted atomic.Uint64
	commandsDropped  atomic.Uint64
	selectorChanges  atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewService creates the service. Start launches the loop.
func NewService(cfg Config) *Service {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = DefaultPublishInterval
	}
	if !cfg.SelectorAtBoot.IsValid() {
		cfg.SelectorAtBoot = relay.PositionNeutral
	}

	s := &Service{
		cfg:           cfg,
		logger:        log.OrNoop(cfg.Logger),
		engine:        protection.NewEngine(cfg.Protection, cfg.SelectorAtBoot == relay.PositionNeutral),
		arbiter:       relay.NewArbiter(cfg.Profile),
		commands:      make(chan *wire.Command, commandMailboxSize),
		remoteStates:  make(map[relay.Channel]bool),
		remoteChanged: make(map[relay.Channel]bool),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	s.selector.Store(uint32(cfg.SelectorAtBoot))

	// Trips and clears force a frame so remotes see faults without
	// waiting out the cadence.
	s.engine.OnTrip(func(k protection.Kind, l protection.Latch) {
		s.forcePublish.Store(true)
		s.logger.Log(log.Event{
			Timestamp: time.Now(),
			Category:  log.CategoryFault,
			Message:   "latch tripped",
			Fault: &log.FaultEvent{
				Kind:         k.String(),
				Tripped:      true,
				SuspectRelay: l.SuspectRelay,
			},
		})
	})
	s.engine.OnClear(func(k protection.Kind) {
		s.forcePublish.Store(true)
		s.logger.Log(log.Event{
			Timestamp: time.Now(),
			Category:  log.CategoryFault,
			Message:   "latch cleared",
			Fault:     &log.FaultEvent{Kind: k.String()},
		})
	})

	return s
}

// Start launches the control loop goroutine.
func (s *Service) Start() {
	go s.run()
}

// Stop halts the control loop and waits for it to exit.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// SetSelector stages a selector position for the next tick.
// Invalid positions are ignored.
func (s *Service) SetSelector(pos relay.Position) {
	if !pos.IsValid() {
		return
	}
	s.selector.Store(uint32(pos))
}

// Selector returns the staged selector position.
func (s *Service) Selector() relay.Position {
	return relay.Position(s.selector.Load())
}

// SetRemoteSignal stages one remote-signal circuit state (the
// tow-vehicle plug input). Consumed while the selector sits in
// pass-through; ignored otherwise.
func (s *Service) SetRemoteSignal(c relay.Channel, on bool) {
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()
	if s.remoteStates[c] == on {
		return
	}
	s.remoteStates[c] = on
	s.remoteChanged[c] = true
}

// HandleCommand ingests one transport-encoded command from a remote.
// Matches the transport server's OnCommand signature. Malformed
// commands and unknown relay ids are dropped silently per the channel
// contract; both are still logged for diagnosis.
func (s *Service) HandleCommand(connID string, payload []byte) {
	cmd, err := wire.DecodeCommandTransport(payload)
	if err != nil {
		s.commandsDropped.Add(1)
		s.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: connID,
			Direction:    log.DirectionIn,
			Category:     log.CategoryError,
			Message:      "command rejected",
			Error:        &log.ErrorEvent{Err: err.Error()},
		})
		return
	}

	if cmd.Type == wire.CommandRelay {
		if _, ok := relay.ChannelByID(cmd.RelayID); !ok {
			s.commandsDropped.Add(1)
			s.logger.Log(log.Event{
				Timestamp:    time.Now(),
				ConnectionID: connID,
				Direction:    log.DirectionIn,
				Category:     log.CategoryMessage,
				Message:      "unknown relay id",
				Command:      &log.CommandEvent{Type: string(cmd.Type), RelayID: cmd.RelayID},
			})
			return
		}
	}

	select {
	case s.commands <- cmd:
		s.commandsAccepted.Add(1)
		s.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: connID,
			Direction:    log.DirectionIn,
			Category:     log.CategoryMessage,
			Message:      "command accepted",
			Command:      &log.CommandEvent{Type: string(cmd.Type), RelayID: cmd.RelayID, Accepted: true},
		})
	default:
		s.commandsDropped.Add(1)
		s.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: connID,
			Direction:    log.DirectionIn,
			Category:     log.CategoryError,
			Message:      "command mailbox full",
		})
	}
}

// RequestRefresh stages an out-of-cadence frame, e.g. when a remote
// connects. Equivalent to receiving a refresh command.
func (s *Service) RequestRefresh() {
	s.forcePublish.Store(true)
}

// AuthorizeClear arms the single-use clearance for current-based
// latches. The physical front-panel action and the console both land
// here.
func (s *Service) AuthorizeClear() {
	s.engine.AuthorizeClear()
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryState,
		Message:   "clear authorized",
	})
}

// Profile returns the active relay profile.
func (s *Service) Profile() relay.Profile {
	return s.arbiter.Profile()
}

// SetProfile switches the relay profile and forces a frame.
func (s *Service) SetProfile(p relay.Profile) {
	old := s.arbiter.Profile()
	if old == p {
		return
	}
	s.arbiter.SetProfile(p)
	s.forcePublish.Store(true)
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryState,
		Message:   "profile switched",
		State:     &log.StateEvent{From: old.String(), To: p.String()},
	})
}

// Engine exposes the protection engine for threshold setters and
// status queries.
func (s *Service) Engine() *protection.Engine {
	return s.engine
}

// Outputs returns a snapshot of the relay outputs.
func (s *Service) Outputs() relay.OutputSet {
	return s.arbiter.Outputs()
}

// Stats returns the diagnostic counters.
func (s *Service) Stats() Stats {
	return Stats{
		Ticks:            s.ticks.Load(),
		FramesPublished:  s.framesPublished.Load(),
		CommandsAccepted: s.commandsAccepted.Load(),
		CommandsDropped:  s.commandsDropped.Load(),
		SelectorChanges:  s.selectorChanges.Load(),
	}
}

// run is the control loop.
func (s *Service) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	lastPos := relay.Position(s.selector.Load())
	var lastPublish time.Time

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}

		now := time.Now()
		s.ticks.Add(1)

		// Selector first: a position change opens the inrush window
		// before this tick's protection pass.
		pos := relay.Position(s.selector.Load())
		if pos != lastPos {
			s.engine.NoteSelectorChange(now)
			s.selectorChanges.Add(1)
			s.forcePublish.Store(true)
			s.logger.Log(log.Event{
				Timestamp: now,
				Category:  log.CategoryState,
				Message:   "selector moved",
				State:     &log.StateEvent{From: lastPos.String(), To: pos.String()},
			})
			lastPos = pos
		}

		sample := s.cfg.Sampler.Sample(now)

		// Coil health judges the outputs as they stood when the sample
		// was taken, i.e. before this tick's arbitration.
		outputs := s.arbiter.Outputs()
		suspect := protection.NoSuspect
		if ch, one := outputs.SingleActive(); one {
			suspect = int(ch)
		}

		blocked := s.engine.Tick(protection.TickInput{
			Sample:          sample,
			Now:             now,
			SelectorNeutral: pos == relay.PositionNeutral,
			ActiveRelays:    outputs.ActiveCount(),
			SuspectRelay:    suspect,
		})

		wireless, refresh := s.drainCommands()
		remote := s.drainRemote()

		s.arbiter.Tick(pos, blocked, remote, wireless)

		force := s.forcePublish.Swap(false) || refresh || len(wireless) > 0
		if force || lastPublish.IsZero() || now.Sub(lastPublish) >= s.cfg.PublishInterval {
			s.publish(now, pos, sample, force)
			lastPublish = now
		}
	}
}

// drainCommands empties the command mailbox into intents.
// Later commands for the same relay override earlier ones within the
// tick. Returns whether a refresh was requested.
func (s *Service) drainCommands() ([]relay.Intent, bool) {
	var intents []relay.Intent
	refresh := false
	for {
		select {
		case cmd := <-s.commands:
			switch cmd.Type {
			case wire.CommandRelay:
				ch, _ := relay.ChannelByID(cmd.RelayID)
				intents = append(intents, relay.Intent{Channel: ch, On: *cmd.State})
			case wire.CommandRefresh:
				refresh = true
			}
		default:
			return intents, refresh
		}
	}
}

// drainRemote converts staged remote-signal edges into intents.
func (s *Service) drainRemote() []relay.Intent {
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()

	if len(s.remoteChanged) == 0 {
		return nil
	}
	intents := make([]relay.Intent, 0, len(s.remoteChanged))
	for c := relay.Channel(0); c < relay.ChannelCount; c++ {
		if s.remoteChanged[c] {
			intents = append(intents, relay.Intent{Channel: c, On: s.remoteStates[c]})
		}
	}
	s.remoteChanged = make(map[relay.Channel]bool)
	return intents
}

// BuildFrame assembles the frame for the current state. Exposed for
// the console's status view; the loop's publish path reuses the tick
// sample instead of reading the sampler again.
func (s *Service) BuildFrame(now time.Time) *wire.Frame {
	pos := relay.Position(s.selector.Load())
	return s.buildFrame(now, pos, s.cfg.Sampler.Sample(now))
}

func (s *Service) buildFrame(now time.Time, pos relay.Position, sample telemetry.Sample) *wire.Frame {
	outputs := s.arbiter.Outputs()
	profile := s.arbiter.Profile()
	cfg := s.engine.Config()

	f := &wire.Frame{
		RelayMask: outputs.Mask(),
	}

	if pos == relay.PositionPassthrough {
		f.Mode = wire.ModePassthrough
	} else {
		f.Mode = wire.ModeSelector
	}

	f.ActiveLabel = s.activeLabel(pos, profile)

	// Telemetry, rounded for the wire; unavailable channels stay absent.
	if sample.LoadAmps.Valid {
		f.LoadAmps = wire.Round2Ptr(sample.LoadAmps.Value)
	}
	if sample.SourceVolts.Valid {
		f.SourceVolts = wire.Round2Ptr(sample.SourceVolts.Value)
	}
	if sample.OutputVolts.Valid {
		f.OutputVolts = wire.Round2Ptr(sample.OutputVolts.Value)
	}

	for k := protection.Kind(0); k < protection.KindCount; k++ {
		if !s.engine.Latch(k).Active {
			continue
		}
		switch k {
		case protection.KindLVP:
			f.FaultMask |= wire.FaultLVP
		case protection.KindOCP:
			f.FaultMask |= wire.FaultOCP
		case protection.KindOUTV:
			f.FaultMask |= wire.FaultOUTV
		case protection.KindRelayCoil:
			f.FaultMask |= wire.FaultRelayCoil
		}
	}
	if s.engine.SensorFault() {
		f.FaultMask |= wire.FaultSensor
	}

	if outputs.EnableActive() {
		f.StatusFlags |= wire.FlagEnableActive
	}
	if s.engine.Latch(protection.KindLVP).Active {
		f.StatusFlags |= wire.FlagLVPLatched
	}
	if cfg.LVPBypass {
		f.StatusFlags |= wire.FlagLVPBypass
	}
	if s.engine.Latch(protection.KindOUTV).Active {
		f.StatusFlags |= wire.FlagOUTVLatched
	}
	if cfg.OUTVBypass {
		f.StatusFlags |= wire.FlagOUTVBypass
	}
	if s.engine.CooldownActive(now) {
		f.StatusFlags |= wire.FlagCooldownActive
		remaining := s.engine.CooldownRemaining(now)
		f.CooldownSecs = uint16((remaining + time.Second - 1) / time.Second)
	}
	if s.engine.StartupGuard() {
		f.StatusFlags |= wire.FlagStartupGuard
	}

	return f
}

// activeLabel names what the tester is doing: the tripped fault when
// latched, else the selector's preset label.
func (s *Service) activeLabel(pos relay.Position, profile relay.Profile) string {
	for k := protection.Kind(0); k < protection.KindCount; k++ {
		if s.engine.Latch(k).Active {
			return "FAULT " + k.String()
		}
	}
	return relay.PresetLabel(pos, profile)
}

// publish encodes and delivers one frame built from the tick's sample,
// so the published telemetry matches what this tick's protection
// verdict was computed from.
func (s *Service) publish(now time.Time, pos relay.Position, sample telemetry.Sample, forced bool) {
	if s.cfg.Publisher == nil {
		return
	}

	f := s.buildFrame(now, pos, sample)
	payload, err := wire.EncodeFrameTransport(f)
	if err != nil {
		s.logger.Log(log.Event{
			Timestamp: now,
			Category:  log.CategoryError,
			Message:   "frame encode failed",
			Error:     &log.ErrorEvent{Err: err.Error()},
		})
		return
	}

	s.cfg.Publisher.Publish(payload)
	s.framesPublished.Add(1)
	s.logger.Log(log.Event{
		Timestamp: now,
		Direction: log.DirectionOut,
		Category:  log.CategoryMessage,
		Message:   "frame published",
		Frame: &log.FrameEvent{
			Size:      len(payload),
			RelayMask: f.RelayMask,
			FaultMask: f.FaultMask,
			Forced:    forced,
		},
	})
}
