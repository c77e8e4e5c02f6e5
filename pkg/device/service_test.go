package device

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitchlink/hitchlink-go/pkg/protection"
	"github.com/hitchlink/hitchlink-go/pkg/relay"
	"github.com/hitchlink/hitchlink-go/pkg/telemetry"
	"github.com/hitchlink/hitchlink-go/pkg/wire"
)

// capturePublisher records published frames.
type capturePublisher struct {
	mu     sync.Mutex
	frames []*wire.Frame
}

func (p *capturePublisher) Publish(payload []byte) {
	f, err := wire.DecodeFrameTransport(payload)
	if err != nil {
		return
	}
	p.mu.Lock()
	p.frames = append(p.frames, f)
	p.mu.Unlock()
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

func (p *capturePublisher) last() *wire.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.frames) == 0 {
		return nil
	}
	return p.frames[len(p.frames)-1]
}

func relayCommandPayload(t *testing.T, relayID string, on bool) []byte {
	t.Helper()
	payload, err := wire.EncodeCommandTransport(wire.NewRelayCommand(relayID, on))
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func refreshPayload(t *testing.T) []byte {
	t.Helper()
	payload, err := wire.EncodeCommandTransport(wire.NewRefreshCommand())
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

// coilFollowSampler rides the base sampler but reports a coil current
// matching the energized relay count, keeping the coil health check
// happy while tests switch relays.
type coilFollowSampler struct {
	base    *telemetry.SimSampler
	outputs func() relay.OutputSet
}

func (s *coilFollowSampler) Sample(now time.Time) telemetry.Sample {
	smp := s.base.Sample(now)
	if s.outputs != nil {
		draw := float64(s.outputs().ActiveCount()) * protection.CoilPerRelayAmps
		smp.CoilAmps = telemetry.Avail(draw)
	}
	return smp
}

func startService(t *testing.T, sampler *telemetry.SimSampler, cfg Config) (*Service, *capturePublisher) {
	t.Helper()
	pub := &capturePublisher{}
	if cfg.Publisher == nil {
		cfg.Publisher = pub
	}
	if sampler == nil {
		sampler = telemetry.NewSimSampler()
	}
	follow := &coilFollowSampler{base: sampler}
	cfg.Sampler = follow
	if cfg.Protection == (protection.Config{}) {
		cfg.Protection = protection.DefaultConfig()
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Millisecond
	}
	svc := NewService(cfg)
	follow.outputs = svc.Outputs
	svc.Start()
	t.Cleanup(svc.Stop)
	return svc, pub
}

func TestWirelessCommandDrivesRelayInPassthrough(t *testing.T) {
	svc, pub := startService(t, nil, Config{
		SelectorAtBoot:  relay.PositionNeutral,
		PublishInterval: time.Hour,
	})

	svc.SetSelector(relay.PositionPassthrough)
	svc.HandleCommand("conn", relayCommandPayload(t, "relay-brake", true))

	waitFor(t, time.Second, func() bool {
		out := svc.Outputs()
		return out.Relay(relay.ChannelBrake) && out.EnableActive()
	}, "brake relay never energized")

	// The accepted command forced a frame carrying the new state.
	waitFor(t, time.Second, func() bool {
		f := pub.last()
		return f != nil && wire.RelayBit(f.RelayMask, int(relay.ChannelBrake))
	}, "forced frame never showed the brake bit")

	f := pub.last()
	if f.Mode != wire.ModePassthrough {
		t.Errorf("Mode = %v, want PASSTHROUGH", f.Mode)
	}
	if f.StatusFlags&wire.FlagEnableActive == 0 {
		t.Error("enable flag not set with a relay on")
	}
}

func TestPresetDiscardsWirelessCommand(t *testing.T) {
	svc, _ := startService(t, nil, Config{
		SelectorAtBoot:  relay.PositionNeutral,
		PublishInterval: time.Hour,
	})

	svc.SetSelector(relay.PositionLeft)
	waitFor(t, time.Second, func() bool {
		return svc.Outputs().Relay(relay.ChannelLeft)
	}, "left preset never applied")

	svc.HandleCommand("conn", relayCommandPayload(t, "relay-brake", true))

	// Give the loop time to consume and discard the intent.
	time.Sleep(50 * time.Millisecond)
	out := svc.Outputs()
	if out.Relay(relay.ChannelBrake) {
		t.Error("wireless intent applied under a preset position")
	}
	if !out.Relay(relay.ChannelLeft) {
		t.Error("preset pattern lost")
	}
}

func TestRemoteSignalDrivesRelayInPassthrough(t *testing.T) {
	svc, _ := startService(t, nil, Config{
		SelectorAtBoot:  relay.PositionNeutral,
		PublishInterval: time.Hour,
	})

	svc.SetSelector(relay.PositionPassthrough)
	svc.SetRemoteSignal(relay.ChannelLeft, true)

	waitFor(t, time.Second, func() bool {
		out := svc.Outputs()
		return out.Relay(relay.ChannelLeft) && out.EnableActive()
	}, "remote edge never energized the left relay")

	svc.SetRemoteSignal(relay.ChannelLeft, false)
	waitFor(t, time.Second, func() bool {
		return !svc.Outputs().Relay(relay.ChannelLeft)
	}, "remote edge never released the left relay")
}

func TestPresetDiscardsRemoteSignal(t *testing.T) {
	svc, _ := startService(t, nil, Config{
		SelectorAtBoot:  relay.PositionNeutral,
		PublishInterval: time.Hour,
	})

	svc.SetSelector(relay.PositionTail)
	waitFor(t, time.Second, func() bool {
		return svc.Outputs().Relay(relay.ChannelTail)
	}, "tail preset never applied")

	svc.SetRemoteSignal(relay.ChannelBrake, true)

	// Give the loop time to consume and discard the edge.
	time.Sleep(50 * time.Millisecond)
	out := svc.Outputs()
	if out.Relay(relay.ChannelBrake) {
		t.Error("remote edge applied under a preset position")
	}
	if !out.Relay(relay.ChannelTail) {
		t.Error("preset pattern lost")
	}
}

func TestFaultBlocksOutputs(t *testing.T) {
	sampler := telemetry.NewSimSampler()
	svc, pub := startService(t, sampler, Config{
		SelectorAtBoot:  relay.PositionNeutral,
		PublishInterval: time.Hour,
	})

	svc.SetSelector(relay.PositionTail)
	waitFor(t, time.Second, func() bool {
		return svc.Outputs().Relay(relay.ChannelTail)
	}, "tail preset never applied")

	// Source collapses under the LVP cutoff; past the debounce the
	// latch trips and everything drops.
	sampler.SetSourceVolts(telemetry.Avail(10.2))

	waitFor(t, 2*time.Second, func() bool {
		return svc.Engine().Latch(protection.KindLVP).Active
	}, "LVP never latched")
	waitFor(t, time.Second, func() bool {
		return svc.Outputs().ActiveCount() == 0
	}, "outputs not forced off after trip")

	// The trip forced a frame with the fault visible.
	waitFor(t, time.Second, func() bool {
		f := pub.last()
		return f != nil && f.FaultMask&wire.FaultLVP != 0
	}, "forced frame never showed the LVP fault")

	f := pub.last()
	if f.StatusFlags&wire.FlagLVPLatched == 0 {
		t.Error("LVP latch flag not set")
	}
	if f.ActiveLabel != "FAULT LVP" {
		t.Errorf("ActiveLabel = %q, want FAULT LVP", f.ActiveLabel)
	}
}

func TestStartupGuardHoldsUntilNeutral(t *testing.T) {
	svc, _ := startService(t, nil, Config{
		SelectorAtBoot:  relay.PositionBrake,
		PublishInterval: time.Hour,
	})

	// Booted mid-preset: guard holds everything off.
	time.Sleep(50 * time.Millisecond)
	if svc.Outputs().ActiveCount() != 0 {
		t.Error("outputs energized under startup guard")
	}
	if !svc.Engine().StartupGuard() {
		t.Error("startup guard not set for a non-neutral boot")
	}

	svc.SetSelector(relay.PositionNeutral)
	waitFor(t, time.Second, func() bool {
		return !svc.Engine().StartupGuard()
	}, "guard never cleared in neutral")

	svc.SetSelector(relay.PositionBrake)
	waitFor(t, time.Second, func() bool {
		return svc.Outputs().Relay(relay.ChannelBrake)
	}, "preset not applied after guard cleared")
}

func TestRefreshForcesFrame(t *testing.T) {
	svc, pub := startService(t, nil, Config{
		SelectorAtBoot:  relay.PositionNeutral,
		PublishInterval: time.Hour,
	})

	waitFor(t, time.Second, func() bool { return pub.count() >= 1 },
		"initial frame never published")
	before := pub.count()

	svc.HandleCommand("conn", refreshPayload(t))
	waitFor(t, time.Second, func() bool { return pub.count() > before },
		"refresh did not force a frame")
}

func TestUnknownRelayCommandDroppedSilently(t *testing.T) {
	svc, pub := startService(t, nil, Config{
		SelectorAtBoot:  relay.PositionNeutral,
		PublishInterval: time.Hour,
	})
	waitFor(t, time.Second, func() bool { return pub.count() >= 1 },
		"initial frame never published")
	before := pub.count()

	svc.SetSelector(relay.PositionPassthrough)
	svc.HandleCommand("conn", relayCommandPayload(t, "relay-nope", true))

	time.Sleep(50 * time.Millisecond)
	if svc.Outputs().ActiveCount() != 0 {
		t.Error("unknown relay id changed an output")
	}
	stats := svc.Stats()
	if stats.CommandsDropped != 1 {
		t.Errorf("CommandsDropped = %d, want 1", stats.CommandsDropped)
	}
	if stats.CommandsAccepted != 0 {
		t.Errorf("CommandsAccepted = %d, want 0", stats.CommandsAccepted)
	}
	// No reply and no forced frame for a dropped command.
	if pub.count() != before {
		t.Error("dropped command forced a frame")
	}
}

func TestProfileSwitchForcesFrameAndRelabels(t *testing.T) {
	svc, pub := startService(t, nil, Config{
		SelectorAtBoot:  relay.PositionNeutral,
		Profile:         relay.ProfileStandard,
		PublishInterval: time.Hour,
	})

	svc.SetSelector(relay.PositionMarker)
	waitFor(t, time.Second, func() bool {
		f := pub.last()
		return f != nil && f.ActiveLabel == "MARKER"
	}, "marker label never published")

	// Marker rides with tail under the standard profile.
	out := svc.Outputs()
	if !out.Relay(relay.ChannelMarker) || !out.Relay(relay.ChannelTail) {
		t.Error("standard marker preset incomplete")
	}

	svc.SetProfile(relay.ProfileHeavyDuty)
	waitFor(t, time.Second, func() bool {
		f := pub.last()
		return f != nil && f.ActiveLabel == "REVERSE"
	}, "heavy-duty relabel never published")

	// Reverse stands alone under heavy-duty.
	waitFor(t, time.Second, func() bool {
		out := svc.Outputs()
		return out.Relay(relay.ChannelMarker) && !out.Relay(relay.ChannelTail)
	}, "heavy-duty marker pattern not applied")
}

// countingSampler counts reads so tests can pin down how often the
// loop touches the sampler.
type countingSampler struct {
	calls atomic.Uint64
	base  *telemetry.SimSampler
}

func (s *countingSampler) Sample(now time.Time) telemetry.Sample {
	s.calls.Add(1)
	return s.base.Sample(now)
}

func TestPublishReusesTickSample(t *testing.T) {
	sampler := &countingSampler{base: telemetry.NewSimSampler()}
	svc := NewService(Config{
		Protection:      protection.DefaultConfig(),
		SelectorAtBoot:  relay.PositionNeutral,
		Sampler:         sampler,
		Publisher:       &capturePublisher{},
		TickInterval:    time.Millisecond,
		PublishInterval: 5 * time.Millisecond,
	})
	svc.Start()
	time.Sleep(100 * time.Millisecond)
	svc.Stop()

	stats := svc.Stats()
	if stats.FramesPublished == 0 {
		t.Fatal("nothing published")
	}
	// One read per tick: each publish reuses the sample its tick's
	// protection verdict was computed from.
	if calls := sampler.calls.Load(); calls != stats.Ticks {
		t.Errorf("sampler reads = %d, ticks = %d", calls, stats.Ticks)
	}
}

func TestSensorFaultIndicatedNotLatched(t *testing.T) {
	sampler := telemetry.NewSimSampler()
	svc, pub := startService(t, sampler, Config{
		SelectorAtBoot:  relay.PositionNeutral,
		PublishInterval: 20 * time.Millisecond,
	})

	sampler.SetLoadAmps(telemetry.Unavail())

	waitFor(t, time.Second, func() bool {
		f := pub.last()
		return f != nil && f.FaultMask&wire.FaultSensor != 0
	}, "sensor indicator never published")

	f := pub.last()
	if f.LoadAmps != nil {
		t.Error("unavailable channel still carried a value")
	}
	if svc.Engine().Faulted() {
		t.Error("sensor indicator latched a fault")
	}

	// Channel comes back: the indicator drops on its own.
	sampler.SetLoadAmps(telemetry.Avail(1.5))
	waitFor(t, time.Second, func() bool {
		f := pub.last()
		return f != nil && f.FaultMask&wire.FaultSensor == 0
	}, "sensor indicator never cleared")
}
