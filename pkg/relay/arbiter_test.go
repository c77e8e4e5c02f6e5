package relay

import "testing"

func TestBlockForcesAllOff(t *testing.T) {
	a := NewArbiter(ProfileStandard)

	// Light something up first.
	a.Tick(PositionBrake, false, nil, nil)
	if !a.Outputs().Relay(ChannelBrake) {
		t.Fatal("brake preset did not activate the brake relay")
	}

	// Blocked overrides everything, including pending intents.
	src := a.Tick(PositionPassthrough, true, nil, []Intent{{ChannelLeft, true}})
	if src != SourceSelector {
		t.Errorf("source under block = %v, want SourceSelector", src)
	}
	out := a.Outputs()
	if out.Mask() != 0 || out.EnableActive() {
		t.Errorf("outputs under block = %06b enable=%v, want all off", out.Mask(), out.EnableActive())
	}

	// Re-asserted every tick: still off even with no new intents.
	a.Tick(PositionBrake, true, nil, nil)
	if a.Outputs().Mask() != 0 {
		t.Error("block not re-asserted on subsequent tick")
	}
}

func TestPresetPositions(t *testing.T) {
	tests := []struct {
		name    string
		pos     Position
		profile Profile
		want    []Channel
	}{
		{"Left", PositionLeft, ProfileStandard, []Channel{ChannelLeft}},
		{"Right", PositionRight, ProfileStandard, []Channel{ChannelRight}},
		{"Brake", PositionBrake, ProfileStandard, []Channel{ChannelBrake}},
		{"Tail", PositionTail, ProfileStandard, []Channel{ChannelTail}},
		{"MarkerStandard", PositionMarker, ProfileStandard, []Channel{ChannelMarker, ChannelTail}},
		{"ReverseHeavy", PositionMarker, ProfileHeavyDuty, []Channel{ChannelMarker}},
		{"AuxStandard", PositionAux, ProfileStandard, []Channel{ChannelAux}},
		{"EBrakeHeavy", PositionAux, ProfileHeavyDuty, []Channel{ChannelAux, ChannelBrake}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewArbiter(tt.profile)
			a.Tick(tt.pos, false, nil, nil)
			out := a.Outputs()

			wantSet := make(map[Channel]bool)
			for _, c := range tt.want {
				wantSet[c] = true
			}
			for c := Channel(0); c < ChannelCount; c++ {
				if out.Relay(c) != wantSet[c] {
					t.Errorf("%v = %v, want %v", c.ID(), out.Relay(c), wantSet[c])
				}
			}
			if !out.EnableActive() {
				t.Error("enable gate off while a preset is active")
			}
		})
	}
}

func TestPresetDiscardsSecondaryIntents(t *testing.T) {
	a := NewArbiter(ProfileStandard)

	src := a.Tick(PositionTail, false,
		[]Intent{{ChannelLeft, true}},
		[]Intent{{ChannelRight, true}})

	if src != SourceSelector {
		t.Errorf("source = %v, want SourceSelector", src)
	}
	out := a.Outputs()
	if out.Relay(ChannelLeft) || out.Relay(ChannelRight) {
		t.Error("secondary intents applied outside pass-through")
	}
	if !out.Relay(ChannelTail) {
		t.Error("tail preset missing")
	}

	// Discarded means not queued: entering pass-through later must not
	// replay them.
	a.Tick(PositionPassthrough, false, nil, nil)
	out = a.Outputs()
	if out.Relay(ChannelLeft) || out.Relay(ChannelRight) {
		t.Error("discarded intents were replayed in pass-through")
	}
}

func TestPassthroughSources(t *testing.T) {
	a := NewArbiter(ProfileStandard)

	// Remote signal applies when no wireless intent contends.
	src := a.Tick(PositionPassthrough, false, []Intent{{ChannelLeft, true}}, nil)
	if src != SourceRemote {
		t.Errorf("source = %v, want SourceRemote", src)
	}
	if !a.Outputs().Relay(ChannelLeft) {
		t.Error("remote intent not applied")
	}

	// Wireless wins the tick when both contend.
	src = a.Tick(PositionPassthrough, false,
		[]Intent{{ChannelRight, true}},
		[]Intent{{ChannelBrake, true}})
	if src != SourceWireless {
		t.Errorf("source = %v, want SourceWireless", src)
	}
	out := a.Outputs()
	if out.Relay(ChannelRight) {
		t.Error("losing remote intent was applied")
	}
	if !out.Relay(ChannelBrake) {
		t.Error("wireless intent not applied")
	}

	// Pass-through holds state across idle ticks.
	a.Tick(PositionPassthrough, false, nil, nil)
	if !a.Outputs().Relay(ChannelBrake) || !a.Outputs().Relay(ChannelLeft) {
		t.Error("pass-through did not hold relay state")
	}

	// Neutral clears everything.
	a.Tick(PositionNeutral, false, nil, nil)
	if a.Outputs().Mask() != 0 {
		t.Error("neutral did not clear outputs")
	}
}

func TestChannelIDRoundTrip(t *testing.T) {
	for c := Channel(0); c < ChannelCount; c++ {
		got, ok := ChannelByID(c.ID())
		if !ok || got != c {
			t.Errorf("ChannelByID(%q) = %v, %v", c.ID(), got, ok)
		}
	}
	if _, ok := ChannelByID("relay-bogus"); ok {
		t.Error("ChannelByID accepted unknown id")
	}
}

func TestProfileLabels(t *testing.T) {
	if ProfileStandard.Label(ChannelMarker) != "MARKER" {
		t.Error("standard marker label wrong")
	}
	if ProfileHeavyDuty.Label(ChannelMarker) != "REVERSE" {
		t.Error("heavy-duty marker label wrong")
	}
	if ProfileHeavyDuty.Label(ChannelAux) != "E-BRAKE" {
		t.Error("heavy-duty aux label wrong")
	}
	if ProfileStandard.Toggle() != ProfileHeavyDuty || ProfileHeavyDuty.Toggle() != ProfileStandard {
		t.Error("profile toggle broken")
	}
}

func TestSingleActive(t *testing.T) {
	a := NewArbiter(ProfileStandard)

	a.Tick(PositionBrake, false, nil, nil)
	c, ok := a.Outputs().SingleActive()
	if !ok || c != ChannelBrake {
		t.Errorf("SingleActive() = %v, %v, want brake", c, ok)
	}

	a.Tick(PositionMarker, false, nil, nil) // marker + tail
	if _, ok := a.Outputs().SingleActive(); ok {
		t.Error("SingleActive() true with two relays on")
	}

	a.Tick(PositionNeutral, false, nil, nil)
	if _, ok := a.Outputs().SingleActive(); ok {
		t.Error("SingleActive() true with no relays on")
	}
}
