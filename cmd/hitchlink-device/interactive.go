package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/hitchlink/hitchlink-go/pkg/config"
	"github.com/hitchlink/hitchlink-go/pkg/device"
	"github.com/hitchlink/hitchlink-go/pkg/discovery"
	"github.com/hitchlink/hitchlink-go/pkg/persistence"
	"github.com/hitchlink/hitchlink-go/pkg/protection"
	"github.com/hitchlink/hitchlink-go/pkg/relay"
	"github.com/hitchlink/hitchlink-go/pkg/telemetry"
	"github.com/hitchlink/hitchlink-go/pkg/transport"
	"github.com/hitchlink/hitchlink-go/pkg/wire"
)

// Console is the interactive front panel: it stands in for the physical
// selector, the clear button and the threshold knobs, and can inject
// telemetry faults against the simulator.
type Console struct {
	cfg        *config.DeviceConfig
	svc        *device.Service
	sampler    *telemetry.SimSampler
	stateStore *persistence.DeviceStateStore
	advertiser *discovery.Advertiser
	server     *transport.Server
	quit       chan<- struct{}

	rl *readline.Instance
}

func newConsole(cfg *config.DeviceConfig, svc *device.Service, sampler *telemetry.SimSampler,
	stateStore *persistence.DeviceStateStore, advertiser *discovery.Advertiser,
	server *transport.Server, quit chan<- struct{}) (*Console, error) {

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tester> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{
		cfg:        cfg,
		svc:        svc,
		sampler:    sampler,
		stateStore: stateStore,
		advertiser: advertiser,
		server:     server,
		quit:       quit,
		rl:         rl,
	}, nil
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use it for log output to avoid garbling the input line.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run starts the command loop. It returns when the operator quits.
func (c *Console) Run() {
	defer c.rl.Close()

	c.printHelp()

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			close(c.quit)
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "selector", "sel":
			c.cmdSelector(args)

		case "profile":
			c.cmdProfile(args)

		case "set":
			c.cmdSet(args)

		case "bypass":
			c.cmdBypass(args)

		case "clear":
			c.cmdClear()

		case "sim":
			c.cmdSim(args)

		case "remote":
			c.cmdRemote(args)

		case "status":
			c.cmdStatus()

		case "stats":
			c.cmdStats()

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			close(c.quit)
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Trailer Tester Commands:
  Front Panel:
    selector <pos>        - Move the selector (1-8 or neutral, pass,
                            left, right, brake, tail, marker, aux)
    profile [name]        - Show or switch profile (standard, heavy-duty)
    clear                 - Authorize clearing current-based faults
                            (selector must then sit in neutral)

  Protection:
    set lvp <volts>       - Low-voltage cutoff (clamped 10.0-13.0)
    set ocp <amps>        - Overcurrent limit (clamped 5.0-25.5)
    set outv <volts>      - Output undervoltage cutoff (clamped 8.0-16.0)
    bypass lvp|outv on|off

  Simulation:
    sim source <v>        - Pin the source voltage
    sim load <a>          - Pin the load current
    sim output <v>        - Pin the output voltage
    sim coil <a>          - Pin the coil current
    sim <channel> none    - Report the channel unavailable
    sim <channel> auto    - Return the channel to the simulation
    remote <ch> on|off    - Drive a remote-signal circuit (tow plug,
                            honored in pass-through)

  General:
    status                - Show device status
    stats                 - Show loop counters
    quit                  - Exit`)
}

func (c *Console) cmdSelector(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(c.rl.Stdout(), "Selector: %s\n", c.svc.Selector())
		return
	}

	pos, ok := parsePosition(args[0])
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "Unknown position: %s\n", args[0])
		return
	}
	c.svc.SetSelector(pos)
	fmt.Fprintf(c.rl.Stdout(), "Selector -> %s\n", pos)
}

func parsePosition(s string) (relay.Position, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		pos := relay.Position(n)
		return pos, pos.IsValid()
	}
	switch strings.ToLower(s) {
	case "neutral", "off":
		return relay.PositionNeutral, true
	case "pass", "passthrough":
		return relay.PositionPassthrough, true
	case "left":
		return relay.PositionLeft, true
	case "right":
		return relay.PositionRight, true
	case "brake":
		return relay.PositionBrake, true
	case "tail":
		return relay.PositionTail, true
	case "marker", "reverse":
		return relay.PositionMarker, true
	case "aux", "e-brake", "ebrake":
		return relay.PositionAux, true
	}
	return 0, false
}

func (c *Console) cmdProfile(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(c.rl.Stdout(), "Profile: %s\n", c.svc.Profile())
		return
	}

	var p relay.Profile
	switch strings.ToLower(args[0]) {
	case "standard", "std":
		p = relay.ProfileStandard
	case "heavy-duty", "heavy_duty", "hd":
		p = relay.ProfileHeavyDuty
	case "toggle":
		p = c.svc.Profile().Toggle()
	default:
		fmt.Fprintf(c.rl.Stdout(), "Unknown profile: %s\n", args[0])
		return
	}

	c.svc.SetProfile(p)
	c.persistAndReadvertise()
	fmt.Fprintf(c.rl.Stdout(), "Profile -> %s\n", p)
}

func (c *Console) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: set lvp|ocp|outv <value>")
		return
	}

	v, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid value: %v\n", err)
		return
	}

	engine := c.svc.Engine()
	var applied float64
	switch strings.ToLower(args[0]) {
	case "lvp":
		applied = engine.SetLVPCutoff(v)
	case "ocp":
		applied = engine.SetOCPLimit(v)
	case "outv":
		applied = engine.SetOUTVCutoff(v)
	default:
		fmt.Fprintf(c.rl.Stdout(), "Unknown threshold: %s\n", args[0])
		return
	}

	c.persistAndReadvertise()
	if applied != v {
		fmt.Fprintf(c.rl.Stdout(), "Clamped to %.1f\n", applied)
	} else {
		fmt.Fprintf(c.rl.Stdout(), "Set to %.1f\n", applied)
	}
}

func (c *Console) cmdBypass(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: bypass lvp|outv on|off")
		return
	}

	on := strings.EqualFold(args[1], "on")
	engine := c.svc.Engine()
	switch strings.ToLower(args[0]) {
	case "lvp":
		engine.SetLVPBypass(on)
	case "outv":
		engine.SetOUTVBypass(on)
	default:
		fmt.Fprintf(c.rl.Stdout(), "Unknown bypass: %s\n", args[0])
		return
	}

	c.persistAndReadvertise()
	state := "off"
	if on {
		state = "on"
	}
	fmt.Fprintf(c.rl.Stdout(), "Bypass %s -> %s\n", strings.ToUpper(args[0]), state)
}

func (c *Console) cmdClear() {
	c.svc.AuthorizeClear()
	fmt.Fprintln(c.rl.Stdout(), "Clear authorized. Move the selector to neutral to clear current faults.")
}

func (c *Console) cmdSim(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: sim source|load|output|coil <value>|none|auto")
		return
	}

	channel := strings.ToLower(args[0])
	arg := strings.ToLower(args[1])

	var reading telemetry.Reading
	pinned := true
	switch arg {
	case "none", "unavail":
		reading = telemetry.Unavail()
	case "auto":
		pinned = false
	default:
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Invalid value: %v\n", err)
			return
		}
		reading = telemetry.Avail(v)
	}

	switch channel {
	case "source":
		// The source channel is operator-driven even in auto mode; auto
		// just restores the healthy default.
		if !pinned {
			reading = telemetry.Avail(12.8)
		}
		c.sampler.SetSourceVolts(reading)
	case "load":
		if pinned {
			r := reading
			simPins.load.Store(&r)
			c.sampler.SetLoadAmps(reading)
		} else {
			simPins.load.Store(nil)
		}
	case "output":
		if pinned {
			r := reading
			simPins.output.Store(&r)
			c.sampler.SetOutputVolts(reading)
		} else {
			simPins.output.Store(nil)
		}
	case "coil":
		if pinned {
			r := reading
			simPins.coil.Store(&r)
			c.sampler.SetCoilAmps(reading)
		} else {
			simPins.coil.Store(nil)
		}
	default:
		fmt.Fprintf(c.rl.Stdout(), "Unknown channel: %s\n", channel)
		return
	}

	fmt.Fprintln(c.rl.Stdout(), "OK")
}

func (c *Console) cmdRemote(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: remote <channel> on|off")
		return
	}

	ch, ok := parseChannel(args[0])
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "Unknown channel: %s\n", args[0])
		return
	}
	on := strings.EqualFold(args[1], "on")

	c.svc.SetRemoteSignal(ch, on)
	state := "off"
	if on {
		state = "on"
	}
	fmt.Fprintf(c.rl.Stdout(), "Remote signal %s -> %s\n", ch.ID(), state)
}

// parseChannel accepts either a full wire id or a bare channel name.
func parseChannel(s string) (relay.Channel, bool) {
	s = strings.ToLower(s)
	if ch, ok := relay.ChannelByID(s); ok {
		return ch, true
	}
	return relay.ChannelByID("relay-" + s)
}

func (c *Console) cmdStatus() {
	out := c.rl.Stdout()
	now := time.Now()
	frame := c.svc.BuildFrame(now)
	engine := c.svc.Engine()
	engCfg := engine.Config()

	fmt.Fprintln(out, "\nDevice Status")
	fmt.Fprintln(out, "-------------------------------------------")
	fmt.Fprintf(out, "  Device ID:   %s\n", c.cfg.DeviceID)
	fmt.Fprintf(out, "  Selector:    %s\n", c.svc.Selector())
	fmt.Fprintf(out, "  Mode:        %s\n", frame.Mode)
	fmt.Fprintf(out, "  Active:      %s\n", frame.ActiveLabel)
	fmt.Fprintf(out, "  Profile:     %s\n", c.svc.Profile())
	fmt.Fprintf(out, "  Sessions:    %d\n", c.server.SessionCount())

	fmt.Fprintf(out, "  Relays:      %s\n", formatRelays(frame.RelayMask, c.svc.Profile()))

	fmt.Fprintf(out, "  Telemetry:   %s\n", formatTelemetry(frame))

	fmt.Fprintf(out, "  Thresholds:  LVP %.1f V  OCP %.1f A  OUTV %.1f V\n",
		engCfg.LVPCutoffVolts, engCfg.OCPLimitAmps, engCfg.OUTVCutoffVolts)
	if engCfg.LVPBypass || engCfg.OUTVBypass {
		fmt.Fprintf(out, "  Bypasses:    LVP=%t OUTV=%t\n", engCfg.LVPBypass, engCfg.OUTVBypass)
	}

	for k := protection.Kind(0); k < protection.KindCount; k++ {
		latch := engine.Latch(k)
		if !latch.Active {
			continue
		}
		line := fmt.Sprintf("  FAULT %s (tripped %s", k, latch.TrippedAt.Format("15:04:05"))
		if latch.SuspectRelay != protection.NoSuspect {
			line += ", suspect " + relay.Channel(latch.SuspectRelay).ID()
		}
		fmt.Fprintln(out, line+")")
	}
	if engine.SensorFault() {
		fmt.Fprintln(out, "  SENSOR: telemetry channel unavailable")
	}
	if engine.StartupGuard() {
		fmt.Fprintln(out, "  STARTUP GUARD: move selector to neutral")
	}
	if engine.CooldownActive(now) {
		fmt.Fprintf(out, "  COOLDOWN: %ds remaining\n", frame.CooldownSecs)
	}
	if engine.ClearAuthorized() {
		fmt.Fprintln(out, "  Clear authorized (waiting for neutral)")
	}
	fmt.Fprintln(out)
}

func (c *Console) cmdStats() {
	stats := c.svc.Stats()
	out := c.rl.Stdout()
	fmt.Fprintln(out, "\nLoop Counters")
	fmt.Fprintln(out, "-------------------------------------------")
	fmt.Fprintf(out, "  Ticks:             %d\n", stats.Ticks)
	fmt.Fprintf(out, "  Frames published:  %d\n", stats.FramesPublished)
	fmt.Fprintf(out, "  Commands accepted: %d\n", stats.CommandsAccepted)
	fmt.Fprintf(out, "  Commands dropped:  %d\n", stats.CommandsDropped)
	fmt.Fprintf(out, "  Selector changes:  %d\n", stats.SelectorChanges)
	fmt.Fprintln(out)
}

// persistAndReadvertise saves the current settings and refreshes the
// mDNS TXT records after an operator change.
func (c *Console) persistAndReadvertise() {
	if err := saveState(c.stateStore, c.svc); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Warning: failed to save state: %v\n", err)
	}
	if c.advertiser != nil {
		_ = c.advertiser.Update(advertiseInfo(c.cfg, c.svc, c.server))
	}
}

func formatRelays(mask uint8, profile relay.Profile) string {
	var on []string
	for ch := relay.Channel(0); ch < relay.ChannelCount; ch++ {
		if mask&(1<<uint(ch)) != 0 {
			on = append(on, profile.Label(ch))
		}
	}
	if len(on) == 0 {
		return "all off"
	}
	return strings.Join(on, ", ")
}

func formatTelemetry(f *wire.Frame) string {
	part := func(label string, v *float64, unit string) string {
		if v == nil {
			return label + " n/a"
		}
		return fmt.Sprintf("%s %.2f %s", label, *v, unit)
	}
	return strings.Join([]string{
		part("source", f.SourceVolts, "V"),
		part("load", f.LoadAmps, "A"),
		part("output", f.OutputVolts, "V"),
	}, "  ")
}
