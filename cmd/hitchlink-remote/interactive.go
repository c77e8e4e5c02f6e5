package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/hitchlink/hitchlink-go/pkg/config"
	"github.com/hitchlink/hitchlink-go/pkg/connection"
	"github.com/hitchlink/hitchlink-go/pkg/discovery"
	"github.com/hitchlink/hitchlink-go/pkg/pairing"
	"github.com/hitchlink/hitchlink-go/pkg/persistence"
	"github.com/hitchlink/hitchlink-go/pkg/relay"
	"github.com/hitchlink/hitchlink-go/pkg/wire"
)

// connectTimeout bounds the caller-driven connect, discovery included.
const connectTimeout = 15 * time.Second

// Console is the remote's interactive command loop.
type Console struct {
	cfg     *config.ClientConfig
	known   *persistence.KnownDeviceStore
	browser *discovery.Browser
	quit    chan<- struct{}

	rl *readline.Instance

	mu    sync.Mutex
	link  *link
	watch bool
}

func newConsole(cfg *config.ClientConfig, known *persistence.KnownDeviceStore,
	browser *discovery.Browser, quit chan<- struct{}) (*Console, error) {

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "remote> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{
		cfg:     cfg,
		known:   known,
		browser: browser,
		quit:    quit,
		rl:      rl,
	}, nil
}

// Stdout returns a writer that coordinates with the readline prompt.
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

		case "discover":
			c.cmdDiscover(args)

		case "devices", "list", "ls":
			c.cmdDevices()

		case "connect":
			c.cmdConnect(args)

		case "disconnect":
			c.disconnect()
			fmt.Fprintln(c.rl.Stdout(), "Disconnected")

		case "toggle", "t":
			c.cmdToggle(args)

		case "set":
			c.cmdSet(args)

		case "status":
			c.cmdStatus()

		case "refresh":
			c.cmdRefresh()

		case "watch":
			c.cmdWatch(args)

		case "forget":
			c.cmdForget(args)

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
Remote Commands:
  Discovery & Connection:
    discover [secs]      - Browse for testers via mDNS (default 5s)
    devices              - List remembered devices
    connect <id> [addr]  - Connect to a tester
    disconnect           - Drop the current link
    forget <id>          - Drop a device from the cache

  Control (selector must be in pass-through):
    toggle <relay>       - Toggle one relay
    set <relay> on|off   - Set one relay
    refresh              - Request an immediate frame

  Relays:
    left, right, brake, tail, marker, aux (or full relay-* ids)

  General:
    status               - Show link and device state
    watch on|off         - Print every incoming frame
    quit                 - Exit`)
}

// autoConnect is invoked from main for the -device / -addr flags.
func (c *Console) autoConnect(deviceID, addr string) {
	args := []string{deviceID}
	if addr != "" {
		args = append(args, addr)
	}
	c.cmdConnect(args)
}

func (c *Console) cmdDiscover(args []string) {
	secs := 5
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			secs = n
		}
	}

	fmt.Fprintf(c.rl.Stdout(), "Browsing for %ds...\n", secs)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(secs)*time.Second)
	defer cancel()

	results, err := c.browser.Browse(ctx)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Discovery error: %v\n", err)
		return
	}

	found := 0
	for svc := range results {
		found++
		fmt.Fprintf(c.rl.Stdout(), "  %d. %s (%s) at %s profile=%s\n",
			found, svc.DeviceID, svc.Name, svc.Addr(), svc.Profile)

		// Remember every sighting so connect works without discovery
		// next time.
		_ = c.known.Upsert(persistence.KnownDevice{
			ID:   svc.DeviceID,
			Name: svc.Name,
			Addr: svc.Addr(),
		})
	}
	if found == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No testers found")
	}
}

func (c *Console) cmdDevices() {
	devices := c.known.All()
	if len(devices) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No remembered devices")
		return
	}

	fmt.Fprintf(c.rl.Stdout(), "\nRemembered Devices (%d):\n", len(devices))
	fmt.Fprintln(c.rl.Stdout(), "-------------------------------------------")
	for _, d := range devices {
		fmt.Fprintf(c.rl.Stdout(), "  ID: %s\n", d.ID)
		if d.Name != "" {
			fmt.Fprintf(c.rl.Stdout(), "      Name: %s\n", d.Name)
		}
		if d.Addr != "" {
			fmt.Fprintf(c.rl.Stdout(), "      Addr: %s\n", d.Addr)
		}
		fmt.Fprintf(c.rl.Stdout(), "      Last seen: %s\n", d.LastSeenAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintln(c.rl.Stdout())
	}
}

func (c *Console) cmdConnect(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: connect <device-id> [addr]")
		return
	}
	if c.cfg.SetupCode == "" {
		fmt.Fprintln(c.rl.Stdout(), "No setup code configured (use -setup-code)")
		return
	}

	deviceID := args[0]
	var addr string
	if len(args) > 1 {
		addr = args[1]
	}

	// Resolve the address: explicit argument, the device cache, then a
	// fresh discovery pass.
	if addr == "" {
		if d, ok := c.known.Get(deviceID); ok && d.Addr != "" {
			addr = d.Addr
		}
	}
	if addr == "" {
		fmt.Fprintf(c.rl.Stdout(), "Looking for %s...\n", deviceID)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		svc, err := c.browser.FindByID(ctx, deviceID)
		cancel()
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Device not found: %v\n", err)
			return
		}
		addr = svc.Addr()
	}

	key, err := pairing.DeriveSessionKey(c.cfg.SetupCode, deviceID)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Key derivation failed: %v\n", err)
		return
	}

	// One link at a time.
	c.disconnect()

	l := newLink(deviceID, addr, key, linkConfig{
		ackTimeout:       c.cfg.AckTimeout,
		heartbeatTimeout: c.cfg.HeartbeatTimeout,
		onError: func(relayID string, err error) {
			fmt.Fprintf(c.rl.Stdout(), "\n[%s] %s rolled back: %v\n",
				time.Now().Format("15:04:05"), relayID, err)
			c.rl.Refresh()
		},
		onStale: func() {
			fmt.Fprintf(c.rl.Stdout(), "\n[%s] link stale: no frame within the heartbeat window\n",
				time.Now().Format("15:04:05"))
			c.rl.Refresh()
		},
		onFrame: c.handleFrame,
		onRetry: func(attempt int, delay time.Duration) {
			fmt.Fprintf(c.rl.Stdout(), "\n[%s] reconnect attempt %d in %s\n",
				time.Now().Format("15:04:05"), attempt, delay.Round(time.Millisecond))
			c.rl.Refresh()
		},
		onState: func(from, to connection.State) {
			if to == connection.StateConnected {
				fmt.Fprintf(c.rl.Stdout(), "\n[%s] link up\n", time.Now().Format("15:04:05"))
				c.rl.Refresh()
			}
		},
	})

	fmt.Fprintf(c.rl.Stdout(), "Connecting to %s at %s...\n", deviceID, addr)
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	err = l.connect(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Connect failed: %v\n", err)
		l.close()
		return
	}

	c.mu.Lock()
	c.link = l
	c.mu.Unlock()

	_ = c.known.Upsert(persistence.KnownDevice{ID: deviceID, Addr: addr})
	fmt.Fprintln(c.rl.Stdout(), "Connected")
}

// disconnect drops the current link, if any. Safe to call when idle.
func (c *Console) disconnect() {
	c.mu.Lock()
	l := c.link
	c.link = nil
	c.mu.Unlock()
	if l != nil {
		l.close()
	}
}

func (c *Console) currentLink() *link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

func (c *Console) cmdToggle(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: toggle <relay>")
		return
	}
	l := c.currentLink()
	if l == nil {
		fmt.Fprintln(c.rl.Stdout(), "Not connected")
		return
	}

	relayID, ok := resolveRelayID(args[0])
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "Unknown relay: %s\n", args[0])
		return
	}

	if err := l.store.Toggle(relayID); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Toggle failed: %v\n", err)
		return
	}
	on, _ := l.store.Relay(relayID)
	fmt.Fprintf(c.rl.Stdout(), "%s -> %s (awaiting confirmation)\n", relayID, onOff(on))
}

func (c *Console) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: set <relay> on|off")
		return
	}
	l := c.currentLink()
	if l == nil {
		fmt.Fprintln(c.rl.Stdout(), "Not connected")
		return
	}

	relayID, ok := resolveRelayID(args[0])
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "Unknown relay: %s\n", args[0])
		return
	}
	on := strings.EqualFold(args[1], "on")

	if err := l.store.Set(relayID, on); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Set failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "%s -> %s (awaiting confirmation)\n", relayID, onOff(on))
}

func (c *Console) cmdStatus() {
	out := c.rl.Stdout()
	l := c.currentLink()
	if l == nil {
		fmt.Fprintln(out, "Not connected")
		return
	}

	fmt.Fprintln(out, "\nLink Status")
	fmt.Fprintln(out, "-------------------------------------------")
	fmt.Fprintf(out, "  Device:   %s at %s\n", l.deviceID, l.addr)
	fmt.Fprintf(out, "  State:    %s\n", l.mgr.State())
	fmt.Fprintf(out, "  Stale:    %t\n", l.store.Stale())
	fmt.Fprintf(out, "  Pending:  %d\n", l.store.PendingCount())

	f, at := l.store.LastFrame()
	if f == nil {
		fmt.Fprintln(out, "  No frame received yet")
		fmt.Fprintln(out)
		return
	}
	fmt.Fprintf(out, "  Last frame (%s ago):\n", time.Since(at).Round(time.Millisecond))
	fmt.Fprintf(out, "    %s\n", formatFrame(f))

	relays := l.store.Relays()
	var on []string
	for ch := relay.Channel(0); ch < relay.ChannelCount; ch++ {
		if relays[ch.ID()] {
			on = append(on, ch.ID())
		}
	}
	if len(on) == 0 {
		fmt.Fprintln(out, "    relays: all off")
	} else {
		fmt.Fprintf(out, "    relays: %s\n", strings.Join(on, ", "))
	}
	fmt.Fprintln(out)
}

func (c *Console) cmdRefresh() {
	l := c.currentLink()
	if l == nil {
		fmt.Fprintln(c.rl.Stdout(), "Not connected")
		return
	}
	if err := l.refresh(); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Refresh failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), "Refresh requested")
}

func (c *Console) cmdWatch(args []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(args) < 1 {
		fmt.Fprintf(c.rl.Stdout(), "Watch: %s\n", onOff(c.watch))
		return
	}
	c.watch = strings.EqualFold(args[0], "on")
	fmt.Fprintf(c.rl.Stdout(), "Watch %s\n", onOff(c.watch))
}

func (c *Console) cmdForget(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: forget <device-id>")
		return
	}
	if err := c.known.Remove(args[0]); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), "Forgotten")
}

// handleFrame is the store's OnFrame callback.
func (c *Console) handleFrame(f *wire.Frame) {
	c.mu.Lock()
	watch := c.watch
	c.mu.Unlock()
	if !watch {
		return
	}

	fmt.Fprintf(c.rl.Stdout(), "\n[%s] %s\n", time.Now().Format("15:04:05"), formatFrame(f))
	c.rl.Refresh()
}

// formatFrame renders one frame as a single status line.
func formatFrame(f *wire.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q relays=%06b", f.Mode, f.ActiveLabel, f.RelayMask)

	if f.SourceVolts != nil {
		fmt.Fprintf(&b, " src=%.2fV", *f.SourceVolts)
	}
	if f.LoadAmps != nil {
		fmt.Fprintf(&b, " load=%.2fA", *f.LoadAmps)
	}
	if f.OutputVolts != nil {
		fmt.Fprintf(&b, " out=%.2fV", *f.OutputVolts)
	}

	if f.FaultMask != 0 {
		b.WriteString(" faults=" + strings.Join(faultNames(f.FaultMask), ","))
	}
	if f.StatusFlags&wire.FlagCooldownActive != 0 {
		fmt.Fprintf(&b, " cooldown=%ds", f.CooldownSecs)
	}
	if f.StatusFlags&wire.FlagStartupGuard != 0 {
		b.WriteString(" guard")
	}
	return b.String()
}

func faultNames(mask uint8) []string {
	var names []string
	if mask&wire.FaultLVP != 0 {
		names = append(names, "LVP")
	}
	if mask&wire.FaultOCP != 0 {
		names = append(names, "OCP")
	}
	if mask&wire.FaultOUTV != 0 {
		names = append(names, "OUTV")
	}
	if mask&wire.FaultRelayCoil != 0 {
		names = append(names, "RELAY_COIL")
	}
	if mask&wire.FaultSensor != 0 {
		names = append(names, "SENSOR")
	}
	return names
}

// resolveRelayID accepts either a full wire id or a bare channel name.
func resolveRelayID(s string) (string, bool) {
	s = strings.ToLower(s)
	if _, ok := relay.ChannelByID(s); ok {
		return s, true
	}
	full := "relay-" + s
	if _, ok := relay.ChannelByID(full); ok {
		return full, true
	}
	return "", false
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
