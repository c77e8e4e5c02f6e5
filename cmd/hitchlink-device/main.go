// Command hitchlink-device runs the trailer-lighting test controller.
//
// It drives the six relay channels from the selector, the remote-signal
// inputs and wireless commands, runs the protection engine, publishes
// telemetry frames to connected remotes and advertises itself via mDNS.
// Telemetry comes from a built-in simulator; the interactive console can
// inject fault conditions against it.
//
// Usage:
//
//	hitchlink-device [flags]
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-id string          Device identifier (default: generated)
//	-name string        Human-readable device name
//	-listen string      Attribute channel listen address (default ":7733")
//	-setup-code string  8-digit pairing code (default "12345678")
//	-profile string     Relay profile: standard or heavy-duty
//	-state string       Persistent state file path
//	-log-level string   Log level: debug, info, warn, error (default "info")
//	-interactive        Enable the interactive console
//	-no-discovery       Disable the mDNS advertisement
//	-reset              Clear persisted state before starting
//
// Examples:
//
//	# Start with the interactive console
//	hitchlink-device -interactive
//
//	# Fixed identity with persistence
//	hitchlink-device -id bench-01 -setup-code 31415926 -state /var/lib/hitchlink/state.json
//
//	# Reset persisted thresholds and profile
//	hitchlink-device -state /var/lib/hitchlink/state.json -reset
//
// Interactive Commands:
//
//	selector <pos>   - Move the selector (1-8 or neutral/pass/left/...)
//	profile [name]   - Show or switch the relay profile
//	set <fault> <v>  - Set a protection threshold (lvp, ocp, outv)
//	bypass <f> <on>  - Toggle the LVP or OUTV bypass
//	clear            - Authorize clearing current-based faults
//	sim <ch> <v>     - Drive a simulated telemetry channel
//	remote <ch> <on> - Drive a remote-signal circuit (tow plug)
//	status           - Show device status
//	quit             - Exit
package main

import (
	"flag"
	stdlog "log"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/hitchlink/hitchlink-go/pkg/config"
	"github.com/hitchlink/hitchlink-go/pkg/device"
	"github.com/hitchlink/hitchlink-go/pkg/discovery"
	"github.com/hitchlink/hitchlink-go/pkg/log"
	"github.com/hitchlink/hitchlink-go/pkg/pairing"
	"github.com/hitchlink/hitchlink-go/pkg/persistence"
	"github.com/hitchlink/hitchlink-go/pkg/protection"
	"github.com/hitchlink/hitchlink-go/pkg/relay"
	"github.com/hitchlink/hitchlink-go/pkg/telemetry"
	"github.com/hitchlink/hitchlink-go/pkg/transport"
)

// Flags holds the command line configuration.
type Flags struct {
	ConfigFile  string
	DeviceID    string
	Name        string
	ListenAddr  string
	SetupCode   string
	Profile     string
	StatePath   string
	LogLevel    string
	Interactive bool
	NoDiscovery bool
	Reset       bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.DeviceID, "id", "", "Device identifier (default: generated)")
	flag.StringVar(&flags.Name, "name", "", "Human-readable device name")
	flag.StringVar(&flags.ListenAddr, "listen", "", "Attribute channel listen address")
	flag.StringVar(&flags.SetupCode, "setup-code", "", "8-digit pairing code")
	flag.StringVar(&flags.Profile, "profile", "", "Relay profile: standard or heavy-duty")
	flag.StringVar(&flags.StatePath, "state", "", "Persistent state file path")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable the interactive console")
	flag.BoolVar(&flags.NoDiscovery, "no-discovery", false, "Disable the mDNS advertisement")
	flag.BoolVar(&flags.Reset, "reset", false, "Clear persisted state before starting")
}

func main() {
	flag.Parse()
	setupLogging(flags.LogLevel)

	cfg, err := loadConfig()
	if err != nil {
		stdlog.Fatalf("Invalid configuration: %v", err)
	}

	stdlog.Println("HitchLink Trailer Tester")
	stdlog.Printf("Device ID:  %s", cfg.DeviceID)
	stdlog.Printf("Name:       %s", cfg.Name)
	stdlog.Printf("Setup code: %s", cfg.SetupCode)

	sessionKey, err := pairing.DeriveSessionKey(cfg.SetupCode, cfg.DeviceID)
	if err != nil {
		stdlog.Fatalf("Failed to derive session key: %v", err)
	}

	// Persistence: thresholds and profile survive restarts. Loaded values
	// are re-clamped by the engine, so a hand-edited file cannot widen
	// a safety bound.
	stateStore := persistence.NewDeviceStateStore(cfg.StatePath)
	if flags.Reset {
		stdlog.Println("Resetting persisted state...")
		if err := stateStore.Clear(); err != nil {
			stdlog.Printf("Warning: failed to clear state: %v", err)
		}
	}

	protCfg := protection.Config{
		LVPCutoffVolts:  cfg.Protection.LVPCutoffVolts,
		OCPLimitAmps:    cfg.Protection.OCPLimitAmps,
		OUTVCutoffVolts: cfg.Protection.OUTVCutoffVolts,
		LVPBypass:       cfg.Protection.LVPBypass,
		OUTVBypass:      cfg.Protection.OUTVBypass,
	}
	profile, _ := cfg.RelayProfile()

	if state, err := stateStore.Load(); err != nil {
		stdlog.Printf("Warning: failed to load state: %v", err)
	} else if state != nil {
		stdlog.Printf("Restored state from %s (saved %s)", cfg.StatePath,
			state.SavedAt.Format("2006-01-02 15:04:05"))
		protCfg = protection.Config{
			LVPCutoffVolts:  state.Protection.LVPCutoffVolts,
			OCPLimitAmps:    state.Protection.OCPLimitAmps,
			OUTVCutoffVolts: state.Protection.OUTVCutoffVolts,
			LVPBypass:       state.Protection.LVPBypass,
			OUTVBypass:      state.Protection.OUTVBypass,
		}
		if state.Profile != "" {
			profile = relay.ParseProfile(state.Profile)
		}
	}

	logger, closeLogger := buildLogger(cfg.EventLogPath, flags.LogLevel)
	defer closeLogger()

	// Simulated telemetry with a little ADC noise.
	sampler := telemetry.NewSimSampler()
	sampler.NoiseVolts = 0.02
	sampler.NoiseAmps = 0.01

	server := transport.NewServer(transport.ServerConfig{
		Addr:       cfg.ListenAddr,
		SessionKey: sessionKey,
		Logger:     logger,
	})

	svc := device.NewService(device.Config{
		Protection:     protCfg,
		Profile:        profile,
		SelectorAtBoot: relay.PositionNeutral,
		Sampler:        sampler,
		Publisher:      server,
		Logger:         logger,
	})

	server.OnCommand(svc.HandleCommand)
	server.OnConnect(func(connID string) {
		// A fresh session gets the current state without waiting out
		// the publish cadence.
		svc.RequestRefresh()
	})

	if err := server.Start(); err != nil {
		stdlog.Fatalf("Failed to start transport server: %v", err)
	}
	stdlog.Printf("Listening on %s", server.Addr())

	svc.Start()

	simStop := make(chan struct{})
	go runSimulation(svc, sampler, simStop)

	var advertiser *discovery.Advertiser
	if !cfg.DisableDiscovery {
		advertiser = discovery.NewAdvertiser(cfg.Interface)
		if err := advertiser.Advertise(advertiseInfo(cfg, svc, server)); err != nil {
			stdlog.Printf("Warning: mDNS advertisement failed: %v", err)
			advertiser = nil
		} else {
			stdlog.Printf("Advertising %s via mDNS", discovery.ServiceType)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	quitCh := make(chan struct{})

	if flags.Interactive {
		console, err := newConsole(cfg, svc, sampler, stateStore, advertiser, server, quitCh)
		if err != nil {
			stdlog.Fatalf("Failed to create console: %v", err)
		}
		stdlog.SetOutput(console.Stdout())
		go console.Run()
	}

	select {
	case sig := <-sigCh:
		stdlog.Printf("Received signal: %v", sig)
	case <-quitCh:
	}

	stdlog.Println("Shutting down...")

	if err := saveState(stateStore, svc); err != nil {
		stdlog.Printf("Warning: failed to save state: %v", err)
	}

	if advertiser != nil {
		advertiser.Stop()
	}
	close(simStop)
	server.Close()
	svc.Stop()

	stdlog.Println("Goodbye!")
}

// loadConfig merges the defaults, the optional config file and the
// command line flags, in that order of increasing precedence.
func loadConfig() (*config.DeviceConfig, error) {
	cfg := config.DefaultDeviceConfig()
	if flags.ConfigFile != "" {
		loaded, err := config.LoadDeviceConfig(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.DeviceID != "" {
		cfg.DeviceID = flags.DeviceID
	}
	if flags.Name != "" {
		cfg.Name = flags.Name
	}
	if flags.ListenAddr != "" {
		cfg.ListenAddr = flags.ListenAddr
	}
	if flags.SetupCode != "" {
		cfg.SetupCode = flags.SetupCode
	}
	if flags.Profile != "" {
		cfg.Profile = flags.Profile
	}
	if flags.StatePath != "" {
		cfg.StatePath = flags.StatePath
	}
	if flags.NoDiscovery {
		cfg.DisableDiscovery = true
	}

	if cfg.DeviceID == "" {
		cfg.DeviceID = "tester-" + uuid.New().String()[:8]
	}
	if cfg.SetupCode == "" {
		cfg.SetupCode = "12345678"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(level string) {
	stdlog.SetFlags(stdlog.Ltime | stdlog.Lmicroseconds)

	switch level {
	case "debug":
		stdlog.SetFlags(stdlog.Ltime | stdlog.Lmicroseconds | stdlog.Lshortfile)
	case "warn", "error":
		stdlog.SetFlags(stdlog.Ltime)
	}
}

// buildLogger assembles the structured event logger: a CBOR capture file
// when configured, plus the slog bridge in debug mode. The returned
// close function flushes the capture file.
func buildLogger(eventLogPath, level string) (log.Logger, func()) {
	var loggers []log.Logger
	closeFn := func() {}

	if eventLogPath != "" {
		fl, err := log.NewFileLogger(eventLogPath)
		if err != nil {
			stdlog.Printf("Warning: event log disabled: %v", err)
		} else {
			loggers = append(loggers, fl)
			closeFn = func() { _ = fl.Close() }
		}
	}
	if level == "debug" {
		loggers = append(loggers, log.NewSlogAdapter(nil))
	}

	switch len(loggers) {
	case 0:
		return log.NoopLogger{}, closeFn
	case 1:
		return loggers[0], closeFn
	default:
		return log.NewMultiLogger(loggers...), closeFn
	}
}

func advertiseInfo(cfg *config.DeviceConfig, svc *device.Service, server *transport.Server) *discovery.Info {
	info := &discovery.Info{
		DeviceID: cfg.DeviceID,
		Name:     cfg.Name,
		Profile:  svc.Profile().String(),
	}
	if addr, ok := server.Addr().(*net.TCPAddr); ok {
		info.Port = uint16(addr.Port)
	}
	return info
}

// saveState persists the engine thresholds and the active profile.
func saveState(store *persistence.DeviceStateStore, svc *device.Service) error {
	cfg := svc.Engine().Config()
	return store.Save(&persistence.DeviceState{
		Protection: persistence.ProtectionSettings{
			LVPCutoffVolts:  cfg.LVPCutoffVolts,
			OCPLimitAmps:    cfg.OCPLimitAmps,
			OUTVCutoffVolts: cfg.OUTVCutoffVolts,
			LVPBypass:       cfg.LVPBypass,
			OUTVBypass:      cfg.OUTVBypass,
		},
		Profile: svc.Profile().String(),
	})
}

// simPins marks telemetry channels the console has pinned with the sim
// command. The background simulation leaves pinned channels alone so an
// injected fault condition is not immediately overwritten.
var simPins struct {
	load   atomic.Pointer[telemetry.Reading]
	output atomic.Pointer[telemetry.Reading]
	coil   atomic.Pointer[telemetry.Reading]
}

// runSimulation keeps the simulated telemetry consistent with the relay
// outputs: coil current tracks the energized relay count, load current
// follows the lit circuits and the output rail follows the source while
// the enable gate is on. Channels the console pinned are left alone.
func runSimulation(svc *device.Service, sampler *telemetry.SimSampler, stop <-chan struct{}) {
	const (
		ampsPerCircuit = 4.2
		railDropVolts  = 0.15
	)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if simPins.coil.Load() == nil {
				out := svc.Outputs()
				draw := float64(out.ActiveCount()) * protection.CoilPerRelayAmps
				sampler.SetCoilAmps(telemetry.Avail(draw))
			}
			if simPins.load.Load() == nil {
				out := svc.Outputs()
				sampler.SetLoadAmps(telemetry.Avail(float64(out.ActiveCount()) * ampsPerCircuit))
			}
			if simPins.output.Load() == nil {
				sample := sampler.Sample(time.Now())
				if sample.SourceVolts.Valid {
					v := sample.SourceVolts.Value
					if svc.Outputs().EnableActive() {
						v -= railDropVolts
					}
					sampler.SetOutputVolts(telemetry.Avail(v))
				}
			}
		}
	}
}
