// Command hitchlink-remote is the wireless remote for the trailer tester.
//
// It discovers testers via mDNS, pairs using the printed setup code,
// mirrors the device state from its telemetry frames and sends relay
// toggles over the attribute channel. Writes are speculative: the mirror
// flips immediately and rolls back if no frame confirms the state within
// the ack window.
//
// Usage:
//
//	hitchlink-remote [flags]
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-setup-code string  8-digit pairing code of the target device
//	-device string      Device id to connect to at startup
//	-addr string        Device address, skipping discovery
//	-known string       Known-devices cache file path
//	-interface string   Restrict mDNS to one network interface
//	-log-level string   Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Browse for testers, then connect from the console
//	hitchlink-remote -setup-code 31415926
//
//	# Connect straight to a known tester
//	hitchlink-remote -setup-code 31415926 -device bench-01
//
// Interactive Commands:
//
//	discover [secs]        - Browse for testers via mDNS
//	devices                - List remembered devices
//	connect <id> [addr]    - Connect to a tester
//	disconnect             - Drop the current link
//	toggle <relay>         - Toggle one relay (pass-through mode)
//	set <relay> on|off     - Set one relay
//	status                 - Show link and device state
//	refresh                - Request an immediate frame
//	watch on|off           - Print every incoming frame
//	forget <id>            - Drop a device from the cache
//	quit                   - Exit
package main

import (
	"flag"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hitchlink/hitchlink-go/pkg/config"
	"github.com/hitchlink/hitchlink-go/pkg/discovery"
	"github.com/hitchlink/hitchlink-go/pkg/persistence"
)

// Flags holds the command line configuration.
type Flags struct {
	ConfigFile string
	SetupCode  string
	Device     string
	Addr       string
	KnownPath  string
	Interface  string
	LogLevel   string
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.SetupCode, "setup-code", "", "8-digit pairing code of the target device")
	flag.StringVar(&flags.Device, "device", "", "Device id to connect to at startup")
	flag.StringVar(&flags.Addr, "addr", "", "Device address, skipping discovery")
	flag.StringVar(&flags.KnownPath, "known", "", "Known-devices cache file path")
	flag.StringVar(&flags.Interface, "interface", "", "Restrict mDNS to one network interface")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()
	setupLogging(flags.LogLevel)

	cfg, err := loadConfig()
	if err != nil {
		stdlog.Fatalf("Invalid configuration: %v", err)
	}

	known := persistence.NewKnownDeviceStore(cfg.KnownDevicesPath)
	if err := known.Load(); err != nil {
		stdlog.Printf("Warning: failed to load device cache: %v", err)
	}

	browser := discovery.NewBrowser(cfg.Interface)

	quitCh := make(chan struct{})
	console, err := newConsole(cfg, known, browser, quitCh)
	if err != nil {
		stdlog.Fatalf("Failed to create console: %v", err)
	}
	stdlog.SetOutput(console.Stdout())
	go console.Run()

	if flags.Device != "" {
		go console.autoConnect(flags.Device, flags.Addr)
	} else if flags.Addr != "" {
		stdlog.Println("Warning: -addr requires -device (the id salts the pairing key); ignoring")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		stdlog.Printf("Received signal: %v", sig)
	case <-quitCh:
	}

	stdlog.Println("Shutting down...")
	console.disconnect()
	stdlog.Println("Goodbye!")
}

// loadConfig merges the defaults, the optional config file and the
// command line flags, in that order of increasing precedence.
func loadConfig() (*config.ClientConfig, error) {
	cfg := config.DefaultClientConfig()
	if flags.ConfigFile != "" {
		loaded, err := config.LoadClientConfig(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.SetupCode != "" {
		cfg.SetupCode = flags.SetupCode
	}
	if flags.KnownPath != "" {
		cfg.KnownDevicesPath = flags.KnownPath
	}
	if flags.Interface != "" {
		cfg.Interface = flags.Interface
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
