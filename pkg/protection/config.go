package protection

// Hard safety bounds. Every config write is clamped to these on entry;
// persisted values outside them are pulled back in at load.
const (
	// LVPCutoffMinVolts / LVPCutoffMaxVolts bound the low-voltage cutoff.
	// The range covers 12 V lead-acid and LiFePO4 chemistries.
	LVPCutoffMinVolts = 10.0
	LVPCutoffMaxVolts = 13.0

	// OCPLimitMinAmps / OCPLimitMaxAmps bound the overcurrent limit.
	OCPLimitMinAmps = 5.0
	OCPLimitMaxAmps = 25.5

	// OUTVCutoffMinVolts / OUTVCutoffMaxVolts bound the output
	// undervoltage cutoff.
	OUTVCutoffMinVolts = 8.0
	OUTVCutoffMaxVolts = 16.0
)

// Config holds the runtime protection thresholds and bypasses.
// Loaded at boot from persisted storage, mutable via the engine's setters.
type Config struct {
	LVPCutoffVolts  float64
	OCPLimitAmps    float64
	OUTVCutoffVolts float64
	LVPBypass       bool
	OUTVBypass      bool
}

// DefaultConfig returns the factory thresholds.
func DefaultConfig() Config {
	return Config{
		LVPCutoffVolts:  11.0,
		OCPLimitAmps:    20.0,
		OUTVCutoffVolts: 10.5,
	}
}

// clamped returns the config with every threshold pulled into its hard
// safety bounds.
func (c Config) clamped() Config {
	c.LVPCutoffVolts = clamp(c.LVPCutoffVolts, LVPCutoffMinVolts, LVPCutoffMaxVolts)
	c.OCPLimitAmps = clamp(c.OCPLimitAmps, OCPLimitMinAmps, OCPLimitMaxAmps)
	c.OUTVCutoffVolts = clamp(c.OUTVCutoffVolts, OUTVCutoffMinVolts, OUTVCutoffMaxVolts)
	return c
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
