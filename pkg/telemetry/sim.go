package telemetry

import (
	"math/rand"
	"sync"
	"time"
)

// SimSampler is a Sampler with externally settable channel values, used by
// the reference device binary and by tests. Values can be nudged with a
// small amount of noise to resemble real ADC readings.
type SimSampler struct {
	mu sync.Mutex

	sourceVolts Reading
	loadAmps    Reading
	outputVolts Reading
	coilAmps    Reading

	// NoiseVolts/NoiseAmps set the +/- amplitude of uniform noise applied
	// to available readings. Zero disables noise (tests).
	NoiseVolts float64
	NoiseAmps  float64

	rng *rand.Rand
}

// NewSimSampler creates a simulated sampler with healthy idle defaults:
// a charged 12 V battery, no load, outputs following the source.
func NewSimSampler() *SimSampler {
	return &SimSampler{
		sourceVolts: Avail(12.8),
		loadAmps:    Avail(0),
		outputVolts: Avail(12.8),
		coilAmps:    Avail(0),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetSourceVolts sets the source voltage channel.
func (s *SimSampler) SetSourceVolts(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceVolts = r
}

// SetLoadAmps sets the load current channel.
func (s *SimSampler) SetLoadAmps(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadAmps = r
}

// SetOutputVolts sets the output voltage channel.
func (s *SimSampler) SetOutputVolts(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputVolts = r
}

// SetCoilAmps sets the relay coil current channel.
func (s *SimSampler) SetCoilAmps(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coilAmps = r
}

// Sample returns the current simulated readings.
func (s *SimSampler) Sample(now time.Time) Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Sample{
		SourceVolts: s.noisy(s.sourceVolts, s.NoiseVolts),
		LoadAmps:    s.noisy(s.loadAmps, s.NoiseAmps),
		OutputVolts: s.noisy(s.outputVolts, s.NoiseVolts),
		CoilAmps:    s.noisy(s.coilAmps, s.NoiseAmps),
		At:          now,
	}
}

func (s *SimSampler) noisy(r Reading, amplitude float64) Reading {
	if !r.Valid || amplitude == 0 {
		return r
	}
	return Avail(r.Value + (s.rng.Float64()*2-1)*amplitude)
}

// Compile-time interface satisfaction check.
var _ Sampler = (*SimSampler)(nil)
