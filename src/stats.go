// stats.go - stats & control surface (spec §6 "Observability surface")

package bridge

// Stats is the read-only snapshot exported to the host shell: state,
// channel/period geometry, and the two ratio readouts (spec §6).
type Stats struct {
	Enabled      bool
	StatsEnabled bool

	State DeviceState

	NumChannels    int
	NumPeriods     int
	PeriodSize     int
	FullBufferSize int

	RatioActive   float64 // the ratio currently applied inside the resampler
	RatioFiltered float64 // the continuously computed drift-filter ratio
}

// Stats snapshots the orchestrator's current observability surface. Safe to
// call from any goroutine; every field is read via an atomic or a value
// that is only ever replaced, never mutated in place, once wired.
func (o *Orchestrator) Stats() Stats {
	s := Stats{
		Enabled:        o.Enabled(),
		StatsEnabled:   o.statsEnabled.Load(),
		State:          o.pb.State.Load(),
		NumChannels:    o.pb.Hardware.Channels,
		NumPeriods:     o.pb.Hardware.NumPeriods,
		PeriodSize:     o.pb.Hardware.PeriodSize,
		FullBufferSize: o.pb.Hardware.FullBufferSize(),
	}
	if o.resampler != nil {
		s.RatioActive = o.resampler.Ratio()
	}
	if o.pb.Drift != nil {
		s.RatioFiltered = o.pb.Drift.RBRatio
	}
	return s
}

// SetStatsEnabled toggles whether the shell should bother polling Stats; it
// does not affect audio processing (spec §6 "stats_enabled (in)").
func (o *Orchestrator) SetStatsEnabled(v bool) { o.statsEnabled.Store(v) }
