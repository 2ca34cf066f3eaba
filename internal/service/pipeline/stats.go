package pipeline

import "time"

// StageStats accumulates outcomes of one stage since the pipeline was built.
type StageStats struct {
	Runs         int64         `json:"runs"`
	Fallbacks    int64         `json:"fallbacks"`
	Failures     int64         `json:"failures"`
	TotalLatency time.Duration `json:"total_latency"`
	LastError    string        `json:"last_error,omitempty"`
}

func (s StageStats) MeanLatency() time.Duration {
	if s.Runs == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Runs)
}

// SuccessRate counts fallbacks as failures of the primary operation.
func (s StageStats) SuccessRate() float64 {
	if s.Runs == 0 {
		return 1
	}
	return float64(s.Runs-s.Failures-s.Fallbacks) / float64(s.Runs)
}

// Stats returns a copy of the per-stage counters keyed by stage name.
func (p *Pipeline[T]) Stats() map[string]StageStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]StageStats, len(p.stats))
	for name, s := range p.stats {
		out[name] = *s
	}
	return out
}
