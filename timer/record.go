package timer

import (
	"math"
	"time"
)

// Record is a read-only snapshot of a timer's laps.
type Record struct {
	Laps  []time.Duration `json:"laps"`
	Total time.Duration   `json:"total"`
}

// Stats summarises a Record.
type Stats struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"min"`
	Mean  time.Duration `json:"mean"`
	Max   time.Duration `json:"max"`
	Sum   time.Duration `json:"sum"`
}

// Stats computes lap statistics. A record without laps yields the zero
// Stats.
func (r Record) Stats() Stats {
	if len(r.Laps) == 0 {
		return Stats{}
	}

	s := Stats{
		Count: len(r.Laps),
		Min:   time.Duration(math.MaxInt64),
	}

	for _, d := range r.Laps {
		s.Sum += d
		if d < s.Min {
			s.Min = d
		}
		if d > s.Max {
			s.Max = d
		}
	}

	s.Mean = s.Sum / time.Duration(s.Count)

	return s
}
