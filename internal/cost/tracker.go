// Package cost tracks estimated model spend for transparency.
package cost

import (
	"maps"
	"sync"
	"time"

	"github.com/flynn-ai/agentcore/internal/model"
)

// Tracker accumulates estimated spend per tier and provider. Estimates come
// from the routed configuration, not from provider invoices.
type Tracker struct {
	mu      sync.Mutex
	now     func() time.Time
	daily   *PeriodStats
	monthly *PeriodStats
}

// PeriodStats tracks spend for a day or a month.
type PeriodStats struct {
	Period     string             `json:"period"`
	Requests   int                `json:"requests"`
	Tokens     int                `json:"tokens"`
	Cost       float64            `json:"cost"`
	ByTier     map[string]float64 `json:"by_tier"`
	ByProvider map[string]float64 `json:"by_provider"`
	Secure     int                `json:"secure_requests"` // handled by the secure-private tier
}

// Snapshot is a copy of the tracker state.
type Snapshot struct {
	Daily      PeriodStats `json:"daily"`
	Monthly    PeriodStats `json:"monthly"`
	SecureRate float64     `json:"secure_rate"` // percent of today's requests on the secure-private tier
}

// NewTracker creates a new cost tracker.
func NewTracker() *Tracker {
	return newTracker(time.Now)
}

func newTracker(now func() time.Time) *Tracker {
	t := &Tracker{now: now}
	t.daily = newPeriod(now().Format("2006-01-02"))
	t.monthly = newPeriod(now().Format("2006-01"))
	return t
}

func newPeriod(name string) *PeriodStats {
	return &PeriodStats{Period: name, ByTier: map[string]float64{}, ByProvider: map[string]float64{}}
}

// Record records one model invocation.
func (t *Tracker) Record(cfg model.Configuration, tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.roll()
	for _, p := range []*PeriodStats{t.daily, t.monthly} {
		p.Requests++
		p.Tokens += tokens
		p.Cost += cfg.EstimatedCost
		p.ByTier[string(cfg.Tier)] += cfg.EstimatedCost
		p.ByProvider[cfg.Provider] += cfg.EstimatedCost
		if cfg.Tier == model.TierSecurePrivate {
			p.Secure++
		}
	}
}

// Snapshot returns the current statistics.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.roll()
	s := Snapshot{Daily: copyPeriod(t.daily), Monthly: copyPeriod(t.monthly)}
	if t.daily.Requests > 0 {
		s.SecureRate = float64(t.daily.Secure) / float64(t.daily.Requests) * 100
	}
	return s
}

// roll resets the periods when the day or month changed.
func (t *Tracker) roll() {
	now := t.now()
	if day := now.Format("2006-01-02"); day != t.daily.Period {
		t.daily = newPeriod(day)
	}
	if month := now.Format("2006-01"); month != t.monthly.Period {
		t.monthly = newPeriod(month)
	}
}

func copyPeriod(p *PeriodStats) PeriodStats {
	c := *p
	c.ByTier = maps.Clone(p.ByTier)
	c.ByProvider = maps.Clone(p.ByProvider)
	return c
}
