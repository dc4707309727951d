package agent

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/flynn-ai/agentcore/internal/errors"
)

// Quota limits how many turns each caller may start per hour.
type Quota struct {
	mu       sync.Mutex
	perHour  int
	limiters map[string]*rate.Limiter
	swept    time.Time
	now      func() time.Time
}

// quotaWindow is how long an idle limiter takes to refill completely.
const quotaWindow = time.Hour

// NewQuota allows perHour turns per caller. Zero or less disables the limit.
func NewQuota(perHour int) *Quota {
	return &Quota{
		perHour:  perHour,
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

// Allow consumes one turn for the caller or returns a quota error carrying
// the delay until the next turn is available.
func (q *Quota) Allow(callerID string) error {
	if q == nil || q.perHour <= 0 {
		return nil
	}

	now := q.now()

	q.mu.Lock()
	if now.Sub(q.swept) >= quotaWindow {
		q.sweep(now)
	}
	lim, ok := q.limiters[callerID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Hour/time.Duration(q.perHour)), q.perHour)
		q.limiters[callerID] = lim
	}
	q.mu.Unlock()

	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return apperrors.Quota(apperrors.CodeQuotaExceeded,
			fmt.Sprintf("limit of %d turns per hour reached", q.perHour), max(delay.Round(time.Second), time.Second))
	}
	return nil
}

// sweep drops limiters that have refilled to their burst. A full limiter
// behaves exactly like a fresh one, so forgetting it changes nothing.
// Callers must hold q.mu.
func (q *Quota) sweep(now time.Time) {
	for id, lim := range q.limiters {
		if lim.TokensAt(now) >= float64(q.perHour) {
			delete(q.limiters, id)
		}
	}
	q.swept = now
}
