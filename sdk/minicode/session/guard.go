package session

import (
	"sync"
	"time"
)

// ReasonSafetyLimit is the cancellation reason recorded by a Guard.
const ReasonSafetyLimit = "safety_limit"

const defGuardDuration = 12 * time.Second

// GuardConfig sets the budgets enforced by a Guard.
//
// MaxDuration is the wall-clock budget measured from NewGuard. When set to 0
// the default of 12 seconds is used, a negative value disables it.
//
// MaxChars is the number of bytes of output allowed. Zero disables it.
//
// MaxRepeats is the number of times the same non-blank fragment may be
// emitted back to back. Zero disables it.
type GuardConfig struct {
	MaxDuration time.Duration
	MaxChars    int
	MaxRepeats  int
}

// Guard wraps a Callback and cancels generation when a budget is exceeded.
// The wall-clock budget is enforced from a timer, so it takes effect at the
// next poll point of the generation loop.
type Guard struct {
	*StreamCallback

	inner  Callback
	cfg    GuardConfig
	timer  *time.Timer
	chars  int
	last   string
	repeat int

	stopOnce sync.Once
}

// NewGuard starts the wall-clock budget and returns the guard. Stop must be
// called once generation ends to release the timer.
func NewGuard(inner Callback, cfg GuardConfig) *Guard {
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = defGuardDuration
	}

	g := Guard{
		StreamCallback: NewStreamCallback(nil),
		inner:          inner,
		cfg:            cfg,
	}

	if cfg.MaxDuration > 0 {
		g.timer = time.AfterFunc(cfg.MaxDuration, func() {
			g.Cancel(ReasonSafetyLimit)
		})
	}

	return &g
}

// OnToken implements Callback. The fragment is forwarded before the budgets
// are checked, a cancellation applies to the next poll.
func (g *Guard) OnToken(fragment string) {
	if g.inner != nil {
		g.inner.OnToken(fragment)
	}

	g.chars += len(fragment)
	if g.cfg.MaxChars > 0 && g.chars > g.cfg.MaxChars {
		g.Cancel(ReasonSafetyLimit)
	}

	if g.cfg.MaxRepeats <= 0 || isBlank(fragment) {
		return
	}

	switch fragment {
	case g.last:
		g.repeat++
	default:
		g.last = fragment
		g.repeat = 1
	}

	if g.repeat > g.cfg.MaxRepeats {
		g.Cancel(ReasonSafetyLimit)
	}
}

// IsCancelled implements Callback.
func (g *Guard) IsCancelled() bool {
	if g.StreamCallback.IsCancelled() {
		return true
	}

	return g.inner != nil && g.inner.IsCancelled()
}

// Stop releases the timer. It is safe to call more than once.
func (g *Guard) Stop() {
	g.stopOnce.Do(func() {
		if g.timer != nil {
			g.timer.Stop()
		}
	})
}

func isBlank(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}

	return true
}
