package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer inserts a short pause every N requests and optionally caps the
// request rate. The remote server has no documented limit, it just starts
// returning garbage when hammered.
type Pacer struct {
	mu      sync.Mutex
	every   int
	pause   time.Duration
	limiter *rate.Limiter
	count   int
	sleep   func(ctx context.Context, d time.Duration) error
}

type PacerConfig struct {
	Every     int
	Pause     time.Duration
	MaxPerSec float64
	Burst     int
}

func DefaultPacerConfig() PacerConfig {
	return PacerConfig{Every: 50, Pause: 125 * time.Millisecond}
}

func NewPacer(cfg PacerConfig) *Pacer {
	defaults := DefaultPacerConfig()
	if cfg.Every <= 0 {
		cfg.Every = defaults.Every
	}
	if cfg.Pause < 0 {
		cfg.Pause = defaults.Pause
	}

	p := &Pacer{every: cfg.Every, pause: cfg.Pause, sleep: sleepContext}
	if cfg.MaxPerSec > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.MaxPerSec), burst)
	}
	return p
}

// Wait must be called before every remote request.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.count++
	shouldPause := p.count%p.every == 0
	p.mu.Unlock()

	if shouldPause && p.pause > 0 {
		return p.sleep(ctx, p.pause)
	}
	return ctx.Err()
}

func (p *Pacer) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}
