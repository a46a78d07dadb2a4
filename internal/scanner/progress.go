package scanner

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Progress is a point-in-time view of a running scan.
type Progress struct {
	Processed  int64         `json:"processed"`
	Discovered int64         `json:"discovered"`
	Skipped    int64         `json:"skipped"`
	Errors     int64         `json:"errors"`
	Elapsed    time.Duration `json:"elapsed"`
	ETA        time.Duration `json:"eta"`
	Final      bool          `json:"final"`
}

// ProgressFunc receives progress reports on a separate goroutine.
type ProgressFunc func(Progress)

// counters are the live scan totals shared by the walker, workers and the
// progress reporter.
type counters struct {
	processed  atomic.Int64
	discovered atomic.Int64
	skipped    atomic.Int64
	errors     atomic.Int64
	start      time.Time
}

func (c *counters) snapshot() Progress {
	p := Progress{
		Processed:  c.processed.Load(),
		Discovered: c.discovered.Load(),
		Skipped:    c.skipped.Load(),
		Errors:     c.errors.Load(),
		Elapsed:    time.Since(c.start),
	}
	done := p.Processed + p.Skipped + p.Errors
	if done > 0 && p.Discovered > done {
		perFile := p.Elapsed / time.Duration(done)
		p.ETA = perFile * time.Duration(p.Discovered-done)
	}
	return p
}

// progressReporter delivers throttled reports without ever blocking the
// scan: a report is dropped when the limiter says it is too early or the
// consumer has not taken the previous one.
type progressReporter struct {
	limiter *rate.Limiter
	ch      chan Progress
	done    chan struct{}
	dropped atomic.Int64
	once    sync.Once
}

func newProgressReporter(interval time.Duration, fn ProgressFunc) *progressReporter {
	if fn == nil {
		return nil
	}
	p := &progressReporter{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		ch:      make(chan Progress, 1),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		for pr := range p.ch {
			fn(pr)
		}
	}()
	return p
}

func (p *progressReporter) offer(pr Progress) {
	if p == nil || !p.limiter.Allow() {
		return
	}
	select {
	case p.ch <- pr:
	default:
		p.dropped.Add(1)
	}
}

// finish delivers the final report and waits for the consumer to drain.
func (p *progressReporter) finish(pr Progress) {
	if p == nil {
		return
	}
	p.once.Do(func() {
		pr.Final = true
		p.ch <- pr
		close(p.ch)
		<-p.done
	})
}
