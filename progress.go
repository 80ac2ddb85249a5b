package dzip

import (
	"sync"
	"time"
)

// counter is the view of the worker pool that the poller needs.
type counter interface {
	Completed() int
}

// poller periodically reports how many file entries still await compression.
//
// A nil poller or one without a callback is valid and does nothing.
type poller struct {
	onProgress func(remaining, total int)
	interval   time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

func newPoller(onProgress func(remaining, total int), interval time.Duration) *poller {
	if onProgress == nil {
		return nil
	}

	if interval <= 0 {
		interval = time.Second
	}

	return &poller{onProgress: onProgress, interval: interval}
}

// start begins reporting against the given counter.
func (p *poller) start(c counter, total int) {
	if p == nil {
		return
	}

	p.done = make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				p.onProgress(max(total-c.Completed(), 0), total)
			}
		}
	}()
}

// stop ends reporting and waits for the reporting goroutine to exit.
//
// After stop returns, the callback is never invoked again.
func (p *poller) stop() {
	if p == nil || p.done == nil {
		return
	}

	close(p.done)
	p.wg.Wait()
	p.done = nil
}
