package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// poller drives the poll cycles of a single event. It fires once
// immediately on start and then on every interval tick. Interval
// changes swap the ticker without restarting the goroutine.
type poller struct {
	eventID  string
	clock    clockwork.Clock
	fire     func(ctx context.Context, eventID string)
	interval chan intervalChange
	stopCh   chan struct{}
	done     chan struct{}
}

type intervalChange struct {
	d   time.Duration
	ack chan struct{}
}

func newPoller(eventID string, clock clockwork.Clock, fire func(ctx context.Context, eventID string)) *poller {
	return &poller{
		eventID:  eventID,
		clock:    clock,
		fire:     fire,
		interval: make(chan intervalChange),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// start runs the poll loop until stop is called or ctx is cancelled.
func (p *poller) start(ctx context.Context, interval time.Duration) {
	go func() {
		defer close(p.done)

		p.fire(ctx, p.eventID)

		ticker := p.clock.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.Chan():
				p.fire(ctx, p.eventID)
			case change := <-p.interval:
				ticker.Reset(change.d)
				close(change.ack)
				slog.Info("poll interval changed", "event_id", p.eventID, "interval", change.d)
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// reconfigure applies a new interval and returns once the tick loop
// has picked it up. The next fire happens one full new interval from
// now, never sooner. Callers must not hold locks the fire callback
// takes, or a concurrent tick could deadlock against this send.
func (p *poller) reconfigure(interval time.Duration) {
	change := intervalChange{d: interval, ack: make(chan struct{})}
	select {
	case p.interval <- change:
		<-change.ack
	case <-p.done:
	}
}

// stop terminates the loop and waits for it to exit. Safe to call once.
func (p *poller) stop() {
	close(p.stopCh)
	<-p.done
}
