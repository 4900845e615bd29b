package controller

import (
	"context"
	"errors"
	"time"

	"github.com/thereceipt/printcounter/internal/printer"
)

// DefaultPollInterval is the presence polling cadence
const DefaultPollInterval = 2 * time.Second

// PollPresence checks the configured device once. A broken detector makes
// presence unknown; it never affects counting.
func (c *Controller) PollPresence(ctx context.Context) (bool, error) {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	present, err := c.detector.IsPresent(ctx, cfg)
	now := c.clock.Now()

	c.mu.Lock()
	if !cfg.SameDevice(c.cfg) {
		// Settings changed while checking, the result is stale
		c.mu.Unlock()
		return present, err
	}

	changed := false
	if err != nil {
		changed = c.presenceKnown
		c.presenceKnown = false
		c.present = false
		// A print failure stays visible; presence is reported as unknown
		if !c.busy && (c.lastErr == nil || isMonitorErr(c.lastErr)) {
			changed = changed || c.lastErr == nil
			c.lastErr = err
		}
	} else {
		changed = !c.presenceKnown || c.present != present
		c.presenceKnown = true
		c.present = present
		if isMonitorErr(c.lastErr) {
			c.lastErr = nil
			changed = true
		}
	}
	c.checkedAt = now

	if changed {
		if err != nil {
			c.log.Warnw("presence check unavailable", "err", err)
		} else {
			c.log.Infow("printer presence changed", "present", present)
		}
		c.publishLocked(Event{Type: EventPresence, Data: c.snapshotLocked()})
	}
	c.mu.Unlock()

	return present, err
}

// WatchDevice polls presence every interval until ctx is done
func (c *Controller) WatchDevice(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	_, _ = c.PollPresence(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_, _ = c.PollPresence(ctx)
		}
	}
}

func isMonitorErr(err error) bool {
	return errors.Is(err, printer.ErrMonitorUnavailable)
}
