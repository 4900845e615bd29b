package controller

import (
	"fmt"
	"time"

	"github.com/thereceipt/printcounter/internal/config"
	"github.com/thereceipt/printcounter/internal/receipt"
)

// StartAuto resets the counter and starts counting one step per interval.
// When the count reaches maxCount a receipt is printed and the controller
// returns to ManualReady.
func (c *Controller) StartAuto(maxCount int, interval time.Duration) error {
	if maxCount <= 0 {
		return fmt.Errorf("%w: max count must be positive, got %d", config.ErrInvalidConfig, maxCount)
	}
	if err := config.ValidateInterval(interval); err != nil {
		return err
	}

	c.mu.Lock()
	if err := c.checkManualLocked("start auto"); err != nil {
		c.mu.Unlock()
		return err
	}

	c.count = 0
	c.mode = ModeAutoRunning
	c.autoMax = maxCount
	c.autoInterval = interval
	c.autoGen++
	c.scheduleTickLocked(c.autoGen)
	c.publishStateLocked()
	c.mu.Unlock()

	c.log.Infow("auto mode started", "max_count", maxCount, "interval", interval)
	return nil
}

// StopAuto cancels the pending tick. The count is kept. A final print
// already in flight is allowed to finish.
func (c *Controller) StopAuto() error {
	c.mu.Lock()
	if c.mode != ModeAutoRunning {
		c.mu.Unlock()
		return fmt.Errorf("%w: stop auto: auto mode is not running", ErrInvalidOperation)
	}
	c.stopAutoLocked()
	c.mode = ModeManualReady
	count := c.count
	c.publishStateLocked()
	c.mu.Unlock()

	c.log.Infow("auto mode stopped", "count", count)
	return nil
}

// stopAutoLocked cancels the pending tick and invalidates any tick already
// dispatched for the current run
func (c *Controller) stopAutoLocked() {
	if c.autoTimer != nil {
		c.autoTimer.Stop()
		c.autoTimer = nil
	}
	c.autoGen++
}

func (c *Controller) scheduleTickLocked(gen uint64) {
	c.autoTimer = c.clock.AfterFunc(c.autoInterval, func() {
		c.tick(gen)
	})
}

// tick advances an auto run by one. The next tick is only scheduled after
// this one is done, so ticks never overlap.
func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	if gen != c.autoGen || c.mode != ModeAutoRunning || c.closed {
		c.mu.Unlock()
		return
	}
	c.autoTimer = nil
	c.count++

	if c.count < c.autoMax {
		c.scheduleTickLocked(gen)
		c.publishStateLocked()
		c.mu.Unlock()
		return
	}

	// Final step: print, then hand control back
	doc := receipt.NewCount(c.lastOrder+1, c.count, c.clock.Now())
	cfg := c.beginPrintLocked()
	c.mu.Unlock()

	c.log.Infow("auto run complete", "count", doc.Count, "order_number", doc.OrderNumber)

	_ = c.print(c.ctx, cfg, doc, func() {
		if c.mode == ModeAutoRunning && gen == c.autoGen {
			c.autoGen++
		}
		c.mode = ModeManualReady
	})
}
