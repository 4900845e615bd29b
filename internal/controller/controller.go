// Package controller owns the counter, the auto-count loop and printer
// presence, and is the only path to the printer gateway.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thereceipt/printcounter/internal/clock"
	"github.com/thereceipt/printcounter/internal/config"
	"github.com/thereceipt/printcounter/internal/history"
	"github.com/thereceipt/printcounter/internal/logger"
	"github.com/thereceipt/printcounter/internal/printer"
	"github.com/thereceipt/printcounter/internal/receipt"
)

// Printer transmits one receipt. Implemented by printer.Gateway.
type Printer interface {
	Print(ctx context.Context, cfg config.Config, doc receipt.Document) error
}

// ConfigStore persists printer settings. Implemented by config.Store.
type ConfigStore interface {
	Load() config.Config
	Save(cfg config.Config) error
}

// Ledger persists order numbers and print attempts. Implemented by
// history.Ledger.
type Ledger interface {
	LastOrderNumber(ctx context.Context) (int64, error)
	Record(ctx context.Context, e history.Entry) error
	ResetOrderNumber(ctx context.Context) error
}

// Options wires a Controller. Printer, Detector and Store are required.
type Options struct {
	Printer  Printer
	Detector printer.Detector
	Store    ConfigStore
	Ledger   Ledger      // nil keeps order numbers in memory only
	Clock    clock.Clock // nil uses the wall clock
	Logger   *logger.Logger
}

// Controller is the single owner of counter state
type Controller struct {
	printer  Printer
	detector printer.Detector
	store    ConfigStore
	ledger   Ledger
	clock    clock.Clock
	log      *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	cfg         config.Config
	count       int
	mode        Mode
	busy        bool
	lastOrder   int64
	lastPrintAt time.Time
	lastErr     error

	present       bool
	presenceKnown bool
	checkedAt     time.Time

	autoMax      int
	autoInterval time.Duration
	autoTimer    clock.Timer
	autoGen      uint64

	closed bool
	prints sync.WaitGroup

	// subsMu is taken after mu, never before
	subsMu     sync.Mutex
	subs       map[int]chan Event
	nextSub    int
	subsClosed bool
}

// New loads the configuration and the last order number and returns an idle
// controller
func New(opts Options) (*Controller, error) {
	if opts.Printer == nil || opts.Detector == nil || opts.Store == nil {
		return nil, fmt.Errorf("controller: printer, detector and store are required")
	}
	if opts.Ledger == nil {
		opts.Ledger = &memoryLedger{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	last, err := opts.Ledger.LastOrderNumber(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("load last order number: %w", err)
	}

	c := &Controller{
		printer:   opts.Printer,
		detector:  opts.Detector,
		store:     opts.Store,
		ledger:    opts.Ledger,
		clock:     opts.Clock,
		log:       opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		cfg:       opts.Store.Load(),
		mode:      ModeIdle,
		lastOrder: last,
		subs:      make(map[int]chan Event),
	}

	c.log.Infow("controller ready",
		"vendor_id", c.cfg.VendorID,
		"product_id", c.cfg.ProductID,
		"interface", c.cfg.Interface,
		"last_order_number", last,
	)
	return c, nil
}

// Config returns the active printer configuration
func (c *Controller) Config() config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Snapshot returns a copy of the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Count:           c.count,
		Mode:            c.mode,
		Busy:            c.busy,
		DevicePresent:   c.present,
		PresenceKnown:   c.presenceKnown,
		LastError:       KindOf(c.lastErr),
		LastOrderNumber: c.lastOrder,
	}
	if c.lastErr != nil {
		s.LastErrorMessage = c.lastErr.Error()
	}
	if !c.checkedAt.IsZero() {
		at := c.checkedAt
		s.PresenceCheckedAt = &at
	}
	if !c.lastPrintAt.IsZero() {
		at := c.lastPrintAt
		s.LastPrintAt = &at
	}
	if c.mode == ModeAutoRunning {
		s.AutoProgress = AutoProgress{Current: c.count, Max: c.autoMax}
		s.AutoInterval = c.autoInterval.Seconds()
	}
	return s
}

// checkManualLocked rejects commands that need an idle printer and no auto run
func (c *Controller) checkManualLocked(op string) error {
	if c.closed {
		return fmt.Errorf("%w: %s: controller closed", ErrInvalidOperation, op)
	}
	if c.busy {
		return fmt.Errorf("%w: %s: print in progress", ErrInvalidOperation, op)
	}
	if c.mode == ModeAutoRunning {
		return fmt.Errorf("%w: %s: auto mode is running", ErrInvalidOperation, op)
	}
	return nil
}

// Increment adds one to the counter
func (c *Controller) Increment() error {
	c.mu.Lock()
	if err := c.checkManualLocked("increment"); err != nil {
		c.mu.Unlock()
		return err
	}
	c.count++
	c.mode = ModeManualReady
	c.publishStateLocked()
	c.mu.Unlock()
	return nil
}

// Reset sets the counter to zero. The order number is kept.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if err := c.checkManualLocked("reset"); err != nil {
		c.mu.Unlock()
		return err
	}
	c.count = 0
	c.mode = ModeManualReady
	c.publishStateLocked()
	c.mu.Unlock()
	return nil
}

// PrintNow prints the current count with the next order number. The order
// number only advances when the printer accepts the receipt. Mode is kept.
func (c *Controller) PrintNow(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkManualLocked("print"); err != nil {
		c.mu.Unlock()
		return err
	}
	doc := receipt.NewCount(c.lastOrder+1, c.count, c.clock.Now())
	cfg := c.beginPrintLocked()
	c.mu.Unlock()

	return c.print(ctx, cfg, doc, nil)
}

// TestPrint prints a test receipt. It does not use an order number.
func (c *Controller) TestPrint(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkManualLocked("test print"); err != nil {
		c.mu.Unlock()
		return err
	}
	doc := receipt.NewTest(printer.Describe(c.cfg), c.clock.Now())
	cfg := c.beginPrintLocked()
	c.mu.Unlock()

	return c.print(ctx, cfg, doc, nil)
}

// beginPrintLocked marks the controller busy and returns the config to print
// with. Every call is paired with exactly one print.
func (c *Controller) beginPrintLocked() config.Config {
	c.busy = true
	c.prints.Add(1)
	c.publishStateLocked()
	return c.cfg
}

// print runs one print with the controller unlocked, records the attempt and
// settles state. after runs under the lock once the result is applied.
//
// Cancelling ctx does not interrupt a transfer that has started; only the
// gateway timeout bounds it.
func (c *Controller) print(ctx context.Context, cfg config.Config, doc receipt.Document, after func()) error {
	defer c.prints.Done()

	ctx = context.WithoutCancel(ctx)
	err := c.printer.Print(ctx, cfg, doc)

	entry := history.Entry{
		Kind:        string(doc.Kind),
		OrderNumber: doc.OrderNumber,
		Count:       doc.Count,
		Status:      history.StatusPrinted,
		PrintedAt:   doc.PrintedAt,
	}
	if err != nil {
		entry.Status = history.StatusFailed
		entry.ErrorKind = string(KindOf(err))
		entry.Message = err.Error()
	}
	rerr := c.ledger.Record(ctx, entry)
	if rerr != nil {
		c.log.Errorw("failed to record print", "order_number", doc.OrderNumber, "err", rerr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.busy = false
	if err != nil {
		c.lastErr = err
	} else {
		c.lastErr = nil
		c.lastPrintAt = doc.PrintedAt
		if doc.Kind == receipt.KindCount {
			c.lastOrder = doc.OrderNumber
			if rerr != nil {
				// The receipt is out but the sequence was not saved; a restart
				// would hand out this number again
				c.lastErr = fmt.Errorf("%w: order #%d printed but not saved: %v", ErrHistory, doc.OrderNumber, rerr)
			}
		}
	}
	if after != nil {
		after()
	}
	snap := c.snapshotLocked()

	if err != nil {
		c.log.Warnw("print failed", "kind", doc.Kind, "order_number", doc.OrderNumber, "count", doc.Count, "err", err)
		c.publishLocked(Event{
			Type:        EventPrintFailed,
			Data:        snap,
			OrderNumber: doc.OrderNumber,
			Error:       KindOf(err),
			Message:     err.Error(),
		})
		return err
	}

	c.log.Infow("print done", "kind", doc.Kind, "order_number", doc.OrderNumber, "count", doc.Count)
	c.publishLocked(Event{Type: EventPrinted, Data: snap, OrderNumber: doc.OrderNumber})
	return nil
}

// UpdateSettings validates and persists cfg. While auto mode runs only
// changes that keep the same device are accepted.
func (c *Controller) UpdateSettings(cfg config.Config) error {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return fmt.Errorf("%w: update settings: print in progress", ErrInvalidOperation)
	}
	if c.mode == ModeAutoRunning && !c.cfg.SameDevice(cfg) {
		c.mu.Unlock()
		return fmt.Errorf("%w: stop auto mode before changing the printer", config.ErrInvalidConfig)
	}
	if err := c.store.Save(cfg); err != nil {
		c.mu.Unlock()
		return err
	}
	deviceChanged := !c.cfg.SameDevice(cfg)
	c.cfg = cfg
	if deviceChanged {
		// The new device has not been looked for yet
		c.presenceKnown = false
		c.present = false
		c.checkedAt = time.Time{}
	}
	c.publishStateLocked()
	c.mu.Unlock()

	c.log.Infow("settings updated",
		"vendor_id", cfg.VendorID,
		"product_id", cfg.ProductID,
		"interface", cfg.Interface,
		"auto_max_count", cfg.AutoMaxCount,
		"auto_interval", cfg.AutoInterval,
	)
	return nil
}

// ClearOrderNumber restarts order numbering at 1
func (c *Controller) ClearOrderNumber(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: clear order number: controller closed", ErrInvalidOperation)
	}
	if c.busy {
		c.mu.Unlock()
		return fmt.Errorf("%w: clear order number: print in progress", ErrInvalidOperation)
	}
	if err := c.ledger.ResetOrderNumber(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	c.lastOrder = 0
	c.publishStateLocked()
	c.mu.Unlock()

	c.log.Infow("order number cleared")
	return nil
}

// Close stops the auto loop, ends all subscriptions and waits for a print in
// flight to be recorded
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopAutoLocked()
	c.closeSubscribersLocked()
	c.mu.Unlock()

	c.cancel()
	c.prints.Wait()
}

// memoryLedger keeps the order sequence for controllers without a database
type memoryLedger struct {
	mu   sync.Mutex
	last int64
}

func (m *memoryLedger) LastOrderNumber(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, nil
}

func (m *memoryLedger) Record(ctx context.Context, e history.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Status == history.StatusPrinted && e.OrderNumber > 0 {
		m.last = e.OrderNumber
	}
	return nil
}

func (m *memoryLedger) ResetOrderNumber(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = 0
	return nil
}
