package printer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thereceipt/printcounter/internal/config"
	"github.com/thereceipt/printcounter/internal/logger"
	"github.com/thereceipt/printcounter/internal/receipt"
)

// DefaultTimeout bounds a single print, open to close
const DefaultTimeout = 5 * time.Second

// Dialer opens a connection to the configured printer
type Dialer func(ctx context.Context, cfg config.Config) (Connection, error)

// Gateway prints receipts. Each Print opens the device, transmits one
// document and releases the device before returning. Only one connection is
// open at a time.
type Gateway struct {
	dial    Dialer
	timeout time.Duration
	log     *logger.Logger
	mu      sync.Mutex
}

// NewGateway creates a gateway that talks to real hardware
func NewGateway(timeout time.Duration, log *logger.Logger) *Gateway {
	return NewGatewayWithDialer(Open, timeout, log)
}

// NewGatewayWithDialer creates a gateway using a custom dialer
func NewGatewayWithDialer(dial Dialer, timeout time.Duration, log *logger.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Gateway{
		dial:    dial,
		timeout: timeout,
		log:     log,
	}
}

// Print formats doc and transmits it. It never retries.
func (g *Gateway) Print(ctx context.Context, cfg config.Config, doc receipt.Document) error {
	data, err := EncodeDocument(doc)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	conn, err := g.dial(ctx, cfg)
	if err != nil {
		g.log.Warnw("printer open failed", "vendor_id", cfg.VendorID, "product_id", cfg.ProductID, "err", err)
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			g.log.Warnw("printer close failed", "err", cerr)
		}
	}()

	n, err := conn.Write(ctx, data)
	if err != nil {
		g.log.Warnw("printer write failed", "written", n, "size", len(data), "err", err)
		return err
	}

	g.log.Infow("receipt printed",
		"kind", doc.Kind,
		"order_number", doc.OrderNumber,
		"count", doc.Count,
		"bytes", n,
	)
	return nil
}

// Describe names the target printer, used on test prints
func Describe(cfg config.Config) string {
	if cfg.SerialDevice != "" {
		return fmt.Sprintf("Serial %s", cfg.SerialDevice)
	}
	return fmt.Sprintf("USB %s:%s", cfg.VendorID, cfg.ProductID)
}
