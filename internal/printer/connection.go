// Package printer handles printer presence detection, connection, and
// communication
package printer

import (
	"context"
	"fmt"

	"github.com/thereceipt/printcounter/internal/config"
)

// defaultBaud is the serial speed used by most thermal printers
const defaultBaud = 9600

// Connection is a unified interface for all printer transports
type Connection interface {
	Write(ctx context.Context, data []byte) (int, error)
	Close() error
}

// Open establishes a connection to the printer addressed by cfg
func Open(ctx context.Context, cfg config.Config) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransmission, err)
	}

	if cfg.SerialDevice != "" {
		return ConnectSerial(cfg.SerialDevice, defaultBaud)
	}

	vid, err := cfg.VID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	pid, err := cfg.PID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}

	return ConnectUSB(vid, pid, cfg.Interface)
}
