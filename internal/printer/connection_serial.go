package printer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/tarm/serial"
)

// SerialConnection represents a serial printer connection
type SerialConnection struct {
	port *serial.Port
	mu   sync.Mutex
}

// ConnectSerial connects to a serial printer
func ConnectSerial(device string, baud int) (*SerialConnection, error) {
	if baud == 0 {
		baud = defaultBaud
	}

	config := &serial.Config{
		Name: device,
		Baud: baud,
	}

	port, err := serial.OpenPort(config)
	if err != nil {
		return nil, classifySerialError(device, err)
	}

	return &SerialConnection{
		port: port,
	}, nil
}

// Write sends data to the serial printer. The port has no write deadline, so
// a write still pending when ctx expires is abandoned by closing the port.
func (c *SerialConnection) Write(ctx context.Context, data []byte) (int, error) {
	c.mu.Lock()
	port := c.port
	c.mu.Unlock()

	if port == nil {
		return 0, fmt.Errorf("%w: connection closed", ErrTransmission)
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := port.Write(data)
		done <- result{n, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.n, fmt.Errorf("%w: failed to write to serial printer: %v", ErrTransmission, r.err)
		}
		return r.n, nil
	case <-ctx.Done():
		c.Close()
		return 0, fmt.Errorf("%w: %v", ErrTransmission, ctx.Err())
	}
}

// Close closes the serial connection
func (c *SerialConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port != nil {
		err := c.port.Close()
		c.port = nil
		return err
	}

	return nil
}

func classifySerialError(device string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, device, err)
	case errors.Is(err, syscall.EBUSY):
		return fmt.Errorf("%w: %s", ErrDeviceBusy, device)
	default:
		return fmt.Errorf("%w: failed to open serial port %s: %v", ErrDeviceNotFound, device, err)
	}
}
