package printer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/gousb"
)

// USBConnection represents a claimed USB printer interface
type USBConnection struct {
	ctx      *gousb.Context
	device   *gousb.Device
	config   *gousb.Config
	iface    *gousb.Interface
	endpoint *gousb.OutEndpoint
	mu       sync.Mutex
}

// ConnectUSB opens the device, claims interface ifaceNum and finds its OUT
// endpoint. Everything acquired so far is released if any step fails.
func ConnectUSB(vid, pid uint16, ifaceNum int) (_ *USBConnection, err error) {
	usbCtx, err := newUSBContext()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}

	conn := &USBConnection{ctx: usbCtx}
	defer func() {
		if err != nil {
			conn.Close()
		}
	}()

	dev, err := usbCtx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		return nil, classifyUSBError(fmt.Sprintf("open %04X:%04X", vid, pid), err, ErrDeviceNotFound)
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: %04X:%04X", ErrDeviceNotFound, vid, pid)
	}
	conn.device = dev

	// Let libusb detach the kernel printer driver while we hold the interface
	_ = dev.SetAutoDetach(true)

	cfgNum, err := dev.ActiveConfigNum()
	if err != nil {
		return nil, classifyUSBError("read active config", err, ErrDeviceNotFound)
	}
	if cfgNum == 0 {
		// Unconfigured device, pick the first configuration it offers
		for num := range dev.Desc.Configs {
			if cfgNum == 0 || num < cfgNum {
				cfgNum = num
			}
		}
	}

	cfg, err := dev.Config(cfgNum)
	if err != nil {
		return nil, classifyUSBError(fmt.Sprintf("set config %d", cfgNum), err, ErrDeviceBusy)
	}
	conn.config = cfg

	iface, err := cfg.Interface(ifaceNum, 0)
	if err != nil {
		return nil, classifyUSBError(fmt.Sprintf("claim interface %d", ifaceNum), err, ErrDeviceBusy)
	}
	conn.iface = iface

	for _, epDesc := range iface.Setting.Endpoints {
		if epDesc.Direction != gousb.EndpointDirectionOut {
			continue
		}
		ep, err := iface.OutEndpoint(epDesc.Number)
		if err == nil {
			conn.endpoint = ep
			break
		}
	}

	if conn.endpoint == nil {
		return nil, fmt.Errorf("%w: no OUT endpoint on interface %d of %04X:%04X", ErrDeviceNotFound, ifaceNum, vid, pid)
	}

	return conn, nil
}

// Write sends data to the USB printer
func (c *USBConnection) Write(ctx context.Context, data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.endpoint == nil {
		return 0, fmt.Errorf("%w: connection closed", ErrTransmission)
	}

	n, err := c.endpoint.WriteContext(ctx, data)
	if err != nil {
		return n, classifyUSBError("write", err, ErrTransmission)
	}
	if n < len(data) {
		return n, fmt.Errorf("%w: short write, %d of %d bytes", ErrTransmission, n, len(data))
	}

	return n, nil
}

// Close releases the interface, config, device and libusb context
func (c *USBConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	c.endpoint = nil
	if c.iface != nil {
		c.iface.Close()
		c.iface = nil
	}
	if c.config != nil {
		errs = append(errs, c.config.Close())
		c.config = nil
	}
	if c.device != nil {
		errs = append(errs, c.device.Close())
		c.device = nil
	}
	if c.ctx != nil {
		errs = append(errs, c.ctx.Close())
		c.ctx = nil
	}

	return errors.Join(errs...)
}

// newUSBContext initializes libusb. gousb panics when libusb cannot be
// initialized; that is reported as an error instead.
func newUSBContext() (ctx *gousb.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctx = nil
			err = fmt.Errorf("libusb unavailable: %v", r)
		}
	}()

	return gousb.NewContext(), nil
}

// classifyUSBError maps libusb error codes onto printer errors. fallback is
// used for codes that have no specific mapping.
func classifyUSBError(op string, err error, fallback error) error {
	kind := fallback

	var usbErr gousb.Error
	if errors.As(err, &usbErr) {
		switch usbErr {
		case gousb.ErrorNoDevice, gousb.ErrorNotFound:
			kind = ErrDeviceNotFound
		case gousb.ErrorAccess:
			kind = ErrPermissionDenied
		case gousb.ErrorBusy:
			kind = ErrDeviceBusy
		case gousb.ErrorTimeout, gousb.ErrorIO, gousb.ErrorPipe, gousb.ErrorInterrupted, gousb.ErrorOverflow:
			kind = ErrTransmission
		}
	}

	return fmt.Errorf("%w: %s: %v", kind, op, err)
}
