package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/gousb"
	"github.com/thereceipt/printcounter/internal/config"
)

// Detector reports whether the configured printer is attached. Absence of the
// device is not an error; ErrMonitorUnavailable means the check itself could
// not run.
type Detector interface {
	IsPresent(ctx context.Context, cfg config.Config) (bool, error)
}

// USBDetector checks presence by enumerating USB descriptors with libusb.
// Devices are never opened.
type USBDetector struct{}

// IsPresent implements Detector
func (USBDetector) IsPresent(ctx context.Context, cfg config.Config) (bool, error) {
	if cfg.SerialDevice != "" {
		return serialPresent(cfg.SerialDevice)
	}

	vid, pid, ok := deviceIDs(cfg)
	if !ok {
		return false, nil
	}

	usbCtx, err := newUSBContext()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMonitorUnavailable, err)
	}
	defer usbCtx.Close()

	found := false
	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor == gousb.ID(vid) && desc.Product == gousb.ID(pid) {
			found = true
		}
		// Match on descriptors only
		return false
	})
	for _, dev := range devices {
		dev.Close()
	}

	if found {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: failed to enumerate USB devices: %v", ErrMonitorUnavailable, err)
	}

	return false, nil
}

// LsusbDetector checks presence by running lsusb and looking for vid:pid
type LsusbDetector struct {
	Path    string        // defaults to "lsusb" on PATH
	Timeout time.Duration // defaults to 5s

	run func(ctx context.Context, path string) ([]byte, error)
}

// IsPresent implements Detector
func (d LsusbDetector) IsPresent(ctx context.Context, cfg config.Config) (bool, error) {
	if cfg.SerialDevice != "" {
		return serialPresent(cfg.SerialDevice)
	}

	vid, pid, ok := deviceIDs(cfg)
	if !ok {
		return false, nil
	}

	path := d.Path
	if path == "" {
		path = "lsusb"
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	run := d.run
	if run == nil {
		run = runCommand
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := run(ctx, path)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return false, fmt.Errorf("%w: %s not installed", ErrMonitorUnavailable, path)
		}
		// lsusb exits non-zero when the bus has no devices at all
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(out) == 0 && ctx.Err() == nil {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s: %v", ErrMonitorUnavailable, path, err)
	}

	return lsusbHasDevice(out, vid, pid), nil
}

func runCommand(ctx context.Context, path string) ([]byte, error) {
	return exec.CommandContext(ctx, path).Output()
}

// lsusbHasDevice looks for "ID vvvv:pppp" in lsusb output
func lsusbHasDevice(out []byte, vid, pid uint16) bool {
	pattern := []byte(fmt.Sprintf("%04x:%04x", vid, pid))
	return bytes.Contains(bytes.ToLower(out), pattern)
}

func deviceIDs(cfg config.Config) (uint16, uint16, bool) {
	vid, err := cfg.VID()
	if err != nil {
		return 0, 0, false
	}
	pid, err := cfg.PID()
	if err != nil {
		return 0, 0, false
	}
	return vid, pid, true
}

func serialPresent(device string) (bool, error) {
	_, err := os.Stat(device)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrMonitorUnavailable, err)
}
