package printer

import "errors"

// Printer I/O errors. Callers classify with errors.Is.
var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrDeviceBusy         = errors.New("device busy")
	ErrTransmission       = errors.New("transmission error")
	ErrMonitorUnavailable = errors.New("device monitor unavailable")
)
